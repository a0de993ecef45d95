package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asquebay/cafe-order-service/internal/api"
	"github.com/asquebay/cafe-order-service/internal/checkout"
	"github.com/asquebay/cafe-order-service/internal/lib/logger"
	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher отдаёт заказы по очереди, последний повторяется
type fakeFetcher struct {
	mu     sync.Mutex
	orders []model.Order
	errs   []error
	calls  int
}

func (f *fakeFetcher) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return model.Order{}, f.errs[i]
	}
	if i >= len(f.orders) {
		i = len(f.orders) - 1
	}
	return f.orders[i], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestFetch_BuildsView(t *testing.T) {
	fetcher := &fakeFetcher{orders: []model.Order{{
		ID:                  12,
		Status:              model.StatusPreparing,
		ItemsJSON:           `{"1": [2, "Tea", "100"], "2": [1, "Cake", 250]}`,
		TableUniqueID:       "t-1",
		SpecialInstructions: "less sugar",
		TotalAmount:         decimal.NewFromInt(450),
	}}}
	tr := NewTracker(fetcher, logger.Discard())

	view, err := tr.Fetch(context.Background(), 12)

	require.NoError(t, err)
	assert.Equal(t, 2, view.Step)
	assert.Equal(t, 4, view.TotalSteps)
	assert.False(t, view.Terminal)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Tea", view.Items[0].Name)
	assert.True(t, view.ItemsTotal.Equal(view.Total))
	assert.Equal(t, model.Destination{TableUniqueID: "t-1"}, view.Destination)
	assert.Equal(t, model.DefaultEstimatedTime, view.EstimatedMinutes)
	assert.Equal(t, "less sugar", view.SpecialInstructions)
}

func TestNewView_UnknownStatusAndBrokenItems(t *testing.T) {
	view := NewView(model.Order{ID: 1, Status: "bogus", ItemsJSON: "{broken", EstimatedTime: 35})

	assert.Equal(t, 0, view.Step)
	assert.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.True(t, view.ItemsTotal.IsZero())
	assert.Equal(t, 35, view.EstimatedMinutes)
}

func TestFetch_Errors(t *testing.T) {
	tr := NewTracker(&fakeFetcher{errs: []error{&api.NotFoundError{Resource: "order"}}}, logger.Discard())
	_, err := tr.Fetch(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NotErrorIs(t, err, ErrRetrieval)

	backendErr := &api.BackendError{StatusCode: 500}
	tr = NewTracker(&fakeFetcher{errs: []error{backendErr}}, logger.Discard())
	_, err = tr.Fetch(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorAs(t, err, &backendErr)
}

func TestWatch_StopsAtTerminalStatus(t *testing.T) {
	fetcher := &fakeFetcher{orders: []model.Order{
		{ID: 1, Status: model.StatusPending},
		{ID: 1, Status: model.StatusPreparing},
		{ID: 1, Status: model.StatusReady},
		{ID: 1, Status: model.StatusCompleted},
	}}
	tr := NewTracker(fetcher, logger.Discard())

	var steps []int
	err := tr.Watch(context.Background(), 1, time.Millisecond, func(v View, err error) {
		require.NoError(t, err)
		steps = append(steps, v.Step)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, steps)
}

func TestWatch_RetriesAfterRetrievalError(t *testing.T) {
	fetcher := &fakeFetcher{
		errs:   []error{&api.NetworkError{Op: "test", Err: errors.New("timeout"), Timeout: true}},
		orders: []model.Order{{ID: 1, Status: model.StatusCancelled}},
	}
	tr := NewTracker(fetcher, logger.Discard())

	var errs int
	err := tr.Watch(context.Background(), 1, time.Millisecond, func(v View, err error) {
		if err != nil {
			errs++
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestWatch_StopsWhenNotFound(t *testing.T) {
	tr := NewTracker(&fakeFetcher{errs: []error{&api.NotFoundError{Resource: "order"}}}, logger.Discard())

	err := tr.Watch(context.Background(), 1, time.Millisecond, func(View, error) {})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestWatch_CancelStopsPolling(t *testing.T) {
	fetcher := &fakeFetcher{orders: []model.Order{{ID: 1, Status: model.StatusPending}}}
	tr := NewTracker(fetcher, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Watch(ctx, 1, 5*time.Millisecond, func(View, error) {})
	}()

	require.Eventually(t, func() bool { return fetcher.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	calls := fetcher.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fetcher.callCount())
}

func TestParseTrackingLink_RoundTrip(t *testing.T) {
	for _, dest := range []model.Destination{{TableUniqueID: "9f2c"}, {RoomUniqueID: "suite 4"}, {}} {
		link := checkout.TrackingURL(77, dest)

		id, got, err := ParseTrackingLink(link)
		require.NoError(t, err)
		assert.Equal(t, int64(77), id)
		assert.Equal(t, dest, got)
	}
}

func TestParseTrackingLink_Invalid(t *testing.T) {
	for _, link := range []string{"/orders/1", "/order-tracking/abc", "/order-tracking/1?table=a&room=b"} {
		_, _, err := ParseTrackingLink(link)
		assert.ErrorIs(t, err, ErrInvalidLink, link)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", ErrOrderNotFound, NotFoundMessage},
		{"timeout", &api.NetworkError{Op: "test", Err: context.DeadlineExceeded, Timeout: true}, RetryMessage},
		{"server error", fmt.Errorf("%w: %w", ErrRetrieval, &api.BackendError{StatusCode: 502}), RetryMessage},
		{"bad request", fmt.Errorf("%w: %w", ErrRetrieval, &api.BackendError{StatusCode: 400, Message: "bad id"}), RetrievalMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(fmt.Errorf("tracking.Tracker.Fetch: %w", tt.err)))
		})
	}
}

func TestFetch_NetworkErrorSuggestsRetry(t *testing.T) {
	f := &fakeFetcher{errs: []error{&api.NetworkError{Op: "test", Err: errors.New("connection refused")}}}
	tr := NewTracker(f, logger.Discard())

	_, err := tr.Fetch(context.Background(), 1)
	require.ErrorIs(t, err, ErrRetrieval)
	assert.Equal(t, RetryMessage, UserMessage(err))
}
