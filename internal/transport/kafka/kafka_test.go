package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asquebay/cafe-order-service/internal/lib/logger"
	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	mu   sync.Mutex
	keys []string
	err  error
	// failures — сколько первых вызовов упадут с временной ошибкой
	failures int
}

func (f *fakeCreator) CreateOrder(ctx context.Context, req model.CreateOrderRequest, key string) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, key)
	if f.err != nil {
		return model.Order{}, f.err
	}
	if f.failures > 0 {
		f.failures--
		return model.Order{}, errors.New("db is down")
	}
	if err := req.Validate(); err != nil {
		return model.Order{}, fmt.Errorf("fake: %w", err)
	}
	return model.Order{ID: int64(len(f.keys))}, nil
}

func (f *fakeCreator) calledKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// fakeReader отдаёт сообщения по очереди, потом ждёт отмены контекста
type fakeReader struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	next    int
	commits []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.msgs) {
		msg := r.msgs[r.next]
		r.next++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.commits = append(r.commits, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.commits...)
}

func newTestConsumer(reader messageReader, creator OrderCreator) *Consumer {
	return &Consumer{
		reader:          reader,
		service:         creator,
		log:             logger.Discard(),
		retryBackoff:    time.Millisecond,
		maxRetryBackoff: 4 * time.Millisecond,
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func intakeValue(t *testing.T, key string) []byte {
	t.Helper()
	raw, err := json.Marshal(model.IntakeMessage{
		IdempotencyKey: key,
		Order: model.CreateOrderRequest{
			Items:        []model.OrderItemRequest{{MenuItem: 1, Quantity: 1, Price: decimal.NewFromInt(100)}},
			RoomUniqueID: "r-1",
		},
	})
	require.NoError(t, err)
	return raw
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     kafka.Message
		err     error
		wantErr bool
		wantKey string
		calls   int
	}{
		{
			name:    "valid message",
			msg:     kafka.Message{Value: intakeValue(t, "kiosk-1")},
			wantKey: "kiosk-1",
			calls:   1,
		},
		{
			name:    "message key is the fallback idempotency key",
			msg:     kafka.Message{Key: []byte("msg-key"), Value: intakeValue(t, "")},
			wantKey: "msg-key",
			calls:   1,
		},
		{
			name:  "broken json is skipped",
			msg:   kafka.Message{Value: []byte("{oops")},
			calls: 0,
		},
		{
			name:  "invalid order is skipped",
			msg:   kafka.Message{Value: []byte(`{"idempotency_key": "k", "order": {"items": []}}`)},
			calls: 1,
		},
		{
			name:    "storage error is returned for retry",
			msg:     kafka.Message{Value: intakeValue(t, "kiosk-2")},
			err:     errors.New("db is down"),
			wantErr: true,
			wantKey: "kiosk-2",
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{err: tt.err}
			c := &Consumer{service: creator, log: logger.Discard()}

			err := c.handleMessage(context.Background(), tt.msg)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Len(t, creator.keys, tt.calls)
			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, creator.keys[0])
			}
		})
	}
}

func TestRun_RetriesTransientErrorBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 10, Value: intakeValue(t, "kiosk-1")},
		{Offset: 11, Value: intakeValue(t, "kiosk-2")},
	}}
	creator := &fakeCreator{failures: 2}
	c := newTestConsumer(reader, creator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	// первое сообщение обработано раньше второго, ни одно не потеряно
	assert.Equal(t, []string{"kiosk-1", "kiosk-1", "kiosk-1", "kiosk-2"}, creator.calledKeys())
	assert.Equal(t, []int64{10, 11}, reader.committed())
}

func TestRun_CancelDuringRetryDoesNotCommit(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 10, Value: intakeValue(t, "kiosk-1")},
		{Offset: 11, Value: intakeValue(t, "kiosk-2")},
	}}
	creator := &fakeCreator{err: errors.New("db is down")}
	c := newTestConsumer(reader, creator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(creator.calledKeys()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, reader.committed())
	for _, key := range creator.calledKeys() {
		assert.Equal(t, "kiosk-1", key)
	}
}

func TestRun_SkipsPoisonMessages(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("{oops")},
		{Offset: 2, Value: intakeValue(t, "kiosk-1")},
	}}
	creator := &fakeCreator{}
	c := newTestConsumer(reader, creator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2}, reader.committed())
	assert.Equal(t, []string{"kiosk-1"}, creator.calledKeys())
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, log: logger.Discard()}

	event := model.OrderEvent{
		OrderID:        42,
		Status:         model.StatusReady,
		PreviousStatus: model.StatusPreparing,
		TableUniqueID:  "t-1",
		OccurredAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.ready", string(msg.Headers[0].Value))

	var got model.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, event, got)
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("no brokers")}, log: logger.Discard()}

	err := p.Publish(context.Background(), model.OrderEvent{OrderID: 1})
	require.Error(t, err)
}
