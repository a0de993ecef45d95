package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asquebay/cafe-order-service/internal/lib/logger"
	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, timeout, logger.Discard())
	require.NoError(t, err)
	return c
}

func TestClient_CreateOrder(t *testing.T) {
	var gotKey string
	var gotReq model.CreateOrderRequest

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		gotKey = r.Header.Get(IdempotencyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 41, "status": "pending", "table_unique_id": "t1", "total_amount": "450"}`))
	}), 0)

	req := model.CreateOrderRequest{
		Items:         []model.OrderItemRequest{{MenuItem: 1, Quantity: 2, Price: decimal.NewFromInt(225)}},
		TableUniqueID: "t1",
		TotalAmount:   decimal.NewFromInt(450),
	}
	order, err := c.CreateOrder(context.Background(), req, "key-1")

	require.NoError(t, err)
	assert.Equal(t, int64(41), order.ID)
	assert.Equal(t, model.StatusPending, order.Status)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "t1", gotReq.TableUniqueID)
	assert.True(t, decimal.NewFromInt(450).Equal(gotReq.TotalAmount))
}

func TestClient_ListOrdersSendsDestination(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "r-9", r.URL.Query().Get("room_unique_id"))
		assert.Empty(t, r.URL.Query().Get("table_unique_id"))
		_, _ = w.Write([]byte(`[{"id": 1}, {"id": 2}]`))
	}), 0)

	orders, err := c.ListOrders(context.Background(), model.Destination{RoomUniqueID: "r-9"})
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error": "order not found"}`,
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "order", nf.Resource)
			},
		},
		{
			name:   "backend message",
			status: http.StatusBadRequest,
			body:   `{"error": "Table is closed"}`,
			check: func(t *testing.T, err error) {
				var be *BackendError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, http.StatusBadRequest, be.StatusCode)
				assert.Equal(t, "Table is closed", Describe(err, "Failed"))
				assert.False(t, IsRetryable(err))
			},
		},
		{
			name:   "no message",
			status: http.StatusInternalServerError,
			body:   `<html>oops</html>`,
			check: func(t *testing.T, err error) {
				var be *BackendError
				require.ErrorAs(t, err, &be)
				assert.Empty(t, be.Message)
				assert.Equal(t, "Failed", Describe(err, "Failed"))
				assert.True(t, IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), 0)

			_, err := c.GetOrder(context.Background(), 5)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), 50*time.Millisecond)
	defer close(release)

	_, err := c.ListMenu(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "Failed to load menu", Describe(err, "Failed to load menu"))
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second, logger.Discard())
	require.NoError(t, err)

	_, err = c.GetOrder(context.Background(), 1)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient("localhost:8080", 0, logger.Discard())
	require.Error(t, err)
}
