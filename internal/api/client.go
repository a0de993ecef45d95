// Package api — HTTP-клиент к REST API кафе
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asquebay/cafe-order-service/internal/model"
)

// DefaultTimeout — верхняя граница на любой запрос к бэкенду
const DefaultTimeout = 30 * time.Second

// IdempotencyHeader — заголовок с ключом идемпотентности для POST /orders
const IdempotencyHeader = "Idempotency-Key"

// Client обращается к бэкенду по REST
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
}

// NewClient создаёт клиента; timeout <= 0 означает DefaultTimeout
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	const op = "api.NewClient"

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base url: %w", op, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: base url must be absolute: %q", op, baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

// ListMenu — GET /menu
func (c *Client) ListMenu(ctx context.Context) ([]model.MenuItem, error) {
	var items []model.MenuItem
	err := c.do(ctx, "api.Client.ListMenu", http.MethodGet, "/menu", nil, nil, nil, "menu", &items)
	return items, err
}

// CreateOrder — POST /orders
// idempotencyKey может быть пустым
func (c *Client) CreateOrder(ctx context.Context, req model.CreateOrderRequest, idempotencyKey string) (model.Order, error) {
	var headers http.Header
	if idempotencyKey != "" {
		headers = http.Header{IdempotencyHeader: {idempotencyKey}}
	}

	var order model.Order
	err := c.do(ctx, "api.Client.CreateOrder", http.MethodPost, "/orders", nil, headers, req, "order", &order)
	return order, err
}

// GetOrder — GET /orders/{id}
func (c *Client) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	var order model.Order
	path := "/orders/" + strconv.FormatInt(id, 10)
	err := c.do(ctx, "api.Client.GetOrder", http.MethodGet, path, nil, nil, nil, "order", &order)
	return order, err
}

// ListOrders — GET /orders?table_unique_id= | ?room_unique_id=
func (c *Client) ListOrders(ctx context.Context, dest model.Destination) ([]model.Order, error) {
	var orders []model.Order
	err := c.do(ctx, "api.Client.ListOrders", http.MethodGet, "/orders", destinationQuery(dest), nil, nil, "orders", &orders)
	return orders, err
}

// UpdateOrderStatus — PATCH /orders/{id}
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	var order model.Order
	path := "/orders/" + strconv.FormatInt(id, 10)
	body := model.UpdateStatusRequest{Status: string(status)}
	err := c.do(ctx, "api.Client.UpdateOrderStatus", http.MethodPatch, path, nil, nil, body, "order", &order)
	return order, err
}

// GenerateBill — POST /bills, закрывает все неоплаченные заказы destination
func (c *Client) GenerateBill(ctx context.Context, dest model.Destination) (model.Bill, error) {
	var bill model.Bill
	err := c.do(ctx, "api.Client.GenerateBill", http.MethodPost, "/bills", nil, nil, dest, "bill", &bill)
	return bill, err
}

// ListBills — GET /bills?table_unique_id= | ?room_unique_id=
func (c *Client) ListBills(ctx context.Context, dest model.Destination) ([]model.Bill, error) {
	var bills []model.Bill
	err := c.do(ctx, "api.Client.ListBills", http.MethodGet, "/bills", destinationQuery(dest), nil, nil, "bills", &bills)
	return bills, err
}

func destinationQuery(dest model.Destination) url.Values {
	q := url.Values{}
	if dest.TableUniqueID != "" {
		q.Set("table_unique_id", dest.TableUniqueID)
	}
	if dest.RoomUniqueID != "" {
		q.Set("room_unique_id", dest.RoomUniqueID)
	}
	return q
}

// do выполняет запрос и раскладывает ответ по таксономии ошибок:
// NetworkError, NotFoundError, BackendError
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, headers http.Header, body any, resource string, out any) error {
	log := c.log.With(slog.String("op", op), slog.String("method", method), slog.String("path", path))

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", slog.String("error", err.Error()))
		return &NetworkError{Op: op, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	log.Debug("response received",
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err, Timeout: isTimeout(err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: resource}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &BackendError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// errorMessage достаёт поле error из тела ответа, если оно там есть
func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
