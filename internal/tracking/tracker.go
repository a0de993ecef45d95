// Package tracking показывает текущий статус заказа и его прогресс
// клиент статус только читает, переходы делает бэкенд
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asquebay/cafe-order-service/internal/api"
	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrRetrieval     = errors.New("failed to load order")
	ErrInvalidLink   = errors.New("invalid tracking link")
)

// тексты ошибок для пользователя
const (
	NotFoundMessage  = "Order not found"
	RetrievalMessage = "Failed to load order details"
	RetryMessage     = "Failed to load order details, please try again"
)

// UserMessage — текст ошибки Fetch/Watch для пользователя
// при сетевом сбое подсказывает, что запрос можно повторить
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return NotFoundMessage
	case api.IsRetryable(err):
		return RetryMessage
	default:
		return RetrievalMessage
	}
}

// OrderFetcher — то, что умеет получить заказ по id
type OrderFetcher interface {
	GetOrder(ctx context.Context, id int64) (model.Order, error)
}

// View — всё, что нужно для экрана отслеживания
type View struct {
	OrderID             int64
	Status              model.OrderStatus
	Step                int
	TotalSteps          int
	Terminal            bool
	Items               []model.LineItem
	ItemsTotal          decimal.Decimal
	Total               decimal.Decimal
	Destination         model.Destination
	SpecialInstructions string
	EstimatedMinutes    int
	CreatedAt           time.Time
}

// Tracker читает заказ с бэкенда
type Tracker struct {
	fetcher OrderFetcher
	log     *slog.Logger
}

func NewTracker(fetcher OrderFetcher, log *slog.Logger) *Tracker {
	return &Tracker{fetcher: fetcher, log: log}
}

// Fetch получает заказ и собирает View
// 404 превращается в ErrOrderNotFound, любая другая ошибка оборачивается в ErrRetrieval
func (t *Tracker) Fetch(ctx context.Context, id int64) (View, error) {
	const op = "tracking.Tracker.Fetch"

	order, err := t.fetcher.GetOrder(ctx, id)
	if err != nil {
		var nf *api.NotFoundError
		if errors.As(err, &nf) {
			return View{}, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		t.log.Error("failed to fetch order",
			slog.String("op", op),
			slog.Int64("order_id", id),
			slog.String("error", err.Error()),
		)
		return View{}, fmt.Errorf("%s: %w: %w", op, ErrRetrieval, err)
	}

	return NewView(order), nil
}

// NewView собирает View из заказа
// битый items_json даёт пустой список позиций, а не ошибку
func NewView(order model.Order) View {
	status := order.Status
	if status == "" {
		status = model.StatusPending
	}

	decoded := order.Items()
	estimated := order.EstimatedTime
	if estimated <= 0 {
		estimated = model.DefaultEstimatedTime
	}

	return View{
		OrderID:             order.ID,
		Status:              status,
		Step:                status.Step(),
		TotalSteps:          model.TotalSteps,
		Terminal:            status.IsTerminal(),
		Items:               decoded.Items,
		ItemsTotal:          decoded.Total(),
		Total:               order.TotalAmount,
		Destination:         order.Destination(),
		SpecialInstructions: order.SpecialInstructions,
		EstimatedMinutes:    estimated,
		CreatedAt:           order.CreatedAt,
	}
}

// Watch опрашивает заказ с интервалом и отдаёт каждый результат в fn
// останавливается при отмене ctx, при терминальном статусе или если заказ не найден;
// таймер гасится при выходе, висящих таймеров не остаётся
func (t *Tracker) Watch(ctx context.Context, id int64, interval time.Duration, fn func(View, error)) error {
	const op = "tracking.Tracker.Watch"

	if interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", op)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := t.Fetch(ctx, id)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fn(view, err)

		switch {
		case errors.Is(err, ErrOrderNotFound):
			return err
		case err == nil && view.Terminal:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ParseTrackingLink разбирает ссылку вида /order-tracking/{id}?table=... обратно
// в id заказа и destination
func ParseTrackingLink(link string) (int64, model.Destination, error) {
	u, err := url.Parse(link)
	if err != nil {
		return 0, model.Destination{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	const prefix = "/order-tracking/"
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasPrefix(path, prefix) {
		return 0, model.Destination{}, fmt.Errorf("%w: unexpected path %q", ErrInvalidLink, u.Path)
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Destination{}, fmt.Errorf("%w: invalid order id", ErrInvalidLink)
	}

	dest, err := model.DestinationFromQuery(u.Query())
	if err != nil {
		return 0, model.Destination{}, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}
	return id, dest, nil
}
