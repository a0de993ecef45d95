// Package checkout превращает корзину в заказ на бэкенде
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/asquebay/cafe-order-service/internal/api"
	"github.com/asquebay/cafe-order-service/internal/cart"
	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPlacedFlagKey — ключ одноразового флага "заказ только что оформлен"
const OrderPlacedFlagKey = "order_placed"

// FallbackMessage показывается, если бэкенд не прислал своей причины
const FallbackMessage = "Failed to place order"

// RetryMessage — сеть или бэкенд временно недоступны, корзина цела и запрос можно повторить
const RetryMessage = "Failed to place order, please try again"

// ErrBusy — оформление уже идёт, повторное нажатие игнорируется
var ErrBusy = errors.New("order submission already in progress")

// OrderCreator — то, что умеет создать заказ на бэкенде
type OrderCreator interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest, idempotencyKey string) (model.Order, error)
}

// Result — итог успешного оформления
type Result struct {
	Order model.Order
	// TrackingURL ведёт на страницу отслеживания с тем же destination
	TrackingURL string
}

// Submitter оформляет заказ из корзины
type Submitter struct {
	cart    *cart.Store
	creator OrderCreator
	placed  *storage.Flag
	log     *slog.Logger

	// RequireDestination запрещает заказ без стола/номера
	RequireDestination bool

	busy atomic.Bool

	// ключ идемпотентности живёт, пока корзина не менялась,
	// чтобы повтор после сетевой ошибки не создал второй заказ
	mu          sync.Mutex
	keyRevision uint64
	key         string
}

// NewSubmitter создаёт Submitter
func NewSubmitter(c *cart.Store, creator OrderCreator, placed *storage.Flag, log *slog.Logger) *Submitter {
	return &Submitter{
		cart:    c,
		creator: creator,
		placed:  placed,
		log:     log,
	}
}

// InFlight сообщает, что оформление сейчас идёт (кнопку надо заблокировать)
func (s *Submitter) InFlight() bool {
	return s.busy.Load()
}

// Submit отправляет корзину на бэкенд
// пустая корзина — ValidationError без сетевого вызова;
// при ошибке бэкенда корзина не трогается, текст для пользователя даёт UserMessage
func (s *Submitter) Submit(ctx context.Context, dest model.Destination, instructions string) (Result, error) {
	const op = "checkout.Submitter.Submit"
	log := s.log.With(slog.String("op", op), slog.String("destination", dest.String()))

	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer s.busy.Store(false)

	if s.cart.TotalItems() == 0 {
		return Result{}, &model.ValidationError{Field: "items", Message: "cart is empty"}
	}
	if err := dest.Validate(); err != nil {
		return Result{}, err
	}
	if s.RequireDestination && dest.IsZero() {
		return Result{}, &model.ValidationError{Field: "destination", Message: "table or room is required"}
	}

	req, revision := s.buildRequest(dest, instructions)
	key := s.idempotencyKey(revision)

	log.Info("placing order", slog.Int("items", len(req.Items)), slog.String("total", req.TotalAmount.String()))

	order, err := s.creator.CreateOrder(ctx, req, key)
	if err != nil {
		log.Error("failed to place order", slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cart.Clear(); err != nil {
		// заказ уже создан, поэтому это не повод возвращать ошибку
		log.Error("failed to clear cart", slog.String("error", err.Error()))
	}
	if s.placed != nil {
		if err := s.placed.Raise(); err != nil {
			log.Warn("failed to raise order placed flag", slog.String("error", err.Error()))
		}
	}
	s.resetKey()

	log.Info("order placed", slog.Int64("order_id", order.ID))

	return Result{
		Order:       order,
		TrackingURL: TrackingURL(order.ID, dest),
	}, nil
}

// UserMessage — текст ошибки для пользователя
func UserMessage(err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrBusy) {
		return "Your order is being placed"
	}
	if api.IsRetryable(err) {
		return api.Describe(err, RetryMessage)
	}
	return api.Describe(err, FallbackMessage)
}

// TrackingURL — адрес страницы отслеживания заказа с тем же destination
func TrackingURL(orderID int64, dest model.Destination) string {
	return dest.Link("/order-tracking/" + strconv.FormatInt(orderID, 10))
}

func (s *Submitter) buildRequest(dest model.Destination, instructions string) (model.CreateOrderRequest, uint64) {
	snap := s.cart.Snapshot()
	entries := snap.Entries

	req := model.CreateOrderRequest{
		Items:               make([]model.OrderItemRequest, 0, len(entries)),
		TableUniqueID:       dest.TableUniqueID,
		RoomUniqueID:        dest.RoomUniqueID,
		SpecialInstructions: instructions,
	}

	for _, e := range entries {
		line := model.OrderItemRequest{
			MenuItem: e.ItemID,
			Quantity: e.Quantity,
			Price:    priceOf(e),
		}
		req.Items = append(req.Items, line)
	}
	// итог считается по тем же ценам, что уходят в позициях, и совпадёт с пересчётом на бэкенде
	req.TotalAmount = req.ComputeTotal()

	return req, snap.Revision
}

func (s *Submitter) idempotencyKey(revision uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == "" || s.keyRevision != revision {
		s.key = uuid.NewString()
		s.keyRevision = revision
	}
	return s.key
}

func (s *Submitter) resetKey() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = ""
}

func priceOf(e cart.Entry) decimal.Decimal {
	p, err := decimal.NewFromString(e.UnitPrice)
	if err != nil {
		return decimal.Zero
	}
	return p
}
