package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/repository/postgres"
)

// ErrInvalidTransition — запрошенная смена статуса не разрешена
var ErrInvalidTransition = errors.New("invalid status transition")

// OrderService инкапсулирует бизнес-логику работы с заказами
type OrderService struct {
	repo   OrderRepository
	menu   MenuRepository
	cache  OrderCache
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

// NewOrderService создаёт новый экземпляр сервиса заказов
// events может быть nil, тогда события не публикуются
func NewOrderService(repo OrderRepository, menu MenuRepository, cache OrderCache, events EventPublisher, log *slog.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		menu:   menu,
		cache:  cache,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// CreateOrder проверяет запрос, сверяет позиции с меню и сохраняет заказ
// повтор с тем же ключом идемпотентности возвращает уже созданный заказ
func (s *OrderService) CreateOrder(ctx context.Context, req model.CreateOrderRequest, idempotencyKey string) (model.Order, error) {
	const op = "service.OrderService.CreateOrder"
	log := s.log.With(slog.String("op", op), slog.String("destination", req.Destination().String()))

	if err := req.Validate(); err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	// 1. Сверяем позиции с меню
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	total := model.SumLineItems(items)
	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(total) {
		return model.Order{}, fmt.Errorf("%s: %w", op, &model.ValidationError{
			Field:   "total_amount",
			Message: fmt.Sprintf("total %s does not match items total %s", req.TotalAmount, total),
		})
	}

	itemsJSON, err := model.EncodeItems(items)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to encode items: %w", op, err)
	}

	dest := req.Destination()
	order := model.Order{
		ItemsJSON:           itemsJSON,
		TableUniqueID:       dest.TableUniqueID,
		RoomUniqueID:        dest.RoomUniqueID,
		OrderType:           dest.OrderType(),
		Status:              model.StatusPending,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		TotalAmount:         total,
		EstimatedTime:       model.DefaultEstimatedTime,
	}

	// 2. Сохраняем в БД. Это основной источник правды
	stored, created, err := s.repo.CreateOrder(ctx, order, idempotencyKey)
	if err != nil {
		log.Error("failed to save order to repository", slog.String("error", err.Error()))
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	// 3. Если в БД сохранилось успешно, обновляем кэш
	s.cache.Set(stored)

	if !created {
		log.Info("duplicate submission, returning existing order", slog.Int64("order_id", stored.ID))
		return stored, nil
	}

	log.Info("order created", slog.Int64("order_id", stored.ID), slog.String("total", stored.TotalAmount.String()))
	s.publish(ctx, log, model.NewOrderEvent(stored, "", s.now()))

	return stored, nil
}

// GetOrder получает заказ по его ID
// сначала ищет в кэше, и только если там нет — обращается к БД
func (s *OrderService) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	const op = "service.OrderService.GetOrder"
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", id))

	// 1. Пытаемся получить из кэша
	order, found := s.cache.Get(id)
	if found {
		log.Debug("order found in cache")
		return order, nil
	}

	log.Debug("order not found in cache, will check repository")

	// 2. Если в кэше нет, идем в БД
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		// не логируем как ошибку, если просто не найдено
		if !errors.Is(err, postgres.ErrOrderNotFound) {
			log.Error("failed to get order from repository", slog.String("error", err.Error()))
		}
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	// 3. Раз уж мы достали заказ из БД, стоит положить его в кэш
	s.cache.Set(order)
	log.Debug("order found in repository and now cached")

	return order, nil
}

// ListActiveOrders возвращает неоплаченные и неотменённые заказы стола или номера
func (s *OrderService) ListActiveOrders(ctx context.Context, dest model.Destination) ([]model.Order, error) {
	const op = "service.OrderService.ListActiveOrders"

	if err := dest.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	orders, err := s.repo.ListActiveOrders(ctx, dest)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// UpdateStatus переводит заказ в новый статус
// разрешено только движение вперёд, отмена — только из pending
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status string) (model.Order, error) {
	const op = "service.OrderService.UpdateStatus"
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", id))

	next, err := model.ParseOrderStatus(status)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	from := current.Status
	if from == "" {
		from = model.StatusPending
	}
	if !from.CanTransitionTo(next) {
		return model.Order{}, fmt.Errorf("%s: %w: %s -> %s", op, ErrInvalidTransition, from, next)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, from, next)
	if err != nil {
		if errors.Is(err, postgres.ErrStatusConflict) {
			// в кэше устаревший статус
			s.cache.Delete(id)
			return model.Order{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidTransition, err)
		}
		if !errors.Is(err, postgres.ErrOrderNotFound) {
			log.Error("failed to update order status", slog.String("error", err.Error()))
		}
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	s.cache.Set(updated)
	log.Info("order status changed", slog.String("from", string(from)), slog.String("to", string(next)))
	s.publish(ctx, log, model.NewOrderEvent(updated, from, s.now()))

	return updated, nil
}

// ListMenu возвращает меню
func (s *OrderService) ListMenu(ctx context.Context) ([]model.MenuItem, error) {
	const op = "service.OrderService.ListMenu"

	items, err := s.menu.ListMenu(ctx)
	if err != nil {
		s.log.Error("failed to list menu", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// GenerateBill закрывает все неоплаченные заказы стола или номера одним счётом
func (s *OrderService) GenerateBill(ctx context.Context, dest model.Destination) (model.Bill, error) {
	const op = "service.OrderService.GenerateBill"
	log := s.log.With(slog.String("op", op), slog.String("destination", dest.String()))

	if err := dest.Validate(); err != nil {
		return model.Bill{}, fmt.Errorf("%s: %w", op, err)
	}
	if dest.IsZero() {
		return model.Bill{}, fmt.Errorf("%s: %w", op, &model.ValidationError{Field: "destination", Message: "table or room is required"})
	}

	bill, err := s.repo.CreateBill(ctx, dest, s.now())
	if err != nil {
		if !errors.Is(err, postgres.ErrNothingToBill) {
			log.Error("failed to create bill", slog.String("error", err.Error()))
		}
		return model.Bill{}, fmt.Errorf("%s: %w", op, err)
	}

	// оплаченные заказы в кэше больше не нужны
	for _, id := range bill.OrderIDs {
		s.cache.Delete(id)
	}

	log.Info("bill generated",
		slog.Int64("bill_id", bill.ID),
		slog.Int("orders", len(bill.OrderIDs)),
		slog.String("total", bill.BillTotal.String()),
	)
	return bill, nil
}

// ListBills возвращает счета стола или номера
func (s *OrderService) ListBills(ctx context.Context, dest model.Destination) ([]model.Bill, error) {
	const op = "service.OrderService.ListBills"

	if err := dest.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bills, err := s.repo.ListBills(ctx, dest)
	if err != nil {
		s.log.Error("failed to list bills", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bills, nil
}

// RestoreCache восстанавливает состояние кэша из базы данных при старте
func (s *OrderService) RestoreCache(ctx context.Context) error {
	const op = "service.OrderService.RestoreCache"
	log := s.log.With(slog.String("op", op))

	log.Info("starting cache restoration from database")

	orders, err := s.repo.GetOpenOrders(ctx)
	if err != nil {
		log.Error("failed to get open orders from repository", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.cache.LoadAll(orders)

	log.Info("cache restored successfully", slog.Int("orders_count", len(orders)))
	return nil
}

// resolveItems сводит одинаковые позиции и берёт названия из меню
// цену оставляем из запроса: это цена на момент заказа
func (s *OrderService) resolveItems(ctx context.Context, reqItems []model.OrderItemRequest) ([]model.LineItem, error) {
	type merged struct {
		index int
		item  model.OrderItemRequest
	}

	order := make([]int64, 0, len(reqItems))
	byID := make(map[int64]*merged, len(reqItems))
	for i, it := range reqItems {
		if m, ok := byID[it.MenuItem]; ok {
			m.item.Quantity += it.Quantity
			continue
		}
		byID[it.MenuItem] = &merged{index: i, item: it}
		order = append(order, it.MenuItem)
	}

	menu, err := s.menu.GetMenuItems(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}

	items := make([]model.LineItem, 0, len(order))
	for _, id := range order {
		m := byID[id]
		mi, ok := menu[id]
		if !ok {
			return nil, &model.ValidationError{
				Field:   fmt.Sprintf("items[%d].menu_item", m.index),
				Message: fmt.Sprintf("menu item %d does not exist", id),
			}
		}
		if !mi.IsAvailable {
			return nil, &model.ValidationError{
				Field:   fmt.Sprintf("items[%d].menu_item", m.index),
				Message: fmt.Sprintf("%s is unavailable", mi.Name),
			}
		}
		items = append(items, model.NewLineItem(id, mi.Name, m.item.Quantity, m.item.Price))
	}
	return items, nil
}

func (s *OrderService) publish(ctx context.Context, log *slog.Logger, event model.OrderEvent) {
	if s.events == nil {
		return
	}
	// заказ уже сохранён, сбой публикации только логируем
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn("failed to publish order event", slog.String("error", err.Error()))
	}
}
