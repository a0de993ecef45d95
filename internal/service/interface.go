package service

import (
	"context"
	"time"

	"github.com/asquebay/cafe-order-service/internal/model"
)

// OrderRepository определяет контракт для хранилища заказов и счетов в БД
type OrderRepository interface {
	CreateOrder(ctx context.Context, order model.Order, idempotencyKey string) (model.Order, bool, error)
	GetOrderByID(ctx context.Context, id int64) (model.Order, error)
	GetOpenOrders(ctx context.Context) ([]model.Order, error)
	ListActiveOrders(ctx context.Context, dest model.Destination) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to model.OrderStatus) (model.Order, error)
	CreateBill(ctx context.Context, dest model.Destination, now time.Time) (model.Bill, error)
	ListBills(ctx context.Context, dest model.Destination) ([]model.Bill, error)
}

// MenuRepository определяет контракт для чтения меню
type MenuRepository interface {
	ListMenu(ctx context.Context) ([]model.MenuItem, error)
	GetMenuItems(ctx context.Context, ids []int64) (map[int64]model.MenuItem, error)
}

// OrderCache определяет контракт для in-memory кэша заказов
type OrderCache interface {
	Set(order model.Order)
	Get(id int64) (model.Order, bool)
	Delete(id int64)
	LoadAll(orders []model.Order)
}

// EventPublisher публикует события о заказах
type EventPublisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}
