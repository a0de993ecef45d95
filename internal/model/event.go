package model

import "time"

// OrderEvent публикуется при создании заказа и каждой смене статуса
type OrderEvent struct {
	OrderID        int64       `json:"order_id"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	TableUniqueID  string      `json:"table_unique_id,omitempty"`
	RoomUniqueID   string      `json:"room_unique_id,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// NewOrderEvent собирает событие по заказу
func NewOrderEvent(o Order, previous OrderStatus, now time.Time) OrderEvent {
	return OrderEvent{
		OrderID:        o.ID,
		Status:         o.Status,
		PreviousStatus: previous,
		TableUniqueID:  o.TableUniqueID,
		RoomUniqueID:   o.RoomUniqueID,
		OccurredAt:     now,
	}
}

// IntakeMessage — сообщение о заказе из внешнего канала (киоск, агрегатор) через кафку
type IntakeMessage struct {
	IdempotencyKey string             `json:"idempotency_key"`
	Order          CreateOrderRequest `json:"order"`
}
