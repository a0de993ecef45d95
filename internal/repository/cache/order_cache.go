package cache

import (
	"sync"

	"github.com/asquebay/cafe-order-service/internal/model"
)

// OrderCache — потокобезопасный in-memory кэш для заказов
type OrderCache struct {
	// ключ — int64 (Order.ID), значение — model.Order
	storage sync.Map
}

// NewOrderCache создаёт новый экземпляр кэша
func NewOrderCache() *OrderCache {
	return &OrderCache{}
}

// Set добавляет или обновляет заказ в кэше
func (c *OrderCache) Set(order model.Order) {
	c.storage.Store(order.ID, order)
}

// Get извлекает заказ из кэша по его id
// возвращает заказ и true, если он найден, иначе — пустую структуру и false
func (c *OrderCache) Get(id int64) (model.Order, bool) {
	value, ok := c.storage.Load(id)
	if !ok {
		return model.Order{}, false
	}

	order, ok := value.(model.Order)
	return order, ok
}

// Delete убирает заказ из кэша, например после выставления счёта
func (c *OrderCache) Delete(id int64) {
	c.storage.Delete(id)
}

// LoadAll загружает в кэш срез заказов
// используется для первоначального заполнения кэша при старте сервиса
func (c *OrderCache) LoadAll(orders []model.Order) {
	for _, order := range orders {
		c.Set(order)
	}
}

// Len — число заказов в кэше
func (c *OrderCache) Len() int {
	n := 0
	c.storage.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
