package model

import (
	"fmt"
	"strings"
)

// OrderStatus — статус заказа
// прогрессия: pending -> preparing -> ready -> completed,
// cancelled достижим только из pending
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// TotalSteps — число шагов в индикаторе прогресса заказа
const TotalSteps = 4

// ParseOrderStatus приводит строку к OrderStatus
// регистр не важен, пустая строка считается pending
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if status == "" {
		return StatusPending, nil
	}

	switch status {
	case StatusPending, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return status, nil
	default:
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", s)}
	}
}

// Step возвращает порядковый шаг статуса (1-4) для индикатора прогресса
// нераспознанный статус (и cancelled) даёт 0
func (s OrderStatus) Step() int {
	switch s.normalize() {
	case "", StatusPending:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	case StatusCompleted:
		return 4
	default:
		return 0
	}
}

// IsTerminal сообщает, что из статуса больше нет переходов
func (s OrderStatus) IsTerminal() bool {
	n := s.normalize()
	return n == StatusCompleted || n == StatusCancelled
}

// CanTransitionTo проверяет допустимость перехода s -> next
// разрешено только движение вперёд по прогрессии, отмена — только из pending
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	from, to := s.normalize(), next.normalize()
	if from.IsTerminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return from == StatusPending || from == ""
	}

	fromStep, toStep := from.Step(), to.Step()
	return fromStep > 0 && toStep > fromStep
}

// normalize убирает пробелы и регистр, бэкенд может прислать "COMPLETED"
func (s OrderStatus) normalize() OrderStatus {
	return OrderStatus(strings.ToLower(strings.TrimSpace(string(s))))
}
