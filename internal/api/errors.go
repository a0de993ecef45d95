package api

import (
	"errors"
	"fmt"
)

// NetworkError — запрос не дошёл до бэкенда или не уложился в таймаут
// состояние корзины и заказа при этом не меняется, запрос можно повторить
type NetworkError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary — сетевые ошибки всегда можно повторить
func (e *NetworkError) Temporary() bool { return true }

// NotFoundError — бэкенд ответил 404
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// BackendError — любой другой не-2xx ответ
// Message — текст ошибки от сервера, может быть пустым
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Describe возвращает текст для пользователя: сообщение бэкенда как есть, если оно есть,
// иначе fallback
func Describe(err error, fallback string) string {
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	return fallback
}

// IsRetryable сообщает, что запрос имеет смысл повторить
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var backendErr *BackendError
	return errors.As(err, &backendErr) && backendErr.StatusCode >= 500
}
