// Package storage — клиентское key-value хранилище для корзины и флагов сессии
package storage

import "errors"

// KV — минимальный контракт хранилища строк по ключу
type KV interface {
	// Get возвращает значение и true, если ключ есть
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

var ErrInvalidKey = errors.New("invalid storage key")
