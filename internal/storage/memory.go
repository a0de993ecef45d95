package storage

import "sync"

// MemoryStore — потокобезопасное in-memory хранилище
// живёт, пока живёт процесс, поэтому годится для флагов сессии и тестов
type MemoryStore struct {
	// ключ — string, значение — string
	storage sync.Map
}

// NewMemoryStore создаёт пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	value, ok := m.storage.Load(key)
	if !ok {
		return "", false, nil
	}

	// безопасное приведение типа
	s, ok := value.(string)
	return s, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.storage.Store(key, value)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.storage.Delete(key)
	return nil
}
