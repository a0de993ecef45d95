// Package cart — локальная корзина клиента: позиции меню и их количество
package cart

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/storage"

	"github.com/shopspring/decimal"
)

// StorageKey — фиксированный ключ, под которым корзина лежит в хранилище
const StorageKey = "cart"

// Entry — позиция корзины
// Quantity всегда >= 1: позиция с нулевым количеством удаляется
type Entry struct {
	ItemID    int64  `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal — UnitPrice * Quantity
func (e Entry) LineTotal() decimal.Decimal {
	return parsePrice(e.UnitPrice).Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Store держит корзину в памяти и после каждой мутации синхронно сохраняет её целиком
// корзина одна на клиента и не делится по столам/номерам
type Store struct {
	mu       sync.Mutex
	kv       storage.KV
	entries  map[int64]Entry
	revision uint64
}

// NewStore создаёт корзину поверх хранилища и сразу загружает сохранённое состояние
func NewStore(kv storage.KV) (*Store, error) {
	s := &Store{kv: kv, entries: make(map[int64]Entry)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load перечитывает корзину из хранилища и нормализует её
// битые данные превращаются в пустую корзину, ошибкой считается только сбой самого хранилища
func (s *Store) Load() error {
	const op = "cart.Store.Load"

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return fmt.Errorf("%s: failed to read cart: %w", op, err)
	}

	s.revision++
	if !ok {
		s.entries = make(map[int64]Entry)
		return nil
	}

	entries, valid := normalize(raw)
	s.entries = entries
	if !valid {
		// самолечение: затираем испорченное значение пустой корзиной
		return s.persist()
	}
	return nil
}

// Add добавляет позицию меню: существующая получает +1, имя и цена не меняются
// позиция без положительного id не пережила бы Load, поэтому отклоняется
func (s *Store) Add(item model.MenuItem) error {
	if item.ID <= 0 {
		return &model.ValidationError{Field: "id", Message: fmt.Sprintf("invalid menu item id %d", item.ID)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[item.ID]; ok {
		e.Quantity++
		s.entries[item.ID] = e
	} else {
		s.entries[item.ID] = Entry{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price.String(),
			Quantity:  1,
		}
	}
	return s.commit()
}

// Decrement уменьшает количество на 1 и удаляет позицию, если оно дошло до нуля
func (s *Store) Decrement(itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[itemID]
	if !ok {
		return nil
	}

	e.Quantity--
	if e.Quantity <= 0 {
		delete(s.entries, itemID)
	} else {
		s.entries[itemID] = e
	}
	return s.commit()
}

// Remove — синоним Decrement
func (s *Store) Remove(itemID int64) error {
	return s.Decrement(itemID)
}

// SetQuantity задаёт количество; n <= 0 удаляет позицию
// для позиции, которой нет в корзине, ничего не делает
func (s *Store) SetQuantity(itemID int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[itemID]
	if !ok {
		return nil
	}

	if n <= 0 {
		delete(s.entries, itemID)
	} else {
		e.Quantity = n
		s.entries[itemID] = e
	}
	return s.commit()
}

// Clear очищает корзину и удаляет сохранённое состояние
func (s *Store) Clear() error {
	const op = "cart.Store.Clear"

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64]Entry)
	s.revision++
	if err := s.kv.Delete(StorageKey); err != nil {
		return fmt.Errorf("%s: failed to delete cart: %w", op, err)
	}
	return nil
}

// TotalItems — сумма количеств
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, e := range s.entries {
		total += e.Quantity
	}
	return total
}

// TotalPrice — сумма UnitPrice * Quantity, цена парсится как десятичное число
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, e := range s.entries {
		total = total.Add(e.LineTotal())
	}
	return total
}

// Quantity возвращает количество позиции или 0
func (s *Store) Quantity(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entries[itemID].Quantity
}

// Entries возвращает копию позиций, отсортированную по id
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedEntries()
}

// Snapshot — позиции и ревизия, прочитанные под одной блокировкой
type Snapshot struct {
	Entries  []Entry
	Revision uint64
}

// Snapshot возвращает согласованные позиции и ревизию
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{Entries: s.sortedEntries(), Revision: s.revision}
}

func (s *Store) sortedEntries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Revision меняется при каждой мутации и перезагрузке корзины
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision
}

func (s *Store) commit() error {
	s.revision++
	return s.persist()
}

// persist вызывается под мьютексом
func (s *Store) persist() error {
	const op = "cart.Store.persist"

	encoded := make(map[string]Entry, len(s.entries))
	for id, e := range s.entries {
		encoded[strconv.FormatInt(id, 10)] = e
	}

	raw, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal cart: %w", op, err)
	}
	if err := s.kv.Set(StorageKey, string(raw)); err != nil {
		return fmt.Errorf("%s: failed to save cart: %w", op, err)
	}
	return nil
}

// storedEntry — сохранённая позиция, указатели отличают отсутствующее поле от нулевого
type storedEntry struct {
	ItemID    *int64          `json:"id"`
	Name      *string         `json:"name"`
	UnitPrice json.RawMessage `json:"price"`
	Quantity  *int            `json:"quantity"`
}

// normalize разбирает сохранённую корзину
// valid=false означает, что JSON не разобрался и корзина сброшена
func normalize(raw string) (map[int64]Entry, bool) {
	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return make(map[int64]Entry), false
	}

	entries := make(map[int64]Entry, len(stored))
	for key, rawEntry := range stored {
		var se storedEntry
		if err := json.Unmarshal(rawEntry, &se); err != nil {
			continue
		}

		var id int64
		if se.ItemID != nil {
			id = *se.ItemID
		} else {
			parsed, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			id = parsed
		}
		if id <= 0 {
			continue
		}

		quantity := 1
		if se.Quantity != nil {
			quantity = *se.Quantity
		}
		if quantity <= 0 {
			continue
		}

		e := Entry{ItemID: id, Quantity: quantity, UnitPrice: "0"}
		if se.Name != nil {
			e.Name = *se.Name
		}
		if price, ok := storedPrice(se.UnitPrice); ok {
			e.UnitPrice = price
		}

		// одинаковый id под разными ключами складываем
		if prev, ok := entries[id]; ok {
			prev.Quantity += e.Quantity
			e = prev
		}
		entries[id] = e
	}

	return entries, true
}

// storedPrice принимает цену строкой или числом и возвращает её текст без изменений
func storedPrice(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	s := string(raw)
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		s = quoted
	}

	if _, err := decimal.NewFromString(s); err != nil {
		return "", false
	}
	return s, true
}

func parsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
