package cart

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuItem(id int64, name, price string) model.MenuItem {
	return model.MenuItem{ID: id, Name: name, Price: decimal.RequireFromString(price), IsAvailable: true}
}

func newStore(t *testing.T, kv storage.KV) *Store {
	t.Helper()
	s, err := NewStore(kv)
	require.NoError(t, err)
	return s
}

func TestStore_Totals(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	itemA := menuItem(1, "Paneer Tikka", "100")
	itemB := menuItem(2, "Biryani", "250")

	require.NoError(t, s.Add(itemA))
	require.NoError(t, s.Add(itemA))
	require.NoError(t, s.Add(itemB))

	assert.Equal(t, 3, s.TotalItems())
	assert.True(t, decimal.NewFromInt(450).Equal(s.TotalPrice()), s.TotalPrice().String())
}

func TestStore_FractionalPrices(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	coffee := menuItem(1, "Coffee", "0.10")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add(coffee))
	}

	assert.Equal(t, "0.3", s.TotalPrice().String())
}

func TestStore_AddKeepsRecordedNameAndPrice(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())

	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))
	require.NoError(t, s.Add(menuItem(1, "Masala Tea", "35")))

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{ItemID: 1, Name: "Tea", UnitPrice: "20", Quantity: 2}, entries[0])
}

func TestStore_DecrementRemovesEntry(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())

	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))
	require.NoError(t, s.Decrement(1))
	require.NoError(t, s.Decrement(1))

	assert.Empty(t, s.Entries())
	assert.Equal(t, 0, s.Quantity(1))
	assert.Equal(t, 0, s.TotalItems())
}

func TestStore_SetQuantity(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))

	require.NoError(t, s.SetQuantity(1, 5))
	assert.Equal(t, 5, s.Quantity(1))

	require.NoError(t, s.SetQuantity(1, 0))
	assert.Empty(t, s.Entries())

	require.NoError(t, s.SetQuantity(42, 3))
	assert.Empty(t, s.Entries())
}

func TestStore_RandomSequencesKeepInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	items := []model.MenuItem{
		menuItem(1, "Tea", "12.5"),
		menuItem(2, "Samosa", "30"),
		menuItem(3, "Lassi", "45.75"),
	}

	for round := 0; round < 50; round++ {
		s := newStore(t, storage.NewMemoryStore())

		for step := 0; step < 40; step++ {
			item := items[rnd.Intn(len(items))]
			if rnd.Intn(3) == 0 {
				require.NoError(t, s.Remove(item.ID))
			} else {
				require.NoError(t, s.Add(item))
			}
		}

		sum := 0
		for _, e := range s.Entries() {
			assert.Greater(t, e.Quantity, 0)
			sum += e.Quantity
		}
		assert.Equal(t, sum, s.TotalItems())
	}
}

func TestStore_TotalPriceIndependentOfOrder(t *testing.T) {
	tea := menuItem(1, "Tea", "12.5")
	samosa := menuItem(2, "Samosa", "30.25")

	first := newStore(t, storage.NewMemoryStore())
	require.NoError(t, first.Add(tea))
	require.NoError(t, first.Add(tea))
	require.NoError(t, first.Add(samosa))

	second := newStore(t, storage.NewMemoryStore())
	require.NoError(t, second.Add(samosa))
	require.NoError(t, second.Add(samosa))
	require.NoError(t, second.Add(tea))
	require.NoError(t, second.Decrement(samosa.ID))
	require.NoError(t, second.Add(tea))

	assert.True(t, first.TotalPrice().Equal(second.TotalPrice()))
}

func TestStore_PersistReloadRoundTrip(t *testing.T) {
	kv := storage.NewMemoryStore()
	s := newStore(t, kv)

	require.NoError(t, s.Add(menuItem(1, "Tea", "20.50")))
	require.NoError(t, s.Add(menuItem(1, "Tea", "20.50")))
	require.NoError(t, s.Add(menuItem(9, "Cake", "99")))

	reloaded := newStore(t, kv)
	assert.Equal(t, s.Entries(), reloaded.Entries())
	assert.Equal(t, "20.5", reloaded.Entries()[0].UnitPrice)
}

func TestStore_AddRejectsNonPositiveID(t *testing.T) {
	kv := storage.NewMemoryStore()
	s := newStore(t, kv)
	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))
	revision := s.Revision()

	for _, id := range []int64{0, -3} {
		err := s.Add(menuItem(id, "Ghost", "10"))
		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "id", verr.Field)
	}

	// корзина в памяти и после перезагрузки совпадает
	assert.Equal(t, 1, s.TotalItems())
	assert.Equal(t, revision, s.Revision())
	reloaded := newStore(t, kv)
	assert.Equal(t, s.Entries(), reloaded.Entries())
}

func TestStore_SnapshotMatchesEntriesAndRevision(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	require.NoError(t, s.Add(menuItem(2, "Samosa", "30")))
	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))

	snap := s.Snapshot()
	assert.Equal(t, s.Entries(), snap.Entries)
	assert.Equal(t, s.Revision(), snap.Revision)
	assert.Equal(t, int64(1), snap.Entries[0].ItemID)

	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))
	assert.NotEqual(t, snap.Revision, s.Snapshot().Revision)
	// снимок не меняется вслед за корзиной
	assert.Equal(t, 1, snap.Entries[0].Quantity)
}

func TestStore_MalformedStorageLoadsEmpty(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(StorageKey, `{"1": {"id": 1, "name": "Tea"`))

	s := newStore(t, kv)

	assert.Empty(t, s.Entries())
	assert.Equal(t, 0, s.TotalItems())

	raw, ok, err := kv.Get(StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, raw)
}

func TestStore_NormalizesPartialEntries(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(StorageKey, `{
		"1": {"name": "Tea", "price": "20", "quantity": 2},
		"2": {"id": 2, "price": 15},
		"3": {"id": 3, "name": "Broken", "price": "abc", "quantity": 1},
		"4": {"id": 4, "name": "Zero", "price": "5", "quantity": 0},
		"x": {"name": "No id"},
		"5": "garbage"
	}`))

	s := newStore(t, kv)

	assert.Equal(t, []Entry{
		{ItemID: 1, Name: "Tea", UnitPrice: "20", Quantity: 2},
		{ItemID: 2, Name: "", UnitPrice: "15", Quantity: 1},
		{ItemID: 3, Name: "Broken", UnitPrice: "0", Quantity: 1},
	}, s.Entries())
}

func TestStore_EveryMutationPersists(t *testing.T) {
	kv := storage.NewMemoryStore()
	s := newStore(t, kv)

	stored := func() map[string]Entry {
		raw, ok, err := kv.Get(StorageKey)
		require.NoError(t, err)
		require.True(t, ok)
		var m map[string]Entry
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		return m
	}

	require.NoError(t, s.Add(menuItem(1, "Tea", "20")))
	assert.Equal(t, 1, stored()["1"].Quantity)

	require.NoError(t, s.SetQuantity(1, 4))
	assert.Equal(t, 4, stored()["1"].Quantity)

	require.NoError(t, s.Decrement(1))
	assert.Equal(t, 3, stored()["1"].Quantity)

	rev := s.Revision()
	require.NoError(t, s.Clear())
	assert.Greater(t, s.Revision(), rev)

	_, ok, err := kv.Get(StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingKV struct {
	storage.MemoryStore
}

func (f *failingKV) Set(string, string) error { return errors.New("disk full") }

func TestStore_PersistFailureKeepsMemoryState(t *testing.T) {
	s := newStore(t, &failingKV{})

	err := s.Add(menuItem(1, "Tea", "20"))
	require.Error(t, err)
	assert.Equal(t, 1, s.TotalItems())
}
