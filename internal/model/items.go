package model

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// LineItem — позиция заказа в нормализованном виде
type LineItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// NewLineItem считает LineTotal = Price * Quantity
func NewLineItem(id int64, name string, quantity int, price decimal.Decimal) LineItem {
	return LineItem{
		ID:        id,
		Name:      name,
		Quantity:  quantity,
		Price:     price,
		LineTotal: price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// DecodedItems — результат разбора items_json
// OK=false означает, что кодировка битая и Items пуст
type DecodedItems struct {
	OK    bool
	Items []LineItem
}

// Total — сумма LineTotal по всем позициям
func (d DecodedItems) Total() decimal.Decimal {
	return SumLineItems(d.Items)
}

// SumLineItems суммирует LineTotal
func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	return total
}

// EncodeItems упаковывает позиции в компактный формат бэкенда:
// {"<id>": [quantity, name, unit price]}
func EncodeItems(items []LineItem) (string, error) {
	encoded := make(map[string][3]any, len(items))
	for _, it := range items {
		encoded[strconv.FormatInt(it.ID, 10)] = [3]any{it.Quantity, it.Name, it.Price}
	}

	raw, err := json.Marshal(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeItems разбирает items_json в список позиций, отсортированный по id
// вся работа с позиционным массивом [qty, name, price] сосредоточена здесь
func DecodeItems(raw string) DecodedItems {
	var encoded map[string][]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return DecodedItems{Items: []LineItem{}}
	}

	items := make([]LineItem, 0, len(encoded))
	for key, tuple := range encoded {
		item, ok := decodeTuple(key, tuple)
		if !ok {
			return DecodedItems{Items: []LineItem{}}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return DecodedItems{OK: true, Items: items}
}

func decodeTuple(key string, tuple []json.RawMessage) (LineItem, bool) {
	if len(tuple) < 3 {
		return LineItem{}, false
	}

	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return LineItem{}, false
	}

	var quantity int
	if err := json.Unmarshal(tuple[0], &quantity); err != nil || quantity <= 0 {
		return LineItem{}, false
	}

	var name string
	if err := json.Unmarshal(tuple[1], &name); err != nil {
		return LineItem{}, false
	}

	// decimal принимает и число, и строку в кавычках
	var price decimal.Decimal
	if err := price.UnmarshalJSON(tuple[2]); err != nil {
		return LineItem{}, false
	}

	return NewLineItem(id, name, quantity, price), true
}
