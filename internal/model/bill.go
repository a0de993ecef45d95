package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillLine — строка счёта, на проводе выглядит как [quantity, line total]
type BillLine struct {
	Quantity int
	Total    decimal.Decimal
}

func (l BillLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{l.Quantity, l.Total})
}

func (l *BillLine) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("bill line: expected 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &l.Quantity); err != nil {
		return fmt.Errorf("bill line quantity: %w", err)
	}
	return l.Total.UnmarshalJSON(tuple[1])
}

// Bill — счёт по всем неоплаченным заказам стола или номера
type Bill struct {
	ID            int64               `json:"id"`
	TableUniqueID string              `json:"table_unique_id,omitempty"`
	RoomUniqueID  string              `json:"room_unique_id,omitempty"`
	OrderIDs      []int64             `json:"order_ids"`
	Items         map[string]BillLine `json:"order_items"`
	BillTotal     decimal.Decimal     `json:"bill_total"`
	BillTime      time.Time           `json:"bill_time"`
}

// BuildBill сводит позиции заказов в счёт
// одинаковые блюда (без учёта регистра имени) складываются
func BuildBill(dest Destination, orders []Order, now time.Time) Bill {
	b := Bill{
		TableUniqueID: dest.TableUniqueID,
		RoomUniqueID:  dest.RoomUniqueID,
		OrderIDs:      make([]int64, 0, len(orders)),
		Items:         make(map[string]BillLine),
		BillTotal:     decimal.Zero,
		BillTime:      now,
	}

	for _, o := range orders {
		b.OrderIDs = append(b.OrderIDs, o.ID)
		b.BillTotal = b.BillTotal.Add(o.TotalAmount)

		for _, it := range o.Items().Items {
			key := strings.ToLower(it.Name)
			line := b.Items[key]
			line.Quantity += it.Quantity
			line.Total = line.Total.Add(it.LineTotal)
			b.Items[key] = line
		}
	}

	return b
}
