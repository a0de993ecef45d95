package model

import (
	"net/url"
	"strings"
)

// query-параметры, через которые контекст стола/номера ходит между страницами
const (
	TableQueryParam = "table"
	RoomQueryParam  = "room"
)

// Destination — стол или номер, к которому привязан заказ
// одновременно может быть задано не больше одного идентификатора
type Destination struct {
	TableUniqueID string `json:"table_unique_id,omitempty"`
	RoomUniqueID  string `json:"room_unique_id,omitempty"`
}

// DestinationFromQuery читает destination из параметров table/room
func DestinationFromQuery(q url.Values) (Destination, error) {
	d := Destination{
		TableUniqueID: strings.TrimSpace(q.Get(TableQueryParam)),
		RoomUniqueID:  strings.TrimSpace(q.Get(RoomQueryParam)),
	}
	return d, d.Validate()
}

// Validate проверяет взаимоисключение стола и номера
func (d Destination) Validate() error {
	if d.TableUniqueID != "" && d.RoomUniqueID != "" {
		return &ValidationError{Field: "destination", Message: "table and room are mutually exclusive"}
	}
	return nil
}

// IsZero — destination не задан
func (d Destination) IsZero() bool {
	return d.TableUniqueID == "" && d.RoomUniqueID == ""
}

// OrderType возвращает тип заказа: table, room или пустую строку
func (d Destination) OrderType() string {
	switch {
	case d.RoomUniqueID != "":
		return "room"
	case d.TableUniqueID != "":
		return "table"
	default:
		return ""
	}
}

// Query возвращает параметры table/room для ссылок
func (d Destination) Query() url.Values {
	q := url.Values{}
	if d.TableUniqueID != "" {
		q.Set(TableQueryParam, d.TableUniqueID)
	}
	if d.RoomUniqueID != "" {
		q.Set(RoomQueryParam, d.RoomUniqueID)
	}
	return q
}

// Link строит внутреннюю ссылку, сохраняя destination без изменений
func (d Destination) Link(path string) string {
	q := d.Query()
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (d Destination) String() string {
	switch {
	case d.RoomUniqueID != "":
		return "room " + d.RoomUniqueID
	case d.TableUniqueID != "":
		return "table " + d.TableUniqueID
	default:
		return "no destination"
	}
}
