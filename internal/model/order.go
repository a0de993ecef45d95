package model

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultEstimatedTime — ожидаемое время приготовления в минутах, если бэкенд не задал своё
const DefaultEstimatedTime = 20

// MenuItem — позиция меню
type MenuItem struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ListOrder   int             `json:"list_order"`
	IsAvailable bool            `json:"is_available"`
}

// Order — заказ, сохранённый на бэкенде
// позиции хранятся в компактной кодировке items_json, см. DecodeItems
type Order struct {
	ID                  int64           `json:"id"`
	ItemsJSON           string          `json:"items_json"`
	TableUniqueID       string          `json:"table_unique_id,omitempty"`
	RoomUniqueID        string          `json:"room_unique_id,omitempty"`
	OrderType           string          `json:"order_type"`
	Status              OrderStatus     `json:"status"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	EstimatedTime       int             `json:"estimated_time"`
	BillClear           bool            `json:"bill_clear"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Destination возвращает стол или номер заказа
func (o Order) Destination() Destination {
	return Destination{TableUniqueID: o.TableUniqueID, RoomUniqueID: o.RoomUniqueID}
}

// Items декодирует items_json
func (o Order) Items() DecodedItems {
	return DecodeItems(o.ItemsJSON)
}

// OrderItemRequest — позиция в запросе на создание заказа
type OrderItemRequest struct {
	MenuItem int64           `json:"menu_item" validate:"required,gt=0"`
	Quantity int             `json:"quantity" validate:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// CreateOrderRequest — тело POST /orders
type CreateOrderRequest struct {
	Items               []OrderItemRequest `json:"items" validate:"required,gt=0,dive"`
	TableUniqueID       string             `json:"table_unique_id,omitempty" validate:"omitempty,max=50,excluded_with=RoomUniqueID"`
	RoomUniqueID        string             `json:"room_unique_id,omitempty" validate:"omitempty,max=50"`
	SpecialInstructions string             `json:"special_instructions,omitempty" validate:"max=1000"`
	TotalAmount         decimal.Decimal    `json:"total_amount"`
}

// Destination возвращает стол или номер из запроса
func (r CreateOrderRequest) Destination() Destination {
	return Destination{TableUniqueID: r.TableUniqueID, RoomUniqueID: r.RoomUniqueID}
}

// ComputeTotal — сумма price * quantity по позициям запроса
func (r CreateOrderRequest) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// UpdateStatusRequest — тело PATCH /orders/{id}
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// в ошибках показываем json-имена полей, а не имена Go
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate проверяет запрос на основе тегов validate и правил для цен
func (r *CreateOrderRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}

	for i, it := range r.Items {
		if it.Price.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Message: "price must not be negative"}
		}
	}

	return r.Destination().Validate()
}

// Validate проверяет запрос на смену статуса
func (r *UpdateStatusRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateOrderRequest.")
	field = strings.TrimPrefix(field, "UpdateStatusRequest.")

	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "excluded_with":
		return &ValidationError{Field: "destination", Message: "table and room are mutually exclusive"}
	case "gt":
		return &ValidationError{Field: field, Message: "must be greater than " + fe.Param()}
	case "max":
		return &ValidationError{Field: field, Message: "must be at most " + fe.Param() + " characters"}
	default:
		return &ValidationError{Field: field, Message: "failed on " + fe.Tag()}
	}
}
