package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrNothingToBill  = errors.New("no unsettled orders to bill")
)

var orderColumns = []string{
	"id", "items_json", "table_unique_id", "room_unique_id", "order_type", "status",
	"special_instructions", "total_amount", "estimated_time", "bill_clear", "created_at", "updated_at",
}

var billColumns = []string{
	"id", "table_unique_id", "room_unique_id", "order_ids", "order_items", "bill_total", "bill_time",
}

// OrderRepository инкапсулирует логику работы с заказами и счетами в БД
type OrderRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		db: db,
		// использую плейсхолдеры в стиле PostgreSQL ($1, $2, $3,...)
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateOrder сохраняет заказ
// если заказ с таким ключом идемпотентности уже есть, возвращает его и created=false
func (r *OrderRepository) CreateOrder(ctx context.Context, order model.Order, idempotencyKey string) (model.Order, bool, error) {
	const op = "repository.postgres.OrderRepository.CreateOrder"

	sql, args, err := r.insertOrderQuery(order, idempotencyKey)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("%s: failed to build orders insert query: %w", op, err)
	}

	created, err := scanOrder(r.db.QueryRow(ctx, sql, args...))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || idempotencyKey == "" {
		return model.Order{}, false, fmt.Errorf("%s: failed to insert into orders: %w", op, err)
	}

	// ON CONFLICT DO NOTHING ничего не вернул — заказ с этим ключом уже создан
	existing, err := r.getOrder(ctx, squirrel.Eq{"idempotency_key": idempotencyKey})
	if err != nil {
		return model.Order{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// GetOrderByID извлекает один заказ из базы данных по его id
func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (model.Order, error) {
	const op = "repository.postgres.OrderRepository.GetOrderByID"

	order, err := r.getOrder(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// GetOpenOrders извлекает все неоплаченные заказы
// он предназначен для восстановления кэша при старте
func (r *OrderRepository) GetOpenOrders(ctx context.Context) ([]model.Order, error) {
	const op = "repository.postgres.OrderRepository.GetOpenOrders"

	orders, err := r.listOrders(ctx, r.selectOrders().Where(squirrel.Eq{"bill_clear": false}).OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// ListActiveOrders возвращает неоплаченные и неотменённые заказы стола или номера, новые первыми
// пустой destination — все такие заказы
func (r *OrderRepository) ListActiveOrders(ctx context.Context, dest model.Destination) ([]model.Order, error) {
	const op = "repository.postgres.OrderRepository.ListActiveOrders"

	orders, err := r.listOrders(ctx, r.activeOrdersQuery(dest))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// UpdateStatus меняет статус заказа, только если текущий статус всё ещё равен from
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to model.OrderStatus) (model.Order, error) {
	const op = "repository.postgres.OrderRepository.UpdateStatus"

	sql, args, err := r.updateStatusQuery(id, from, to)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	order, err := scanOrder(r.db.QueryRow(ctx, sql, args...))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	// ни одна строка не обновилась: либо заказа нет, либо статус уже другой
	if _, err := r.getOrder(ctx, squirrel.Eq{"id": id}); err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return model.Order{}, fmt.Errorf("%s: %w", op, ErrStatusConflict)
}

// CreateBill закрывает все неоплаченные заказы стола или номера одним счётом
// в рамках одной транзакции
func (r *OrderRepository) CreateBill(ctx context.Context, dest model.Destination, now time.Time) (model.Bill, error) {
	const op = "repository.postgres.OrderRepository.CreateBill"

	// начинаем транзакцию
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	// гарантируем откат транзакции в случае любой ошибки
	defer tx.Rollback(ctx)

	// 1. Блокируем неоплаченные заказы
	sql, args, err := r.activeOrdersQuery(dest).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to build orders select query: %w", op, err)
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to query orders: %w", op, err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(orders) == 0 {
		return model.Bill{}, fmt.Errorf("%s: %w", op, ErrNothingToBill)
	}

	bill := model.BuildBill(dest, orders, now)

	// 2. Помечаем заказы оплаченными
	sql, args, err = r.sq.Update("orders").
		Set("bill_clear", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": bill.OrderIDs}).
		ToSql()
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to build orders update query: %w", op, err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to settle orders: %w", op, err)
	}

	// 3. Сохраняем счёт
	items, err := json.Marshal(bill.Items)
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to encode bill items: %w", op, err)
	}
	sql, args, err = r.sq.Insert("bills").
		Columns("table_unique_id", "room_unique_id", "order_ids", "order_items", "bill_total", "bill_time").
		Values(dest.TableUniqueID, dest.RoomUniqueID, bill.OrderIDs, string(items), bill.BillTotal, bill.BillTime).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to build bills insert query: %w", op, err)
	}
	if err := tx.QueryRow(ctx, sql, args...).Scan(&bill.ID); err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to insert into bills: %w", op, err)
	}

	// если все прошло успешно, подтверждаем транзакцию
	if err := tx.Commit(ctx); err != nil {
		return model.Bill{}, fmt.Errorf("%s: failed to commit: %w", op, err)
	}
	return bill, nil
}

// ListBills возвращает счета стола или номера, новые первыми
func (r *OrderRepository) ListBills(ctx context.Context, dest model.Destination) ([]model.Bill, error) {
	const op = "repository.postgres.OrderRepository.ListBills"

	qb := r.sq.Select(billColumns...).From("bills").OrderBy("bill_time DESC", "id DESC")
	if filter := destinationFilter(dest); len(filter) > 0 {
		qb = qb.Where(filter)
	}
	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query bills: %w", op, err)
	}
	defer rows.Close()

	bills := []model.Bill{}
	for rows.Next() {
		var (
			b     model.Bill
			items []byte
		)
		if err := rows.Scan(&b.ID, &b.TableUniqueID, &b.RoomUniqueID, &b.OrderIDs, &items, &b.BillTotal, &b.BillTime); err != nil {
			return nil, fmt.Errorf("%s: failed to scan bill row: %w", op, err)
		}
		if err := json.Unmarshal(items, &b.Items); err != nil {
			return nil, fmt.Errorf("%s: failed to decode bill %d items: %w", op, b.ID, err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bills, nil
}

func (r *OrderRepository) selectOrders() squirrel.SelectBuilder {
	return r.sq.Select(orderColumns...).From("orders")
}

func (r *OrderRepository) activeOrdersQuery(dest model.Destination) squirrel.SelectBuilder {
	qb := r.selectOrders().
		Where(squirrel.Eq{"bill_clear": false}).
		Where(squirrel.NotEq{"status": string(model.StatusCancelled)})
	if filter := destinationFilter(dest); len(filter) > 0 {
		qb = qb.Where(filter)
	}
	return qb.OrderBy("created_at DESC", "id DESC")
}

func (r *OrderRepository) insertOrderQuery(order model.Order, idempotencyKey string) (string, []any, error) {
	// NULL не конфликтует в unique-индексе, поэтому заказы без ключа вставляются всегда
	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}

	return r.sq.Insert("orders").
		Columns(
			"idempotency_key", "items_json", "table_unique_id", "room_unique_id", "order_type",
			"status", "special_instructions", "total_amount", "estimated_time",
		).
		Values(
			key, order.ItemsJSON, order.TableUniqueID, order.RoomUniqueID, order.OrderType,
			string(order.Status), order.SpecialInstructions, order.TotalAmount, order.EstimatedTime,
		).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
}

func (r *OrderRepository) updateStatusQuery(id int64, from, to model.OrderStatus) (string, []any, error) {
	return r.sq.Update("orders").
		Set("status", string(to)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": string(from)}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
}

func (r *OrderRepository) getOrder(ctx context.Context, where squirrel.Sqlizer) (model.Order, error) {
	sql, args, err := r.selectOrders().Where(where).Limit(1).ToSql()
	if err != nil {
		return model.Order{}, fmt.Errorf("failed to build query: %w", err)
	}

	order, err := scanOrder(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) listOrders(ctx context.Context, qb squirrel.SelectBuilder) ([]model.Order, error) {
	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order rows: %w", err)
	}
	return orders, nil
}

// scanOrder читает строку в порядке orderColumns
func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.ItemsJSON, &o.TableUniqueID, &o.RoomUniqueID, &o.OrderType, &status,
		&o.SpecialInstructions, &o.TotalAmount, &o.EstimatedTime, &o.BillClear, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

func destinationFilter(dest model.Destination) squirrel.Eq {
	filter := squirrel.Eq{}
	if dest.TableUniqueID != "" {
		filter["table_unique_id"] = dest.TableUniqueID
	}
	if dest.RoomUniqueID != "" {
		filter["room_unique_id"] = dest.RoomUniqueID
	}
	return filter
}
