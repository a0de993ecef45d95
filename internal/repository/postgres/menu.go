package postgres

import (
	"context"
	"fmt"

	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

var menuColumns = []string{
	"id", "name", "category", "description", "image_url", "price", "list_order", "is_available",
}

// MenuRepository читает меню
type MenuRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

func NewMenuRepository(db *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListMenu возвращает всё меню в порядке показа
func (r *MenuRepository) ListMenu(ctx context.Context) ([]model.MenuItem, error) {
	const op = "repository.postgres.MenuRepository.ListMenu"

	items, err := r.list(ctx, r.sq.Select(menuColumns...).From("menu_items").OrderBy("category", "list_order", "id"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// GetMenuItems возвращает позиции меню по id, отсутствующих id в результате нет
func (r *MenuRepository) GetMenuItems(ctx context.Context, ids []int64) (map[int64]model.MenuItem, error) {
	const op = "repository.postgres.MenuRepository.GetMenuItems"

	result := make(map[int64]model.MenuItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	items, err := r.list(ctx, r.menuItemsQuery(ids))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, it := range items {
		result[it.ID] = it
	}
	return result, nil
}

func (r *MenuRepository) menuItemsQuery(ids []int64) squirrel.SelectBuilder {
	return r.sq.Select(menuColumns...).From("menu_items").Where(squirrel.Eq{"id": ids})
}

func (r *MenuRepository) list(ctx context.Context, qb squirrel.SelectBuilder) ([]model.MenuItem, error) {
	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu: %w", err)
	}
	defer rows.Close()

	items := []model.MenuItem{}
	for rows.Next() {
		var it model.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Description, &it.ImageURL, &it.Price, &it.ListOrder, &it.IsAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan menu row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read menu rows: %w", err)
	}
	return items, nil
}
