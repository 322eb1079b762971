package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

var orderColumns = []string{"id", "user_id", "client", "total_items", "total", "is_deleted", "version", "created_at", "updated_at"}

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Позиции хранятся в order_lines и пишутся в одной транзакции с заголовком заказа.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	client, err := json.Marshal(order.Client)
	if err != nil {
		return fmt.Errorf("encode client: %w", err)
	}
	if order.Version == 0 {
		order.Version = 1
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := r.store.sb.Insert("orders").
			Columns(orderColumns...).
			Values(order.ID, order.UserID, string(client), order.TotalItems, order.Total,
				order.IsDeleted, order.Version, order.CreatedAt, order.UpdatedAt).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return r.insertLines(ctx, tx, order.ID, order.Lines)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.sb.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"id": id}).
		RunWith(r.store.db).
		QueryRowContext(ctx)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := r.store.sb.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.RunWith(r.store.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	lines, err := r.loadLines(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

// Update заменяет заголовок и позиции заказа, если версия в базе совпадает с order.Version.
func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	client, err := json.Marshal(order.Client)
	if err != nil {
		return fmt.Errorf("encode client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := r.store.sb.Update("orders").
			Set("user_id", order.UserID).
			Set("client", string(client)).
			Set("total_items", order.TotalItems).
			Set("total", order.Total).
			Set("is_deleted", order.IsDeleted).
			Set("version", squirrel.Expr("version + 1")).
			Set("updated_at", order.UpdatedAt).
			Where(squirrel.Eq{"id": order.ID, "version": order.Version}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := r.exists(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		if _, err := r.store.sb.Delete("order_lines").
			Where(squirrel.Eq{"order_id": order.ID}).
			RunWith(tx).
			ExecContext(ctx); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}
		return r.insertLines(ctx, tx, order.ID, order.Lines)
	})
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.sb.Delete("orders").
		Where(squirrel.Eq{"id": id}).
		RunWith(r.store.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *orderRepository) insertLines(ctx context.Context, tx *sql.Tx, orderID string, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	insert := r.store.sb.Insert("order_lines").
		Columns("order_id", "line_no", "product_id", "product_price", "quantity", "total")
	for i, line := range lines {
		insert = insert.Values(orderID, i, line.ProductID, line.ProductPrice, line.Quantity, line.Total)
	}
	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

// loadLines возвращает позиции сгруппированными по order_id в исходном порядке.
func (r *orderRepository) loadLines(ctx context.Context, orderIDs ...string) (map[string][]domain.OrderLine, error) {
	rows, err := r.store.sb.Select("order_id", "product_id", "product_price", "quantity", "total").
		From("order_lines").
		Where(squirrel.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "line_no").
		RunWith(r.store.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.ProductPrice, &line.Quantity, &line.Total); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return result, nil
}

func (r *orderRepository) exists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var found int
	err := r.store.sb.Select("1").
		From("orders").
		Where(squirrel.Eq{"id": id}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return true, nil
}

func scanOrder(row squirrel.RowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		client []byte
	)
	if err := row.Scan(&order.ID, &order.UserID, &client, &order.TotalItems, &order.Total,
		&order.IsDeleted, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if len(client) > 0 {
		if err := json.Unmarshal(client, &order.Client); err != nil {
			return domain.Order{}, fmt.Errorf("decode client: %w", err)
		}
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
