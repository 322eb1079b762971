package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

var productColumns = []string{"id", "name", "price", "stock", "version", "created_at", "updated_at"}

type productRepository struct {
	store *Store
	now   func() time.Time
}

// NewProductRepository создаёт PostgreSQL-каталог товаров.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *productRepository) CreateProduct(ctx context.Context, product domain.Product) error {
	if errs := product.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}

	_, err := r.store.sb.Insert("products").
		Columns(productColumns...).
		Values(product.ID, product.Name, product.Price, product.Stock, 1, product.CreatedAt, now).
		RunWith(r.store.db).
		ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.sb.Select(productColumns...).
		From("products").
		Where(squirrel.Eq{"id": id}).
		RunWith(r.store.db).
		QueryRowContext(ctx)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// SaveProduct обновляет товар только если версия в базе совпадает с product.Version.
func (r *productRepository) SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.Stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.sb.Update("products").
		Set("name", product.Name).
		Set("price", product.Price).
		Set("stock", product.Stock).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"id": product.ID, "version": product.Version}).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		RunWith(r.store.db).
		QueryRowContext(ctx)

	saved, err := scanProduct(row)
	switch {
	case err == nil:
		return saved, nil
	case isCheckViolation(err):
		return domain.Product{}, domain.ErrNegativeStock
	case !errors.Is(err, sql.ErrNoRows):
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}

	if _, err := r.GetProduct(ctx, product.ID); err != nil {
		return domain.Product{}, err
	}
	return domain.Product{}, domain.ErrProductVersionConflict
}

func (r *productRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.sb.Select(productColumns...).
		From("products").
		OrderBy("id").
		RunWith(r.store.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

func scanProduct(row squirrel.RowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
