package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// productRepositoryInMemory — in-memory каталог товаров с compare-and-swap по версии.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
	now   func() time.Time
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct добавляет товар, если ID ещё не занят.
func (r *productRepositoryInMemory) CreateProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if errs := product.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductAlreadyExists
	}
	now := r.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Version = 1
	r.items[product.ID] = product
	return nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// SaveProduct перезаписывает товар, проверяя версию (optimistic locking).
func (r *productRepositoryInMemory) SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if product.Stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.Product{}, domain.ErrProductVersionConflict
	}
	product.Version++
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = r.now()
	r.items[product.ID] = product
	return product, nil
}

// ListProducts возвращает снимок каталога, отсортированный по ID.
func (r *productRepositoryInMemory) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
