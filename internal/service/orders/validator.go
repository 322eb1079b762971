package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// Validator проверяет позиции заказа по каталогу до любого изменения остатков.
type Validator struct {
	catalog domain.Catalog
}

// NewValidator создаёт валидатор поверх каталога.
func NewValidator(catalog domain.Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate проходит все позиции и возвращает первую ошибку.
// Проверка остатка выполняется только для quantity > 0; спрос по одному товару
// в нескольких позициях суммируется.
func (v *Validator) Validate(ctx context.Context, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.ErrEmptyOrder
	}

	demand := make(map[string]int, len(lines))
	for _, line := range lines {
		product, err := v.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return domain.NewProductError(line.ProductID, domain.ErrProductNotFound)
			}
			return fmt.Errorf("load product %s: %w", line.ProductID, err)
		}

		if line.Quantity > 0 {
			demand[line.ProductID] += line.Quantity
			if product.Stock < demand[line.ProductID] {
				return domain.NewProductError(line.ProductID, domain.ErrInsufficientStock)
			}
		}
		if !product.Price.Equal(line.ProductPrice) {
			return domain.NewProductError(line.ProductID, domain.ErrPriceMismatch)
		}
	}

	return nil
}
