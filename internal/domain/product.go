package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — позиция каталога Funko: цена и доступный остаток.
type Product struct {
	ID   string
	Name string
	// Price — текущая цена за единицу, две цифры после запятой.
	Price decimal.Decimal
	// Stock — доступный остаток; хранилище не допускает отрицательных значений.
	Stock int
	// Version используется для compare-and-swap при сохранении.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля товара перед сохранением в каталог.
func (p *Product) Validate() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrNegativeStock)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}

	return errs
}
