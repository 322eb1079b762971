package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/memory"
)

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewProductRepository()
	for _, p := range []domain.Product{
		{ID: "P1", Price: decimal.RequireFromString("19.99"), Stock: 10},
		{ID: "P2", Price: decimal.RequireFromString("7.50"), Stock: 0},
	} {
		if err := catalog.CreateProduct(ctx, p); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	validator := NewValidator(catalog)

	tests := []struct {
		name  string
		lines []domain.OrderLine
		want  error
	}{
		{name: "ok", lines: []domain.OrderLine{line("P1", "19.99", 10)}},
		{name: "empty", lines: []domain.OrderLine{}, want: domain.ErrEmptyOrder},
		{name: "not found", lines: []domain.OrderLine{line("P9", "1.00", 1)}, want: domain.ErrProductNotFound},
		{name: "insufficient", lines: []domain.OrderLine{line("P1", "19.99", 11)}, want: domain.ErrInsufficientStock},
		{name: "zero qty on empty stock", lines: []domain.OrderLine{line("P2", "7.50", 0)}},
		{name: "negative qty on empty stock", lines: []domain.OrderLine{line("P2", "7.50", -1)}},
		{name: "price mismatch", lines: []domain.OrderLine{line("P1", "19.98", 1)}, want: domain.ErrPriceMismatch},
		{name: "price scale is irrelevant", lines: []domain.OrderLine{line("P1", "19.990", 1)}},
		{name: "stock checked before price", lines: []domain.OrderLine{line("P1", "1.00", 50)}, want: domain.ErrInsufficientStock},
		{name: "cumulative demand", lines: []domain.OrderLine{line("P1", "19.99", 5), line("P1", "19.99", 6)}, want: domain.ErrInsufficientStock},
		{name: "later line fails", lines: []domain.OrderLine{line("P1", "19.99", 1), line("P2", "7.50", 1)}, want: domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(ctx, tt.lines)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Проверка не меняет каталог.
	product, err := catalog.GetProduct(ctx, "P1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Stock != 10 || product.Version != 1 {
		t.Fatalf("validator must not touch the catalog: %+v", product)
	}
}
