package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

const (
	opReserve = "reserve"
	opRelease = "release"
)

// ReservationEngine — единственный код, который меняет stock в каталоге.
type ReservationEngine struct {
	catalog domain.Catalog
	logger  *log.Entry
}

// NewReservationEngine создаёт движок резервирования.
func NewReservationEngine(catalog domain.Catalog, logger *log.Entry) *ReservationEngine {
	if logger == nil {
		logger = log.WithField("component", "reservation-engine")
	}
	return &ReservationEngine{catalog: catalog, logger: logger}
}

// Reserve списывает остатки по каждой позиции и считает итоги.
// Достаточность остатка не перепроверяется: это задача Validator.
// Любая ошибка возвращается как *domain.IncidentError, Applied содержит уже списанные позиции.
func (e *ReservationEngine) Reserve(ctx context.Context, lines []domain.OrderLine) (domain.Reservation, error) {
	result := domain.Reservation{
		Lines: domain.CloneLines(lines),
		Total: decimal.Zero,
	}

	for i := range result.Lines {
		line := &result.Lines[i]
		if err := e.adjust(ctx, line.ProductID, -line.Quantity); err != nil {
			return domain.Reservation{}, &domain.IncidentError{
				Operation: opReserve,
				Applied:   domain.CloneLines(result.Lines[:i]),
				Err:       err,
			}
		}

		line.Total = line.LineTotal()
		result.TotalItems += line.Quantity
		result.Total = result.Total.Add(line.Total)
	}

	return result, nil
}

// Release возвращает остатки по позициям. Отсутствующий товар пропускается.
// Возвращает позиции, по которым остаток действительно вернулся.
func (e *ReservationEngine) Release(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	applied := make([]domain.OrderLine, 0, len(lines))

	for _, line := range lines {
		err := e.adjust(ctx, line.ProductID, line.Quantity)
		if errors.Is(err, domain.ErrProductNotFound) {
			e.logger.WithField("product_id", line.ProductID).Debug("skip release for missing product")
			continue
		}
		if err != nil {
			return applied, &domain.IncidentError{
				Operation: opRelease,
				Applied:   applied,
				Err:       err,
			}
		}
		applied = append(applied, line)
	}

	return applied, nil
}

// adjust перечитывает товар и сохраняет stock + delta.
func (e *ReservationEngine) adjust(ctx context.Context, productID string, delta int) error {
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.NewProductError(productID, domain.ErrProductNotFound)
		}
		return fmt.Errorf("load product %s: %w", productID, err)
	}

	product.Stock += delta
	if _, err := e.catalog.SaveProduct(ctx, product); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.NewProductError(productID, domain.ErrProductNotFound)
		}
		return fmt.Errorf("save product %s: %w", productID, err)
	}

	e.logger.WithFields(log.Fields{
		"product_id": productID,
		"delta":      delta,
		"stock":      product.Stock,
	}).Debug("product stock adjusted")

	return nil
}
