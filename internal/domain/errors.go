package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder — в заказе нет ни одной позиции.
	ErrEmptyOrder = errors.New("order must contain at least one order line")
	// ErrProductNotFound — товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — остатка не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPriceMismatch — цена позиции не совпадает с ценой каталога.
	ErrPriceMismatch = errors.New("order line price does not match catalog price")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductVersionConflict — товар изменился между чтением и записью.
	ErrProductVersionConflict = errors.New("product version conflict")
	// ErrProductAlreadyExists — товар с таким ID уже есть в каталоге.
	ErrProductAlreadyExists = errors.New("product already exists")
	// ErrProductIDRequired — пустой идентификатор товара.
	ErrProductIDRequired = errors.New("product id is required")
	// ErrNegativeStock — попытка сохранить отрицательный остаток.
	ErrNegativeStock = errors.New("product stock must be non-negative")
	// ErrPriceNegative — отрицательная цена товара.
	ErrPriceNegative = errors.New("product price must be non-negative")
	// ErrReservationIncident — каталог уже изменён, а операция не завершилась.
	ErrReservationIncident = errors.New("stock reservation incident")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrMalformedNotification — outbox-сообщение не разбирается как уведомление о заказе.
	ErrMalformedNotification = errors.New("malformed order notification")

	// ErrLinesRequired — заказ без позиций.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// ErrLineTotalMismatch — total позиции не равен price * qty.
	ErrLineTotalMismatch = errors.New("order line total does not match price * quantity")
	// ErrTotalMismatch — total заказа не равен сумме позиций.
	ErrTotalMismatch = errors.New("order total does not match lines sum")
	// ErrTotalItemsMismatch — totalItems не равен сумме количеств.
	ErrTotalItemsMismatch = errors.New("order total items does not match lines quantity")
)

// ProductError привязывает ошибку к конкретному товару заказа.
type ProductError struct {
	ProductID string
	Err       error
}

// NewProductError оборачивает err идентификатором товара.
func NewProductError(productID string, err error) error {
	return &ProductError{ProductID: productID, Err: err}
}

func (e *ProductError) Error() string {
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

func (e *ProductError) Unwrap() error {
	return e.Err
}

// IncidentError описывает сбой после того, как каталог уже был изменён.
// Applied содержит позиции, изменения по которым успели примениться.
type IncidentError struct {
	Operation string
	OrderID   string
	Applied   []OrderLine
	Err       error
}

func (e *IncidentError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s: %s order %s (%d lines applied): %v",
			ErrReservationIncident, e.Operation, e.OrderID, len(e.Applied), e.Err)
	}
	return fmt.Sprintf("%s: %s (%d lines applied): %v",
		ErrReservationIncident, e.Operation, len(e.Applied), e.Err)
}

// Unwrap позволяет errors.Is находить и ErrReservationIncident, и исходную причину.
func (e *IncidentError) Unwrap() []error {
	return []error{ErrReservationIncident, e.Err}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}

// IsIncident сообщает, что ошибка произошла после изменения остатков.
func IsIncident(err error) bool {
	return errors.Is(err, ErrReservationIncident)
}

// IsClientError отделяет ошибки запроса (4xx) от внутренних сбоев (5xx).
// Ошибка внутри инцидента всегда считается внутренней.
func IsClientError(err error) bool {
	if err == nil || IsIncident(err) {
		return false
	}
	switch {
	case errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrOrderNotFound):
		return true
	}
	return false
}
