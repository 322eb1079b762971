package domain

import "github.com/shopspring/decimal"

// Reservation — результат списания остатков под набор позиций.
type Reservation struct {
	// Lines — копия входных позиций с заполненным Total.
	Lines      []OrderLine
	TotalItems int
	Total      decimal.Decimal
}

// Apply переносит позиции и итоги резерва в заказ.
func (r Reservation) Apply(order *Order) {
	order.Lines = r.Lines
	order.TotalItems = r.TotalItems
	order.Total = r.Total
}

// ReleasePolicy определяет, какие позиции возвращаются на склад при обновлении заказа.
type ReleasePolicy string

const (
	// ReleaseRequestedLines возвращает остатки по НОВЫМ позициям запроса до проверки.
	ReleaseRequestedLines ReleasePolicy = "requested"
	// ReleaseStoredLines возвращает остатки по позициям сохранённого заказа.
	ReleaseStoredLines ReleasePolicy = "stored"
)

// ParseReleasePolicy разбирает значение политики из конфигурации.
func ParseReleasePolicy(value string) (ReleasePolicy, bool) {
	switch ReleasePolicy(value) {
	case ReleaseRequestedLines:
		return ReleaseRequestedLines, true
	case ReleaseStoredLines:
		return ReleaseStoredLines, true
	default:
		return "", false
	}
}
