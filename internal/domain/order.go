package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address — адрес доставки из снимка клиента.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	City       string `json:"city"`
	Province   string `json:"province"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// Client — снимок данных покупателя на момент оформления заказа.
// Ядро его не интерпретирует, только сохраняет.
type Client struct {
	FullName string  `json:"full_name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Address  Address `json:"address"`
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	ProductID string
	// ProductPrice — цена, которую видел клиент; должна совпасть с каталогом.
	ProductPrice decimal.Decimal
	// Quantity — запрошенное количество единиц.
	Quantity int
	// Total = ProductPrice * Quantity, заполняется при резервировании.
	Total decimal.Decimal
}

// LineTotal возвращает стоимость позиции по цене клиента.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.ProductPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует заказ: клиента, позиции и итоги.
type Order struct {
	ID         string
	UserID     string
	Client     Client
	Lines      []OrderLine
	TotalItems int
	Total      decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// IsDeleted хранится для совместимости схемы; удаление физическое.
	IsDeleted bool
	Version   int64
}

// OrderIntent — уже провалидированный запрос на создание или замену заказа.
type OrderIntent struct {
	UserID string
	Client Client
	Lines  []OrderLine
}

// CloneLines возвращает независимую копию позиций.
func CloneLines(lines []OrderLine) []OrderLine {
	if lines == nil {
		return nil
	}
	result := make([]OrderLine, len(lines))
	copy(result, lines)
	return result
}

// Clone возвращает копию заказа, не разделяющую слайс позиций с оригиналом.
func (o Order) Clone() Order {
	o.Lines = CloneLines(o.Lines)
	return o
}

// ValidateInvariants проверяет согласованность итогов заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}

	// Сверяем итоги с суммой позиций: qty * price.
	total := decimal.Zero
	items := 0
	for _, line := range o.Lines {
		if !line.Total.Equal(line.LineTotal()) {
			errs = append(errs, ErrLineTotalMismatch)
		}
		total = total.Add(line.Total)
		items += line.Quantity
	}
	if !total.Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}
	if items != o.TotalItems {
		errs = append(errs, ErrTotalItemsMismatch)
	}

	return errs
}
