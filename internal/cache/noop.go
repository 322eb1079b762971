package cache

import (
	"context"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// Noop — кэш, который никогда не попадает. Используется, когда Redis не настроен.
type Noop struct{}

func (Noop) Get(context.Context, string) (domain.Order, bool, error) {
	return domain.Order{}, false, nil
}

func (Noop) Set(context.Context, domain.Order) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }

var _ domain.OrderCache = Noop{}
