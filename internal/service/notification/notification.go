package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// EntityOrder — значение поля entity в уведомлениях о заказах.
const EntityOrder = "order"

// OrderNotification — сообщение подписчикам об изменении заказа.
type OrderNotification struct {
	Entity    string                  `json:"entity"`
	Type      domain.NotificationType `json:"type"`
	Data      OrderPayload            `json:"data"`
	CreatedAt time.Time               `json:"created_at"`
}

// OrderPayload — сериализуемое представление заказа.
type OrderPayload struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Client     domain.Client   `json:"client"`
	Lines      []LinePayload   `json:"order_lines"`
	TotalItems int             `json:"total_items"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	IsDeleted  bool            `json:"is_deleted"`
}

// LinePayload — позиция заказа в уведомлении.
type LinePayload struct {
	ProductID    string          `json:"product_id"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	Total        decimal.Decimal `json:"total"`
}

// NewOrderNotification строит уведомление из заказа.
func NewOrderNotification(kind domain.NotificationType, order domain.Order, at time.Time) OrderNotification {
	lines := make([]LinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LinePayload{
			ProductID:    line.ProductID,
			ProductPrice: line.ProductPrice,
			Quantity:     line.Quantity,
			Total:        line.Total,
		})
	}

	return OrderNotification{
		Entity: EntityOrder,
		Type:   kind,
		Data: OrderPayload{
			ID:         order.ID,
			UserID:     order.UserID,
			Client:     order.Client,
			Lines:      lines,
			TotalItems: order.TotalItems,
			Total:      order.Total,
			CreatedAt:  order.CreatedAt,
			UpdatedAt:  order.UpdatedAt,
			IsDeleted:  order.IsDeleted,
		},
		CreatedAt: at,
	}
}

const eventTypePrefix = "ORDER_"

// EventType возвращает тип outbox-события для вида уведомления.
func EventType(kind domain.NotificationType) string {
	return eventTypePrefix + string(kind)
}

// KindOf восстанавливает вид уведомления из типа outbox-события.
func KindOf(eventType string) (domain.NotificationType, bool) {
	raw, ok := strings.CutPrefix(eventType, eventTypePrefix)
	if !ok {
		return "", false
	}
	switch kind := domain.NotificationType(raw); kind {
	case domain.NotificationCreate, domain.NotificationUpdate, domain.NotificationDelete:
		return kind, true
	default:
		return "", false
	}
}

// Decode разбирает outbox-сообщение обратно в уведомление и сверяет его с метаданными записи.
func Decode(msg domain.OutboxMessage) (OrderNotification, error) {
	kind, ok := KindOf(msg.EventType)
	if !ok {
		return OrderNotification{}, fmt.Errorf("%w: unknown event type %q", domain.ErrMalformedNotification, msg.EventType)
	}

	var decoded OrderNotification
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		return OrderNotification{}, fmt.Errorf("%w: %w", domain.ErrMalformedNotification, err)
	}

	switch {
	case decoded.Entity != EntityOrder:
		return OrderNotification{}, fmt.Errorf("%w: entity %q", domain.ErrMalformedNotification, decoded.Entity)
	case decoded.Type != kind:
		return OrderNotification{}, fmt.Errorf("%w: payload type %s, event %s", domain.ErrMalformedNotification, decoded.Type, kind)
	case decoded.Data.ID == "" || decoded.Data.ID != msg.AggregateID:
		return OrderNotification{}, fmt.Errorf("%w: order %q in payload, %q in record", domain.ErrMalformedNotification, decoded.Data.ID, msg.AggregateID)
	}
	return decoded, nil
}
