package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// OutboxNotifier кладёт уведомления в transactional outbox; доставку выполняет outbox worker.
type OutboxNotifier struct {
	outbox domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewOutboxNotifier создаёт notifier поверх outbox-репозитория.
func NewOutboxNotifier(outbox domain.OutboxRepository, logger *log.Entry) *OutboxNotifier {
	if logger == nil {
		logger = log.WithField("component", "outbox-notifier")
	}
	return &OutboxNotifier{
		outbox: outbox,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Notify сериализует заказ и ставит сообщение в очередь outbox.
func (n *OutboxNotifier) Notify(ctx context.Context, kind domain.NotificationType, order domain.Order) error {
	payload, err := json.Marshal(NewOrderNotification(kind, order, n.now()))
	if err != nil {
		return fmt.Errorf("marshal order notification: %w", err)
	}

	msg, err := n.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: EntityOrder,
		AggregateID:   order.ID,
		EventType:     EventType(kind),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue order notification: %w", err)
	}

	n.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   order.ID,
		"event_type": msg.EventType,
	}).Debug("order notification enqueued")
	return nil
}

var _ domain.Notifier = (*OutboxNotifier)(nil)
