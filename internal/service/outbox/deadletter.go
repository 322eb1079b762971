package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/notification"
)

// Причины, по которым уведомление уходит в DLQ.
const (
	reasonMalformed     = "malformed"
	reasonPublishFailed = "publish_failed"
)

// DeadLetter описывает сообщение в DLQ: исходное уведомление и причину недоставки.
type DeadLetter struct {
	OutboxID         string          `json:"outbox_id"`
	OrderID          string          `json:"order_id"`
	NotificationType string          `json:"notification_type"`
	Reason           string          `json:"reason"`
	Attempts         int             `json:"attempts"`
	Error            string          `json:"error"`
	Notification     json.RawMessage `json:"notification"`
	DeadLetteredAt   time.Time       `json:"dead_lettered_at"`
}

func deadLetterFor(msg domain.OutboxMessage, reason string, attempts int, cause error) DeadLetter {
	kind := unknownKind
	if parsed, ok := notification.KindOf(msg.EventType); ok {
		kind = string(parsed)
	}

	body := json.RawMessage(msg.Payload)
	if !json.Valid(body) {
		// Битый payload сохраняем строкой, чтобы конверт оставался валидным JSON.
		body, _ = json.Marshal(string(msg.Payload))
	}

	return DeadLetter{
		OutboxID:         msg.ID,
		OrderID:          msg.AggregateID,
		NotificationType: kind,
		Reason:           reason,
		Attempts:         attempts,
		Error:            cause.Error(),
		Notification:     body,
	}
}

// bury отправляет уведомление в DLQ и снимает его с очереди outbox.
func (w *Worker) bury(ctx context.Context, msg domain.OutboxMessage, letter DeadLetter) {
	outcome := outcomeFailed
	if letter.Reason == reasonMalformed {
		outcome = outcomeRejected
	}
	notificationDeliveries.WithLabelValues(letter.NotificationType, outcome).Inc()

	fields := log.Fields{"outbox_id": msg.ID, "order_id": letter.OrderID, "reason": letter.Reason}
	if err := w.publishDeadLetter(msg, letter); err != nil {
		w.logger.WithError(err).WithFields(fields).Warn("failed to publish order notification to DLQ")
		notificationDeliveries.WithLabelValues(letter.NotificationType, outcomeDLQFailed).Inc()
	}
	if err := w.repo.MarkFailed(context.WithoutCancel(ctx), msg.ID); err != nil {
		w.logger.WithError(err).WithFields(fields).Warn("failed to mark order notification as failed")
	}
}

func (w *Worker) publishDeadLetter(msg domain.OutboxMessage, letter DeadLetter) error {
	if w.deadLetters == nil {
		return nil
	}

	letter.DeadLetteredAt = w.now()
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := w.deadLetters.Publish(domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}
