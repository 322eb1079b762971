package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka
const (
	TopicOrderNotifications = "funko.orders.notifications"
	TopicDeadLetterQueue    = "funko.orders.dlq" // Dead Letter Queue для недоставленных уведомлений
)

// Kafka headers уведомлений
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// NotificationEnvelope — конверт, в котором outbox-сообщение уходит в Kafka.
type NotificationEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
