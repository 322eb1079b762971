package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// LogNotifier только пишет уведомления в лог; используется, когда брокер не настроен.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier, пишущий в logger.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "log-notifier")
	}
	return &LogNotifier{logger: logger}
}

// Notify пишет событие в лог и никогда не возвращает ошибку.
func (n *LogNotifier) Notify(_ context.Context, kind domain.NotificationType, order domain.Order) error {
	n.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"event":       string(kind),
		"total_items": order.TotalItems,
	}).Info("order notification")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
