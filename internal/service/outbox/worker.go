// Package outbox доставляет уведомления о заказах из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/notification"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second

	// unknownKind помечает сообщения с нераспознанным типом.
	unknownKind = "UNKNOWN"
)

// Исходы доставки одного уведомления.
const (
	outcomeSent      = "sent"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
	outcomeDLQFailed = "dlq_failed"
)

var (
	notificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funko_order_notifications_delivered_total",
		Help: "Order notifications leaving the outbox by notification type and outcome.",
	}, []string{"type", "outcome"})
	notificationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funko_order_notification_publish_retries_total",
		Help: "Failed broker publish attempts by notification type.",
	}, []string{"type"})
	pendingNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "funko_outbox_pending_notifications",
		Help: "Order notifications waiting in the outbox.",
	})
	oldestPendingNotificationAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "funko_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending order notification.",
	})
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithDLQPublisher задаёт publisher для уведомлений, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.deadLetters = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithBatchSize задаёт число уведомлений, забираемых за один цикл.
func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации до отправки в DLQ.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) { w.maxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// BatchResult — итог одного цикла опроса.
type BatchResult struct {
	Sent int
	// Failed: уведомления, исчерпавшие попытки публикации.
	Failed int
	// Rejected: сообщения, которые не разбираются как уведомление о заказе.
	Rejected int
}

// Worker доставляет уведомления о заказах из outbox в брокер в порядке постановки.
type Worker struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	logger      *log.Entry
	now         func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт воркер; некорректные параметры заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		now:            func() time.Time { return time.Now().UTC() },
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	w.retryBaseDelay = max(w.retryBaseDelay, 0)
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}
	w.logger.WithFields(log.Fields{
		"poll_interval": w.pollInterval,
		"batch_size":    w.batchSize,
		"max_attempts":  w.maxAttempts,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает пачку pending-уведомлений и доставляет их по одному.
// Уведомление, доставка которого прервана отменой ctx, остаётся pending.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	w.observeBacklog(ctx)
	defer w.observeBacklog(ctx)

	pending, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order notifications")
		return result
	}

	for _, msg := range pending {
		if ctx.Err() != nil {
			return result
		}

		switch w.deliver(ctx, msg) {
		case outcomeSent:
			result.Sent++
		case outcomeRejected:
			result.Rejected++
		case outcomeFailed:
			result.Failed++
		default:
			return result
		}
	}
	return result
}

// deliver возвращает исход доставки или пустую строку, если её прервала отмена ctx.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) string {
	note, err := notification.Decode(msg)
	if err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"order_id":   msg.AggregateID,
			"event_type": msg.EventType,
		}).Error("order notification rejected")
		w.bury(ctx, msg, deadLetterFor(msg, reasonMalformed, 0, err))
		return outcomeRejected
	}

	kind := string(note.Type)
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"order_id":     note.Data.ID,
		"user_id":      note.Data.UserID,
		"notification": note.Type,
	})

	err = w.publish(ctx, kind, msg)
	switch {
	case err == nil:
		notificationDeliveries.WithLabelValues(kind, outcomeSent).Inc()
		if markErr := w.repo.MarkSent(context.WithoutCancel(ctx), msg.ID); markErr != nil {
			entry.WithError(markErr).Warn("failed to mark order notification as sent")
		}
		entry.Debug("order notification delivered")
		return outcomeSent
	case ctx.Err() != nil:
		entry.WithError(err).Info("order notification delivery interrupted, left pending")
		return ""
	}

	entry.WithError(err).Error("order notification publish failed after retries")
	w.bury(ctx, msg, deadLetterFor(msg, reasonPublishFailed, w.maxAttempts, err))
	return outcomeFailed
}

// publish отправляет сообщение в брокер, повторяя попытки с растущей паузой.
func (w *Worker) publish(ctx context.Context, kind string, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			return nil
		}
		notificationRetries.WithLabelValues(kind).Inc()

		if attempt == w.maxAttempts {
			break
		}
		if err := sleep(ctx, w.retryDelay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrOutboxPublish, kind, w.maxAttempts, lastErr)
}

// retryDelay возвращает паузу после attempt-й неудачной попытки.
func (w *Worker) retryDelay(attempt int) time.Duration {
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay > 0 && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingNotifications.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingNotificationAge.Set(0)
		return
	}
	oldestPendingNotificationAge.Set(max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0))
}
