package orders

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/metrics"
)

// ServiceOptions задаёт необязательные зависимости сервиса заказов.
type ServiceOptions struct {
	Logger        *log.Entry
	Notifier      domain.Notifier
	Timeline      domain.TimelineRepository
	Cache         domain.OrderCache
	Metrics       *metrics.OrderMetrics
	ReleasePolicy domain.ReleasePolicy
	Clock         func() time.Time
	IDGenerator   func() string
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithNotifier задаёт получателя уведомлений CREATE/UPDATE/DELETE.
func WithNotifier(notifier domain.Notifier) Option {
	return func(opts *ServiceOptions) {
		opts.Notifier = notifier
	}
}

// WithTimeline включает запись истории заказа и инцидентов.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(opts *ServiceOptions) {
		opts.Timeline = timeline
	}
}

// WithCache включает кэш чтения FindOne.
func WithCache(cache domain.OrderCache) Option {
	return func(opts *ServiceOptions) {
		opts.Cache = cache
	}
}

// WithMetrics задаёт prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithReleasePolicy выбирает, какие позиции возвращаются на склад при Update.
func WithReleasePolicy(policy domain.ReleasePolicy) Option {
	return func(opts *ServiceOptions) {
		opts.ReleasePolicy = policy
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *ServiceOptions) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(generator func() string) Option {
	return func(opts *ServiceOptions) {
		opts.IDGenerator = generator
	}
}

func defaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		ReleasePolicy: domain.ReleaseRequestedLines,
		Clock:         func() time.Time { return time.Now().UTC() },
		IDGenerator:   uuid.NewString,
	}
}
