package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/cache"
	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/health"
	"github.com/vladislavdragonenkov/funko-orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/notification"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/outbox"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/postgres"
	"github.com/vladislavdragonenkov/funko-orders/internal/version"
)

// runtimeDependencies — хранилища и инфраструктура, выбранные по конфигурации.
type runtimeDependencies struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	cache    domain.OrderCache
	notifier domain.Notifier
	worker   *outbox.Worker
	checkers map[string]health.Checker
	closers  []func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]health.Checker)}

	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	deps.initCache(ctx, cfg, logger)
	deps.initNotifications(cfg, logger)

	deps.checkers["outbox"] = health.NewBacklogChecker("outbox", deps.outbox, cfg.OutboxMaxPending, cfg.OutboxMaxPendingAge)
	return deps, nil
}

func (d *runtimeDependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		d.products = memory.NewProductRepository()
		d.orders = memory.NewOrderRepository()
		d.outbox = memory.NewOutboxRepository()
		d.timeline = memory.NewTimelineRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}

		d.products = postgres.NewProductRepository(store)
		d.orders = postgres.NewOrderRepository(store)
		d.outbox = postgres.NewOutboxRepository(store)
		d.timeline = postgres.NewTimelineRepository(store)
		d.checkers["postgres"] = health.NewPingChecker("postgres", store)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// initCache подключает Redis, если он задан. Недоступный Redis не мешает старту.
func (d *runtimeDependencies) initCache(ctx context.Context, cfg Config, logger *log.Entry) {
	d.cache = cache.Noop{}
	if cfg.RedisAddr == "" {
		return
	}

	redisCache := cache.NewRedisOrderCache(cache.NewRedisClient(cfg.RedisAddr), cfg.CacheTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis is unavailable, order cache disabled")
		_ = redisCache.Close()
		return
	}

	d.cache = redisCache
	d.closers = append(d.closers, redisCache.Close)
	d.checkers["redis"] = health.NewPingChecker("redis", redisCache)
	logger.WithField("addr", cfg.RedisAddr).Info("redis order cache enabled")
}

// initNotifications включает доставку через outbox в Kafka, если заданы брокеры.
func (d *runtimeDependencies) initNotifications(cfg Config, logger *log.Entry) {
	d.notifier = notification.NewLogNotifier(logger.WithField("component", "notifier"))
	if len(cfg.KafkaBrokers) == 0 {
		return
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, version.Service)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return
	}
	d.closers = append(d.closers, producer.Close)

	d.notifier = notification.NewOutboxNotifier(d.outbox, logger.WithField("component", "notifier"))
	d.worker = outbox.NewWorker(
		d.outbox,
		kafka.NewOutboxPublisher(producer, cfg.NotificationsTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka notifications enabled")
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
