package app

import (
	"time"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// Пустой RedisAddr отключает кэш заказов.
	RedisAddr string
	CacheTTL  time.Duration

	// Без KafkaBrokers уведомления только пишутся в лог.
	KafkaBrokers       []string
	NotificationsTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// Пороги backlog для health-проверки outbox; 0 отключает порог.
	OutboxMaxPending    int
	OutboxMaxPendingAge time.Duration

	ReleasePolicy domain.ReleasePolicy
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheTTL:            5 * time.Minute,
		NotificationsTopic:  kafka.TopicOrderNotifications,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		OutboxMaxPending:    1000,
		OutboxMaxPendingAge: 5 * time.Minute,
		ReleasePolicy:       domain.ReleaseRequestedLines,
	}
}
