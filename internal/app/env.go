package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// Переменные окружения сервиса.
const (
	EnvMetricsAddr         = "FUNKO_METRICS_ADDR"
	EnvStorageDriver       = "FUNKO_STORAGE_DRIVER"
	EnvPostgresDSN         = "FUNKO_POSTGRES_DSN"
	EnvPostgresAutoMigrate = "FUNKO_POSTGRES_AUTO_MIGRATE"
	EnvRedisAddr           = "FUNKO_REDIS_ADDR"
	EnvCacheTTL            = "FUNKO_CACHE_TTL"
	EnvKafkaBrokers        = "KAFKA_BROKERS"
	EnvNotificationsTopic  = "FUNKO_NOTIFICATIONS_TOPIC"
	EnvOutboxPollInterval  = "FUNKO_OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize     = "FUNKO_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts   = "FUNKO_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetryDelay    = "FUNKO_OUTBOX_RETRY_DELAY"
	EnvOutboxMaxPending    = "FUNKO_OUTBOX_MAX_PENDING"
	EnvOutboxMaxPendingAge = "FUNKO_OUTBOX_MAX_PENDING_AGE"
	EnvUpdateReleasePolicy = "FUNKO_UPDATE_RELEASE_POLICY"
)

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// ConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения игнорируются, а описание проблемы попадает в warnings.
func ConfigFromEnv(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, value, err))
	}
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	if v, ok := get(EnvMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := get(EnvStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := get(EnvPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := get(EnvPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(EnvPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := get(EnvRedisAddr); ok {
		cfg.RedisAddr = v
	}
	if v, ok := get(EnvCacheTTL); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(EnvCacheTTL, v, err)
		} else {
			cfg.CacheTTL = parsed
		}
	}
	if v, ok := get(EnvKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := get(EnvNotificationsTopic); ok {
		cfg.NotificationsTopic = v
	}
	if v, ok := get(EnvOutboxPollInterval); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(EnvOutboxPollInterval, v, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := get(EnvOutboxBatchSize); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(EnvOutboxBatchSize, v, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v, ok := get(EnvOutboxMaxAttempts); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(EnvOutboxMaxAttempts, v, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v, ok := get(EnvOutboxRetryDelay); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(EnvOutboxRetryDelay, v, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v, ok := get(EnvOutboxMaxPending); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0"); err != nil {
			warn(EnvOutboxMaxPending, v, err)
		} else {
			cfg.OutboxMaxPending = parsed
		}
	}
	if v, ok := get(EnvOutboxMaxPendingAge); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(EnvOutboxMaxPendingAge, v, err)
		} else {
			cfg.OutboxMaxPendingAge = parsed
		}
	}
	if v, ok := get(EnvUpdateReleasePolicy); ok {
		if policy, valid := domain.ParseReleasePolicy(strings.ToLower(v)); !valid {
			warn(EnvUpdateReleasePolicy, v, fmt.Errorf("expected %q or %q", domain.ReleaseRequestedLines, domain.ReleaseStoredLines))
		} else {
			cfg.ReleasePolicy = policy
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
