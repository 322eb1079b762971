package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfig читает конфигурацию из окружения и логирует предупреждения.
func readConfig(lookup app.EnvLookup) app.Config {
	cfg, warnings := app.ConfigFromEnv(lookup)
	for _, w := range warnings {
		log.Warn(w)
	}
	return cfg
}

func main() {
	setupLogger()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}
	cfg := readConfig(os.LookupEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr":   cfg.MetricsAddr,
		"storage":        cfg.StorageDriver,
		"redis":          cfg.RedisAddr != "",
		"kafka":          len(cfg.KafkaBrokers) > 0,
		"release_policy": string(cfg.ReleasePolicy),
	}).Info("запускаем funko order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("funko order service остановлен")
}
