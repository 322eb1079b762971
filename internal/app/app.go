package app

import (
	"context"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/health"
	"github.com/vladislavdragonenkov/funko-orders/internal/metrics"
	"github.com/vladislavdragonenkov/funko-orders/internal/service/orders"
	"github.com/vladislavdragonenkov/funko-orders/internal/version"
)

// Runtime — собранный сервис заказов вместе с инфраструктурой.
// Транспорт (HTTP/gRPC) встраивается снаружи и вызывает Orders.
type Runtime struct {
	Orders  *orders.Service
	Catalog domain.ProductRepository
	Health  *health.Handler

	cfg    Config
	deps   *runtimeDependencies
	logger *log.Entry

	mu      sync.Mutex
	opsAddr net.Addr
	closed  bool
}

// Build собирает зависимости по cfg. Вызывающий обязан вызвать Close или Run.
func Build(ctx context.Context, cfg Config) (*Runtime, error) {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	healthHandler := health.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	svc := orders.NewService(deps.orders, deps.products,
		orders.WithLogger(logger.WithField("component", "orders")),
		orders.WithNotifier(deps.notifier),
		orders.WithTimeline(deps.timeline),
		orders.WithCache(deps.cache),
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithReleasePolicy(cfg.ReleasePolicy),
	)

	return &Runtime{
		Orders:  svc,
		Catalog: deps.products,
		Health:  healthHandler,
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
	}, nil
}

// Run поднимает ops-сервер и outbox worker и блокируется до отмены ctx.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.Close()

	srv, addr, err := startOpsServer(r.cfg.MetricsAddr, r.logger, newOpsRouter(r.Health))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.opsAddr = addr
	r.mu.Unlock()

	var wg sync.WaitGroup
	if r.deps.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.deps.worker.Run(ctx)
		}()
	}

	r.logger.WithFields(log.Fields{
		"storage":        r.cfg.StorageDriver,
		"release_policy": string(r.Orders.ReleasePolicy()),
		"build":          version.String(),
	}).Info("funko order service started")

	<-ctx.Done()
	r.logger.Info("получен сигнал остановки")
	shutdownHTTP(srv, r.logger)
	wg.Wait()
	return ctx.Err()
}

// OpsAddr возвращает адрес ops-сервера после старта Run.
func (r *Runtime) OpsAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opsAddr
}

// Close освобождает соединения с хранилищами и брокером. Повторный вызов ничего не делает.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.deps.close(r.logger)
}

// Run собирает и запускает сервис до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	rt, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
