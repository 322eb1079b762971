package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result для операций заказа.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultIncident = "incident"
	ResultError    = "error"
)

// Направление движения остатков.
const (
	StockReserved = "reserved"
	StockReleased = "released"
)

// OrderMetrics содержит метрики оформления заказов и резервирования остатков.
type OrderMetrics struct {
	// Счётчики операций
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	incidents  *prometheus.CounterVec

	// Движение остатков в штуках
	stockUnits *prometheus.CounterVec

	// Гистограмма времени выполнения
	operationDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	notifications  *prometheus.CounterVec
	compensations  prometheus.Counter
	cacheLookups   *prometheus.CounterVec

	// Gauge для операций в процессе
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики, зарегистрированные в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном registry (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_order_operations_total",
			Help: "Total number of order operations grouped by operation and result",
		}, []string{"operation", "result"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_order_rejections_total",
			Help: "Total number of orders rejected by validation grouped by reason",
		}, []string{"reason"}),
		incidents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_reservation_incidents_total",
			Help: "Total number of failures after the catalog stock was already mutated",
		}, []string{"operation"}),
		stockUnits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_stock_units_total",
			Help: "Total number of stock units moved grouped by direction",
		}, []string{"direction"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "funko_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "funko_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_order_notifications_total",
			Help: "Total number of order notifications grouped by result",
		}, []string{"result"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "funko_reservation_compensations_total",
			Help: "Total number of released lines re-applied after a rejected update",
		}),
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "funko_order_cache_lookups_total",
			Help: "Total number of order cache lookups grouped by result",
		}, []string{"result"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "funko_order_operations_in_flight",
			Help: "Number of order operations currently holding product locks",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOperation увеличивает счётчик операций с указанным результатом.
func (m *OrderMetrics) RecordOperation(operation, result string) {
	m.operations.WithLabelValues(operation, result).Inc()
}

// RecordRejection фиксирует отказ валидации по причине reason.
func (m *OrderMetrics) RecordRejection(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// RecordIncident фиксирует рассогласование каталога и заказов.
func (m *OrderMetrics) RecordIncident(operation string) {
	m.incidents.WithLabelValues(operation).Inc()
}

// RecordStockUnits добавляет units к счётчику движения остатков.
func (m *OrderMetrics) RecordStockUnits(direction string, units int) {
	if units <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(direction).Add(float64(units))
}

// RecordOperationDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordNotification фиксирует результат отправки уведомления.
func (m *OrderMetrics) RecordNotification(result string) {
	m.notifications.WithLabelValues(result).Inc()
}

// RecordCompensation увеличивает счётчик компенсаций.
func (m *OrderMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// RecordCacheLookup фиксирует hit/miss/error кэша заказов.
func (m *OrderMetrics) RecordCacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// OperationStarted увеличивает количество операций в процессе.
func (m *OrderMetrics) OperationStarted() {
	m.inFlight.Inc()
}

// OperationFinished уменьшает количество операций в процессе.
func (m *OrderMetrics) OperationFinished() {
	m.inFlight.Dec()
}
