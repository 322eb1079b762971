package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/metrics"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opRemove = "remove"
)

// Service оформляет, заменяет и удаляет заказы, удерживая остатки каталога
// в соответствии с сохранёнными заказами.
type Service struct {
	orders    domain.OrderRepository
	validator *Validator
	engine    *ReservationEngine
	notifier  domain.Notifier
	timeline  domain.TimelineRepository
	cache     domain.OrderCache
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
	policy    domain.ReleasePolicy
	now       func() time.Time
	newID     func() string

	locks *keyedLocker
	reads singleflight.Group
}

// NewService собирает сервис заказов поверх хранилища заказов и каталога.
func NewService(orders domain.OrderRepository, catalog domain.Catalog, options ...Option) *Service {
	opts := defaultServiceOptions()
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	if _, ok := domain.ParseReleasePolicy(string(opts.ReleasePolicy)); !ok {
		opts.ReleasePolicy = domain.ReleaseRequestedLines
	}

	return &Service{
		orders:    orders,
		validator: NewValidator(catalog),
		engine:    NewReservationEngine(catalog, logger.WithField("component", "reservation-engine")),
		notifier:  opts.Notifier,
		timeline:  opts.Timeline,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    logger,
		policy:    opts.ReleasePolicy,
		now:       opts.Clock,
		newID:     opts.IDGenerator,
		locks:     newKeyedLocker(),
	}
}

// ReleasePolicy возвращает действующую политику возврата остатков при Update.
func (s *Service) ReleasePolicy() domain.ReleasePolicy {
	return s.policy
}

// Create проверяет позиции, списывает остатки и сохраняет новый заказ.
func (s *Service) Create(ctx context.Context, intent domain.OrderIntent) (domain.Order, error) {
	started := time.Now()
	finish := s.track()
	order, err := s.create(ctx, intent)
	finish()
	s.observe(opCreate, started, err)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_items": order.TotalItems,
		"total":       order.Total.StringFixed(2),
	}).Info("order created")
	s.afterCommit(ctx, domain.NotificationCreate, domain.TimelineOrderCreated, order)
	return order, nil
}

func (s *Service) create(ctx context.Context, intent domain.OrderIntent) (domain.Order, error) {
	unlock, err := s.lock(ctx, productKeys(intent.Lines)...)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	if err := s.validator.Validate(ctx, intent.Lines); err != nil {
		return domain.Order{}, err
	}

	orderID := s.newID()
	reservation, err := s.engine.Reserve(ctx, intent.Lines)
	if err != nil {
		return domain.Order{}, s.reportIncident(ctx, orderID, err)
	}
	s.recordStock(metrics.StockReserved, reservation.Lines)

	now := s.now()
	order := domain.Order{
		ID:        orderID,
		UserID:    intent.UserID,
		Client:    intent.Client,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	reservation.Apply(&order)

	// Остатки уже списаны: отмена запроса не должна помешать сохранению.
	if err := s.orders.Create(context.WithoutCancel(ctx), order); err != nil {
		return domain.Order{}, s.reportIncident(ctx, orderID, &domain.IncidentError{
			Operation: opCreate,
			Applied:   reservation.Lines,
			Err:       fmt.Errorf("persist order: %w", err),
		})
	}

	return order.Clone(), nil
}

// Update заменяет позиции существующего заказа, перераспределяя остатки.
func (s *Service) Update(ctx context.Context, id string, intent domain.OrderIntent) (domain.Order, error) {
	started := time.Now()
	finish := s.track()
	order, err := s.update(ctx, id, intent)
	finish()
	s.observe(opUpdate, started, err)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"total_items": order.TotalItems,
		"total":       order.Total.StringFixed(2),
		"policy":      string(s.policy),
	}).Info("order updated")
	s.afterCommit(ctx, domain.NotificationUpdate, domain.TimelineOrderUpdated, order)
	return order, nil
}

func (s *Service) update(ctx context.Context, id string, intent domain.OrderIntent) (domain.Order, error) {
	unlockOrder, err := s.lock(ctx, orderKey(id))
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockOrder()

	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	unlockProducts, err := s.lock(ctx, productKeys(existing.Lines, intent.Lines)...)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockProducts()

	toRelease := intent.Lines
	if s.policy == domain.ReleaseStoredLines {
		toRelease = existing.Lines
	}

	released, err := s.engine.Release(ctx, toRelease)
	if err != nil {
		return domain.Order{}, s.reportIncident(ctx, id, err)
	}

	if err := s.validator.Validate(ctx, intent.Lines); err != nil {
		if compErr := s.compensate(ctx, id, released); compErr != nil {
			return domain.Order{}, compErr
		}
		return domain.Order{}, err
	}
	s.recordStock(metrics.StockReleased, released)

	reservation, err := s.engine.Reserve(ctx, intent.Lines)
	if err != nil {
		return domain.Order{}, s.reportIncident(ctx, id, err)
	}
	s.recordStock(metrics.StockReserved, reservation.Lines)

	updated := existing.Clone()
	updated.UserID = intent.UserID
	updated.Client = intent.Client
	updated.UpdatedAt = s.now()
	reservation.Apply(&updated)

	if err := s.orders.Update(context.WithoutCancel(ctx), updated); err != nil {
		return domain.Order{}, s.reportIncident(ctx, id, &domain.IncidentError{
			Operation: opUpdate,
			Applied:   reservation.Lines,
			Err:       fmt.Errorf("persist order: %w", err),
		})
	}
	updated.Version++
	s.invalidate(ctx, id)

	return updated.Clone(), nil
}

// Remove возвращает остатки по позициям заказа и удаляет его физически.
func (s *Service) Remove(ctx context.Context, id string) error {
	started := time.Now()
	finish := s.track()
	order, err := s.remove(ctx, id)
	finish()
	s.observe(opRemove, started, err)
	if err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("order removed")
	s.afterCommit(ctx, domain.NotificationDelete, domain.TimelineOrderRemoved, order)
	return nil
}

func (s *Service) remove(ctx context.Context, id string) (domain.Order, error) {
	unlockOrder, err := s.lock(ctx, orderKey(id))
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockOrder()

	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	unlockProducts, err := s.lock(ctx, productKeys(existing.Lines)...)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockProducts()

	released, err := s.engine.Release(ctx, existing.Lines)
	if err != nil {
		return domain.Order{}, s.reportIncident(ctx, id, err)
	}
	s.recordStock(metrics.StockReleased, released)

	if err := s.orders.Delete(context.WithoutCancel(ctx), id); err != nil {
		return domain.Order{}, s.reportIncident(ctx, id, &domain.IncidentError{
			Operation: opRemove,
			Applied:   released,
			Err:       fmt.Errorf("delete order: %w", err),
		})
	}
	s.invalidate(ctx, id)

	return existing, nil
}

// FindOne возвращает заказ по ID через кэш; конкурентные промахи схлопываются.
func (s *Service) FindOne(ctx context.Context, id string) (domain.Order, error) {
	if s.cache != nil {
		order, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("order_id", id).Warn("order cache lookup failed")
			s.recordCache("error")
		case ok:
			s.recordCache("hit")
			return order, nil
		default:
			s.recordCache("miss")
		}
	}

	value, err, _ := s.reads.Do(id, func() (any, error) {
		// Результат делят все ожидающие: отмена первого вызова не должна их прерывать.
		ctx := context.WithoutCancel(ctx)
		order, err := s.orders.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, order); err != nil {
				s.logger.WithError(err).WithField("order_id", id).Warn("order cache store failed")
			}
		}
		return order, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	return value.(domain.Order).Clone(), nil
}

// FindByUserID возвращает заказы пользователя, новые первыми; limit <= 0 снимает ограничение.
func (s *Service) FindByUserID(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	return orders, nil
}

// Timeline возвращает историю заказа, если timeline подключён.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, id)
}

func (s *Service) lock(ctx context.Context, keys ...string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("acquire order locks: %w", err)
	}
	return unlock, nil
}

// track учитывает одну изменяющую операцию в gauge in-flight.
func (s *Service) track() func() {
	if s.metrics == nil {
		return func() {}
	}
	s.metrics.OperationStarted()
	return s.metrics.OperationFinished
}

// compensate повторно списывает остатки, возвращённые перед отклонённой проверкой.
func (s *Service) compensate(ctx context.Context, orderID string, released []domain.OrderLine) error {
	if len(released) == 0 {
		return nil
	}

	if _, err := s.engine.Reserve(context.WithoutCancel(ctx), released); err != nil {
		var incident *domain.IncidentError
		if errors.As(err, &incident) {
			incident.Operation = "compensate"
		}
		return s.reportIncident(ctx, orderID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCompensation()
	}
	s.appendTimeline(ctx, orderID, domain.TimelineReservationCompensated, fmt.Sprintf("re-applied %d released lines", len(released)))
	return nil
}

// reportIncident фиксирует рассогласование каталога и хранилища заказов.
// Автоматического отката нет: инцидент требует ручной сверки.
func (s *Service) reportIncident(ctx context.Context, orderID string, err error) error {
	var incident *domain.IncidentError
	if !errors.As(err, &incident) {
		return err
	}
	if incident.OrderID == "" {
		incident.OrderID = orderID
	}

	s.logger.WithError(incident.Err).WithFields(log.Fields{
		"incident":         true,
		"operation":        incident.Operation,
		"order_id":         orderID,
		"applied_lines":    len(incident.Applied),
		"version_conflict": domain.IsVersionConflict(incident.Err),
	}).Error("catalog stock and orders are inconsistent")

	if s.metrics != nil {
		s.metrics.RecordIncident(incident.Operation)
	}
	s.appendTimeline(ctx, orderID, domain.TimelineReservationIncident, incident.Error())
	return incident
}

func (s *Service) afterCommit(ctx context.Context, kind domain.NotificationType, eventType string, order domain.Order) {
	ctx = context.WithoutCancel(ctx)
	s.appendTimeline(ctx, order.ID, eventType, "")

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, kind, order); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    string(kind),
		}).Warn("order notification failed")
		s.recordNotification("failed")
		return
	}
	s.recordNotification("sent")
}

func (s *Service) appendTimeline(ctx context.Context, orderID, eventType, reason string) {
	if s.timeline == nil || orderID == "" {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.WithError(err).WithField("order_id", id).Warn("order cache invalidation failed")
	}
}

func (s *Service) observe(operation string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperationDuration(operation, time.Since(started))

	switch {
	case err == nil:
		s.metrics.RecordOperation(operation, metrics.ResultSuccess)
	case domain.IsIncident(err):
		s.metrics.RecordOperation(operation, metrics.ResultIncident)
	case domain.IsClientError(err):
		s.metrics.RecordOperation(operation, metrics.ResultRejected)
		s.metrics.RecordRejection(RejectionReason(err))
	default:
		s.metrics.RecordOperation(operation, metrics.ResultError)
	}
}

func (s *Service) recordStock(direction string, lines []domain.OrderLine) {
	if s.metrics == nil {
		return
	}
	units := 0
	for _, line := range lines {
		units += line.Quantity
	}
	s.metrics.RecordStockUnits(direction, units)
}

func (s *Service) recordNotification(result string) {
	if s.metrics != nil {
		s.metrics.RecordNotification(result)
	}
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(result)
	}
}

// RejectionReason возвращает короткий код причины клиентской ошибки.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	default:
		return "other"
	}
}
