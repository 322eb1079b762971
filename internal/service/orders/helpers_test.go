package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/metrics"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/memory"
)

type testEnv struct {
	catalog  domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	notifier *stubNotifier
	metrics  *metrics.OrderMetrics
	service  *Service
}

func newTestEnv(t *testing.T, options ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		catalog:  memory.NewProductRepository(),
		orders:   memory.NewOrderRepository(),
		timeline: memory.NewTimelineRepository(),
		notifier: &stubNotifier{},
		metrics:  metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry()),
	}
	base := []Option{
		WithNotifier(env.notifier),
		WithTimeline(env.timeline),
		WithMetrics(env.metrics),
	}
	env.service = NewService(env.orders, env.catalog, append(base, options...)...)
	return env
}

func (e *testEnv) seed(t *testing.T, id, price string, stock int) {
	t.Helper()
	product := domain.Product{ID: id, Name: "Funko " + id, Price: decimal.RequireFromString(price), Stock: stock}
	if err := e.catalog.CreateProduct(context.Background(), product); err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	product, err := e.catalog.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

func line(productID, price string, qty int) domain.OrderLine {
	return domain.OrderLine{
		ProductID:    productID,
		ProductPrice: decimal.RequireFromString(price),
		Quantity:     qty,
	}
}

func intent(lines ...domain.OrderLine) domain.OrderIntent {
	return domain.OrderIntent{
		UserID: "user-1",
		Client: domain.Client{
			FullName: "Ana Pérez",
			Email:    "ana@example.com",
			Phone:    "+34600000000",
			Address:  domain.Address{Street: "Gran Via", Number: "1", City: "Madrid", Country: "ES", PostalCode: "28013"},
		},
		Lines: lines,
	}
}

type sentNotification struct {
	kind    domain.NotificationType
	orderID string
}

type stubNotifier struct {
	mu    sync.Mutex
	calls []sentNotification
	err   error
}

func (n *stubNotifier) Notify(_ context.Context, kind domain.NotificationType, order domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, sentNotification{kind: kind, orderID: order.ID})
	return n.err
}

func (n *stubNotifier) kinds() []domain.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]domain.NotificationType, 0, len(n.calls))
	for _, call := range n.calls {
		result = append(result, call.kind)
	}
	return result
}

type stubCache struct {
	mu      sync.Mutex
	items   map[string]domain.Order
	gets    int
	hits    int
	deletes int
}

func newStubCache() *stubCache {
	return &stubCache{items: make(map[string]domain.Order)}
}

func (c *stubCache) Get(_ context.Context, id string) (domain.Order, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	order, ok := c.items[id]
	if ok {
		c.hits++
	}
	return order.Clone(), ok, nil
}

func (c *stubCache) Set(_ context.Context, order domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[order.ID] = order.Clone()
	return nil
}

func (c *stubCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.items, id)
	return nil
}

// failingCatalog отказывает в сохранении выбранного товара.
type failingCatalog struct {
	domain.ProductRepository
	failSave map[string]error
}

func (c *failingCatalog) SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err, ok := c.failSave[product.ID]; ok {
		return domain.Product{}, err
	}
	return c.ProductRepository.SaveProduct(ctx, product)
}

var errStorageDown = errors.New("storage down")

// failingOrders отказывает в операциях записи заказов.
type failingOrders struct {
	domain.OrderRepository
	createErr error
	deleteErr error
}

func (r *failingOrders) Create(ctx context.Context, order domain.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.OrderRepository.Create(ctx, order)
}

func (r *failingOrders) Delete(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.OrderRepository.Delete(ctx, id)
}
