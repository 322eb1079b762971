package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisOrderCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewRedisOrderCache(NewRedisClient(mr.Addr()), ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleOrder() domain.Order {
	price := decimal.RequireFromString("19.99")
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Client: domain.Client{FullName: "Ana", Email: "ana@example.com"},
		Lines: []domain.OrderLine{{
			ProductID:    "funko-1",
			ProductPrice: price,
			Quantity:     2,
			Total:        decimal.RequireFromString("39.98"),
		}},
		TotalItems: 2,
		Total:      decimal.RequireFromString("39.98"),
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Version:    1,
	}
}

func TestRedisOrderCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	order := sampleOrder()
	require.NoError(t, c.Set(ctx, order))
	require.True(t, mr.Exists("funko:order:order-1"))

	got, ok, err := c.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.ID, got.ID)
	require.True(t, order.Total.Equal(got.Total))
	require.Len(t, got.Lines, 1)
	require.True(t, got.Lines[0].ProductPrice.Equal(order.Lines[0].ProductPrice))
	require.True(t, order.CreatedAt.Equal(got.CreatedAt))
}

func TestRedisOrderCache_MissIsNotError(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisOrderCache_Expires(t *testing.T) {
	c, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleOrder()))
	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "order-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisOrderCache_Delete(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleOrder()))
	require.NoError(t, c.Delete(ctx, "order-1"))
	require.NoError(t, c.Delete(ctx, "order-1"))

	_, ok, err := c.Get(ctx, "order-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisOrderCache_CorruptedEntry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("funko:order:broken", "{not json"))

	_, ok, err := c.Get(context.Background(), "broken")
	require.Error(t, err)
	require.False(t, ok)
}

func TestRedisOrderCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, _, err := c.Get(context.Background(), "order-1")
	require.Error(t, err)
	require.Error(t, c.Ping(context.Background()))
}

func TestNoop(t *testing.T) {
	var c domain.OrderCache = Noop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleOrder()))
	_, ok, err := c.Get(ctx, "order-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Delete(ctx, "order-1"))
}

func TestNewRedisOrderCache_DefaultTTL(t *testing.T) {
	c := NewRedisOrderCache(NewRedisClient("127.0.0.1:0"), 0)
	defer c.Close()
	require.Equal(t, DefaultTTL, c.ttl)
}
