// Package cache содержит реализации кэша чтения заказов.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

const (
	keyPrefix  = "funko:order:"
	DefaultTTL = 5 * time.Minute
)

// RedisOrderCache хранит заказы в Redis в виде JSON с TTL.
type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создаёт клиента Redis по адресу host:port.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// NewRedisOrderCache создаёт кэш поверх готового клиента.
func NewRedisOrderCache(client *redis.Client, ttl time.Duration) *RedisOrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisOrderCache{client: client, ttl: ttl}
}

func orderKey(id string) string {
	return keyPrefix + id
}

// Get возвращает заказ из кэша. Отсутствие ключа считается промахом, не ошибкой.
func (c *RedisOrderCache) Get(ctx context.Context, id string) (domain.Order, bool, error) {
	raw, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("redis get order %s: %w", id, err)
	}

	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return domain.Order{}, false, fmt.Errorf("decode cached order %s: %w", id, err)
	}
	return order, true, nil
}

// Set кладёт заказ в кэш на ttl.
func (c *RedisOrderCache) Set(ctx context.Context, order domain.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.ID, err)
	}
	if err := c.client.Set(ctx, orderKey(order.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set order %s: %w", order.ID, err)
	}
	return nil
}

// Delete удаляет заказ из кэша.
func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete order %s: %w", id, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close закрывает соединения клиента.
func (c *RedisOrderCache) Close() error {
	return c.client.Close()
}

var _ domain.OrderCache = (*RedisOrderCache)(nil)
