package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// BacklogChecker помечает сервис degraded, если уведомления копятся в outbox.
type BacklogChecker struct {
	name     string
	outbox   domain.OutboxRepository
	maxAge   time.Duration
	maxCount int
	now      func() time.Time
}

// NewBacklogChecker создаёт проверку backlog. Нулевые пороги не проверяются.
func NewBacklogChecker(name string, outbox domain.OutboxRepository, maxCount int, maxAge time.Duration) *BacklogChecker {
	return &BacklogChecker{
		name:     name,
		outbox:   outbox,
		maxAge:   maxAge,
		maxCount: maxCount,
		now:      time.Now,
	}
}

// Check читает статистику outbox.
func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	stats, err := c.outbox.Stats(ctx)
	check := Check{Name: c.name, Status: StatusHealthy}

	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.maxCount > 0 && stats.PendingCount > c.maxCount:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending notifications", stats.PendingCount)
	case c.maxAge > 0 && !stats.OldestPendingAt.IsZero() && c.now().Sub(stats.OldestPendingAt) > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("oldest pending notification is %s old", c.now().Sub(stats.OldestPendingAt).Round(time.Second))
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
