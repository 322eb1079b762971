package orders

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
)

// keyedLocker выдаёт взаимное исключение по строковым ключам внутри процесса.
// Ключи берутся в отсортированном порядке, поэтому пересекающиеся наборы не дают deadlock.
type keyedLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{slots: make(map[string]*lockSlot)}
}

// Lock захватывает все ключи или ни одного. Ожидание прерывается отменой ctx.
func (l *keyedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = uniqueSorted(keys)

	acquired := make([]string, 0, len(keys))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.unlock(acquired[i])
		}
	}

	for _, key := range keys {
		slot := l.ref(key)
		if err := slot.sem.Acquire(ctx, 1); err != nil {
			l.unref(key)
			release()
			return func() {}, err
		}
		acquired = append(acquired, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *keyedLocker) ref(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *keyedLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.slots[key]
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *keyedLocker) unlock(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	l.mu.Unlock()

	slot.sem.Release(1)
	l.unref(key)
}

// size возвращает число активных ключей (для тестов).
func (l *keyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func uniqueSorted(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

func orderKey(id string) string {
	return "order:" + id
}

func productKeys(groups ...[]domain.OrderLine) []string {
	var keys []string
	for _, lines := range groups {
		for _, line := range lines {
			keys = append(keys, "product:"+line.ProductID)
		}
	}
	return keys
}
