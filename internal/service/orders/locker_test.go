package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	locker := newKeyedLocker()

	unlock, err := locker.Lock(context.Background(), "product:P1")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(context.Background(), "product:P1", "product:P2")
		if err != nil {
			t.Errorf("second lock failed: %v", err)
			return
		}
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock was not acquired after release")
	}
}

func TestKeyedLocker_ContextCancel(t *testing.T) {
	locker := newKeyedLocker()
	unlock, err := locker.Lock(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := locker.Lock(ctx, "c", "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Ключ c должен быть отпущен после неудачного захвата.
	again, err := locker.Lock(context.Background(), "c")
	if err != nil {
		t.Fatalf("lock c failed: %v", err)
	}
	again()
}

func TestKeyedLocker_OverlappingSetsDoNotDeadlock(t *testing.T) {
	locker := newKeyedLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		keys := []string{"x", "y", "z"}
		if i%2 == 0 {
			keys = []string{"z", "y", "x"}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, keys...)
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			unlock()
		}(keys)
	}
	wg.Wait()

	if got := locker.size(); got != 0 {
		t.Fatalf("expected no active keys, got %d", got)
	}
}

func TestKeyedLocker_UnlockIsIdempotent(t *testing.T) {
	locker := newKeyedLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	unlock()
	unlock()

	if got := locker.size(); got != 0 {
		t.Fatalf("expected no active keys, got %d", got)
	}
}
