package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryPendingStore_PutTakePeek(t *testing.T) {
	store := NewMemoryPendingStore(time.Hour)
	ctx := context.Background()

	order := PendingOrder{CorrelationID: "txn-1", CustomerID: "user-1", TotalAfterDiscount: 180}
	if err := store.Put(ctx, order); err != nil {
		t.Fatalf("put: %v", err)
	}

	peeked, ok, err := store.Peek(ctx, "txn-1")
	if err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if peeked.CustomerID != "user-1" {
		t.Fatalf("peek returned wrong order: %+v", peeked)
	}
	if store.Len() != 1 {
		t.Fatalf("peek must not consume, len=%d", store.Len())
	}

	taken, ok, err := store.Take(ctx, "txn-1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if taken.TotalAfterDiscount != 180 {
		t.Fatalf("take returned wrong order: %+v", taken)
	}

	if _, ok, _ := store.Take(ctx, "txn-1"); ok {
		t.Fatal("second take must miss")
	}
}

func TestMemoryPendingStore_DuplicatePut(t *testing.T) {
	store := NewMemoryPendingStore(time.Hour)
	ctx := context.Background()

	if err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1"})
	if !errors.Is(err, ErrDuplicateCorrelation) {
		t.Fatalf("expected ErrDuplicateCorrelation, got %v", err)
	}
}

func TestMemoryPendingStore_PutOverExpiredEntry(t *testing.T) {
	store := NewMemoryPendingStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	if err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1", CustomerID: "user-2"}); err != nil {
		t.Fatalf("put over expired entry: %v", err)
	}

	order, ok, _ := store.Peek(ctx, "txn-1")
	if !ok || order.CustomerID != "user-2" {
		t.Fatalf("expected replacement entry, got ok=%v order=%+v", ok, order)
	}
}

func TestMemoryPendingStore_TakeExpired(t *testing.T) {
	store := NewMemoryPendingStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	if err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	current = current.Add(time.Minute)

	if _, ok, _ := store.Take(ctx, "txn-1"); ok {
		t.Fatal("expired entry must not be taken")
	}
	if store.Len() != 0 {
		t.Fatalf("expired entry should be dropped on take, len=%d", store.Len())
	}
}

func TestMemoryPendingStore_Sweep(t *testing.T) {
	store := NewMemoryPendingStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	_ = store.Put(ctx, PendingOrder{CorrelationID: "txn-old"})
	current = current.Add(2 * time.Minute)
	_ = store.Put(ctx, PendingOrder{CorrelationID: "txn-new"})

	evicted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(evicted) != 1 || evicted[0].CorrelationID != "txn-old" {
		t.Fatalf("evicted = %+v, want only txn-old", evicted)
	}
	if _, ok, _ := store.Peek(ctx, "txn-new"); !ok {
		t.Fatal("live entry must survive the sweep")
	}
}

func TestMemoryPendingStore_KeyedIsolation(t *testing.T) {
	store := NewMemoryPendingStore(time.Hour)
	ctx := context.Background()
	const workers = 32

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("txn-%d", i)
			if err := store.Put(ctx, PendingOrder{CorrelationID: id, CustomerID: fmt.Sprintf("user-%d", i)}); err != nil {
				errCh <- err
				return
			}
			order, ok, err := store.Take(ctx, id)
			if err != nil || !ok {
				errCh <- fmt.Errorf("take %s: ok=%v err=%v", id, ok, err)
				return
			}
			if order.CustomerID != fmt.Sprintf("user-%d", i) {
				errCh <- fmt.Errorf("cross-talk: %s got %s", id, order.CustomerID)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
	if store.Len() != 0 {
		t.Fatalf("all entries should be consumed, len=%d", store.Len())
	}
}

func TestMemoryPendingStore_ConcurrentTakeOnce(t *testing.T) {
	store := NewMemoryPendingStore(time.Hour)
	ctx := context.Background()
	if err := store.Put(ctx, PendingOrder{CorrelationID: "txn-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := store.Take(ctx, "txn-1"); ok {
				wins <- struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("entry taken %d times, want exactly once", count)
	}
}

func TestReaper_EvictsAndNotifies(t *testing.T) {
	store := NewMemoryPendingStore(time.Minute)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }
	_ = store.Put(context.Background(), PendingOrder{CorrelationID: "txn-stale"})
	current = current.Add(2 * time.Minute)

	evicted := make(chan PendingOrder, 1)
	reaper := NewReaper(store, time.Millisecond, func(string, ...any) {}, func(order PendingOrder) {
		evicted <- order
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	select {
	case order := <-evicted:
		if order.CorrelationID != "txn-stale" {
			t.Errorf("evicted %s, want txn-stale", order.CorrelationID)
		}
	case <-time.After(2 * time.Second):
		t.Error("reaper never evicted the stale entry")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancel")
	}
}
