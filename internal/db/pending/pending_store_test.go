package pendingdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"shopgate/internal/checkout"
)

func newTestStore(t *testing.T) (*RedisPendingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPendingStore(client, time.Minute), mr
}

func testOrder(correlationID string) checkout.PendingOrder {
	return checkout.PendingOrder{
		CorrelationID:      correlationID,
		CustomerID:         "user-1",
		Lines:              []checkout.PricedLine{{ProductID: "prod-a", Quantity: 2, UnitPrice: 100, LineSubtotal: 200, LineSubtotalAfterDiscount: 180}},
		TotalAfterDiscount: 180,
	}
}

func TestRedisPendingStore_PutTakeRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	order, ok, err := store.Take(ctx, "txn-1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if order.CustomerID != "user-1" || order.TotalAfterDiscount != 180 {
		t.Errorf("order = %+v", order)
	}
	if len(order.Lines) != 1 || order.Lines[0].ProductID != "prod-a" {
		t.Errorf("lines = %+v", order.Lines)
	}

	if _, ok, _ := store.Take(ctx, "txn-1"); ok {
		t.Fatal("second take must miss")
	}
}

func TestRedisPendingStore_PeekDoesNotConsume(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok, err := store.Peek(ctx, "txn-1"); err != nil || !ok {
		t.Fatalf("peek: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Take(ctx, "txn-1"); err != nil || !ok {
		t.Fatalf("take after peek: ok=%v err=%v", ok, err)
	}
}

func TestRedisPendingStore_DuplicatePut(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := store.Put(ctx, testOrder("txn-1"))
	if !errors.Is(err, checkout.ErrDuplicateCorrelation) {
		t.Fatalf("expected ErrDuplicateCorrelation, got %v", err)
	}
}

func TestRedisPendingStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, ok, _ := store.Take(ctx, "txn-1"); ok {
		t.Fatal("expired entry must not be taken")
	}

	// The key is gone, so the correlation id can be staged again.
	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("re-put after expiry: %v", err)
	}
}

// The reaper depends on the Redis store sweeping lapsed entries; a bare key
// TTL would erase them without a trace.
var _ checkout.Sweeper = (*RedisPendingStore)(nil)

func TestRedisPendingStore_SweepReportsExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-stale")); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	evicted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(evicted) != 1 || evicted[0].CorrelationID != "txn-stale" {
		t.Fatalf("evicted = %+v, want the lapsed entry", evicted)
	}
	if evicted[0].CustomerID != "user-1" {
		t.Errorf("evicted order lost its payload: %+v", evicted[0])
	}

	// A second sweep must not report the same entry again.
	evicted, err = store.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("second sweep evicted = %+v, want none", evicted)
	}
}

func TestRedisPendingStore_SweepSkipsConsumed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, err := store.Take(ctx, "txn-1"); err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	evicted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("consumed entry reported as evicted: %+v", evicted)
	}
}

func TestRedisPendingStore_SweepLeavesLiveEntries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testOrder("txn-live")); err != nil {
		t.Fatalf("put: %v", err)
	}

	evicted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("live entry evicted: %+v", evicted)
	}
	if _, ok, _ := store.Peek(ctx, "txn-live"); !ok {
		t.Fatal("live entry must survive the sweep")
	}
}

func TestRedisPendingStore_UnknownCorrelation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Take(ctx, "txn-ghost"); err != nil || ok {
		t.Fatalf("take unknown: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Peek(ctx, "txn-ghost"); err != nil || ok {
		t.Fatalf("peek unknown: ok=%v err=%v", ok, err)
	}
}

func TestRedisPendingStore_CorruptEntry(t *testing.T) {
	store, mr := newTestStore(t)

	if err := mr.Set("pending_order:txn-bad", "not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, _, err := store.Take(context.Background(), "txn-bad"); err == nil {
		t.Fatal("expected error for corrupt entry")
	}
}

func TestRedisPendingStore_EmptyCorrelationRejected(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Put(context.Background(), checkout.PendingOrder{}); err == nil {
		t.Fatal("expected error for empty correlation id")
	}
}
