package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryPendingStore holds pending orders in a mutex-guarded map keyed by
// correlation id. Entries older than the TTL are treated as expired: Take and
// Peek skip them, and Sweep removes them.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]memoryPendingEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryPendingEntry struct {
	order    PendingOrder
	stagedAt time.Time
}

// NewMemoryPendingStore constructs an in-memory pending store. A TTL of zero
// disables expiry.
func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]memoryPendingEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stages a pending order. Staging twice for the same correlation id is a
// bug in the caller and fails with ErrDuplicateCorrelation.
func (s *MemoryPendingStore) Put(ctx context.Context, order PendingOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.CorrelationID == "" {
		return fmt.Errorf("correlation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[order.CorrelationID]; ok && !s.expired(entry, s.now()) {
		return fmt.Errorf("%w: %s", ErrDuplicateCorrelation, order.CorrelationID)
	}
	s.entries[order.CorrelationID] = memoryPendingEntry{order: order, stagedAt: s.now()}
	return nil
}

// Take atomically removes and returns the entry for the correlation id.
// An absent or expired entry yields ok=false.
func (s *MemoryPendingStore) Take(ctx context.Context, correlationID string) (PendingOrder, bool, error) {
	if err := ctx.Err(); err != nil {
		return PendingOrder{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[correlationID]
	if !ok {
		return PendingOrder{}, false, nil
	}
	delete(s.entries, correlationID)
	if s.expired(entry, s.now()) {
		return PendingOrder{}, false, nil
	}
	return entry.order, true, nil
}

// Peek returns the entry for the correlation id without consuming it.
func (s *MemoryPendingStore) Peek(ctx context.Context, correlationID string) (PendingOrder, bool, error) {
	if err := ctx.Err(); err != nil {
		return PendingOrder{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[correlationID]
	if !ok || s.expired(entry, s.now()) {
		return PendingOrder{}, false, nil
	}
	return entry.order, true, nil
}

// Sweep removes every expired entry and returns the evicted orders.
func (s *MemoryPendingStore) Sweep(ctx context.Context) ([]PendingOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var evicted []PendingOrder
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			evicted = append(evicted, entry.order)
			delete(s.entries, id)
		}
	}
	return evicted, nil
}

// Len returns the number of staged entries, expired or not.
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryPendingStore) expired(entry memoryPendingEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.stagedAt) >= s.ttl
}

// Sweeper is a pending store that supports explicit expiry sweeps.
type Sweeper interface {
	Sweep(ctx context.Context) ([]PendingOrder, error)
}

// Reaper periodically evicts stale pending entries. Evicted entries are
// reported, never promoted: a credential was issued for them but the gateway
// never called back, which operators need to see.
type Reaper struct {
	store    Sweeper
	interval time.Duration
	logf     func(format string, args ...any)
	onEvict  func(PendingOrder)
}

// NewReaper constructs a reaper over the given sweeper. onEvict may be nil.
func NewReaper(store Sweeper, interval time.Duration, logf func(format string, args ...any), onEvict func(PendingOrder)) *Reaper {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Reaper{store: store, interval: interval, logf: logf, onEvict: onEvict}
}

// Run sweeps on every tick until the context ends.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := r.store.Sweep(ctx)
			if err != nil {
				r.logf("pending sweep failed: %v", err)
				continue
			}
			for _, order := range evicted {
				r.logf("pending order expired unconsumed: correlation=%s customer=%s total=%.2f",
					order.CorrelationID, order.CustomerID, order.TotalAfterDiscount)
				if r.onEvict != nil {
					r.onEvict(order)
				}
			}
		}
	}
}
