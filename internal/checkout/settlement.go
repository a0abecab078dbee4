package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"shopgate/internal/events"
	"shopgate/internal/observability"
)

// SettlementOutcome classifies how a processed callback was handled.
type SettlementOutcome string

const (
	// OutcomeSettled means a durable order was created.
	OutcomeSettled SettlementOutcome = "settled"
	// OutcomeDiscarded means the gateway reported failure and the pending
	// order was dropped.
	OutcomeDiscarded SettlementOutcome = "discarded"
	// OutcomeAlreadyProcessed means no pending entry existed: the callback
	// was a duplicate, arrived after expiry, or carried an unknown id.
	OutcomeAlreadyProcessed SettlementOutcome = "already_processed"
)

// SettlementResult reports the outcome of one processed callback.
type SettlementResult struct {
	Outcome SettlementOutcome `json:"outcome"`
	Order   Order             `json:"order,omitempty"`
}

// RedirectQuery carries the browser-redirect callback parameters. The
// success flag comes from the gateway's client-side redirect and is not
// authoritative for persistence.
type RedirectQuery struct {
	CorrelationID string
	Success       bool
	Message       string
}

// SettlementService consumes the gateway's asynchronous callbacks: the
// payment-processed notification that finalizes or discards the pending
// transaction, and the browser redirect that only picks a destination URL.
type SettlementService struct {
	pending    PendingStore
	orders     OrderStore
	publisher  events.Publisher
	retry      RetryPolicy
	successURL string
	failureURL string
	logf       func(format string, args ...any)
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewSettlementService constructs a SettlementService. publisher, logf and
// metrics may be nil.
func NewSettlementService(pending PendingStore, orders OrderStore, publisher events.Publisher, retry RetryPolicy, successURL, failureURL string, logf func(format string, args ...any), metrics *observability.Metrics) *SettlementService {
	if logf == nil {
		logf = log.Printf
	}
	return &SettlementService{
		pending:    pending,
		orders:     orders,
		publisher:  publisher,
		retry:      retry,
		successURL: successURL,
		failureURL: failureURL,
		logf:       logf,
		metrics:    metrics,
		now:        time.Now,
	}
}

// HandleProcessed consumes a payment-processed callback. The pending entry is
// taken atomically, so concurrent duplicate deliveries settle at most once;
// a missing entry is acknowledged as a no-op. On a successful payment the
// order and its items are written durably, with bounded retries for transient
// persistence failures. If persistence still fails, the entry is restored
// only after confirming no durable order exists for the correlation id, so a
// gateway redelivery can complete the settlement without double-processing.
func (s *SettlementService) HandleProcessed(ctx context.Context, correlationID string, success bool) (SettlementResult, error) {
	pendingOrder, ok, err := s.pending.Take(ctx, correlationID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("take pending order: %w", err)
	}
	if !ok {
		s.logf("processed callback with no pending entry (duplicate, expired, or unknown): correlation=%s", correlationID)
		s.metrics.AddDuplicateCallback()
		return SettlementResult{Outcome: OutcomeAlreadyProcessed}, nil
	}

	if !success {
		s.logf("payment failed, discarding pending order: correlation=%s", correlationID)
		s.metrics.AddDiscard()
		s.publish(ctx, events.SettlementEvent{
			Type:               events.TypeOrderDiscarded,
			CorrelationID:      correlationID,
			CustomerID:         pendingOrder.CustomerID,
			Status:             string(StateDiscarded),
			TotalAfterDiscount: pendingOrder.TotalAfterDiscount,
			OccurredAt:         s.now(),
		})
		return SettlementResult{Outcome: OutcomeDiscarded}, nil
	}

	var order Order
	err = s.retry.Do(ctx, func() error {
		var werr error
		order, werr = s.orders.CreateOrderWithItems(ctx, pendingOrder)
		return werr
	})
	if err != nil {
		s.restoreIfUnsettled(ctx, pendingOrder)
		return SettlementResult{}, fmt.Errorf("persist order: %w", err)
	}

	s.metrics.AddSettlement()
	s.publish(ctx, events.SettlementEvent{
		Type:               events.TypeOrderSettled,
		OrderID:            order.ID,
		CorrelationID:      correlationID,
		CustomerID:         order.CustomerID,
		Status:             string(StateSettled),
		TotalAfterDiscount: order.TotalAfterDiscount,
		OccurredAt:         s.now(),
	})
	return SettlementResult{Outcome: OutcomeSettled, Order: order}, nil
}

// HandleExpired reports a pending order evicted by the reaper. A credential
// was issued but the gateway never called back within the session window, so
// this is surfaced for alerting rather than silently dropped.
func (s *SettlementService) HandleExpired(order PendingOrder) {
	s.metrics.AddEviction()
	s.publish(context.Background(), events.SettlementEvent{
		Type:               events.TypeOrderExpired,
		CorrelationID:      order.CorrelationID,
		CustomerID:         order.CustomerID,
		Status:             string(StateExpired),
		TotalAfterDiscount: order.TotalAfterDiscount,
		OccurredAt:         s.now(),
	})
}

// RedirectTarget decides where the browser redirect callback sends the user.
// It reads settlement state but never creates or mutates orders. A success
// flag is only honored once a durable order exists for the correlation id;
// until then the user is sent to the failure destination.
func (s *SettlementService) RedirectTarget(ctx context.Context, q RedirectQuery) string {
	if q.Success {
		order, err := s.orders.FindOrderByCorrelation(ctx, q.CorrelationID)
		if err == nil {
			s.metrics.AddRedirect(true)
			return s.successURL + "/" + order.ID
		}
		if !errors.Is(err, ErrOrderNotFound) {
			s.logf("redirect lookup failed: correlation=%s: %v", q.CorrelationID, err)
		}
		if _, ok, _ := s.pending.Peek(ctx, q.CorrelationID); ok {
			s.metrics.AddRedirect(false)
			return s.failureRedirect("Your payment is still being processed.")
		}
	}

	s.metrics.AddRedirect(false)
	message := q.Message
	if message == "" {
		message = "There was an issue with your payment."
	}
	return s.failureRedirect(message)
}

func (s *SettlementService) failureRedirect(message string) string {
	return s.failureURL + "?error=" + url.QueryEscape(message)
}

// restoreIfUnsettled re-stages a pending order after a persistence failure,
// but only when no durable order exists for its correlation id. Blindly
// re-inserting would race a concurrent redelivery that already settled.
func (s *SettlementService) restoreIfUnsettled(ctx context.Context, order PendingOrder) {
	if _, err := s.orders.FindOrderByCorrelation(ctx, order.CorrelationID); err == nil {
		s.logf("order already durable, not restoring pending entry: correlation=%s", order.CorrelationID)
		return
	} else if !errors.Is(err, ErrOrderNotFound) {
		s.logf("reconciliation lookup failed: correlation=%s: %v", order.CorrelationID, err)
	}

	if err := s.pending.Put(ctx, order); err != nil {
		s.logf("restore pending entry failed: correlation=%s: %v", order.CorrelationID, err)
	}
}

func (s *SettlementService) publish(ctx context.Context, event events.SettlementEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logf("publish settlement event: correlation=%s: %v", event.CorrelationID, err)
	}
}
