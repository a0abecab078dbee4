package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SettlementEvent describes the outcome of one checkout saga.
type SettlementEvent struct {
	Type               string    `json:"type"`
	OrderID            string    `json:"order_id,omitempty"`
	CorrelationID      string    `json:"correlation_id"`
	CustomerID         string    `json:"customer_id"`
	Status             string    `json:"status"`
	TotalAfterDiscount float64   `json:"total_after_discount"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Event type values.
const (
	TypeOrderSettled   = "order_settled"
	TypeOrderDiscarded = "order_discarded"
	TypeOrderExpired   = "order_expired"
)

// Publisher delivers settlement events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event SettlementEvent) error
}

// FanoutPublisher forwards each event to every target. All targets are
// attempted; errors are joined.
type FanoutPublisher struct {
	targets []Publisher
}

// NewFanoutPublisher constructs a publisher fanning out to the given targets.
func NewFanoutPublisher(targets ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

// Publish delivers the event to every target.
func (p *FanoutPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	var errs []error
	for _, target := range p.targets {
		if target == nil {
			continue
		}
		if err := target.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster pushes raw messages to connected clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// HubPublisher broadcasts settlement events as JSON to a realtime hub.
type HubPublisher struct {
	broadcaster Broadcaster
}

// NewHubPublisher constructs a publisher targeting the given broadcaster.
func NewHubPublisher(broadcaster Broadcaster) *HubPublisher {
	return &HubPublisher{broadcaster: broadcaster}
}

// Publish marshals the event and broadcasts it.
func (p *HubPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(data)
	}
	return nil
}
