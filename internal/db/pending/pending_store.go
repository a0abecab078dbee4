package pendingdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"shopgate/internal/checkout"
)

// RedisPendingStore stages pending orders in Redis, one key per correlation
// id. Expiry is enforced by the key TTL, matching the gateway's payment
// session validity window, so late callbacks simply miss. Take maps to
// GETDEL, which is atomic server-side and gives at-most-once consumption
// even across processes.
//
// A sorted set scored by expiry deadline indexes every staged entry, so the
// reaper can sweep lapsed entries and report them instead of letting the
// TTL erase them silently.
type RedisPendingStore struct {
	client    RedisClient
	keyPrefix string
	indexKey  string
	ttl       time.Duration
	now       func() time.Time
}

// RedisClient is the minimal client surface used by RedisPendingStore.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

// NewRedisPendingStore constructs a Redis-backed pending store.
func NewRedisPendingStore(client RedisClient, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{
		client:    client,
		keyPrefix: "pending_order:",
		indexKey:  "pending_order:deadlines",
		ttl:       ttl,
		now:       time.Now,
	}
}

// Put stages a pending order under its correlation id. An existing live key
// for the same correlation id fails with ErrDuplicateCorrelation.
func (s *RedisPendingStore) Put(ctx context.Context, order checkout.PendingOrder) error {
	if order.CorrelationID == "" {
		return fmt.Errorf("correlation id is required")
	}

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyPrefix+order.CorrelationID, data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", checkout.ErrDuplicateCorrelation, order.CorrelationID)
	}

	if s.ttl > 0 {
		deadline := s.now().Add(s.ttl)
		if err := s.client.ZAdd(ctx, s.indexKey, redis.Z{
			Score:  float64(deadline.Unix()),
			Member: data,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Take atomically removes and returns the entry for the correlation id.
func (s *RedisPendingStore) Take(ctx context.Context, correlationID string) (checkout.PendingOrder, bool, error) {
	data, err := s.client.GetDel(ctx, s.keyPrefix+correlationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.PendingOrder{}, false, nil
	}
	if err != nil {
		return checkout.PendingOrder{}, false, err
	}

	// Consumed entries leave the deadline index so the sweep never reports
	// them as expired.
	_ = s.client.ZRem(ctx, s.indexKey, data).Err()

	var order checkout.PendingOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return checkout.PendingOrder{}, false, fmt.Errorf("corrupt pending entry %s: %w", correlationID, err)
	}
	return order, true, nil
}

// Peek returns the entry for the correlation id without consuming it.
func (s *RedisPendingStore) Peek(ctx context.Context, correlationID string) (checkout.PendingOrder, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+correlationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.PendingOrder{}, false, nil
	}
	if err != nil {
		return checkout.PendingOrder{}, false, err
	}

	var order checkout.PendingOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return checkout.PendingOrder{}, false, fmt.Errorf("corrupt pending entry %s: %w", correlationID, err)
	}
	return order, true, nil
}

// Sweep removes every entry whose deadline has lapsed and returns the
// evicted orders. The key TTL already blocks consumption; the sweep exists
// so lapsed entries are reported rather than silently erased.
func (s *RedisPendingStore) Sweep(ctx context.Context) ([]checkout.PendingOrder, error) {
	if s.ttl <= 0 {
		return nil, nil
	}

	members, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var evicted []checkout.PendingOrder
	for _, member := range members {
		removed, err := s.client.ZRem(ctx, s.indexKey, member).Result()
		if err != nil {
			return evicted, err
		}
		if removed == 0 {
			// A concurrent Take consumed it between range and remove.
			continue
		}

		var order checkout.PendingOrder
		if err := json.Unmarshal([]byte(member), &order); err != nil {
			continue
		}
		// Drop the primary key in case clock drift kept it alive past the
		// indexed deadline.
		_, _ = s.client.GetDel(ctx, s.keyPrefix+order.CorrelationID).Result()
		evicted = append(evicted, order)
	}
	return evicted, nil
}
