package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Delivery records a settlement callback that has already been committed.
type Delivery struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"transaction_status"`
	CommittedAt   time.Time `json:"committed_at"`
}

// DeliveryLedger remembers callback digests so replays skip the write path. The
// database stays authoritative: a missing or expired entry only costs a redundant
// idempotent merge.
type DeliveryLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeliveryLedger returns redis-backed ledger.
func NewDeliveryLedger(client *redis.Client, ttl time.Duration) *DeliveryLedger {
	return &DeliveryLedger{client: client, ttl: ttl}
}

func (l *DeliveryLedger) key(digest string) string {
	return fmt.Sprintf("parking:callbacks:%s", digest)
}

// Remember stores a committed delivery under its digest.
func (l *DeliveryLedger) Remember(ctx context.Context, digest string, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return l.client.Set(ctx, l.key(digest), data, l.ttl).Err()
}

// Seen returns the delivery stored under digest. ok is false on a miss.
func (l *DeliveryLedger) Seen(ctx context.Context, digest string) (d *Delivery, ok bool, err error) {
	result, err := l.client.Get(ctx, l.key(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var delivery Delivery
	if err := json.Unmarshal([]byte(result), &delivery); err != nil {
		return nil, false, err
	}
	return &delivery, true, nil
}

// Forget drops a digest.
func (l *DeliveryLedger) Forget(ctx context.Context, digest string) error {
	return l.client.Del(ctx, l.key(digest)).Err()
}
