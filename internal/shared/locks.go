package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvoiceLockKey builds redis keys for invoice payment critical sections.
func InvoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("ledger:invoice:%d:lock", invoiceID)
}

// AdjustmentLockKey builds redis keys for adjustment review critical sections.
func AdjustmentLockKey(adjustmentID string) string {
	return fmt.Sprintf("ledger:adjustment:%s:lock", adjustmentID)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EntityLocker serialises read-modify-write sections on a single aggregate.
// The sequence counter has its own storage transaction; this covers the
// payment and adjustment-review paths.
type EntityLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEntityLocker constructs an EntityLocker.
func NewEntityLocker(client *redis.Client, ttl time.Duration) *EntityLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &EntityLocker{client: client, ttl: ttl}
}

// Acquire takes the lock for key and returns a release func. ErrLockHeld is
// returned when another writer holds it; callers surface that as transient.
func (l *EntityLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		// Lock-free mode for single-writer deployments and tests.
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
