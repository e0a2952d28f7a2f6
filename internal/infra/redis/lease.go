package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another run already holds the lease.
var ErrLeaseHeld = errors.New("lease already held")

// Only the holder may release; the TTL cleans up after crashed runs.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Lease is a held per-wallet worker lease.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
}

func leaseKey(name string) string {
	return fmt.Sprintf("lease:%s", name)
}

// AcquireLease takes a named lease for ttl. Two worker runs for the same
// wallet are mutually exclusive as long as both go through this; a crashed
// holder's lease expires with the TTL.
func (c *Client) AcquireLease(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, leaseKey(name), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return &Lease{rdb: c.rdb, key: leaseKey(name), token: token}, nil
}

// Release gives the lease back. Releasing an expired or stolen lease is a
// no-op.
func (l *Lease) Release(ctx context.Context) error {
	if err := l.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}
