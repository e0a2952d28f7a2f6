package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deweblabs/txrelay/internal/engine/transmit"
	redisclient "github.com/deweblabs/txrelay/internal/infra/redis"
)

// redisLocker adapts the Redis lease client to the transmitter's Locker.
type redisLocker struct {
	client *redisclient.Client
}

func (l *redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (transmit.Lease, error) {
	lease, err := l.client.AcquireLease(ctx, name, ttl)
	if errors.Is(err, redisclient.ErrLeaseHeld) {
		return nil, transmit.ErrLeaseBusy
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// localLocker is the in-process fallback when Redis is not configured. It
// only excludes overlapping runs within this instance.
type localLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time // name -> expiry
}

func newLocalLocker() *localLocker {
	return &localLocker{leases: make(map[string]time.Time)}
}

func (l *localLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (transmit.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.leases[name]; ok && time.Now().Before(expiry) {
		return nil, transmit.ErrLeaseBusy
	}
	l.leases[name] = time.Now().Add(ttl)
	return &localLease{locker: l, name: name}, nil
}

type localLease struct {
	locker *localLocker
	name   string
}

func (l *localLease) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.leases, l.name)
	return nil
}
