package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another delivery holds the sale event lock.
var ErrLockHeld = errors.New("sale event lock held")

// Deleting compares the holder token first, so a lease that outlived its
// TTL cannot drop a lock taken by the next delivery.
var releaseIfHolder = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SaleEventKey names the lock guarding one external transaction of an org.
func SaleEventKey(orgID, externalTransactionID string) string {
	return "nodeboss:webhook:sale:" + orgID + ":" + strings.TrimSpace(externalTransactionID)
}

// Locker hands out single-holder leases on sale event keys.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes key for ttl or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.token == "" || !l.locker.Enabled() {
		return nil
	}
	token := l.token
	l.token = ""
	return releaseIfHolder.Run(ctx, l.locker.client, []string{l.key}, token).Err()
}
