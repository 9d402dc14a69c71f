// Package coordination serializes crawl-wide operations across processes that
// share one Redis.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock defaults.
const (
	DefaultLockTTL    = 30 * time.Second
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultMaxRetries = 50
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// compareAndDelete deletes KEYS[1] only while it still holds our token, so an
// expired holder can never release a lock taken over by another process.
var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("del", KEYS[1])
`)

// LockConfig tunes lock acquisition. TTL bounds how long a crashed holder
// blocks everyone else.
type LockConfig struct {
	TTL        time.Duration `env:"LOCK_TTL" yaml:"ttl"`
	RetryDelay time.Duration `env:"LOCK_RETRY_DELAY" yaml:"retry_delay"`
	MaxRetries int           `env:"LOCK_MAX_RETRIES" yaml:"max_retries"`
}

// DefaultLockConfig returns the default lock settings.
func DefaultLockConfig() LockConfig {
	return LockConfig{TTL: DefaultLockTTL, RetryDelay: DefaultRetryDelay, MaxRetries: DefaultMaxRetries}
}

func (c LockConfig) withDefaults() LockConfig {
	def := DefaultLockConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	return c
}

// DistributedLock is a SET NX lock on one key. Each instance owns a random
// token; only the instance that set it can release it.
type DistributedLock struct {
	client redis.UniversalClient
	key    string
	token  string
	cfg    LockConfig
}

// NewDistributedLock creates a lock on key.
func NewDistributedLock(client redis.UniversalClient, key string, cfg LockConfig) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		cfg:    cfg.withDefaults(),
	}
}

// Lock polls until the key is free, giving up after MaxRetries attempts.
func (l *DistributedLock) Lock(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.RetryDelay)
	defer ticker.Stop()

	for attempts := 1; ; attempts++ {
		ok, err := l.client.SetNX(ctx, l.key, l.token, l.cfg.TTL).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", l.key, err)
		}
		if ok {
			return nil
		}
		if attempts >= l.cfg.MaxRetries {
			return fmt.Errorf("%w: %s after %d attempts", ErrLockNotAcquired, l.key, attempts)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock. It returns ErrLockNotHeld when the lock expired
// or belongs to another instance.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	deleted, err := compareAndDelete.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}
