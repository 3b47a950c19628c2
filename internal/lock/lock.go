package redlock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockWaitTimeout is returned when a lease could not be acquired within
// the caller's wait budget. Nothing has been mutated at that point, so the
// attempt is safe to retry from scratch.
var ErrLockWaitTimeout = errors.New("timed out waiting for lock")

type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // Used for ensuring that only the lock holder can unlock or renew the lock

	renewMu   sync.Mutex
	stopRenew chan struct{}
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s is already held", l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	l.StopAutoRenew()
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock keeps attempting acquisition with jittered backoff until it
// succeeds or waitTimeout elapses.
func (l *Locker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = waitTimeout

	err := backoff.Retry(func() error {
		return l.Lock(ctx, lockTimeout)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("%w: key %s after %s", ErrLockWaitTimeout, l.key, waitTimeout)
	}
	return nil
}

// StartAutoRenew extends the lease at lease/3 intervals until Unlock or
// StopAutoRenew is called, or the context is cancelled. If the holding
// process dies the renewal stops with it and the lease expires on its own,
// so a crashed holder never wedges the lock.
func (l *Locker) StartAutoRenew(ctx context.Context, lease time.Duration) {
	l.renewMu.Lock()
	defer l.renewMu.Unlock()
	if l.stopRenew != nil {
		return // already renewing
	}
	stop := make(chan struct{})
	l.stopRenew = stop

	interval := lease / 3
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.ExtendLock(ctx, lease); err != nil {
					logrus.Warnf("lock auto-renew stopped for key %s: %v", l.key, err)
					return
				}
			}
		}
	}()
}

// StopAutoRenew halts the renewal loop if one is running.
func (l *Locker) StopAutoRenew() {
	l.renewMu.Lock()
	defer l.renewMu.Unlock()
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
}

// WithLock runs fn while holding the lease, with auto-renewal enabled so fn
// need not fit inside a guessed lease duration. The lease is released when
// fn returns; any compensations fn issued still complete because fn runs to
// completion before release.
func (l *Locker) WithLock(ctx context.Context, lockTimeout, waitTimeout time.Duration, fn func() error) error {
	if err := l.WaitLock(ctx, lockTimeout, waitTimeout); err != nil {
		return err
	}
	l.StartAutoRenew(ctx, lockTimeout)
	defer func() {
		if err := l.Unlock(ctx); err != nil {
			logrus.Error("lock error", err)
		}
	}()
	return fn()
}

// ShardKey spreads contention on a hot key across a fixed number of buckets
// keyed by the contending identity. With shards <= 1 the key is returned
// unchanged.
func ShardKey(key string, shards int, identity string) string {
	if shards <= 1 {
		return key
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return fmt.Sprintf("%s:%d", key, h.Sum32()%uint32(shards))
}
