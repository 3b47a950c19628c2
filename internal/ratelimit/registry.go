package ratelimit

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/flashmart/seckill/config"
)

const keyPrefix = "ratelimit:"

// Registry holds the named policies and evaluates them through one shared
// limiter. Names map to protected operations ("seckill", "async-submit").
type Registry struct {
	mu       sync.RWMutex
	limiter  *Limiter
	policies map[string]Policy
}

// NewRegistry builds a registry pre-loaded with the configured policies.
func NewRegistry(client redis.UniversalClient, policies map[string]config.RateLimitPolicy) *Registry {
	r := &Registry{
		limiter:  NewLimiter(client),
		policies: make(map[string]Policy, len(policies)),
	}
	for name, p := range policies {
		r.policies[name] = FromConfig(p)
	}
	return r
}

// Register installs or replaces a named policy at runtime.
func (r *Registry) Register(name string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[name] = p
}

// Policy looks up a named policy.
func (r *Registry) Policy(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

// Allow evaluates the named policy across all configured dimensions for the
// caller identity. An unregistered name admits: there is no budget to
// enforce.
func (r *Registry) Allow(ctx context.Context, name, userID, ip string) bool {
	p, ok := r.Policy(name)
	if !ok {
		return true
	}
	return r.limiter.AllowRequest(ctx, keyPrefix+name, userID, ip, p)
}

// AllowScoped evaluates the named policy under an extra key scope, used for
// per-product budgets carved out of one policy.
func (r *Registry) AllowScoped(ctx context.Context, name, scope, userID, ip string) bool {
	p, ok := r.Policy(name)
	if !ok {
		return true
	}
	return r.limiter.AllowRequest(ctx, keyPrefix+name+":"+scope, userID, ip, p)
}

// Status reports the current consumption of the named policy's global
// dimension: events in the window for sliding window, token level for token
// bucket.
func (r *Registry) Status(ctx context.Context, name string) (int64, error) {
	p, ok := r.Policy(name)
	if !ok {
		return 0, nil
	}
	key := keyPrefix + name
	if p.Algorithm == TokenBucket {
		tokens, err := r.limiter.BucketTokens(ctx, key)
		return int64(tokens), err
	}
	return r.limiter.WindowCount(ctx, key, p.Window)
}

// Reset clears all state of the named policy's global dimension.
func (r *Registry) Reset(ctx context.Context, name string) error {
	return r.limiter.Reset(ctx, keyPrefix+name)
}
