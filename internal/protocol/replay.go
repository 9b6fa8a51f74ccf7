package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"commonsource/pkg/platform/sentinel"
)

// ReplayGuard remembers client nonces accepted for issuance. Nonces are
// already unforgeable and random per call; persisting them anyway defends
// against RNG or clock weaknesses on the client side. Claim is first-writer-
// wins: the second claim of the same nonce returns sentinel.ErrAlreadyUsed.
type ReplayGuard interface {
	Claim(ctx context.Context, nonce string) error
}

// RedisReplayGuard backs the guard with a shared Redis instance so the check
// holds across replicas.
type RedisReplayGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisReplayGuard constructs a guard with the given nonce retention.
func NewRedisReplayGuard(client *goredis.Client, ttl time.Duration) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, ttl: ttl}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, nonce string) error {
	ok, err := g.client.SetNX(ctx, "nonce:"+nonce, 1, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim nonce: %w: %w", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("nonce replayed: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

// MemoryReplayGuard is the in-process guard for tests and single-node
// deployments. Expired entries are pruned lazily on each claim.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryReplayGuard constructs an empty in-memory guard.
func NewMemoryReplayGuard(ttl time.Duration) *MemoryReplayGuard {
	return &MemoryReplayGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *MemoryReplayGuard) Claim(_ context.Context, nonce string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for n, expiry := range g.seen {
		if now.After(expiry) {
			delete(g.seen, n)
		}
	}

	if _, ok := g.seen[nonce]; ok {
		return fmt.Errorf("nonce replayed: %w", sentinel.ErrAlreadyUsed)
	}
	g.seen[nonce] = now.Add(g.ttl)
	return nil
}
