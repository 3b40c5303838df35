package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNonceReused is returned when an authorization nonce was already issued
// for the same payer. The settlement contract rejects replays on-chain;
// this registry keeps us from ever constructing one.
var ErrNonceReused = errors.New("authorization nonce already issued")

// NonceRegistry tracks issued authorization nonces per payer.
type NonceRegistry interface {
	Register(ctx context.Context, payer, nonce string) error
}

// memoryNonceRegistry is the in-process fallback used when Redis is not
// configured. Entries expire with the authorization validity window.
type memoryNonceRegistry struct {
	mu     sync.Mutex
	issued map[string]time.Time
	ttl    time.Duration
}

// NewMemoryNonceRegistry creates an in-memory registry.
func NewMemoryNonceRegistry() NonceRegistry {
	return &memoryNonceRegistry{
		issued: make(map[string]time.Time),
		ttl:    validityTTL + validitySkew,
	}
}

func (r *memoryNonceRegistry) Register(_ context.Context, payer, nonce string) error {
	key := payer + "/" + nonce
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, expiry := range r.issued {
		if now.After(expiry) {
			delete(r.issued, k)
		}
	}
	if _, exists := r.issued[key]; exists {
		return ErrNonceReused
	}
	r.issued[key] = now.Add(r.ttl)
	return nil
}

// redisNonceRegistry shares nonce state across replicas.
type redisNonceRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNonceRegistry creates a registry backed by the given Redis client.
func NewRedisNonceRegistry(client *redis.Client) NonceRegistry {
	return &redisNonceRegistry{client: client, ttl: validityTTL + validitySkew}
}

func (r *redisNonceRegistry) Register(ctx context.Context, payer, nonce string) error {
	key := fmt.Sprintf("authnonce:%s:%s", payer, nonce)
	set, err := r.client.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !set {
		return ErrNonceReused
	}
	return nil
}
