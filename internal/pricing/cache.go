package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// QuoteCache stores negotiated quotes by key within their validity window.
type QuoteCache interface {
	// Get returns the cached quote for a key; ok is false when absent or expired.
	Get(ctx context.Context, key string) (trip.PriceQuote, bool, error)
	// Set stores a quote until its expiry.
	Set(ctx context.Context, quote trip.PriceQuote) error
}

// MemoryCache is the in-process quote cache tier.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]trip.PriceQuote
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]trip.PriceQuote)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (trip.PriceQuote, bool, error) {
	m.mu.RLock()
	q, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return trip.PriceQuote{}, false, nil
	}
	if q.Expired(time.Now()) {
		m.mu.Lock()
		delete(m.quotes, key)
		m.mu.Unlock()
		return trip.PriceQuote{}, false, nil
	}
	return q, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, quote trip.PriceQuote) error {
	if quote.Key == "" {
		return fmt.Errorf("quote without key")
	}
	m.mu.Lock()
	m.quotes[quote.Key] = quote
	m.mu.Unlock()
	return nil
}

// RedisCache shares quotes across replicas. Entries carry a TTL matching the
// quote's validity window so Redis evicts them at expiry.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "quote:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (trip.PriceQuote, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return trip.PriceQuote{}, false, nil
	}
	if err != nil {
		return trip.PriceQuote{}, false, fmt.Errorf("redis get: %w", err)
	}
	var q trip.PriceQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return trip.PriceQuote{}, false, fmt.Errorf("decode cached quote: %w", err)
	}
	if q.Expired(time.Now()) {
		return trip.PriceQuote{}, false, nil
	}
	return q, true, nil
}

func (r *RedisCache) Set(ctx context.Context, quote trip.PriceQuote) error {
	ttl := time.Until(quote.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := r.rdb.Set(ctx, r.prefix+quote.Key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// TieredCache fronts a shared tier with the in-process one. Reads hit memory
// first; shared-tier hits are pulled forward. Shared-tier errors degrade to
// the memory tier rather than failing the negotiation.
type TieredCache struct {
	local  *MemoryCache
	shared QuoteCache
}

// NewTieredCache combines the local cache with an optional shared tier.
func NewTieredCache(shared QuoteCache) *TieredCache {
	return &TieredCache{local: NewMemoryCache(), shared: shared}
}

func (t *TieredCache) Get(ctx context.Context, key string) (trip.PriceQuote, bool, error) {
	if q, ok, _ := t.local.Get(ctx, key); ok {
		return q, true, nil
	}
	if t.shared == nil {
		return trip.PriceQuote{}, false, nil
	}
	q, ok, err := t.shared.Get(ctx, key)
	if err != nil || !ok {
		return trip.PriceQuote{}, false, err
	}
	_ = t.local.Set(ctx, q)
	return q, true, nil
}

func (t *TieredCache) Set(ctx context.Context, quote trip.PriceQuote) error {
	if err := t.local.Set(ctx, quote); err != nil {
		return err
	}
	if t.shared != nil {
		return t.shared.Set(ctx, quote)
	}
	return nil
}
