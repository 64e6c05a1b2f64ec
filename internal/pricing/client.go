package pricing

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/httpx"
	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// negotiateRequest is the wire shape sent to the pricing collaborator.
type negotiateRequest struct {
	Signature string            `json:"signature"`
	OfferID   string            `json:"offer_id"`
	Params    map[string]string `json:"params,omitempty"`
}

// negotiateResponse is the pricing collaborator's answer.
type negotiateResponse struct {
	PriceCents int64      `json:"price_cents"`
	Currency   string     `json:"currency"`
	Confidence float64    `json:"confidence"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	TTLSeconds int64      `json:"ttl_seconds,omitempty"`
}

// Client negotiates prices with the external pricing collaborator. Negotiate
// is idempotent within a quote's validity window: repeated calls with the same
// signature and parameters return the cached quote without an external call.
type Client struct {
	cfg       config.PricingConfig
	http      *httpx.Client
	cache     QuoteCache
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	// inflight serializes concurrent negotiations for the same key so a
	// fan-out never issues duplicate external calls for one offer. Entries
	// are refcounted and evicted when the last waiter releases.
	mu       sync.Mutex
	inflight map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewClient builds a pricing client over the given cache. A nil cache gets a
// private in-process one.
func NewClient(cfg config.PricingConfig, cache QuoteCache, tele *telemetry.Telemetry, logger *log.Logger) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[PRICING] ", log.LstdFlags)
	}
	return &Client{
		cfg:       cfg,
		http:      httpx.New(cfg.Timeout, cfg.MaxRetries, cfg.Backoff),
		cache:     cache,
		telemetry: tele,
		logger:    logger,
		inflight:  make(map[string]*keyLock),
	}
}

// Negotiate resolves a quote for the pricing query. Cache hits within the
// validity window return the stored quote unchanged. External failures are
// retried with exponential backoff inside the HTTP client; exhaustion
// surfaces as ErrPricingUnavailable for the offer.
func (c *Client) Negotiate(ctx context.Context, query trip.PricingQuery) (trip.PriceQuote, error) {
	key := query.Key()

	lock := c.acquireKey(key)
	defer c.releaseKey(key, lock)

	if q, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Printf("quote cache read failed for %s: %v", shortKey(key), err)
	} else if ok {
		if c.telemetry != nil {
			c.telemetry.RecordQuote(true)
		}
		return q, nil
	}

	var resp negotiateResponse
	url := c.cfg.BaseURL + "/negotiate"
	err := c.http.DoJSON(ctx, http.MethodPost, url, nil, negotiateRequest{
		Signature: query.Signature,
		OfferID:   query.OfferID,
		Params:    query.Params,
	}, &resp)
	if c.telemetry != nil {
		c.telemetry.RecordQuote(false)
	}
	if err != nil {
		if ctx.Err() != nil {
			return trip.PriceQuote{}, ctx.Err()
		}
		if c.telemetry != nil {
			c.telemetry.RecordPricingFailure()
		}
		return trip.PriceQuote{}, negotiation.ErrPricingUnavailable{
			OfferID:  query.OfferID,
			Attempts: c.cfg.MaxRetries + 1,
			Err:      err,
		}
	}
	if resp.PriceCents <= 0 {
		if c.telemetry != nil {
			c.telemetry.RecordPricingFailure()
		}
		return trip.PriceQuote{}, negotiation.ErrPricingUnavailable{
			OfferID:  query.OfferID,
			Attempts: 1,
			Err:      fmt.Errorf("collaborator returned non-positive price %d", resp.PriceCents),
		}
	}

	now := time.Now()
	quote := trip.PriceQuote{
		Key:        key,
		OfferID:    query.OfferID,
		PriceCents: resp.PriceCents,
		Currency:   resp.Currency,
		Confidence: resp.Confidence,
		IssuedAt:   now,
		ExpiresAt:  c.expiry(now, resp),
	}
	if err := c.cache.Set(ctx, quote); err != nil {
		c.logger.Printf("quote cache write failed for %s: %v", shortKey(key), err)
	}
	return quote, nil
}

// expiry resolves the quote's validity window: the collaborator's absolute
// expiry wins, then its TTL, then the configured default.
func (c *Client) expiry(now time.Time, resp negotiateResponse) time.Time {
	if resp.ExpiresAt != nil && resp.ExpiresAt.After(now) {
		return *resp.ExpiresAt
	}
	if resp.TTLSeconds > 0 {
		return now.Add(time.Duration(resp.TTLSeconds) * time.Second)
	}
	ttl := c.cfg.DefaultQuoteTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return now.Add(ttl)
}

func (c *Client) acquireKey(key string) *keyLock {
	c.mu.Lock()
	lock, ok := c.inflight[key]
	if !ok {
		lock = &keyLock{}
		c.inflight[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *Client) releaseKey(key string, lock *keyLock) {
	lock.mu.Unlock()
	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
