package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

func newTestClient(t *testing.T, serverURL string, ttl time.Duration) *Client {
	t.Helper()
	cfg := config.PricingConfig{
		BaseURL:         serverURL,
		Timeout:         2 * time.Second,
		MaxRetries:      2,
		Backoff:         5 * time.Millisecond,
		DefaultQuoteTTL: ttl,
	}
	return NewClient(cfg, nil, nil, nil)
}

func TestNegotiateIsIdempotentWithinValidity(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"price_cents": 42000,
			"currency":    "USD",
			"confidence":  0.9,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Minute)
	query := trip.PricingQuery{Signature: "sig-1", OfferID: "offer-1", Params: map[string]string{"nights": "3"}}

	first, err := c.Negotiate(context.Background(), query)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	second, err := c.Negotiate(context.Background(), query)
	if err != nil {
		t.Fatalf("Negotiate (cached): %v", err)
	}

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("expected 1 external call, got %d", n)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("cached quote differs:\n%s\n%s", a, b)
	}
}

func TestNegotiateExpiryForcesFreshQuote(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"price_cents": 42000 - n*100, // a fresh negotiation lands a new price
			"currency":    "USD",
			"confidence":  0.9,
			"ttl_seconds": 0,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 30*time.Millisecond)
	query := trip.PricingQuery{Signature: "sig-2", OfferID: "offer-2"}

	first, err := c.Negotiate(context.Background(), query)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	second, err := c.Negotiate(context.Background(), query)
	if err != nil {
		t.Fatalf("Negotiate (after expiry): %v", err)
	}

	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("expected expiry to force a second external call, got %d", n)
	}
	if second.PriceCents == first.PriceCents {
		t.Fatalf("expected a new quote object, got identical price %d", first.PriceCents)
	}
	if second.IssuedAt.Before(first.IssuedAt) {
		t.Fatalf("fresh quote issued before the old one")
	}
}

func TestNegotiateEvictsIdleKeySerializers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"price_cents": 42000,
			"currency":    "USD",
			"confidence":  0.9,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := trip.PricingQuery{Signature: "sig-evict", OfferID: fmt.Sprintf("offer-%d", i%4)}
			if _, err := c.Negotiate(context.Background(), query); err != nil {
				t.Errorf("Negotiate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	c.mu.Lock()
	live := len(c.inflight)
	c.mu.Unlock()
	if live != 0 {
		t.Fatalf("per-key serializers must be dropped once idle, got %d live entries", live)
	}
}

func TestNegotiateRetryExhaustionSurfacesUnavailable(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "pricing backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Minute)
	_, err := c.Negotiate(context.Background(), trip.PricingQuery{Signature: "sig-3", OfferID: "offer-3"})

	var unavailable negotiation.ErrPricingUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrPricingUnavailable, got %v", err)
	}
	if unavailable.OfferID != "offer-3" {
		t.Fatalf("error should carry the offer ID, got %q", unavailable.OfferID)
	}
	// MaxRetries=2 means three attempts before exhaustion
	if n := atomic.LoadInt64(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestNegotiateDoesNotRetryClientErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "unknown offer", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Minute)
	_, err := c.Negotiate(context.Background(), trip.PricingQuery{Signature: "sig-4", OfferID: "offer-4"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", n)
	}
}

func TestTieredCachePullsSharedHitsForward(t *testing.T) {
	shared := NewMemoryCache()
	tiered := NewTieredCache(shared)

	quote := trip.PriceQuote{
		Key:        "k1",
		OfferID:    "o1",
		PriceCents: 1000,
		Currency:   "USD",
		Confidence: 1,
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := shared.Set(context.Background(), quote); err != nil {
		t.Fatalf("shared Set: %v", err)
	}

	got, ok, err := tiered.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("tiered Get: ok=%v err=%v", ok, err)
	}
	if got.PriceCents != 1000 {
		t.Fatalf("unexpected quote: %+v", got)
	}
	// now present locally too
	if _, ok, _ := tiered.local.Get(context.Background(), "k1"); !ok {
		t.Fatalf("expected shared hit pulled into local tier")
	}
}

func TestMemoryCacheDropsExpired(t *testing.T) {
	cache := NewMemoryCache()
	quote := trip.PriceQuote{
		Key:       "k2",
		OfferID:   "o2",
		IssuedAt:  time.Now().Add(-2 * time.Minute),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := cache.Set(context.Background(), quote); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := cache.Get(context.Background(), "k2"); ok {
		t.Fatalf("expired quote must not be served")
	}
}
