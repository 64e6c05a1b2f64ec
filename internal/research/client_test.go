package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

func testQuery() trip.Query {
	start, _ := time.Parse("2006-01-02", "2026-05-01")
	return trip.Query{
		Category:    trip.CategoryHotel,
		Destination: "Lisbon",
		Dates:       trip.DateRange{Start: start, End: start.AddDate(0, 0, 4)},
		PartySize:   2,
	}
}

func TestSearchMapsResultsToOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["category"] != "hotel" {
			t.Errorf("unexpected category %v", req["category"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"id": "h1", "supplier": "stayco", "title": "Harbor Hotel", "price_cents": 40000, "currency": "USD", "rating": 4.2},
				{"supplier": "stayco", "title": "No Price Inn", "price_cents": 0, "currency": "USD"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.ResearchConfig{BaseURL: srv.URL, Timeout: time.Second, Backoff: time.Millisecond}, nil, nil)
	query := testQuery()
	offers, err := c.Search(context.Background(), query)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].ID != "h1" || !offers[0].Valid {
		t.Fatalf("priced offer should be valid: %+v", offers[0])
	}
	if offers[1].Valid {
		t.Fatalf("unpriced offer must not be valid")
	}
	if offers[1].ID == "" {
		t.Fatalf("offers without supplier IDs must get one assigned")
	}
	if offers[0].QuerySignature != query.Signature() {
		t.Fatalf("offers must carry the query signature")
	}
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(config.ResearchConfig{BaseURL: srv.URL, Timeout: time.Second, Backoff: time.Millisecond}, nil, nil)
	offers, err := c.Search(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("expected no offers, got %d", len(offers))
	}
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"id": "f1", "title": "Nonstop", "price_cents": 25000, "currency": "USD"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.ResearchConfig{
		BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2, Backoff: time.Millisecond,
	}, nil, nil)
	offers, err := c.Search(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Search should recover from a transient failure: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}
