package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

func testPlan() trip.ItineraryPlan {
	return trip.ItineraryPlan{
		ID:        "plan-1",
		SessionID: "sess-1",
		Selection: trip.CandidateSelection{
			Offers: map[trip.Category]trip.Offer{
				trip.CategoryFlight: {ID: "f1", Supplier: "air", Title: "Nonstop", PriceCents: 60000},
				trip.CategoryHotel:  {ID: "h1", Supplier: "stay", Title: "Harbor Hotel", PriceCents: 40000},
			},
			TotalCents: 100000,
			Feasible:   true,
		},
		TotalCents: 100000,
		Currency:   "USD",
		CreatedAt:  time.Now(),
	}
}

func TestPrototypeModeSimulatesConfirmation(t *testing.T) {
	c := NewClient(config.BookingConfig{
		Prototype:      true,
		ReceiptBaseURL: "https://bookings.example.com/receipts",
		SupportEmail:   "support@example.com",
	}, nil, nil)

	conf, err := c.Confirm(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !regexp.MustCompile(`^VAI-\d+$`).MatchString(conf.Reference) {
		t.Fatalf("unexpected booking reference %q", conf.Reference)
	}
	if !regexp.MustCompile(`^TKT-[A-Z0-9]{10}$`).MatchString(conf.LegConfirmations[trip.CategoryFlight]) {
		t.Fatalf("unexpected flight ticket %q", conf.LegConfirmations[trip.CategoryFlight])
	}
	if !regexp.MustCompile(`^HOTEL-\d{8}$`).MatchString(conf.LegConfirmations[trip.CategoryHotel]) {
		t.Fatalf("unexpected hotel confirmation %q", conf.LegConfirmations[trip.CategoryHotel])
	}
	if conf.ReceiptURL != "https://bookings.example.com/receipts/"+conf.Reference {
		t.Fatalf("unexpected receipt URL %q", conf.ReceiptURL)
	}
	if conf.TotalCents != 100000 || conf.Currency != "USD" {
		t.Fatalf("confirmation must carry plan totals: %+v", conf)
	}
}

func TestConfirmUsesCollaborator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["plan_id"] != "plan-1" {
			t.Errorf("unexpected plan id %v", req["plan_id"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"confirmation_id":   "conf-9",
			"reference":         "VAI-12345",
			"leg_confirmations": map[string]string{"flight": "TKT-ABCDEFGH12"},
			"receipt_url":       "https://partner.example.com/r/VAI-12345",
		})
	}))
	defer srv.Close()

	c := NewClient(config.BookingConfig{
		BaseURL: srv.URL,
		Timeout: time.Second,
		Backoff: time.Millisecond,
	}, nil, nil)
	conf, err := c.Confirm(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.ConfirmationID != "conf-9" || conf.Reference != "VAI-12345" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if conf.LegConfirmations[trip.CategoryFlight] != "TKT-ABCDEFGH12" {
		t.Fatalf("leg confirmations not mapped: %+v", conf.LegConfirmations)
	}
}

func TestConfirmFallsBackToSimulationOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "booking backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.BookingConfig{
		BaseURL:           srv.URL,
		Timeout:           time.Second,
		Backoff:           time.Millisecond,
		SimulateOnFailure: true,
		ReceiptBaseURL:    "https://bookings.example.com/receipts",
	}, nil, nil)
	conf, err := c.Confirm(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Confirm should fall back to simulation: %v", err)
	}
	if conf.Reference == "" {
		t.Fatalf("expected simulated reference")
	}
}

func TestConfirmSurfacesFailureWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "booking backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.BookingConfig{
		BaseURL: srv.URL,
		Timeout: time.Second,
		Backoff: time.Millisecond,
	}, nil, nil)
	if _, err := c.Confirm(context.Background(), testPlan()); err == nil {
		t.Fatalf("expected error when fallback is disabled")
	}
}
