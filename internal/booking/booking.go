package booking

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/httpx"
	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// confirmRequest is the wire shape sent to the booking collaborator. The date
// window is the selection's effective one, so the booked dates always match
// the dates the prices were negotiated for.
type confirmRequest struct {
	PlanID     string                  `json:"plan_id"`
	SessionID  string                  `json:"session_id"`
	DateStart  string                  `json:"date_start"`
	DateEnd    string                  `json:"date_end"`
	TotalCents int64                   `json:"total_cents"`
	Currency   string                  `json:"currency"`
	Legs       map[string]confirmLeg   `json:"legs"`
	Summary    trip.NegotiationSummary `json:"summary"`
}

type confirmLeg struct {
	OfferID    string `json:"offer_id"`
	Supplier   string `json:"supplier"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
}

type confirmResponse struct {
	ConfirmationID       string            `json:"confirmation_id"`
	Reference            string            `json:"reference"`
	LegConfirmations     map[string]string `json:"leg_confirmations"`
	ReceiptURL           string            `json:"receipt_url"`
	SupportEmail         string            `json:"support_email"`
	SupportPhone         string            `json:"support_phone"`
	CancellationPolicies map[string]string `json:"cancellation_policies"`
}

// Client hands approved plans to the external booking collaborator. In
// prototype mode (or, when configured, on collaborator failure) it simulates
// the confirmation locally instead, so the rest of the engine behaves
// identically with or without a live booking backend.
type Client struct {
	cfg       config.BookingConfig
	http      *httpx.Client
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewClient builds a booking client.
func NewClient(cfg config.BookingConfig, tele *telemetry.Telemetry, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[BOOKING] ", log.LstdFlags)
	}
	return &Client{
		cfg:       cfg,
		http:      httpx.New(cfg.Timeout, cfg.MaxRetries, cfg.Backoff),
		telemetry: tele,
		logger:    logger,
	}
}

// Confirm books an approved plan and returns the confirmation receipt.
func (c *Client) Confirm(ctx context.Context, plan trip.ItineraryPlan) (trip.BookingConfirmation, error) {
	if c.cfg.Prototype {
		conf := c.simulate(plan)
		if c.telemetry != nil {
			c.telemetry.RecordBooking()
		}
		return conf, nil
	}

	legs := make(map[string]confirmLeg, len(plan.Selection.Offers))
	for cat, o := range plan.Selection.Offers {
		legs[string(cat)] = confirmLeg{
			OfferID:    o.ID,
			Supplier:   o.Supplier,
			Title:      o.Title,
			PriceCents: legPrice(plan, cat),
		}
	}

	var resp confirmResponse
	url := c.cfg.BaseURL + "/confirm"
	err := c.http.DoJSON(ctx, http.MethodPost, url, nil, confirmRequest{
		PlanID:     plan.ID,
		SessionID:  plan.SessionID,
		DateStart:  plan.Selection.EffectiveDates.Start.UTC().Format("2006-01-02"),
		DateEnd:    plan.Selection.EffectiveDates.End.UTC().Format("2006-01-02"),
		TotalCents: plan.TotalCents,
		Currency:   plan.Currency,
		Legs:       legs,
		Summary:    plan.Summary,
	}, &resp)
	if err != nil {
		if c.cfg.SimulateOnFailure {
			c.logger.Printf("booking collaborator failed, simulating confirmation for plan %s: %v", plan.ID, err)
			conf := c.simulate(plan)
			if c.telemetry != nil {
				c.telemetry.RecordBooking()
			}
			return conf, nil
		}
		return trip.BookingConfirmation{}, fmt.Errorf("booking confirm for plan %s: %w", plan.ID, err)
	}

	conf := trip.BookingConfirmation{
		ConfirmationID:       resp.ConfirmationID,
		Reference:            resp.Reference,
		LegConfirmations:     make(map[trip.Category]string, len(resp.LegConfirmations)),
		ReceiptURL:           resp.ReceiptURL,
		SupportEmail:         resp.SupportEmail,
		SupportPhone:         resp.SupportPhone,
		CancellationPolicies: make(map[trip.Category]string, len(resp.CancellationPolicies)),
		TotalCents:           plan.TotalCents,
		Currency:             plan.Currency,
		BookedAt:             time.Now(),
	}
	for cat, v := range resp.LegConfirmations {
		conf.LegConfirmations[trip.Category(cat)] = v
	}
	for cat, v := range resp.CancellationPolicies {
		conf.CancellationPolicies[trip.Category(cat)] = v
	}
	if c.telemetry != nil {
		c.telemetry.RecordBooking()
	}
	return conf, nil
}

// simulate constructs a local confirmation in the collaborator's format.
func (c *Client) simulate(plan trip.ItineraryPlan) trip.BookingConfirmation {
	ref := fmt.Sprintf("VAI-%d", time.Now().Unix())
	conf := trip.BookingConfirmation{
		ConfirmationID:       ref,
		Reference:            ref,
		LegConfirmations:     make(map[trip.Category]string, len(plan.Selection.Offers)),
		ReceiptURL:           fmt.Sprintf("%s/%s", c.cfg.ReceiptBaseURL, ref),
		SupportEmail:         c.cfg.SupportEmail,
		SupportPhone:         c.cfg.SupportPhone,
		CancellationPolicies: make(map[trip.Category]string),
		TotalCents:           plan.TotalCents,
		Currency:             plan.Currency,
		BookedAt:             time.Now(),
	}
	for cat := range plan.Selection.Offers {
		switch cat {
		case trip.CategoryFlight:
			conf.LegConfirmations[cat] = "TKT-" + randomString(alphanumeric, 10)
			conf.CancellationPolicies[cat] = "Free cancellation within 24 hours of booking"
		case trip.CategoryHotel:
			conf.LegConfirmations[cat] = "HOTEL-" + randomString(digits, 8)
			conf.CancellationPolicies[cat] = "Free cancellation until 48 hours before check-in"
		default:
			conf.LegConfirmations[cat] = "ACT-" + randomString(alphanumeric, 8)
			conf.CancellationPolicies[cat] = "Refundable up to 24 hours before the activity"
		}
	}
	return conf
}

func legPrice(plan trip.ItineraryPlan, cat trip.Category) int64 {
	if q, ok := plan.Selection.Quotes[cat]; ok {
		return q.PriceCents
	}
	return plan.Selection.Offers[cat].PriceCents
}

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"
)

func randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
