package trip

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies one itinerary leg kind.
type Category string

const (
	CategoryFlight   Category = "flight"
	CategoryHotel    Category = "hotel"
	CategoryActivity Category = "activity"
)

// Categories lists all known categories in canonical order.
var Categories = []Category{CategoryFlight, CategoryHotel, CategoryActivity}

// Valid reports whether the category is one of the known leg kinds.
func (c Category) Valid() bool {
	switch c {
	case CategoryFlight, CategoryHotel, CategoryActivity:
		return true
	}
	return false
}

// DateRange is the travel window of an intent.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Nights returns the number of nights covered by the range, never below zero.
func (r DateRange) Nights() int {
	n := int(r.End.Sub(r.Start).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// Shift returns a copy of the range moved by the given number of days.
func (r DateRange) Shift(days int) DateRange {
	d := time.Duration(days) * 24 * time.Hour
	return DateRange{Start: r.Start.Add(d), End: r.End.Add(d)}
}

// Extend returns a copy of the range with the end moved by the given number of days.
func (r DateRange) Extend(days int) DateRange {
	return DateRange{Start: r.Start, End: r.End.Add(time.Duration(days) * 24 * time.Hour)}
}

// UserIntent is the decomposed traveler request a session negotiates against.
// Immutable once a session starts; the accepted snapshot is stored on the session record.
type UserIntent struct {
	Origin      string                       `json:"origin"`
	Destination string                       `json:"destination"`
	Dates       DateRange                    `json:"dates"`
	PartySize   int                          `json:"party_size"`
	BudgetCents int64                        `json:"budget_cents"`
	Currency    string                       `json:"currency"`
	Preferences map[Category]float64         `json:"preferences"` // weight per category, >= 0
	Interests   []string                     `json:"interests,omitempty"`
	Mandatory   []Category                   `json:"mandatory_categories"`
	Constraints map[Category]map[string]string `json:"constraints,omitempty"`
}

// Validate checks the structural rules every accepted intent must satisfy.
func (i UserIntent) Validate() error {
	if i.BudgetCents <= 0 {
		return fmt.Errorf("budget must be positive, got %d", i.BudgetCents)
	}
	if _, ok := NormalizeCurrency(i.Currency); !ok {
		return fmt.Errorf("unknown currency %q", i.Currency)
	}
	if i.Dates.Start.IsZero() || i.Dates.End.IsZero() {
		return fmt.Errorf("date range is required")
	}
	if !i.Dates.End.After(i.Dates.Start) {
		return fmt.Errorf("date range end %s is not after start %s",
			i.Dates.End.Format("2006-01-02"), i.Dates.Start.Format("2006-01-02"))
	}
	if i.PartySize <= 0 {
		return fmt.Errorf("party size must be positive, got %d", i.PartySize)
	}
	if strings.TrimSpace(i.Destination) == "" {
		return fmt.Errorf("destination is required")
	}
	if len(i.Mandatory) == 0 {
		return fmt.Errorf("at least one mandatory category is required")
	}
	seen := map[Category]bool{}
	for _, c := range i.Mandatory {
		if !c.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
		if seen[c] {
			return fmt.Errorf("duplicate mandatory category %q", c)
		}
		seen[c] = true
	}
	for c, w := range i.Preferences {
		if !c.Valid() {
			return fmt.Errorf("preference weight for unknown category %q", c)
		}
		if w < 0 {
			return fmt.Errorf("preference weight for %s must be >= 0, got %f", c, w)
		}
	}
	return nil
}

// IsMandatory reports whether the category must be filled for a feasible plan.
func (i UserIntent) IsMandatory(c Category) bool {
	for _, m := range i.Mandatory {
		if m == c {
			return true
		}
	}
	return false
}

// Weight returns the preference weight for a category, defaulting to 1.0 when unset.
func (i UserIntent) Weight(c Category) float64 {
	if w, ok := i.Preferences[c]; ok {
		return w
	}
	return 1.0
}

// Queries derives one structured Query per mandatory category from the intent.
func (i UserIntent) Queries() []Query {
	out := make([]Query, 0, len(i.Mandatory))
	for _, c := range i.Mandatory {
		out = append(out, Query{
			Category:    c,
			Origin:      i.Origin,
			Destination: i.Destination,
			Dates:       i.Dates,
			PartySize:   i.PartySize,
			Constraints: i.Constraints[c],
		})
	}
	return out
}

// Query is a structured request for one category derived from a UserIntent.
type Query struct {
	Category    Category          `json:"category"`
	Origin      string            `json:"origin,omitempty"`
	Destination string            `json:"destination"`
	Dates       DateRange         `json:"dates"`
	PartySize   int               `json:"party_size"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

// Offer is a candidate option for a Query. Immutable once received.
type Offer struct {
	ID             string    `json:"id"`
	QuerySignature string    `json:"query_signature"`
	Category       Category  `json:"category"`
	Supplier       string    `json:"supplier"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	Rating         float64   `json:"rating"`         // 0.0 to 5.0
	DurationHours  float64   `json:"duration_hours"` // leg duration, 0 when not applicable
	Refundable     bool      `json:"refundable"`
	Tags           []string  `json:"tags,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`
	Valid          bool      `json:"valid"`
	InterestMatch  float64   `json:"interest_match"` // 0.0 to 1.0, set by the offer pool index
}

// PricingQuery addresses one pricing negotiation for an offer fragment.
type PricingQuery struct {
	Signature string            `json:"signature"` // owning Query signature
	OfferID   string            `json:"offer_id"`
	Params    map[string]string `json:"params,omitempty"` // nights, dates, party size adjustments
}

// PriceQuote is the immutable result of one pricing negotiation.
type PriceQuote struct {
	Key        string    `json:"key"` // cache key: signature + params hash
	OfferID    string    `json:"offer_id"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Confidence float64   `json:"confidence"` // 0.0 to 1.0
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the quote's validity window has passed.
func (q PriceQuote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// Usable reports whether the quote can still price a selection at the given time.
func (q PriceQuote) Usable(now time.Time) bool {
	return q.OfferID != "" && !q.Expired(now)
}

// CandidateSelection is one offer per category plus its aggregate price and score.
// Transient: recomputed each optimization round. EffectiveDates is the travel
// window the quoted prices are valid for; exploratory re-negotiation may shift
// it away from the intent's original window, and the itinerary always states
// the window its prices correspond to.
type CandidateSelection struct {
	Offers         map[Category]Offer      `json:"offers"`
	Quotes         map[Category]PriceQuote `json:"quotes,omitempty"`
	EffectiveDates DateRange               `json:"effective_dates"`
	TotalCents     int64                   `json:"total_cents"`
	Score          float64                 `json:"score"`
	Feasible       bool                    `json:"feasible"`
}

// Clone returns a deep copy so a kept best selection cannot alias round state.
func (s CandidateSelection) Clone() CandidateSelection {
	out := CandidateSelection{
		Offers:         make(map[Category]Offer, len(s.Offers)),
		Quotes:         make(map[Category]PriceQuote, len(s.Quotes)),
		EffectiveDates: s.EffectiveDates,
		TotalCents:     s.TotalCents,
		Score:          s.Score,
		Feasible:       s.Feasible,
	}
	for c, o := range s.Offers {
		out.Offers[c] = o
	}
	for c, q := range s.Quotes {
		out.Quotes[c] = q
	}
	return out
}

// SameOffers reports whether two selections pick exactly the same offers.
func (s CandidateSelection) SameOffers(other CandidateSelection) bool {
	if len(s.Offers) != len(other.Offers) {
		return false
	}
	for c, o := range s.Offers {
		oo, ok := other.Offers[c]
		if !ok || oo.ID != o.ID {
			return false
		}
	}
	return true
}

// NegotiationSummary captures how a session reached its terminal plan.
type NegotiationSummary struct {
	Rounds            int     `json:"rounds"`
	ExploratoryRounds int     `json:"exploratory_rounds"`
	PriceHistoryCents []int64 `json:"price_history_cents"`
	FinalScore        float64 `json:"final_score"`
	Converged         bool    `json:"converged"`
	TerminationReason string  `json:"termination_reason"`
}

// ItineraryPlan is the finalized selection exposed for approval. Immutable.
type ItineraryPlan struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	Selection  CandidateSelection `json:"selection"`
	TotalCents int64              `json:"total_cents"`
	Currency   string             `json:"currency"`
	Score      float64            `json:"score"`
	Summary    NegotiationSummary `json:"summary"`
	CreatedAt  time.Time          `json:"created_at"`
}

// BookingConfirmation is the booking collaborator's receipt for an approved plan.
type BookingConfirmation struct {
	ConfirmationID       string              `json:"confirmation_id"`
	Reference            string              `json:"reference"` // e.g. VAI-1755820800
	LegConfirmations     map[Category]string `json:"leg_confirmations"`
	ReceiptURL           string              `json:"receipt_url"`
	SupportEmail         string              `json:"support_email,omitempty"`
	SupportPhone         string              `json:"support_phone,omitempty"`
	CancellationPolicies map[Category]string `json:"cancellation_policies,omitempty"`
	TotalCents           int64               `json:"total_cents"`
	Currency             string              `json:"currency"`
	BookedAt             time.Time           `json:"booked_at"`
}
