package negotiation

import (
	"context"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// ResearchProvider discovers candidate offers for a structured query.
type ResearchProvider interface {
	// Search returns candidate offers for the query. An empty result is not an
	// error; the orchestrator decides whether the gap is fatal.
	Search(ctx context.Context, query trip.Query) ([]trip.Offer, error)
}

// PricingProvider negotiates a price for one offer fragment.
type PricingProvider interface {
	// Negotiate returns a quote for the pricing query. Implementations must be
	// idempotent within a quote's validity window: identical signature and
	// parameters before expiry return the cached quote without a new external
	// call.
	Negotiate(ctx context.Context, query trip.PricingQuery) (trip.PriceQuote, error)
}

// BookingProvider turns an approved plan into a confirmed booking.
type BookingProvider interface {
	Confirm(ctx context.Context, plan trip.ItineraryPlan) (trip.BookingConfirmation, error)
}

// RoundRecord is one evaluated round, persisted for history and streaming.
type RoundRecord struct {
	SessionID       string                  `json:"session_id"`
	Round           int                     `json:"round"`
	Exploratory     bool                    `json:"exploratory"`
	TotalCents      int64                   `json:"total_cents"`
	Score           float64                 `json:"score"`
	Feasible        bool                    `json:"feasible"`
	Improved        bool                    `json:"improved"`
	PricingFailures int                     `json:"pricing_failures"`
	Selection       trip.CandidateSelection `json:"selection"`
	CreatedAt       time.Time               `json:"created_at"`
}

// Store persists sessions, rounds and plans. Implemented by internal/store;
// the orchestrator only depends on this interface.
type Store interface {
	// SaveSession upserts the full session snapshot keyed by session ID.
	SaveSession(ctx context.Context, sess *Session) error
	// GetSession loads a session snapshot; ok is false when absent.
	GetSession(ctx context.Context, id string) (*Session, bool, error)
	// ListSessions returns a user's sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
	// CountActiveSessions counts a user's non-terminal sessions.
	CountActiveSessions(ctx context.Context, userID string) (int, error)
	// AppendRound records one evaluated round.
	AppendRound(ctx context.Context, rec RoundRecord) error
	// ListRounds returns a session's rounds in order.
	ListRounds(ctx context.Context, sessionID string) ([]RoundRecord, error)
	// SavePlan persists a finalized plan.
	SavePlan(ctx context.Context, plan trip.ItineraryPlan) error
	// GetPlan loads the finalized plan for a session; ok is false when absent.
	GetPlan(ctx context.Context, sessionID string) (trip.ItineraryPlan, bool, error)
	// RecordQuote appends a quote to the session's price audit trail.
	RecordQuote(ctx context.Context, sessionID string, quote trip.PriceQuote) error
	// MarkInterrupted fails every non-terminal session, returning the count.
	MarkInterrupted(ctx context.Context, reason string) (int64, error)
}
