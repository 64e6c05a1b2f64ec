package server

import (
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// SubmitSessionRequest carries a trip intent plus optional per-session limit
// overrides. The engine clamps overrides so they only tighten the configured
// defaults; see Limits.Tightened.
type SubmitSessionRequest struct {
	Destination string                    `json:"destination"`
	Origin      string                    `json:"origin,omitempty"`
	StartDate   string                    `json:"start_date"` // YYYY-MM-DD
	EndDate     string                    `json:"end_date"`
	PartySize   int                       `json:"party_size"`
	BudgetCents int64                     `json:"budget_cents"`
	Currency    string                    `json:"currency"`
	Mandatory   []trip.Category           `json:"mandatory"`
	Interests   []string                  `json:"interests,omitempty"`
	Preferences map[trip.Category]float64 `json:"preferences,omitempty"`

	Limits *negotiation.Limits `json:"limits,omitempty"`
}

// SessionResponse is the submit/status view of one session.
type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	State          string    `json:"state"`
	Round          int       `json:"round"`
	BestSummary    string    `json:"best_plan_summary,omitempty"`
	BestTotalCents int64     `json:"best_total_cents,omitempty"`
	BestScore      float64   `json:"best_score,omitempty"`
	Feasible       bool      `json:"feasible"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func sessionResponse(st negotiation.Status) SessionResponse {
	return SessionResponse{
		SessionID:      st.SessionID,
		State:          string(st.State),
		Round:          st.Round,
		BestSummary:    st.BestSummary,
		BestTotalCents: st.BestTotalCents,
		BestScore:      st.BestScore,
		Feasible:       st.Feasible,
		Reason:         st.Reason,
		Error:          st.Error,
		UpdatedAt:      st.UpdatedAt,
	}
}

// SessionListItem is the compact listing view.
type SessionListItem struct {
	SessionID   string    `json:"session_id"`
	State       string    `json:"state"`
	Destination string    `json:"destination"`
	BudgetCents int64     `json:"budget_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlanResponse wraps a finalized itinerary plus its negotiation audit trail.
type PlanResponse struct {
	Plan   trip.ItineraryPlan        `json:"plan"`
	Rounds []negotiation.RoundRecord `json:"rounds,omitempty"`
}

// ConfirmationResponse returns the booking receipt for an approved plan.
type ConfirmationResponse struct {
	Confirmation trip.BookingConfirmation `json:"confirmation"`
}
