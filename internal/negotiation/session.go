package negotiation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// State is a negotiation session's lifecycle phase.
type State string

const (
	StateInit           State = "INIT"
	StateResearching    State = "RESEARCHING"
	StateOptimizing     State = "OPTIMIZING"
	StatePricing        State = "PRICING"
	StateEvaluating     State = "EVALUATING"
	StateConverged      State = "CONVERGED"
	StateFinalized      State = "FINALIZED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
	StateTimedOut       State = "TIMED_OUT"
	StateFailed         State = "FAILED"
	StateCancelled      State = "CANCELLED"
)

// Terminal reports whether no further transitions may leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateBudgetExceeded, StateTimedOut, StateFailed, StateCancelled:
		return true
	}
	return false
}

// transitions lists the legal edges of the session state machine.
var transitions = map[State][]State{
	StateInit:        {StateResearching, StateFailed, StateCancelled},
	StateResearching: {StateOptimizing, StateFailed, StateTimedOut, StateCancelled},
	StateOptimizing:  {StatePricing, StateBudgetExceeded, StateTimedOut, StateFailed, StateCancelled},
	StatePricing:     {StateEvaluating, StateTimedOut, StateFailed, StateCancelled},
	StateEvaluating: {StateOptimizing, StateResearching, StateConverged, StateBudgetExceeded,
		StateTimedOut, StateFailed, StateCancelled},
	StateConverged: {StateFinalized, StateFailed, StateCancelled},
}

// Session is the explicit context object for one negotiation. It is created at
// submit, owned by exactly one orchestrator goroutine, and threaded through
// every component call; there is no process-global session state.
type Session struct {
	ID           string                   `json:"id"`
	UserID       string                   `json:"user_id"`
	Intent       trip.UserIntent          `json:"intent"`
	Limits       Limits                   `json:"limits"`
	State        State                    `json:"state"`
	Round        int                      `json:"round"`
	Explored     int                      `json:"explored"`
	Best         *trip.CandidateSelection `json:"best,omitempty"`    // best feasible selection seen
	Closest      *trip.CandidateSelection `json:"closest,omitempty"` // cheapest infeasible fallback
	PriceHistory []int64                  `json:"price_history,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	ErrorMsg     string                   `json:"error,omitempty"`
	Confirmation *trip.BookingConfirmation `json:"confirmation,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	FinishedAt   time.Time                `json:"finished_at,omitempty"`
	ApprovedAt   time.Time                `json:"approved_at,omitempty"`
}

// NewSession creates a session in INIT for an already validated intent.
func NewSession(userID string, intent trip.UserIntent, limits Limits) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Intent:    intent,
		Limits:    limits.Clone(),
		State:     StateInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the session along a legal state-machine edge.
func (s *Session) Transition(to State) error {
	for _, allowed := range transitions[s.State] {
		if allowed == to {
			s.State = to
			s.UpdatedAt = time.Now()
			if to.Terminal() {
				s.FinishedAt = s.UpdatedAt
			}
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.State, to)
}

// AdoptIfBetter keeps the candidate when it beats the current best feasible
// selection. The best never regresses; infeasible candidates only update the
// closest-to-budget fallback used for terminal reporting.
func (s *Session) AdoptIfBetter(sel trip.CandidateSelection) bool {
	if len(sel.Offers) == 0 {
		return false
	}
	if !sel.Feasible {
		if s.Closest == nil || sel.TotalCents < s.Closest.TotalCents {
			c := sel.Clone()
			s.Closest = &c
		}
		return false
	}
	if s.Best == nil || sel.Score > s.Best.Score {
		c := sel.Clone()
		s.Best = &c
		return true
	}
	return false
}

// BestSummary renders a short human-readable summary of the best-known plan.
func (s *Session) BestSummary() string {
	sel := s.Best
	prefix := ""
	if sel == nil {
		if s.Closest == nil {
			return ""
		}
		sel = s.Closest
		prefix = "over budget: "
	}
	return fmt.Sprintf("%s%d legs, total %s, score %.3f",
		prefix, len(sel.Offers), trip.FormatAmount(sel.TotalCents, s.Intent.Currency), sel.Score)
}

// RecordRoundTotal appends a round's aggregate price to the session history.
func (s *Session) RecordRoundTotal(total int64) {
	s.PriceHistory = append(s.PriceHistory, total)
}

// Status is the externally visible snapshot of a session.
type Status struct {
	SessionID      string    `json:"session_id"`
	State          State     `json:"state"`
	Round          int       `json:"round"`
	BestSummary    string    `json:"best_plan_summary,omitempty"`
	BestTotalCents int64     `json:"best_total_cents,omitempty"`
	BestScore      float64   `json:"best_score,omitempty"`
	Feasible       bool      `json:"feasible"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot derives the externally visible status from the session.
func (s *Session) Snapshot() Status {
	st := Status{
		SessionID:   s.ID,
		State:       s.State,
		Round:       s.Round,
		BestSummary: s.BestSummary(),
		Reason:      s.Reason,
		Error:       s.ErrorMsg,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Best != nil {
		st.BestTotalCents = s.Best.TotalCents
		st.BestScore = s.Best.Score
		st.Feasible = s.Best.Feasible
	} else if s.Closest != nil {
		st.BestTotalCents = s.Closest.TotalCents
		st.BestScore = s.Closest.Score
	}
	return st
}
