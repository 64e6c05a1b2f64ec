package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotFinalized rejects approval of a session that has no finalized plan.
var ErrNotFinalized = errors.New("session has no finalized plan")

// ErrAlreadyApproved rejects a second approval; the orchestrator never
// re-enters negotiation after hand-off.
var ErrAlreadyApproved = errors.New("plan already approved and handed off")

// Finalizer packages a converged session's best selection into an immutable
// ItineraryPlan and, on approval, hands the snapshot to the booking
// collaborator.
type Finalizer struct {
	store     Store
	booking   BookingProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewFinalizer wires the finalizer against the store and booking collaborator.
func NewFinalizer(store Store, booking BookingProvider, tele *telemetry.Telemetry, logger *log.Logger) *Finalizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[FINALIZER] ", log.LstdFlags)
	}
	return &Finalizer{store: store, booking: booking, telemetry: tele, logger: logger}
}

// Package builds the immutable plan for a converged session, attaching the
// negotiation summary. The session must hold a feasible best selection.
func (f *Finalizer) Package(sess *Session, explored int) (trip.ItineraryPlan, error) {
	if sess.Best == nil {
		return trip.ItineraryPlan{}, fmt.Errorf("session %s converged without a feasible selection", sess.ID)
	}
	sel := sess.Best.Clone()
	history := make([]int64, len(sess.PriceHistory))
	copy(history, sess.PriceHistory)
	plan := trip.ItineraryPlan{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		Selection:  sel,
		TotalCents: sel.TotalCents,
		Currency:   sess.Intent.Currency,
		Score:      sel.Score,
		Summary: trip.NegotiationSummary{
			Rounds:            sess.Round,
			ExploratoryRounds: explored,
			PriceHistoryCents: history,
			FinalScore:        sel.Score,
			Converged:         true,
			TerminationReason: string(StateConverged),
		},
		CreatedAt: time.Now(),
	}
	return plan, nil
}

// Approve hands the finalized plan to the booking collaborator and records the
// confirmation on the session. Approval is one-shot.
func (f *Finalizer) Approve(ctx context.Context, sessionID string) (trip.BookingConfirmation, error) {
	sess, ok, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		return trip.BookingConfirmation{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if !ok {
		return trip.BookingConfirmation{}, ErrSessionNotFound
	}
	if sess.State != StateFinalized {
		return trip.BookingConfirmation{}, ErrNotFinalized
	}
	if sess.Confirmation != nil {
		return trip.BookingConfirmation{}, ErrAlreadyApproved
	}

	plan, ok, err := f.store.GetPlan(ctx, sessionID)
	if err != nil {
		return trip.BookingConfirmation{}, fmt.Errorf("load plan for session %s: %w", sessionID, err)
	}
	if !ok {
		return trip.BookingConfirmation{}, ErrNotFinalized
	}

	conf, err := f.booking.Confirm(ctx, plan)
	if err != nil {
		return trip.BookingConfirmation{}, fmt.Errorf("booking handoff for session %s: %w", sessionID, err)
	}

	now := time.Now()
	sess.Confirmation = &conf
	sess.ApprovedAt = now
	sess.UpdatedAt = now
	if err := f.store.SaveSession(ctx, sess); err != nil {
		// the booking went through; surface the persistence failure loudly
		f.logger.Printf("booking %s confirmed but session %s not persisted: %v", conf.Reference, sessionID, err)
		return conf, fmt.Errorf("persist approval for session %s: %w", sessionID, err)
	}
	f.logger.Printf("session %s approved, booking reference %s", sessionID, conf.Reference)
	return conf, nil
}
