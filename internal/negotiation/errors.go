package negotiation

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// ErrCancelled is the terminal error for user-initiated cancellation.
var ErrCancelled = errors.New("negotiation cancelled")

// ErrInvalidIntent rejects a submission before a session is created.
type ErrInvalidIntent struct {
	Reason string
}

func (e ErrInvalidIntent) Error() string {
	return fmt.Sprintf("invalid intent: %s", e.Reason)
}

// ErrNoOffers is fatal for a session: a mandatory category has no usable offers.
type ErrNoOffers struct {
	Category trip.Category
}

func (e ErrNoOffers) Error() string {
	return fmt.Sprintf("no offers found for mandatory category %s", e.Category)
}

// ErrPricingUnavailable marks one offer as unpriceable this round after the
// pricing client exhausted its retries. Recoverable: the round excludes the
// offer; the session fails only when a mandatory category loses all candidates.
type ErrPricingUnavailable struct {
	OfferID  string
	Attempts int
	Err      error
}

func (e ErrPricingUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pricing unavailable for offer %s after %d attempts: %v", e.OfferID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("pricing unavailable for offer %s after %d attempts", e.OfferID, e.Attempts)
}

func (e ErrPricingUnavailable) Unwrap() error { return e.Err }

// ErrBudgetExceeded terminates a session that exhausted its rounds without a
// feasible selection. BestCents carries the closest plan total seen, if any.
type ErrBudgetExceeded struct {
	Rounds      int
	BudgetCents int64
	BestCents   int64
}

func (e ErrBudgetExceeded) Error() string {
	if e.BestCents > 0 {
		return fmt.Sprintf("no feasible plan within budget after %d rounds: closest total %d exceeds budget %d",
			e.Rounds, e.BestCents, e.BudgetCents)
	}
	return fmt.Sprintf("no feasible plan within budget after %d rounds", e.Rounds)
}

// ErrRoundLimit signals that the round counter reached its configured maximum.
type ErrRoundLimit struct {
	Used  int
	Limit int
}

func (e ErrRoundLimit) Error() string {
	return fmt.Sprintf("negotiation round limit reached: used=%d limit=%d", e.Used, e.Limit)
}

// ErrTimedOut terminates a session that exceeded its wall-clock ceiling.
type ErrTimedOut struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e ErrTimedOut) Error() string {
	return fmt.Sprintf("session timed out: elapsed=%s limit=%s", e.Elapsed, e.Limit)
}
