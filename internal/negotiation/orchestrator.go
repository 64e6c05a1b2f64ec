package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ashwinipuranik30/VoyAIge/internal/capability"
	"github.com/Ashwinipuranik30/VoyAIge/internal/offers"
	"github.com/Ashwinipuranik30/VoyAIge/internal/telemetry"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

var orchestratorTracer trace.Tracer = otel.Tracer("voyaige/internal/negotiation")

// Options bounds the orchestrator's fan-out and session concurrency.
type Options struct {
	MaxConcurrentSessions int
	ResearchConcurrency   int
	PricingConcurrency    int
}

func (o Options) normalized() Options {
	if o.MaxConcurrentSessions <= 0 {
		o.MaxConcurrentSessions = 8
	}
	if o.ResearchConcurrency <= 0 {
		o.ResearchConcurrency = 4
	}
	if o.PricingConcurrency <= 0 {
		o.PricingConcurrency = 4
	}
	return o
}

// Orchestrator drives negotiation sessions through the state machine:
// INIT -> RESEARCHING -> {OPTIMIZING -> PRICING -> EVALUATING} loop -> terminal.
// Each session is owned by exactly one goroutine; the orchestrator depends
// only on the collaborator capability interfaces, never their implementations.
type Orchestrator struct {
	defaults  Defaults
	opts      Options
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	research  ResearchProvider
	pricing   PricingProvider
	finalizer *Finalizer
	store     Store

	// Processing state: cancel handles and status snapshots for live sessions.
	mu       sync.RWMutex
	running  map[string]context.CancelFunc
	statuses map[string]Status

	// Concurrency control
	semaphore chan struct{}
}

// NewOrchestrator wires the engine. The capability registry must hold a
// verified card for every required collaborator role or the engine refuses to
// start.
func NewOrchestrator(defaults Defaults, opts Options, registry *capability.Registry,
	research ResearchProvider, pricing PricingProvider, booking BookingProvider,
	store Store, tele *telemetry.Telemetry, logger *log.Logger) (*Orchestrator, error) {

	if logger == nil {
		logger = log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags)
	}
	for _, role := range capability.RequiredRoles {
		if _, ok := registry.Role(role); !ok {
			return nil, fmt.Errorf("%w: %s", capability.ErrRoleMissing, role)
		}
	}
	if research == nil || pricing == nil || booking == nil || store == nil {
		return nil, errors.New("orchestrator requires research, pricing, booking and store")
	}
	opts = opts.normalized()
	return &Orchestrator{
		defaults:  defaults,
		opts:      opts,
		logger:    logger,
		telemetry: tele,
		research:  research,
		pricing:   pricing,
		finalizer: NewFinalizer(store, booking, tele, nil),
		store:     store,
		running:   make(map[string]context.CancelFunc),
		statuses:  make(map[string]Status),
		semaphore: make(chan struct{}, opts.MaxConcurrentSessions),
	}, nil
}

// Finalizer exposes the approval surface.
func (o *Orchestrator) Finalizer() *Finalizer { return o.finalizer }

// Approve hands a finalized session's plan to the booking collaborator.
func (o *Orchestrator) Approve(ctx context.Context, sessionID string) (trip.BookingConfirmation, error) {
	return o.finalizer.Approve(ctx, sessionID)
}

// Recover marks sessions that were mid-negotiation when the process died as
// failed. Negotiation itself is not resumed, only observability.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.store.MarkInterrupted(ctx, "interrupted: orchestrator restart")
	if err != nil {
		return fmt.Errorf("recovery pass: %w", err)
	}
	if n > 0 {
		o.logger.Printf("recovery: marked %d interrupted session(s) failed", n)
	}
	return nil
}

// Submit validates an intent, creates a session and starts its owner
// goroutine. Validation failures surface immediately as ErrInvalidIntent.
// The returned Status is a value snapshot taken before the owner goroutine
// starts; the live session itself never crosses the API boundary, so callers
// cannot race with the run loop's mutations.
func (o *Orchestrator) Submit(ctx context.Context, userID string, intent trip.UserIntent, limits Limits) (Status, error) {
	if err := intent.Validate(); err != nil {
		return Status{}, ErrInvalidIntent{Reason: err.Error()}
	}
	if err := limits.Validate(); err != nil {
		return Status{}, ErrInvalidIntent{Reason: err.Error()}
	}
	limits = limits.Tightened(o.defaults)

	sess := NewSession(userID, intent, limits)
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return Status{}, fmt.Errorf("persist session: %w", err)
	}
	if o.telemetry != nil {
		o.telemetry.RecordSessionStart()
	}

	snap := sess.Snapshot()
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[sess.ID] = cancel
	o.statuses[sess.ID] = snap
	o.mu.Unlock()

	go o.run(runCtx, sess)
	o.logger.Printf("session %s submitted for user %s (budget %s)",
		sess.ID, userID, trip.FormatAmount(intent.BudgetCents, intent.Currency))
	return snap, nil
}

// Cancel short-circuits a live session. Idempotent; returns false when the
// session is not running.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.RLock()
	cancel, ok := o.running[sessionID]
	o.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Status returns the latest snapshot: the live one for running sessions, the
// persisted one otherwise.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (Status, error) {
	o.mu.RLock()
	st, ok := o.statuses[sessionID]
	o.mu.RUnlock()
	if ok {
		return st, nil
	}
	sess, found, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return Status{}, err
	}
	if !found {
		return Status{}, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// run owns one session from RESEARCHING to its terminal state.
func (o *Orchestrator) run(ctx context.Context, sess *Session) {
	start := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "negotiation.session",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.Int64("session.budget_cents", sess.Intent.BudgetCents),
		))
	defer span.End()

	defer func() {
		o.mu.Lock()
		if cancel, ok := o.running[sess.ID]; ok {
			cancel()
			delete(o.running, sess.ID)
		}
		delete(o.statuses, sess.ID)
		o.mu.Unlock()

		if o.telemetry != nil {
			o.telemetry.RecordSession(telemetry.SessionEvent{
				SessionID: sess.ID,
				Outcome:   strings.ToLower(string(sess.State)),
				Rounds:    sess.Round,
				Explored:  sess.Explored,
				Duration:  time.Since(start),
				Feasible:  sess.Best != nil,
			})
		}
	}()

	// Acquire the global session slot.
	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		o.finish(ctx, sess, span, StateCancelled, "cancelled before start", ErrCancelled)
		return
	}

	monitor := NewMonitor(sess.Limits, o.defaults)
	sessCtx := ctx
	if deadline, ok := monitor.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		sessCtx, cancelDeadline = context.WithDeadline(ctx, deadline)
		defer cancelDeadline()
	}

	pool, err := offers.NewPool()
	if err != nil {
		o.finish(ctx, sess, span, StateFailed, "offer pool init failed", err)
		return
	}
	defer pool.Close()

	if err := o.researchPhase(sessCtx, sess, pool); err != nil {
		o.finishWithError(ctx, sess, span, monitor, err)
		return
	}
	span.AddEvent("research.complete")

	o.negotiate(sessCtx, sess, span, monitor, pool)
}

// researchPhase populates the offer pool with bounded fan-out and verifies
// every mandatory category is covered.
func (o *Orchestrator) researchPhase(ctx context.Context, sess *Session, pool *offers.Pool) error {
	if err := sess.Transition(StateResearching); err != nil {
		return err
	}
	o.publish(ctx, sess)

	queries := sess.Intent.Queries()
	sem := make(chan struct{}, o.opts.ResearchConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, q := range queries {
		wg.Add(1)
		go func(q trip.Query) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			found, err := o.research.Search(ctx, q)
			if err != nil {
				o.logger.Printf("session %s: research for %s failed: %v", sess.ID, q.Category, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if err := pool.Add(found...); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(q)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pool.AnnotateInterests(sess.Intent.Interests); err != nil {
		o.logger.Printf("session %s: interest annotation failed: %v", sess.ID, err)
	}
	for _, c := range sess.Intent.Mandatory {
		if pool.CountValid(c) == 0 {
			if firstErr != nil {
				return fmt.Errorf("research for mandatory category %s failed: %w", c, firstErr)
			}
			return ErrNoOffers{Category: c}
		}
	}
	return nil
}

// negotiate runs the OPTIMIZING -> PRICING -> EVALUATING loop to a terminal
// state.
func (o *Orchestrator) negotiate(ctx context.Context, sess *Session, span trace.Span, monitor *Monitor, pool *offers.Pool) {
	quotes := make(map[string]trip.PriceQuote)
	excluded := make(map[string]bool)
	var prevTotal int64
	hasPrev := false

	for {
		if err := ctx.Err(); err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}
		if err := monitor.CheckTime(); err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}

		round, err := monitor.BeginRound()
		if err != nil {
			// Round budget exhausted: converge on the best feasible
			// selection if one exists, otherwise the budget was never met.
			if sess.Best != nil {
				o.converge(ctx, sess, span, monitor)
				return
			}
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}
		sess.Round = round

		if err := sess.Transition(StateOptimizing); err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}
		o.publish(ctx, sess)

		optimizer := NewOptimizer(o.logger)
		proposal, err := optimizer.Propose(Input{
			Pool:     pool.Snapshot(),
			Intent:   sess.Intent,
			Previous: sess.Best,
			Quotes:   quotes,
			Excluded: excluded,
			Now:      time.Now(),
		})
		if err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}

		if err := sess.Transition(StatePricing); err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}
		o.publish(ctx, sess)

		failures := 0
		if len(proposal.NeedsPricing) > 0 {
			fresh, dropped, err := o.priceBatch(ctx, sess.ID, proposal.NeedsPricing)
			if err != nil {
				o.finishWithError(ctx, sess, span, monitor, err)
				return
			}
			for id, q := range fresh {
				quotes[id] = q
			}
			for id := range dropped {
				excluded[id] = true
			}
			failures = len(dropped)
		}

		if err := sess.Transition(StateEvaluating); err != nil {
			o.finishWithError(ctx, sess, span, monitor, err)
			return
		}

		sel, priced := o.evaluate(proposal.Selection, sess.Intent, quotes, excluded)
		sess.RecordRoundTotal(sel.TotalCents)
		improved := false
		if priced {
			improved = sess.AdoptIfBetter(sel)
		}
		o.publish(ctx, sess)

		rec := RoundRecord{
			SessionID:       sess.ID,
			Round:           round,
			TotalCents:      sel.TotalCents,
			Score:           sel.Score,
			Feasible:        sel.Feasible,
			Improved:        improved,
			PricingFailures: failures,
			Selection:       sel,
			CreatedAt:       time.Now(),
		}
		if err := o.store.AppendRound(ctx, rec); err != nil {
			o.logger.Printf("session %s: round %d not persisted: %v", sess.ID, round, err)
		}
		if o.telemetry != nil {
			o.telemetry.RecordRound(false)
		}
		span.AddEvent("round.evaluated", trace.WithAttributes(
			attribute.Int("round", round),
			attribute.Int64("total_cents", sel.TotalCents),
			attribute.Bool("feasible", sel.Feasible),
		))

		exhausted := proposal.Exhausted && !improved
		if priced && monitor.Converged(hasPrev, prevTotal, sel.TotalCents, sel.Feasible, exhausted) {
			if sess.Best == nil {
				// convergence on an infeasible landscape: nothing within budget
				o.finishWithError(ctx, sess, span, monitor, o.budgetError(sess, monitor))
				return
			}
			o.converge(ctx, sess, span, monitor)
			return
		}
		hasPrev, prevTotal = true, sel.TotalCents
	}
}

// evaluate recomputes a proposed selection against the freshest quotes.
// priced is false when a selected leg lost its price this round; the round
// then yields no adoptable candidate and the loop re-proposes.
func (o *Orchestrator) evaluate(sel trip.CandidateSelection, intent trip.UserIntent,
	quotes map[string]trip.PriceQuote, excluded map[string]bool) (trip.CandidateSelection, bool) {

	now := time.Now()
	out := sel.Clone()
	out.TotalCents = 0
	priced := true
	for c, offer := range out.Offers {
		if excluded[offer.ID] {
			priced = false
		}
		price, fromQuote, ok := effectivePrice(offer, quotes, now)
		if !ok {
			priced = false
			continue
		}
		if fromQuote {
			out.Quotes[c] = quotes[offer.ID]
		}
		out.TotalCents += price
	}
	out.Feasible = priced && Feasible(out.TotalCents, intent)
	out.Score = Score(out, intent)
	return out, priced
}

// priceBatch issues negotiate requests with bounded fan-out and awaits the
// set. Cancellation short-circuits the wait; in-flight calls complete but
// their results are discarded.
func (o *Orchestrator) priceBatch(ctx context.Context, sessionID string, reqs []trip.PricingQuery) (map[string]trip.PriceQuote, map[string]bool, error) {
	type result struct {
		offerID string
		quote   trip.PriceQuote
		err     error
	}
	results := make(chan result, len(reqs))
	sem := make(chan struct{}, o.opts.PricingConcurrency)

	for _, req := range reqs {
		go func(req trip.PricingQuery) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{offerID: req.OfferID, err: ctx.Err()}
				return
			}
			q, err := o.pricing.Negotiate(ctx, req)
			results <- result{offerID: req.OfferID, quote: q, err: err}
		}(req)
	}

	quotes := make(map[string]trip.PriceQuote)
	dropped := make(map[string]bool)
	for i := 0; i < len(reqs); i++ {
		select {
		case r := <-results:
			if r.err != nil {
				var unavailable ErrPricingUnavailable
				if errors.As(r.err, &unavailable) {
					o.logger.Printf("session %s: %v", sessionID, unavailable)
					dropped[r.offerID] = true
					continue
				}
				if errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded) {
					return nil, nil, ctx.Err()
				}
				dropped[r.offerID] = true
				continue
			}
			quotes[r.offerID] = r.quote
			if err := o.store.RecordQuote(ctx, sessionID, r.quote); err != nil {
				o.logger.Printf("session %s: quote audit write failed: %v", sessionID, err)
			}
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return quotes, dropped, nil
}

// converge runs bounded exploration while budget headroom remains, applies
// the confidence gate, then finalizes.
func (o *Orchestrator) converge(ctx context.Context, sess *Session, span trace.Span, monitor *Monitor) {
	o.explore(ctx, sess, monitor)

	if err := o.confidenceGate(ctx, sess, monitor); err != nil {
		o.finishWithError(ctx, sess, span, monitor, err)
		return
	}
	if sess.Best == nil || !sess.Best.Feasible {
		o.finishWithError(ctx, sess, span, monitor, o.budgetError(sess, monitor))
		return
	}

	if err := sess.Transition(StateConverged); err != nil {
		o.finishWithError(ctx, sess, span, monitor, err)
		return
	}
	o.publish(ctx, sess)

	_, explored, _ := monitor.Usage()
	sess.Explored = explored
	plan, err := o.finalizer.Package(sess, explored)
	if err != nil {
		o.finishWithError(ctx, sess, span, monitor, err)
		return
	}
	if err := o.store.SavePlan(ctx, plan); err != nil {
		o.finishWithError(ctx, sess, span, monitor, fmt.Errorf("persist plan: %w", err))
		return
	}

	sess.Reason = "converged"
	if err := sess.Transition(StateFinalized); err != nil {
		o.finishWithError(ctx, sess, span, monitor, err)
		return
	}
	o.publish(ctx, sess)
	span.SetAttributes(
		attribute.Int("session.rounds", sess.Round),
		attribute.Int64("plan.total_cents", plan.TotalCents),
	)
	o.logger.Printf("session %s finalized: %d round(s), total %s, score %.3f",
		sess.ID, sess.Round, trip.FormatAmount(plan.TotalCents, plan.Currency), plan.Score)
}

// explorationWindows lists the date variations probed after convergence.
var explorationWindows = []struct {
	shift  int
	extend int
}{
	{shift: 1}, {shift: -1}, {extend: -1}, {extend: 1}, {shift: 2}, {shift: -2},
}

// explore probes shifted travel windows for a cheaper rendition of the best
// selection. Each probe charges the shared round budget; the best feasible
// selection seen so far is kept regardless of outcome.
func (o *Orchestrator) explore(ctx context.Context, sess *Session, monitor *Monitor) {
	if sess.Best == nil {
		return
	}
	headroom := sess.Intent.BudgetCents - sess.Best.TotalCents
	if headroom <= 0 {
		return
	}

	for _, w := range explorationWindows {
		if ctx.Err() != nil || monitor.CheckTime() != nil {
			return
		}
		if _, ok := monitor.BeginExploration(); !ok {
			return
		}
		round, err := monitor.BeginRound()
		if err != nil {
			return
		}
		sess.Round = round

		dates := sess.Intent.Dates.Shift(w.shift)
		if w.extend != 0 {
			dates = dates.Extend(w.extend)
		}
		if !dates.End.After(dates.Start) {
			continue
		}

		var reqs []trip.PricingQuery
		for _, offer := range sess.Best.Offers {
			reqs = append(reqs, trip.PricingQuery{
				Signature: offer.QuerySignature,
				OfferID:   offer.ID,
				Params:    pricingParamsFor(dates, sess.Intent.PartySize, offer),
			})
		}
		fresh, dropped, err := o.priceBatch(ctx, sess.ID, reqs)
		if err != nil {
			return
		}

		candidate := sess.Best.Clone()
		candidate.EffectiveDates = dates
		candidate.TotalCents = 0
		complete := true
		for c, offer := range candidate.Offers {
			q, ok := fresh[offer.ID]
			if !ok || dropped[offer.ID] {
				complete = false
				break
			}
			candidate.Quotes[c] = q
			candidate.TotalCents += q.PriceCents
		}
		if !complete {
			continue
		}
		candidate.Feasible = Feasible(candidate.TotalCents, sess.Intent)
		candidate.Score = Score(candidate, sess.Intent)

		sess.RecordRoundTotal(candidate.TotalCents)
		improved := sess.AdoptIfBetter(candidate)
		o.publish(ctx, sess)
		if err := o.store.AppendRound(ctx, RoundRecord{
			SessionID:   sess.ID,
			Round:       round,
			Exploratory: true,
			TotalCents:  candidate.TotalCents,
			Score:       candidate.Score,
			Feasible:    candidate.Feasible,
			Improved:    improved,
			Selection:   candidate,
			CreatedAt:   time.Now(),
		}); err != nil {
			o.logger.Printf("session %s: exploratory round %d not persisted: %v", sess.ID, round, err)
		}
		if o.telemetry != nil {
			o.telemetry.RecordRound(true)
		}
	}
}

// confidenceGate re-prices legs whose quote expired or sits below the
// configured confidence floor before finalization. A re-priced rendition that
// no longer fits the budget drops the best selection's feasibility.
func (o *Orchestrator) confidenceGate(ctx context.Context, sess *Session, monitor *Monitor) error {
	if sess.Best == nil {
		return nil
	}
	now := time.Now()
	// Re-price under the window the best selection was quoted for, which
	// exploration may have shifted away from the intent's original dates.
	dates := sess.Best.EffectiveDates
	if dates.Start.IsZero() {
		dates = sess.Intent.Dates
	}
	var reqs []trip.PricingQuery
	stale := make(map[string]trip.Category)
	for c, q := range sess.Best.Quotes {
		if q.Usable(now) && q.Confidence >= monitor.MinConfidence() {
			continue
		}
		offer := sess.Best.Offers[c]
		params := pricingParamsFor(dates, sess.Intent.PartySize, offer)
		if q.Usable(now) {
			// below confidence: force a fresh final-eligibility negotiation;
			// an expired quote negotiates fresh under the same parameters
			params["reprice"] = "final"
		}
		reqs = append(reqs, trip.PricingQuery{
			Signature: offer.QuerySignature,
			OfferID:   offer.ID,
			Params:    params,
		})
		stale[offer.ID] = c
	}
	if len(reqs) == 0 {
		return nil
	}

	fresh, dropped, err := o.priceBatch(ctx, sess.ID, reqs)
	if err != nil {
		return err
	}
	updated := sess.Best.Clone()
	for id, c := range stale {
		if dropped[id] {
			return ErrPricingUnavailable{OfferID: id, Attempts: 1,
				Err: fmt.Errorf("final re-pricing for category %s failed", c)}
		}
		q, ok := fresh[id]
		if !ok {
			return ErrPricingUnavailable{OfferID: id, Attempts: 1,
				Err: fmt.Errorf("final re-pricing for category %s returned no quote", c)}
		}
		updated.TotalCents += q.PriceCents - updated.Quotes[c].PriceCents
		updated.Quotes[c] = q
	}
	updated.Feasible = Feasible(updated.TotalCents, sess.Intent)
	updated.Score = Score(updated, sess.Intent)
	sess.Best = &updated
	return nil
}

func (o *Orchestrator) budgetError(sess *Session, monitor *Monitor) error {
	var closest int64
	if sess.Closest != nil {
		closest = sess.Closest.TotalCents
	}
	return ErrBudgetExceeded{
		Rounds:      sess.Round,
		BudgetCents: sess.Intent.BudgetCents,
		BestCents:   closest,
	}
}

// finishWithError maps the error taxonomy onto terminal states.
func (o *Orchestrator) finishWithError(ctx context.Context, sess *Session, span trace.Span, monitor *Monitor, err error) {
	var (
		noOffers    ErrNoOffers
		unavailable ErrPricingUnavailable
		budget      ErrBudgetExceeded
		roundLimit  ErrRoundLimit
		timedOut    ErrTimedOut
	)
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		o.finish(ctx, sess, span, StateCancelled, "cancelled by user", ErrCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		_, _, elapsed := monitor.Usage()
		o.finish(ctx, sess, span, StateTimedOut, "session wall-clock ceiling exceeded",
			ErrTimedOut{Elapsed: elapsed, Limit: monitor.TimeLimit()})
	case errors.As(err, &timedOut):
		o.finish(ctx, sess, span, StateTimedOut, "session wall-clock ceiling exceeded", err)
	case errors.As(err, &budget), errors.As(err, &roundLimit):
		o.finish(ctx, sess, span, StateBudgetExceeded, "no feasible plan within budget", o.budgetError(sess, monitor))
	case errors.As(err, &noOffers):
		o.finish(ctx, sess, span, StateFailed, fmt.Sprintf("no offers for mandatory category %s", noOffers.Category), err)
	case errors.As(err, &unavailable):
		o.finish(ctx, sess, span, StateFailed, "pricing unavailable for a mandatory leg", err)
	default:
		o.finish(ctx, sess, span, StateFailed, "negotiation failed", err)
	}
}

// finish moves the session to a terminal state and persists it. Persistence
// runs on a background context so a cancelled session still lands in the
// store.
func (o *Orchestrator) finish(ctx context.Context, sess *Session, span trace.Span, state State, reason string, err error) {
	sess.Reason = reason
	if err != nil {
		sess.ErrorMsg = err.Error()
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	if terr := sess.Transition(state); terr != nil {
		// force terminal anyway so the session cannot hang
		sess.State = state
		sess.FinishedAt = time.Now()
		sess.UpdatedAt = sess.FinishedAt
	}
	o.publish(ctx, sess)
	o.logger.Printf("session %s terminal: %s (%s)", sess.ID, state, reason)
}

// publish persists the session snapshot and refreshes the live status map.
// Uses a short background context so terminal writes survive cancellation.
func (o *Orchestrator) publish(ctx context.Context, sess *Session) {
	o.mu.Lock()
	o.statuses[sess.ID] = sess.Snapshot()
	o.mu.Unlock()

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.SaveSession(saveCtx, sess); err != nil {
		o.logger.Printf("session %s: snapshot not persisted in state %s: %v", sess.ID, sess.State, err)
	}
}
