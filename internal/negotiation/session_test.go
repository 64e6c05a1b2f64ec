package negotiation

import (
	"testing"

	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

func TestSessionLegalTransitions(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})
	path := []State{StateResearching, StateOptimizing, StatePricing, StateEvaluating,
		StateOptimizing, StatePricing, StateEvaluating, StateConverged, StateFinalized}
	for _, next := range path {
		if err := sess.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !sess.State.Terminal() {
		t.Fatalf("FINALIZED must be terminal")
	}
	if sess.FinishedAt.IsZero() {
		t.Fatalf("terminal transition must stamp FinishedAt")
	}
}

func TestSessionRejectsIllegalTransitions(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})
	if err := sess.Transition(StateEvaluating); err == nil {
		t.Fatalf("INIT -> EVALUATING must be rejected")
	}
	if err := sess.Transition(StateFinalized); err == nil {
		t.Fatalf("INIT -> FINALIZED must be rejected")
	}
}

func TestSessionCancellableFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []State{StateInit, StateResearching, StateOptimizing, StatePricing, StateEvaluating, StateConverged} {
		sess := NewSession("user-1", intentWithBudget(300000), Limits{})
		sess.State = from
		if err := sess.Transition(StateCancelled); err != nil {
			t.Fatalf("cancel from %s: %v", from, err)
		}
	}
}

func TestAdoptIfBetterNeverRegresses(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})

	good := trip.CandidateSelection{
		Offers:     map[trip.Category]trip.Offer{trip.CategoryHotel: {ID: "h1"}},
		TotalCents: 100000,
		Score:      0.8,
		Feasible:   true,
	}
	if !sess.AdoptIfBetter(good) {
		t.Fatalf("first feasible selection must be adopted")
	}

	worse := good.Clone()
	worse.Score = 0.5
	if sess.AdoptIfBetter(worse) {
		t.Fatalf("lower score must not replace the best")
	}
	if sess.Best.Score != 0.8 {
		t.Fatalf("best regressed to %f", sess.Best.Score)
	}

	better := good.Clone()
	better.Score = 0.9
	if !sess.AdoptIfBetter(better) {
		t.Fatalf("higher score must be adopted")
	}
}

func TestAdoptIfBetterTracksClosestInfeasible(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})

	over := trip.CandidateSelection{
		Offers:     map[trip.Category]trip.Offer{trip.CategoryHotel: {ID: "h1"}},
		TotalCents: 400000,
		Score:      0.9,
	}
	if sess.AdoptIfBetter(over) {
		t.Fatalf("infeasible selection must never become the best")
	}
	if sess.Best != nil {
		t.Fatalf("best must stay unset")
	}
	if sess.Closest == nil || sess.Closest.TotalCents != 400000 {
		t.Fatalf("closest infeasible fallback not tracked")
	}

	closer := over.Clone()
	closer.TotalCents = 350000
	sess.AdoptIfBetter(closer)
	if sess.Closest.TotalCents != 350000 {
		t.Fatalf("cheaper infeasible selection must replace the fallback")
	}

	snapshot := sess.Snapshot()
	if snapshot.Feasible {
		t.Fatalf("snapshot must report infeasible")
	}
	if snapshot.BestTotalCents != 350000 {
		t.Fatalf("snapshot must expose the closest plan, got %d", snapshot.BestTotalCents)
	}
}

func TestSnapshotReportsBestFeasibility(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})
	sess.AdoptIfBetter(trip.CandidateSelection{
		Offers:     map[trip.Category]trip.Offer{trip.CategoryHotel: {ID: "h1"}},
		TotalCents: 200000,
		Score:      0.8,
		Feasible:   true,
	})
	if st := sess.Snapshot(); !st.Feasible {
		t.Fatalf("feasible best must report feasible")
	}

	// a final re-pricing can push the held best over budget in place
	sess.Best.TotalCents = 320000
	sess.Best.Feasible = false
	st := sess.Snapshot()
	if st.Feasible {
		t.Fatalf("snapshot must report the best selection's own feasibility")
	}
	if st.BestTotalCents != 320000 {
		t.Fatalf("snapshot must expose the re-priced total, got %d", st.BestTotalCents)
	}
}

func TestAdoptIfBetterClonesState(t *testing.T) {
	sess := NewSession("user-1", intentWithBudget(300000), Limits{})
	sel := trip.CandidateSelection{
		Offers:     map[trip.Category]trip.Offer{trip.CategoryHotel: {ID: "h1"}},
		TotalCents: 100000,
		Score:      0.8,
		Feasible:   true,
	}
	sess.AdoptIfBetter(sel)
	sel.Offers[trip.CategoryHotel] = trip.Offer{ID: "mutated"}
	if sess.Best.Offers[trip.CategoryHotel].ID != "h1" {
		t.Fatalf("best selection aliases round state")
	}
}

func TestLimitsTightenedClampsToDefaults(t *testing.T) {
	def := Defaults{MaxRounds: 5, MaxTimeSeconds: 60, ExplorationRounds: 2}

	high := 50
	long := int64(3600)
	probes := 9
	eps := int64(100)
	got := Limits{
		MaxRounds:         &high,
		MaxTimeSeconds:    &long,
		ExplorationRounds: &probes,
		EpsilonCents:      &eps,
	}.Tightened(def)
	if *got.MaxRounds != 5 || *got.MaxTimeSeconds != 60 || *got.ExplorationRounds != 2 {
		t.Fatalf("overrides above the defaults must be clamped: %+v", got)
	}
	if got.EpsilonCents == nil || *got.EpsilonCents != 100 {
		t.Fatalf("epsilon override must pass through: %+v", got)
	}

	low := 2
	tight := Limits{MaxRounds: &low}.Tightened(def)
	if *tight.MaxRounds != 2 {
		t.Fatalf("tightening overrides must be kept, got %d", *tight.MaxRounds)
	}
	if tight.MaxTimeSeconds != nil {
		t.Fatalf("unset fields must stay unset")
	}

	bad := Limits{}
	zero := 0
	bad.MaxRounds = &zero
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero max_rounds must be rejected")
	}
}
