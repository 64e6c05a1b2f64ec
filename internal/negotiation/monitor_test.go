package negotiation

import (
	"errors"
	"testing"
	"time"
)

func testDefaults() Defaults {
	return Defaults{
		MaxRounds:         5,
		EpsilonCents:      500,
		MaxTimeSeconds:    60,
		ExplorationRounds: 2,
		MinConfidence:     0.5,
	}
}

func TestMonitorRoundCounterIsBounded(t *testing.T) {
	m := NewMonitor(Limits{}, testDefaults())
	prev := 0
	for i := 0; i < 5; i++ {
		round, err := m.BeginRound()
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if round != prev+1 {
			t.Fatalf("round counter must strictly increase: %d after %d", round, prev)
		}
		prev = round
	}
	_, err := m.BeginRound()
	var limit ErrRoundLimit
	if !errors.As(err, &limit) {
		t.Fatalf("expected ErrRoundLimit, got %v", err)
	}
	if limit.Limit != 5 {
		t.Fatalf("unexpected limit %d", limit.Limit)
	}
}

func TestMonitorLimitsOverrideDefaults(t *testing.T) {
	two := 2
	m := NewMonitor(Limits{MaxRounds: &two}, testDefaults())
	if m.MaxRounds() != 2 {
		t.Fatalf("override ignored: %d", m.MaxRounds())
	}
	m.BeginRound()
	m.BeginRound()
	if _, err := m.BeginRound(); err == nil {
		t.Fatalf("expected round limit at 2")
	}
}

func TestMonitorExplorationBudget(t *testing.T) {
	m := NewMonitor(Limits{}, testDefaults())
	for i := 0; i < 2; i++ {
		if _, ok := m.BeginExploration(); !ok {
			t.Fatalf("exploration slot %d should be available", i)
		}
	}
	if _, ok := m.BeginExploration(); ok {
		t.Fatalf("exploration budget must be bounded")
	}
}

func TestMonitorConvergencePredicate(t *testing.T) {
	m := NewMonitor(Limits{}, testDefaults())

	// first round never converges
	if m.Converged(false, 0, 100000, true, false) {
		t.Fatalf("no previous round: cannot converge on price stability")
	}
	// improvement below epsilon on a feasible selection converges
	if !m.Converged(true, 100000, 99600, true, false) {
		t.Fatalf("improvement 400 < epsilon 500 must converge")
	}
	// large improvement keeps looping
	if m.Converged(true, 100000, 90000, true, false) {
		t.Fatalf("improvement 10000 >= epsilon must not converge")
	}
	// infeasible selections never converge on price stability
	if m.Converged(true, 100000, 99600, false, false) {
		t.Fatalf("infeasible selection must not converge")
	}
	// optimizer exhaustion converges regardless
	if !m.Converged(false, 0, 0, false, true) {
		t.Fatalf("exhausted optimizer must converge")
	}
}

func TestMonitorCheckTime(t *testing.T) {
	def := testDefaults()
	def.MaxTimeSeconds = 0
	m := NewMonitor(Limits{}, def)
	if err := m.CheckTime(); err != nil {
		t.Fatalf("zero ceiling disables the time check: %v", err)
	}

	one := int64(1)
	m = NewMonitor(Limits{MaxTimeSeconds: &one}, testDefaults())
	m.startTime = time.Now().Add(-2 * time.Second)
	err := m.CheckTime()
	var timedOut ErrTimedOut
	if !errors.As(err, &timedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestMonitorDeadlineMatchesCheckTime(t *testing.T) {
	def := testDefaults()
	def.MaxTimeSeconds = 0
	m := NewMonitor(Limits{}, def)
	if _, ok := m.Deadline(); ok {
		t.Fatalf("an unlimited session must not report a deadline")
	}
	if err := m.CheckTime(); err != nil {
		t.Fatalf("an unlimited session must never time out: %v", err)
	}

	m = NewMonitor(Limits{}, testDefaults())
	deadline, ok := m.Deadline()
	if !ok {
		t.Fatalf("a bounded session must report its deadline")
	}
	if want := m.startTime.Add(60 * time.Second); !deadline.Equal(want) {
		t.Fatalf("deadline %v, want %v", deadline, want)
	}
}
