package negotiation

import (
	"sync"
	"time"
)

// Defaults carries the engine-wide fallback values for session limits.
type Defaults struct {
	MaxRounds         int
	EpsilonCents      int64
	MaxTimeSeconds    int64
	ExplorationRounds int
	MinConfidence     float64
}

// Monitor tracks round and wall-clock usage for one session against its
// resolved limits. The round counter only ever moves forward.
type Monitor struct {
	maxRounds     int
	epsilonCents  int64
	maxTime       time.Duration
	maxExplore    int
	minConfidence float64

	rounds    int
	explored  int
	startTime time.Time
	mu        sync.Mutex
}

// NewMonitor resolves the limits against the defaults and starts the clock.
func NewMonitor(limits Limits, def Defaults) *Monitor {
	return &Monitor{
		maxRounds:     limits.maxRounds(def.MaxRounds),
		epsilonCents:  limits.epsilonCents(def.EpsilonCents),
		maxTime:       time.Duration(limits.maxTimeSeconds(def.MaxTimeSeconds)) * time.Second,
		maxExplore:    limits.explorationRounds(def.ExplorationRounds),
		minConfidence: limits.minConfidence(def.MinConfidence),
		startTime:     time.Now(),
	}
}

// BeginRound advances the round counter, returning ErrRoundLimit once the
// configured maximum has been consumed.
func (m *Monitor) BeginRound() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rounds >= m.maxRounds {
		return m.rounds, ErrRoundLimit{Used: m.rounds, Limit: m.maxRounds}
	}
	m.rounds++
	return m.rounds, nil
}

// BeginExploration consumes one exploratory slot. The caller still charges the
// shared round budget via BeginRound; this only bounds how many of those
// rounds may be exploratory.
func (m *Monitor) BeginExploration() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.explored >= m.maxExplore {
		return m.explored, false
	}
	m.explored++
	return m.explored, true
}

// CheckTime verifies elapsed wall-clock time against the session ceiling.
func (m *Monitor) CheckTime() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxTime <= 0 {
		return nil
	}
	elapsed := time.Since(m.startTime)
	if elapsed > m.maxTime {
		return ErrTimedOut{Elapsed: elapsed, Limit: m.maxTime}
	}
	return nil
}

// Deadline returns the absolute wall-clock ceiling for the session; ok is
// false when no ceiling is configured, matching CheckTime's treatment of a
// non-positive limit as unlimited.
func (m *Monitor) Deadline() (time.Time, bool) {
	if m.maxTime <= 0 {
		return time.Time{}, false
	}
	return m.startTime.Add(m.maxTime), true
}

// TimeLimit returns the resolved wall-clock ceiling duration.
func (m *Monitor) TimeLimit() time.Duration { return m.maxTime }

// Converged applies the convergence predicate: the loop stops when the price
// improvement over the previous round fell below epsilon on a feasible
// selection, or when the optimizer reported no further improving candidate.
func (m *Monitor) Converged(hasPrev bool, prevTotal, total int64, feasible, exhausted bool) bool {
	if exhausted {
		return true
	}
	if !hasPrev || !feasible {
		return false
	}
	return prevTotal-total < m.epsilonCents
}

// MinConfidence returns the confidence floor a quote must meet to finalize.
func (m *Monitor) MinConfidence() float64 { return m.minConfidence }

// MaxRounds returns the resolved round cap.
func (m *Monitor) MaxRounds() int { return m.maxRounds }

// Usage returns the accumulated round counts and elapsed time.
func (m *Monitor) Usage() (rounds, explored int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rounds, m.explored, time.Since(m.startTime)
}
