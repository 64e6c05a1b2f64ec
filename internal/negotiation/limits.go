package negotiation

import "fmt"

// Limits defines the negotiation guardrails for one session. All fields are
// optional: nil means "use the engine default". Resource ceilings a submission
// carries are clamped via Tightened so they only ever lower the defaults.
type Limits struct {
	MaxRounds         *int     `json:"max_rounds,omitempty"`
	EpsilonCents      *int64   `json:"epsilon_cents,omitempty"`
	MaxTimeSeconds    *int64   `json:"max_time_seconds,omitempty"`
	ExplorationRounds *int     `json:"exploration_rounds,omitempty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty"`
}

// Validate ensures the limit values are sane before use.
func (l Limits) Validate() error {
	if l.MaxRounds != nil && *l.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be positive")
	}
	if l.EpsilonCents != nil && *l.EpsilonCents < 0 {
		return fmt.Errorf("epsilon_cents cannot be negative")
	}
	if l.MaxTimeSeconds != nil && *l.MaxTimeSeconds <= 0 {
		return fmt.Errorf("max_time_seconds must be positive")
	}
	if l.ExplorationRounds != nil && *l.ExplorationRounds < 0 {
		return fmt.Errorf("exploration_rounds cannot be negative")
	}
	if l.MinConfidence != nil && (*l.MinConfidence < 0 || *l.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be within [0,1]")
	}
	return nil
}

// Clone produces a deep copy of the limits.
func (l Limits) Clone() Limits {
	clone := Limits{}
	if l.MaxRounds != nil {
		v := *l.MaxRounds
		clone.MaxRounds = &v
	}
	if l.EpsilonCents != nil {
		v := *l.EpsilonCents
		clone.EpsilonCents = &v
	}
	if l.MaxTimeSeconds != nil {
		v := *l.MaxTimeSeconds
		clone.MaxTimeSeconds = &v
	}
	if l.ExplorationRounds != nil {
		v := *l.ExplorationRounds
		clone.ExplorationRounds = &v
	}
	if l.MinConfidence != nil {
		v := *l.MinConfidence
		clone.MinConfidence = &v
	}
	return clone
}

// Tightened clamps resource ceilings to the engine defaults. A submission may
// lower the round, wall-clock and exploration budgets for its session but
// never raise them above what the operator configured.
func (l Limits) Tightened(def Defaults) Limits {
	out := l.Clone()
	if out.MaxRounds != nil && def.MaxRounds > 0 && *out.MaxRounds > def.MaxRounds {
		v := def.MaxRounds
		out.MaxRounds = &v
	}
	if out.MaxTimeSeconds != nil && def.MaxTimeSeconds > 0 && *out.MaxTimeSeconds > def.MaxTimeSeconds {
		v := def.MaxTimeSeconds
		out.MaxTimeSeconds = &v
	}
	if out.ExplorationRounds != nil && *out.ExplorationRounds > def.ExplorationRounds {
		v := def.ExplorationRounds
		out.ExplorationRounds = &v
	}
	return out
}

// maxRounds returns the effective round cap, falling back to the default.
func (l Limits) maxRounds(def int) int {
	if l.MaxRounds != nil {
		return *l.MaxRounds
	}
	return def
}

func (l Limits) epsilonCents(def int64) int64 {
	if l.EpsilonCents != nil {
		return *l.EpsilonCents
	}
	return def
}

func (l Limits) maxTimeSeconds(def int64) int64 {
	if l.MaxTimeSeconds != nil {
		return *l.MaxTimeSeconds
	}
	return def
}

func (l Limits) explorationRounds(def int) int {
	if l.ExplorationRounds != nil {
		return *l.ExplorationRounds
	}
	return def
}

func (l Limits) minConfidence(def float64) float64 {
	if l.MinConfidence != nil {
		return *l.MinConfidence
	}
	return def
}
