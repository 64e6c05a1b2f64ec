package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// Memory is an in-process implementation of the negotiation store, used by
// the one-shot CLI planner where no database is available. Snapshots are
// copied through JSON so callers never alias stored state.
type Memory struct {
	mu       sync.Mutex
	sessions map[string][]byte
	rounds   map[string][]negotiation.RoundRecord
	plans    map[string]trip.ItineraryPlan
	quotes   map[string][]trip.PriceQuote
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string][]byte),
		rounds:   make(map[string][]negotiation.RoundRecord),
		plans:    make(map[string]trip.ItineraryPlan),
		quotes:   make(map[string][]trip.PriceQuote),
	}
}

func (m *Memory) SaveSession(ctx context.Context, sess *negotiation.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[sess.ID] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*negotiation.Session, bool, error) {
	m.mu.Lock()
	raw, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	var sess negotiation.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, err
	}
	return &sess, true, nil
}

func (m *Memory) ListSessions(ctx context.Context, userID string) ([]*negotiation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*negotiation.Session
	for _, raw := range m.sessions {
		var sess negotiation.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, err
		}
		if sess.UserID == userID {
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	sessions, err := m.ListSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range sessions {
		if !s.State.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) AppendRound(ctx context.Context, rec negotiation.RoundRecord) error {
	m.mu.Lock()
	m.rounds[rec.SessionID] = append(m.rounds[rec.SessionID], rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListRounds(ctx context.Context, sessionID string) ([]negotiation.RoundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]negotiation.RoundRecord(nil), m.rounds[sessionID]...), nil
}

func (m *Memory) SavePlan(ctx context.Context, plan trip.ItineraryPlan) error {
	m.mu.Lock()
	m.plans[plan.SessionID] = plan
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, sessionID string) (trip.ItineraryPlan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[sessionID]
	return plan, ok, nil
}

func (m *Memory) RecordQuote(ctx context.Context, sessionID string, quote trip.PriceQuote) error {
	m.mu.Lock()
	m.quotes[sessionID] = append(m.quotes[sessionID], quote)
	m.mu.Unlock()
	return nil
}

func (m *Memory) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, raw := range m.sessions {
		var sess negotiation.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return n, err
		}
		if sess.State.Terminal() {
			continue
		}
		sess.State = negotiation.StateFailed
		sess.Reason = reason
		sess.UpdatedAt = now
		updated, err := json.Marshal(&sess)
		if err != nil {
			return n, err
		}
		m.sessions[id] = updated
		n++
	}
	return n, nil
}
