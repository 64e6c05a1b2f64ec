package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

// Store persists sessions, rounds, plans and the quote audit trail in
// Postgres. Sessions are stored as a full JSON snapshot plus a handful of
// indexed columns for listing and recovery queries.
type Store struct {
	DB *sql.DB
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func (s *Store) Close() error { return s.DB.Close() }

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Session operations

var terminalStates = []string{
	string(negotiation.StateFinalized),
	string(negotiation.StateBudgetExceeded),
	string(negotiation.StateTimedOut),
	string(negotiation.StateFailed),
	string(negotiation.StateCancelled),
}

// SaveSession upserts the full session snapshot. The indexed columns are
// derived from the snapshot so listing queries never deserialize JSON.
func (s *Store) SaveSession(ctx context.Context, sess *negotiation.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, state, round, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  state      = EXCLUDED.state,
  round      = EXCLUDED.round,
  payload    = EXCLUDED.payload,
  updated_at = EXCLUDED.updated_at;
`, sess.ID, sess.UserID, string(sess.State), sess.Round, payload, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*negotiation.Session, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id=$1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var sess negotiation.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, true, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]*negotiation.Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT payload FROM sessions WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*negotiation.Session
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var sess negotiation.Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *Store) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id=$1 AND NOT (state = ANY($2))`,
		userID, pq.Array(terminalStates)).Scan(&n)
	return n, err
}

// MarkInterrupted fails every non-terminal session; the JSON snapshot is
// patched in place so it stays consistent with the indexed columns.
func (s *Store) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE sessions SET
  state      = $1,
  payload    = jsonb_set(jsonb_set(payload, '{state}', to_jsonb($1::text)), '{reason}', to_jsonb($2::text)),
  updated_at = NOW()
WHERE NOT (state = ANY($3));
`, string(negotiation.StateFailed), reason, pq.Array(terminalStates))
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// Round operations

func (s *Store) AppendRound(ctx context.Context, rec negotiation.RoundRecord) error {
	selection, err := json.Marshal(rec.Selection)
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO negotiation_rounds (session_id, round, exploratory, total_cents, score, feasible, improved, pricing_failures, selection, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, rec.SessionID, rec.Round, rec.Exploratory, rec.TotalCents, rec.Score, rec.Feasible,
		rec.Improved, rec.PricingFailures, selection, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append round %d for session %s: %w", rec.Round, rec.SessionID, err)
	}
	return nil
}

func (s *Store) ListRounds(ctx context.Context, sessionID string) ([]negotiation.RoundRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT session_id, round, exploratory, total_cents, score, feasible, improved, pricing_failures, selection, created_at
FROM negotiation_rounds WHERE session_id=$1 ORDER BY round ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []negotiation.RoundRecord
	for rows.Next() {
		var rec negotiation.RoundRecord
		var selection []byte
		if err := rows.Scan(&rec.SessionID, &rec.Round, &rec.Exploratory, &rec.TotalCents,
			&rec.Score, &rec.Feasible, &rec.Improved, &rec.PricingFailures, &selection, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(selection, &rec.Selection); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Plan operations

func (s *Store) SavePlan(ctx context.Context, plan trip.ItineraryPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO itinerary_plans (id, session_id, total_cents, currency, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (session_id) DO UPDATE SET
  total_cents = EXCLUDED.total_cents,
  currency    = EXCLUDED.currency,
  payload     = EXCLUDED.payload;
`, plan.ID, plan.SessionID, plan.TotalCents, plan.Currency, payload, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("save plan for session %s: %w", plan.SessionID, err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, sessionID string) (trip.ItineraryPlan, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload FROM itinerary_plans WHERE session_id=$1`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return trip.ItineraryPlan{}, false, nil
	}
	if err != nil {
		return trip.ItineraryPlan{}, false, err
	}
	var plan trip.ItineraryPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return trip.ItineraryPlan{}, false, fmt.Errorf("decode plan for session %s: %w", sessionID, err)
	}
	return plan, true, nil
}

// Quote audit trail

func (s *Store) RecordQuote(ctx context.Context, sessionID string, quote trip.PriceQuote) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO quote_audit (session_id, quote_key, offer_id, price_cents, currency, confidence, issued_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, sessionID, quote.Key, quote.OfferID, quote.PriceCents, quote.Currency,
		quote.Confidence, quote.IssuedAt, quote.ExpiresAt)
	if err != nil {
		return fmt.Errorf("record quote for session %s: %w", sessionID, err)
	}
	return nil
}

// PurgeExpiredQuotes deletes audit rows whose quotes expired before the
// cutoff. Used by the janitor; returns the number of rows removed.
func (s *Store) PurgeExpiredQuotes(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM quote_audit WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired quotes: %w", err)
	}
	return res.RowsAffected()
}

// ListOverdueSessions returns IDs of non-terminal sessions whose last update
// is older than the staleness window. Used by the janitor to time out
// sessions whose owner goroutine is gone.
func (s *Store) ListOverdueSessions(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM sessions WHERE NOT (state = ANY($1)) AND updated_at < $2`,
		pq.Array(terminalStates), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkTimedOut force-terminates one session with a TIMED_OUT state, patching
// the snapshot the same way MarkInterrupted does.
func (s *Store) MarkTimedOut(ctx context.Context, sessionID, reason string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE sessions SET
  state      = $1,
  payload    = jsonb_set(jsonb_set(payload, '{state}', to_jsonb($1::text)), '{reason}', to_jsonb($2::text)),
  updated_at = NOW()
WHERE id = $3 AND NOT (state = ANY($4));
`, string(negotiation.StateTimedOut), reason, sessionID, pq.Array(terminalStates))
	if err != nil {
		return fmt.Errorf("mark session %s timed out: %w", sessionID, err)
	}
	return nil
}
