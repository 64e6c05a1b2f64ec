package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

func testSession() *negotiation.Session {
	start, _ := time.Parse("2006-01-02", "2026-05-01")
	intent := trip.UserIntent{
		Destination: "Lisbon",
		Dates:       trip.DateRange{Start: start, End: start.AddDate(0, 0, 4)},
		PartySize:   2,
		BudgetCents: 300000,
		Currency:    "USD",
		Mandatory:   []trip.Category{trip.CategoryFlight, trip.CategoryHotel},
	}
	return negotiation.NewSession("11111111-1111-1111-1111-111111111111", intent, negotiation.Limits{})
}

func TestSaveSessionUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	sess := testSession()

	query := regexp.QuoteMeta(`
INSERT INTO sessions (id, user_id, state, round, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  state      = EXCLUDED.state,
  round      = EXCLUDED.round,
  payload    = EXCLUDED.payload,
  updated_at = EXCLUDED.updated_at;
`)
	mock.ExpectExec(query).
		WithArgs(sess.ID, sess.UserID, "INIT", 0, sqlmock.AnyArg(), sess.CreatedAt, sess.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	sess := testSession()
	sess.State = negotiation.StatePricing
	sess.Round = 3
	payload, _ := json.Marshal(sess)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM sessions WHERE id=$1`)).
		WithArgs(sess.ID).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, ok, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !ok {
		t.Fatalf("expected session")
	}
	if got.State != negotiation.StatePricing || got.Round != 3 {
		t.Fatalf("unexpected session: state=%s round=%d", got.State, got.Round)
	}
	if got.Intent.Destination != "Lisbon" || got.Intent.BudgetCents != 300000 {
		t.Fatalf("intent did not survive the round trip: %+v", got.Intent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM sessions WHERE id=$1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, ok, err := st.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ok {
		t.Fatalf("absent session must report ok=false")
	}
}

func TestAppendAndListRounds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	rec := negotiation.RoundRecord{
		SessionID:  "22222222-2222-2222-2222-222222222222",
		Round:      1,
		TotalCents: 130000,
		Score:      0.57,
		Feasible:   true,
		Improved:   true,
		Selection: trip.CandidateSelection{
			Offers:     map[trip.Category]trip.Offer{trip.CategoryHotel: {ID: "h1"}},
			TotalCents: 130000,
		},
		CreatedAt: now,
	}

	insert := regexp.QuoteMeta(`
INSERT INTO negotiation_rounds (session_id, round, exploratory, total_cents, score, feasible, improved, pricing_failures, selection, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`)
	mock.ExpectExec(insert).
		WithArgs(rec.SessionID, rec.Round, false, rec.TotalCents, rec.Score, true, true, 0, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := st.AppendRound(context.Background(), rec); err != nil {
		t.Fatalf("AppendRound: %v", err)
	}

	selection, _ := json.Marshal(rec.Selection)
	list := regexp.QuoteMeta(`
SELECT session_id, round, exploratory, total_cents, score, feasible, improved, pricing_failures, selection, created_at
FROM negotiation_rounds WHERE session_id=$1 ORDER BY round ASC
`)
	mock.ExpectQuery(list).
		WithArgs(rec.SessionID).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "round", "exploratory", "total_cents", "score", "feasible", "improved", "pricing_failures", "selection", "created_at"}).
			AddRow(rec.SessionID, 1, false, int64(130000), 0.57, true, true, 0, selection, now))

	rounds, err := st.ListRounds(context.Background(), rec.SessionID)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(rounds) != 1 || rounds[0].Selection.Offers[trip.CategoryHotel].ID != "h1" {
		t.Fatalf("unexpected rounds: %+v", rounds)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveAndGetPlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	plan := trip.ItineraryPlan{
		ID:         "33333333-3333-3333-3333-333333333333",
		SessionID:  "22222222-2222-2222-2222-222222222222",
		TotalCents: 130000,
		Currency:   "USD",
		CreatedAt:  now,
	}

	insert := regexp.QuoteMeta(`
INSERT INTO itinerary_plans (id, session_id, total_cents, currency, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (session_id) DO UPDATE SET
  total_cents = EXCLUDED.total_cents,
  currency    = EXCLUDED.currency,
  payload     = EXCLUDED.payload;
`)
	mock.ExpectExec(insert).
		WithArgs(plan.ID, plan.SessionID, plan.TotalCents, plan.Currency, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SavePlan(context.Background(), plan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	payload, _ := json.Marshal(plan)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM itinerary_plans WHERE session_id=$1`)).
		WithArgs(plan.SessionID).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, ok, err := st.GetPlan(context.Background(), plan.SessionID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if !ok || got.TotalCents != 130000 {
		t.Fatalf("unexpected plan: ok=%v %+v", ok, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkInterruptedSkipsTerminalSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
UPDATE sessions SET
  state      = $1,
  payload    = jsonb_set(jsonb_set(payload, '{state}', to_jsonb($1::text)), '{reason}', to_jsonb($2::text)),
  updated_at = NOW()
WHERE NOT (state = ANY($3));
`)
	mock.ExpectExec(query).
		WithArgs("FAILED", "orchestrator restart", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := st.MarkInterrupted(context.Background(), "orchestrator restart")
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 interrupted sessions, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPurgeExpiredQuotes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM quote_audit WHERE expires_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := st.PurgeExpiredQuotes(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeExpiredQuotes: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 purged rows, got %d", n)
	}
}
