package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/negotiation"
	"github.com/Ashwinipuranik30/VoyAIge/internal/offers"
	"github.com/Ashwinipuranik30/VoyAIge/internal/trip"
)

var sessionsTracer = otel.Tracer("voyaige/server/sessions")

// Engine is the orchestration surface the HTTP layer depends on.
type Engine interface {
	Submit(ctx context.Context, userID string, intent trip.UserIntent, limits negotiation.Limits) (negotiation.Status, error)
	Cancel(sessionID string) bool
	Status(ctx context.Context, sessionID string) (negotiation.Status, error)
	Approve(ctx context.Context, sessionID string) (trip.BookingConfirmation, error)
}

type SessionsHandler struct {
	Store  negotiation.Store
	Engine Engine
	Cfg    *config.Config
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.submit)
	g.GET("", h.list)
	g.GET("/:id", h.status)
	g.GET("/:id/events", h.events)
	g.GET("/:id/plan", h.plan)
	g.POST("/:id/approve", h.approve)
	g.DELETE("/:id", h.cancel)
}

func (h *SessionsHandler) submit(c echo.Context) error {
	ctx, span := sessionsTracer.Start(c.Request().Context(), "SessionsHandler.submit")
	defer span.End()

	userID, _ := c.Get("user_id").(string)
	var req SubmitSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	intent, err := buildIntent(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if limit := h.maxActiveSessions(); limit > 0 {
		active, err := h.Store.CountActiveSessions(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if active >= limit {
			return echo.NewHTTPError(http.StatusTooManyRequests, "active session limit reached")
		}
	}

	var limits negotiation.Limits
	if req.Limits != nil {
		limits = *req.Limits
	}
	st, err := h.Engine.Submit(ctx, userID, intent, limits)
	if err != nil {
		var invalid negotiation.ErrInvalidIntent
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
		}
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	span.SetAttributes(attribute.String("session_id", st.SessionID))
	return c.JSON(http.StatusAccepted, sessionResponse(st))
}

func (h *SessionsHandler) list(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	sessions, err := h.Store.ListSessions(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SessionListItem, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionListItem{
			SessionID:   s.ID,
			State:       string(s.State),
			Destination: s.Intent.Destination,
			BudgetCents: s.Intent.BudgetCents,
			Currency:    s.Intent.Currency,
			CreatedAt:   s.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SessionsHandler) status(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	st, err := h.Engine.Status(c.Request().Context(), sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sessionResponse(st))
}

// events streams status snapshots as server-sent events until the session
// reaches a terminal state or the client disconnects.
func (h *SessionsHandler) events(c echo.Context) error {
	if h.Cfg != nil && !h.Cfg.Server.StreamEnabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream disabled")
	}
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	interval := time.Second
	if val := strings.TrimSpace(c.QueryParam("interval")); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
			interval = time.Duration(sec) * time.Second
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func() (terminal bool, err error) {
		st, err := h.Engine.Status(ctx, sess.ID)
		if err != nil {
			return false, err
		}
		data, err := json.Marshal(sessionResponse(st))
		if err != nil {
			return false, err
		}
		if _, err := resp.Write([]byte("event: status\n")); err != nil {
			return false, err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return false, err
		}
		flusher.Flush()
		return st.State.Terminal(), nil
	}

	if terminal, err := send(); err != nil || terminal {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			terminal, err := send()
			if err != nil || terminal {
				return nil
			}
		}
	}
}

func (h *SessionsHandler) plan(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	if sess.State != negotiation.StateFinalized {
		return echo.NewHTTPError(http.StatusConflict, "session has no finalized plan")
	}
	ctx := c.Request().Context()
	plan, ok, err := h.Store.GetPlan(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	rounds, err := h.Store.ListRounds(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: plan, Rounds: rounds})
}

func (h *SessionsHandler) approve(c echo.Context) error {
	ctx, span := sessionsTracer.Start(c.Request().Context(), "SessionsHandler.approve")
	defer span.End()

	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	conf, err := h.Engine.Approve(ctx, sess.ID)
	if err != nil {
		switch {
		case errors.Is(err, negotiation.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		case errors.Is(err, negotiation.ErrNotFinalized):
			return echo.NewHTTPError(http.StatusConflict, "session is not finalized")
		case errors.Is(err, negotiation.ErrAlreadyApproved):
			return echo.NewHTTPError(http.StatusConflict, "session already approved")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ConfirmationResponse{Confirmation: conf})
}

func (h *SessionsHandler) cancel(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	if sess.State.Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "session already finished")
	}
	h.Engine.Cancel(sess.ID)
	return c.NoContent(http.StatusAccepted)
}

// ownedSession loads the path session and enforces ownership.
func (h *SessionsHandler) ownedSession(c echo.Context) (*negotiation.Session, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session id required")
	}
	sess, ok, err := h.Store.GetSession(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	userID, _ := c.Get("user_id").(string)
	if !ok || sess.UserID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (h *SessionsHandler) maxActiveSessions() int {
	if h.Cfg == nil {
		return 0
	}
	return h.Cfg.Server.MaxActiveSessions
}

func buildIntent(req SubmitSessionRequest) (trip.UserIntent, error) {
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return trip.UserIntent{}, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return trip.UserIntent{}, errors.New("end_date must be YYYY-MM-DD")
	}
	currency, ok := trip.NormalizeCurrency(req.Currency)
	if !ok {
		return trip.UserIntent{}, errors.New("unknown currency")
	}
	for _, tag := range req.Interests {
		if !offers.KnownInterest(tag) {
			return trip.UserIntent{}, fmt.Errorf("unknown interest %q", tag)
		}
	}
	intent := trip.UserIntent{
		Origin:      req.Origin,
		Destination: req.Destination,
		Dates:       trip.DateRange{Start: start, End: end},
		PartySize:   req.PartySize,
		BudgetCents: req.BudgetCents,
		Currency:    currency,
		Preferences: req.Preferences,
		Interests:   req.Interests,
		Mandatory:   req.Mandatory,
	}
	if len(intent.Mandatory) == 0 {
		intent.Mandatory = append([]trip.Category(nil), trip.Categories...)
	}
	return intent, intent.Validate()
}
