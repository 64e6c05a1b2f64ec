package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ashwinipuranik30/VoyAIge/config"
)

// Telemetry provides monitoring for the negotiation engine: session outcomes,
// round counts, quote traffic and collaborator latency.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex

	stop chan struct{}

	sessionsTotal    *prometheus.CounterVec
	roundsTotal      prometheus.Counter
	quoteRequests    *prometheus.CounterVec
	pricingFailures  prometheus.Counter
	researchRequests *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
}

// Metrics holds the in-process counters behind the status endpoint and the
// periodic summary log.
type Metrics struct {
	mu sync.RWMutex

	// Session metrics
	SessionsStarted        int64
	SessionsByOutcome      map[string]int64
	AverageSessionDuration time.Duration

	// Round metrics
	RoundsTotal       int64
	ExploratoryRounds int64

	// Collaborator metrics
	QuoteRequests    int64
	QuoteCacheHits   int64
	PricingFailures  int64
	ResearchRequests int64
	OffersDiscovered int64
	BookingsMade     int64
}

// SessionEvent records one finished negotiation session.
type SessionEvent struct {
	SessionID string
	Outcome   string // terminal state, lowercased
	Rounds    int
	Explored  int
	Duration  time.Duration
	Feasible  bool
}

// NewTelemetry creates a telemetry instance and registers its collectors.
// Registration uses the provided registerer so tests can pass a private one;
// nil falls back to the default registry behind /metrics.
func NewTelemetry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			SessionsByOutcome: make(map[string]int64),
		},
		stop: make(chan struct{}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyaige_sessions_total",
			Help: "Negotiation sessions finished, by terminal outcome.",
		}, []string{"outcome"}),
		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyaige_rounds_total",
			Help: "Negotiation rounds evaluated across all sessions.",
		}),
		quoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyaige_quote_requests_total",
			Help: "Pricing negotiate calls, by cache result.",
		}, []string{"result"}),
		pricingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyaige_pricing_failures_total",
			Help: "Offers excluded after pricing retry exhaustion.",
		}),
		researchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyaige_research_requests_total",
			Help: "Research search calls, by result.",
		}, []string{"result"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voyaige_session_duration_seconds",
			Help:    "Wall-clock duration of finished sessions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if cfg.Enabled {
		reg.MustRegister(t.sessionsTotal, t.roundsTotal, t.quoteRequests,
			t.pricingFailures, t.researchRequests, t.sessionDuration)
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startSummaryLogging()
	}

	return t
}

// RecordSession records a finished session.
func (t *Telemetry) RecordSession(event SessionEvent) {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.SessionsByOutcome[event.Outcome]++
	n := int64(0)
	for _, c := range t.metrics.SessionsByOutcome {
		n += c
	}
	// running average over finished sessions
	prev := t.metrics.AverageSessionDuration
	t.metrics.AverageSessionDuration = prev + (event.Duration-prev)/time.Duration(n)
	t.metrics.mu.Unlock()

	t.sessionsTotal.WithLabelValues(event.Outcome).Inc()
	t.sessionDuration.Observe(event.Duration.Seconds())
}

// RecordSessionStart counts a session entering the engine.
func (t *Telemetry) RecordSessionStart() {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.SessionsStarted++
	t.metrics.mu.Unlock()
}

// RecordRound counts one evaluated negotiation round.
func (t *Telemetry) RecordRound(exploratory bool) {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.RoundsTotal++
	if exploratory {
		t.metrics.ExploratoryRounds++
	}
	t.metrics.mu.Unlock()
	t.roundsTotal.Inc()
}

// RecordQuote counts one negotiate call; cached marks a cache hit that issued
// no external request.
func (t *Telemetry) RecordQuote(cached bool) {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.QuoteRequests++
	if cached {
		t.metrics.QuoteCacheHits++
	}
	t.metrics.mu.Unlock()
	result := "external"
	if cached {
		result = "cache_hit"
	}
	t.quoteRequests.WithLabelValues(result).Inc()
}

// RecordPricingFailure counts an offer dropped after pricing retry exhaustion.
func (t *Telemetry) RecordPricingFailure() {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.PricingFailures++
	t.metrics.mu.Unlock()
	t.pricingFailures.Inc()
}

// RecordResearch counts one search call and the offers it discovered.
func (t *Telemetry) RecordResearch(offers int, err error) {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.ResearchRequests++
	t.metrics.OffersDiscovered += int64(offers)
	t.metrics.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.researchRequests.WithLabelValues(result).Inc()
}

// RecordBooking counts a confirmed booking handoff.
func (t *Telemetry) RecordBooking() {
	if !t.config.Enabled {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.BookingsMade++
	t.metrics.mu.Unlock()
}

// GetMetrics returns a copy of the current metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()
	out := Metrics{
		SessionsStarted:        t.metrics.SessionsStarted,
		SessionsByOutcome:      make(map[string]int64, len(t.metrics.SessionsByOutcome)),
		AverageSessionDuration: t.metrics.AverageSessionDuration,
		RoundsTotal:            t.metrics.RoundsTotal,
		ExploratoryRounds:      t.metrics.ExploratoryRounds,
		QuoteRequests:          t.metrics.QuoteRequests,
		QuoteCacheHits:         t.metrics.QuoteCacheHits,
		PricingFailures:        t.metrics.PricingFailures,
		ResearchRequests:       t.metrics.ResearchRequests,
		OffersDiscovered:       t.metrics.OffersDiscovered,
		BookingsMade:           t.metrics.BookingsMade,
	}
	for k, v := range t.metrics.SessionsByOutcome {
		out.SessionsByOutcome[k] = v
	}
	return out
}

// Shutdown stops background reporting.
func (t *Telemetry) Shutdown() {
	close(t.stop)
}

func (t *Telemetry) startSummaryLogging() {
	interval := t.config.LogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			m := t.GetMetrics()
			t.logger.Printf("sessions=%d rounds=%d quotes=%d cache_hits=%d pricing_failures=%d offers=%d bookings=%d avg_session=%s",
				m.SessionsStarted, m.RoundsTotal, m.QuoteRequests, m.QuoteCacheHits,
				m.PricingFailures, m.OffersDiscovered, m.BookingsMade, m.AverageSessionDuration)
		}
	}
}
