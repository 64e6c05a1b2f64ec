package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/Ashwinipuranik30/VoyAIge/config"
	"github.com/Ashwinipuranik30/VoyAIge/internal/store"
)

// Janitor sweeps sessions whose owner goroutine is gone and prunes the quote
// audit trail. A Redis lock keeps sweeps single-flight across replicas.
type Janitor struct {
	Store  *store.Store
	Rdb    *redis.Client
	Cfg    config.SchedulerConfig
	Stale  time.Duration // how long a non-terminal session may go without updates
	Logger *log.Logger

	stop chan struct{}
}

func NewJanitor(st *store.Store, rdb *redis.Client, cfg config.SchedulerConfig, stale time.Duration, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.New(log.Writer(), "[JANITOR] ", log.LstdFlags)
	}
	if stale <= 0 {
		stale = 30 * time.Minute
	}
	return &Janitor{Store: st, Rdb: rdb, Cfg: cfg, Stale: stale, Logger: logger, stop: make(chan struct{})}
}

func (j *Janitor) Start() {
	if !j.Cfg.Enabled {
		return
	}
	interval := scheduleInterval(j.Cfg.JanitorSchedule)
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-j.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				j.sweep()
			}
		}
	}()
}

func (j *Janitor) Stop() { close(j.stop) }

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// distributed lock so only one replica sweeps
	if j.Rdb != nil {
		lockTTL := j.Cfg.LockTTL
		if lockTTL <= 0 {
			lockTTL = 2 * time.Minute
		}
		ok, err := j.Rdb.SetNX(ctx, "janitor:lock", "1", lockTTL).Result()
		if err != nil || !ok {
			return
		}
		defer j.Rdb.Del(ctx, "janitor:lock")
	}

	overdue, err := j.Store.ListOverdueSessions(ctx, time.Now().Add(-j.Stale))
	if err != nil {
		j.Logger.Printf("sweep: list overdue sessions: %v", err)
	}
	for _, id := range overdue {
		if err := j.Store.MarkTimedOut(ctx, id, "session abandoned: no progress recorded"); err != nil {
			j.Logger.Printf("sweep: session %s: %v", id, err)
			continue
		}
		j.Logger.Printf("sweep: session %s marked timed out", id)
	}

	retention := j.Cfg.QuoteRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	n, err := j.Store.PurgeExpiredQuotes(ctx, time.Now().Add(-retention))
	if err != nil {
		j.Logger.Printf("sweep: purge quotes: %v", err)
	} else if n > 0 {
		j.Logger.Printf("sweep: purged %d expired quote(s)", n)
	}
}

// scheduleInterval converts the configured cron schedule into a ticker
// interval. Supports "@hourly", "@daily" and standard cron expressions;
// malformed expressions fall back to hourly.
func scheduleInterval(spec string) time.Duration {
	switch spec {
	case "", "@hourly":
		return time.Hour
	case "@daily":
		return 24 * time.Hour
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return time.Hour
	}
	now := time.Now()
	next := expr.Next(now)
	if next.IsZero() {
		return time.Hour
	}
	interval := expr.Next(next).Sub(next)
	if interval <= 0 {
		return time.Hour
	}
	return interval
}
