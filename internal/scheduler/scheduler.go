// Package scheduler runs the session reaper: interview sessions idle beyond
// their TTL are marked expired so they stop accepting answers.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

// Defaults for the reaper loop.
const (
	DefaultSessionTTL    = time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Opts holds configuration options for the reaper.
type Opts struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Option configures the reaper.
type Option func(*Opts)

// WithSessionTTL sets how long a session may idle before expiring.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithSweepInterval sets how often the reaper scans for idle sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) { o.SweepInterval = d }
}

// Reaper expires idle interview sessions.
type Reaper struct {
	store    store.Store
	ttl      time.Duration
	interval time.Duration
}

// NewReaper creates a session reaper over the given store.
func NewReaper(st store.Store, opts ...Option) *Reaper {
	cfg := Opts{
		SessionTTL:    DefaultSessionTTL,
		SweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reaper{store: st, ttl: cfg.SessionTTL, interval: cfg.SweepInterval}
}

// Start runs the sweep loop until the context is cancelled. It sweeps once
// immediately so a restart catches sessions that idled while the service was
// down.
func (r *Reaper) Start(ctx context.Context) {
	slog.Info("Reaper.Start: session reaper running", "ttl", r.ttl, "interval", r.interval)
	r.Sweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Reaper.Start: session reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep expires every non-terminal session idle beyond the TTL and returns
// how many were expired.
func (r *Reaper) Sweep() int {
	sessions, err := r.store.ListSessions()
	if err != nil {
		slog.Error("Reaper.Sweep: failed to list sessions", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-r.ttl)
	expired := 0
	for _, sess := range sessions {
		if sess.Status.IsTerminal() || !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		sess.Status = models.SessionStatusExpired
		sess.UpdatedAt = time.Now()
		if err := r.store.SaveSession(sess); err != nil {
			slog.Error("Reaper.Sweep: failed to expire session", "error", err, "sessionID", sess.ID)
			continue
		}
		slog.Debug("Reaper.Sweep: session expired", "sessionID", sess.ID)
		expired++
	}
	if expired > 0 {
		slog.Info("Reaper.Sweep: expired idle sessions", "count", expired)
	}
	return expired
}
