package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/stratuscode/stratuscode/internal/logging"
)

const (
	// DefaultSweepInterval is how often the sweeper scans running sessions.
	DefaultSweepInterval = 2 * time.Minute
	// DefaultStaleThreshold is how long a heartbeat may freeze before a
	// session is force-reset. Coarse on purpose: a legitimately slow tool
	// call must not trip it.
	DefaultStaleThreshold = 3 * time.Minute
)

// Sweeper is the backstop for drivers that died without finalizing: OOM,
// hard kill, dropped connection. The only symptom of those is a frozen
// updatedAt, so heartbeat staleness is the sole signal it acts on.
type Sweeper struct {
	store     *Store
	interval  time.Duration
	threshold time.Duration
	log       zerolog.Logger
}

// NewSweeper creates a sweeper with the given interval and staleness
// threshold; zero values select the defaults.
func NewSweeper(store *Store, interval, threshold time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		threshold: threshold,
		log:       logging.Component("sweeper"),
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce scans all running sessions and force-resets the stale ones.
// Returns how many sessions were recovered. Transient store errors on the
// listing are retried with exponential backoff; per-session recovery
// errors are logged and skipped so one bad row cannot starve the rest.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var running []string
	op := func() error {
		sessions, err := w.store.ListRunning(ctx)
		if err != nil {
			return err
		}
		running = running[:0]
		for _, sess := range sessions {
			running = append(running, sess.ID)
		}
		return nil
	}
	if err := backoff.Retry(op, w.newListBackoff(ctx)); err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range running {
		ok, err := w.store.RecoverStale(ctx, id, w.threshold)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", id).Msg("recovery failed")
			continue
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		w.log.Info().Int("recovered", recovered).Msg("sweep recovered stale sessions")
	}
	return recovered, nil
}

// newListBackoff mirrors the retry shape used for upstream API calls:
// exponential with jitter, bounded attempts, context aware.
func (w *Sweeper) newListBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}
