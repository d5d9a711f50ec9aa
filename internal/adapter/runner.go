package adapter

import (
	"context"
	"log/slog"
	"time"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/journal"

	"github.com/robfig/cron/v3"
)

// Runner drives a tailer on a fixed poll interval, runs the project's
// observation pass on the same tick, and schedules the journal's
// compaction. It owns the long-running fallback process behind
// `adapter run`.
type Runner struct {
	tailer          *Tailer
	journal         *journal.Journal
	observe         func(context.Context) error
	pollInterval    time.Duration
	compactSchedule string
}

// NewRunner builds a runner. observe is invoked once per tick after
// the log poll (nil disables observation for this runner).
func NewRunner(t *Tailer, j *journal.Journal, observe func(context.Context) error, pollInterval time.Duration, compactSchedule string) *Runner {
	return &Runner{
		tailer:          t,
		journal:         j,
		observe:         observe,
		pollInterval:    pollInterval,
		compactSchedule: compactSchedule,
	}
}

// Run polls until the context is cancelled. AdapterIO failures are
// logged and retried on the next tick; anything else (StoreBusy after
// retries, a corrupt store) ends the runner.
func (r *Runner) Run(ctx context.Context) error {
	if r.compactSchedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(r.compactSchedule, func() {
			dropped, err := r.journal.Compact(ctx, journal.CompactConfig{})
			if err != nil {
				slog.Warn("Scheduled compaction failed", "error", err)
				return
			}
			if dropped > 0 {
				slog.Info("Compacted journal", "dropped_events", dropped)
			}
		})
		if err != nil {
			return kerr.Validation("invalid compaction schedule " + r.compactSchedule)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	slog.Info("Adapter running", "tool", r.tailer.tool, "log", r.tailer.logPath, "interval", r.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			appended, err := r.tailer.Poll(ctx)
			switch {
			case err == nil:
				if appended > 0 {
					slog.Debug("Ingested log lines", "tool", r.tailer.tool, "events", appended)
				}
			case kerr.IsCategory(err, kerr.ErrAdapterIO):
				slog.Warn("Log unreadable, will retry", "tool", r.tailer.tool, "error", err)
			default:
				return err
			}

			if r.observe == nil {
				continue
			}
			if err := r.observe(ctx); err != nil {
				if !kerr.IsRetryable(err) {
					return err
				}
				slog.Warn("Observation pass failed, will retry", "error", err)
			}
		}
	}
}
