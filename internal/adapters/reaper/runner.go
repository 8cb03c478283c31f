// Package reaper prunes archived job outcomes past their retention window.
package reaper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/cashier/internal/observability/statsd"
)

// ArchivePruner deletes archived outcomes that finished before cutoff.
type ArchivePruner interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Repo      ArchivePruner // Required
	Retention time.Duration // Required: outcomes older than this are deleted
	Interval  time.Duration // Optional: defaults to 1h

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner periodically prunes the job outcome archive.
type Runner struct {
	repo      ArchivePruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner creates a new archive reaper with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("archive repository is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		repo:      opts.Repo,
		retention: opts.Retention,
		interval:  opts.Interval,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "archive_reaper"),
		metrics:   opts.Metrics,
	}, nil
}

// Run prunes once after a short jitter and then on every interval until ctx is done.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting archive reaper", "interval", r.interval, "retention", r.retention)
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Prune(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "archive prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "archive reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Prune deletes outcomes older than the retention window and returns how many went.
func (r *Runner) Prune(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := r.now().Add(-r.retention)
	n, err := r.repo.DeleteFinishedBefore(ctx, cutoff)
	if r.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		r.metrics.Timing("archive.prune_duration", time.Since(start), map[string]string{"result": result})
		if n > 0 {
			r.metrics.Count("archive.pruned", n, nil)
		}
	}
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "pruned archived job outcomes", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// waitWithJitter adds a random delay up to 10% of the interval so replicas do not prune in lockstep.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
