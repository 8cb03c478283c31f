package jobs

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/target/cashier/internal/domain/model"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Expired int
	Dropped int
}

// runSweeper promotes and drops old records every sweep interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (m *Manager) runSweeper(ctx context.Context) error {
	m.waitWithJitter(ctx)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("job sweep stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// waitWithJitter delays the first sweep by up to 10% of the interval.
func (m *Manager) waitWithJitter(ctx context.Context) {
	maxJitter := int64(m.sweepInterval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		m.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Sweep expires terminal records older than the TTL and forgets expired records older than
// twice the TTL. Archived copies are unaffected.
func (m *Manager) Sweep() SweepResult {
	now := m.now()
	var res SweepResult

	m.mu.Lock()
	for id, rec := range m.records {
		if m.expireLocked(rec, now) {
			res.Expired++
		}
		if rec.Status == model.JobStatusExpired && rec.FinishedAt != nil && now.Sub(*rec.FinishedAt) > 2*m.ttl {
			delete(m.records, id)
			res.Dropped++
		}
	}
	m.mu.Unlock()

	if res.Expired > 0 || res.Dropped > 0 {
		m.logger.Info("job sweep", "expired", res.Expired, "dropped", res.Dropped)
	}
	if m.metrics != nil {
		m.metrics.Count("job.sweep_expired", int64(res.Expired), nil)
		m.metrics.Count("job.sweep_dropped", int64(res.Dropped), nil)
	}
	return res
}

// expireLocked promotes rec to expired when its retention window has passed. Only the status
// changes. Callers hold m.mu.
func (m *Manager) expireLocked(rec *model.JobRecord, now time.Time) bool {
	if !rec.ExpiredAt(now, m.ttl) {
		return false
	}
	rec.Status = model.JobStatusExpired
	return true
}
