// Package jobs schedules job requests under bounded concurrency and keeps their records for a
// retention window.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/observability/metrics"
	"github.com/target/cashier/internal/observability/statsd"
)

const (
	defaultConcurrency   = 2
	defaultTTL           = time.Hour
	defaultSweepInterval = time.Minute
	defaultJobTimeout    = 5 * time.Minute
	archiveTimeout       = 5 * time.Second
)

// ErrShutdown is the failure recorded for jobs enqueued after Shutdown.
var ErrShutdown = errors.New("job manager is shut down")

// ManagerOptions groups dependencies for Manager.
type ManagerOptions struct {
	Executor core.JobExecutor // Required: runs admitted jobs

	Concurrency   int             // Optional: max running jobs; defaults to 2
	TTL           time.Duration   // Optional: terminal records expire after this; defaults to 1h
	SweepInterval time.Duration   // Optional: background expiry period; defaults to 1m
	JobTimeout    time.Duration   // Optional: used when a request carries no timeoutMs; defaults to 5m
	Archive       core.JobArchive // Optional: terminal records are copied here
	Now           func() time.Time
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// Manager accepts job requests, admits them in arrival order under a concurrency bound and
// tracks their records.
type Manager struct {
	exec          core.JobExecutor
	concurrency   int64
	ttl           time.Duration
	sweepInterval time.Duration
	jobTimeout    time.Duration
	archive       core.JobArchive
	now           func() time.Time
	logger        *slog.Logger
	metrics       statsd.Sink

	sem *semaphore.Weighted

	mu       sync.Mutex
	records  map[string]*model.JobRecord
	pending  []model.JobRequest
	wake     chan struct{}
	shutdown bool

	stopSweep    context.CancelFunc
	dispatchDone chan struct{}
	sweepDone    chan struct{}
	inflight     sync.WaitGroup
}

// NewManager constructs a Manager and starts its dispatcher and sweep goroutines.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	m := &Manager{
		exec:          opts.Executor,
		concurrency:   int64(opts.Concurrency),
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		jobTimeout:    opts.JobTimeout,
		archive:       opts.Archive,
		now:           opts.Now,
		metrics:       opts.Metrics,
		records:       make(map[string]*model.JobRecord),
		wake:          make(chan struct{}, 1),
		dispatchDone:  make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultConcurrency
	}
	if m.ttl <= 0 {
		m.ttl = defaultTTL
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaultSweepInterval
	}
	if m.jobTimeout <= 0 {
		m.jobTimeout = defaultJobTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger.With("component", "job_manager")
	m.sem = semaphore.NewWeighted(m.concurrency)

	sweepCtx, cancel := context.WithCancel(context.Background())
	m.stopSweep = cancel
	go m.dispatch()
	go func() {
		defer close(m.sweepDone)
		_ = m.runSweeper(sweepCtx)
	}()

	m.logger.Debug("job manager initialized",
		"concurrency", m.concurrency,
		"ttl", m.ttl,
		"sweep_interval", m.sweepInterval,
	)
	return m, nil
}

// MustNewManager constructs a Manager and panics on error.
func MustNewManager(opts ManagerOptions) *Manager {
	m, err := NewManager(opts)
	if err != nil {
		panic(fmt.Errorf("failed to create job manager: %w", err))
	}
	return m
}

// Enqueue records req as queued and schedules it. It never blocks on admission and never
// fails; a job that cannot be scheduled is recorded as failed instead.
func (m *Manager) Enqueue(req model.JobRequest) string {
	rec := model.NewJobRecord(req)

	m.mu.Lock()
	m.records[req.ID] = rec
	if m.shutdown {
		m.finishLocked(rec, core.Outcome{Failure: core.FailureFrom(
			apperrors.Wrap(ErrShutdown, apperrors.ErrCodeResource, "job not scheduled"))})
		snapshot := rec.Clone()
		m.mu.Unlock()
		m.afterTerminal(context.Background(), snapshot, 0)
		return req.ID
	}
	m.pending = append(m.pending, req)
	m.mu.Unlock()

	metrics.EmitJobLifecycle(m.metrics, metrics.JobMetric{
		Kind: string(req.Kind), Transition: "queued", Result: metrics.ResultSuccess,
	})
	m.signal()
	return req.ID
}

// GetByID returns a deep copy of the record, promoting it to expired first when its retention
// window has passed.
func (m *Manager) GetByID(id string) (model.JobRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.JobRecord{}, false
	}
	m.expireLocked(rec, m.now())
	return rec.Clone(), true
}

// Lookup is GetByID with a fallback to the archive for records no longer held in memory.
func (m *Manager) Lookup(ctx context.Context, id string) (model.JobRecord, bool, error) {
	if rec, ok := m.GetByID(id); ok {
		return rec, true, nil
	}
	if m.archive == nil {
		return model.JobRecord{}, false, nil
	}
	rec, err := m.archive.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return model.JobRecord{}, false, nil
		}
		return model.JobRecord{}, false, err
	}
	if rec.ExpiredAt(m.now(), m.ttl) {
		rec.Status = model.JobStatusExpired
	}
	return *rec, true, nil
}

// Stats counts the records currently held in memory by status.
func (m *Manager) Stats() model.JobStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.JobStats
	for _, rec := range m.records {
		switch rec.Status {
		case model.JobStatusQueued:
			s.Queued++
		case model.JobStatusRunning:
			s.Running++
		case model.JobStatusSucceeded:
			s.Succeeded++
		case model.JobStatusFailed:
			s.Failed++
		case model.JobStatusExpired:
			s.Expired++
		}
	}
	return s
}

// Shutdown stops the background sweep and refuses new jobs. Running jobs are not cancelled and
// jobs already queued are still admitted.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	m.mu.Unlock()

	m.stopSweep()
	m.signal()
	m.logger.Info("job manager shutting down")
}

// Wait blocks until the sweep has stopped, the queue has drained and every running job has
// finished, or until ctx is done. It is meant to be called after Shutdown.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-m.sweepDone
		<-m.dispatchDone
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch admits queued jobs one at a time in arrival order. The semaphore serves waiters
// FIFO, and a single dispatcher means at most one waiter at a time.
func (m *Manager) dispatch() {
	defer close(m.dispatchDone)
	for {
		req, ok := m.next()
		if !ok {
			return
		}
		// Acquire with a background context never fails.
		_ = m.sem.Acquire(context.Background(), 1)
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			defer m.sem.Release(1)
			m.run(req)
		}()
	}
}

// next pops the oldest pending request, waiting for one when the queue is empty. It returns
// false once the manager is shut down and the queue is drained.
func (m *Manager) next() (model.JobRequest, bool) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			req := m.pending[0]
			m.pending[0] = model.JobRequest{}
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return req, true
		}
		stopped := m.shutdown
		m.mu.Unlock()
		if stopped {
			return model.JobRequest{}, false
		}
		<-m.wake
	}
}

func (m *Manager) run(req model.JobRequest) {
	start := m.now()
	if !m.markRunning(req.ID, start) {
		return
	}
	metrics.EmitJobLifecycle(m.metrics, metrics.JobMetric{
		Kind: string(req.Kind), Transition: "running", Result: metrics.ResultSuccess,
		Duration: start.Sub(req.CreatedAt),
	})

	ctx, cancel := context.WithTimeout(context.Background(), req.Options.Timeout(m.jobTimeout))
	defer cancel()
	logger := m.logger.With("job_id", req.ID, "kind", string(req.Kind))
	logger.InfoContext(ctx, "job started")

	out := m.execute(ctx, req, logger)

	m.mu.Lock()
	rec, ok := m.records[req.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.finishLocked(rec, out)
	snapshot := rec.Clone()
	m.mu.Unlock()

	if out.Failed() {
		logger.WarnContext(ctx, "job failed", "code", out.Failure.Code, "error", out.Failure.Reason)
	} else {
		logger.InfoContext(ctx, "job succeeded")
	}
	m.afterTerminal(ctx, snapshot, m.now().Sub(start))
}

// execute is the final catch boundary: a panicking executor yields a failed outcome.
func (m *Manager) execute(ctx context.Context, req model.JobRequest, logger *slog.Logger) (out core.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "executor panicked", "panic", r, "stack", string(debug.Stack()))
			out = core.Outcome{Failure: &core.Failure{
				Code:   apperrors.ErrCodeInternal,
				Reason: fmt.Sprintf("executor panic: %v", r),
			}}
		}
	}()
	return m.exec.Execute(ctx, req)
}

func (m *Manager) markRunning(id string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || !rec.Status.CanAdvanceTo(model.JobStatusRunning) {
		return false
	}
	rec.Status = model.JobStatusRunning
	rec.StartedAt = &at
	return true
}

// finishLocked freezes the record with the outcome. Callers hold m.mu.
func (m *Manager) finishLocked(rec *model.JobRecord, out core.Outcome) {
	next := model.JobStatusSucceeded
	if out.Failed() {
		next = model.JobStatusFailed
	}
	if !rec.Status.CanAdvanceTo(next) {
		return
	}
	now := m.now()
	rec.Status = next
	rec.FinishedAt = &now
	rec.StepHistory = cloneSteps(out.Steps)
	rec.ArtifactRefs = append([]string{}, out.Artifacts...)
	if out.Failed() {
		reason := out.Failure.Reason
		rec.Error = &reason
		rec.ErrorCode = string(out.Failure.Code)
		rec.Result = nil
		return
	}
	if out.Result != nil {
		rec.Result = append([]byte(nil), out.Result...)
	}
}

func (m *Manager) afterTerminal(ctx context.Context, rec model.JobRecord, elapsed time.Duration) {
	result := metrics.ResultSuccess
	var err error
	if rec.Status == model.JobStatusFailed {
		result = metrics.ResultError
		if rec.ErrorCode != "" {
			err = &apperrors.AppError{Code: apperrors.ErrorCode(rec.ErrorCode), Message: deref(rec.Error)}
		}
	}
	metrics.EmitJobLifecycle(m.metrics, metrics.JobMetric{
		Kind: string(rec.Kind), Transition: string(rec.Status), Result: result,
		Duration: elapsed, Err: err,
	})

	if m.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if aerr := m.archive.Save(actx, rec); aerr != nil {
		m.logger.WarnContext(ctx, "archive job record failed", "job_id", rec.ID, "error", aerr)
	}
}

func cloneSteps(in []model.StepResult) []model.StepResult {
	out := make([]model.StepResult, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
