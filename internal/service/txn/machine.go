// Package txn drives console operations as a named sequence of steps, with retry-once
// authentication and a verify-then-reconcile path for funds movements.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/observability/metrics"
	"github.com/target/cashier/internal/observability/statsd"
)

// Step names recorded in StepResult.Name.
const (
	StepAuthenticate     = "authenticate"
	StepLocateTargetRow  = "locate-target-row"
	StepOpenOperation    = "open-operation-page"
	StepAwaitReady       = "await-operation-page-ready"
	StepSetAmount        = "set-amount"
	StepSubmit           = "submit"
	StepVerifyOutcome    = "verify-outcome"
	StepRetrySubmit      = "retry-submit"
	StepVerifyRetry      = "verify-outcome-retry"
	StepReconcileBalance = "reconcile-balance"
	StepReadBalance      = "read-balance"
	StepCreatePlayer     = "create-player"
	StepConfirmPlayer    = "confirm-player-exists"
)

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultVerifyTimeout = 10 * time.Second
	defaultStepTimeout   = 30 * time.Second
	defaultTolerance     = 0.01
	defaultAuthAttempts  = 2
)

// ArtifactCapturer stores a diagnostic capture for a failed step and returns its reference.
// An empty reference means nothing was stored.
type ArtifactCapturer func(ctx context.Context, step string) string

// Options configures a Machine.
type Options struct {
	// Required:
	Console core.Console

	// Optional:
	Kind          model.JobKind // used for metric tags
	Patterns      *Patterns     // defaults to DefaultPatterns()
	PollInterval  time.Duration // feedback polling period; defaults to 250ms
	VerifyTimeout time.Duration // how long verify-outcome waits for a signal; defaults to 10s
	StepTimeout   time.Duration // per-step bound; defaults to 30s
	Tolerance     float64       // absolute reconciliation tolerance; defaults to 0.01
	AuthAttempts  int           // login attempts on transient failure; defaults to 2
	ActionDelay   time.Duration // pause between steps for visual runs
	Capture       ArtifactCapturer
	Now           func() time.Time
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// Machine runs one job's steps against a console. It is not safe for concurrent use; build one
// per job execution.
type Machine struct {
	console       core.Console
	kind          model.JobKind
	patterns      Patterns
	pollInterval  time.Duration
	verifyTimeout time.Duration
	stepTimeout   time.Duration
	tolerance     float64
	authAttempts  int
	actionDelay   time.Duration
	capture       ArtifactCapturer
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *slog.Logger
	metrics       statsd.Sink

	steps     []model.StepResult
	artifacts []string
}

// New constructs a Machine.
func New(opts Options) (*Machine, error) {
	if opts.Console == nil {
		return nil, errors.New("console is required")
	}
	m := &Machine{
		console:       opts.Console,
		kind:          opts.Kind,
		pollInterval:  opts.PollInterval,
		verifyTimeout: opts.VerifyTimeout,
		stepTimeout:   opts.StepTimeout,
		tolerance:     opts.Tolerance,
		authAttempts:  opts.AuthAttempts,
		actionDelay:   opts.ActionDelay,
		capture:       opts.Capture,
		now:           opts.Now,
		sleep:         opts.Sleep,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if opts.Patterns != nil {
		m.patterns = *opts.Patterns
	} else {
		m.patterns = DefaultPatterns()
	}
	if m.pollInterval <= 0 {
		m.pollInterval = defaultPollInterval
	}
	if m.verifyTimeout <= 0 {
		m.verifyTimeout = defaultVerifyTimeout
	}
	if m.stepTimeout <= 0 {
		m.stepTimeout = defaultStepTimeout
	}
	if m.tolerance <= 0 {
		m.tolerance = defaultTolerance
	}
	if m.authAttempts <= 0 {
		m.authAttempts = defaultAuthAttempts
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "txn", "kind", string(m.kind))
	return m, nil
}

// Steps returns a copy of the steps recorded so far.
func (m *Machine) Steps() []model.StepResult {
	out := make([]model.StepResult, len(m.steps))
	for i, s := range m.steps {
		out[i] = s.Clone()
	}
	return out
}

// Artifacts returns the artifact references captured so far.
func (m *Machine) Artifacts() []string {
	return append([]string{}, m.artifacts...)
}

// AddArtifact records an artifact produced outside a step, such as a session trace.
func (m *Machine) AddArtifact(ref string) {
	if ref != "" {
		m.artifacts = append(m.artifacts, ref)
	}
}

// Step runs fn as a named step bounded by the step timeout and records its result. A failed
// step returns an error carrying the step name; errors that already carry an application code
// keep it.
func (m *Machine) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := m.pause(ctx); err != nil {
		return m.record(ctx, name, m.now(), err)
	}
	start := m.now()
	stepCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()

	m.logger.DebugContext(ctx, "step started", "step", name)
	err := fn(stepCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperrors.Wrapf(err, apperrors.ErrCodeStep, "step %s timed out after %s", name, m.stepTimeout)
	}
	return m.record(ctx, name, start, err)
}

// Skip records a step that did not apply to this run.
func (m *Machine) Skip(name, reason string) {
	now := m.now()
	res := model.StepResult{Name: name, Status: model.StepStatusSkipped, StartedAt: now, FinishedAt: now}
	if reason != "" {
		res.Error = &reason
	}
	m.steps = append(m.steps, res)
	metrics.EmitStep(m.metrics, metrics.StepMetric{Kind: string(m.kind), Step: name, Result: metrics.ResultNoop})
}

func (m *Machine) record(ctx context.Context, name string, start time.Time, err error) error {
	res := model.StepResult{Name: name, Status: model.StepStatusOK, StartedAt: start, FinishedAt: m.now()}
	result := metrics.ResultSuccess
	if err != nil {
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrapf(err, apperrors.ErrCodeStep, "step %s failed", name)
		}
		msg := err.Error()
		res.Status = model.StepStatusFailed
		res.Error = &msg
		if ref := m.captureArtifact(ctx, name); ref != "" {
			res.ArtifactRef = &ref
		}
		result = metrics.ResultError
		m.logger.WarnContext(ctx, "step failed", "step", name, "error", err)
	} else {
		m.logger.DebugContext(ctx, "step finished", "step", name)
	}
	m.steps = append(m.steps, res)
	metrics.EmitStep(m.metrics, metrics.StepMetric{
		Kind: string(m.kind), Step: name, Result: result,
		Duration: res.FinishedAt.Sub(res.StartedAt), Err: err,
	})
	return err
}

func (m *Machine) captureArtifact(ctx context.Context, step string) string {
	if m.capture == nil {
		return ""
	}
	// The step context may already be done; captures get their own short budget.
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	ref := m.capture(capCtx, step)
	if ref != "" {
		m.artifacts = append(m.artifacts, ref)
	}
	return ref
}

func (m *Machine) pause(ctx context.Context) error {
	if m.actionDelay <= 0 {
		return nil
	}
	return m.sleep(ctx, m.actionDelay)
}

// Authenticate logs the agent in unless the session is already authenticated. Transient login
// failures are retried; a recognized invalid-credentials message fails immediately.
func (m *Machine) Authenticate(ctx context.Context, creds model.AgentCredentials) error {
	return m.Step(ctx, StepAuthenticate, func(ctx context.Context) error {
		if ok, err := m.console.IsAuthenticated(ctx); err == nil && ok {
			m.logger.DebugContext(ctx, "session already authenticated")
			return nil
		}

		var lastErr error
		for attempt := 1; attempt <= m.authAttempts; attempt++ {
			err := m.console.Login(ctx, creds)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return err
			}
			feedback, _ := m.console.FeedbackText(ctx)
			if m.patterns.InvalidCredentials.Match(feedback) || apperrors.IsAuthentication(err) {
				reason := feedback
				if reason == "" {
					reason = err.Error()
				}
				return apperrors.Authenticationf("credentials rejected for %s: %s", creds.Username, reason)
			}
			lastErr = err
			m.logger.WarnContext(ctx, "login attempt failed", "attempt", attempt, "error", err)
		}
		return apperrors.Wrapf(lastErr, apperrors.ErrCodeStep, "login failed after %d attempts", m.authAttempts)
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fmtAmount(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", *v)
}
