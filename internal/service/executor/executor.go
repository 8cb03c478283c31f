// Package executor runs job requests: it decodes the payload, leases a browser session for the
// agent, drives the transaction state machine and reports a structured outcome.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/observability/statsd"
	"github.com/target/cashier/internal/service/sessionpool"
	"github.com/target/cashier/internal/service/txn"
)

const defaultStateTTL = 12 * time.Hour

// ConsoleFactory builds a console over a leased page.
type ConsoleFactory func(page core.Page, baseURL string) (core.Console, error)

// MachineSettings carries the state machine tuning shared by every run.
type MachineSettings struct {
	Patterns      *txn.Patterns
	PollInterval  time.Duration
	VerifyTimeout time.Duration
	StepTimeout   time.Duration
	Tolerance     float64
	AuthAttempts  int
}

// Options groups dependencies for Executor.
type Options struct {
	Pool    *sessionpool.Pool // Required: session leases
	Console ConsoleFactory    // Required: console adapter over a page

	BaseURL    string                 // Optional: console URL handed to the factory
	Registry   *Registry              // Optional: defaults to DefaultRegistry()
	StateStore core.SessionStateStore // Optional: login persists session state here
	StateTTL   time.Duration          // Optional: stored state lifetime; defaults to 12h
	Artifacts  core.ArtifactStore     // Optional: failed-step screenshots and traces
	Machine    MachineSettings
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// Executor implements core.JobExecutor.
type Executor struct {
	pool      *sessionpool.Pool
	console   ConsoleFactory
	baseURL   string
	registry  *Registry
	states    core.SessionStateStore
	stateTTL  time.Duration
	artifacts core.ArtifactStore
	machine   MachineSettings
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

var _ core.JobExecutor = (*Executor)(nil)

// Run is the per-execution context handed to a HandlerFunc.
type Run struct {
	Request model.JobRequest
	Payload model.Payload
	Lease   *sessionpool.Lease
	Console core.Console
	Machine *txn.Machine

	states   core.SessionStateStore
	stateTTL time.Duration
	logger   *slog.Logger
}

// New constructs an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Pool == nil {
		return nil, errors.New("session pool is required")
	}
	if opts.Console == nil {
		return nil, errors.New("console factory is required")
	}
	e := &Executor{
		pool:      opts.Pool,
		console:   opts.Console,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		registry:  opts.Registry,
		states:    opts.StateStore,
		stateTTL:  opts.StateTTL,
		artifacts: opts.Artifacts,
		machine:   opts.Machine,
		now:       opts.Now,
		metrics:   opts.Metrics,
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	if e.stateTTL <= 0 {
		e.stateTTL = defaultStateTTL
	}
	if e.now == nil {
		e.now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("component", "executor")
	return e, nil
}

// MustNew constructs an Executor and panics on error.
func MustNew(opts Options) *Executor {
	e, err := New(opts)
	if err != nil {
		panic(fmt.Errorf("failed to create executor: %w", err))
	}
	return e
}

// Execute runs req to completion. It never panics on handler errors; every failure is reported
// through Outcome.Failure along with the steps recorded so far.
func (e *Executor) Execute(ctx context.Context, req model.JobRequest) core.Outcome {
	logger := e.logger.With("job_id", req.ID, "kind", string(req.Kind))

	handler, ok := e.registry.Lookup(req.Kind)
	if !ok {
		return failed(apperrors.ValidationField("kind", fmt.Sprintf("no handler for job kind %q", req.Kind)))
	}
	payload, err := model.DecodePayload(req.Kind, req.Payload)
	if err != nil {
		return failed(err)
	}
	identity := agentOf(payload).Username

	lease, err := e.pool.Acquire(ctx, identity, sessionpool.AcquireOptions{Execution: req.Options})
	if err != nil {
		return failed(err)
	}
	// The key lock must be freed even when a handler panics; the job manager recovers the panic.
	defer func() {
		if r := recover(); r != nil {
			lease.Invalidate()
			panic(r)
		}
	}()

	console, err := e.console(lease.Page, e.baseURL)
	if err != nil {
		lease.Invalidate()
		return failed(apperrors.Wrap(err, apperrors.ErrCodeResource, "build console"))
	}

	run := &Run{
		Request:  req,
		Payload:  payload,
		Lease:    lease,
		Console:  console,
		states:   e.states,
		stateTTL: e.stateTTL,
		logger:   logger,
	}
	run.Machine, err = txn.New(txn.Options{
		Console:       console,
		Kind:          req.Kind,
		Patterns:      e.machine.Patterns,
		PollInterval:  e.machine.PollInterval,
		VerifyTimeout: e.machine.VerifyTimeout,
		StepTimeout:   e.machine.StepTimeout,
		Tolerance:     e.machine.Tolerance,
		AuthAttempts:  e.machine.AuthAttempts,
		ActionDelay:   req.Options.ActionDelay(),
		Capture:       e.screenshotCapturer(req.ID, console),
		Now:           e.now,
		Logger:        logger,
		Metrics:       e.metrics,
	})
	if err != nil {
		lease.Invalidate()
		return failed(apperrors.Wrap(err, apperrors.ErrCodeInternal, "build state machine"))
	}

	result, runErr := handler(ctx, run)

	if req.Options.DebugTracing {
		e.collectTrace(ctx, run)
	}
	e.settle(ctx, run, identity, runErr)

	out := core.Outcome{Steps: run.Machine.Steps(), Artifacts: run.Machine.Artifacts()}
	if runErr != nil {
		out.Failure = failureFor(ctx, runErr)
		return out
	}
	raw, err := json.Marshal(result)
	if err != nil {
		out.Failure = core.FailureFrom(apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode job result"))
		return out
	}
	out.Result = raw
	return out
}

// settle returns the lease. Sessions whose login failed or whose browser misbehaved are torn
// down rather than pooled.
func (e *Executor) settle(ctx context.Context, run *Run, identity string, runErr error) {
	if runErr == nil {
		run.Lease.Release()
		return
	}
	authFailed := apperrors.IsAuthentication(runErr) || lastStepFailed(run.Machine.Steps(), txn.StepAuthenticate)
	if !authFailed && !apperrors.IsResource(runErr) {
		run.Lease.Release()
		return
	}
	run.Lease.Invalidate()
	if apperrors.IsAuthentication(runErr) && e.states != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.states.Delete(dctx, identity); err != nil {
			run.logger.WarnContext(ctx, "delete stale session state failed", "error", err)
		}
	}
}

func (e *Executor) collectTrace(ctx context.Context, run *Run) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	trace, err := run.Lease.Session.StopTracing(tctx)
	if err != nil {
		run.logger.WarnContext(ctx, "stop tracing failed", "error", err)
		return
	}
	if e.artifacts == nil || len(trace) == 0 {
		return
	}
	ref, err := e.artifacts.Put(tctx, artifactKey(run.Request.ID, "trace.zip"), trace, "application/zip")
	if err != nil {
		run.logger.WarnContext(ctx, "store trace failed", "error", err)
		return
	}
	run.Machine.AddArtifact(ref)
}

func (e *Executor) screenshotCapturer(jobID string, console core.Console) txn.ArtifactCapturer {
	if e.artifacts == nil {
		return nil
	}
	var seq atomic.Int32
	return func(ctx context.Context, step string) string {
		png, err := console.Screenshot(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "screenshot failed", "job_id", jobID, "step", step, "error", err)
			return ""
		}
		name := fmt.Sprintf("%02d-%s.png", seq.Add(1), step)
		ref, err := e.artifacts.Put(ctx, artifactKey(jobID, name), png, "image/png")
		if err != nil {
			e.logger.WarnContext(ctx, "store screenshot failed", "job_id", jobID, "step", step, "error", err)
			return ""
		}
		return ref
	}
}

func artifactKey(jobID, name string) string {
	return "jobs/" + jobID + "/" + name
}

func agentOf(p model.Payload) model.AgentCredentials {
	switch v := p.(type) {
	case *model.LoginPayload:
		return v.Agent
	case *model.CreatePlayerPayload:
		return v.Agent
	case *model.FundsPayload:
		return v.Agent
	case *model.TargetPayload:
		return v.Agent
	default:
		return model.AgentCredentials{}
	}
}

func lastStepFailed(steps []model.StepResult, name string) bool {
	if len(steps) == 0 {
		return false
	}
	last := steps[len(steps)-1]
	return last.Name == name && last.Status == model.StepStatusFailed
}

func failed(err error) core.Outcome {
	return core.Outcome{Failure: core.FailureFrom(err)}
}

// failureFor reports a job-level timeout as such rather than as the step that was interrupted.
func failureFor(ctx context.Context, err error) *core.Failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && apperrors.GetCode(err) != apperrors.ErrCodeAuthentication {
		return core.FailureFrom(apperrors.Wrap(err, apperrors.ErrCodeTimeout, "job timed out"))
	}
	return core.FailureFrom(err)
}
