// Package model defines the job, step and payload types shared by the job manager, executors and HTTP layer.
package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// JobKind identifies the console operation a job performs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobKindLogin authenticates an agent and persists its session state.
	JobKindLogin JobKind = "login"
	// JobKindCreatePlayer creates a player account under an agent.
	JobKindCreatePlayer JobKind = "create-player"
	// JobKindDeposit loads funds into a player account.
	JobKindDeposit JobKind = "deposit"
	// JobKindWithdrawal withdraws a fixed amount from a player account.
	JobKindWithdrawal JobKind = "withdrawal"
	// JobKindWithdrawalFull withdraws the entire player balance.
	JobKindWithdrawalFull JobKind = "withdrawal-full"
	// JobKindBalance reads a player balance.
	JobKindBalance JobKind = "balance"

	// JobStatusQueued indicates a job is waiting for an execution slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded indicates a job has finished successfully.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates a job has failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusExpired indicates a terminal job outlived its retention window.
	JobStatusExpired JobStatus = "expired"
)

// AllJobKinds lists every supported kind in a stable order.
var AllJobKinds = []JobKind{
	JobKindLogin, JobKindCreatePlayer, JobKindDeposit,
	JobKindWithdrawal, JobKindWithdrawalFull, JobKindBalance,
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be read from paths and env.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobKind: %q", v)
	}
	*k = v
	return nil
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return slices.Contains(AllJobKinds, k)
}

// IsFunds reports whether the kind moves money and therefore runs the transaction state machine.
func (k JobKind) IsFunds() bool {
	return k == JobKindDeposit || k == JobKindWithdrawal || k == JobKindWithdrawalFull
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusSucceeded ||
		s == JobStatusFailed || s == JobStatusExpired
}

// IsTerminal reports whether the executor has finished with the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusExpired
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusSucceeded, JobStatusFailed:
		return 2
	case JobStatusExpired:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next respects queued→running→{succeeded|failed}→expired.
// Jumping from queued straight to failed is allowed for jobs that never got admitted.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if next == JobStatusExpired {
		return s == JobStatusSucceeded || s == JobStatusFailed
	}
	return next.rank() > s.rank()
}

// ExecutionOptions tune how the browser is driven for a single job.
type ExecutionOptions struct {
	Headless      bool `json:"headless"`
	DebugTracing  bool `json:"debugTracing"`
	ActionDelayMs int  `json:"actionDelayMs"`
	TimeoutMs     int  `json:"timeoutMs"`
}

// IsFastProfile reports whether the options allow reusing a pooled session.
func (o ExecutionOptions) IsFastProfile() bool {
	return !o.DebugTracing && o.ActionDelayMs == 0
}

// Timeout returns TimeoutMs as a duration, or fallback when unset.
func (o ExecutionOptions) Timeout(fallback time.Duration) time.Duration {
	if o.TimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// ActionDelay returns ActionDelayMs as a duration.
func (o ExecutionOptions) ActionDelay() time.Duration {
	if o.ActionDelayMs <= 0 {
		return 0
	}
	return time.Duration(o.ActionDelayMs) * time.Millisecond
}

// JobRequest is the immutable description of a job as accepted at the boundary.
type JobRequest struct {
	ID        string           `json:"id"`
	Kind      JobKind          `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
	Options   ExecutionOptions `json:"executionOptions"`
	CreatedAt time.Time        `json:"createdAt"`
}

// StepStatus is the outcome of a single state machine step.
type StepStatus string

const (
	// StepStatusOK indicates the step completed.
	StepStatusOK StepStatus = "ok"
	// StepStatusFailed indicates the step failed and aborted the sequence.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step did not apply to this run.
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records one named step of an execution.
type StepResult struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	ArtifactRef *string    `json:"artifactRef,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// JobRecord is the server-side projection of a job, one per JobRequest.
type JobRecord struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"kind"`
	Status       JobStatus       `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	Error        *string         `json:"error,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ArtifactRefs []string        `json:"artifactRefs"`
	StepHistory  []StepResult    `json:"stepHistory"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// NewJobRecord creates the queued record for a request.
func NewJobRecord(req JobRequest) *JobRecord {
	return &JobRecord{
		ID:           req.ID,
		Kind:         req.Kind,
		Status:       JobStatusQueued,
		CreatedAt:    req.CreatedAt,
		ArtifactRefs: []string{},
		StepHistory:  []StepResult{},
	}
}

// Clone returns a deep copy so callers cannot mutate the original.
func (r *JobRecord) Clone() JobRecord {
	out := *r
	out.StartedAt = cloneTime(r.StartedAt)
	out.FinishedAt = cloneTime(r.FinishedAt)
	out.Error = cloneString(r.Error)
	out.ArtifactRefs = append([]string{}, r.ArtifactRefs...)
	out.StepHistory = make([]StepResult, len(r.StepHistory))
	for i, s := range r.StepHistory {
		out.StepHistory[i] = s.Clone()
	}
	if r.Result != nil {
		out.Result = append(json.RawMessage(nil), r.Result...)
	}
	return out
}

// Clone returns a deep copy of the step.
func (s StepResult) Clone() StepResult {
	s.ArtifactRef = cloneString(s.ArtifactRef)
	s.Error = cloneString(s.Error)
	return s
}

// ExpiredAt reports whether a terminal record should be promoted to expired at now.
func (r *JobRecord) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if r.FinishedAt == nil || (r.Status != JobStatusSucceeded && r.Status != JobStatusFailed) {
		return false
	}
	return now.Sub(*r.FinishedAt) > ttl
}

// FundsOutcomeSnapshot is captured while locating the target row and consumed by reconciliation.
type FundsOutcomeSnapshot struct {
	BalanceBefore    *float64
	ResolvedTargetID string
}

// JobStats counts records by status.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
