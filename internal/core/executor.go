package core

import (
	"context"
	"encoding/json"

	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
)

// Failure describes why an execution did not succeed.
type Failure struct {
	Code   apperrors.ErrorCode
	Reason string
	Err    error
}

// Outcome is what an executor hands back to the job manager. Steps and Artifacts are kept on
// failure too so partial progress stays diagnosable.
type Outcome struct {
	Result    json.RawMessage
	Steps     []model.StepResult
	Artifacts []string
	Failure   *Failure
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return o.Failure != nil }

// FailureFrom builds a Failure from err, keeping its application code when it has one.
func FailureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	return &Failure{Code: code, Reason: err.Error(), Err: err}
}

// JobExecutor runs one job to completion. Implementations report failures through
// Outcome.Failure rather than panicking; the job manager still recovers panics.
type JobExecutor interface {
	Execute(ctx context.Context, req model.JobRequest) Outcome
}
