package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/cashier/internal/errors"
)

func TestJobKind_UnmarshalText(t *testing.T) {
	var k JobKind
	require.NoError(t, k.UnmarshalText([]byte(" Withdrawal-Full ")))
	assert.Equal(t, JobKindWithdrawalFull, k)
	assert.True(t, k.IsFunds())

	assert.Error(t, k.UnmarshalText([]byte("transfer")))
	assert.Equal(t, JobKindWithdrawalFull, k, "failed unmarshal must not overwrite")
	assert.False(t, JobKindBalance.IsFunds())
}

func TestJobStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusQueued, JobStatusFailed, true},
		{JobStatusRunning, JobStatusSucceeded, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusSucceeded, JobStatusExpired, true},
		{JobStatusFailed, JobStatusExpired, true},
		{JobStatusRunning, JobStatusQueued, false},
		{JobStatusSucceeded, JobStatusFailed, false},
		{JobStatusFailed, JobStatusSucceeded, false},
		{JobStatusQueued, JobStatusExpired, false},
		{JobStatusRunning, JobStatusExpired, false},
		{JobStatusExpired, JobStatusFailed, false},
		{JobStatus("bogus"), JobStatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestExecutionOptions(t *testing.T) {
	assert.True(t, ExecutionOptions{Headless: true}.IsFastProfile())
	assert.False(t, ExecutionOptions{DebugTracing: true}.IsFastProfile())
	assert.False(t, ExecutionOptions{ActionDelayMs: 50}.IsFastProfile())

	assert.Equal(t, 30*time.Second, ExecutionOptions{}.Timeout(30*time.Second))
	assert.Equal(t, 1500*time.Millisecond, ExecutionOptions{TimeoutMs: 1500}.Timeout(time.Second))
	assert.Equal(t, 50*time.Millisecond, ExecutionOptions{ActionDelayMs: 50}.ActionDelay())
}

func TestJobRecord_CloneIsDeep(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := "boom"
	ref := "shots/1.png"
	rec := &JobRecord{
		ID:           "job-1",
		Status:       JobStatusFailed,
		FinishedAt:   &now,
		Error:        &msg,
		ArtifactRefs: []string{"a"},
		StepHistory:  []StepResult{{Name: "submit", Status: StepStatusFailed, Error: &msg, ArtifactRef: &ref}},
		Result:       json.RawMessage(`{"ok":true}`),
	}

	cp := rec.Clone()
	*cp.FinishedAt = now.Add(time.Hour)
	*cp.Error = "changed"
	cp.ArtifactRefs[0] = "b"
	*cp.StepHistory[0].Error = "changed"
	*cp.StepHistory[0].ArtifactRef = "changed"
	cp.Result[2] = 'X'

	assert.Equal(t, now, *rec.FinishedAt)
	assert.Equal(t, "boom", *rec.Error)
	assert.Equal(t, "a", rec.ArtifactRefs[0])
	assert.Equal(t, "boom", *rec.StepHistory[0].Error)
	assert.Equal(t, "shots/1.png", *rec.StepHistory[0].ArtifactRef)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Result))
}

func TestJobRecord_ExpiredAt(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &JobRecord{Status: JobStatusSucceeded, FinishedAt: &finished}

	assert.False(t, rec.ExpiredAt(finished.Add(time.Minute), time.Minute))
	assert.True(t, rec.ExpiredAt(finished.Add(time.Minute+time.Nanosecond), time.Minute))

	running := &JobRecord{Status: JobStatusRunning}
	assert.False(t, running.ExpiredAt(finished.Add(time.Hour), time.Minute))
}

func TestNewJobRequest(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	defaults := ExecutionOptions{Headless: true, TimeoutMs: 30000}

	t.Run("valid deposit", func(t *testing.T) {
		delay := 25
		req, err := NewJobRequest(JobKindDeposit, EnqueueRequest{
			Payload: json.RawMessage(`{"agent":{"username":"agent1","password":"pw"},"target":"pruebita","amount":100}`),
			Options: &ExecutionOptionsInput{ActionDelayMs: &delay},
		}, "id-1", now, defaults)
		require.NoError(t, err)
		assert.Equal(t, "id-1", req.ID)
		assert.Equal(t, now, req.CreatedAt)
		assert.Equal(t, ExecutionOptions{Headless: true, TimeoutMs: 30000, ActionDelayMs: 25}, req.Options)
	})

	tests := []struct {
		name    string
		kind    JobKind
		payload string
		field   string
	}{
		{"unknown kind", JobKind("transfer"), `{}`, "kind"},
		{"missing payload", JobKindLogin, ``, "payload"},
		{"missing agent password", JobKindLogin, `{"agent":{"username":"a"}}`, "agent.password"},
		{"negative amount", JobKindWithdrawal, `{"agent":{"username":"a","password":"p"},"target":"x","amount":-1}`, "amount"},
		{"sub-cent amount", JobKindDeposit, `{"agent":{"username":"a","password":"p"},"target":"x","amount":10.005}`, "amount"},
		{"missing target", JobKindBalance, `{"agent":{"username":"a","password":"p"}}`, "target"},
		{"short player password", JobKindCreatePlayer, `{"agent":{"username":"a","password":"p"},"player":{"username":"n","password":"123"}}`, "player.password"},
		{"unknown field", JobKindLogin, `{"agent":{"username":"a","password":"p"},"extra":1}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJobRequest(tt.kind, EnqueueRequest{Payload: json.RawMessage(tt.payload)}, "id", now, defaults)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}

	t.Run("cent amounts are accepted", func(t *testing.T) {
		for _, amount := range []string{"0.29", "150.5", "1234.56"} {
			_, err := NewJobRequest(JobKindDeposit, EnqueueRequest{
				Payload: json.RawMessage(`{"agent":{"username":"a","password":"p"},"target":"x","amount":` + amount + `}`),
			}, "id", now, defaults)
			require.NoError(t, err, amount)
		}
	})

	t.Run("options out of range", func(t *testing.T) {
		bad := -5
		_, err := NewJobRequest(JobKindLogin, EnqueueRequest{
			Payload: json.RawMessage(`{"agent":{"username":"a","password":"p"}}`),
			Options: &ExecutionOptionsInput{TimeoutMs: &bad},
		}, "id", now, defaults)
		require.Error(t, err)
		assert.Equal(t, "options.timeoutMs", apperrors.GetField(err))
	})
}
