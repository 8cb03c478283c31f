package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/target/cashier/internal/domain/model"
)

// AgentPassword is the password every builder-made agent uses.
const AgentPassword = "secret"

// JobRequestBuilder helps build job requests for testing.
type JobRequestBuilder struct {
	req model.JobRequest
}

// NewJobRequest creates a balance request with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{req: model.JobRequest{
		ID:        uuid.NewString(),
		Kind:      model.JobKindBalance,
		Payload:   mustJSON(model.TargetPayload{Agent: Agent("agent01"), Target: "player01"}),
		Options:   model.ExecutionOptions{Headless: true},
		CreatedAt: TestTime(),
	}}
}

func (b *JobRequestBuilder) WithID(id string) *JobRequestBuilder {
	b.req.ID = id
	return b
}

func (b *JobRequestBuilder) WithKind(kind model.JobKind) *JobRequestBuilder {
	b.req.Kind = kind
	return b
}

// WithPayload sets the raw payload; any value is marshaled to JSON.
func (b *JobRequestBuilder) WithPayload(payload any) *JobRequestBuilder {
	if raw, ok := payload.(string); ok {
		b.req.Payload = json.RawMessage(raw)
		return b
	}
	b.req.Payload = mustJSON(payload)
	return b
}

// WithFunds sets a deposit/withdrawal payload.
func (b *JobRequestBuilder) WithFunds(agent, target string, amount float64) *JobRequestBuilder {
	return b.WithPayload(model.FundsPayload{Agent: Agent(agent), Target: target, Amount: amount})
}

// WithTarget sets a withdrawal-full/balance payload.
func (b *JobRequestBuilder) WithTarget(agent, target string) *JobRequestBuilder {
	return b.WithPayload(model.TargetPayload{Agent: Agent(agent), Target: target})
}

func (b *JobRequestBuilder) WithOptions(headless, tracing bool, delayMs int) *JobRequestBuilder {
	b.req.Options.Headless = headless
	b.req.Options.DebugTracing = tracing
	b.req.Options.ActionDelayMs = delayMs
	return b
}

func (b *JobRequestBuilder) WithTimeout(d time.Duration) *JobRequestBuilder {
	b.req.Options.TimeoutMs = int(d.Milliseconds())
	return b
}

func (b *JobRequestBuilder) WithCreatedAt(t time.Time) *JobRequestBuilder {
	b.req.CreatedAt = t
	return b
}

func (b *JobRequestBuilder) Build() model.JobRequest {
	return b.req
}

// Agent returns credentials for username with AgentPassword.
func Agent(username string) model.AgentCredentials {
	return model.AgentCredentials{Username: username, Password: AgentPassword}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
