package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/target/cashier/internal/errors"
)

// AgentCredentials identify the console agent an operation runs as.
type AgentCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate ensures both fields are present.
func (c AgentCredentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return apperrors.ValidationField("agent.username", "agent username is required")
	}
	if c.Password == "" {
		return apperrors.ValidationField("agent.password", "agent password is required")
	}
	return nil
}

// LoginPayload authenticates an agent and stores its session state.
type LoginPayload struct {
	Agent AgentCredentials `json:"agent"`
}

// Validate implements Payload.
func (p LoginPayload) Validate() error { return p.Agent.Validate() }

// PlayerSpec describes a player account to create.
type PlayerSpec struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// CreatePlayerPayload creates a player account under an agent.
type CreatePlayerPayload struct {
	Agent  AgentCredentials `json:"agent"`
	Player PlayerSpec       `json:"player"`
}

// Validate implements Payload.
func (p CreatePlayerPayload) Validate() error {
	if err := p.Agent.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Player.Username) == "" {
		return apperrors.ValidationField("player.username", "player username is required")
	}
	if strings.ContainsAny(p.Player.Username, " \t\n") {
		return apperrors.ValidationField("player.username", "player username must not contain whitespace")
	}
	if len(p.Player.Password) < 6 {
		return apperrors.ValidationField("player.password", "player password must be at least 6 characters")
	}
	return nil
}

// FundsPayload moves a fixed amount into or out of a player account.
type FundsPayload struct {
	Agent  AgentCredentials `json:"agent"`
	Target string           `json:"target"`
	Amount float64          `json:"amount"`
}

// Validate implements Payload.
func (p FundsPayload) Validate() error {
	if err := p.Agent.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Target) == "" {
		return apperrors.ValidationField("target", "target player is required")
	}
	if p.Amount <= 0 || math.IsInf(p.Amount, 0) || math.IsNaN(p.Amount) {
		return apperrors.ValidationField("amount", "amount must be a positive number")
	}
	if cents := p.Amount * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		return apperrors.ValidationField("amount", "amount must have at most 2 decimal places")
	}
	return nil
}

// TargetPayload names a player without an amount; used by withdrawal-full and balance.
type TargetPayload struct {
	Agent  AgentCredentials `json:"agent"`
	Target string           `json:"target"`
}

// Validate implements Payload.
func (p TargetPayload) Validate() error {
	if err := p.Agent.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Target) == "" {
		return apperrors.ValidationField("target", "target player is required")
	}
	return nil
}

// Payload is implemented by every kind-specific payload.
type Payload interface {
	Validate() error
}

// NewPayload returns an empty payload value for kind.
func NewPayload(kind JobKind) (Payload, error) {
	switch kind {
	case JobKindLogin:
		return &LoginPayload{}, nil
	case JobKindCreatePlayer:
		return &CreatePlayerPayload{}, nil
	case JobKindDeposit, JobKindWithdrawal:
		return &FundsPayload{}, nil
	case JobKindWithdrawalFull, JobKindBalance:
		return &TargetPayload{}, nil
	default:
		return nil, apperrors.ValidationField("kind", fmt.Sprintf("unsupported job kind %q", kind))
	}
}

// DecodePayload strictly decodes raw into the payload type for kind and validates it.
func DecodePayload(kind JobKind, raw json.RawMessage) (Payload, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperrors.ValidationField("payload", "payload is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ExecutionOptionsInput is the optional, partially specified form of ExecutionOptions.
type ExecutionOptionsInput struct {
	Headless      *bool `json:"headless,omitempty"`
	DebugTracing  *bool `json:"debugTracing,omitempty"`
	ActionDelayMs *int  `json:"actionDelayMs,omitempty"`
	TimeoutMs     *int  `json:"timeoutMs,omitempty"`
}

// Resolve applies the input on top of defaults.
func (in *ExecutionOptionsInput) Resolve(defaults ExecutionOptions) (ExecutionOptions, error) {
	out := defaults
	if in == nil {
		return out, nil
	}
	if in.Headless != nil {
		out.Headless = *in.Headless
	}
	if in.DebugTracing != nil {
		out.DebugTracing = *in.DebugTracing
	}
	if in.ActionDelayMs != nil {
		if *in.ActionDelayMs < 0 || *in.ActionDelayMs > 10_000 {
			return out, apperrors.ValidationField("options.actionDelayMs", "actionDelayMs must be between 0 and 10000")
		}
		out.ActionDelayMs = *in.ActionDelayMs
	}
	if in.TimeoutMs != nil {
		if *in.TimeoutMs < 0 || *in.TimeoutMs > 600_000 {
			return out, apperrors.ValidationField("options.timeoutMs", "timeoutMs must be between 0 and 600000")
		}
		out.TimeoutMs = *in.TimeoutMs
	}
	return out, nil
}

// EnqueueRequest is the body accepted by POST /jobs/{kind}.
type EnqueueRequest struct {
	Payload json.RawMessage        `json:"payload"`
	Options *ExecutionOptionsInput `json:"options,omitempty"`
}

// NewJobRequest validates an enqueue request and builds the immutable JobRequest.
func NewJobRequest(
	kind JobKind,
	in EnqueueRequest,
	id string,
	now time.Time,
	defaults ExecutionOptions,
) (JobRequest, error) {
	if !kind.Valid() {
		return JobRequest{}, apperrors.ValidationField("kind", fmt.Sprintf("unsupported job kind %q", kind))
	}
	if _, err := DecodePayload(kind, in.Payload); err != nil {
		return JobRequest{}, err
	}
	opts, err := in.Options.Resolve(defaults)
	if err != nil {
		return JobRequest{}, err
	}
	return JobRequest{
		ID:        id,
		Kind:      kind,
		Payload:   append(json.RawMessage(nil), in.Payload...),
		Options:   opts,
		CreatedAt: now,
	}, nil
}
