package executor

import (
	"context"
	"fmt"

	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/service/txn"
)

// StepPersistState is recorded by login runs that export the session to the state store.
const StepPersistState = "persist-session-state"

// LoginResult is the job result of a login run.
type LoginResult struct {
	Agent      string `json:"agent"`
	StateSaved bool   `json:"stateSaved"`
}

func handleLogin(ctx context.Context, run *Run) (any, error) {
	p, ok := run.Payload.(*model.LoginPayload)
	if !ok {
		return nil, payloadMismatch(run)
	}
	if err := run.Machine.RunLogin(ctx, p.Agent); err != nil {
		return nil, err
	}

	res := LoginResult{Agent: p.Agent.Username}
	if run.states == nil {
		return res, nil
	}
	err := run.Machine.Step(ctx, StepPersistState, func(ctx context.Context) error {
		state, err := run.Lease.Session.ExportState(ctx)
		if err != nil {
			return fmt.Errorf("export session state: %w", err)
		}
		return run.states.Save(ctx, p.Agent.Username, state, run.stateTTL)
	})
	if err != nil {
		// The agent is logged in; a missing snapshot only costs a future login.
		run.logger.WarnContext(ctx, "session state not persisted", "error", err)
		return res, nil
	}
	res.StateSaved = true
	return res, nil
}

func handleCreatePlayer(ctx context.Context, run *Run) (any, error) {
	p, ok := run.Payload.(*model.CreatePlayerPayload)
	if !ok {
		return nil, payloadMismatch(run)
	}
	return run.Machine.RunCreatePlayer(ctx, p.Agent, p.Player)
}

func handleFunds(ctx context.Context, run *Run) (any, error) {
	op := txn.FundsOperation{Kind: run.Request.Kind}
	switch p := run.Payload.(type) {
	case *model.FundsPayload:
		op.Agent, op.Target, op.Amount = p.Agent, p.Target, p.Amount
	case *model.TargetPayload:
		op.Agent, op.Target = p.Agent, p.Target
	default:
		return nil, payloadMismatch(run)
	}
	return run.Machine.RunFunds(ctx, op)
}

func handleBalance(ctx context.Context, run *Run) (any, error) {
	p, ok := run.Payload.(*model.TargetPayload)
	if !ok {
		return nil, payloadMismatch(run)
	}
	return run.Machine.RunBalance(ctx, p.Agent, p.Target)
}

func payloadMismatch(run *Run) error {
	return apperrors.Internalf("unexpected payload %T for %s", run.Payload, run.Request.Kind)
}
