package txn

import (
	"context"
	"errors"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
	apperrors "github.com/target/cashier/internal/errors"
)

// BalanceResult is the job result of a balance query.
type BalanceResult struct {
	Target  string  `json:"target"`
	Balance float64 `json:"balance"`
}

// PlayerResult is the job result of a create-player run.
type PlayerResult struct {
	Username    string `json:"username"`
	ConfirmedBy string `json:"confirmedBy"`
	Feedback    string `json:"feedback,omitempty"`
}

// RunLogin authenticates the agent and nothing else.
func (m *Machine) RunLogin(ctx context.Context, creds model.AgentCredentials) error {
	return m.Authenticate(ctx, creds)
}

// RunBalance reads the target's balance from the account listing.
func (m *Machine) RunBalance(ctx context.Context, creds model.AgentCredentials, target string) (*BalanceResult, error) {
	if err := m.Authenticate(ctx, creds); err != nil {
		return nil, err
	}
	res := &BalanceResult{Target: target}
	err := m.Step(ctx, StepReadBalance, func(ctx context.Context) error {
		v, err := m.readBalance(ctx, target)
		if err != nil {
			return err
		}
		res.Balance = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunCreatePlayer submits the player creation form and confirms the account exists. A success
// message confirms directly; otherwise the listing is searched for the new username.
func (m *Machine) RunCreatePlayer(
	ctx context.Context,
	creds model.AgentCredentials,
	player model.PlayerSpec,
) (*PlayerResult, error) {
	if err := m.Authenticate(ctx, creds); err != nil {
		return nil, err
	}

	startURL := ""
	if err := m.Step(ctx, StepCreatePlayer, func(ctx context.Context) error {
		startURL = m.console.CurrentURL()
		return m.console.CreatePlayer(ctx, player)
	}); err != nil {
		return nil, err
	}

	res := &PlayerResult{Username: player.Username}
	v, err := m.verifyStep(ctx, StepVerifyOutcome, startURL)
	if err != nil {
		return nil, err
	}
	if v.verdict == VerdictConfirmed && v.how == ConfirmedByMessage {
		res.ConfirmedBy, res.Feedback = v.how, v.text
		return res, nil
	}

	// Navigation alone is not proof the account was created.
	err = m.Step(ctx, StepConfirmPlayer, func(ctx context.Context) error {
		candidates, err := m.console.SearchRows(ctx, player.Username, core.OperationBalance)
		if err != nil {
			return err
		}
		if _, err := rows.Select(candidates, player.Username); err != nil {
			if errors.Is(err, rows.ErrNoExactMatch) {
				return apperrors.Stepf("player %q not found after creation", player.Username)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.ConfirmedBy = "listing"
	return res, nil
}
