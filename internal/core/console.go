package core

import (
	"context"

	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
)

// Operation is the console action a listing row must expose.
type Operation string

const (
	OperationDeposit    Operation = "deposit"
	OperationWithdrawal Operation = "withdrawal"
	OperationBalance    Operation = "balance"
)

// OperationFor maps a funds job kind onto its console operation.
func OperationFor(kind model.JobKind) Operation {
	switch kind {
	case model.JobKindDeposit:
		return OperationDeposit
	case model.JobKindWithdrawal, model.JobKindWithdrawalFull:
		return OperationWithdrawal
	default:
		return OperationBalance
	}
}

// Console is the operator console as seen by the transaction state machine. Implementations
// own every selector and per-site heuristic; the state machine owns sequencing, retries,
// verification and reconciliation.
type Console interface {
	// Login submits the agent credentials and waits for the authenticated landing page.
	Login(ctx context.Context, creds model.AgentCredentials) error
	// IsAuthenticated reports whether the current page belongs to an authenticated session.
	IsAuthenticated(ctx context.Context) (bool, error)
	// FeedbackText returns the visible alert/toast/validation text, empty when none is shown.
	FeedbackText(ctx context.Context) (string, error)
	// CurrentURL returns the URL of the page being driven.
	CurrentURL() string

	// SearchRows opens the player listing filtered by target and scrapes its rows. A row is
	// actionable when it exposes the control op needs.
	SearchRows(ctx context.Context, target string, op Operation) ([]rows.Candidate, error)
	// OpenOperation activates op on the given row.
	OpenOperation(ctx context.Context, row rows.Candidate, op Operation) error
	// OperationPageReady reports whether the operation form is ready for input.
	OperationPageReady(ctx context.Context) (bool, error)
	FillAmount(ctx context.Context, amount string) error
	SelectFullAmount(ctx context.Context) error
	Submit(ctx context.Context) error

	// CreatePlayer fills and submits the player creation form.
	CreatePlayer(ctx context.Context, player model.PlayerSpec) error

	Screenshot(ctx context.Context) ([]byte, error)
}
