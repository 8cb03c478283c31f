package txn

import (
	"context"
	"fmt"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/money"
	"github.com/target/cashier/internal/domain/rows"
	apperrors "github.com/target/cashier/internal/errors"
)

// Verdict is the result of watching the console after a submit.
type Verdict int

const (
	// VerdictUnknown means no signal appeared before the verify timeout.
	VerdictUnknown Verdict = iota
	// VerdictConfirmed means a success message or a navigation away was observed.
	VerdictConfirmed
	// VerdictRejected means a recognized error message was shown.
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Confirmation names how a funds operation was confirmed.
const (
	ConfirmedByMessage    = "ui-message"
	ConfirmedByNavigation = "navigation"
	ConfirmedByRetry      = "retry"
	ConfirmedByBalance    = "balance-reconciliation"
)

// FundsOperation describes a deposit, withdrawal or full withdrawal.
type FundsOperation struct {
	Kind   model.JobKind
	Agent  model.AgentCredentials
	Target string
	// Amount is ignored for full withdrawals.
	Amount float64
}

// FundsResult is the job result of a confirmed funds operation.
type FundsResult struct {
	Kind          model.JobKind `json:"kind"`
	Target        string        `json:"target"`
	Amount        float64       `json:"amount"`
	BalanceBefore *float64      `json:"balanceBefore,omitempty"`
	BalanceAfter  *float64      `json:"balanceAfter,omitempty"`
	ConfirmedBy   string        `json:"confirmedBy"`
	Feedback      string        `json:"feedback,omitempty"`
}

type verification struct {
	verdict Verdict
	how     string
	text    string
}

// RunFunds executes authenticate → locate-target-row → open-operation-page →
// await-operation-page-ready → set-amount → submit → verify-outcome, falling back to a single
// re-submit and then to balance reconciliation when the outcome is unknown.
func (m *Machine) RunFunds(ctx context.Context, op FundsOperation) (*FundsResult, error) {
	if !op.Kind.IsFunds() {
		return nil, apperrors.Validationf("%s is not a funds operation", op.Kind)
	}
	full := op.Kind == model.JobKindWithdrawalFull
	consoleOp := core.OperationFor(op.Kind)

	if err := m.Authenticate(ctx, op.Agent); err != nil {
		return nil, err
	}

	var (
		snapshot model.FundsOutcomeSnapshot
		row      rows.Candidate
	)
	err := m.Step(ctx, StepLocateTargetRow, func(ctx context.Context) error {
		candidates, err := m.console.SearchRows(ctx, op.Target, consoleOp)
		if err != nil {
			return err
		}
		row, err = rows.Select(candidates, op.Target)
		if err != nil {
			return err
		}
		snapshot = snapshotFrom(row, op.Target)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var operationURL string
	if err := m.Step(ctx, StepOpenOperation, func(ctx context.Context) error {
		return m.console.OpenOperation(ctx, row, consoleOp)
	}); err != nil {
		return nil, err
	}
	if err := m.Step(ctx, StepAwaitReady, func(ctx context.Context) error {
		if err := m.awaitReady(ctx); err != nil {
			return err
		}
		operationURL = m.console.CurrentURL()
		return nil
	}); err != nil {
		return nil, err
	}

	amount := op.Amount
	if full && snapshot.BalanceBefore != nil {
		amount = *snapshot.BalanceBefore
	}
	if err := m.Step(ctx, StepSetAmount, func(ctx context.Context) error {
		if full {
			return m.console.SelectFullAmount(ctx)
		}
		return m.console.FillAmount(ctx, money.FormatAmount(op.Amount))
	}); err != nil {
		return nil, err
	}

	if err := m.Step(ctx, StepSubmit, m.console.Submit); err != nil {
		return nil, err
	}

	result := &FundsResult{
		Kind:          op.Kind,
		Target:        snapshot.ResolvedTargetID,
		Amount:        amount,
		BalanceBefore: snapshot.BalanceBefore,
	}

	v, err := m.verifyStep(ctx, StepVerifyOutcome, operationURL)
	if err != nil {
		return nil, err
	}
	if v.verdict == VerdictConfirmed {
		result.ConfirmedBy, result.Feedback = v.how, v.text
		return result, nil
	}

	unknown := apperrors.Stepf("outcome unknown: no success or error signal within %s after submit", m.verifyTimeout)
	return m.fallback(ctx, op, snapshot, operationURL, result, unknown)
}

// fallback runs only after an unknown verdict: one re-submit while still on the operation page,
// then balance reconciliation.
func (m *Machine) fallback(
	ctx context.Context,
	op FundsOperation,
	snapshot model.FundsOutcomeSnapshot,
	operationURL string,
	result *FundsResult,
	unknown error,
) (*FundsResult, error) {
	if m.console.CurrentURL() == operationURL {
		if err := m.Step(ctx, StepRetrySubmit, m.console.Submit); err != nil {
			return nil, err
		}
		v, err := m.verifyStep(ctx, StepVerifyRetry, operationURL)
		if err != nil {
			return nil, err
		}
		if v.verdict == VerdictConfirmed {
			result.ConfirmedBy, result.Feedback = ConfirmedByRetry, v.text
			return result, nil
		}
	} else {
		m.Skip(StepRetrySubmit, "page already left the operation form")
	}

	err := m.Step(ctx, StepReconcileBalance, func(ctx context.Context) error {
		if snapshot.BalanceBefore == nil {
			return apperrors.Wrap(unknown, apperrors.ErrCodeReconciliation,
				"no pre-operation balance to reconcile against")
		}
		expected := expectedBalance(op, *snapshot.BalanceBefore)
		live, err := m.readBalance(ctx, op.Target)
		if err != nil {
			return apperrors.Wrap(fmt.Errorf("%w (re-reading balance: %v)", unknown, err),
				apperrors.ErrCodeReconciliation, "balance reconciliation failed")
		}
		result.BalanceAfter = &live
		if !money.WithinTolerance(live, expected, m.tolerance) {
			return apperrors.Wrap(unknown, apperrors.ErrCodeReconciliation, fmt.Sprintf(
				"balance reconciliation did not confirm (before %s, expected %.2f, observed %.2f)",
				fmtAmount(snapshot.BalanceBefore), expected, live))
		}
		m.logger.InfoContext(ctx, "operation confirmed by balance reconciliation",
			"expected", expected, "observed", live)
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.ConfirmedBy = ConfirmedByBalance
	return result, nil
}

// verifyStep records a verify step. A rejected verdict fails the step; an unknown verdict is
// recorded as failed but returned without error so the caller can fall back.
func (m *Machine) verifyStep(ctx context.Context, name, operationURL string) (verification, error) {
	var v verification
	err := m.Step(ctx, name, func(ctx context.Context) error {
		v = m.verify(ctx, operationURL)
		if v.verdict == VerdictRejected {
			return apperrors.Stepf("console rejected the operation: %s", v.text)
		}
		return nil
	})
	if err != nil {
		return v, err
	}
	if v.verdict == VerdictUnknown {
		m.markLastUnknown()
	}
	return v, nil
}

// markLastUnknown flags the most recent step as inconclusive without aborting the run.
func (m *Machine) markLastUnknown() {
	if len(m.steps) == 0 {
		return
	}
	msg := "outcome unknown"
	last := &m.steps[len(m.steps)-1]
	last.Status = model.StepStatusFailed
	last.Error = &msg
}

// verify polls the console for an error message, a success message or a navigation away from
// the operation page, in that order of precedence, until the verify timeout.
func (m *Machine) verify(ctx context.Context, operationURL string) verification {
	deadline := m.now().Add(m.verifyTimeout)
	for {
		text, err := m.console.FeedbackText(ctx)
		if err != nil {
			m.logger.DebugContext(ctx, "read feedback failed", "error", err)
		}
		switch {
		case m.patterns.Error.Match(text):
			return verification{verdict: VerdictRejected, text: text}
		case m.patterns.Success.Match(text):
			return verification{verdict: VerdictConfirmed, how: ConfirmedByMessage, text: text}
		}
		if url := m.console.CurrentURL(); url != "" && operationURL != "" && url != operationURL {
			return verification{verdict: VerdictConfirmed, how: ConfirmedByNavigation}
		}
		if !m.now().Before(deadline) {
			return verification{verdict: VerdictUnknown}
		}
		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return verification{verdict: VerdictUnknown}
		}
	}
}

func (m *Machine) awaitReady(ctx context.Context) error {
	deadline := m.now().Add(m.verifyTimeout)
	for {
		ready, err := m.console.OperationPageReady(ctx)
		if err == nil && ready {
			return nil
		}
		if !m.now().Before(deadline) {
			if err != nil {
				return apperrors.Wrapf(err, apperrors.ErrCodeStep, "operation page not ready after %s", m.verifyTimeout)
			}
			return apperrors.Stepf("operation page not ready after %s", m.verifyTimeout)
		}
		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return err
		}
	}
}

// readBalance re-reads the target's balance from the account listing.
func (m *Machine) readBalance(ctx context.Context, target string) (float64, error) {
	candidates, err := m.console.SearchRows(ctx, target, core.OperationBalance)
	if err != nil {
		return 0, err
	}
	row, err := rows.Select(candidates, target)
	if err != nil {
		return 0, err
	}
	if row.BalanceText == "" {
		return 0, apperrors.Stepf("listing shows no balance for %q", target)
	}
	return money.ParseLocalizedMoneyWith(row.BalanceText, money.DotThousands)
}

func snapshotFrom(row rows.Candidate, target string) model.FundsOutcomeSnapshot {
	snap := model.FundsOutcomeSnapshot{ResolvedTargetID: target}
	for _, id := range row.DisplayedIdentities {
		if money.ContainsExact(id, target) {
			snap.ResolvedTargetID = id
			break
		}
	}
	if row.BalanceText != "" {
		if v, err := money.ParseLocalizedMoneyWith(row.BalanceText, money.DotThousands); err == nil {
			snap.BalanceBefore = &v
		}
	}
	return snap
}

func expectedBalance(op FundsOperation, before float64) float64 {
	switch op.Kind {
	case model.JobKindDeposit:
		return before + op.Amount
	case model.JobKindWithdrawalFull:
		return 0
	default:
		return before - op.Amount
	}
}
