package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/testutil/consoletest"
)

func TestAuthenticate(t *testing.T) {
	t.Run("already authenticated skips login", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin)
		f.console.Authenticated = true

		require.NoError(t, f.machine.RunLogin(context.Background(), agent))
		assert.Equal(t, 0, f.console.LoginCalls)
	})

	t.Run("transient failure is retried once", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin)
		f.console.LoginErrs = []error{errors.New("navigation timeout")}

		require.NoError(t, f.machine.RunLogin(context.Background(), agent))
		assert.Equal(t, 2, f.console.LoginCalls)
		assert.Equal(t, model.StepStatusOK, f.machine.Steps()[0].Status)
	})

	t.Run("exhausted retries is a step failure", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin)
		f.console.LoginErrs = []error{errors.New("boom"), errors.New("boom again")}

		err := f.machine.RunLogin(context.Background(), agent)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeStep, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "after 2 attempts")
		assert.Equal(t, 2, f.console.LoginCalls)
	})

	t.Run("recognized invalid credentials are not retried", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin)
		f.console.LoginErrs = []error{errors.New("still on login page"), nil}
		f.console.Feedback = "Usuario o contraseña incorrectos"

		err := f.machine.RunLogin(context.Background(), agent)
		require.Error(t, err)
		assert.True(t, apperrors.IsAuthentication(err))
		assert.Contains(t, err.Error(), "agent7")
		assert.Equal(t, 1, f.console.LoginCalls)
	})

	t.Run("authentication coded error is not retried", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin)
		f.console.LoginErrs = []error{apperrors.Authenticationf("login form rejected")}

		err := f.machine.RunLogin(context.Background(), agent)
		assert.True(t, apperrors.IsAuthentication(err))
		assert.Equal(t, 1, f.console.LoginCalls)
	})

	t.Run("configured attempts", func(t *testing.T) {
		f := newMachine(t, model.JobKindLogin, func(o *Options) { o.AuthAttempts = 3 })
		f.console.LoginErrs = []error{errors.New("a"), errors.New("b")}

		require.NoError(t, f.machine.RunLogin(context.Background(), agent))
		assert.Equal(t, 3, f.console.LoginCalls)
	})
}

func TestStep_TimeoutIsStepFailure(t *testing.T) {
	f := newMachine(t, model.JobKindLogin, func(o *Options) { o.StepTimeout = 10 * time.Millisecond })

	err := f.machine.Step(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStep, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, model.StepStatusFailed, f.machine.Steps()[0].Status)
}

func TestStep_ActionDelayPausesBeforeStep(t *testing.T) {
	f := newMachine(t, model.JobKindLogin, func(o *Options) { o.ActionDelay = 500 * time.Millisecond })
	start := f.clock.Now()

	require.NoError(t, f.machine.Step(context.Background(), "noop", func(context.Context) error { return nil }))
	assert.Equal(t, start.Add(500*time.Millisecond), f.clock.Now())
}

func TestSkip_RecordsReason(t *testing.T) {
	f := newMachine(t, model.JobKindDeposit)
	f.machine.Skip(StepRetrySubmit, "page already left the operation form")

	steps := f.machine.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepStatusSkipped, steps[0].Status)
	require.NotNil(t, steps[0].Error)
	assert.Equal(t, "page already left the operation form", *steps[0].Error)
}

func TestSteps_ReturnsCopies(t *testing.T) {
	f := newMachine(t, model.JobKindDeposit)
	f.machine.Skip("x", "reason")

	steps := f.machine.Steps()
	*steps[0].Error = "mutated"
	assert.Equal(t, "reason", *f.machine.Steps()[0].Error)
}

func TestRunBalance(t *testing.T) {
	f := newMachine(t, model.JobKindBalance)
	f.console.Listing[core.OperationBalance] = []rows.Candidate{
		consoletest.PlayerRow(0, "pruebita_2", "5,00"),
		consoletest.PlayerRow(1, "pruebita", "1.234,56"),
	}

	res, err := f.machine.RunBalance(context.Background(), agent, "Pruebita")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, res.Balance, 1e-9)
	assert.Equal(t, []string{StepAuthenticate, StepReadBalance}, stepNames(f.machine.Steps()))
}

func TestRunBalance_MissingBalanceColumn(t *testing.T) {
	f := newMachine(t, model.JobKindBalance)
	f.console.Listing[core.OperationBalance] = []rows.Candidate{consoletest.PlayerRow(0, "pruebita", "")}

	_, err := f.machine.RunBalance(context.Background(), agent, "pruebita")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStep, apperrors.GetCode(err))
}

func TestRunCreatePlayer(t *testing.T) {
	player := model.PlayerSpec{Username: "nuevo01", Password: "abc123"}

	t.Run("confirmed by message", func(t *testing.T) {
		f := newMachine(t, model.JobKindCreatePlayer)
		f.console.OnCreate = func(c *consoletest.Console) { c.SetFeedback("Jugador creado con éxito") }

		res, err := f.machine.RunCreatePlayer(context.Background(), agent, player)
		require.NoError(t, err)
		assert.Equal(t, ConfirmedByMessage, res.ConfirmedBy)
		assert.Equal(t, []model.PlayerSpec{player}, f.console.Created)
		assert.NotContains(t, stepNames(f.machine.Steps()), StepConfirmPlayer)
	})

	t.Run("confirmed by listing", func(t *testing.T) {
		f := newMachine(t, model.JobKindCreatePlayer)
		f.console.Listing[core.OperationBalance] = []rows.Candidate{consoletest.PlayerRow(0, "nuevo01", "0,00")}

		res, err := f.machine.RunCreatePlayer(context.Background(), agent, player)
		require.NoError(t, err)
		assert.Equal(t, "listing", res.ConfirmedBy)
		assert.Equal(t, model.StepStatusOK, stepStatus(t, f.machine.Steps(), StepConfirmPlayer))
	})

	t.Run("missing after creation", func(t *testing.T) {
		f := newMachine(t, model.JobKindCreatePlayer)

		_, err := f.machine.RunCreatePlayer(context.Background(), agent, player)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeStep, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "not found after creation")
	})

	t.Run("console error", func(t *testing.T) {
		f := newMachine(t, model.JobKindCreatePlayer)
		f.console.OnCreate = func(c *consoletest.Console) { c.SetFeedback("El usuario ya existe. No se pudo crear") }

		_, err := f.machine.RunCreatePlayer(context.Background(), agent, player)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rejected")
	})
}

func TestPatterns(t *testing.T) {
	p := DefaultPatterns()
	assert.True(t, p.Success.Match("  Depósito   REALIZADO correctamente "))
	assert.True(t, p.Error.Match("Fondos insuficientes"))
	assert.True(t, p.InvalidCredentials.Match("Credenciales inválidas"))
	assert.False(t, p.Error.Match(""))
	assert.False(t, p.Success.Match("Procesando..."))

	_, err := CompilePatterns([]string{"("}, nil, nil)
	assert.Error(t, err)
}
