package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/mocks"
	"github.com/target/cashier/internal/service/sessionpool"
	"github.com/target/cashier/internal/service/txn"
	"github.com/target/cashier/internal/testutil"
	"github.com/target/cashier/internal/testutil/browsertest"
	"github.com/target/cashier/internal/testutil/consoletest"
)

const agentJSON = `{"username":"agent7","password":"secret"}`

type fixture struct {
	driver  *browsertest.Driver
	pool    *sessionpool.Pool
	console *consoletest.Console
	clock   *testutil.ManualClock
	pages   []core.Page
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		driver:  &browsertest.Driver{},
		console: consoletest.New(),
		clock:   testutil.NewManualClock(testutil.TestTime()),
	}
	f.pool = sessionpool.MustNew(sessionpool.Options{
		Driver:    f.driver,
		BaseURL:   "https://console.example",
		MaxAgents: 2,
		Now:       f.clock.Now,
	})
	t.Cleanup(f.pool.Close)
	return f
}

func (f *fixture) executor(t *testing.T, mutate ...func(*Options)) *Executor {
	t.Helper()
	opts := Options{
		Pool: f.pool,
		Console: func(page core.Page, _ string) (core.Console, error) {
			f.pages = append(f.pages, page)
			return f.console, nil
		},
		BaseURL: "https://console.example",
		Machine: MachineSettings{VerifyTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond},
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func jobRequest(kind model.JobKind, payload string) model.JobRequest {
	return model.JobRequest{
		ID:        "job-1",
		Kind:      kind,
		Payload:   json.RawMessage(payload),
		Options:   model.ExecutionOptions{Headless: true},
		CreatedAt: testutil.TestTime(),
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = New(Options{Pool: f.pool})
	require.Error(t, err)
}

func TestDefaultRegistry_CoversEveryKind(t *testing.T) {
	assert.ElementsMatch(t, model.AllJobKinds, DefaultRegistry().Kinds())
}

func TestExecute_DepositSucceedsAndPoolsSession(t *testing.T) {
	f := newFixture(t)
	f.console.Listing[core.OperationDeposit] = []rows.Candidate{consoletest.PlayerRow(0, "pruebita", "1.000,00")}
	f.console.OnSubmit = func(c *consoletest.Console) { c.SetFeedback("Carga realizada con éxito") }

	out := f.executor(t).Execute(context.Background(), jobRequest(model.JobKindDeposit,
		`{"agent":`+agentJSON+`,"target":"pruebita","amount":100}`))

	require.Nil(t, out.Failure)
	var res txn.FundsResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.Equal(t, txn.ConfirmedByMessage, res.ConfirmedBy)
	assert.InDelta(t, 100, res.Amount, 1e-9)
	assert.Len(t, out.Steps, 7)
	assert.Equal(t, 1, f.pool.Len(), "fast profile sessions stay pooled")
}

func TestExecute_ReusesSessionAcrossJobs(t *testing.T) {
	f := newFixture(t)
	f.console.Listing[core.OperationBalance] = []rows.Candidate{consoletest.PlayerRow(0, "pruebita", "12,50")}
	e := f.executor(t)

	for range 2 {
		out := e.Execute(context.Background(), jobRequest(model.JobKindBalance,
			`{"agent":`+agentJSON+`,"target":"pruebita"}`))
		require.Nil(t, out.Failure)
		assert.JSONEq(t, `{"target":"pruebita","balance":12.5}`, string(out.Result))
	}
	assert.Equal(t, 1, f.driver.Launches())
	require.Len(t, f.pages, 2)
	assert.Same(t, f.pages[0], f.pages[1])
}

func TestExecute_UnknownKind(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, func(o *Options) { o.Registry = NewRegistry() })

	out := e.Execute(context.Background(), jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`))
	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeValidation, out.Failure.Code)
	assert.Equal(t, 0, f.driver.Launches())
}

func TestExecute_InvalidPayload(t *testing.T) {
	f := newFixture(t)
	out := f.executor(t).Execute(context.Background(), jobRequest(model.JobKindDeposit,
		`{"agent":`+agentJSON+`,"target":"pruebita","amount":-1}`))

	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeValidation, out.Failure.Code)
	assert.Equal(t, 0, f.driver.Launches())
}

func TestExecute_LaunchFailureIsResourceFailure(t *testing.T) {
	f := newFixture(t)
	f.driver.LaunchErr = errors.New("chromium missing")

	out := f.executor(t).Execute(context.Background(), jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`))
	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeResource, out.Failure.Code)
	assert.Contains(t, out.Failure.Reason, "chromium missing")
	assert.Empty(t, out.Steps)
}

func TestExecute_LoginPersistsSessionState(t *testing.T) {
	ctrl := gomock.NewController(t)
	states := mocks.NewMockSessionStateStore(ctrl)
	states.EXPECT().Save(gomock.Any(), "agent7", []byte(`{"cookies":[]}`), 6*time.Hour).Return(nil)

	f := newFixture(t)
	e := f.executor(t, func(o *Options) {
		o.StateStore = states
		o.StateTTL = 6 * time.Hour
	})

	out := e.Execute(context.Background(), jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`))
	require.Nil(t, out.Failure)
	assert.JSONEq(t, `{"agent":"agent7","stateSaved":true}`, string(out.Result))
	require.Len(t, out.Steps, 2)
	assert.Equal(t, StepPersistState, out.Steps[1].Name)
}

func TestExecute_LoginSucceedsWhenStateSaveFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	states := mocks.NewMockSessionStateStore(ctrl)
	states.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	f := newFixture(t)
	out := f.executor(t, func(o *Options) { o.StateStore = states }).
		Execute(context.Background(), jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`))

	require.Nil(t, out.Failure)
	assert.JSONEq(t, `{"agent":"agent7","stateSaved":false}`, string(out.Result))
}

func TestExecute_AuthenticationFailureInvalidatesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	states := mocks.NewMockSessionStateStore(ctrl)
	states.EXPECT().Delete(gomock.Any(), "agent7").Return(nil)

	f := newFixture(t)
	f.console.LoginErrs = []error{errors.New("still on login form")}
	f.console.Feedback = "Usuario o contraseña incorrectos"

	out := f.executor(t, func(o *Options) { o.StateStore = states }).
		Execute(context.Background(), jobRequest(model.JobKindBalance, `{"agent":`+agentJSON+`,"target":"pruebita"}`))

	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeAuthentication, out.Failure.Code)
	assert.Equal(t, 0, f.pool.Len())
	assert.Equal(t, 0, f.driver.OpenBrowsers())
}

func TestExecute_StepFailureKeepsSessionAndCapturesScreenshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	store.EXPECT().
		Put(gomock.Any(), "jobs/job-1/01-locate-target-row.png", gomock.Any(), "image/png").
		Return("s3://artifacts/jobs/job-1/01-locate-target-row.png", nil)

	f := newFixture(t)
	f.console.Listing[core.OperationWithdrawal] = []rows.Candidate{
		consoletest.PlayerRow(0, "pruebita", "1,00"),
		consoletest.PlayerRow(1, "pruebita", "2,00"),
	}

	out := f.executor(t, func(o *Options) { o.Artifacts = store }).
		Execute(context.Background(), jobRequest(model.JobKindWithdrawal,
			`{"agent":`+agentJSON+`,"target":"pruebita","amount":1}`))

	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeAmbiguity, out.Failure.Code)
	assert.Equal(t, []string{"s3://artifacts/jobs/job-1/01-locate-target-row.png"}, out.Artifacts)
	last := out.Steps[len(out.Steps)-1]
	require.NotNil(t, last.ArtifactRef)
	assert.Equal(t, 1, f.pool.Len(), "a healthy session survives a business failure")
}

func TestExecute_DebugTracingUsesIsolatedSessionAndStoresTrace(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	store.EXPECT().
		Put(gomock.Any(), "jobs/job-1/trace.zip", []byte("trace"), "application/zip").
		Return("file:///tmp/jobs/job-1/trace.zip", nil)

	f := newFixture(t)
	req := jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`)
	req.Options.DebugTracing = true

	out := f.executor(t, func(o *Options) { o.Artifacts = store }).Execute(context.Background(), req)

	require.Nil(t, out.Failure)
	assert.Equal(t, []string{"file:///tmp/jobs/job-1/trace.zip"}, out.Artifacts)
	assert.Equal(t, 0, f.pool.Len())
	assert.Equal(t, 0, f.driver.OpenBrowsers(), "isolated sessions are torn down on release")
}

func TestExecute_ConsoleFactoryError(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, func(o *Options) {
		o.Console = func(core.Page, string) (core.Console, error) { return nil, errors.New("bad profile") }
	})

	out := e.Execute(context.Background(), jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`))
	require.NotNil(t, out.Failure)
	assert.Equal(t, apperrors.ErrCodeResource, out.Failure.Code)
	assert.Equal(t, 0, f.driver.OpenBrowsers())
}

func TestExecute_PanicFreesSessionKey(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistry()
	reg.Register(model.JobKindLogin, func(context.Context, *Run) (any, error) { panic("boom") })
	e := f.executor(t, func(o *Options) { o.Registry = reg })

	req := jobRequest(model.JobKindLogin, `{"agent":`+agentJSON+`}`)
	assert.Panics(t, func() { e.Execute(context.Background(), req) })
	assert.Equal(t, 0, f.pool.Len(), "the panicking session is torn down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := f.pool.Acquire(ctx, "agent7", sessionpool.AcquireOptions{Execution: req.Options})
	require.NoError(t, err, "the key lock was released")
	lease.Release()
}
