package console

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
	"github.com/target/cashier/internal/testutil/browsertest"
)

const baseURL = "https://console.example"

func newConsole(t *testing.T) (*Console, *browsertest.Page, *Profile) {
	t.Helper()
	profile := DefaultProfile()
	profile.Timeouts.SearchSettle = 0
	profile.Timeouts.Element = 50 * time.Millisecond
	profile.Timeouts.Login = 50 * time.Millisecond
	page := browsertest.NewPage()
	c, err := New(page, baseURL+"/", profile)
	require.NoError(t, err)
	return c, page, profile
}

func TestParseProfile(t *testing.T) {
	t.Run("embedded default is valid", func(t *testing.T) {
		p := DefaultProfile()
		assert.Equal(t, "default", p.Name)
		assert.Equal(t, 15*time.Second, p.Timeouts.Login)
		assert.Equal(t, 750*time.Millisecond, p.Timeouts.SearchSettle)
		assert.Empty(t, p.Action(core.OperationBalance))
		assert.NotEmpty(t, p.Action(core.OperationDeposit))
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := ParseProfile(append(append([]byte{}, defaultProfile...), []byte("\nloginn: {}\n")...))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML")
	})

	t.Run("missing selectors are listed", func(t *testing.T) {
		_, err := ParseProfile([]byte("name: bare\nfeedback: ['.alert']\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login.username")
		assert.Contains(t, err.Error(), "listing.actions.deposit")
	})

	t.Run("timeouts default when omitted", func(t *testing.T) {
		p := DefaultProfile()
		p.Timeouts = Timeouts{}
		require.NoError(t, p.Validate())
		assert.Equal(t, 10*time.Second, p.Timeouts.Element)
	})
}

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, defaultProfile, 0o600))
	p, err = LoadProfile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Listing.Row)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	page := browsertest.NewPage()
	for _, u := range []string{"", "console.example", "ftp://console.example", "https://"} {
		_, err := New(page, u, DefaultProfile())
		assert.Error(t, err, u)
	}
	_, err := New(nil, baseURL, DefaultProfile())
	assert.Error(t, err)

	factory := NewFactory(DefaultProfile())
	c, err := factory(page, baseURL)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("fills the form and waits for the marker", func(t *testing.T) {
		c, page, p := newConsole(t)
		page.SetVisible(p.Login.Username, true)
		page.OnClick = func(sel string) {
			if sel == p.Login.Submit {
				page.SetVisible(p.Login.AuthenticatedMarker, true)
			}
		}

		require.NoError(t, c.Login(ctx, model.AgentCredentials{Username: "agent", Password: "s3cret"}))
		assert.Equal(t, []string{
			"goto " + baseURL + "/login",
			"fill " + p.Login.Username + "=agent",
			"fill " + p.Login.Password + "=s3cret",
			"click " + p.Login.Submit,
		}, page.Actions())
	})

	t.Run("no marker after submit", func(t *testing.T) {
		c, page, p := newConsole(t)
		page.SetVisible(p.Login.Username, true)

		err := c.Login(ctx, model.AgentCredentials{Username: "agent", Password: "bad"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no authenticated page")
	})

	t.Run("form never shown", func(t *testing.T) {
		c, _, _ := newConsole(t)
		err := c.Login(ctx, model.AgentCredentials{Username: "agent", Password: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login form not shown")
	})
}

func TestIsAuthenticated(t *testing.T) {
	ctx := context.Background()
	c, page, p := newConsole(t)

	ok, err := c.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"goto " + baseURL + "/dashboard"}, page.Actions())

	page.SetVisible(p.Login.AuthenticatedMarker, true)
	ok, err = c.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, page.Actions(), 1, "no navigation once a page is loaded")
}

func TestFeedbackText(t *testing.T) {
	ctx := context.Background()
	c, page, p := newConsole(t)

	text, err := c.FeedbackText(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	alert := p.Feedback[0]
	toast := p.Feedback[1]
	page.SetCount(alert, 2)
	page.SetText(nth(alert, 0), "  Saldo insuficiente ")
	page.SetTexts(nth(alert, 1))
	page.SetCount(toast, 1)
	page.SetText(nth(toast, 0), "Operación rechazada")

	text, err = c.FeedbackText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Saldo insuficiente | Operación rechazada", text)
}

func TestSearchRows(t *testing.T) {
	ctx := context.Background()
	c, page, p := newConsole(t)
	l := p.Listing
	page.SetVisible(p.Search.Input, true)
	page.SetCount(l.Row, 2)

	row0, row1 := nth(l.Row, 0), nth(l.Row, 1)
	page.SetText(row0, "pruebita  Juan Pérez  1.500,00")
	page.SetTexts(within(row0, l.Identity), " pruebita ", "")
	page.SetText(within(row0, l.Balance), " 1.500,00 ")
	page.SetCount(within(row0, p.Action(core.OperationDeposit)), 1)

	page.SetText(row1, "pruebita_2 Ana 0,00")
	page.SetTexts(within(row1, l.Identity), "pruebita_2")

	got, err := c.SearchRows(ctx, "pruebita", core.OperationDeposit)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, rows.Candidate{
		Index:                0,
		HasActionableControl: true,
		DisplayedIdentities:  []string{"pruebita"},
		NormalizedRowText:    "pruebita juan perez 1.500,00",
		BalanceText:          "1.500,00",
	}, got[0])
	assert.Equal(t, 1, got[1].Index)
	assert.False(t, got[1].HasActionableControl)
	assert.Empty(t, got[1].BalanceText)

	assert.Equal(t, []string{
		"goto " + baseURL + "/players",
		"fill " + p.Search.Input + "=pruebita",
		"press " + p.Search.Input + " Enter",
	}, page.Actions())

	t.Run("balance needs no row control", func(t *testing.T) {
		got, err := c.SearchRows(ctx, "pruebita_2", core.OperationBalance)
		require.NoError(t, err)
		assert.True(t, got[1].HasActionableControl)
	})

	t.Run("search box missing", func(t *testing.T) {
		c, _, _ := newConsole(t)
		_, err := c.SearchRows(ctx, "pruebita", core.OperationDeposit)
		require.Error(t, err)
	})
}

func TestOperationForm(t *testing.T) {
	ctx := context.Background()
	c, page, p := newConsole(t)
	f := p.Operation

	require.NoError(t, c.OpenOperation(ctx, rows.Candidate{Index: 3}, core.OperationWithdrawal))
	assert.Equal(t, "click "+within(nth(p.Listing.Row, 3), p.Action(core.OperationWithdrawal)), page.Actions()[0])
	assert.Error(t, c.OpenOperation(ctx, rows.Candidate{}, core.OperationBalance))

	ready, err := c.OperationPageReady(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	page.SetVisible(f.Ready, true)
	page.SetVisible(f.Amount, true)
	page.SetVisible(f.Submit, true)
	page.SetDisabled(f.Submit, true)
	ready, err = c.OperationPageReady(ctx)
	require.NoError(t, err)
	assert.False(t, ready, "disabled submit")

	page.SetDisabled(f.Submit, false)
	ready, err = c.OperationPageReady(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	require.NoError(t, c.FillAmount(ctx, "250.00"))
	require.NoError(t, c.SelectFullAmount(ctx))
	require.NoError(t, c.Submit(ctx))
	assert.Equal(t, []string{
		"fill " + f.Amount + "=250.00",
		"click " + f.FullAmount,
		"click " + f.Submit,
	}, page.Actions()[1:])

	p.Operation.FullAmount = ""
	assert.Error(t, c.SelectFullAmount(ctx))
}

func TestCreatePlayer(t *testing.T) {
	ctx := context.Background()
	c, page, p := newConsole(t)
	f := p.CreatePlayer
	page.SetVisible(f.Username, true)

	require.NoError(t, c.CreatePlayer(ctx, model.PlayerSpec{Username: "nuevo", Password: "secreto1", Email: "n@example.com"}))
	assert.Equal(t, []string{
		"goto " + baseURL + "/players/new",
		"fill " + f.Username + "=nuevo",
		"fill " + f.Password + "=secreto1",
		"fill " + f.Email + "=n@example.com",
		"click " + f.Submit,
	}, page.Actions())
	assert.Equal(t, baseURL+"/players/new", c.CurrentURL())

	shot, err := c.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}
