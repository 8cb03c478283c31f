// Package console drives the operator back office through core.Page using a selector profile.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/money"
	"github.com/target/cashier/internal/domain/rows"
)

// maxFeedbackNodes bounds how many matches of a feedback selector are read.
const maxFeedbackNodes = 10

// Console implements core.Console for one page.
type Console struct {
	page    core.Page
	baseURL string
	profile *Profile
}

var _ core.Console = (*Console)(nil)

// New returns a console bound to page. baseURL must be an absolute http(s) URL.
func New(page core.Page, baseURL string, profile *Profile) (*Console, error) {
	if page == nil {
		return nil, errors.New("page is required")
	}
	if profile == nil {
		return nil, errors.New("profile is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid console base URL %q", baseURL)
	}
	return &Console{page: page, baseURL: strings.TrimRight(baseURL, "/"), profile: profile}, nil
}

// NewFactory returns a constructor with the executor's console factory signature.
func NewFactory(profile *Profile) func(page core.Page, baseURL string) (core.Console, error) {
	return func(page core.Page, baseURL string) (core.Console, error) {
		return New(page, baseURL, profile)
	}
}

func (c *Console) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Login implements core.Console.
func (c *Console) Login(ctx context.Context, creds model.AgentCredentials) error {
	f := c.profile.Login
	if err := c.page.Goto(ctx, c.resolve(c.profile.Paths.Login)); err != nil {
		return err
	}
	if err := c.page.WaitVisible(ctx, f.Username, c.profile.Timeouts.Element); err != nil {
		return fmt.Errorf("login form not shown: %w", err)
	}
	if err := c.page.Fill(ctx, f.Username, creds.Username); err != nil {
		return err
	}
	if err := c.page.Fill(ctx, f.Password, creds.Password); err != nil {
		return err
	}
	if err := c.page.Click(ctx, f.Submit); err != nil {
		return err
	}
	if err := c.page.WaitVisible(ctx, f.AuthenticatedMarker, c.profile.Timeouts.Login); err != nil {
		return fmt.Errorf("no authenticated page after login: %w", err)
	}
	return nil
}

// IsAuthenticated implements core.Console. A fresh page is sent to the home path first so an
// imported session state gets a chance to take effect.
func (c *Console) IsAuthenticated(ctx context.Context) (bool, error) {
	if u := c.page.URL(); u == "" || u == "about:blank" {
		home := c.profile.Paths.Home
		if home == "" {
			home = c.profile.Paths.Players
		}
		if err := c.page.Goto(ctx, c.resolve(home)); err != nil {
			return false, err
		}
	}
	n, err := c.page.Count(ctx, c.profile.Login.AuthenticatedMarker)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FeedbackText implements core.Console. Visible texts of every feedback selector are joined
// in profile order.
func (c *Console) FeedbackText(ctx context.Context) (string, error) {
	var parts []string
	for _, sel := range c.profile.Feedback {
		n, err := c.page.Count(ctx, sel)
		if err != nil {
			return "", err
		}
		for i := 0; i < min(n, maxFeedbackNodes); i++ {
			node := nth(sel, i)
			visible, err := c.page.IsVisible(ctx, node)
			if err != nil {
				return "", err
			}
			if !visible {
				continue
			}
			text, err := c.page.Text(ctx, node)
			if err != nil {
				return "", err
			}
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " | "), nil
}

// CurrentURL implements core.Console.
func (c *Console) CurrentURL() string { return c.page.URL() }

// SearchRows implements core.Console.
func (c *Console) SearchRows(ctx context.Context, target string, op core.Operation) ([]rows.Candidate, error) {
	if err := c.page.Goto(ctx, c.resolve(c.profile.Paths.Players)); err != nil {
		return nil, err
	}
	s := c.profile.Search
	if err := c.page.WaitVisible(ctx, s.Input, c.profile.Timeouts.Element); err != nil {
		return nil, fmt.Errorf("player search not shown: %w", err)
	}
	if err := c.page.Fill(ctx, s.Input, target); err != nil {
		return nil, err
	}
	if s.Submit != "" {
		if err := c.page.Click(ctx, s.Submit); err != nil {
			return nil, err
		}
	} else if err := c.page.Press(ctx, s.Input, "Enter"); err != nil {
		return nil, err
	}
	if err := sleepContext(ctx, c.profile.Timeouts.SearchSettle); err != nil {
		return nil, err
	}

	n, err := c.page.Count(ctx, c.profile.Listing.Row)
	if err != nil {
		return nil, err
	}
	out := make([]rows.Candidate, 0, n)
	for i := 0; i < n; i++ {
		cand, err := c.scanRow(ctx, i, op)
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", i, err)
		}
		out = append(out, cand)
	}
	return out, nil
}

func (c *Console) scanRow(ctx context.Context, i int, op core.Operation) (rows.Candidate, error) {
	l := c.profile.Listing
	row := nth(l.Row, i)
	text, err := c.page.Text(ctx, row)
	if err != nil {
		return rows.Candidate{}, err
	}
	ids, err := c.page.AllTexts(ctx, within(row, l.Identity))
	if err != nil {
		return rows.Candidate{}, err
	}
	cand := rows.Candidate{
		Index:             i,
		NormalizedRowText: money.NormalizeText(text),
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cand.DisplayedIdentities = append(cand.DisplayedIdentities, id)
		}
	}
	if l.Balance != "" {
		sel := within(row, l.Balance)
		if n, err := c.page.Count(ctx, sel); err != nil {
			return rows.Candidate{}, err
		} else if n > 0 {
			bal, err := c.page.Text(ctx, sel)
			if err != nil {
				return rows.Candidate{}, err
			}
			cand.BalanceText = strings.TrimSpace(bal)
		}
	}
	action := c.profile.Action(op)
	if action == "" {
		cand.HasActionableControl = true
		return cand, nil
	}
	n, err := c.page.Count(ctx, within(row, action))
	if err != nil {
		return rows.Candidate{}, err
	}
	cand.HasActionableControl = n > 0
	return cand, nil
}

// OpenOperation implements core.Console.
func (c *Console) OpenOperation(ctx context.Context, row rows.Candidate, op core.Operation) error {
	action := c.profile.Action(op)
	if action == "" {
		return fmt.Errorf("profile %q defines no row control for %s", c.profile.Name, op)
	}
	return c.page.Click(ctx, within(nth(c.profile.Listing.Row, row.Index), action))
}

// OperationPageReady implements core.Console.
func (c *Console) OperationPageReady(ctx context.Context) (bool, error) {
	f := c.profile.Operation
	if f.Ready != "" {
		ok, err := c.page.IsVisible(ctx, f.Ready)
		if err != nil || !ok {
			return false, err
		}
	}
	ok, err := c.page.IsEnabled(ctx, f.Amount)
	if err != nil || !ok {
		return false, err
	}
	return c.page.IsEnabled(ctx, f.Submit)
}

// FillAmount implements core.Console.
func (c *Console) FillAmount(ctx context.Context, amount string) error {
	return c.page.Fill(ctx, c.profile.Operation.Amount, amount)
}

// SelectFullAmount implements core.Console.
func (c *Console) SelectFullAmount(ctx context.Context) error {
	sel := c.profile.Operation.FullAmount
	if sel == "" {
		return fmt.Errorf("profile %q has no full-amount control", c.profile.Name)
	}
	return c.page.Click(ctx, sel)
}

// Submit implements core.Console.
func (c *Console) Submit(ctx context.Context) error {
	return c.page.Click(ctx, c.profile.Operation.Submit)
}

// CreatePlayer implements core.Console.
func (c *Console) CreatePlayer(ctx context.Context, player model.PlayerSpec) error {
	f := c.profile.CreatePlayer
	if err := c.page.Goto(ctx, c.resolve(c.profile.Paths.CreatePlayer)); err != nil {
		return err
	}
	if err := c.page.WaitVisible(ctx, f.Username, c.profile.Timeouts.Element); err != nil {
		return fmt.Errorf("create player form not shown: %w", err)
	}
	if err := c.page.Fill(ctx, f.Username, player.Username); err != nil {
		return err
	}
	if err := c.page.Fill(ctx, f.Password, player.Password); err != nil {
		return err
	}
	if player.Email != "" && f.Email != "" {
		if err := c.page.Fill(ctx, f.Email, player.Email); err != nil {
			return err
		}
	}
	return c.page.Click(ctx, f.Submit)
}

// Screenshot implements core.Console.
func (c *Console) Screenshot(ctx context.Context) ([]byte, error) {
	return c.page.Screenshot(ctx)
}

func nth(selector string, i int) string {
	return fmt.Sprintf("%s >> nth=%d", selector, i)
}

func within(scope, selector string) string {
	return scope + " >> " + selector
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
