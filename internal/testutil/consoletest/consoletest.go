// Package consoletest provides a scriptable core.Console for service tests.
package consoletest

import (
	"context"
	"errors"
	"sync"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/rows"
)

// Console is a scriptable core.Console. Exported fields may be set before use; the hooks run
// without the internal lock held and may call the setters.
type Console struct {
	mu sync.Mutex

	Authenticated bool
	LoginErrs     []error // per attempt; nil entries succeed
	LoginCalls    int

	Feedback string
	URL      string

	Listing       map[core.Operation][]rows.Candidate
	BalanceAfter  []rows.Candidate // balance listing served once something was submitted
	SearchErr     error
	Searches      []core.Operation
	OpenErr       error
	ReadyAfter    int
	ReadyCalls    int
	Filled        []string
	FullSelected  bool
	Submits       int
	OnSubmit      func(c *Console)
	Created       []model.PlayerSpec
	OnCreate      func(c *Console)
	CreateErr     error
	ScreenshotErr error
	Screenshots   int
}

var _ core.Console = (*Console)(nil)

// New returns a console sitting on the player listing.
func New() *Console {
	return &Console{
		URL:     "https://console.example/players",
		Listing: map[core.Operation][]rows.Candidate{},
	}
}

// Login implements core.Console.
func (c *Console) Login(_ context.Context, _ model.AgentCredentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.LoginCalls
	c.LoginCalls++
	if i < len(c.LoginErrs) && c.LoginErrs[i] != nil {
		return c.LoginErrs[i]
	}
	c.Authenticated = true
	return nil
}

// IsAuthenticated implements core.Console.
func (c *Console) IsAuthenticated(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Authenticated, nil
}

// FeedbackText implements core.Console.
func (c *Console) FeedbackText(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Feedback, nil
}

// CurrentURL implements core.Console.
func (c *Console) CurrentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.URL
}

// SearchRows implements core.Console.
func (c *Console) SearchRows(_ context.Context, _ string, op core.Operation) ([]rows.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Searches = append(c.Searches, op)
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	if op == core.OperationBalance && c.Submits > 0 && c.BalanceAfter != nil {
		return c.BalanceAfter, nil
	}
	return c.Listing[op], nil
}

// OpenOperation implements core.Console.
func (c *Console) OpenOperation(_ context.Context, _ rows.Candidate, op core.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.URL = "https://console.example/players/" + string(op)
	return nil
}

// OperationPageReady implements core.Console.
func (c *Console) OperationPageReady(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadyCalls++
	return c.ReadyCalls > c.ReadyAfter, nil
}

// FillAmount implements core.Console.
func (c *Console) FillAmount(_ context.Context, amount string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Filled = append(c.Filled, amount)
	return nil
}

// SelectFullAmount implements core.Console.
func (c *Console) SelectFullAmount(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FullSelected = true
	return nil
}

// Submit implements core.Console.
func (c *Console) Submit(context.Context) error {
	c.mu.Lock()
	c.Submits++
	hook := c.OnSubmit
	c.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

// CreatePlayer implements core.Console.
func (c *Console) CreatePlayer(_ context.Context, p model.PlayerSpec) error {
	c.mu.Lock()
	c.Created = append(c.Created, p)
	hook, err := c.OnCreate, c.CreateErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(c)
	}
	return nil
}

// Screenshot implements core.Console.
func (c *Console) Screenshot(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Screenshots++
	if c.ScreenshotErr != nil {
		return nil, c.ScreenshotErr
	}
	return []byte("\x89PNG"), nil
}

// SetFeedback replaces the visible feedback text.
func (c *Console) SetFeedback(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Feedback = s
}

// SetURL moves the console to another page.
func (c *Console) SetURL(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.URL = s
}

// SubmitCount returns how many times Submit was called.
func (c *Console) SubmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Submits
}

// PlayerRow builds an actionable listing row for identity.
func PlayerRow(index int, identity, balance string) rows.Candidate {
	return rows.Candidate{
		Index:                index,
		HasActionableControl: true,
		DisplayedIdentities:  []string{identity},
		NormalizedRowText:    identity + " " + balance,
		BalanceText:          balance,
	}
}

// ErrUnavailable is a convenient transient failure for scripts.
var ErrUnavailable = errors.New("console unavailable")
