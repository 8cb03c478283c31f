package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/target/cashier/internal/core"
)

// Page implements core.Page. Playwright calls do not take a context; remaining deadline time is
// passed as the per-call timeout instead.
type Page struct {
	page playwright.Page
}

var _ core.Page = (*Page)(nil)

// Goto implements core.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// URL implements core.Page.
func (p *Page) URL() string { return p.page.URL() }

// SetTimeout implements core.Page.
func (p *Page) SetTimeout(d time.Duration) {
	p.page.SetDefaultTimeout(float64(d.Milliseconds()))
	p.page.SetDefaultNavigationTimeout(float64(d.Milliseconds()))
}

// Probe implements core.Page.
func (p *Page) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.page.IsClosed() {
		return fmt.Errorf("page is closed")
	}
	_, err := p.page.Evaluate("1")
	return err
}

// Count implements core.Page.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.page.Locator(selector).Count()
}

// IsVisible implements core.Page. It looks at the first match only.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.page.Locator(selector).First().IsVisible()
}

// IsEnabled implements core.Page.
func (p *Page) IsEnabled(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	loc := p.page.Locator(selector).First()
	n, err := loc.Count()
	if err != nil || n == 0 {
		return false, err
	}
	return loc.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: timeoutMs(ctx)})
}

// WaitVisible implements core.Page.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := float64(timeout.Milliseconds())
	if left := timeoutMs(ctx); left != nil && *left < ms {
		ms = *left
	}
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(ms),
	})
}

// Fill implements core.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Click implements core.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Press implements core.Page.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{Timeout: timeoutMs(ctx)})
}

// Text implements core.Page.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutMs(ctx)})
}

// AllTexts implements core.Page.
func (p *Page) AllTexts(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Locator(selector).AllInnerTexts()
}

// Screenshot implements core.Page.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeoutMs(ctx),
	})
}

// Close implements core.Page.
func (p *Page) Close() error {
	return p.page.Close()
}

// timeoutMs returns the time left until ctx's deadline in milliseconds, or nil when ctx has no
// deadline and the page default applies.
func timeoutMs(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	left := time.Until(deadline).Milliseconds()
	if left < 1 {
		left = 1
	}
	return playwright.Float(float64(left))
}
