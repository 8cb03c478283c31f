// Package browsertest provides in-memory fakes of the browser control ports.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/cashier/internal/core"
)

// ErrClosed is returned by operations on a closed fake.
var ErrClosed = errors.New("browsertest: closed")

// Driver is a fake core.BrowserDriver that records every browser it launches.
type Driver struct {
	// LaunchErr, when set, fails every launch.
	LaunchErr error
	// NewPage customizes pages created by sessions; defaults to NewPage().
	NewPage func() *Page

	mu       sync.Mutex
	browsers []*Browser
	launches atomic.Int64
}

var _ core.BrowserDriver = (*Driver)(nil)

// Launch implements core.BrowserDriver.
func (d *Driver) Launch(_ context.Context, opts core.LaunchOptions) (core.Browser, error) {
	d.launches.Add(1)
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	b := &Browser{driver: d, Options: opts}
	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.mu.Unlock()
	return b, nil
}

// Launches returns how many times Launch was called.
func (d *Driver) Launches() int { return int(d.launches.Load()) }

// Browsers returns the launched browsers in order.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// OpenBrowsers counts launched browsers that have not been closed.
func (d *Driver) OpenBrowsers() int {
	n := 0
	for _, b := range d.Browsers() {
		if !b.Closed() {
			n++
		}
	}
	return n
}

// Browser is a fake core.Browser.
type Browser struct {
	Options core.LaunchOptions
	// CloseErr is returned from Close after marking the browser closed.
	CloseErr error

	driver   *Driver
	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

var _ core.Browser = (*Browser)(nil)

// NewSession implements core.Browser.
func (b *Browser) NewSession(_ context.Context, opts core.SessionOptions) (core.BrowserSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &Session{browser: b, Options: opts, State: []byte(`{"cookies":[]}`), Trace: []byte("trace")}
	b.sessions = append(b.sessions, s)
	return s, nil
}

// Sessions returns the sessions created in this browser.
func (b *Browser) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Session(nil), b.sessions...)
}

// Close implements core.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.CloseErr
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Session is a fake core.BrowserSession.
type Session struct {
	Options core.SessionOptions
	State   []byte
	Trace   []byte

	browser *Browser
	mu      sync.Mutex
	pages   []*Page
	closed  bool
	traced  bool
}

var _ core.BrowserSession = (*Session)(nil)

// NewPage implements core.BrowserSession.
func (s *Session) NewPage(_ context.Context) (core.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var p *Page
	if s.browser != nil && s.browser.driver != nil && s.browser.driver.NewPage != nil {
		p = s.browser.driver.NewPage()
	} else {
		p = NewPage()
	}
	s.pages = append(s.pages, p)
	return p, nil
}

// Pages returns the pages opened in this session.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// ExportState implements core.BrowserSession.
func (s *Session) ExportState(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]byte(nil), s.State...), nil
}

// StopTracing implements core.BrowserSession.
func (s *Session) StopTracing(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Options.Tracing {
		return nil, errors.New("browsertest: tracing not started")
	}
	s.traced = true
	return append([]byte(nil), s.Trace...), nil
}

// Close implements core.BrowserSession.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Page is a scriptable fake core.Page. Element state is keyed by the exact selector string the
// caller passes; hooks run without the page lock held so they may mutate the page.
type Page struct {
	mu       sync.Mutex
	url      string
	timeout  time.Duration
	closed   bool
	probeErr error
	texts    map[string]string
	lists    map[string][]string
	counts   map[string]int
	visible  map[string]bool
	disabled map[string]bool
	errs     map[string]error
	actions  []string

	// OnClick runs after a successful click on selector.
	OnClick func(selector string)
	// OnFill runs after a successful fill.
	OnFill func(selector, value string)
	// OnGoto runs after navigation.
	OnGoto func(url string)
}

var _ core.Page = (*Page)(nil)

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		texts:    map[string]string{},
		lists:    map[string][]string{},
		counts:   map[string]int{},
		visible:  map[string]bool{},
		disabled: map[string]bool{},
		errs:     map[string]error{},
	}
}

// SetURL sets the current URL.
func (p *Page) SetURL(url string) { p.with(func() { p.url = url }) }

// SetText sets the text of selector and makes it visible with count 1 (empty text hides it).
func (p *Page) SetText(selector, text string) {
	p.with(func() {
		p.texts[selector] = text
		if text == "" {
			delete(p.visible, selector)
			delete(p.counts, selector)
			return
		}
		p.visible[selector] = true
		p.counts[selector] = 1
	})
}

// SetTexts sets the texts returned by AllTexts and the count of selector.
func (p *Page) SetTexts(selector string, texts ...string) {
	p.with(func() {
		p.lists[selector] = texts
		p.counts[selector] = len(texts)
	})
}

// SetVisible marks selector visible (count 1) or hidden (count 0).
func (p *Page) SetVisible(selector string, visible bool) {
	p.with(func() {
		p.visible[selector] = visible
		if visible {
			if p.counts[selector] == 0 {
				p.counts[selector] = 1
			}
		} else {
			delete(p.counts, selector)
		}
	})
}

// SetCount sets the element count for selector.
func (p *Page) SetCount(selector string, n int) { p.with(func() { p.counts[selector] = n }) }

// SetDisabled marks selector disabled.
func (p *Page) SetDisabled(selector string, disabled bool) {
	p.with(func() { p.disabled[selector] = disabled })
}

// FailOn makes every action on selector return err.
func (p *Page) FailOn(selector string, err error) { p.with(func() { p.errs[selector] = err }) }

// SetProbeErr makes Probe fail.
func (p *Page) SetProbeErr(err error) { p.with(func() { p.probeErr = err }) }

// Actions returns the recorded "goto", "fill", "click" and "press" actions.
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Timeout returns the last value passed to SetTimeout.
func (p *Page) Timeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) with(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Goto implements core.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.check(ctx, url); err != nil {
		return err
	}
	p.with(func() {
		p.url = url
		p.actions = append(p.actions, "goto "+url)
	})
	if p.OnGoto != nil {
		p.OnGoto(url)
	}
	return nil
}

// URL implements core.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// SetTimeout implements core.Page.
func (p *Page) SetTimeout(d time.Duration) { p.with(func() { p.timeout = d }) }

// Probe implements core.Page.
func (p *Page) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.probeErr
}

// Count implements core.Page.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if err := p.check(ctx, selector); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector], nil
}

// IsVisible implements core.Page.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := p.check(ctx, selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

// IsEnabled implements core.Page.
func (p *Page) IsEnabled(ctx context.Context, selector string) (bool, error) {
	if err := p.check(ctx, selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector] > 0 && !p.disabled[selector], nil
}

// WaitVisible implements core.Page by polling until selector is visible or timeout passes.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := p.IsVisible(ctx, selector)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browsertest: %q not visible after %s", selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Fill implements core.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.check(ctx, selector); err != nil {
		return err
	}
	p.with(func() {
		p.texts[selector] = value
		p.actions = append(p.actions, "fill "+selector+"="+value)
	})
	if p.OnFill != nil {
		p.OnFill(selector, value)
	}
	return nil
}

// Click implements core.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.check(ctx, selector); err != nil {
		return err
	}
	p.with(func() { p.actions = append(p.actions, "click "+selector) })
	if p.OnClick != nil {
		p.OnClick(selector)
	}
	return nil
}

// Press implements core.Page.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	if err := p.check(ctx, selector); err != nil {
		return err
	}
	p.with(func() { p.actions = append(p.actions, "press "+selector+" "+key) })
	return nil
}

// Text implements core.Page.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.check(ctx, selector); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

// AllTexts implements core.Page.
func (p *Page) AllTexts(ctx context.Context, selector string) ([]string, error) {
	if err := p.check(ctx, selector); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lists[selector]...), nil
}

// Screenshot implements core.Page.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("png"), nil
}

// Close implements core.Page.
func (p *Page) Close() error {
	p.with(func() { p.closed = true })
	return nil
}

func (p *Page) check(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.errs[selector]
}
