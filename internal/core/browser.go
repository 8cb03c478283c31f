package core

import (
	"context"
	"time"
)

// This file contains the browser control ports. The session pool and the console adapter depend
// on these interfaces; internal/adapters/browser provides the Playwright implementation.

// LaunchOptions configure a browser process.
type LaunchOptions struct {
	Headless bool
}

// SessionOptions configure an isolated browser session (a Playwright context).
type SessionOptions struct {
	// StorageState is an exported session state to import; nil starts a clean session.
	StorageState []byte
	// BlockResources aborts image, media and font requests.
	BlockResources bool
	// Tracing starts a diagnostic trace that is collected with StopTracing.
	Tracing bool
}

// BrowserDriver launches browsers.
type BrowserDriver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewSession(ctx context.Context, opts SessionOptions) (BrowserSession, error)
	Close() error
}

// BrowserSession is an isolated cookie/storage jar within a browser.
type BrowserSession interface {
	NewPage(ctx context.Context) (Page, error)
	// ExportState returns the session cookies and local storage as an opaque blob.
	ExportState(ctx context.Context) ([]byte, error)
	// StopTracing ends a trace started through SessionOptions.Tracing and returns its archive.
	StopTracing(ctx context.Context) ([]byte, error)
	Close() error
}

// Page is a single tab. Selectors use the Playwright selector syntax, including ">>" chaining
// and "nth=<i>" to scope a selector to the i-th match.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	SetTimeout(d time.Duration)
	// Probe performs a cheap round-trip and fails if the page is no longer usable.
	Probe(ctx context.Context) error

	Count(ctx context.Context, selector string) (int, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	IsEnabled(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Press(ctx context.Context, selector, key string) error
	Text(ctx context.Context, selector string) (string, error)
	AllTexts(ctx context.Context, selector string) ([]string, error)

	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
