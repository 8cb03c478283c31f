// Package browser implements the core browser ports with Playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"

	"github.com/target/cashier/internal/core"
)

const (
	viewportWidth  = 1366
	viewportHeight = 900
)

// blockedResourceTypes are aborted when resource blocking is on.
var blockedResourceTypes = map[string]bool{
	"image": true,
	"media": true,
	"font":  true,
}

// DriverOptions configures the Playwright driver.
type DriverOptions struct {
	// Install downloads the Playwright driver and Chromium before starting.
	Install bool
	Logger  *slog.Logger
}

// Driver implements core.BrowserDriver on a single Playwright server process.
type Driver struct {
	pw     *playwright.Playwright
	logger *slog.Logger
}

var _ core.BrowserDriver = (*Driver)(nil)

// NewDriver starts Playwright, installing it first when asked to.
func NewDriver(opts DriverOptions) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	return &Driver{pw: pw, logger: logger.With("component", "browser_driver")}, nil
}

// Stop shuts the Playwright server down. Browsers still open are killed with it.
func (d *Driver) Stop() error {
	if d == nil || d.pw == nil {
		return nil
	}
	return d.pw.Stop()
}

// Launch implements core.BrowserDriver.
func (d *Driver) Launch(ctx context.Context, opts core.LaunchOptions) (core.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &Browser{browser: b, logger: d.logger}, nil
}

// Browser implements core.Browser.
type Browser struct {
	browser playwright.Browser
	logger  *slog.Logger
}

// NewSession implements core.Browser.
func (b *Browser) NewSession(ctx context.Context, opts core.SessionOptions) (core.BrowserSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewportWidth, Height: viewportHeight},
	}
	if len(opts.StorageState) > 0 {
		path, cleanup, err := writeTemp("state-*.json", opts.StorageState)
		if err != nil {
			return nil, fmt.Errorf("stage storage state: %w", err)
		}
		defer cleanup()
		ctxOpts.StorageStatePath = playwright.String(path)
	}

	bc, err := b.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if opts.BlockResources {
		if err := bc.Route("**/*", blockResources); err != nil {
			_ = bc.Close()
			return nil, fmt.Errorf("install resource filter: %w", err)
		}
	}
	if opts.Tracing {
		if err := bc.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		}); err != nil {
			_ = bc.Close()
			return nil, fmt.Errorf("start tracing: %w", err)
		}
	}
	return &Session{context: bc, tracing: opts.Tracing}, nil
}

// Close implements core.Browser.
func (b *Browser) Close() error {
	return b.browser.Close()
}

func blockResources(route playwright.Route) {
	if blockedResourceTypes[route.Request().ResourceType()] {
		_ = route.Abort()
		return
	}
	_ = route.Continue()
}

// Session implements core.BrowserSession over a Playwright browser context.
type Session struct {
	context playwright.BrowserContext
	tracing bool
}

// NewPage implements core.BrowserSession.
func (s *Session) NewPage(ctx context.Context) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &Page{page: p}, nil
}

// ExportState implements core.BrowserSession. The blob is Playwright's storage-state JSON.
func (s *Session) ExportState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "cashier-state-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "state.json")
	if _, err := s.context.StorageState(path); err != nil {
		return nil, fmt.Errorf("export storage state: %w", err)
	}
	return os.ReadFile(path)
}

// StopTracing implements core.BrowserSession.
func (s *Session) StopTracing(ctx context.Context) ([]byte, error) {
	if !s.tracing {
		return nil, errors.New("tracing was not started")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "cashier-trace-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "trace.zip")
	if err := s.context.Tracing().Stop(path); err != nil {
		return nil, fmt.Errorf("stop tracing: %w", err)
	}
	s.tracing = false
	return os.ReadFile(path)
}

// Close implements core.BrowserSession.
func (s *Session) Close() error {
	return s.context.Close()
}

func writeTemp(pattern string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
