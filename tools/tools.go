//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` or run through `go run`; only mockgen is
// tracked in go.mod because internal/mocks generates through it.
package tools

// Development tools:
//
// mockgen - gomock generator for internal/mocks
//   Run: go generate ./internal/mocks
//   Docs: https://github.com/uber-go/mock
//
// Playwright driver and Chromium - required by internal/adapters/browser
//   Install: go run github.com/playwright-community/playwright-go/cmd/playwright@v0.5200.1 install --with-deps chromium
//   Or set BROWSER_INSTALL=true to install on startup.
//   Docs: https://github.com/playwright-community/playwright-go
//
// golangci-lint - linting
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
