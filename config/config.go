package config

import (
	"os"
	"strings"

	"github.com/target/cashier/internal/domain/model"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server configuration
//   - jobs.go: job manager, session pool, browser, funds and console configuration
//   - database.go: Postgres archive and Redis state store configuration
//   - artifacts.go: screenshot and trace storage
//   - observability.go: metrics
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, debug level).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	HTTP HTTPConfig

	Jobs    JobsConfig
	Pool    PoolConfig
	Browser BrowserConfig
	Funds   FundsConfig
	Console ConsoleConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Artifacts ArtifactsConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Jobs.Sanitize()
	c.Pool.Sanitize()
	c.Browser.Sanitize()
	c.Funds.Sanitize()
	c.Console.Sanitize()
	c.Postgres.Sanitize()
	c.Artifacts.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// ExecutionDefaults returns the options applied to requests that omit them.
func (c *AppConfig) ExecutionDefaults() model.ExecutionOptions {
	return model.ExecutionOptions{
		Headless:  c.Browser.Headless,
		TimeoutMs: int(c.Jobs.Timeout.Milliseconds()),
	}
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
