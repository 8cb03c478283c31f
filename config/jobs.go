package config

import (
	"strings"
	"time"
)

// JobsConfig contains job manager configuration.
type JobsConfig struct {
	// Concurrency bounds how many jobs run at once.
	Concurrency int `env:"JOBS_CONCURRENCY" envDefault:"2"`

	// TTL is how long a terminal record stays readable before it expires.
	TTL time.Duration `env:"JOBS_TTL" envDefault:"1h"`

	// SweepInterval is the background expiry period.
	SweepInterval time.Duration `env:"JOBS_SWEEP_INTERVAL" envDefault:"1m"`

	// Timeout applies to jobs that do not set timeoutMs.
	Timeout time.Duration `env:"JOBS_TIMEOUT" envDefault:"5m"`
}

// Sanitize applies guardrails to job manager configuration values.
func (c *JobsConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepInterval > c.TTL {
		c.SweepInterval = c.TTL
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
}

// PoolConfig contains browser session pool configuration.
type PoolConfig struct {
	MaxAgents        int           `env:"POOL_MAX_AGENTS"        envDefault:"8"`
	TTL              time.Duration `env:"POOL_TTL"               envDefault:"10m"`
	ResourceBlocking bool          `env:"POOL_RESOURCE_BLOCKING" envDefault:"true"`
	// StateTTL is how long an exported login state stays usable.
	StateTTL time.Duration `env:"POOL_STATE_TTL" envDefault:"12h"`
	// StateEncryptionKey seals stored session state. A 64-char hex key is used as is; any other
	// value is hashed. Empty stores state unsealed.
	StateEncryptionKey string `env:"STATE_ENCRYPTION_KEY"`
}

// Sanitize applies guardrails to pool configuration values.
func (c *PoolConfig) Sanitize() {
	if c.MaxAgents < 1 {
		c.MaxAgents = 1
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 12 * time.Hour
	}
}

// BrowserConfig contains Playwright and console endpoint configuration.
type BrowserConfig struct {
	// BaseURL is the agent console root, e.g. https://agents.example.com.
	BaseURL string `env:"BROWSER_BASE_URL"`

	Headless bool `env:"BROWSER_HEADLESS" envDefault:"true"`

	// Install downloads the Playwright driver and Chromium on start.
	Install bool `env:"BROWSER_INSTALL" envDefault:"false"`

	DefaultTimeout time.Duration `env:"BROWSER_DEFAULT_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to browser configuration values.
func (c *BrowserConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
}

// FundsConfig tunes the deposit/withdrawal state machine.
type FundsConfig struct {
	Tolerance     float64       `env:"FUNDS_TOLERANCE"      envDefault:"0.01"`
	VerifyTimeout time.Duration `env:"FUNDS_VERIFY_TIMEOUT" envDefault:"10s"`
	PollInterval  time.Duration `env:"FUNDS_POLL_INTERVAL"  envDefault:"250ms"`
	StepTimeout   time.Duration `env:"FUNDS_STEP_TIMEOUT"   envDefault:"30s"`
	AuthAttempts  int           `env:"FUNDS_AUTH_ATTEMPTS"  envDefault:"2"`
}

// Sanitize applies guardrails to funds configuration values.
func (c *FundsConfig) Sanitize() {
	if c.Tolerance < 0 {
		c.Tolerance = 0.01
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.PollInterval > c.VerifyTimeout {
		c.PollInterval = c.VerifyTimeout
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.AuthAttempts < 1 {
		c.AuthAttempts = 1
	}
}

// ConsoleConfig selects the console selector profile.
type ConsoleConfig struct {
	// ProfilePath points at a YAML selector profile. Empty uses the embedded default.
	ProfilePath string `env:"CASHIER_CONSOLE_PROFILE"`
}

// Sanitize trims the profile path.
func (c *ConsoleConfig) Sanitize() {
	c.ProfilePath = strings.TrimSpace(c.ProfilePath)
}
