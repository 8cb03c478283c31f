package config

import "time"

// DBConfig contains PostgreSQL configuration for the optional job outcome archive.
type DBConfig struct {
	// Enabled turns the archive on. Without it terminal records live only in memory.
	Enabled  bool   `env:"ENABLED"                 envDefault:"false"`
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"cashier"`
	Password string `env:"PASSWORD"                envDefault:"cashier"`
	Name     string `env:"NAME"                    envDefault:"cashier"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// ArchiveRetention bounds how long archived outcomes are kept; 0 keeps them forever.
	ArchiveRetention     time.Duration `env:"ARCHIVE_RETENTION"      envDefault:"720h"`
	ArchivePruneInterval time.Duration `env:"ARCHIVE_PRUNE_INTERVAL" envDefault:"1h"`
}

// Sanitize applies guardrails to archive retention values.
func (c *DBConfig) Sanitize() {
	if c.ArchiveRetention < 0 {
		c.ArchiveRetention = 0
	}
	if c.ArchivePruneInterval <= 0 {
		c.ArchivePruneInterval = time.Hour
	}
}

// RedisConfig contains Redis configuration for the session state store.
type RedisConfig struct {
	// Enabled selects Redis for session state. Otherwise state is kept in process memory.
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"cashier:state:"`
}
