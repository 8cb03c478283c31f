package config

import "strings"

// ArtifactBackend names where screenshots and traces are written.
type ArtifactBackend string

const (
	// ArtifactBackendNone disables artifact capture.
	ArtifactBackendNone ArtifactBackend = "none"
	// ArtifactBackendLocal writes artifacts under a directory.
	ArtifactBackendLocal ArtifactBackend = "local"
	// ArtifactBackendMinio uploads artifacts to an S3-compatible bucket.
	ArtifactBackendMinio ArtifactBackend = "minio"
)

// ArtifactsConfig contains artifact storage configuration.
type ArtifactsConfig struct {
	Backend  ArtifactBackend `env:"ARTIFACTS_BACKEND"   envDefault:"local"`
	LocalDir string          `env:"ARTIFACTS_LOCAL_DIR" envDefault:"./artifacts"`

	Minio MinioConfig `envPrefix:"ARTIFACTS_MINIO_"`
}

// MinioConfig holds S3-compatible endpoint settings.
type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"     envDefault:"cashier-artifacts"`
	Region    string `env:"REGION"`
	Secure    bool   `env:"SECURE"     envDefault:"true"`
}

// Sanitize normalises the backend and falls back to none when its settings are incomplete.
func (c *ArtifactsConfig) Sanitize() {
	c.Backend = ArtifactBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	c.LocalDir = strings.TrimSpace(c.LocalDir)
	c.Minio.Endpoint = strings.TrimSpace(c.Minio.Endpoint)

	switch c.Backend {
	case ArtifactBackendLocal:
		if c.LocalDir == "" {
			c.Backend = ArtifactBackendNone
		}
	case ArtifactBackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			c.Backend = ArtifactBackendNone
		}
	default:
		c.Backend = ArtifactBackendNone
	}
}
