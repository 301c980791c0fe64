// Package config loads the edge proxy's configuration from a YAML file,
// a .env file, and struct-tagged environment variables (envdecode +
// godotenv + yaml.v3).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode names the CLI subcommand / mode-controller state.
type Mode string

const (
	ModeEdgeDynamic Mode = "edge-dynamic"
	ModeEdgeStrict  Mode = "edge-strict"
	ModeOffline     Mode = "offline"
)

// ServerConfig controls the downstream HTTP listener.
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port            int           `json:"port" yaml:"port" env:"SERVER_PORT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	SlowClientTimeout time.Duration `json:"slow_client_timeout" yaml:"slow_client_timeout" env:"SERVER_SLOW_CLIENT_TIMEOUT"`
	RateLimitPerSecond int         `json:"rate_limit_per_second" yaml:"rate_limit_per_second" env:"SERVER_RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int         `json:"rate_limit_burst" yaml:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST"`
}

// UpstreamConfig controls the upstream feature-management server client.
type UpstreamConfig struct {
	URL                string        `json:"url" yaml:"url" env:"UPSTREAM_URL"`
	AuthHeaderName     string        `json:"auth_header_name" yaml:"auth_header_name" env:"UPSTREAM_AUTH_HEADER_NAME"`
	RequestTimeout     time.Duration `json:"request_timeout" yaml:"request_timeout" env:"UPSTREAM_REQUEST_TIMEOUT"`
	SocketTimeout      time.Duration `json:"socket_timeout" yaml:"socket_timeout" env:"UPSTREAM_SOCKET_TIMEOUT"`
	CustomHeaders      map[string]string `json:"custom_headers" yaml:"custom_headers"`
	RefreshInterval    time.Duration `json:"refresh_interval" yaml:"refresh_interval" env:"UPSTREAM_REFRESH_INTERVAL"`
	RevalidateInterval time.Duration `json:"revalidate_interval" yaml:"revalidate_interval" env:"UPSTREAM_REVALIDATE_INTERVAL"`
	MetricsInterval    time.Duration `json:"metrics_interval" yaml:"metrics_interval" env:"UPSTREAM_METRICS_INTERVAL"`
	Streaming          bool          `json:"streaming" yaml:"streaming" env:"UPSTREAM_STREAMING"`
}

// TLSConfig controls the upstream client's TLS identity.
type TLSConfig struct {
	ClientCertFile     string `json:"client_cert_file" yaml:"client_cert_file" env:"UPSTREAM_TLS_CLIENT_CERT_FILE"`
	ClientKeyFile      string `json:"client_key_file" yaml:"client_key_file" env:"UPSTREAM_TLS_CLIENT_KEY_FILE"`
	KeystoreFile       string `json:"keystore_file" yaml:"keystore_file" env:"UPSTREAM_TLS_KEYSTORE_FILE"`
	KeystorePassphrase string `json:"keystore_passphrase" yaml:"keystore_passphrase" env:"UPSTREAM_TLS_KEYSTORE_PASSPHRASE"`
	TrustedRootFile    string `json:"trusted_root_file" yaml:"trusted_root_file" env:"UPSTREAM_TLS_TRUSTED_ROOT_FILE"`
	SkipVerify         bool   `json:"skip_verify" yaml:"skip_verify" env:"UPSTREAM_TLS_SKIP_VERIFY"`
}

// AuthConfig controls which tokens this instance pre-trusts and accepts.
type AuthConfig struct {
	TrustedTokens     []string      `json:"trusted_tokens" yaml:"trusted_tokens"`
	StrictTokens      []string      `json:"strict_tokens" yaml:"strict_tokens"`
	InvalidTokenTTL   time.Duration `json:"invalid_token_ttl" yaml:"invalid_token_ttl" env:"AUTH_INVALID_TOKEN_TTL"`
}

// PersistenceConfig controls the snapshot backend.
type PersistenceConfig struct {
	Backend  string `json:"backend" yaml:"backend" env:"PERSISTENCE_BACKEND"` // memory|file|redis|postgres
	FilePath string `json:"file_path" yaml:"file_path" env:"PERSISTENCE_FILE_PATH"`
	RedisURL string `json:"redis_url" yaml:"redis_url" env:"PERSISTENCE_REDIS_URL"`
	RedisKey string `json:"redis_key" yaml:"redis_key" env:"PERSISTENCE_REDIS_KEY"`
	PostgresDSN   string `json:"postgres_dsn" yaml:"postgres_dsn" env:"PERSISTENCE_POSTGRES_DSN"`
	SaveThrottle  time.Duration `json:"save_throttle" yaml:"save_throttle" env:"PERSISTENCE_SAVE_THROTTLE"`
}

// MetricsConfig controls the metrics aggregator's bounds.
type MetricsConfig struct {
	MaxBuckets          int `json:"max_buckets" yaml:"max_buckets" env:"METRICS_MAX_BUCKETS"`
	MaxImpactLabelSets  int `json:"max_impact_label_sets" yaml:"max_impact_label_sets" env:"METRICS_MAX_IMPACT_LABEL_SETS"`
	SenderConcurrency   int `json:"sender_concurrency" yaml:"sender_concurrency" env:"METRICS_SENDER_CONCURRENCY"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// BackstageConfig individually toggles the internal diagnostic endpoints.
type BackstageConfig struct {
	EnableTokens       bool `json:"enable_tokens" yaml:"enable_tokens" env:"BACKSTAGE_ENABLE_TOKENS"`
	EnableFeatures     bool `json:"enable_features" yaml:"enable_features" env:"BACKSTAGE_ENABLE_FEATURES"`
	EnableInstanceData bool `json:"enable_instance_data" yaml:"enable_instance_data" env:"BACKSTAGE_ENABLE_INSTANCEDATA"`
	EnableMetricsBatch bool `json:"enable_metrics_batch" yaml:"enable_metrics_batch" env:"BACKSTAGE_ENABLE_METRICSBATCH"`
}

// Config is the top-level configuration structure.
type Config struct {
	Mode        Mode              `json:"mode" yaml:"mode" env:"EDGE_MODE"`
	AppName     string            `json:"app_name" yaml:"app_name" env:"EDGE_APP_NAME"`
	BootstrapFile string          `json:"bootstrap_file" yaml:"bootstrap_file" env:"EDGE_BOOTSTRAP_FILE"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Upstream    UpstreamConfig    `json:"upstream" yaml:"upstream"`
	TLS         TLSConfig         `json:"tls" yaml:"tls"`
	Auth        AuthConfig        `json:"auth" yaml:"auth"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Backstage   BackstageConfig   `json:"backstage" yaml:"backstage"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Mode:    ModeEdgeDynamic,
		AppName: "unleash-edge",
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3063,
			ShutdownTimeout:   10 * time.Second,
			SlowClientTimeout: 15 * time.Second,
			RateLimitPerSecond: 200,
			RateLimitBurst:     400,
		},
		Upstream: UpstreamConfig{
			AuthHeaderName:     "Authorization",
			RequestTimeout:     5 * time.Second,
			SocketTimeout:      5 * time.Second,
			RefreshInterval:    15 * time.Second,
			RevalidateInterval: 60 * time.Second,
			MetricsInterval:    60 * time.Second,
		},
		Auth: AuthConfig{
			InvalidTokenTTL: 60 * time.Second,
		},
		Persistence: PersistenceConfig{
			Backend:      "memory",
			SaveThrottle: 15 * time.Second,
		},
		Metrics: MetricsConfig{
			MaxBuckets:         10000,
			MaxImpactLabelSets: 1000,
			SenderConcurrency:  5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Backstage: BackstageConfig{
			EnableTokens:       true,
			EnableFeatures:     true,
			EnableInstanceData: true,
			EnableMetricsBatch: true,
		},
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE env var
// or ./config.yaml) and environment-variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a specific YAML file, applying no
// environment overrides. Used by tests and by every subcommand when the
// --config flag is given.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate enforces the startup-fatal configuration conditions: a missing
// upstream URL in Edge mode, a missing bootstrap file in offline mode, and
// an incomplete persistence backend configuration. Unreadable TLS material
// is checked by the upstream client at construction time, since it owns the
// file I/O.
func (c *Config) Validate() error {
	if c.Mode != ModeOffline && strings.TrimSpace(c.Upstream.URL) == "" {
		return fmt.Errorf("upstream.url is required in %s mode", c.Mode)
	}
	if c.Mode == ModeOffline && strings.TrimSpace(c.BootstrapFile) == "" {
		return fmt.Errorf("bootstrap_file is required in offline mode")
	}

	switch c.Persistence.Backend {
	case "", "memory", "file", "redis", "postgres":
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Persistence.Backend == "file" && strings.TrimSpace(c.Persistence.FilePath) == "" {
		return fmt.Errorf("persistence.file_path is required for the file backend")
	}
	if c.Persistence.Backend == "redis" && strings.TrimSpace(c.Persistence.RedisURL) == "" {
		return fmt.Errorf("persistence.redis_url is required for the redis backend")
	}
	if c.Persistence.Backend == "postgres" && strings.TrimSpace(c.Persistence.PostgresDSN) == "" {
		return fmt.Errorf("persistence.postgres_dsn is required for the postgres backend")
	}
	return nil
}
