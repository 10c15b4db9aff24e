package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. SCALEIN_CONTROL_PLANE__TIMEOUT=30s sets control_plane.timeout.
const EnvPrefix = "SCALEIN_"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	ControlPlane ControlPlaneConfig `koanf:"control_plane"`
	Credentials  CredentialsConfig  `koanf:"credentials"`
	Report       ReportConfig       `koanf:"report"`
	Log          LogConfig          `koanf:"log"`
}

// ServerConfig represents HTTP trigger configuration
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BasePath     string        `koanf:"base_path"` // Optional base path for reverse proxy (e.g., "/scale-in")
}

// ControlPlaneConfig describes how the cluster management endpoint is reached
type ControlPlaneConfig struct {
	Scheme  string        `koanf:"scheme"`
	Port    int           `koanf:"port"`
	Path    string        `koanf:"path"`
	Timeout time.Duration `koanf:"timeout"`
	TLS     *TLSConfig    `koanf:"tls"`
}

// CredentialsConfig holds the static credentials used when neither the
// invocation nor the environment supplies any.
type CredentialsConfig struct {
	Org      string `koanf:"org"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// ReportConfig configures where invocation reports are published
type ReportConfig struct {
	TTL  time.Duration `koanf:"ttl"`
	Etcd *EtcdConfig   `koanf:"etcd"`
}

// EtcdConfig represents etcd connection configuration
type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	Prefix      string        `koanf:"prefix"`
	TLS         *TLSConfig    `koanf:"tls"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level string `koanf:"level"`
}

// TLSConfig represents TLS configuration for outgoing connections
type TLSConfig struct {
	CA   string `koanf:"ca"`
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// Default returns the configuration used for keys absent from every source
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 3 * time.Minute,
		},
		ControlPlane: ControlPlaneConfig{
			Scheme:  "http",
			Port:    14000,
			Path:    "/api/v1",
			Timeout: 10 * time.Second,
		},
		Report: ReportConfig{
			TTL: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified file and the environment.
// An empty path skips the file and uses defaults plus environment overrides.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadOptional behaves like Load but tolerates a missing file at configPath
func LoadOptional(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			configPath = ""
		}
	}
	return Load(configPath)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.ControlPlane.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("control_plane.scheme must be http or https, got %q", c.ControlPlane.Scheme)
	}

	if c.ControlPlane.Port <= 0 || c.ControlPlane.Port > 65535 {
		return fmt.Errorf("control_plane.port is out of range: %d", c.ControlPlane.Port)
	}

	if !strings.HasPrefix(c.ControlPlane.Path, "/") {
		return fmt.Errorf("control_plane.path must start with '/'")
	}

	if c.ControlPlane.Timeout <= 0 {
		return fmt.Errorf("control_plane.timeout must be positive")
	}

	if c.Report.TTL <= 0 {
		return fmt.Errorf("report.ttl must be positive")
	}

	if c.Report.Etcd != nil && len(c.Report.Etcd.Endpoints) == 0 {
		return fmt.Errorf("report.etcd.endpoints is required when report.etcd is set")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}

	return nil
}
