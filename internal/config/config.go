// Package config loads the server configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the database, JWT keys and other server state.
	DataDir string `yaml:"data_dir"`

	// Auth controls token issuing.
	Auth AuthSettings `yaml:"auth"`

	// Realtime controls the observer event stream on /realtime.
	Realtime RealtimeSettings `yaml:"realtime"`

	// Bootstrap optionally creates an admin account on first start.
	Bootstrap BootstrapSettings `yaml:"bootstrap"`
}

// AuthSettings holds token issuing configuration.
type AuthSettings struct {
	// Issuer is the JWT issuer claim.
	Issuer string `yaml:"issuer"`

	// TokenExpiryHours is the access token lifetime.
	TokenExpiryHours int `yaml:"token_expiry_hours"`

	// RefreshExpiryHours is the refresh token lifetime.
	RefreshExpiryHours int `yaml:"refresh_expiry_hours"`
}

// RealtimeSettings holds the observer stream configuration.
type RealtimeSettings struct {
	// Enabled determines whether the /realtime endpoint is served.
	Enabled bool `yaml:"enabled"`
}

// BootstrapSettings seeds the first admin account. The password is only
// used when the account does not exist yet.
type BootstrapSettings struct {
	AdminName     string `yaml:"admin_name"`
	AdminPassword string `yaml:"admin_password"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DataDir:    "/var/lib/kestrel",
		Auth: AuthSettings{
			Issuer:             "kestrel",
			TokenExpiryHours:   24,
			RefreshExpiryHours: 24 * 7,
		},
		Realtime: RealtimeSettings{
			Enabled: true,
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Load reads a YAML config file over the defaults. Environment variables
// referenced as ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Auth.TokenExpiryHours <= 0 {
		return fmt.Errorf("token_expiry_hours must be positive")
	}
	if c.Auth.RefreshExpiryHours <= 0 {
		return fmt.Errorf("refresh_expiry_hours must be positive")
	}
	return nil
}

// DatabasePath returns the SQLite file path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "kestrel.db")
}
