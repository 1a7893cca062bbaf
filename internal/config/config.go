// Package config provides configuration loading for scanpi.
// Supports a YAML file, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// batchDirPattern limits the remote staging directory to characters that
// need no quoting on either side of scp.
var batchDirPattern = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// TempBatchDir selects a fresh directory under /tmp on the scanner host.
const TempBatchDir = "tmp"

// Config holds all configuration for scanpi.
type Config struct {
	Target        string              `yaml:"target"`
	BatchDir      string              `yaml:"batch_dir"`
	Format        string              `yaml:"format"`
	Resolution    int                 `yaml:"resolution"`
	Remote        RemoteConfig        `yaml:"remote"`
	Paperless     PaperlessConfig     `yaml:"paperless"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RemoteConfig holds the ssh client settings.
type RemoteConfig struct {
	SSHBinary  string   `yaml:"ssh_binary"`
	SCPBinary  string   `yaml:"scp_binary"`
	SSHOptions []string `yaml:"ssh_options"`
}

// PaperlessConfig holds the document-management upload settings.
type PaperlessConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig holds job history settings.
type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultPath returns $XDG_CONFIG_HOME/scanpi/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "scanpi", "config.yaml")
}

// DefaultHistoryPath returns $XDG_DATA_HOME/scanpi/history.db.
func DefaultHistoryPath() string {
	return filepath.Join(xdg.DataHome, "scanpi", "history.db")
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path selects DefaultPath, which may be missing; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHistory is Load for commands that only read the job history. Scan
// settings such as the target are not required.
func LoadHistory(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateHistory(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("parse config file %s", path), err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, domain.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg, nil
}

// DefaultConfig returns a configuration with the defaults of the command line
// tool.
func DefaultConfig() *Config {
	return &Config{
		BatchDir:   "batch_scans",
		Format:     string(domain.FormatA4),
		Resolution: 400,
		Remote: RemoteConfig{
			SSHBinary: "ssh",
			SCPBinary: "scp",
		},
		Paperless: PaperlessConfig{
			Timeout: 60 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Driver:  "sqlite",
			SQLite: SQLiteConfig{
				Path: DefaultHistoryPath(),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "warn",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Target == "" {
		return domain.ConfigError("target not configured, set 'target' in the config file or SCANPI_TARGET", nil)
	}
	if _, err := remote.ParseTarget(c.Target); err != nil {
		return err
	}

	if _, err := domain.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := domain.ParseResolution(c.Resolution); err != nil {
		return err
	}

	if strings.TrimSpace(c.BatchDir) == "" {
		return domain.ConfigError("batch_dir must not be empty", nil)
	}
	if !batchDirPattern.MatchString(c.BatchDir) {
		return domain.ConfigError(
			fmt.Sprintf("invalid batch_dir %q, only letters, digits, '_', '-', '.' and '/' are allowed", c.BatchDir), nil)
	}

	if c.Paperless.Enabled {
		if c.Paperless.BaseURL == "" {
			return domain.ConfigError("Paperless URL not configured, set paperless.base_url", nil)
		}
		if c.Paperless.APIKey == "" {
			return domain.ConfigError("Paperless API key not configured, set paperless.api_key", nil)
		}
	}

	return c.validateHistory()
}

func (c *Config) validateHistory() error {
	if c.History.Enabled {
		switch c.History.Driver {
		case "sqlite", "postgres":
		default:
			return domain.ConfigError(fmt.Sprintf("invalid history driver: %s", c.History.Driver), nil)
		}
		if c.HistoryDSN() == "" {
			return domain.ConfigError(fmt.Sprintf("no %s location configured for the job history", c.History.Driver), nil)
		}
	}

	return nil
}

// ScanTarget returns the parsed target.
func (c *Config) ScanTarget() (remote.Target, error) {
	return remote.ParseTarget(c.Target)
}

// RemoteClient returns the ssh client settings.
func (c *Config) RemoteClient() remote.Config {
	return remote.Config{
		SSHBinary: c.Remote.SSHBinary,
		SCPBinary: c.Remote.SCPBinary,
		Options:   c.Remote.SSHOptions,
	}
}

// HistoryDSN returns the appropriate database connection string.
func (c *Config) HistoryDSN() string {
	if c.History.Driver == "sqlite" {
		return c.History.SQLite.Path
	}
	return c.History.Postgres.DSN
}

// ResolveStagingDir turns the configured batch directory into the concrete
// remote directory of one run. The value "tmp" selects a fresh directory
// under /tmp.
func ResolveStagingDir(batchDir string) string {
	if strings.EqualFold(strings.TrimSpace(batchDir), TempBatchDir) {
		return "/tmp/" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return batchDir
}

func (c *Config) normalize() {
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.Paperless.BaseURL = strings.TrimRight(strings.TrimSpace(c.Paperless.BaseURL), "/")
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCANPI_TARGET"); v != "" {
		cfg.Target = v
	}

	if v := os.Getenv("SCANPI_BATCH_DIR"); v != "" {
		cfg.BatchDir = v
	}

	if v := os.Getenv("SCANPI_FORMAT"); v != "" {
		cfg.Format = v
	}

	if v := os.Getenv("SCANPI_RESOLUTION"); v != "" {
		if dpi, err := strconv.Atoi(v); err == nil {
			cfg.Resolution = dpi
		}
	}

	if v := os.Getenv("PAPERLESS_URL"); v != "" {
		cfg.Paperless.BaseURL = v
	}

	if v := os.Getenv("PAPERLESS_API_KEY"); v != "" {
		cfg.Paperless.APIKey = v
	}

	if v := os.Getenv("SCANPI_HISTORY_DSN"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.History.Driver = "sqlite"
			cfg.History.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.History.Driver = "postgres"
			cfg.History.Postgres.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
