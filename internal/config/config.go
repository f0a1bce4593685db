package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/synapse/config.yaml"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all Synapse configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Capture  CaptureConfig  `yaml:"capture"`
	Classify ClassifyConfig `yaml:"classify"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	SQLiteFile  string `yaml:"sqlite_file"`
	UploadsDir  string `yaml:"uploads_dir"`
	PostgresURL string `yaml:"postgres_url"`
}

type CaptureConfig struct {
	Workers             int    `yaml:"workers"`
	QueueSize           int    `yaml:"queue_size"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	UserAgent           string `yaml:"user_agent"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
	MaxContentChars     int    `yaml:"max_content_chars"`
	HistorySize         int    `yaml:"history_size"`
}

// FetchTimeout returns the per-request fetch timeout.
func (c CaptureConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

type ClassifyConfig struct {
	VideoHosts []string `yaml:"video_hosts"`
	ShopHosts  []string `yaml:"shop_hosts"`
}

type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	MaxUploadBytes         int64  `yaml:"max_upload_bytes"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
	File   string `yaml:"file"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// ApplyEnv overrides selected fields from SYNAPSE_* environment variables.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("SYNAPSE_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("SYNAPSE_POSTGRES_URL"); v != "" {
		c.Storage.PostgresURL = v
	}
	if v := getenv("SYNAPSE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("SYNAPSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SYNAPSE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("SYNAPSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLiteFile == "" {
			errs = append(errs, errors.New("storage.sqlite_file is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be %q or %q", c.Storage.Driver, DriverSQLite, DriverPostgres))
	}
	if c.Capture.Workers < 1 {
		errs = append(errs, errors.New("capture.workers must be at least 1"))
	}
	if c.Capture.QueueSize < 1 {
		errs = append(errs, errors.New("capture.queue_size must be at least 1"))
	}
	if c.Capture.FetchTimeoutSeconds < 1 {
		errs = append(errs, errors.New("capture.fetch_timeout_seconds must be at least 1"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// DataDir returns the expanded storage directory.
func (c *Config) DataDir() (string, error) {
	return ExpandPath(c.Storage.Path)
}

// SQLitePath returns the absolute path of the SQLite database file.
func (c *Config) SQLitePath() (string, error) {
	return c.resolve(c.Storage.SQLiteFile)
}

// UploadsPath returns the absolute path of the upload directory.
func (c *Config) UploadsPath() (string, error) {
	return c.resolve(c.Storage.UploadsDir)
}

// resolve expands p, joining relative paths onto the storage directory.
func (c *Config) resolve(p string) (string, error) {
	p, err := ExpandPath(p)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p), nil
}
