package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration struct built at process start and
// passed by reference into each component constructor. There are no global
// config singletons.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	System    SystemConfig    `yaml:"system"`
	API       APIConfig       `yaml:"api"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Transform TransformConfig `yaml:"transform"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig locates the two SQLite stores.
type DatabaseConfig struct {
	PipelinePath string `yaml:"pipeline_db"` // sources + scraped_files
	DataPath     string `yaml:"data_db"`     // typed content records
}

// SystemConfig holds filesystem locations.
type SystemConfig struct {
	ScrapedDataDir string `yaml:"scraped_data_dir"`
}

// APIConfig describes the loader endpoint shared by client and server.
type APIConfig struct {
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	SecretKey     string `yaml:"secret_key"`     // pre-shared X-API-Key value
	AdminPassword string `yaml:"admin_password"` // admin login for the source registry
	JWTSecret     string `yaml:"jwt_secret"`
}

// BaseURL returns the loader base URL used by the delivery client.
func (a APIConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%s", a.Host, a.Port)
}

// ScraperConfig tunes the fetch stage.
type ScraperConfig struct {
	FetchTimeoutSeconds int     `yaml:"fetch_timeout_seconds"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
	UserAgent           string  `yaml:"user_agent"`
	SkipUnchanged       bool    `yaml:"skip_unchanged"`

	FetchTimeout time.Duration `yaml:"-"`
}

// TransformConfig tunes the transform stage.
type TransformConfig struct {
	BatchSize int `yaml:"batch_size"`
	// Workers is a policy flag, not a structural constraint: 1 keeps the
	// batch strictly sequential; higher values fan extraction and delivery
	// out while all store writes stay on the batch goroutine.
	Workers         int `yaml:"workers"`
	MaxLoadAttempts int `yaml:"max_load_attempts"` // LOAD_FAILED retries before DEAD_LETTER
}

// DeliveryConfig tunes the loader client retry policy.
type DeliveryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Backoff time.Duration `yaml:"-"`
	Timeout time.Duration `yaml:"-"`
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	ReadTimeoutSeconds     int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	ReadTimeout     time.Duration `yaml:"-"`
	WriteTimeout    time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	LevelName string `yaml:"level"`
	Format    string `yaml:"format"`
	File      string `yaml:"file"` // empty means stdout

	Level slog.Level `yaml:"-"`
}

const (
	configPathEnv = "NEWSWEAVER_CONFIG"

	defaultConfigPath = "config.yaml"
	defaultLogFormat  = "json"
)

// Load reads the YAML configuration file (if present), applies environment
// overrides and normalizes derived fields. A missing file is not an error;
// a malformed one is.
func Load() (Config, error) {
	cfg := defaults()

	path := os.Getenv(configPathEnv)
	if path == "" {
		path = defaultConfigPath
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus env overrides are enough to run.
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			PipelinePath: "pipeline.db",
			DataPath:     "data.db",
		},
		System: SystemConfig{ScrapedDataDir: "./scraped_data"},
		API: APIConfig{
			Host:      "127.0.0.1",
			Port:      "8000",
			SecretKey: "supersecretkey",
			// Defaults (should be changed)
			AdminPassword: "admin",
			JWTSecret:     "change-this-secret",
		},
		Scraper: ScraperConfig{
			FetchTimeoutSeconds: 30,
			RequestsPerSecond:   2,
			UserAgent:           "newsweaver/1.0",
		},
		Transform: TransformConfig{
			BatchSize:       50,
			Workers:         1,
			MaxLoadAttempts: 5,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:    3,
			BackoffSeconds: 2,
			TimeoutSeconds: 10,
		},
		Server: ServerConfig{
			ReadTimeoutSeconds:     10,
			WriteTimeoutSeconds:    10,
			ShutdownTimeoutSeconds: 5,
		},
		Logging: LoggingConfig{
			LevelName: "info",
			Format:    defaultLogFormat,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIPELINE_DB"); v != "" {
		c.Database.PipelinePath = v
	}
	if v := os.Getenv("DATA_DB"); v != "" {
		c.Database.DataPath = v
	}
	if v := os.Getenv("SCRAPED_DATA_DIR"); v != "" {
		c.System.ScrapedDataDir = v
	}
	if v := os.Getenv("API_HOST"); v != "" {
		c.API.Host = v
	}
	// Cloud platforms set PORT, but allow API_PORT override for local dev.
	if v := os.Getenv("PORT"); v != "" {
		c.API.Port = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		c.API.Port = v
	}
	if v := os.Getenv("API_SECRET_KEY"); v != "" {
		c.API.SecretKey = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.API.AdminPassword = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.LevelName = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("TRANSFORM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Transform.Workers = n
		}
	}
}

func (c *Config) normalize() error {
	var err error

	if c.Scraper.FetchTimeout, err = seconds(c.Scraper.FetchTimeoutSeconds, "scraper.fetch_timeout_seconds"); err != nil {
		return err
	}
	if c.Delivery.Backoff, err = seconds(c.Delivery.BackoffSeconds, "delivery.backoff_seconds"); err != nil {
		return err
	}
	if c.Delivery.Timeout, err = seconds(c.Delivery.TimeoutSeconds, "delivery.timeout_seconds"); err != nil {
		return err
	}
	if c.Server.ReadTimeout, err = seconds(c.Server.ReadTimeoutSeconds, "server.read_timeout_seconds"); err != nil {
		return err
	}
	if c.Server.WriteTimeout, err = seconds(c.Server.WriteTimeoutSeconds, "server.write_timeout_seconds"); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout, err = seconds(c.Server.ShutdownTimeoutSeconds, "server.shutdown_timeout_seconds"); err != nil {
		return err
	}

	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}
	if c.Transform.BatchSize < 1 {
		return fmt.Errorf("transform.batch_size must be at least 1")
	}
	if c.Transform.Workers < 1 {
		return fmt.Errorf("transform.workers must be at least 1")
	}
	if c.Transform.MaxLoadAttempts < 1 {
		return fmt.Errorf("transform.max_load_attempts must be at least 1")
	}

	if c.Logging.Level, err = parseLogLevel(c.Logging.LevelName); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: must be 'json' or 'text'")
	}

	return nil
}

func seconds(n int, field string) (time.Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", field)
	}
	return time.Duration(n) * time.Second, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "", "info", "INFO":
		return slog.LevelInfo, nil
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "warn", "warning", "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
