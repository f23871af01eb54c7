package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Printers PrintersConfig  `yaml:"printers"`
	Queue    QueueConfig     `yaml:"queue"`
	Webhooks []WebhookTarget `yaml:"webhooks"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DSN         string `yaml:"dsn"`
	ArchivePath string `yaml:"archive_path"`
	ArchiveDays int    `yaml:"archive_days"`
}

type PrintersConfig struct {
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	ConnectionTimeout    time.Duration `yaml:"connection_timeout"`
	StatusProbe          bool          `yaml:"status_probe"`
	ChunkSize            int           `yaml:"chunk_size"`
	BluetoothBytesPerSec int           `yaml:"bluetooth_bytes_per_sec"`

	// DevicePrefixes lists the paths USB and Bluetooth printers may live
	// under. Any other address is refused.
	DevicePrefixes []string `yaml:"device_prefixes"`
}

// DefaultDevicePrefixes covers Linux USB line printers and RFCOMM nodes.
var DefaultDevicePrefixes = []string{"/dev/usb/lp", "/dev/rfcomm"}

// QueueConfig drives the print queue manager. The retry delay after the
// n-th failed attempt is BackoffBase * 2^n, clamped to MaxBackoff.
type QueueConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	AvgJobDuration   time.Duration `yaml:"avg_job_duration"`
}

type WebhookTarget struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			Path:        "./data/ticketspool.db",
			ArchivePath: "./data/archives",
			ArchiveDays: 30,
		},
		Printers: PrintersConfig{
			HealthCheckInterval:  30 * time.Second,
			ConnectionTimeout:    10 * time.Second,
			StatusProbe:          true,
			ChunkSize:            512,
			BluetoothBytesPerSec: 4096,
			DevicePrefixes:       append([]string(nil), DefaultDevicePrefixes...),
		},
		Queue: DefaultQueueConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultQueueConfig returns the queue settings used when none are configured.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		DispatchInterval: 2 * time.Second,
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		MaxBackoff:       5 * time.Minute,
		DispatchTimeout:  30 * time.Second,
		AvgJobDuration:   5 * time.Second,
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SPOOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SPOOL_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}

	if v := os.Getenv("SPOOL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SPOOL_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("SPOOL_ARCHIVE_PATH"); v != "" {
		cfg.Database.ArchivePath = v
	}

	if v := os.Getenv("SPOOL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxAttempts = n
		}
	}

	if v := os.Getenv("SPOOL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SPOOL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (valid: sqlite3, postgres)", c.Database.Driver)
	}

	if c.Database.ArchiveDays < 0 {
		return fmt.Errorf("archive days must be non-negative")
	}

	if c.Printers.HealthCheckInterval < 0 {
		return fmt.Errorf("health check interval must be non-negative")
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	if c.Printers.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be non-negative")
	}

	if c.Printers.BluetoothBytesPerSec < 0 {
		return fmt.Errorf("bluetooth bytes per second must be non-negative")
	}

	for _, prefix := range c.Printers.DevicePrefixes {
		if !filepath.IsAbs(prefix) {
			return fmt.Errorf("device prefix must be an absolute path, got %q", prefix)
		}
	}

	if c.Queue.DispatchInterval <= 0 {
		return fmt.Errorf("dispatch interval must be positive")
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}

	if c.Queue.BackoffBase < 0 {
		return fmt.Errorf("backoff base must be non-negative")
	}

	if c.Queue.MaxBackoff < 0 {
		return fmt.Errorf("max backoff must be non-negative")
	}

	if c.Queue.DispatchTimeout < 0 {
		return fmt.Errorf("dispatch timeout must be non-negative")
	}

	if c.Queue.AvgJobDuration < 0 {
		return fmt.Errorf("average job duration must be non-negative")
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
