// Package config loads process configuration for the bookstore command:
// a YAML file overlaid on defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the process configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and addresses the storage backend. URI is a mongo
// URI, a postgres DSN or a sqlite path depending on Driver.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig enables the order cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SweeperConfig configures the expiry sweeper.
type SweeperConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
	Batch     int           `yaml:"batch"`
}

// LogConfig configures the slog handler. Audit writes an audit trail entry
// per lifecycle event to the same logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Audit  bool   `yaml:"audit"`
}

// MetricsConfig configures the Prometheus endpoint served by serve.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:   DriverMemory,
			Database: "bookstore",
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:        "bookstore.orders",
			WriteTimeout: 10 * time.Second,
		},
		Sweeper: SweeperConfig{
			Interval:  time.Minute,
			Threshold: 24 * time.Hour,
			Batch:     100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports configuration that cannot be used.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongo, DriverPostgres, DriverSQLite:
		if c.Store.URI == "" {
			return fmt.Errorf("config: store.uri is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Store.Driver == DriverMongo && c.Store.Database == "" {
		return errors.New("config: store.database is required for driver \"mongo\"")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required when brokers are set")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q: must be one of [text json]", c.Log.Format)
	}

	if c.Sweeper.Batch < 0 || c.Sweeper.Interval < 0 || c.Sweeper.Threshold < 0 {
		return errors.New("config: sweeper settings must not be negative")
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Store.Driver = getEnvString("BOOKSTORE_STORE_DRIVER", c.Store.Driver)
	c.Store.URI = getEnvString("BOOKSTORE_STORE_URI", c.Store.URI)
	c.Store.Database = getEnvString("BOOKSTORE_STORE_DATABASE", c.Store.Database)

	c.Redis.Addr = getEnvString("BOOKSTORE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvString("BOOKSTORE_REDIS_PASSWORD", c.Redis.Password)

	if v := os.Getenv("BOOKSTORE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Kafka.Topic = getEnvString("BOOKSTORE_KAFKA_TOPIC", c.Kafka.Topic)

	c.Log.Level = getEnvString("BOOKSTORE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("BOOKSTORE_LOG_FORMAT", c.Log.Format)
	c.Metrics.Addr = getEnvString("BOOKSTORE_METRICS_ADDR", c.Metrics.Addr)

	var err error
	if c.Redis.DB, err = getEnvInt("BOOKSTORE_REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Sweeper.Batch, err = getEnvInt("BOOKSTORE_SWEEPER_BATCH", c.Sweeper.Batch); err != nil {
		return err
	}
	if c.Sweeper.Interval, err = getEnvDuration("BOOKSTORE_SWEEPER_INTERVAL", c.Sweeper.Interval); err != nil {
		return err
	}
	if c.Sweeper.Threshold, err = getEnvDuration("BOOKSTORE_SWEEPER_THRESHOLD", c.Sweeper.Threshold); err != nil {
		return err
	}
	if v := os.Getenv("BOOKSTORE_SWEEPER_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BOOKSTORE_SWEEPER_DISABLED: %w", err)
		}
		c.Sweeper.Disabled = b
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
