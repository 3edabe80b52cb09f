package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/bookstore"
	audithook "github.com/xraph/bookstore/audit_hook"
	"github.com/xraph/bookstore/config"
	"github.com/xraph/bookstore/events"
	"github.com/xraph/bookstore/observability"
	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/memory"
	mongostore "github.com/xraph/bookstore/store/mongo"
	pgstore "github.com/xraph/bookstore/store/postgres"
	"github.com/xraph/bookstore/store/rediscache"
	sqlitestore "github.com/xraph/bookstore/store/sqlite"
)

// loadConfig reads the config file and lets command line flags win.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Format != "" {
		cfg.Log.Format = opts.Format
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger on w.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// openStore opens the configured backend, wrapped in the Redis order cache
// when one is configured. The caller owns the returned store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		backend store.Store
		err     error
	)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		backend = memory.New()
	case config.DriverMongo:
		backend, err = mongostore.Open(ctx, cfg.Store.URI, cfg.Store.Database)
	case config.DriverPostgres:
		backend, err = pgstore.Open(ctx, cfg.Store.URI)
	case config.DriverSQLite:
		backend, err = sqlitestore.Open(ctx, cfg.Store.URI)
	default:
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("unknown store driver %q", cfg.Store.Driver), nil)
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open store", err)
	}

	logger.Info("store opened", "driver", cfg.Store.Driver)

	if cfg.Redis.Addr == "" {
		return backend, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("order cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)

	return rediscache.New(backend, client,
		rediscache.WithTTL(cfg.Redis.TTL),
		rediscache.WithLogger(logger),
	), nil
}

// engineOptions turns the config into engine options and plugins. Metrics
// are registered on reg when it is non-nil.
func engineOptions(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) []bookstore.Option {
	opts := []bookstore.Option{
		bookstore.WithLogger(logger),
		bookstore.WithSweeperConfig(cfg.Sweeper.Interval, cfg.Sweeper.Threshold, cfg.Sweeper.Batch),
	}
	if cfg.Sweeper.Disabled {
		opts = append(opts, bookstore.WithoutSweeper())
	}

	if reg != nil {
		factory := observability.NewPrometheusFactory(reg)
		opts = append(opts, bookstore.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		w := events.NewWriter(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		opts = append(opts, bookstore.WithPlugin(events.NewPublisher(w, events.WithLogger(logger))))
		logger.Info("event publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.Log.Audit {
		opts = append(opts, bookstore.WithPlugin(audithook.New(logRecorder(logger), audithook.WithLogger(logger))))
	}

	return opts
}

// logRecorder writes audit events to the process logger.
func logRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, e *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"category", e.Category,
			"outcome", e.Outcome,
			"severity", e.Severity,
			"metadata", e.Metadata,
		)
		return nil
	})
}

// result is the JSON envelope for command output.
type result struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// printResult writes data as a JSON envelope or as the text line.
func printResult(w io.Writer, format string, data any, text string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(result{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
