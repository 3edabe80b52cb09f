// Package extension provides the Forge extension adapter for the bookstore
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.bookstore" or
// "bookstore" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/store"
	"github.com/xraph/bookstore/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bookstore"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Online bookstore order engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the bookstore engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *bookstore.Engine
	store      store.Store
	engineOpts []bookstore.Option
}

// New creates a new bookstore Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *bookstore.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// builds the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = bookstore.New(e.store, buildEngineOpts(e.config, e.engineOpts)...)

	return vessel.Provide(fapp.Container(), func() (*bookstore.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("bookstore: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("bookstore: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts turns the resolved config into engine options. Pass-through
// options come last so they win.
func buildEngineOpts(cfg Config, extra []bookstore.Option) []bookstore.Option {
	opts := make([]bookstore.Option, 0, len(extra)+5)

	opts = append(opts, bookstore.WithSweeperConfig(cfg.SweepInterval, cfg.SweepThreshold, cfg.SweepBatchSize))
	if cfg.DisableSweeper {
		opts = append(opts, bookstore.WithoutSweeper())
	}
	if cfg.DisableMigrate {
		opts = append(opts, bookstore.WithoutMigrate())
	}
	if cfg.PageSize > 0 {
		opts = append(opts, bookstore.WithPageSize(cfg.PageSize))
	}
	if cfg.HookTimeout > 0 {
		opts = append(opts, bookstore.WithHookTimeout(cfg.HookTimeout))
	}

	return append(opts, extra...)
}

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("bookstore: configuration is required but not found in config files; " +
				"ensure 'extensions.bookstore' or 'bookstore' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("bookstore: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_sweeper", e.config.DisableSweeper),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("sweep_threshold", e.config.SweepThreshold),
		forge.F("sweep_batch_size", e.config.SweepBatchSize),
		forge.F("page_size", e.config.PageSize),
		forge.F("hook_timeout", e.config.HookTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.bookstore", "bookstore"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("bookstore: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("bookstore: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}
