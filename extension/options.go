package extension

import (
	"time"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/plugin"
	"github.com/xraph/bookstore/store"
)

// Option configures the bookstore Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a bookstore.Option through to the engine.
func WithEngineOption(opt bookstore.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a bookstore plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, bookstore.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate skips store migrations on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableSweeper turns off the background expiry sweeper.
func WithDisableSweeper() Option {
	return func(e *Extension) { e.config.DisableSweeper = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweep sets the sweeper interval, expiry threshold and batch size.
func WithSweep(interval, threshold time.Duration, batch int) Option {
	return func(e *Extension) {
		e.config.SweepInterval = interval
		e.config.SweepThreshold = threshold
		e.config.SweepBatchSize = batch
	}
}

// WithPageSize sets the order listing page size.
func WithPageSize(n int) Option {
	return func(e *Extension) { e.config.PageSize = n }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}
