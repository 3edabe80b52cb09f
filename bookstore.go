package bookstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/bookstore/plugin"
	"github.com/xraph/bookstore/store"
)

// Defaults applied by New.
const (
	DefaultSweepInterval  = time.Minute
	DefaultSweepThreshold = 24 * time.Hour
	DefaultSweepBatch     = 100
	DefaultPageSize       = 10
)

// Engine is the order lifecycle engine. It drives the balance ledger and
// the inventory manager from the order state machine and owns the expiry
// sweeper worker. All methods are safe for concurrent use.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	clock     func() time.Time
	balances  *BalanceLedger
	inventory *InventoryManager

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	migrate        bool
	sweepEnabled   bool
	sweepInterval  time.Duration
	sweepThreshold time.Duration
	sweepBatch     int
	passwordCost   int
	pageSize       int
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          time.Now,
		balances:       NewBalanceLedger(s),
		inventory:      NewInventoryManager(s),
		stopChan:       make(chan struct{}),
		migrate:        true,
		sweepEnabled:   true,
		sweepInterval:  DefaultSweepInterval,
		sweepThreshold: DefaultSweepThreshold,
		sweepBatch:     DefaultSweepBatch,
		passwordCost:   bcrypt.DefaultCost,
		pageSize:       DefaultPageSize,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock replaces time.Now. Tests use it to age orders.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

// WithSweeperConfig configures the background expiry sweeper. Zero values
// keep the defaults.
func WithSweeperConfig(interval, threshold time.Duration, batch int) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.sweepInterval = interval
		}
		if threshold > 0 {
			e.sweepThreshold = threshold
		}
		if batch > 0 {
			e.sweepBatch = batch
		}
	}
}

// WithoutSweeper disables the background sweeper started by Start.
// SweepExpired stays callable.
func WithoutSweeper() Option {
	return func(e *Engine) {
		e.sweepEnabled = false
	}
}

// WithoutMigrate makes Start skip store migrations. Use it when the schema
// is managed out of band, for example by the migrate command.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.migrate = false
	}
}

// WithPasswordCost sets the bcrypt cost used for new password hashes.
func WithPasswordCost(cost int) Option {
	return func(e *Engine) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			e.passwordCost = cost
		}
	}
}

// WithPageSize sets the order listing page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Balances returns the balance ledger.
func (e *Engine) Balances() *BalanceLedger { return e.balances }

// Inventory returns the inventory manager.
func (e *Engine) Inventory() *InventoryManager { return e.inventory }

// Start migrates the store, initializes plugins and begins the sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return Unavailable("migrate", err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepEnabled {
		e.wg.Add(1)
		go e.sweepWorker(ctx)
	}

	e.logger.Info("bookstore engine started",
		"sweeper", e.sweepEnabled,
		"sweep_interval", e.sweepInterval,
		"sweep_threshold", e.sweepThreshold,
		"sweep_batch", e.sweepBatch,
	)

	return nil
}

// Stop halts the sweeper, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// now is truncated to milliseconds, the coarsest precision any backend
// stores, so a timestamp read back compares equal to the one written.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Millisecond)
}
