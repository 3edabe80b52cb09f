package extension

import "time"

// Config holds the bookstore extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bookstore" or "bookstore" keys).
type Config struct {
	// DisableMigrate skips store migrations on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableSweeper turns off the background expiry sweeper.
	DisableSweeper bool `json:"disable_sweeper" mapstructure:"disable_sweeper" yaml:"disable_sweeper"`

	// SweepInterval is how often the sweeper scans for expired orders
	// (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepThreshold is the age after which an unpaid order is cancelled
	// (default: 24h).
	SweepThreshold time.Duration `json:"sweep_threshold" mapstructure:"sweep_threshold" yaml:"sweep_threshold"`

	// SweepBatchSize caps the orders cancelled per sweep (default: 100).
	SweepBatchSize int `json:"sweep_batch_size" mapstructure:"sweep_batch_size" yaml:"sweep_batch_size"`

	// PageSize is the order listing page size (default: 10).
	PageSize int `json:"page_size" mapstructure:"page_size" yaml:"page_size"`

	// HookTimeout bounds each plugin hook call. Zero means no bound.
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:  time.Minute,
		SweepThreshold: 24 * time.Hour,
		SweepBatchSize: 100,
		PageSize:       10,
	}
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SweepThreshold == 0 {
		cfg.SweepThreshold = defaults.SweepThreshold
	}
	if cfg.SweepBatchSize == 0 {
		cfg.SweepBatchSize = defaults.SweepBatchSize
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaults.PageSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSweeper {
		yamlConfig.DisableSweeper = true
	}

	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SweepThreshold == 0 && programmaticConfig.SweepThreshold != 0 {
		yamlConfig.SweepThreshold = programmaticConfig.SweepThreshold
	}
	if yamlConfig.SweepBatchSize == 0 && programmaticConfig.SweepBatchSize != 0 {
		yamlConfig.SweepBatchSize = programmaticConfig.SweepBatchSize
	}
	if yamlConfig.PageSize == 0 && programmaticConfig.PageSize != 0 {
		yamlConfig.PageSize = programmaticConfig.PageSize
	}
	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
