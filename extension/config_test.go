package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/bookstore"
	"github.com/xraph/bookstore/store/memory"
)

func TestMergeWithDefaultsFillsZeros(t *testing.T) {
	cfg := mergeWithDefaults(Config{PageSize: 25})

	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.SweepThreshold)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Zero(t, cfg.HookTimeout)
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{SweepInterval: 5 * time.Second, PageSize: 50}
	prog := Config{
		SweepInterval:  time.Hour,
		SweepThreshold: 2 * time.Hour,
		PageSize:       5,
		HookTimeout:    time.Second,
		DisableSweeper: true,
	}

	cfg := mergeConfigurations(file, prog)

	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 2*time.Hour, cfg.SweepThreshold)
	assert.Equal(t, time.Second, cfg.HookTimeout)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.True(t, cfg.DisableSweeper)
	assert.False(t, cfg.DisableMigrate)
}

func TestOptionsPopulateConfig(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithDisableMigrate(),
		WithSweep(time.Second, time.Hour, 7),
		WithPageSize(3),
		WithHookTimeout(time.Millisecond),
		WithEngineOption(bookstore.WithoutSweeper()),
	)

	assert.Same(t, s, e.store)
	assert.True(t, e.config.DisableMigrate)
	assert.Equal(t, time.Second, e.config.SweepInterval)
	assert.Equal(t, time.Hour, e.config.SweepThreshold)
	assert.Equal(t, 7, e.config.SweepBatchSize)
	assert.Equal(t, 3, e.config.PageSize)
	assert.Equal(t, time.Millisecond, e.config.HookTimeout)
	assert.Len(t, e.engineOpts, 1)
	assert.Nil(t, e.Engine())
}

func TestBuildEngineOpts(t *testing.T) {
	cfg := mergeWithDefaults(Config{DisableSweeper: true, DisableMigrate: true, HookTimeout: time.Second})
	extra := []bookstore.Option{bookstore.WithPageSize(1)}

	// sweeper config, without sweeper, without migrate, page size, hook timeout, extra
	assert.Len(t, buildEngineOpts(cfg, extra), 6)
	assert.Len(t, buildEngineOpts(mergeWithDefaults(Config{}), nil), 2)
}
