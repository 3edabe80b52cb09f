package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bookstore/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeFile(t, `
store:
  driver: postgres
  uri: postgres://localhost/bookstore
sweeper:
  interval: 30s
  batch: 10
kafka:
  brokers: [a:9092, b:9092]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/bookstore", cfg.Store.URI)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Sweeper.Threshold)
	assert.Equal(t, 10, cfg.Sweeper.Batch)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "bookstore.orders", cfg.Kafka.Topic)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "store:\n  driver: sqlite\n  uri: /tmp/a.db\n")
	t.Setenv("BOOKSTORE_STORE_URI", "/tmp/b.db")
	t.Setenv("BOOKSTORE_KAFKA_BROKERS", "x:1, y:2,")
	t.Setenv("BOOKSTORE_SWEEPER_THRESHOLD", "2h")
	t.Setenv("BOOKSTORE_SWEEPER_DISABLED", "true")
	t.Setenv("BOOKSTORE_LOG_FORMAT", "json")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/b.db", cfg.Store.URI)
	assert.Equal(t, []string{"x:1", "y:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Hour, cfg.Sweeper.Threshold)
	assert.True(t, cfg.Sweeper.Disabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown driver", file: "store:\n  driver: cassandra\n"},
		{name: "missing uri", file: "store:\n  driver: mongo\n"},
		{name: "bad format", file: "log:\n  format: xml\n"},
		{name: "negative batch", file: "sweeper:\n  batch: -1\n"},
		{name: "bad yaml", file: "store: [\n"},
		{name: "bad env duration", env: map[string]string{"BOOKSTORE_SWEEPER_INTERVAL": "soon"}},
		{name: "bad env int", env: map[string]string{"BOOKSTORE_SWEEPER_BATCH": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
