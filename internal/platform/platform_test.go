package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/churn/pkg/adapters/memory"
	"github.com/aretw0/churn/pkg/core"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
adapter: memory
seed: 500
flush:
  period: 250ms
  retries: 0
  concurrency: 8
queue:
  max_depth: 10000
producers: ["random/*"]
http:
  addr: ":9090"
range_file: ./range.yaml
`))
	require.NoError(t, err)
	assert.Equal(t, AdapterMemory, cfg.Adapter)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, 500, *cfg.Seed)
	assert.Equal(t, 250*time.Millisecond, cfg.Flush.Period)
	require.NotNil(t, cfg.Flush.Retries)
	assert.Zero(t, *cfg.Flush.Retries)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "./range.yaml", cfg.RangeFile)

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(o)
	}
	assert.Equal(t, AdapterMemory, o.adapter)
	assert.Equal(t, 500, o.coordinator.SeedCount)
	assert.Equal(t, 250*time.Millisecond, o.coordinator.FlushPeriod)
	assert.Zero(t, o.coordinator.FlushRetries)
	assert.Equal(t, 8, o.coordinator.FlushConcurrency)
	assert.Equal(t, 10000, o.coordinator.MaxQueueDepth)
	assert.Equal(t, []string{"random/*"}, o.coordinator.Producers)
}

func TestParseConfig_Rejects(t *testing.T) {
	_, err := ParseConfig([]byte("adapter: s3\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("adaptr: memory\n"))
	assert.Error(t, err, "unknown keys are rejected")

	cfg, err := ParseConfig(nil)
	require.NoError(t, err, "empty file is an empty config")
	assert.Empty(t, cfg.Options())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("adapter: sqlite\ndsn: data.db\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "data.db", cfg.DSN)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_Memory(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(context.Background(), "", WithAdapter(AdapterMemory), WithSeedCount(10), WithRegisterer(reg))
	require.NoError(t, err)
	defer c.Store().Close()

	assert.Len(t, c.DefaultProducers(), 7)
	_, err = c.SeedIfEmpty(context.Background())
	require.NoError(t, err)

	n, err := c.Store().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_InjectedStore(t *testing.T) {
	store := memory.New()
	c, err := New(context.Background(), "ignored", WithStore(store), WithDefaultProducers(false))
	require.NoError(t, err)
	assert.Same(t, core.Store(store), c.Store())
	assert.NoError(t, c.AddDefaultProducers(), "defaults were not registered")
}

func TestOpenStore_SQLiteIsSandboxedUnderTest(t *testing.T) {
	store, err := OpenStore(context.Background(), "some/real/place.db")
	require.NoError(t, err)
	defer store.Close()

	_, statErr := os.Stat("some/real/place.db")
	assert.True(t, os.IsNotExist(statErr), "dev run must not touch the real path")
	assert.FileExists(t, filepath.Join(os.TempDir(), "churn-dev", "place.db"))
}

func TestOpenStore_SQLiteInTempDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.db")
	store, err := OpenStore(context.Background(), path, WithAdapter(AdapterSQLite))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.InsertMany(context.Background(), core.Record{Text: "x"}))
	assert.FileExists(t, path)
}

func TestOpenStore_UnknownAdapter(t *testing.T) {
	_, err := OpenStore(context.Background(), "", WithAdapter("s3"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown adapter"))
}
