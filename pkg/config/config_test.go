package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "./data", c.Database.DataDir)
	assert.Equal(t, 16, c.Database.Partitions)
	assert.Equal(t, "codebook", c.Engine.Quantizer)
	assert.InDelta(t, 0.85, c.Engine.ReuseThreshold, 1e-9)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("MUNINDB_DATA_DIR", "/tmp/munin")
	t.Setenv("MUNINDB_PARTITIONS", "8")
	t.Setenv("MUNINDB_REUSE_THRESHOLD", "0.9")
	t.Setenv("MUNINDB_QUANTIZER", "lsh")
	t.Setenv("MUNINDB_IDLE_EVICTION", "30m")
	t.Setenv("MUNINDB_DEBUG", "true")

	c := LoadFromEnv()
	assert.Equal(t, "/tmp/munin", c.Database.DataDir)
	assert.Equal(t, 8, c.Database.Partitions)
	assert.InDelta(t, 0.9, c.Engine.ReuseThreshold, 1e-9)
	assert.Equal(t, "lsh", c.Engine.Quantizer)
	assert.Equal(t, 30*time.Minute, c.Engine.IdleEviction)
	assert.True(t, c.Logging.Debug)
	require.NoError(t, c.Validate())
}

func TestLoadFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("MUNINDB_PARTITIONS", "not-a-number")
	t.Setenv("MUNINDB_REUSE_THRESHOLD", "lots")

	c := LoadFromEnv()
	assert.Equal(t, 16, c.Database.Partitions)
	assert.InDelta(t, 0.85, c.Engine.ReuseThreshold, 1e-9)
}

func TestEnvDurationAsSeconds(t *testing.T) {
	t.Setenv("MUNINDB_AFFINITY_CACHE_TTL", "90")
	c := LoadFromEnv()
	assert.Equal(t, 90*time.Second, c.Engine.AffinityCacheTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munindb.yaml")
	content := []byte(`
database:
  data_dir: /var/lib/munindb
  partitions: 32
engine:
  quantizer: lsh
  reuse_threshold: 0.8
logging:
  debug: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/munindb", c.Database.DataDir)
	assert.Equal(t, 32, c.Database.Partitions)
	assert.Equal(t, "lsh", c.Engine.Quantizer)
	assert.InDelta(t, 0.8, c.Engine.ReuseThreshold, 1e-9)
	assert.True(t, c.Logging.Debug)

	// Fields the file omits keep their defaults.
	assert.Equal(t, 4, c.Database.FlushConcurrency)
	assert.Equal(t, "hypernet", c.Engine.SizingStrategy)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munindb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  data_dir: /from/file\n  partitions: 32\n"), 0o644))

	t.Setenv("MUNINDB_DATA_DIR", "/from/env")

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	c.ApplyEnv()

	assert.Equal(t, "/from/env", c.Database.DataDir, "env beats file")
	assert.Equal(t, 32, c.Database.Partitions, "untouched env fields keep file values")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.Database.DataDir = "" }},
		{"partitions too high", func(c *Config) { c.Database.Partitions = 300 }},
		{"zero flush concurrency", func(c *Config) { c.Database.FlushConcurrency = 0 }},
		{"bad quantizer", func(c *Config) { c.Engine.Quantizer = "kmeans" }},
		{"bad sizing strategy", func(c *Config) { c.Engine.SizingStrategy = "magic" }},
		{"bad complexity mode", func(c *Config) { c.Engine.ComplexityMode = "chaos" }},
		{"reuse threshold above one", func(c *Config) { c.Engine.ReuseThreshold = 1.5 }},
		{"garbage max memory", func(c *Config) { c.Database.MaxMemory = "lots" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidateInMemoryNeedsNoDir(t *testing.T) {
	c := Default()
	c.Database.DataDir = ""
	c.Database.InMemory = true
	assert.NoError(t, c.Validate())
}

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"unlimited", 0},
		{"1024", 1024},
		{"1KB", 1024},
		{"64mb", 64 * 1024 * 1024},
		{"2GB", 2 * 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseMemorySize(tt.in), "input %q", tt.in)
	}
}

func TestFormatMemorySize(t *testing.T) {
	assert.Equal(t, "512 B", FormatMemorySize(512))
	assert.Equal(t, "1.00 KB", FormatMemorySize(1024))
	assert.Equal(t, "64.00 MB", FormatMemorySize(64*1024*1024))
	assert.Equal(t, "2.00 GB", FormatMemorySize(2*1024*1024*1024))
}

func TestLowMemoryProfile(t *testing.T) {
	c := Default()
	assert.False(t, c.Database.LowMemoryProfile())

	c.Database.MaxMemory = "128MB"
	assert.True(t, c.Database.LowMemoryProfile())

	c.Database.MaxMemory = "1GB"
	assert.False(t, c.Database.LowMemoryProfile())

	c.Database.LowMemory = true
	assert.True(t, c.Database.LowMemoryProfile())
}
