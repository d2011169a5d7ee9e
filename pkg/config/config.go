// Package config handles MuninDB runtime configuration.
//
// MuninDB is an embedded engine, so library users configure it
// programmatically through munindb.Config. This package serves the CLI and
// other deployment surfaces: it layers MUNINDB_-prefixed environment
// variables over defaults, optionally loads a yaml file, and validates the
// result before the engine is opened.
//
// Configuration is loaded from environment variables using LoadFromEnv()
// and can be validated with Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Data directory: %s\n", cfg.Database.DataDir)
//
// Environment Variables:
//
//   - MUNINDB_DATA_DIR="./data"
//   - MUNINDB_IN_MEMORY=false
//   - MUNINDB_SYNC_WRITES=false
//   - MUNINDB_LOW_MEMORY=false
//   - MUNINDB_MAX_MEMORY="512MB"
//   - MUNINDB_PARTITIONS=16
//   - MUNINDB_FLUSH_CONCURRENCY=4
//   - MUNINDB_REUSE_THRESHOLD=0.85
//   - MUNINDB_NEIGHBOR_REGIONS=3
//   - MUNINDB_GROWTH_STEP=50
//   - MUNINDB_QUANTIZER="codebook" (or "lsh")
//   - MUNINDB_CODEBOOK_SIZE=512
//   - MUNINDB_CODEBOOK_DECAY=0.99
//   - MUNINDB_SIZING_STRATEGY="hypernet" (or "stochastic")
//   - MUNINDB_COMPLEXITY_MODE="entropy" (or "variance")
//   - MUNINDB_IDLE_EVICTION=10m
//   - MUNINDB_AFFINITY_CACHE_SIZE=1024
//   - MUNINDB_AFFINITY_CACHE_TTL=5m
//   - MUNINDB_ENCODER_CACHE_SIZE=4096
//   - MUNINDB_DEBUG=false
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration tree.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig controls the storage layer.
type DatabaseConfig struct {
	// DataDir is where persisted state lives. Empty with InMemory unset
	// is invalid.
	DataDir string `yaml:"data_dir"`

	// InMemory runs the store without disk persistence. For testing and
	// throwaway sessions.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces fsync after each write. Slower, more durable.
	SyncWrites bool `yaml:"sync_writes"`

	// LowMemory shrinks storage buffers for constrained hosts.
	LowMemory bool `yaml:"low_memory"`

	// MaxMemory is a human-readable cap hint ("512MB"). Zero or empty
	// means unlimited; values under 256MB switch on the low-memory
	// profile.
	MaxMemory string `yaml:"max_memory"`

	// Partitions is the neuron-bank partition count. Fixed for the life
	// of a store.
	Partitions int `yaml:"partitions"`

	// FlushConcurrency bounds parallel partition writes during save.
	FlushConcurrency int `yaml:"flush_concurrency"`
}

// EngineConfig carries the tunables the CLI exposes for the memory engine.
// The full set of engine constants lives on munindb.Config; these are the
// ones worth reaching from a shell.
type EngineConfig struct {
	// ReuseThreshold is the cosine similarity gate for cluster reuse.
	ReuseThreshold float64 `yaml:"reuse_threshold"`

	// NeighborRegions is how many nearby regions join the candidate
	// search beyond the assigned one.
	NeighborRegions int `yaml:"neighbor_regions"`

	// GrowthStep caps per-call growth after a concept's first allocation.
	GrowthStep int `yaml:"growth_step"`

	// Quantizer selects the region strategy: "codebook" or "lsh".
	Quantizer string `yaml:"quantizer"`

	// CodebookSize and CodebookDecay tune the learned quantizer.
	CodebookSize  int     `yaml:"codebook_size"`
	CodebookDecay float64 `yaml:"codebook_decay"`

	// SizingStrategy selects the neuron-count formula: "hypernet" or
	// "stochastic".
	SizingStrategy string `yaml:"sizing_strategy"`

	// ComplexityMode selects the dispersion measure: "entropy" or
	// "variance".
	ComplexityMode string `yaml:"complexity_mode"`

	// IdleEviction is how long a cluster may sit unused before
	// maintenance unloads it.
	IdleEviction time.Duration `yaml:"idle_eviction"`

	// AffinityCacheSize and AffinityCacheTTL tune the concept-routing
	// cache.
	AffinityCacheSize int           `yaml:"affinity_cache_size"`
	AffinityCacheTTL  time.Duration `yaml:"affinity_cache_ttl"`

	// EncoderCacheSize bounds the token-encoding LRU.
	EncoderCacheSize int `yaml:"encoder_cache_size"`
}

// LoggingConfig controls CLI logging.
type LoggingConfig struct {
	// Debug raises the log level to debug.
	Debug bool `yaml:"debug"`
}

// Default returns the baseline configuration before env or file overrides.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:          "./data",
			Partitions:       16,
			FlushConcurrency: 4,
		},
		Engine: EngineConfig{
			ReuseThreshold:    0.85,
			NeighborRegions:   3,
			GrowthStep:        50,
			Quantizer:         "codebook",
			CodebookSize:      512,
			CodebookDecay:     0.99,
			SizingStrategy:    "hypernet",
			ComplexityMode:    "entropy",
			IdleEviction:      10 * time.Minute,
			AffinityCacheSize: 1024,
			AffinityCacheTTL:  5 * time.Minute,
			EncoderCacheSize:  4096,
		},
	}
}

// LoadFromEnv builds a Config from defaults plus MUNINDB_* environment
// overrides. Unparseable values fall back to the default silently; the
// engine clamps out-of-range numbers anyway.
func LoadFromEnv() *Config {
	c := Default()

	c.Database.DataDir = getEnv("MUNINDB_DATA_DIR", c.Database.DataDir)
	c.Database.InMemory = getEnvBool("MUNINDB_IN_MEMORY", c.Database.InMemory)
	c.Database.SyncWrites = getEnvBool("MUNINDB_SYNC_WRITES", c.Database.SyncWrites)
	c.Database.LowMemory = getEnvBool("MUNINDB_LOW_MEMORY", c.Database.LowMemory)
	c.Database.MaxMemory = getEnv("MUNINDB_MAX_MEMORY", c.Database.MaxMemory)
	c.Database.Partitions = getEnvInt("MUNINDB_PARTITIONS", c.Database.Partitions)
	c.Database.FlushConcurrency = getEnvInt("MUNINDB_FLUSH_CONCURRENCY", c.Database.FlushConcurrency)

	c.Engine.ReuseThreshold = getEnvFloat("MUNINDB_REUSE_THRESHOLD", c.Engine.ReuseThreshold)
	c.Engine.NeighborRegions = getEnvInt("MUNINDB_NEIGHBOR_REGIONS", c.Engine.NeighborRegions)
	c.Engine.GrowthStep = getEnvInt("MUNINDB_GROWTH_STEP", c.Engine.GrowthStep)
	c.Engine.Quantizer = getEnv("MUNINDB_QUANTIZER", c.Engine.Quantizer)
	c.Engine.CodebookSize = getEnvInt("MUNINDB_CODEBOOK_SIZE", c.Engine.CodebookSize)
	c.Engine.CodebookDecay = getEnvFloat("MUNINDB_CODEBOOK_DECAY", c.Engine.CodebookDecay)
	c.Engine.SizingStrategy = getEnv("MUNINDB_SIZING_STRATEGY", c.Engine.SizingStrategy)
	c.Engine.ComplexityMode = getEnv("MUNINDB_COMPLEXITY_MODE", c.Engine.ComplexityMode)
	c.Engine.IdleEviction = getEnvDuration("MUNINDB_IDLE_EVICTION", c.Engine.IdleEviction)
	c.Engine.AffinityCacheSize = getEnvInt("MUNINDB_AFFINITY_CACHE_SIZE", c.Engine.AffinityCacheSize)
	c.Engine.AffinityCacheTTL = getEnvDuration("MUNINDB_AFFINITY_CACHE_TTL", c.Engine.AffinityCacheTTL)
	c.Engine.EncoderCacheSize = getEnvInt("MUNINDB_ENCODER_CACHE_SIZE", c.Engine.EncoderCacheSize)

	c.Logging.Debug = getEnvBool("MUNINDB_DEBUG", c.Logging.Debug)

	return c
}

// LoadFromFile reads a yaml configuration file over the defaults.
// Environment variables take precedence over the file: callers wanting both
// should load the file first, then apply ApplyEnv.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overlays MUNINDB_* variables onto an existing Config, for the
// file-then-env precedence order.
func (c *Config) ApplyEnv() {
	env := LoadFromEnv()
	base := Default()

	// Only fields the environment actually changed move over.
	if env.Database.DataDir != base.Database.DataDir {
		c.Database.DataDir = env.Database.DataDir
	}
	if env.Database.InMemory != base.Database.InMemory {
		c.Database.InMemory = env.Database.InMemory
	}
	if env.Database.SyncWrites != base.Database.SyncWrites {
		c.Database.SyncWrites = env.Database.SyncWrites
	}
	if env.Database.LowMemory != base.Database.LowMemory {
		c.Database.LowMemory = env.Database.LowMemory
	}
	if env.Database.MaxMemory != base.Database.MaxMemory {
		c.Database.MaxMemory = env.Database.MaxMemory
	}
	if env.Database.Partitions != base.Database.Partitions {
		c.Database.Partitions = env.Database.Partitions
	}
	if env.Database.FlushConcurrency != base.Database.FlushConcurrency {
		c.Database.FlushConcurrency = env.Database.FlushConcurrency
	}
	if env.Engine.ReuseThreshold != base.Engine.ReuseThreshold {
		c.Engine.ReuseThreshold = env.Engine.ReuseThreshold
	}
	if env.Engine.NeighborRegions != base.Engine.NeighborRegions {
		c.Engine.NeighborRegions = env.Engine.NeighborRegions
	}
	if env.Engine.GrowthStep != base.Engine.GrowthStep {
		c.Engine.GrowthStep = env.Engine.GrowthStep
	}
	if env.Engine.Quantizer != base.Engine.Quantizer {
		c.Engine.Quantizer = env.Engine.Quantizer
	}
	if env.Engine.CodebookSize != base.Engine.CodebookSize {
		c.Engine.CodebookSize = env.Engine.CodebookSize
	}
	if env.Engine.CodebookDecay != base.Engine.CodebookDecay {
		c.Engine.CodebookDecay = env.Engine.CodebookDecay
	}
	if env.Engine.SizingStrategy != base.Engine.SizingStrategy {
		c.Engine.SizingStrategy = env.Engine.SizingStrategy
	}
	if env.Engine.ComplexityMode != base.Engine.ComplexityMode {
		c.Engine.ComplexityMode = env.Engine.ComplexityMode
	}
	if env.Engine.IdleEviction != base.Engine.IdleEviction {
		c.Engine.IdleEviction = env.Engine.IdleEviction
	}
	if env.Engine.AffinityCacheSize != base.Engine.AffinityCacheSize {
		c.Engine.AffinityCacheSize = env.Engine.AffinityCacheSize
	}
	if env.Engine.AffinityCacheTTL != base.Engine.AffinityCacheTTL {
		c.Engine.AffinityCacheTTL = env.Engine.AffinityCacheTTL
	}
	if env.Engine.EncoderCacheSize != base.Engine.EncoderCacheSize {
		c.Engine.EncoderCacheSize = env.Engine.EncoderCacheSize
	}
	if env.Logging.Debug != base.Logging.Debug {
		c.Logging.Debug = env.Logging.Debug
	}
}

// Validate checks the configuration for contradictions that clamping cannot
// paper over. The engine tolerates out-of-range tuning numbers, so only
// structurally invalid setups fail here.
func (c *Config) Validate() error {
	if c.Database.DataDir == "" && !c.Database.InMemory {
		return fmt.Errorf("database: data_dir is required unless in_memory is set")
	}
	if c.Database.Partitions < 1 || c.Database.Partitions > 256 {
		return fmt.Errorf("database: partitions must be in [1, 256], got %d", c.Database.Partitions)
	}
	if c.Database.FlushConcurrency < 1 {
		return fmt.Errorf("database: flush_concurrency must be at least 1, got %d", c.Database.FlushConcurrency)
	}
	if c.Database.MaxMemory != "" && !validMemorySize(c.Database.MaxMemory) {
		return fmt.Errorf("database: cannot parse max_memory %q", c.Database.MaxMemory)
	}
	switch c.Engine.Quantizer {
	case "codebook", "lsh":
	default:
		return fmt.Errorf("engine: unknown quantizer %q (want codebook or lsh)", c.Engine.Quantizer)
	}
	switch c.Engine.SizingStrategy {
	case "hypernet", "stochastic":
	default:
		return fmt.Errorf("engine: unknown sizing_strategy %q (want hypernet or stochastic)", c.Engine.SizingStrategy)
	}
	switch c.Engine.ComplexityMode {
	case "entropy", "variance":
	default:
		return fmt.Errorf("engine: unknown complexity_mode %q (want entropy or variance)", c.Engine.ComplexityMode)
	}
	if c.Engine.ReuseThreshold <= 0 || c.Engine.ReuseThreshold > 1 {
		return fmt.Errorf("engine: reuse_threshold must be in (0, 1], got %v", c.Engine.ReuseThreshold)
	}
	return nil
}

// String returns a compact summary suitable for startup logging.
func (c *Config) String() string {
	dir := c.Database.DataDir
	if c.Database.InMemory {
		dir = "(in-memory)"
	}
	return fmt.Sprintf(
		"Config{DataDir: %s, Partitions: %d, Quantizer: %s, Reuse: %.2f, Sizing: %s}",
		dir, c.Database.Partitions, c.Engine.Quantizer,
		c.Engine.ReuseThreshold, c.Engine.SizingStrategy,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// ParseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func ParseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

func validMemorySize(s string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(s))
	if trimmed == "" || trimmed == "0" || trimmed == "UNLIMITED" {
		return true
	}
	return ParseMemorySize(s) > 0
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// LowMemoryProfile reports whether the configured memory cap calls for the
// storage layer's reduced-buffer profile.
func (c *DatabaseConfig) LowMemoryProfile() bool {
	if c.LowMemory {
		return true
	}
	limit := ParseMemorySize(c.MaxMemory)
	return limit > 0 && limit < 256*1024*1024
}
