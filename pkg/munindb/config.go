package munindb

import (
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/capacity"
	"github.com/orneryd/munindb/pkg/hypernet"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// Quantizer strategy names for Config.Quantizer.
const (
	QuantizerCodebook = "codebook"
	QuantizerLSH      = "lsh"
)

// Config holds MuninDB engine configuration.
//
// Every constant the learn and process pipelines depend on lives here, with
// the subsystem tunables nested under their own sections. DefaultConfig
// returns the production values; zero or out-of-range fields are repaired
// at Open rather than rejected.
//
// Example:
//
//	cfg := munindb.DefaultConfig()
//	cfg.ReuseThreshold = 0.9  // stricter cluster reuse
//	cfg.Quantizer = munindb.QuantizerLSH
//
//	db, err := munindb.Open("./data", cfg)
type Config struct {
	// ReuseThreshold is the cosine similarity gate: an existing cluster
	// is reused only when it scores at or above this against the query.
	// The single constant that most directly governs memory growth.
	ReuseThreshold float64 `yaml:"reuse_threshold"`

	// NeighborRegions is how many nearest regions join the candidate
	// search beyond the assigned one.
	NeighborRegions int `yaml:"neighbor_regions"`

	// GrowthStep caps growth per learn call after a concept's first
	// allocation. First allocation is uncapped.
	GrowthStep int `yaml:"growth_step"`

	// TrainTarget is the activation every member is trained toward.
	TrainTarget float64 `yaml:"train_target"`

	// TrainRate is the delta-rule learning rate.
	TrainRate float64 `yaml:"train_rate"`

	// FiringThreshold gates Hebbian participation: only members whose
	// output exceeds it co-activate.
	FiringThreshold float64 `yaml:"firing_threshold"`

	// LinkFanout bounds cross-cluster synapse creation per learn call.
	LinkFanout int `yaml:"link_fanout"`

	// LinkStrength is the fixed co-activation strength used for
	// cross-cluster links.
	LinkStrength float64 `yaml:"link_strength"`

	// TopClusters is how many accumulated clusters the process pipeline
	// activates.
	TopClusters int `yaml:"top_clusters"`

	// AnchorCount is how many anchor neuron ids each cluster summary
	// carries for cross-cluster linking.
	AnchorCount int `yaml:"anchor_count"`

	// IdleEviction is how long a cluster may go untouched before
	// maintenance unloads it from memory.
	IdleEviction time.Duration `yaml:"idle_eviction"`

	// MaxRegions bounds the activation tracker; maintenance prunes the
	// least-used regions beyond it. 0 disables pruning.
	MaxRegions int `yaml:"max_regions"`

	// AffinityCacheSize and AffinityCacheTTL tune the concept-routing
	// cache on the process path.
	AffinityCacheSize int           `yaml:"affinity_cache_size"`
	AffinityCacheTTL  time.Duration `yaml:"affinity_cache_ttl"`

	// EncoderCacheSize bounds the token-encoding LRU.
	EncoderCacheSize int `yaml:"encoder_cache_size"`

	// Quantizer selects the region strategy: "codebook" (learned,
	// preferred) or "lsh" (static, legacy).
	Quantizer string `yaml:"quantizer"`

	// LSHBits is the hyperplane count for the legacy quantizer.
	LSHBits int `yaml:"lsh_bits"`

	// Seed fixes every stochastic choice (LSH hyperplanes, stochastic
	// sizing jitter).
	Seed int64 `yaml:"seed"`

	// Subsystem tunables.
	Codebook   quantize.CodebookConfig `yaml:"codebook"`
	Activation activation.Config       `yaml:"activation"`
	Sizing     hypernet.Config         `yaml:"sizing"`
	Synapse    synapse.Config          `yaml:"synapse"`
	Capacity   capacity.Config         `yaml:"capacity"`

	// Storage tuning, applied when Open builds the backing store.
	Partitions       int  `yaml:"partitions"`
	FlushConcurrency int  `yaml:"flush_concurrency"`
	SyncWrites       bool `yaml:"sync_writes"`
	LowMemory        bool `yaml:"low_memory"`

	// Logger receives engine logs. Nil stays silent.
	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns production defaults for the engine.
func DefaultConfig() *Config {
	return &Config{
		ReuseThreshold:    0.85,
		NeighborRegions:   3,
		GrowthStep:        50,
		TrainTarget:       0.8,
		TrainRate:         0.1,
		FiringThreshold:   0.3,
		LinkFanout:        3,
		LinkStrength:      0.5,
		TopClusters:       5,
		AnchorCount:       3,
		IdleEviction:      10 * time.Minute,
		MaxRegions:        4096,
		AffinityCacheSize: 1024,
		AffinityCacheTTL:  5 * time.Minute,
		EncoderCacheSize:  4096,
		Quantizer:         QuantizerCodebook,
		LSHBits:           16,
		Seed:              42,
		Codebook:          quantize.DefaultCodebookConfig(),
		Activation:        activation.DefaultConfig(),
		Sizing:            hypernet.DefaultConfig(),
		Synapse:           synapse.DefaultConfig(),
		Capacity:          capacity.DefaultConfig(),
		Partitions:        16,
		FlushConcurrency:  4,
	}
}

// sanitize repairs out-of-range values in place. Clamping beats rejecting:
// a workable engine with defaults is better than a refused open.
func (c *Config) sanitize() {
	if c.ReuseThreshold <= 0 || c.ReuseThreshold > 1 {
		c.ReuseThreshold = 0.85
	}
	if c.NeighborRegions < 0 {
		c.NeighborRegions = 3
	}
	if c.GrowthStep <= 0 {
		c.GrowthStep = 50
	}
	if c.TrainTarget <= 0 || c.TrainTarget >= 1 {
		c.TrainTarget = 0.8
	}
	if c.TrainRate <= 0 || c.TrainRate > 1 {
		c.TrainRate = 0.1
	}
	if c.FiringThreshold < 0 || c.FiringThreshold >= 1 {
		c.FiringThreshold = 0.3
	}
	if c.LinkFanout < 0 {
		c.LinkFanout = 3
	}
	if c.LinkStrength <= 0 || c.LinkStrength > 1 {
		c.LinkStrength = 0.5
	}
	if c.TopClusters <= 0 {
		c.TopClusters = 5
	}
	if c.AnchorCount <= 0 {
		c.AnchorCount = 3
	}
	if c.IdleEviction <= 0 {
		c.IdleEviction = 10 * time.Minute
	}
	if c.MaxRegions < 0 {
		c.MaxRegions = 0
	}
	if c.AffinityCacheSize <= 0 {
		c.AffinityCacheSize = 1024
	}
	if c.AffinityCacheTTL < 0 {
		c.AffinityCacheTTL = 5 * time.Minute
	}
	if c.EncoderCacheSize <= 0 {
		c.EncoderCacheSize = 4096
	}
	if c.Quantizer != QuantizerLSH {
		c.Quantizer = QuantizerCodebook
	}
	if c.LSHBits <= 0 || c.LSHBits > 64 {
		c.LSHBits = 16
	}
	if c.Partitions <= 0 {
		c.Partitions = 16
	}
	if c.FlushConcurrency <= 0 {
		c.FlushConcurrency = 4
	}
}
