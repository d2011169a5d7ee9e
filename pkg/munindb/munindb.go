// Package munindb provides the main API for embedded MuninDB usage.
//
// MuninDB is a pattern-based associative memory engine: textual concepts
// are mapped onto dynamically sized clusters of trainable neurons, organized
// by learned similarity in a continuous feature space rather than by name
// lookup. The package coordinates the subsystems — deterministic feature
// encoding, online region quantization, novelty tracking, capacity control,
// Hebbian synapses, and partitioned durable storage — behind two public
// operations: learn a concept, process an input.
//
// Architecture:
//   - Encode: token → deterministic 128-dim unit vector
//   - Quantize: vector → region code (learned codebook or static LSH)
//   - Match: candidate clusters scored by cosine against centroids;
//     reuse at similarity ≥ ReuseThreshold, create otherwise
//   - Size: novelty, frequency, and complexity drive target neuron count
//   - Train: members trained toward a fixed target activation
//   - Link: co-firing members strengthen shared synapses
//
// Example Usage:
//
//	db, err := munindb.Open("./data", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	res, err := db.LearnConcept(ctx, "apple", map[string]float64{
//		"fruit": 1.0,
//		"red":   0.7,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("cluster %s, %d neurons\n", res.ClusterID, res.NeuronsInvolved)
//
//	out, err := db.ProcessInput(ctx, "I ate an apple", nil)
//	fmt.Printf("%s (confidence %.2f)\n", out.Response, out.Confidence)
//
// Concurrency:
//
// The engine is single-writer by contract. LearnConcept, ProcessInput,
// Save, and Maintenance must not run concurrently against one DB; callers
// needing parallelism serialize externally. Violating this is a programming
// error, not a recoverable condition. Storage flushes internally parallelize
// across partitions; that is the only sanctioned concurrency.
package munindb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cache"
	"github.com/orneryd/munindb/pkg/capacity"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/encode"
	"github.com/orneryd/munindb/pkg/hypernet"
	"github.com/orneryd/munindb/pkg/logger"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/storage"
	"github.com/orneryd/munindb/pkg/synapse"
)

// Errors returned by DB operations.
var (
	ErrClosed       = errors.New("database is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// DB is a MuninDB engine instance. It owns every subsystem explicitly —
// there are no package-level singletons — and is constructed once via Open
// or OpenWithStore.
type DB struct {
	cfg *Config
	log *zap.Logger

	store    storage.Store
	encoder  *encode.CachedEncoder
	quant    quantize.Quantizer
	codebook *quantize.CodebookQuantizer // nil on the LSH strategy
	tracker  *activation.Tracker
	capacity *capacity.Controller
	graph    *synapse.Graph
	affinity *cache.AffinityCache
	features *featureRegistry

	// clusters holds hydrated clusters; summaries indexes every cluster
	// the store knows, hydrated or not.
	clusters  map[string]*cluster.NeuronCluster
	summaries map[string]*cluster.Summary

	// regions maps region codes to the cluster ids registered under them.
	regions      map[quantize.RegionCode][]string
	regionsDirty bool

	// recent is a bounded ring of recently learned cluster ids, newest
	// first, feeding cross-cluster linking.
	recent []string

	meta        *storage.Meta
	initialized bool
	closed      bool
}

// Open creates or reopens a MuninDB instance at dataDir. An empty dataDir
// opens an ephemeral in-memory store. A nil config uses DefaultConfig.
func Open(dataDir string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.sanitize()

	var (
		st  storage.Store
		err error
	)
	if dataDir == "" {
		st = storage.NewMemoryStoreWithPartitions(cfg.Partitions)
	} else {
		st, err = storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
			DataDir:          dataDir,
			SyncWrites:       cfg.SyncWrites,
			LowMemory:        cfg.LowMemory,
			Partitions:       cfg.Partitions,
			FlushConcurrency: cfg.FlushConcurrency,
			Logger:           logger.NewBadgerAdapter(cfg.Logger),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
	}

	db, err := OpenWithStore(st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return db, nil
}

// OpenWithStore builds a DB over an existing store and runs Initialize.
// Tests use it with a MemoryStore; Open uses it with Badger.
func OpenWithStore(st storage.Store, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.sanitize()

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	db := &DB{
		cfg:       cfg,
		log:       log,
		store:     st,
		encoder:   encode.NewCachedEncoder(encode.NewFeatureEncoder(), cfg.EncoderCacheSize),
		tracker:   activation.NewTracker(cfg.Activation),
		graph:     synapse.NewGraph(cfg.Synapse),
		affinity:  cache.NewAffinityCache(cfg.AffinityCacheSize, cfg.AffinityCacheTTL),
		features:  newFeatureRegistry(),
		clusters:  make(map[string]*cluster.NeuronCluster),
		summaries: make(map[string]*cluster.Summary),
		regions:   make(map[quantize.RegionCode][]string),
	}

	sizing := cfg.Sizing
	sizing.Seed = cfg.Seed
	db.capacity = capacity.NewController(cfg.Capacity, hypernet.New(sizing))

	if cfg.Quantizer == QuantizerLSH {
		db.quant = quantize.NewLSHQuantizer(encode.Dim, cfg.LSHBits, cfg.Seed)
	} else {
		db.codebook = quantize.NewCodebookQuantizer(cfg.Codebook)
		db.quant = db.codebook
	}

	if err := db.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return db, nil
}

// Initialize loads every persisted entity family. It is idempotent and
// cold-start tolerant: a family that has never been saved comes back as
// empty defaults, never as an error. Only genuine I/O or decode failures
// abort the load.
func (db *DB) Initialize(ctx context.Context) error {
	if db.closed {
		return ErrClosed
	}
	if db.initialized {
		return nil
	}
	_ = ctx

	meta, found, err := db.store.LoadMeta()
	if err != nil {
		return fmt.Errorf("failed to load meta: %w", err)
	}
	if found {
		db.meta = meta
	} else {
		db.meta = &storage.Meta{
			SchemaVersion: storage.SchemaVersion,
			Partitions:    db.store.Partitions(),
			CreatedAt:     time.Now(),
		}
	}

	summaries, err := db.store.LoadSummaries()
	if err != nil {
		return fmt.Errorf("failed to load cluster index: %w", err)
	}
	for _, s := range summaries {
		db.summaries[s.ID] = s
	}

	if regions, found, err := db.store.LoadRegionMap(); err != nil {
		return fmt.Errorf("failed to load region map: %w", err)
	} else if found {
		db.regions = regions
	}

	if state, found, err := db.store.LoadSynapses(); err != nil {
		return fmt.Errorf("failed to load synapses: %w", err)
	} else if found {
		db.graph.Restore(state)
	}

	if state, found, err := db.store.LoadActivations(); err != nil {
		return fmt.Errorf("failed to load activation stats: %w", err)
	} else if found {
		db.tracker.Restore(state)
	}

	if db.codebook != nil {
		if state, found, err := db.store.LoadCodebook(); err != nil {
			return fmt.Errorf("failed to load codebook: %w", err)
		} else if found {
			db.codebook.Restore(state)
		}
		// Absent codebook is a cold start, not an error.
	}

	if features, found, err := db.store.LoadFeatureRegistry(); err != nil {
		return fmt.Errorf("failed to load feature registry: %w", err)
	} else if found {
		db.features.restore(features)
	}

	if targets, found, err := db.store.LoadCapacities(); err != nil {
		return fmt.Errorf("failed to load capacities: %w", err)
	} else if found {
		db.capacity.Restore(targets)
	}

	db.initialized = true
	db.log.Info("engine initialized",
		zap.Int("clusters", len(db.summaries)),
		zap.Int("regions", len(db.regions)),
		zap.Int("synapses", db.graph.EdgeCount()),
	)
	return nil
}

// Save flushes all dirty state: dirty clusters (banks batched by partition
// and written in parallel), the synapse graph, region map, activation
// stats, codebook, feature registry, capacities, and meta. Families are
// saved best-effort — one failure does not block the rest — and failures
// come back aggregated. Safe to call repeatedly; a clean engine saves
// nothing but meta.
func (db *DB) Save(ctx context.Context) error {
	if db.closed {
		return ErrClosed
	}

	var errs []error

	// Dirty clusters first: banks by partition, then summaries.
	banks := make(map[int][]*cluster.Bank)
	var dirty []*cluster.NeuronCluster
	for _, c := range db.clusters {
		if !c.IsDirty() {
			continue
		}
		dirty = append(dirty, c)
		p := storage.PartitionFor(c.ID(), db.store.Partitions())
		banks[p] = append(banks[p], c.Bank())
	}
	if len(banks) > 0 {
		if err := db.store.FlushBanks(ctx, banks); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush neuron banks: %w", err))
			dirty = nil // keep dirty flags set for the next attempt
		}
	}
	for _, c := range dirty {
		sum := c.Summary(db.cfg.AnchorCount)
		if err := db.store.SaveSummary(sum); err != nil {
			errs = append(errs, fmt.Errorf("failed to save summary %s: %w", c.ID(), err))
			continue
		}
		db.summaries[c.ID()] = sum
		c.MarkClean()
	}

	if db.graph.IsDirty() {
		if err := db.store.SaveSynapses(db.graph.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("failed to save synapses: %w", err))
		} else {
			db.graph.MarkClean()
		}
	}

	if db.regionsDirty {
		if err := db.store.SaveRegionMap(db.regions); err != nil {
			errs = append(errs, fmt.Errorf("failed to save region map: %w", err))
		} else {
			db.regionsDirty = false
		}
	}

	if err := db.store.SaveActivations(db.tracker.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("failed to save activation stats: %w", err))
	}

	if db.codebook != nil {
		if err := db.store.SaveCodebook(db.codebook.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("failed to save codebook: %w", err))
		}
	}

	if db.features.dirty {
		if err := db.store.SaveFeatureRegistry(db.features.snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("failed to save feature registry: %w", err))
		} else {
			db.features.dirty = false
		}
	}

	if db.capacity.IsDirty() {
		if err := db.store.SaveCapacities(db.capacity.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("failed to save capacities: %w", err))
		} else {
			db.capacity.MarkClean()
		}
	}

	db.meta.LastSavedAt = time.Now()
	if err := db.store.SaveMeta(db.meta); err != nil {
		errs = append(errs, fmt.Errorf("failed to save meta: %w", err))
	}

	if len(errs) > 0 {
		db.log.Warn("save completed with failures", zap.Int("failures", len(errs)))
		return errors.Join(errs...)
	}
	db.log.Debug("save complete", zap.Int("clusters_flushed", len(dirty)))
	return nil
}

// Maintenance runs the between-calls housekeeping pass: idle clusters are
// evicted from memory (dirty ones force-saved first), synapses age and weak
// ones are pruned, and stale activation regions are dropped. Never run it
// concurrently with LearnConcept or ProcessInput; the single-writer
// contract covers maintenance too.
func (db *DB) Maintenance(ctx context.Context) error {
	if db.closed {
		return ErrClosed
	}

	var errs []error
	now := time.Now()
	var evicted int
	for id, c := range db.clusters {
		if c.IdleFor(now) < db.cfg.IdleEviction {
			continue
		}
		if c.IsDirty() {
			if err := db.saveCluster(ctx, c); err != nil {
				// Never evict unsaved work; try again next pass.
				errs = append(errs, fmt.Errorf("failed to save %s before eviction: %w", id, err))
				continue
			}
		}
		delete(db.clusters, id)
		db.affinity.InvalidateCluster(id)
		evicted++
	}

	db.graph.Age()
	pruned := db.graph.Prune()

	var prunedRegions int
	if db.cfg.MaxRegions > 0 {
		prunedRegions = db.tracker.Prune(db.cfg.MaxRegions)
	}

	db.log.Debug("maintenance complete",
		zap.Int("evicted", evicted),
		zap.Int("synapses_pruned", pruned),
		zap.Int("regions_pruned", prunedRegions),
	)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// saveCluster persists a single cluster's bank and summary.
func (db *DB) saveCluster(ctx context.Context, c *cluster.NeuronCluster) error {
	_ = ctx
	p := storage.PartitionFor(c.ID(), db.store.Partitions())
	if err := db.store.SaveBank(p, c.Bank()); err != nil {
		return err
	}
	sum := c.Summary(db.cfg.AnchorCount)
	if err := db.store.SaveSummary(sum); err != nil {
		return err
	}
	db.summaries[c.ID()] = sum
	c.MarkClean()
	return nil
}

// ConceptMasteryLevel reports how strongly the engine responds to a concept
// it has been taught, in [0, 1]. Zero means unknown. The score is the mean
// margin by which tagged neurons fire above their resting output when shown
// the concept's own encoding.
func (db *DB) ConceptMasteryLevel(concept string) float64 {
	if db.closed || concept == "" {
		return 0
	}

	encoded := db.encoder.Encode(concept)
	v := db.activationVector(encoded, nil)

	var sum float64
	var n int
	for id, s := range db.summaries {
		if !containsLabel(s.Concepts, concept) {
			continue
		}
		c, err := db.loadCluster(id)
		if err != nil {
			continue
		}
		for _, neuron := range c.FindNeuronsByConcept(concept) {
			out := neuron.Activate(v)
			rest := 1.0 / (1.0 + math.Exp(-neuron.RestingPotential))
			if margin := out - rest; margin > 0 {
				sum += margin
			}
			n++
		}
	}
	// Also cover clusters created this session whose summaries have not
	// been written yet.
	for id, c := range db.clusters {
		if _, indexed := db.summaries[id]; indexed {
			continue
		}
		for _, neuron := range c.FindNeuronsByConcept(concept) {
			out := neuron.Activate(v)
			rest := 1.0 / (1.0 + math.Exp(-neuron.RestingPotential))
			if margin := out - rest; margin > 0 {
				sum += margin
			}
			n++
		}
	}
	if n == 0 {
		return 0
	}
	// A fully trained neuron clears its resting output by about half the
	// unit interval, so double the mean margin to use the whole range.
	mastery := 2 * sum / float64(n)
	if mastery > 1 {
		return 1
	}
	return mastery
}

// Close saves all dirty state and shuts the store. Idempotent.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}

	saveErr := db.Save(context.Background())
	db.closed = true

	if err := db.store.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return saveErr
}

// loadCluster returns the hydrated cluster, loading its bank from storage
// on a cache miss. The caller owns error handling; candidate search treats
// failures as a skipped candidate.
func (db *DB) loadCluster(id string) (*cluster.NeuronCluster, error) {
	if c, ok := db.clusters[id]; ok {
		c.Touch()
		return c, nil
	}
	s, ok := db.summaries[id]
	if !ok {
		return nil, fmt.Errorf("unknown cluster %s", id)
	}
	p := storage.PartitionFor(id, db.store.Partitions())
	bank, found, err := db.store.LoadBank(p, id)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate cluster %s: %w", id, err)
	}
	var neurons []*cluster.Neuron
	if found {
		neurons = bank.Neurons
	}
	c := cluster.Rehydrate(s, neurons)
	db.clusters[id] = c
	return c, nil
}

func (db *DB) newClusterID() string { return "cl-" + uuid.NewString() }
func (db *DB) newNeuronID() string  { return "n-" + uuid.NewString() }

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
