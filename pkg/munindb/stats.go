package munindb

import (
	"context"
	"fmt"
	"io"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cache"
	"github.com/orneryd/munindb/pkg/capacity"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/encode"
	"github.com/orneryd/munindb/pkg/hypernet"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/storage"
	"github.com/orneryd/munindb/pkg/synapse"
)

// DBStats holds the basic read-only counters.
type DBStats struct {
	LoadedClusters int    `json:"loaded_clusters"`
	TotalClusters  int    `json:"total_clusters"`
	TotalNeurons   int    `json:"total_neurons"`
	SynapseCount   int    `json:"synapse_count"`
	RegionCount    int    `json:"region_count"`
	StorageBytes   int64  `json:"storage_bytes"`
	LearnEvents    uint64 `json:"learn_events"`
}

// EnhancedStats adds subsystem diagnostics to the basic counters.
type EnhancedStats struct {
	DBStats

	Concepts       int                   `json:"concepts"`
	EncoderCache   encode.CacheStats     `json:"encoder_cache"`
	AffinityCache  cache.Stats           `json:"affinity_cache"`
	CodebookSeeded int                   `json:"codebook_seeded"`
	CommitmentLoss float64               `json:"commitment_loss"`
	TopRegions     []quantize.RegionCode `json:"top_regions,omitempty"`
	Mastery        map[string]float64    `json:"mastery,omitempty"`
}

// Stats returns the basic counters. Read-only; callable any time before
// Close.
func (db *DB) Stats() DBStats {
	totalClusters := len(db.summaries)
	totalNeurons := 0
	for _, s := range db.summaries {
		totalNeurons += s.NeuronCount
	}
	// Clusters born this session aren't indexed until the next save.
	for id, c := range db.clusters {
		if _, indexed := db.summaries[id]; indexed {
			continue
		}
		totalClusters++
		totalNeurons += c.Size()
	}

	var learnEvents uint64
	if db.meta != nil {
		learnEvents = db.meta.LearnEvents
	}

	return DBStats{
		LoadedClusters: len(db.clusters),
		TotalClusters:  totalClusters,
		TotalNeurons:   totalNeurons,
		SynapseCount:   db.graph.EdgeCount(),
		RegionCount:    len(db.regions),
		StorageBytes:   db.store.SizeBytes(),
		LearnEvents:    learnEvents,
	}
}

// EnhancedStats returns the basic counters plus cache hit rates, codebook
// diagnostics, and the most-activated regions.
func (db *DB) EnhancedStats() EnhancedStats {
	stats := EnhancedStats{
		DBStats:       db.Stats(),
		Concepts:      db.capacity.Len(),
		EncoderCache:  db.encoder.Stats(),
		AffinityCache: db.affinity.Stats(),
		TopRegions:    db.tracker.TopRegions(5),
	}
	if db.codebook != nil {
		stats.CodebookSeeded = db.codebook.SeededCount()
		stats.CommitmentLoss = db.codebook.CommitmentLoss()
	}
	// Mastery hydrates tagged clusters; acceptable on a diagnostics call.
	if targets := db.capacity.Snapshot(); len(targets) > 0 {
		stats.Mastery = make(map[string]float64, len(targets))
		for concept := range targets {
			stats.Mastery[concept] = db.ConceptMasteryLevel(concept)
		}
	}
	return stats
}

// ExportSnapshot saves all dirty state and streams the whole store as one
// compressed portable document. The writer should point at a temp file the
// caller renames into place; the engine side never partially overwrites
// durable state.
func (db *DB) ExportSnapshot(ctx context.Context, w io.Writer) error {
	if db.closed {
		return ErrClosed
	}
	if err := db.Save(ctx); err != nil {
		return fmt.Errorf("failed to flush before export: %w", err)
	}
	return storage.ExportSnapshot(w, db.store)
}

// ImportSnapshot replaces the store contents with a snapshot stream and
// rebuilds all in-memory state from it. Existing unsaved work is discarded.
func (db *DB) ImportSnapshot(ctx context.Context, r io.Reader) error {
	if db.closed {
		return ErrClosed
	}
	if err := storage.ImportSnapshot(ctx, r, db.store); err != nil {
		return fmt.Errorf("failed to import snapshot: %w", err)
	}

	// Rebuild every subsystem from the imported state.
	db.clusters = make(map[string]*cluster.NeuronCluster)
	db.summaries = make(map[string]*cluster.Summary)
	db.regions = make(map[quantize.RegionCode][]string)
	db.regionsDirty = false
	db.recent = nil
	db.graph = synapse.NewGraph(db.cfg.Synapse)
	db.tracker = activation.NewTracker(db.cfg.Activation)
	sizing := db.cfg.Sizing
	sizing.Seed = db.cfg.Seed
	db.capacity = capacity.NewController(db.cfg.Capacity, hypernet.New(sizing))
	if db.codebook != nil {
		db.codebook = quantize.NewCodebookQuantizer(db.cfg.Codebook)
		db.quant = db.codebook
	}
	db.features = newFeatureRegistry()
	db.affinity.Clear()
	db.encoder.Clear()

	db.initialized = false
	return db.Initialize(ctx)
}
