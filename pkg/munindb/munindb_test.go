package munindb

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenWithStore(storage.NewMemoryStore(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open("", nil)
	require.NoError(t, err)
	defer db.Close()

	stats := db.Stats()
	assert.Equal(t, 0, stats.TotalClusters)
	assert.Equal(t, 0, stats.SynapseCount)
}

func TestLearnConceptAllocates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	res, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0, "red": 0.7})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotEmpty(t, res.ClusterID)

	// First allocation is uncapped: the full sized target materializes.
	assert.Equal(t, res.NeuronsInvolved, res.NeuronsCreated)
	assert.GreaterOrEqual(t, res.NeuronsInvolved, 50)
	assert.LessOrEqual(t, res.NeuronsInvolved, 600)

	stats := db.Stats()
	assert.Equal(t, 1, stats.TotalClusters)
	assert.Equal(t, 1, stats.LoadedClusters)
	assert.Equal(t, uint64(1), stats.LearnEvents)
	assert.Greater(t, stats.SynapseCount, 0, "co-firing members should form synapses")
}

func TestLearnEmptyConcept(t *testing.T) {
	db := testDB(t)
	_, err := db.LearnConcept(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReuseGate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)

	// Identical token encodes to an identical vector: cosine 1.0 against
	// the centroid, well past the reuse gate.
	second, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ClusterID, second.ClusterID, "near-identical pattern must reuse the cluster")

	// A dissimilar token must not clear the gate.
	other, err := db.LearnConcept(ctx, "zebra", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ClusterID, other.ClusterID, "dissimilar pattern must create its own cluster")
	assert.Equal(t, 2, db.Stats().TotalClusters)
}

func TestRepeatedLearningCapsGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GrowthStep = 10
	db, err := OpenWithStore(storage.NewMemoryStore(), cfg)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	first, err := db.LearnConcept(ctx, "glacier", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := db.LearnConcept(ctx, "glacier", nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.NeuronsCreated, cfg.GrowthStep,
			"growth after first allocation is stepped")
		assert.Equal(t, first.ClusterID, res.ClusterID)
	}
}

func TestProcessInputEndToEnd(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	apple, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0, "red": 0.7})
	require.NoError(t, err)
	_, err = db.LearnConcept(ctx, "banana", map[string]float64{"fruit": 1.0, "yellow": 0.7})
	require.NoError(t, err)

	out, err := db.ProcessInput(ctx, "I ate an apple", nil)
	require.NoError(t, err)

	assert.Contains(t, out.ActivatedClusters, apple.ClusterID,
		"the apple cluster must activate for an apple input")
	assert.Greater(t, out.Confidence, 0.0)
	assert.Greater(t, out.ActivatedNeuronCount, 0)
	assert.Contains(t, out.Response, "apple")
}

func TestProcessInputUnknown(t *testing.T) {
	db := testDB(t)

	out, err := db.ProcessInput(context.Background(), "quixotic zymurgy", nil)
	require.NoError(t, err)
	assert.Empty(t, out.ActivatedClusters)
	assert.Zero(t, out.Confidence)
}

func TestProcessInputEmpty(t *testing.T) {
	db := testDB(t)

	out, err := db.ProcessInput(context.Background(), "  ?!  ", nil)
	require.NoError(t, err)
	assert.Zero(t, out.Confidence)
	assert.Empty(t, out.ActivatedClusters)
}

func TestProcessDoesNotCreateClusters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	before := db.Stats().TotalClusters

	_, err = db.ProcessInput(ctx, "apple banana cherry mango", nil)
	require.NoError(t, err)
	assert.Equal(t, before, db.Stats().TotalClusters, "process path never creates clusters")
}

func TestConceptMasteryLevel(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	assert.Zero(t, db.ConceptMasteryLevel("apple"), "unknown concept has zero mastery")

	for i := 0; i < 5; i++ {
		_, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0})
		require.NoError(t, err)
	}

	mastery := db.ConceptMasteryLevel("apple")
	assert.Greater(t, mastery, 0.0)
	assert.LessOrEqual(t, mastery, 1.0)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"ate", "an", "apple"}, Tokenize("I ate an apple!"))
	assert.Equal(t, []string{"hello", "world"}, Tokenize("Hello, hello... WORLD"))
	assert.Empty(t, Tokenize("a ? !"))
	assert.Equal(t, []string{"abc123"}, Tokenize("abc123"))
}

func TestSaveAndRoundTrip(t *testing.T) {
	st := storage.NewMemoryStore()
	ctx := context.Background()

	db, err := OpenWithStore(st, DefaultConfig())
	require.NoError(t, err)

	apple, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0, "red": 0.7})
	require.NoError(t, err)
	banana, err := db.LearnConcept(ctx, "banana", map[string]float64{"fruit": 1.0, "yellow": 0.7})
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx))

	before := db.Stats()

	// A fresh instance over the same store must reproduce the state.
	db2, err := OpenWithStore(st, DefaultConfig())
	require.NoError(t, err)

	after := db2.Stats()
	assert.Equal(t, before.TotalClusters, after.TotalClusters)
	assert.Equal(t, before.TotalNeurons, after.TotalNeurons)
	assert.Equal(t, before.SynapseCount, after.SynapseCount)
	assert.Equal(t, before.RegionCount, after.RegionCount)
	assert.Equal(t, before.LearnEvents, after.LearnEvents)
	assert.Equal(t, 0, after.LoadedClusters, "clusters hydrate lazily")

	// Retrieval works against the reloaded state.
	out, err := db2.ProcessInput(ctx, "an apple a day", nil)
	require.NoError(t, err)
	assert.Contains(t, out.ActivatedClusters, apple.ClusterID)
	assert.NotContains(t, out.ActivatedClusters[:1], banana.ClusterID)

	// Learning the same concept again reuses the persisted cluster.
	again, err := db2.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	assert.Equal(t, apple.ClusterID, again.ClusterID)
}

func TestSaveIsRepeatable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)

	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Save(ctx))
	require.NoError(t, db.Save(ctx))
}

func TestMaintenanceEvictsIdleClusters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleEviction = time.Nanosecond
	st := storage.NewMemoryStore()
	db, err := OpenWithStore(st, cfg)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	res, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	require.Equal(t, 1, db.Stats().LoadedClusters)

	time.Sleep(time.Millisecond)
	require.NoError(t, db.Maintenance(ctx))

	stats := db.Stats()
	assert.Equal(t, 0, stats.LoadedClusters, "idle cluster evicted from memory")
	assert.Equal(t, 1, stats.TotalClusters, "eviction never deletes from storage")

	// The dirty cluster was force-saved before eviction: a fresh
	// instance sees its full membership.
	db2, err := OpenWithStore(st, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, res.NeuronsInvolved, db2.Stats().TotalNeurons)
}

func TestMaintenancePrunesSynapses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synapse.DecayRate = 0.1 // aggressive decay so one pass prunes
	db, err := OpenWithStore(storage.NewMemoryStore(), cfg)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	require.Greater(t, db.Stats().SynapseCount, 0)

	// Repeated aging sinks every weight below the prune threshold.
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Maintenance(ctx))
	}
	assert.Zero(t, db.Stats().SynapseCount)
}

func TestPersistentRoundTripOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir, nil)
	require.NoError(t, err)
	apple, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(dir, nil)
	require.NoError(t, err)
	defer db2.Close()

	assert.Equal(t, 1, db2.Stats().TotalClusters)
	out, err := db2.ProcessInput(ctx, "apple", nil)
	require.NoError(t, err)
	assert.Contains(t, out.ActivatedClusters, apple.ClusterID)
}

func TestSnapshotExportImport(t *testing.T) {
	ctx := context.Background()

	db, err := OpenWithStore(storage.NewMemoryStore(), DefaultConfig())
	require.NoError(t, err)
	apple, err := db.LearnConcept(ctx, "apple", map[string]float64{"fruit": 1.0})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, db.ExportSnapshot(ctx, &buf))
	exported := db.Stats()

	db2, err := OpenWithStore(storage.NewMemoryStore(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db2.ImportSnapshot(ctx, &buf))

	restored := db2.Stats()
	assert.Equal(t, exported.TotalClusters, restored.TotalClusters)
	assert.Equal(t, exported.TotalNeurons, restored.TotalNeurons)
	assert.Equal(t, exported.SynapseCount, restored.SynapseCount)

	out, err := db2.ProcessInput(ctx, "apple", nil)
	require.NoError(t, err)
	assert.Contains(t, out.ActivatedClusters, apple.ClusterID)
}

func TestClosedOperationsFail(t *testing.T) {
	db, err := OpenWithStore(storage.NewMemoryStore(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "close is idempotent")

	ctx := context.Background()
	_, err = db.LearnConcept(ctx, "apple", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.ProcessInput(ctx, "apple", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Save(ctx), ErrClosed)
	assert.ErrorIs(t, db.Maintenance(ctx), ErrClosed)
}

func TestEnhancedStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.LearnConcept(ctx, "apple", nil)
	require.NoError(t, err)
	_, err = db.ProcessInput(ctx, "apple", nil)
	require.NoError(t, err)

	stats := db.EnhancedStats()
	assert.Equal(t, 1, stats.Concepts)
	assert.Greater(t, stats.CodebookSeeded, 0, "learned quantizer seeds codes from observations")
	assert.NotEmpty(t, stats.TopRegions)
	assert.Greater(t, stats.EncoderCache.Hits+stats.EncoderCache.Misses, uint64(0))
}
