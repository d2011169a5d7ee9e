package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// BadgerStore provides persistent storage using BadgerDB.
//
// Features:
//   - Atomic writes per record, batched writes per partition
//   - Persistent storage to disk with crash recovery
//   - Safe for concurrent use from multiple goroutines
//
// Key structure:
//   - Cluster index: 0x01 + clusterID -> envelope(Summary)
//   - Neuron banks:  0x02 + partition + 0x00 + clusterID -> envelope(Bank)
//   - Singletons:    0x03..0x09 -> envelope(family)
//
// Example:
//
//	store, err := storage.NewBadgerStore("./data/munindb")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	summaries, err := store.LoadSummaries()
type BadgerStore struct {
	db         *badger.DB
	partitions int
	flushLimit int
	mu         sync.RWMutex // protects closed
	closed     bool
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing.
	// Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging. If nil, BadgerDB stays quiet.
	Logger badger.Logger

	// LowMemory shrinks buffers further for memory-constrained hosts.
	LowMemory bool

	// Partitions is the neuron-bank partition count. Must match the
	// value the store was created with; 0 means DefaultPartitions.
	Partitions int

	// FlushConcurrency bounds how many partitions FlushBanks writes in
	// parallel. 0 means 4.
	FlushConcurrency int
}

// NewBadgerStore creates a persistent store with default settings.
//
// This is the simplest way to open storage: data lives under dataDir and
// survives restarts.
//
// ELI12:
//
// Think of the store like a school binder with nine labeled dividers, one
// per kind of thing the engine remembers. NewBadgerStore hands you the
// binder; close it when you are done so nothing falls out.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreWithOptions creates a BadgerStore with custom configuration.
//
// Example - in-memory store for tests:
//
//	store, err := storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
//		InMemory: true,
//	})
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	if opts.Partitions <= 0 {
		opts.Partitions = DefaultPartitions
	}
	if opts.Partitions > MaxPartitions {
		return nil, fmt.Errorf("%w: partition count %d exceeds %d",
			ErrInvalidData, opts.Partitions, MaxPartitions)
	}
	if opts.FlushConcurrency <= 0 {
		opts.FlushConcurrency = 4
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Quiet by default; badger's stock logger is chatty.
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	// Reduced buffer sizes, always applied: records are small JSON
	// envelopes and the stock 1GB value log is wasteful.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).
			WithBlockCacheSize(16 << 20).
			WithIndexCacheSize(8 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:         db,
		partitions: opts.Partitions,
		flushLimit: opts.FlushConcurrency,
	}, nil
}

// NewBadgerStoreInMemory creates an in-memory store for testing. Data is
// lost when the store is closed.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

func (s *BadgerStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// put writes one enveloped record.
func (s *BadgerStore) put(key []byte, kind string, v any) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	data, err := encodeRecord(kind, v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// get reads one enveloped record; found=false when the key was never
// written.
func (s *BadgerStore) get(key []byte, kind string, out any) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return decodeRecord(val, kind, out)
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// SaveSummary upserts one cluster-index entry.
func (s *BadgerStore) SaveSummary(sum *cluster.Summary) error {
	if sum == nil {
		return ErrInvalidData
	}
	if sum.ID == "" {
		return ErrInvalidID
	}
	return s.put(summaryKey(sum.ID), kindSummary, sum)
}

// LoadSummaries reads the whole cluster index. An empty store yields an
// empty slice: that is cold start, not an error.
func (s *BadgerStore) LoadSummaries() ([]*cluster.Summary, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var out []*cluster.Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixClusterIndex}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sum cluster.Summary
			if err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, kindSummary, &sum)
			}); err != nil {
				return err
			}
			out = append(out, &sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveBank writes one cluster's membership into its partition.
func (s *BadgerStore) SaveBank(partition int, bank *cluster.Bank) error {
	if bank == nil {
		return ErrInvalidData
	}
	if bank.ClusterID == "" {
		return ErrInvalidID
	}
	if err := validatePartition(partition, s.partitions); err != nil {
		return err
	}
	return s.put(bankKey(partition, bank.ClusterID), kindBank, bank)
}

// LoadBank hydrates one cluster's membership from its partition.
func (s *BadgerStore) LoadBank(partition int, clusterID string) (*cluster.Bank, bool, error) {
	if clusterID == "" {
		return nil, false, ErrInvalidID
	}
	if err := validatePartition(partition, s.partitions); err != nil {
		return nil, false, err
	}
	var bank cluster.Bank
	found, err := s.get(bankKey(partition, clusterID), kindBank, &bank)
	if err != nil || !found {
		return nil, found, err
	}
	return &bank, true, nil
}

// FlushBanks writes many banks grouped by partition, one write batch per
// partition, at most flushLimit partitions in flight. The first failure
// cancels the rest.
func (s *BadgerStore) FlushBanks(ctx context.Context, banks map[int][]*cluster.Bank) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if len(banks) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.flushLimit)

	for partition, list := range banks {
		if err := validatePartition(partition, s.partitions); err != nil {
			return err
		}
		// Shadow copies keep per-iteration capture under a go <1.22 directive.
		partition, list := partition, list
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			wb := s.db.NewWriteBatch()
			defer wb.Cancel()

			for _, bank := range list {
				if bank == nil || bank.ClusterID == "" {
					return ErrInvalidData
				}
				data, err := encodeRecord(kindBank, bank)
				if err != nil {
					return err
				}
				if err := wb.Set(bankKey(partition, bank.ClusterID), data); err != nil {
					return err
				}
			}
			return wb.Flush()
		})
	}
	return g.Wait()
}

// SaveSynapses persists the synapse graph.
func (s *BadgerStore) SaveSynapses(state *synapse.State) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixSynapses}, kindSynapses, state)
}

// LoadSynapses reads the synapse graph.
func (s *BadgerStore) LoadSynapses() (*synapse.State, bool, error) {
	var state synapse.State
	found, err := s.get([]byte{prefixSynapses}, kindSynapses, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveRegionMap persists region -> cluster ids.
func (s *BadgerStore) SaveRegionMap(regions map[quantize.RegionCode][]string) error {
	if regions == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixRegionMap}, kindRegions, regions)
}

// LoadRegionMap reads region -> cluster ids.
func (s *BadgerStore) LoadRegionMap() (map[quantize.RegionCode][]string, bool, error) {
	regions := make(map[quantize.RegionCode][]string)
	found, err := s.get([]byte{prefixRegionMap}, kindRegions, &regions)
	if err != nil || !found {
		return nil, found, err
	}
	return regions, true, nil
}

// SaveActivations persists activation statistics.
func (s *BadgerStore) SaveActivations(state *activation.State) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixActivations}, kindActivations, state)
}

// LoadActivations reads activation statistics.
func (s *BadgerStore) LoadActivations() (*activation.State, bool, error) {
	var state activation.State
	found, err := s.get([]byte{prefixActivations}, kindActivations, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveCodebook persists the quantizer codebook.
func (s *BadgerStore) SaveCodebook(state *quantize.CodebookState) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixCodebook}, kindCodebook, state)
}

// LoadCodebook reads the quantizer codebook. Absence is the normal
// first-run state.
func (s *BadgerStore) LoadCodebook() (*quantize.CodebookState, bool, error) {
	var state quantize.CodebookState
	found, err := s.get([]byte{prefixCodebook}, kindCodebook, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveFeatureRegistry persists feature name -> id.
func (s *BadgerStore) SaveFeatureRegistry(features map[string]int) error {
	if features == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixFeatures}, kindFeatures, features)
}

// LoadFeatureRegistry reads feature name -> id.
func (s *BadgerStore) LoadFeatureRegistry() (map[string]int, bool, error) {
	features := make(map[string]int)
	found, err := s.get([]byte{prefixFeatures}, kindFeatures, &features)
	if err != nil || !found {
		return nil, found, err
	}
	return features, true, nil
}

// SaveCapacities persists concept capacity targets.
func (s *BadgerStore) SaveCapacities(targets map[string]float64) error {
	if targets == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixCapacities}, kindCapacities, targets)
}

// LoadCapacities reads concept capacity targets.
func (s *BadgerStore) LoadCapacities() (map[string]float64, bool, error) {
	targets := make(map[string]float64)
	found, err := s.get([]byte{prefixCapacities}, kindCapacities, &targets)
	if err != nil || !found {
		return nil, found, err
	}
	return targets, true, nil
}

// SaveMeta persists store metadata.
func (s *BadgerStore) SaveMeta(m *Meta) error {
	if m == nil {
		return ErrInvalidData
	}
	return s.put([]byte{prefixMeta}, kindMeta, m)
}

// LoadMeta reads store metadata.
func (s *BadgerStore) LoadMeta() (*Meta, bool, error) {
	var m Meta
	found, err := s.get([]byte{prefixMeta}, kindMeta, &m)
	if err != nil || !found {
		return nil, found, err
	}
	return &m, true, nil
}

// Partitions returns the store's bank partition count.
func (s *BadgerStore) Partitions() int { return s.partitions }

// SizeBytes returns the approximate database size (LSM plus value log).
func (s *BadgerStore) SizeBytes() int64 {
	if err := s.ensureOpen(); err != nil {
		return 0
	}
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// Sync forces all writes to disk. Useful before a planned shutdown.
func (s *BadgerStore) Sync() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Sync()
}

// RunGC runs one value-log garbage collection pass. Call periodically from
// maintenance; badger reports an error when there was nothing to collect,
// which callers may ignore.
func (s *BadgerStore) RunGC() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.RunValueLogGC(0.5)
}

// Close shuts the store down. Further calls are no-ops.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
