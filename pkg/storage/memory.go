package storage

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// MemoryStore is an in-memory Store for tests and ephemeral engines.
//
// Records are held as encoded bytes, exactly as BadgerStore would write
// them, so serialization bugs surface in memory-backed tests too and no
// caller can share memory with stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string][]byte
	partitions int
	flushLimit int
	closed     bool
}

// NewMemoryStore creates an empty in-memory store with default partitions.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithPartitions(DefaultPartitions)
}

// NewMemoryStoreWithPartitions creates an empty store with a custom bank
// partition count.
func NewMemoryStoreWithPartitions(partitions int) *MemoryStore {
	if partitions <= 0 || partitions > MaxPartitions {
		partitions = DefaultPartitions
	}
	return &MemoryStore{
		records:    make(map[string][]byte),
		partitions: partitions,
		flushLimit: 4,
	}
}

func (s *MemoryStore) putRecord(key []byte, kind string, v any) error {
	data, err := encodeRecord(kind, v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	s.records[string(key)] = data
	return nil
}

func (s *MemoryStore) getRecord(key []byte, kind string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStorageClosed
	}
	data, ok := s.records[string(key)]
	if !ok {
		return false, nil
	}
	if err := decodeRecord(data, kind, out); err != nil {
		return false, err
	}
	return true, nil
}

// SaveSummary upserts one cluster-index entry.
func (s *MemoryStore) SaveSummary(sum *cluster.Summary) error {
	if sum == nil {
		return ErrInvalidData
	}
	if sum.ID == "" {
		return ErrInvalidID
	}
	return s.putRecord(summaryKey(sum.ID), kindSummary, sum)
}

// LoadSummaries reads the whole cluster index, sorted by cluster id to
// match BadgerStore's key-ordered iteration.
func (s *MemoryStore) LoadSummaries() ([]*cluster.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageClosed
	}
	var out []*cluster.Summary
	for key, data := range s.records {
		if len(key) == 0 || key[0] != prefixClusterIndex {
			continue
		}
		var sum cluster.Summary
		if err := decodeRecord(data, kindSummary, &sum); err != nil {
			return nil, err
		}
		out = append(out, &sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveBank writes one cluster's membership into its partition.
func (s *MemoryStore) SaveBank(partition int, bank *cluster.Bank) error {
	if bank == nil {
		return ErrInvalidData
	}
	if bank.ClusterID == "" {
		return ErrInvalidID
	}
	if err := validatePartition(partition, s.partitions); err != nil {
		return err
	}
	return s.putRecord(bankKey(partition, bank.ClusterID), kindBank, bank)
}

// LoadBank hydrates one cluster's membership from its partition.
func (s *MemoryStore) LoadBank(partition int, clusterID string) (*cluster.Bank, bool, error) {
	if clusterID == "" {
		return nil, false, ErrInvalidID
	}
	if err := validatePartition(partition, s.partitions); err != nil {
		return nil, false, err
	}
	var bank cluster.Bank
	found, err := s.getRecord(bankKey(partition, clusterID), kindBank, &bank)
	if err != nil || !found {
		return nil, found, err
	}
	return &bank, true, nil
}

// FlushBanks writes banks grouped by partition. The parallel structure
// mirrors BadgerStore so contract tests exercise the same paths.
func (s *MemoryStore) FlushBanks(ctx context.Context, banks map[int][]*cluster.Bank) error {
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
			for _, bank := range list {
				if bank == nil || bank.ClusterID == "" {
					return ErrInvalidData
				}
				if err := s.putRecord(bankKey(partition, bank.ClusterID), kindBank, bank); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// SaveSynapses persists the synapse graph.
func (s *MemoryStore) SaveSynapses(state *synapse.State) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixSynapses}, kindSynapses, state)
}

// LoadSynapses reads the synapse graph.
func (s *MemoryStore) LoadSynapses() (*synapse.State, bool, error) {
	var state synapse.State
	found, err := s.getRecord([]byte{prefixSynapses}, kindSynapses, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveRegionMap persists region -> cluster ids.
func (s *MemoryStore) SaveRegionMap(regions map[quantize.RegionCode][]string) error {
	if regions == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixRegionMap}, kindRegions, regions)
}

// LoadRegionMap reads region -> cluster ids.
func (s *MemoryStore) LoadRegionMap() (map[quantize.RegionCode][]string, bool, error) {
	regions := make(map[quantize.RegionCode][]string)
	found, err := s.getRecord([]byte{prefixRegionMap}, kindRegions, &regions)
	if err != nil || !found {
		return nil, found, err
	}
	return regions, true, nil
}

// SaveActivations persists activation statistics.
func (s *MemoryStore) SaveActivations(state *activation.State) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixActivations}, kindActivations, state)
}

// LoadActivations reads activation statistics.
func (s *MemoryStore) LoadActivations() (*activation.State, bool, error) {
	var state activation.State
	found, err := s.getRecord([]byte{prefixActivations}, kindActivations, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveCodebook persists the quantizer codebook.
func (s *MemoryStore) SaveCodebook(state *quantize.CodebookState) error {
	if state == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixCodebook}, kindCodebook, state)
}

// LoadCodebook reads the quantizer codebook.
func (s *MemoryStore) LoadCodebook() (*quantize.CodebookState, bool, error) {
	var state quantize.CodebookState
	found, err := s.getRecord([]byte{prefixCodebook}, kindCodebook, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// SaveFeatureRegistry persists feature name -> id.
func (s *MemoryStore) SaveFeatureRegistry(features map[string]int) error {
	if features == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixFeatures}, kindFeatures, features)
}

// LoadFeatureRegistry reads feature name -> id.
func (s *MemoryStore) LoadFeatureRegistry() (map[string]int, bool, error) {
	features := make(map[string]int)
	found, err := s.getRecord([]byte{prefixFeatures}, kindFeatures, &features)
	if err != nil || !found {
		return nil, found, err
	}
	return features, true, nil
}

// SaveCapacities persists concept capacity targets.
func (s *MemoryStore) SaveCapacities(targets map[string]float64) error {
	if targets == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixCapacities}, kindCapacities, targets)
}

// LoadCapacities reads concept capacity targets.
func (s *MemoryStore) LoadCapacities() (map[string]float64, bool, error) {
	targets := make(map[string]float64)
	found, err := s.getRecord([]byte{prefixCapacities}, kindCapacities, &targets)
	if err != nil || !found {
		return nil, found, err
	}
	return targets, true, nil
}

// SaveMeta persists store metadata.
func (s *MemoryStore) SaveMeta(m *Meta) error {
	if m == nil {
		return ErrInvalidData
	}
	return s.putRecord([]byte{prefixMeta}, kindMeta, m)
}

// LoadMeta reads store metadata.
func (s *MemoryStore) LoadMeta() (*Meta, bool, error) {
	var m Meta
	found, err := s.getRecord([]byte{prefixMeta}, kindMeta, &m)
	if err != nil || !found {
		return nil, found, err
	}
	return &m, true, nil
}

// Partitions returns the store's bank partition count.
func (s *MemoryStore) Partitions() int { return s.partitions }

// SizeBytes returns the total encoded record size.
func (s *MemoryStore) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for key, data := range s.records {
		total += int64(len(key) + len(data))
	}
	return total
}

// Sync is a no-op for memory.
func (s *MemoryStore) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// Close shuts the store down and drops all records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.records = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
