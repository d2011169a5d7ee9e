// Package storage persists engine state across restarts.
//
// State is split into entity families, each saved and loaded independently:
// the cluster index (summaries), neuron banks, the synapse graph, the
// region map, activation statistics, the codebook, the feature registry,
// concept capacities, and store metadata. Banks are partitioned by cluster
// id so bulk flushes batch writes per partition instead of per cluster.
//
// Loads are cold-start tolerant: a missing family comes back with
// found=false and no error. Genuine I/O or decoding failures are errors.
// Every record is wrapped in a versioned envelope so future schema changes
// can migrate instead of guessing.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// Storage errors.
var (
	ErrStorageClosed = errors.New("storage closed")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrSchemaVersion = errors.New("unsupported schema version")
	ErrCorrupt       = errors.New("corrupt record")
)

// SchemaVersion is written into every envelope. Readers accept anything up
// to and including it.
const SchemaVersion = 1

// DefaultPartitions is the bank partition count for new stores. The count
// is recorded in Meta and must stay fixed for the life of a store; changing
// it requires a snapshot export and re-import.
const DefaultPartitions = 16

// MaxPartitions bounds the partition count so partition ids fit in a key
// byte.
const MaxPartitions = 256

// PartitionFor maps a cluster id onto its bank partition.
func PartitionFor(clusterID string, partitions int) int {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return int(xxhash.Sum64String(clusterID) % uint64(partitions))
}

// Meta describes the store itself.
type Meta struct {
	SchemaVersion int       `json:"schema_version"`
	Partitions    int       `json:"partitions"`
	CreatedAt     time.Time `json:"created_at"`
	LastSavedAt   time.Time `json:"last_saved_at"`
	LearnEvents   uint64    `json:"learn_events"`
}

// Store is the persistence contract the engine runs against.
//
// Load methods return found=false for families that have never been saved;
// that is the cold-start signal, not an error. Implementations must be safe
// for concurrent use: FlushBanks writes partitions in parallel.
type Store interface {
	// Cluster index.
	SaveSummary(s *cluster.Summary) error
	LoadSummaries() ([]*cluster.Summary, error)

	// Neuron banks, partitioned by cluster id.
	SaveBank(partition int, bank *cluster.Bank) error
	LoadBank(partition int, clusterID string) (*cluster.Bank, bool, error)
	FlushBanks(ctx context.Context, banks map[int][]*cluster.Bank) error

	// Singleton families.
	SaveSynapses(state *synapse.State) error
	LoadSynapses() (*synapse.State, bool, error)
	SaveRegionMap(regions map[quantize.RegionCode][]string) error
	LoadRegionMap() (map[quantize.RegionCode][]string, bool, error)
	SaveActivations(state *activation.State) error
	LoadActivations() (*activation.State, bool, error)
	SaveCodebook(state *quantize.CodebookState) error
	LoadCodebook() (*quantize.CodebookState, bool, error)
	SaveFeatureRegistry(features map[string]int) error
	LoadFeatureRegistry() (map[string]int, bool, error)
	SaveCapacities(targets map[string]float64) error
	LoadCapacities() (map[string]float64, bool, error)
	SaveMeta(m *Meta) error
	LoadMeta() (*Meta, bool, error)

	// Partitions returns the bank partition count this store was opened
	// with.
	Partitions() int

	// SizeBytes reports the approximate on-disk (or in-memory) footprint.
	SizeBytes() int64

	Sync() error
	Close() error
}

// Key prefixes. Single bytes keep keys short; 0x00 separates variable parts.
const (
	prefixClusterIndex = byte(0x01) // 0x01 + clusterID -> envelope(Summary)
	prefixNeuronBank   = byte(0x02) // 0x02 + partition + 0x00 + clusterID -> envelope(Bank)
	prefixSynapses     = byte(0x03) // singleton
	prefixRegionMap    = byte(0x04) // singleton
	prefixActivations  = byte(0x05) // singleton
	prefixCodebook     = byte(0x06) // singleton
	prefixFeatures     = byte(0x07) // singleton
	prefixCapacities   = byte(0x08) // singleton
	prefixMeta         = byte(0x09) // singleton
)

const keySeparator = byte(0x00)

// Envelope kinds, checked on decode so a key-space bug surfaces as
// ErrCorrupt instead of silently misparsed state.
const (
	kindSummary     = "summary"
	kindBank        = "bank"
	kindSynapses    = "synapses"
	kindRegions     = "regions"
	kindActivations = "activations"
	kindCodebook    = "codebook"
	kindFeatures    = "features"
	kindCapacities  = "capacities"
	kindMeta        = "meta"
	kindSnapshot    = "snapshot"
)

func summaryKey(clusterID string) []byte {
	return append([]byte{prefixClusterIndex}, clusterID...)
}

func bankKey(partition int, clusterID string) []byte {
	key := make([]byte, 0, 3+len(clusterID))
	key = append(key, prefixNeuronBank, byte(partition), keySeparator)
	return append(key, clusterID...)
}

type envelope struct {
	Version int             `json:"v"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

// encodeRecord wraps a value in a versioned envelope.
func encodeRecord(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{Version: SchemaVersion, Kind: kind, Data: data})
}

// decodeRecord unwraps an envelope, enforcing kind and version.
func decodeRecord(raw []byte, kind string, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, kind, err)
	}
	if env.Version > SchemaVersion {
		return fmt.Errorf("%w: %s is v%d, this build reads up to v%d",
			ErrSchemaVersion, kind, env.Version, SchemaVersion)
	}
	if env.Kind != kind {
		return fmt.Errorf("%w: expected %s, found %q", ErrCorrupt, kind, env.Kind)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrCorrupt, kind, err)
	}
	return nil
}

func validatePartition(partition, partitions int) error {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	if partition < 0 || partition >= partitions || partition >= MaxPartitions {
		return fmt.Errorf("%w: partition %d out of range", ErrInvalidData, partition)
	}
	return nil
}
