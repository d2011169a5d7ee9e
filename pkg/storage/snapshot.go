package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/orneryd/munindb/pkg/activation"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// SnapshotPayload carries every entity family in one portable blob. Banks
// are keyed by cluster id with no partition baked in, so a snapshot can be
// imported into a store with a different partition count.
type SnapshotPayload struct {
	Meta        *Meta                            `json:"meta,omitempty"`
	Summaries   []*cluster.Summary               `json:"summaries,omitempty"`
	Banks       map[string]*cluster.Bank         `json:"banks,omitempty"`
	Synapses    *synapse.State                   `json:"synapses,omitempty"`
	Regions     map[quantize.RegionCode][]string `json:"regions,omitempty"`
	Activations *activation.State                `json:"activations,omitempty"`
	Codebook    *quantize.CodebookState          `json:"codebook,omitempty"`
	Features    map[string]int                   `json:"features,omitempty"`
	Capacities  map[string]float64               `json:"capacities,omitempty"`
}

// ExportSnapshot streams the whole store as one zstd-compressed, versioned
// record. The store stays usable throughout; export reads through the same
// load paths the engine uses.
func ExportSnapshot(w io.Writer, st Store) error {
	payload := &SnapshotPayload{}

	var err error
	if payload.Meta, _, err = st.LoadMeta(); err != nil {
		return fmt.Errorf("snapshot meta: %w", err)
	}
	if payload.Summaries, err = st.LoadSummaries(); err != nil {
		return fmt.Errorf("snapshot summaries: %w", err)
	}

	payload.Banks = make(map[string]*cluster.Bank, len(payload.Summaries))
	for _, sum := range payload.Summaries {
		partition := PartitionFor(sum.ID, st.Partitions())
		bank, found, err := st.LoadBank(partition, sum.ID)
		if err != nil {
			return fmt.Errorf("snapshot bank %s: %w", sum.ID, err)
		}
		if found {
			payload.Banks[sum.ID] = bank
		}
	}

	if payload.Synapses, _, err = st.LoadSynapses(); err != nil {
		return fmt.Errorf("snapshot synapses: %w", err)
	}
	if payload.Regions, _, err = st.LoadRegionMap(); err != nil {
		return fmt.Errorf("snapshot regions: %w", err)
	}
	if payload.Activations, _, err = st.LoadActivations(); err != nil {
		return fmt.Errorf("snapshot activations: %w", err)
	}
	if payload.Codebook, _, err = st.LoadCodebook(); err != nil {
		return fmt.Errorf("snapshot codebook: %w", err)
	}
	if payload.Features, _, err = st.LoadFeatureRegistry(); err != nil {
		return fmt.Errorf("snapshot features: %w", err)
	}
	if payload.Capacities, _, err = st.LoadCapacities(); err != nil {
		return fmt.Errorf("snapshot capacities: %w", err)
	}

	data, err := encodeRecord(kindSnapshot, payload)
	if err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot compressor: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("snapshot write: %w", err)
	}
	return zw.Close()
}

// ImportSnapshot loads a snapshot into the store, overwriting any records
// the snapshot names and re-partitioning banks for the target store. State
// the snapshot omits is left untouched; import into a fresh store for a
// clean restore.
func ImportSnapshot(ctx context.Context, r io.Reader, st Store) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("snapshot decompressor: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("snapshot read: %w", err)
	}

	var payload SnapshotPayload
	if err := decodeRecord(data, kindSnapshot, &payload); err != nil {
		return err
	}

	for _, sum := range payload.Summaries {
		if err := st.SaveSummary(sum); err != nil {
			return fmt.Errorf("import summary %s: %w", sum.ID, err)
		}
	}

	if len(payload.Banks) > 0 {
		banks := make(map[int][]*cluster.Bank)
		for id, bank := range payload.Banks {
			if bank == nil {
				continue
			}
			if bank.ClusterID == "" {
				bank.ClusterID = id
			}
			partition := PartitionFor(bank.ClusterID, st.Partitions())
			banks[partition] = append(banks[partition], bank)
		}
		if err := st.FlushBanks(ctx, banks); err != nil {
			return fmt.Errorf("import banks: %w", err)
		}
	}

	if payload.Synapses != nil {
		if err := st.SaveSynapses(payload.Synapses); err != nil {
			return fmt.Errorf("import synapses: %w", err)
		}
	}
	if payload.Regions != nil {
		if err := st.SaveRegionMap(payload.Regions); err != nil {
			return fmt.Errorf("import regions: %w", err)
		}
	}
	if payload.Activations != nil {
		if err := st.SaveActivations(payload.Activations); err != nil {
			return fmt.Errorf("import activations: %w", err)
		}
	}
	if payload.Codebook != nil {
		if err := st.SaveCodebook(payload.Codebook); err != nil {
			return fmt.Errorf("import codebook: %w", err)
		}
	}
	if payload.Features != nil {
		if err := st.SaveFeatureRegistry(payload.Features); err != nil {
			return fmt.Errorf("import features: %w", err)
		}
	}
	if payload.Capacities != nil {
		if err := st.SaveCapacities(payload.Capacities); err != nil {
			return fmt.Errorf("import capacities: %w", err)
		}
	}

	meta := payload.Meta
	if meta == nil {
		meta = &Meta{SchemaVersion: SchemaVersion, CreatedAt: time.Now()}
	}
	meta.Partitions = st.Partitions()
	meta.LastSavedAt = time.Now()
	if err := st.SaveMeta(meta); err != nil {
		return fmt.Errorf("import meta: %w", err)
	}
	return nil
}
