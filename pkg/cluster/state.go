package cluster

import (
	"time"

	"github.com/orneryd/munindb/pkg/math/vector"
	"github.com/orneryd/munindb/pkg/quantize"
)

// Summary is the cluster-index entry: everything needed to score and route
// a query without hydrating the member neurons. Centroids ride along so
// candidate matching stays a pure index operation.
type Summary struct {
	ID              string              `json:"id"`
	OriginRegion    quantize.RegionCode `json:"origin_region"`
	Centroid        []float64           `json:"centroid,omitempty"`
	PatternCount    uint64              `json:"pattern_count"`
	NeuronCount     int                 `json:"neuron_count"`
	Concepts        []string            `json:"concepts,omitempty"`
	AnchorNeuronIDs []string            `json:"anchor_neuron_ids,omitempty"`
	LastAccess      time.Time           `json:"last_access"`
}

// Bank is the partition payload holding a cluster's full membership. Banks
// are loaded lazily, only when a cluster is actually selected for work.
type Bank struct {
	ClusterID string    `json:"cluster_id"`
	Neurons   []*Neuron `json:"neurons"`
}

// Score rates a query against a centroid the same way a live cluster would,
// including the neutral priors for centroid-less clusters.
func Score(centroid, query []float64, sameRegion bool) float64 {
	if centroid == nil {
		if sameRegion {
			return SameRegionAffinity
		}
		return CrossRegionAffinity
	}
	cos := vector.CosineSimilarity(query, centroid)
	if cos < 0 {
		return 0
	}
	return cos
}

// Summary captures the cluster's index entry with up to anchorCount anchor
// neuron ids. The result shares no memory with the cluster.
func (c *NeuronCluster) Summary(anchorCount int) *Summary {
	var centroid []float64
	if c.centroid != nil {
		centroid = make([]float64, len(c.centroid))
		copy(centroid, c.centroid)
	}
	return &Summary{
		ID:              c.id,
		OriginRegion:    c.originRegion,
		Centroid:        centroid,
		PatternCount:    c.patternCount,
		NeuronCount:     len(c.neurons),
		Concepts:        c.Concepts(),
		AnchorNeuronIDs: c.AnchorNeuronIDs(anchorCount),
		LastAccess:      c.lastAccess,
	}
}

// Bank captures the cluster's membership for the partition store. Neurons
// are referenced, not copied; serialize before further mutation.
func (c *NeuronCluster) Bank() *Bank {
	neurons := make([]*Neuron, len(c.neurons))
	copy(neurons, c.neurons)
	return &Bank{ClusterID: c.id, Neurons: neurons}
}

// Rehydrate rebuilds a live cluster from its index entry and membership.
// A nil or short membership is tolerated: the cluster simply comes back
// smaller and later growth refills it. Rehydrated clusters start clean.
func Rehydrate(s *Summary, neurons []*Neuron) *NeuronCluster {
	c := &NeuronCluster{
		id:           s.ID,
		originRegion: s.OriginRegion,
		patternCount: s.PatternCount,
		byID:         make(map[string]*Neuron, len(neurons)),
		lastAccess:   time.Now(),
	}
	if s.Centroid != nil {
		c.centroid = make([]float64, len(s.Centroid))
		copy(c.centroid, s.Centroid)
	}
	for _, n := range neurons {
		if n == nil {
			continue
		}
		if n.Weights == nil {
			n.Weights = make(map[int]float64)
		}
		c.neurons = append(c.neurons, n)
		c.byID[n.ID] = n
	}
	return c
}
