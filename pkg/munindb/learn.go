package munindb

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/orneryd/munindb/pkg/cache"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/hypernet"
	"github.com/orneryd/munindb/pkg/quantize"
	"github.com/orneryd/munindb/pkg/synapse"
)

// LearningResult reports what one LearnConcept call did.
type LearningResult struct {
	// ClusterID is the cluster that absorbed the concept, reused or new.
	ClusterID string `json:"cluster_id"`

	// Success is false only when the call returned an error alongside.
	Success bool `json:"success"`

	// NeuronsInvolved is the cluster's membership after growth.
	NeuronsInvolved int `json:"neurons_involved"`

	// NeuronsCreated is how many of those were allocated by this call.
	NeuronsCreated int `json:"neurons_created"`
}

// candidate is one scored cluster in the match search.
type candidate struct {
	id    string
	score float64
}

// LearnConcept runs the full learn pipeline for one concept:
// encode, quantize, match-or-create, size, grow, train, Hebbian update,
// capacity feedback, cross-cluster linking.
//
// Features are optional named signals ("fruit": 1.0) that join the encoded
// token in training; they are registered persistently on first sight.
//
// Not safe to call concurrently with any other mutating operation on the
// same DB.
func (db *DB) LearnConcept(ctx context.Context, concept string, features map[string]float64) (*LearningResult, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if concept == "" {
		return nil, fmt.Errorf("%w: empty concept", ErrInvalidInput)
	}

	// Encode. Deterministic: the same concept always lands on the same
	// vector, which is what makes reuse matching meaningful.
	encoded := db.encoder.Encode(concept)

	// Quantize. On the learned strategy Assign is also a training step.
	region := db.quant.Assign(encoded)

	// Novelty is judged against history before this observation joins it,
	// so a brand-new region scores a full 1.0.
	novelty := db.tracker.Novelty(region, encoded)
	db.tracker.Record(region, encoded)
	frequency := db.tracker.Frequency(region)
	complexity := hypernet.Complexity(encoded, db.cfg.Sizing.ComplexityMode)

	// Match against clusters in the assigned region and its neighbors,
	// or create a fresh cluster when nothing scores past the gate.
	c, matched, err := db.matchOrCreate(region, encoded)
	if err != nil {
		return nil, err
	}

	// Size and grow. First allocation for a concept is uncapped so the
	// formula's full verdict materializes at once; later growth is
	// stepped to bound runaway expansion.
	_, seen := db.capacity.Target(concept)
	target := db.capacity.TargetFor(concept, novelty, frequency, complexity)
	var created []*cluster.Neuron
	if need := target - c.Size(); need > 0 {
		if seen && need > db.cfg.GrowthStep {
			need = db.cfg.GrowthStep
		}
		created = c.GrowTo(c.Size()+need, db.newNeuronID)
	}

	// Train every member toward the target activation and fold the
	// pattern into the centroid.
	tv := db.trainingVector(encoded, features)
	c.TrainAll(tv, concept, db.cfg.TrainTarget, db.cfg.TrainRate)
	c.UpdateCentroid(encoded)
	c.Touch()

	// Hebbian update across members that actually fired.
	acts := c.ActivateAll(tv)
	coacts := make([]synapse.Coactivation, 0, len(acts))
	var top synapse.Coactivation
	for _, a := range acts {
		if a.Output <= db.cfg.FiringThreshold {
			continue
		}
		co := synapse.Coactivation{NeuronID: a.NeuronID, Strength: a.Output}
		coacts = append(coacts, co)
		if co.Strength > top.Strength {
			top = co
		}
	}
	db.graph.RecordCoactivation(coacts)

	// Capacity feedback: observed membership, demand from novelty.
	db.capacity.Adjust(concept, c.Size(), novelty)

	// Associative links to recently relevant clusters.
	if top.NeuronID != "" {
		db.linkRecent(c.ID(), top.NeuronID)
	}
	db.pushRecent(c.ID())

	db.affinity.Put(concept, []cache.ClusterAffinity{{ClusterID: c.ID(), Score: 1.0}})
	db.meta.LearnEvents++

	db.log.Debug("concept learned",
		zap.String("concept", concept),
		zap.String("cluster", c.ID()),
		zap.Bool("reused", matched),
		zap.Float64("novelty", novelty),
		zap.Int("neurons", c.Size()),
		zap.Int("created", len(created)),
	)

	return &LearningResult{
		ClusterID:       c.ID(),
		Success:         true,
		NeuronsInvolved: c.Size(),
		NeuronsCreated:  len(created),
	}, nil
}

// matchOrCreate scores every cluster reachable from the region and its
// neighbors and returns the best match at or above the reuse threshold,
// or a fresh cluster registered under the region. Hydration failures skip
// the candidate and continue; they never abort the search.
func (db *DB) matchOrCreate(region quantize.RegionCode, encoded []float64) (*cluster.NeuronCluster, bool, error) {
	cands := db.scoreCandidates(region, encoded)

	for _, cand := range cands {
		if cand.score < db.cfg.ReuseThreshold {
			break // sorted descending; nothing further qualifies
		}
		c, err := db.loadCluster(cand.id)
		if err != nil {
			db.log.Debug("skipping unhydratable candidate",
				zap.String("cluster", cand.id), zap.Error(err))
			continue
		}
		return c, true, nil
	}

	c := cluster.New(db.newClusterID(), region)
	db.clusters[c.ID()] = c
	db.regions[region] = append(db.regions[region], c.ID())
	db.regionsDirty = true
	return c, false, nil
}

// scoreCandidates collects cluster ids from the assigned region plus its
// nearest neighbors and scores each against the query, best first. The
// assigned region is always searched even when Nearest omits it. Hydrated
// clusters are scored on their live centroid, cold ones on the indexed
// copy.
func (db *DB) scoreCandidates(region quantize.RegionCode, encoded []float64) []candidate {
	regions := []quantize.RegionCode{region}
	for _, r := range db.quant.Nearest(encoded, db.cfg.NeighborRegions) {
		if r != region {
			regions = append(regions, r)
		}
	}

	seen := make(map[string]struct{})
	var cands []candidate
	for _, r := range regions {
		sameRegion := r == region
		for _, id := range db.regions[r] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			var score float64
			if live, ok := db.clusters[id]; ok {
				score = live.Similarity(encoded, sameRegion)
			} else if s, ok := db.summaries[id]; ok {
				score = cluster.Score(s.Centroid, encoded, sameRegion)
			} else {
				continue // region map entry with no index entry
			}
			cands = append(cands, candidate{id: id, score: score})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	return cands
}

// linkRecent wires the current cluster's strongest neuron to the anchors of
// recently learned clusters, bounded by LinkFanout. These weak associative
// edges are what let later retrieval spread across related concepts.
func (db *DB) linkRecent(clusterID, topNeuronID string) {
	linked := 0
	for _, otherID := range db.recent {
		if otherID == clusterID {
			continue
		}
		if linked >= db.cfg.LinkFanout {
			break
		}
		anchors := db.anchorsFor(otherID)
		for _, anchor := range anchors {
			db.graph.RecordCoactivation([]synapse.Coactivation{
				{NeuronID: topNeuronID, Strength: db.cfg.LinkStrength},
				{NeuronID: anchor, Strength: db.cfg.LinkStrength},
			})
		}
		if len(anchors) > 0 {
			linked++
		}
	}
}

// anchorsFor returns a cluster's anchor neuron ids without forcing
// hydration: live clusters answer directly, cold ones from the index.
func (db *DB) anchorsFor(id string) []string {
	if live, ok := db.clusters[id]; ok {
		return live.AnchorNeuronIDs(db.cfg.AnchorCount)
	}
	if s, ok := db.summaries[id]; ok {
		return s.AnchorNeuronIDs
	}
	return nil
}

// pushRecent records a cluster at the head of the recency ring.
func (db *DB) pushRecent(id string) {
	out := make([]string, 0, db.cfg.LinkFanout+1)
	out = append(out, id)
	for _, prev := range db.recent {
		if prev == id {
			continue
		}
		out = append(out, prev)
		if len(out) > db.cfg.LinkFanout {
			break
		}
	}
	db.recent = out
}
