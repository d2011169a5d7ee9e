package munindb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/orneryd/munindb/pkg/cache"
	"github.com/orneryd/munindb/pkg/cluster"
	"github.com/orneryd/munindb/pkg/pool"
)

// ProcessingResult reports what one ProcessInput call recognized.
type ProcessingResult struct {
	// Response is a human-readable description of what activated.
	Response string `json:"response"`

	// ActivatedClusters lists the activated cluster ids, strongest first.
	ActivatedClusters []string `json:"activated_clusters"`

	// ActivatedNeuronCount is how many neurons fired above threshold.
	ActivatedNeuronCount int `json:"activated_neuron_count"`

	// Confidence blends the strongest and the average neuron response,
	// in [0, 1]. Zero when nothing activated.
	Confidence float64 `json:"confidence"`
}

// Tokenize splits input into candidate concept tokens: lowercased,
// stripped of non-alphanumerics, single characters dropped, duplicates
// removed in first-seen order.
func Tokenize(input string) []string {
	fields := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ProcessInput runs the read-mostly retrieval pipeline: tokenize, encode
// each token, accumulate cluster similarity across tokens, activate the
// top clusters, and derive a response with a confidence score.
//
// No clusters are created or trained on this path; the only state that
// moves is activation-stat bookkeeping and the affinity cache. Optional
// named features join the activation input the same way they join
// training.
func (db *DB) ProcessInput(ctx context.Context, input string, features map[string]float64) (*ProcessingResult, error) {
	if db.closed {
		return nil, ErrClosed
	}
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return &ProcessingResult{Response: "nothing to recognize"}, nil
	}

	// Accumulate per-cluster similarity across tokens, remembering which
	// token's vector scored best so activation uses the right input.
	scores := pool.GetScoreMap()
	defer pool.PutScoreMap(scores)
	bestScore := pool.GetScoreMap()
	defer pool.PutScoreMap(bestScore)
	bestVec := make(map[string][]float64)
	for _, token := range tokens {
		encoded := db.encoder.Encode(token)

		hits, cached := db.affinity.Get(token)
		if !cached {
			hits = db.searchClusters(token, encoded)
		}
		for _, h := range hits {
			scores[h.ClusterID] += h.Score
			if h.Score > bestScore[h.ClusterID] {
				bestScore[h.ClusterID] = h.Score
				bestVec[h.ClusterID] = encoded
			}
		}

		// Activation bookkeeping through the read-only region lookup;
		// Assign would train the codebook, which this path must not.
		if near := db.quant.Nearest(encoded, 1); len(near) > 0 {
			db.tracker.Record(near[0], encoded)
		}
	}

	if len(scores) == 0 {
		return &ProcessingResult{Response: "no stored concepts matched"}, nil
	}

	// Rank and activate the top clusters.
	ranked := make([]candidate, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, candidate{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > db.cfg.TopClusters {
		ranked = ranked[:db.cfg.TopClusters]
	}

	var (
		activatedIDs []string
		outputs      []float64
		fired        int
		labels       []string
		labelSeen    = make(map[string]struct{})
	)
	for _, cand := range ranked {
		c, err := db.loadCluster(cand.id)
		if err != nil {
			db.log.Debug("skipping unhydratable cluster",
				zap.String("cluster", cand.id), zap.Error(err))
			continue
		}
		av := db.activationVector(bestVec[cand.id], features)
		for _, a := range c.ActivateAll(av) {
			outputs = append(outputs, a.Output)
			if a.Output > db.cfg.FiringThreshold {
				fired++
			}
		}
		activatedIDs = append(activatedIDs, cand.id)
		for _, label := range c.Concepts() {
			if _, dup := labelSeen[label]; dup {
				continue
			}
			labelSeen[label] = struct{}{}
			labels = append(labels, label)
		}
	}

	confidence := blendConfidence(outputs)
	result := &ProcessingResult{
		Response:             describeActivation(labels, confidence),
		ActivatedClusters:    activatedIDs,
		ActivatedNeuronCount: fired,
		Confidence:           confidence,
	}

	db.log.Debug("input processed",
		zap.Int("tokens", len(tokens)),
		zap.Int("clusters", len(activatedIDs)),
		zap.Float64("confidence", confidence),
	)
	return result, nil
}

// searchClusters runs the read-only candidate search for one token and
// caches the outcome. Unlike the learn path there is no creation: a token
// the engine has never seen simply matches nothing.
func (db *DB) searchClusters(token string, encoded []float64) []cache.ClusterAffinity {
	regions := db.quant.Nearest(encoded, db.cfg.NeighborRegions+1)
	if len(regions) == 0 {
		return nil
	}
	assigned := regions[0]

	seen := make(map[string]struct{})
	var hits []cache.ClusterAffinity
	for _, r := range regions {
		sameRegion := r == assigned
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
				continue
			}
			if score > 0 {
				hits = append(hits, cache.ClusterAffinity{ClusterID: id, Score: score})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ClusterID < hits[j].ClusterID
	})
	if len(hits) > db.cfg.TopClusters {
		hits = hits[:db.cfg.TopClusters]
	}
	if len(hits) > 0 {
		db.affinity.Put(token, hits)
	}
	return hits
}

// blendConfidence mixes the peak and the mean neuron output: the peak says
// how certain the best recognition is, the mean says how broadly the input
// resonated.
func blendConfidence(outputs []float64) float64 {
	if len(outputs) == 0 {
		return 0
	}
	var max, sum float64
	for _, o := range outputs {
		if o > max {
			max = o
		}
		sum += o
	}
	return 0.6*max + 0.4*sum/float64(len(outputs))
}

func describeActivation(labels []string, confidence float64) string {
	if len(labels) == 0 {
		return "activated clusters carry no concept labels"
	}
	if len(labels) > 5 {
		labels = labels[:5]
	}
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)
	b.WriteString("recognized ")
	for i, label := range labels {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(label)
	}
	b.WriteString(fmt.Sprintf(" (confidence %.2f)", confidence))
	return b.String()
}
