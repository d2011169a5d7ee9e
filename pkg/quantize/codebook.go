package quantize

import (
	"sort"
	"strconv"

	"github.com/orneryd/munindb/pkg/math/vector"
)

// CodebookConfig holds parameters for the learned quantizer.
type CodebookConfig struct {
	// Size is the fixed number of codebook entries.
	Size int `yaml:"size"`

	// Dim is the feature vector dimension.
	Dim int `yaml:"dim"`

	// Decay controls EMA centroid refinement: code = code*Decay + v*(1-Decay).
	// Closer to 1.0 means slower drift.
	Decay float64 `yaml:"decay"`

	// CommitmentCoef scales the commitment-loss diagnostic. It never affects
	// assignment, only the reported statistic.
	CommitmentCoef float64 `yaml:"commitment_coef"`
}

// DefaultCodebookConfig returns production defaults: 512 codes over 128
// dims, slow drift.
func DefaultCodebookConfig() CodebookConfig {
	return CodebookConfig{
		Size:           512,
		Dim:            128,
		Decay:          0.99,
		CommitmentCoef: 0.25,
	}
}

// CodebookQuantizer assigns vectors to a fixed-size set of learned codes.
//
// The codebook fills lazily: each sufficiently distinct observation seeds the
// next free code until all entries are taken, after which assignment is
// nearest-code with EMA refinement. Assign trains; Nearest does not — see the
// package comment for why that asymmetry is part of the contract.
//
// Not safe for concurrent use. The engine's single-writer contract covers it.
type CodebookQuantizer struct {
	cfg    CodebookConfig
	codes  [][]float64
	usage  []uint64
	seeded int

	// commitEMA tracks an exponential moving average of the commitment loss
	// (squared distance between input and matched code before refinement).
	commitEMA float64
}

// seedEpsilon is the squared-distance floor below which an observation is
// treated as a repeat of an existing code rather than a new seed.
const seedEpsilon = 1e-12

// NewCodebookQuantizer creates an empty learned quantizer.
func NewCodebookQuantizer(cfg CodebookConfig) *CodebookQuantizer {
	if cfg.Size <= 0 {
		cfg.Size = 512
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 128
	}
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		cfg.Decay = 0.99
	}
	if cfg.CommitmentCoef < 0 {
		cfg.CommitmentCoef = 0.25
	}

	return &CodebookQuantizer{
		cfg:   cfg,
		codes: make([][]float64, cfg.Size),
		usage: make([]uint64, cfg.Size),
	}
}

func codebookCode(idx int) RegionCode {
	return RegionCode("c" + strconv.Itoa(idx))
}

// nearestSeeded returns the index and squared distance of the closest seeded
// code, or (-1, +Inf) when nothing is seeded yet.
func (q *CodebookQuantizer) nearestSeeded(v []float64) (int, float64) {
	best := -1
	bestDist := -1.0
	for i := 0; i < q.seeded; i++ {
		d := vector.EuclideanDistance(v, q.codes[i])
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best, bestDist * bestDist
}

// Assign returns the region code for v and trains the matched code's
// centroid toward v. Every call is simultaneously a query and a learning
// step; there is no read-only variant of Assign on this strategy.
//
// Zero or empty vectors skip seeding and match by raw distance; a completely
// empty codebook returns the fixed default code c0.
func (q *CodebookQuantizer) Assign(v []float64) RegionCode {
	degenerate := len(v) != q.cfg.Dim || vector.Norm(v) == 0

	if q.seeded == 0 {
		if degenerate {
			return codebookCode(0)
		}
		q.seed(v)
		return codebookCode(0)
	}

	best, sqDist := q.nearestSeeded(v)
	if degenerate {
		q.usage[best]++
		return codebookCode(best)
	}

	// A sufficiently distinct observation claims the next free code.
	if sqDist > seedEpsilon && q.seeded < q.cfg.Size {
		q.seed(v)
		return codebookCode(q.seeded - 1)
	}

	q.commitEMA = 0.9*q.commitEMA + 0.1*q.cfg.CommitmentCoef*sqDist

	decay := q.cfg.Decay
	code := q.codes[best]
	for i := range code {
		code[i] = code[i]*decay + v[i]*(1-decay)
	}
	q.usage[best]++
	return codebookCode(best)
}

// seed copies v into the next free code slot.
func (q *CodebookQuantizer) seed(v []float64) {
	c := make([]float64, len(v))
	copy(c, v)
	q.codes[q.seeded] = c
	q.usage[q.seeded] = 1
	q.seeded++
}

// Nearest returns up to k seeded codes closest to v by Euclidean distance,
// best first. Never mutates codebook state. An empty codebook yields the
// default code so callers always have a region to search.
func (q *CodebookQuantizer) Nearest(v []float64, k int) []RegionCode {
	if k <= 0 {
		return nil
	}
	if q.seeded == 0 {
		return []RegionCode{codebookCode(0)}
	}

	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, q.seeded)
	for i := 0; i < q.seeded; i++ {
		cands[i] = cand{idx: i, dist: vector.EuclideanDistance(v, q.codes[i])}
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		return cands[a].idx < cands[b].idx
	})

	if k > len(cands) {
		k = len(cands)
	}
	out := make([]RegionCode, k)
	for i := 0; i < k; i++ {
		out[i] = codebookCode(cands[i].idx)
	}
	return out
}

// SeededCount reports how many codes have been initialized.
func (q *CodebookQuantizer) SeededCount() int { return q.seeded }

// CommitmentLoss reports the EMA of the scaled commitment loss, a health
// signal for how far inputs sit from their matched codes.
func (q *CodebookQuantizer) CommitmentLoss() float64 { return q.commitEMA }

// Usage returns the activation count of a code, 0 for unknown codes.
func (q *CodebookQuantizer) Usage(code RegionCode) uint64 {
	s := string(code)
	if len(s) < 2 || s[0] != 'c' {
		return 0
	}
	idx, err := strconv.Atoi(s[1:])
	if err != nil || idx < 0 || idx >= q.seeded {
		return 0
	}
	return q.usage[idx]
}

// CodebookState is the serializable snapshot of a learned quantizer.
type CodebookState struct {
	Codes     [][]float64 `json:"codes"`
	Usage     []uint64    `json:"usage"`
	Seeded    int         `json:"seeded"`
	CommitEMA float64     `json:"commit_ema"`
}

// Snapshot captures the full quantizer state for persistence. The returned
// state shares no memory with the live codebook.
func (q *CodebookQuantizer) Snapshot() *CodebookState {
	codes := make([][]float64, q.seeded)
	for i := 0; i < q.seeded; i++ {
		c := make([]float64, len(q.codes[i]))
		copy(c, q.codes[i])
		codes[i] = c
	}
	usage := make([]uint64, q.seeded)
	copy(usage, q.usage[:q.seeded])

	return &CodebookState{
		Codes:     codes,
		Usage:     usage,
		Seeded:    q.seeded,
		CommitEMA: q.commitEMA,
	}
}

// Restore replaces quantizer state from a snapshot. Snapshots larger than
// the configured size are truncated; short or corrupt entries are skipped.
func (q *CodebookQuantizer) Restore(state *CodebookState) {
	if state == nil {
		return
	}

	q.codes = make([][]float64, q.cfg.Size)
	q.usage = make([]uint64, q.cfg.Size)
	q.seeded = 0
	q.commitEMA = state.CommitEMA

	for i, c := range state.Codes {
		if q.seeded >= q.cfg.Size {
			break
		}
		if len(c) != q.cfg.Dim {
			continue
		}
		code := make([]float64, len(c))
		copy(code, c)
		q.codes[q.seeded] = code
		if i < len(state.Usage) {
			q.usage[q.seeded] = state.Usage[i]
		}
		q.seeded++
	}
}

var _ Quantizer = (*CodebookQuantizer)(nil)
