// Package activation tracks per-region activation statistics and computes
// novelty and frequency signals from them.
//
// Novelty answers "how unprecedented is this vector for its region": 1.0 for
// a region that has never fired, decaying toward zero as a region accumulates
// samples tightly clustered around its running mean. Frequency is a
// saturating normalization of the raw activation count. Both feed the sizing
// formula that decides how many neurons a new pattern deserves.
//
// Example:
//
//	tr := activation.NewTracker(activation.DefaultConfig())
//	tr.Record("c7", vec)
//	n := tr.Novelty("c7", vec)   // low: the region has seen this exact vector
//	f := tr.Frequency("c7")      // rises toward 1.0 with repeated activations
package activation

import (
	"math"
	"sort"
	"time"

	"github.com/orneryd/munindb/pkg/math/vector"
	"github.com/orneryd/munindb/pkg/quantize"
)

// Config holds tuning parameters for novelty and frequency scoring.
type Config struct {
	// HistoryCap bounds the per-region sample history.
	HistoryCap int `yaml:"history_cap"`

	// DistanceWeight scales the distance-from-mean novelty term.
	DistanceWeight float64 `yaml:"distance_weight"`

	// SampleWeight scales the sample-scarcity novelty term.
	SampleWeight float64 `yaml:"sample_weight"`

	// FrequencySaturation is the activation count at which frequency
	// reaches 0.5; frequency saturates toward 1.0 beyond it.
	FrequencySaturation float64 `yaml:"frequency_saturation"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryCap:          64,
		DistanceWeight:      0.7,
		SampleWeight:        0.3,
		FrequencySaturation: 100,
	}
}

// regionStats is the per-region accumulator.
type regionStats struct {
	count   uint64
	mean    []float64
	history [][]float64
	touched time.Time
}

// Tracker maintains activation statistics per region code.
//
// Not safe for concurrent use; the engine's single-writer contract covers it.
type Tracker struct {
	cfg     Config
	regions map[quantize.RegionCode]*regionStats
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 64
	}
	if cfg.DistanceWeight <= 0 {
		cfg.DistanceWeight = 0.7
	}
	if cfg.SampleWeight < 0 {
		cfg.SampleWeight = 0.3
	}
	if cfg.FrequencySaturation <= 0 {
		cfg.FrequencySaturation = 100
	}
	return &Tracker{
		cfg:     cfg,
		regions: make(map[quantize.RegionCode]*regionStats),
	}
}

// Record appends an activation to the region's history and refreshes its
// running mean. The vector is copied; callers keep ownership.
func (t *Tracker) Record(region quantize.RegionCode, v []float64) {
	rs, ok := t.regions[region]
	if !ok {
		rs = &regionStats{}
		t.regions[region] = rs
	}

	rs.count++
	rs.touched = time.Now()

	cp := make([]float64, len(v))
	copy(cp, v)
	rs.history = append(rs.history, cp)
	if len(rs.history) > t.cfg.HistoryCap {
		rs.history = rs.history[len(rs.history)-t.cfg.HistoryCap:]
	}

	if rs.mean == nil {
		rs.mean = make([]float64, len(v))
		copy(rs.mean, v)
		return
	}
	// Incremental running mean over the full count, not just the capped
	// window, so long-lived regions stay anchored.
	n := float64(rs.count)
	for i := range rs.mean {
		rs.mean[i] += (v[i] - rs.mean[i]) / n
	}
}

// spread is the mean distance of the history window from the running mean.
func (rs *regionStats) spread() float64 {
	if len(rs.history) == 0 || rs.mean == nil {
		return 0
	}
	var sum float64
	for _, h := range rs.history {
		sum += vector.EuclideanDistance(h, rs.mean)
	}
	return sum / float64(len(rs.history))
}

// Novelty scores how unprecedented v is for its region, in [0, 1].
// An unseen region always scores 1.0. Otherwise the score combines the
// vector's distance from the region mean (relative to the region's typical
// spread) with a sample-scarcity term that decays as the region accumulates
// observations. Repeating an identical (region, vector) pair drives the
// score toward a low non-negative floor.
func (t *Tracker) Novelty(region quantize.RegionCode, v []float64) float64 {
	rs, ok := t.regions[region]
	if !ok || rs.count == 0 {
		return 1.0
	}

	const eps = 1e-9
	distFactor := 1.0
	if d := vector.EuclideanDistance(v, rs.mean); !math.IsInf(d, 1) {
		distFactor = d / (d + rs.spread() + eps)
	}
	scarcity := 1.0 / math.Sqrt(1.0+float64(rs.count))

	score := t.cfg.DistanceWeight*distFactor + t.cfg.SampleWeight*scarcity
	return math.Max(0, math.Min(1, score))
}

// Frequency reports the region's normalized activation rate in [0, 1],
// saturating: count/(count+FrequencySaturation). Unseen regions score 0.
func (t *Tracker) Frequency(region quantize.RegionCode) float64 {
	rs, ok := t.regions[region]
	if !ok {
		return 0
	}
	n := float64(rs.count)
	return n / (n + t.cfg.FrequencySaturation)
}

// Count returns the raw activation count for a region.
func (t *Tracker) Count(region quantize.RegionCode) uint64 {
	rs, ok := t.regions[region]
	if !ok {
		return 0
	}
	return rs.count
}

// RegionCount returns how many regions have recorded activations.
func (t *Tracker) RegionCount() int {
	return len(t.regions)
}

// TopRegions returns up to n region codes ordered by activation count,
// busiest first. Ties break lexicographically for stable output.
func (t *Tracker) TopRegions(n int) []quantize.RegionCode {
	codes := make([]quantize.RegionCode, 0, len(t.regions))
	for code := range t.regions {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(a, b int) bool {
		ca, cb := t.regions[codes[a]].count, t.regions[codes[b]].count
		if ca != cb {
			return ca > cb
		}
		return codes[a] < codes[b]
	})
	if n < len(codes) {
		codes = codes[:n]
	}
	return codes
}

// Prune drops the least active regions until at most maxRegions remain.
// Staler regions go first among equal counts. Returns how many were removed.
func (t *Tracker) Prune(maxRegions int) int {
	if maxRegions < 0 || len(t.regions) <= maxRegions {
		return 0
	}

	codes := make([]quantize.RegionCode, 0, len(t.regions))
	for code := range t.regions {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(a, b int) bool {
		ra, rb := t.regions[codes[a]], t.regions[codes[b]]
		if ra.count != rb.count {
			return ra.count < rb.count
		}
		if !ra.touched.Equal(rb.touched) {
			return ra.touched.Before(rb.touched)
		}
		return codes[a] < codes[b]
	})

	drop := len(t.regions) - maxRegions
	for _, code := range codes[:drop] {
		delete(t.regions, code)
	}
	return drop
}

// RegionState is a serializable per-region snapshot.
type RegionState struct {
	Count   uint64      `json:"count"`
	Mean    []float64   `json:"mean"`
	History [][]float64 `json:"history,omitempty"`
	Touched time.Time   `json:"touched"`
}

// State is the serializable snapshot of the whole tracker.
type State struct {
	Regions map[quantize.RegionCode]*RegionState `json:"regions"`
}

// Snapshot captures all region statistics. The result shares no memory with
// the live tracker.
func (t *Tracker) Snapshot() *State {
	out := &State{Regions: make(map[quantize.RegionCode]*RegionState, len(t.regions))}
	for code, rs := range t.regions {
		mean := make([]float64, len(rs.mean))
		copy(mean, rs.mean)
		hist := make([][]float64, len(rs.history))
		for i, h := range rs.history {
			cp := make([]float64, len(h))
			copy(cp, h)
			hist[i] = cp
		}
		out.Regions[code] = &RegionState{
			Count:   rs.count,
			Mean:    mean,
			History: hist,
			Touched: rs.touched,
		}
	}
	return out
}

// Restore replaces tracker contents from a snapshot. Nil snapshots and nil
// region entries are ignored.
func (t *Tracker) Restore(state *State) {
	if state == nil {
		return
	}
	t.regions = make(map[quantize.RegionCode]*regionStats, len(state.Regions))
	for code, rs := range state.Regions {
		if rs == nil {
			continue
		}
		mean := make([]float64, len(rs.Mean))
		copy(mean, rs.Mean)
		hist := make([][]float64, 0, len(rs.History))
		for _, h := range rs.History {
			cp := make([]float64, len(h))
			copy(cp, h)
			hist = append(hist, cp)
		}
		t.regions[code] = &regionStats{
			count:   rs.Count,
			mean:    mean,
			history: hist,
			touched: rs.Touched,
		}
	}
}
