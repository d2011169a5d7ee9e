// Package quantize discretizes the continuous feature space into region
// codes. Two interchangeable strategies implement the same contract:
//
//   - LSHQuantizer: static random-hyperplane partitioning. Deterministic for
//     a fixed seed, no online adaptation. The legacy strategy.
//   - CodebookQuantizer: a learned codebook refined online by EMA centroid
//     updates. The preferred strategy.
//
// The contract is asymmetric on purpose: Assign on the learned path is a
// query AND a training step (the matched code's centroid moves toward the
// input), while Nearest never mutates. Callers that need a read-only lookup
// on the learned path must use Nearest, not Assign.
package quantize

// RegionCode identifies a quantization bucket. Codes are stable only until
// the learned quantizer re-centers, so region-to-cluster maps must tolerate
// drift.
type RegionCode string

// Quantizer assigns feature vectors to discrete region codes.
type Quantizer interface {
	// Assign returns the region code for v. On the learned implementation
	// this also trains the matched code toward v.
	Assign(v []float64) RegionCode

	// Nearest returns up to k region codes closest to v, best first,
	// without mutating any state.
	Nearest(v []float64, k int) []RegionCode
}
