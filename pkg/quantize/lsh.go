package quantize

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/orneryd/munindb/pkg/math/vector"
)

// LSHQuantizer partitions the feature space with fixed random hyperplanes.
// The region code is the sign pattern of the input against every plane.
// Construction is deterministic for a given seed; the planes never change.
type LSHQuantizer struct {
	dim    int
	planes [][]float64
}

// NewLSHQuantizer creates an LSH partitioner with bits hyperplanes over
// dim-dimensional inputs. Plane components are drawn from a seeded normal
// distribution, so equal seeds produce identical partitions.
func NewLSHQuantizer(dim, bits int, seed int64) *LSHQuantizer {
	if bits <= 0 || bits > 30 {
		bits = 16
	}
	rng := rand.New(rand.NewSource(seed))

	planes := make([][]float64, bits)
	for i := range planes {
		p := make([]float64, dim)
		for j := range p {
			p[j] = rng.NormFloat64()
		}
		planes[i] = p
	}

	return &LSHQuantizer{dim: dim, planes: planes}
}

// signature computes the sign bit pattern for v.
func (q *LSHQuantizer) signature(v []float64) uint64 {
	var sig uint64
	for i, plane := range q.planes {
		if vector.DotProduct(v, plane) >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

func lshCode(sig uint64) RegionCode {
	return RegionCode("lsh:" + strconv.FormatUint(sig, 16))
}

// Assign returns the region code for v. The static strategy never trains,
// so Assign is a pure lookup.
func (q *LSHQuantizer) Assign(v []float64) RegionCode {
	return lshCode(q.signature(v))
}

// Nearest returns up to k codes, the assigned one first, then codes reached
// by flipping the sign bits whose hyperplane margins are smallest. Those are
// the boundaries v sits closest to, so the flipped codes are its nearest
// neighboring regions.
func (q *LSHQuantizer) Nearest(v []float64, k int) []RegionCode {
	if k <= 0 {
		return nil
	}

	sig := q.signature(v)
	out := make([]RegionCode, 0, k)
	out = append(out, lshCode(sig))
	if k == 1 {
		return out
	}

	type margin struct {
		bit int
		abs float64
	}
	margins := make([]margin, len(q.planes))
	for i, plane := range q.planes {
		margins[i] = margin{bit: i, abs: math.Abs(vector.DotProduct(v, plane))}
	}
	sort.Slice(margins, func(a, b int) bool {
		if margins[a].abs != margins[b].abs {
			return margins[a].abs < margins[b].abs
		}
		return margins[a].bit < margins[b].bit
	})

	for _, m := range margins {
		if len(out) >= k {
			break
		}
		out = append(out, lshCode(sig^(1<<uint(m.bit))))
	}
	return out
}

var _ Quantizer = (*LSHQuantizer)(nil)
