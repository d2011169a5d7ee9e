// Package vector provides vector math operations for MuninDB.
//
// All similarity and distance calculations used by the engine live here.
// Use these functions instead of implementing your own to ensure consistency
// and correctness across the quantizer, clusters, and novelty scoring.
//
// Feature vectors in MuninDB are []float64; the float32 variants exist for
// interop with exported snapshots and external embedding formats.
//
// Main Functions:
//   - CosineSimilarity: Standard similarity for float64 vectors (most common)
//   - CosineSimilarity32: Similarity for float32 vectors
//   - EuclideanDistance: Raw L2 distance (codebook assignment)
//   - EuclideanSimilarity: Distance-based similarity in [0, 1]
//   - Normalize / NormalizeInPlace: Unit-length scaling
//   - Mean: Component-wise mean of a set of vectors
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float64 vectors.
// Returns value in range [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
//
// Mismatched lengths, empty inputs, and zero-norm vectors all return 0 rather
// than dividing by zero — the caller never has to guard the degenerate cases.
//
// Example:
//
//	a := []float64{1.0, 2.0, 3.0}
//	b := []float64{4.0, 5.0, 6.0}
//	sim := CosineSimilarity(a, b)  // Returns 0.9746318461970762
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity32 calculates cosine similarity between two float32 vectors.
// Uses float64 accumulation for precision even with float32 inputs.
func CosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct calculates the dot product of two float64 vectors.
//
// For unit-normalized vectors, dot product equals cosine similarity.
func DotProduct(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// EuclideanDistance calculates the L2 distance between two float64 vectors.
// Mismatched lengths return +Inf so a bad candidate always loses a
// nearest-neighbor comparison.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// EuclideanSimilarity calculates similarity based on Euclidean distance.
// Returns value in range [0, 1] where 1 = identical, 0 = very different.
//
// Formula: 1 / (1 + distance)
func EuclideanSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return 1.0 / (1.0 + math.Sqrt(sum))
}

// Norm returns the L2 magnitude of the vector.
func Norm(v []float64) float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	return math.Sqrt(sumSquares)
}

// Normalize returns a unit-length copy of the vector.
// The input vector is not modified. A zero vector normalizes to a zero
// vector of the same length.
//
// Example:
//
//	original := []float64{3.0, 4.0}
//	normalized := Normalize(original)  // Returns [0.6, 0.8]
//	// original is unchanged
func Normalize(vec []float64) []float64 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}

	if sumSquares == 0 {
		return make([]float64, len(vec))
	}

	norm := math.Sqrt(sumSquares)
	normalized := make([]float64, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// After normalization the vector has unit length. Zero vectors are left
// unchanged.
//
// WARNING: Modifies the input slice. Use Normalize() to preserve original.
func NormalizeInPlace(v []float64) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	if sumSquares == 0 {
		return
	}
	norm := 1.0 / math.Sqrt(sumSquares)
	for i := range v {
		v[i] *= norm
	}
}

// Mean returns the component-wise mean of a non-empty set of equal-length
// vectors. Returns nil for an empty set or mismatched lengths.
func Mean(vs [][]float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	out := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			out[i] += x
		}
	}
	inv := 1.0 / float64(len(vs))
	for i := range out {
		out[i] *= inv
	}
	return out
}
