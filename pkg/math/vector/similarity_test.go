package vector

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
		epsilon  float64
	}{
		{
			name:     "identical vectors",
			a:        []float64{1.0, 0.0, 0.0},
			b:        []float64{1.0, 0.0, 0.0},
			expected: 1.0,
			epsilon:  0.001,
		},
		{
			name:     "orthogonal vectors",
			a:        []float64{1.0, 0.0, 0.0},
			b:        []float64{0.0, 1.0, 0.0},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "opposite vectors",
			a:        []float64{1.0, 0.0, 0.0},
			b:        []float64{-1.0, 0.0, 0.0},
			expected: -1.0,
			epsilon:  0.001,
		},
		{
			name:     "similar vectors",
			a:        []float64{1.0, 2.0, 3.0},
			b:        []float64{4.0, 5.0, 6.0},
			expected: 0.9746318461970762,
			epsilon:  0.001,
		},
		{
			name:     "empty vectors",
			a:        []float64{},
			b:        []float64{},
			expected: 0,
			epsilon:  0.001,
		},
		{
			name:     "mismatched dimensions",
			a:        []float64{1.0, 2.0},
			b:        []float64{1.0, 2.0, 3.0},
			expected: 0,
			epsilon:  0.001,
		},
		{
			name:     "zero vector",
			a:        []float64{0.0, 0.0, 0.0},
			b:        []float64{1.0, 2.0, 3.0},
			expected: 0,
			epsilon:  0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > tt.epsilon {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestCosineSimilaritySymmetry(t *testing.T) {
	a := []float64{0.3, -0.2, 0.9, 0.1}
	b := []float64{-0.5, 0.4, 0.2, 0.7}

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)
	if ab != ba {
		t.Errorf("similarity not symmetric: %f vs %f", ab, ba)
	}
	if ab < -1.0 || ab > 1.0 {
		t.Errorf("similarity out of range: %f", ab)
	}
}

func TestCosineSimilarity32(t *testing.T) {
	a := []float32{1.0, 2.0, 3.0}
	b := []float32{4.0, 5.0, 6.0}

	result := CosineSimilarity32(a, b)
	expected := 0.9746318461970762

	if math.Abs(result-expected) > 0.001 {
		t.Errorf("expected %f, got %f", expected, result)
	}
}

func TestDotProduct(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{
			name:     "simple dot product",
			a:        []float64{1.0, 2.0, 3.0},
			b:        []float64{4.0, 5.0, 6.0},
			expected: 32.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float64{1.0, 0.0},
			b:        []float64{0.0, 1.0},
			expected: 0.0,
		},
		{
			name:     "mismatched dimensions",
			a:        []float64{1.0, 2.0},
			b:        []float64{1.0},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DotProduct(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	t.Run("classic 3-4-5", func(t *testing.T) {
		a := []float64{0.0, 0.0}
		b := []float64{3.0, 4.0}
		if d := EuclideanDistance(a, b); math.Abs(d-5.0) > 0.001 {
			t.Errorf("expected 5.0, got %f", d)
		}
	})

	t.Run("mismatched lengths lose comparisons", func(t *testing.T) {
		if d := EuclideanDistance([]float64{1}, []float64{1, 2}); !math.IsInf(d, 1) {
			t.Errorf("expected +Inf, got %f", d)
		}
	})
}

func TestEuclideanSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
		epsilon  float64
	}{
		{
			name:     "identical vectors",
			a:        []float64{1.0, 2.0, 3.0},
			b:        []float64{1.0, 2.0, 3.0},
			expected: 1.0,
			epsilon:  0.001,
		},
		{
			name:     "distant vectors",
			a:        []float64{0.0, 0.0},
			b:        []float64{3.0, 4.0},
			expected: 1.0 / 6.0, // 1 / (1 + 5)
			epsilon:  0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EuclideanSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > tt.epsilon {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("normalizes vector to unit length", func(t *testing.T) {
		vec := []float64{3.0, 4.0}
		result := Normalize(vec)

		// Expected: [0.6, 0.8]
		if math.Abs(result[0]-0.6) > 0.001 {
			t.Errorf("expected [0] = 0.6, got %f", result[0])
		}
		if math.Abs(result[1]-0.8) > 0.001 {
			t.Errorf("expected [1] = 0.8, got %f", result[1])
		}

		// Original should be unchanged
		if vec[0] != 3.0 || vec[1] != 4.0 {
			t.Error("original vector was modified")
		}
	})

	t.Run("zero vector returns zero vector", func(t *testing.T) {
		vec := []float64{0.0, 0.0, 0.0}
		result := Normalize(vec)

		for i, v := range result {
			if v != 0.0 {
				t.Errorf("expected [%d] = 0, got %f", i, v)
			}
		}
	})
}

func TestNormalizeInPlace(t *testing.T) {
	t.Run("normalizes vector in place", func(t *testing.T) {
		vec := []float64{3.0, 4.0}
		NormalizeInPlace(vec)

		if math.Abs(vec[0]-0.6) > 0.001 {
			t.Errorf("expected [0] = 0.6, got %f", vec[0])
		}
		if math.Abs(vec[1]-0.8) > 0.001 {
			t.Errorf("expected [1] = 0.8, got %f", vec[1])
		}
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		vec := []float64{0.0, 0.0}
		NormalizeInPlace(vec)

		if vec[0] != 0.0 || vec[1] != 0.0 {
			t.Error("zero vector should remain unchanged")
		}
	})
}

func TestNorm(t *testing.T) {
	if n := Norm([]float64{3.0, 4.0}); math.Abs(n-5.0) > 0.001 {
		t.Errorf("expected 5.0, got %f", n)
	}
	if n := Norm(nil); n != 0 {
		t.Errorf("expected 0 for nil, got %f", n)
	}
}

func TestMean(t *testing.T) {
	t.Run("component-wise mean", func(t *testing.T) {
		m := Mean([][]float64{
			{1.0, 2.0},
			{3.0, 4.0},
		})
		if m == nil || math.Abs(m[0]-2.0) > 0.001 || math.Abs(m[1]-3.0) > 0.001 {
			t.Errorf("expected [2 3], got %v", m)
		}
	})

	t.Run("empty set", func(t *testing.T) {
		if m := Mean(nil); m != nil {
			t.Errorf("expected nil, got %v", m)
		}
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		if m := Mean([][]float64{{1}, {1, 2}}); m != nil {
			t.Errorf("expected nil, got %v", m)
		}
	})
}

func BenchmarkCosineSimilarity(b *testing.B) {
	a := make([]float64, 128)
	vecB := make([]float64, 128)
	for i := range a {
		a[i] = float64(i) / 128
		vecB[i] = float64(128-i) / 128
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CosineSimilarity(a, vecB)
	}
}

func BenchmarkNormalize(b *testing.B) {
	vec := make([]float64, 128)
	for i := range vec {
		vec[i] = float64(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(vec)
	}
}
