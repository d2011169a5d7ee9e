package encode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/math/vector"
)

func TestEncodeDeterminism(t *testing.T) {
	enc := NewFeatureEncoder()

	tokens := []string{"apple", "Apple", "banana", "x", "", "hello-world", "naïve", "42"}
	for _, tok := range tokens {
		t.Run("token "+tok, func(t *testing.T) {
			a := enc.Encode(tok)
			b := enc.Encode(tok)

			require.Len(t, a, Dim)
			require.Len(t, b, Dim)
			for i := range a {
				assert.Equal(t, a[i], b[i], "dim %d differs between calls", i)
			}
		})
	}
}

func TestEncodeUnitNorm(t *testing.T) {
	enc := NewFeatureEncoder()

	for _, tok := range []string{"apple", "", "ZZZZZ", "a", "12345", "日本語"} {
		v := enc.Encode(tok)
		assert.InDelta(t, 1.0, vector.Norm(v), 1e-9, "token %q not unit length", tok)
	}
}

func TestEncodeAllSlotsPopulated(t *testing.T) {
	enc := NewFeatureEncoder()

	v := enc.Encode("apple")
	for i, x := range v {
		assert.NotZero(t, x, "dim %d left unpopulated", i)
	}
}

func TestEncodeDistinguishesTokens(t *testing.T) {
	enc := NewFeatureEncoder()

	t.Run("identical tokens are identical", func(t *testing.T) {
		sim := vector.CosineSimilarity(enc.Encode("apple"), enc.Encode("apple"))
		assert.InDelta(t, 1.0, sim, 1e-9)
	})

	t.Run("unrelated tokens stay below the reuse gate", func(t *testing.T) {
		sim := vector.CosineSimilarity(enc.Encode("apple"), enc.Encode("zygote"))
		assert.Less(t, sim, 0.85)
	})

	t.Run("case changes the orthographic section", func(t *testing.T) {
		a := enc.Encode("apple")
		b := enc.Encode("Apple")
		assert.NotEqual(t, a, b)
	})

	t.Run("single character edit changes the vector", func(t *testing.T) {
		a := enc.Encode("abc")
		b := enc.Encode("abd")
		assert.NotEqual(t, a, b)
	})
}

func TestEncodeOrthographicFeatures(t *testing.T) {
	v := make([]float64, Dim)
	encodeOrthographic(v, "Apple")

	assert.Equal(t, 1.0, v[1], "leading uppercase flag")
	assert.Equal(t, 1.0, v[4], "title case flag")
	assert.InDelta(t, 2.0/5.0, v[9], 1e-9, "vowel ratio of Apple")
	assert.Equal(t, 1.0, v[13], "double letter flag (pp)")
	assert.Equal(t, 1.0, v[19], "length bucket 4-6")
}

func TestEncodeEmptyToken(t *testing.T) {
	enc := NewFeatureEncoder()

	v := enc.Encode("")
	require.Len(t, v, Dim)
	assert.InDelta(t, 1.0, vector.Norm(v), 1e-9)

	// Nothing but filler, still deterministic.
	assert.Equal(t, v, enc.Encode(""))
}

func TestCachedEncoder(t *testing.T) {
	t.Run("caches repeated tokens", func(t *testing.T) {
		c := NewCachedEncoder(NewFeatureEncoder(), 16)

		a := c.Encode("apple")
		b := c.Encode("apple")
		assert.Equal(t, a, b)

		stats := c.Stats()
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)
		assert.Equal(t, 1, stats.Size)
		assert.InDelta(t, 50.0, stats.HitRate, 0.01)
	})

	t.Run("evicts beyond capacity", func(t *testing.T) {
		c := NewCachedEncoder(NewFeatureEncoder(), 2)

		c.Encode("one")
		c.Encode("two")
		c.Encode("three")

		assert.LessOrEqual(t, c.Stats().Size, 2)
	})

	t.Run("clear resets contents but not counters", func(t *testing.T) {
		c := NewCachedEncoder(NewFeatureEncoder(), 16)
		c.Encode("apple")
		c.Clear()

		assert.Equal(t, 0, c.Stats().Size)
		assert.Equal(t, uint64(1), c.Stats().Misses)
	})

	t.Run("dim passthrough", func(t *testing.T) {
		c := NewCachedEncoder(NewFeatureEncoder(), 0)
		assert.Equal(t, Dim, c.Dim())
	})

	t.Run("cached result matches uncached", func(t *testing.T) {
		plain := NewFeatureEncoder()
		c := NewCachedEncoder(NewFeatureEncoder(), 16)
		assert.Equal(t, plain.Encode("banana"), c.Encode("banana"))
	})
}

func TestSectionBoundaries(t *testing.T) {
	require.Equal(t, 0, orthoStart)
	require.Equal(t, ngramStart, orthoEnd)
	require.Equal(t, phonStart, ngramEnd)
	require.Equal(t, statStart, phonEnd)
	require.Equal(t, Dim, statEnd)
}

func TestFillerRange(t *testing.T) {
	v := make([]float64, Dim)
	fillEmptySlots(v, "apple")

	for i, x := range v {
		if math.Abs(x) > 0.5 {
			t.Errorf("filler at dim %d out of range: %f", i, x)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	enc := NewFeatureEncoder()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc.Encode("benchmark")
	}
}

func BenchmarkEncodeCached(b *testing.B) {
	enc := NewCachedEncoder(NewFeatureEncoder(), 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc.Encode("benchmark")
	}
}
