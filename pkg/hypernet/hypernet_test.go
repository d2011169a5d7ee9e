package hypernet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeuronCountDeterministic(t *testing.T) {
	s := NewHypernetSizer(DefaultConfig())
	inputs := [][3]float64{
		{0, 0, 0},
		{1, 0, 0},
		{0.5, 0.3, 0.7},
		{0.9, 0.01, 0.42},
	}
	for _, in := range inputs {
		a := s.NeuronCount(in[0], in[1], in[2])
		b := s.NeuronCount(in[0], in[1], in[2])
		assert.Equal(t, a, b, "identical inputs must size identically")
	}
}

func TestNeuronCountBounds(t *testing.T) {
	cfg := DefaultConfig()
	s := NewHypernetSizer(cfg)

	assert.Equal(t, cfg.MinNeurons, s.NeuronCount(0, 0, 0), "all-zero signals sit at the floor")

	// Default coefficients top out well under the cap.
	top := s.NeuronCount(1, 1, 1)
	want := int(math.Round(50 + 20*math.Log1p(1) + 100 + 50))
	assert.Equal(t, want, top)
	assert.LessOrEqual(t, top, cfg.MaxNeurons)

	// A hot novelty coefficient must still respect the cap.
	hot := cfg
	hot.NoveltyCoef = 10000
	assert.Equal(t, hot.MaxNeurons, NewHypernetSizer(hot).NeuronCount(1, 0, 0))
}

func TestNeuronCountInputClamping(t *testing.T) {
	s := NewHypernetSizer(DefaultConfig())

	assert.Equal(t, s.NeuronCount(1, 1, 1), s.NeuronCount(5, 99, 2), "over-range inputs clamp to 1")
	assert.Equal(t, s.NeuronCount(0, 0, 0), s.NeuronCount(-1, -0.5, -3), "negative inputs clamp to 0")
	assert.Equal(t, s.NeuronCount(0, 0.5, 0), s.NeuronCount(math.NaN(), 0.5, math.NaN()), "NaN degrades to 0, not poison")
}

func TestNoveltyDominatesFrequency(t *testing.T) {
	s := NewHypernetSizer(DefaultConfig())
	base := s.NeuronCount(0, 0, 0)

	noveltyGain := s.NeuronCount(1, 0, 0) - base
	frequencyGain := s.NeuronCount(0, 1, 0) - base
	assert.Greater(t, noveltyGain, frequencyGain,
		"novel patterns earn more capacity than merely frequent ones")
}

func TestNeuronCountMonotone(t *testing.T) {
	s := NewHypernetSizer(DefaultConfig())
	prev := 0
	for n := 0.0; n <= 1.0; n += 0.1 {
		count := s.NeuronCount(n, 0.2, 0.3)
		assert.GreaterOrEqual(t, count, prev)
		prev = count
	}
}

func TestNewSelectsStrategy(t *testing.T) {
	cfg := DefaultConfig()

	_, ok := New(cfg).(*HypernetSizer)
	assert.True(t, ok, "default strategy is the canonical formula")

	cfg.Strategy = StrategyStochastic
	_, ok = New(cfg).(*StochasticSizer)
	assert.True(t, ok)

	cfg.Strategy = "quantum"
	_, ok = New(cfg).(*HypernetSizer)
	assert.True(t, ok, "unknown strategies fall back to the canonical formula")
}

func TestStochasticDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyStochastic
	s := NewStochasticSizer(cfg)

	a := s.NeuronCount(0.7, 0.2, 0.5)
	b := s.NeuronCount(0.7, 0.2, 0.5)
	assert.Equal(t, a, b, "jitter is derived from inputs, not drawn per call")
}

func TestStochasticZeroJitterMatchesBaseline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = 0
	stoch := NewStochasticSizer(cfg)
	base := NewHypernetSizer(cfg)

	for n := 0.0; n <= 1.0; n += 0.25 {
		for f := 0.0; f <= 1.0; f += 0.25 {
			assert.Equal(t, base.NeuronCount(n, f, 0.5), stoch.NeuronCount(n, f, 0.5))
		}
	}
}

func TestStochasticStaysNearBaseline(t *testing.T) {
	cfg := DefaultConfig()
	stoch := NewStochasticSizer(cfg)
	base := NewHypernetSizer(cfg)

	for n := 0.0; n <= 1.0; n += 0.2 {
		for c := 0.0; c <= 1.0; c += 0.2 {
			b := base.NeuronCount(n, 0.1, c)
			s := stoch.NeuronCount(n, 0.1, c)
			assert.GreaterOrEqual(t, s, cfg.MinNeurons)
			assert.LessOrEqual(t, s, cfg.MaxNeurons)
			assert.InDelta(t, b, s, cfg.Jitter*float64(b)+1,
				"jitter stays inside the configured envelope")
		}
	}
}

func TestComplexityExtremes(t *testing.T) {
	oneHot := []float64{1, 0, 0, 0}
	uniform := []float64{0.5, 0.5, 0.5, 0.5}

	for _, mode := range []string{ComplexityEntropy, ComplexityVariance} {
		assert.InDelta(t, 0.0, Complexity(oneHot, mode), 1e-12, mode)
		assert.InDelta(t, 1.0, Complexity(uniform, mode), 1e-9, mode)
	}
}

func TestComplexityDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, Complexity(nil, ComplexityEntropy))
	assert.Equal(t, 0.0, Complexity([]float64{3}, ComplexityEntropy), "a single component has no dispersion")
	assert.Equal(t, 0.0, Complexity([]float64{0, 0, 0, 0}, ComplexityEntropy))
	assert.Equal(t, 0.0, Complexity([]float64{0, 0, 0, 0}, ComplexityVariance))
}

func TestComplexityScaleInvariant(t *testing.T) {
	v := []float64{0.1, 0.4, 0.2, 0.3}
	scaled := []float64{1, 4, 2, 3}
	for _, mode := range []string{ComplexityEntropy, ComplexityVariance} {
		assert.InDelta(t, Complexity(v, mode), Complexity(scaled, mode), 1e-12,
			"complexity depends on shape, not magnitude")
	}
}

func TestComplexityOrdering(t *testing.T) {
	concentrated := []float64{0.95, 0.05, 0.05, 0.05}
	spread := []float64{0.5, 0.5, 0.4, 0.4}
	for _, mode := range []string{ComplexityEntropy, ComplexityVariance} {
		assert.Greater(t, Complexity(spread, mode), Complexity(concentrated, mode), mode)
	}
}

func TestConfigSanitize(t *testing.T) {
	s := NewHypernetSizer(Config{MinNeurons: -5, MaxNeurons: -10})
	require.NotNil(t, s)
	count := s.NeuronCount(1, 1, 1)
	assert.GreaterOrEqual(t, count, 1, "broken bounds fall back to usable defaults")
	assert.GreaterOrEqual(t, s.cfg.MaxNeurons, s.cfg.MinNeurons)
}

func BenchmarkNeuronCount(b *testing.B) {
	s := NewHypernetSizer(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.NeuronCount(0.7, 0.2, 0.5)
	}
}

func BenchmarkComplexity(b *testing.B) {
	v := make([]float64, 128)
	for i := range v {
		v[i] = float64(i%7) * 0.1
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Complexity(v, ComplexityEntropy)
	}
}
