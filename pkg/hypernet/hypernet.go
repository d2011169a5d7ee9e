// Package hypernet decides how many neurons a pattern deserves.
//
// The sizer is the allocation formula of the engine: given the novelty,
// frequency and complexity of an observed pattern it returns a bounded
// target neuron count. Everything downstream (cluster growth, capacity
// control) treats that number as the demand signal, so the formula must be
// deterministic: identical inputs always produce identical counts.
//
// Two strategies exist. HypernetSizer is the canonical production formula.
// StochasticSizer adds seeded jitter around the same baseline and is only
// selected by explicit configuration, never as a fallback.
//
// Example:
//
//	sizer := hypernet.New(hypernet.DefaultConfig())
//	n := sizer.NeuronCount(0.9, 0.01, 0.5)  // novel, rare, mid-complexity
package hypernet

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Strategy names for Config.Strategy.
const (
	StrategyHypernet   = "hypernet"
	StrategyStochastic = "stochastic"
)

// Complexity modes for Config.ComplexityMode.
const (
	ComplexityEntropy  = "entropy"
	ComplexityVariance = "variance"
)

// Sizer maps pattern signals to a target neuron count.
//
// All three inputs live in [0, 1]; out-of-range values are clamped so the
// output bounds hold regardless of caller bugs.
type Sizer interface {
	NeuronCount(novelty, frequency, complexity float64) int
}

// Config holds the sizing formula's coefficients and bounds.
type Config struct {
	// MinNeurons and MaxNeurons clamp every result.
	MinNeurons int `yaml:"min_neurons"`
	MaxNeurons int `yaml:"max_neurons"`

	// FrequencyCoef scales log(1+frequency); frequent patterns earn a
	// modest bonus rather than a linear one.
	FrequencyCoef float64 `yaml:"frequency_coef"`

	// NoveltyCoef scales novelty, the dominant term: unprecedented
	// patterns get the most new capacity.
	NoveltyCoef float64 `yaml:"novelty_coef"`

	// ComplexityCoef scales pattern complexity.
	ComplexityCoef float64 `yaml:"complexity_coef"`

	// ComplexityMode selects how Complexity scores dispersion:
	// "entropy" (default) or "variance".
	ComplexityMode string `yaml:"complexity_mode"`

	// Strategy selects the sizer implementation: "hypernet" (default)
	// or "stochastic".
	Strategy string `yaml:"strategy"`

	// Jitter is the stochastic strategy's maximum relative deviation
	// from the baseline formula.
	Jitter float64 `yaml:"jitter"`

	// Seed fixes the stochastic strategy's jitter derivation.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinNeurons:     50,
		MaxNeurons:     600,
		FrequencyCoef:  20,
		NoveltyCoef:    100,
		ComplexityCoef: 50,
		ComplexityMode: ComplexityEntropy,
		Strategy:       StrategyHypernet,
		Jitter:         0.1,
		Seed:           42,
	}
}

func (c *Config) sanitize() {
	if c.MinNeurons <= 0 {
		c.MinNeurons = 50
	}
	if c.MaxNeurons < c.MinNeurons {
		c.MaxNeurons = c.MinNeurons
	}
	if c.FrequencyCoef < 0 {
		c.FrequencyCoef = 0
	}
	if c.NoveltyCoef < 0 {
		c.NoveltyCoef = 0
	}
	if c.ComplexityCoef < 0 {
		c.ComplexityCoef = 0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
}

// New builds the sizer named by cfg.Strategy. Unknown strategy names fall
// back to the canonical hypernet formula.
func New(cfg Config) Sizer {
	if cfg.Strategy == StrategyStochastic {
		return NewStochasticSizer(cfg)
	}
	return NewHypernetSizer(cfg)
}

// HypernetSizer is the canonical allocation formula:
//
//	clamp(round(min + a·log(1+frequency) + b·novelty + g·complexity), min, max)
type HypernetSizer struct {
	cfg Config
}

// NewHypernetSizer builds the canonical sizer.
func NewHypernetSizer(cfg Config) *HypernetSizer {
	cfg.sanitize()
	return &HypernetSizer{cfg: cfg}
}

// NeuronCount implements Sizer.
func (s *HypernetSizer) NeuronCount(novelty, frequency, complexity float64) int {
	return clampCount(s.baseline(novelty, frequency, complexity), s.cfg)
}

func (s *HypernetSizer) baseline(novelty, frequency, complexity float64) float64 {
	novelty = clamp01(novelty)
	frequency = clamp01(frequency)
	complexity = clamp01(complexity)
	return float64(s.cfg.MinNeurons) +
		s.cfg.FrequencyCoef*math.Log1p(frequency) +
		s.cfg.NoveltyCoef*novelty +
		s.cfg.ComplexityCoef*complexity
}

// StochasticSizer perturbs the canonical baseline with seeded jitter.
//
// The jitter is derived by hashing the inputs with the seed, so identical
// inputs still produce identical counts; "stochastic" refers to the spread
// across different inputs, not to run-to-run randomness. Kept as an explicit
// opt-in alternative; the learn path uses HypernetSizer unless configuration
// says otherwise.
type StochasticSizer struct {
	base *HypernetSizer
	cfg  Config
}

// NewStochasticSizer builds the jittered sizer.
func NewStochasticSizer(cfg Config) *StochasticSizer {
	cfg.sanitize()
	return &StochasticSizer{base: NewHypernetSizer(cfg), cfg: cfg}
}

// NeuronCount implements Sizer.
func (s *StochasticSizer) NeuronCount(novelty, frequency, complexity float64) int {
	baseline := s.base.baseline(novelty, frequency, complexity)

	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(clamp01(novelty)))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(clamp01(frequency)))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(clamp01(complexity)))
	binary.BigEndian.PutUint64(buf[24:32], uint64(s.cfg.Seed))
	h := xxhash.Sum64(buf[:])

	u := float64(h) / float64(math.MaxUint64)
	jitter := (u - 0.5) * 2 * s.cfg.Jitter
	return clampCount(baseline*(1+jitter), s.cfg)
}

// Complexity scores how widely a vector's energy is dispersed across its
// components, in [0, 1]. A one-hot vector scores 0, a perfectly uniform
// vector scores 1. Zero and single-element vectors score 0.
//
// Both modes operate on the normalized energy distribution p_i = v_i²/Σv²:
// "entropy" returns Shannon entropy over p normalized by log(n); "variance"
// returns the complement of p's concentration (1 - Σp_i², rescaled).
func Complexity(v []float64, mode string) float64 {
	n := len(v)
	if n <= 1 {
		return 0
	}

	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return 0
	}

	switch mode {
	case ComplexityVariance:
		var ipr float64
		for _, x := range v {
			p := x * x / sumSq
			ipr += p * p
		}
		return clamp01((1 - ipr) / (1 - 1/float64(n)))
	default:
		var h float64
		for _, x := range v {
			p := x * x / sumSq
			if p > 0 {
				h -= p * math.Log(p)
			}
		}
		return clamp01(h / math.Log(float64(n)))
	}
}

func clampCount(raw float64, cfg Config) int {
	n := int(math.Round(raw))
	if n < cfg.MinNeurons {
		return cfg.MinNeurons
	}
	if n > cfg.MaxNeurons {
		return cfg.MaxNeurons
	}
	return n
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
