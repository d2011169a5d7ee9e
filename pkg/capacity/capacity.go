// Package capacity maintains per-concept neuron budgets.
//
// Each concept gets a target neuron count, seeded once from the sizing
// formula and then adapted slowly as observed usage drifts. A hysteresis
// band suppresses churn: the target only moves when observed size strays
// well outside it, and then only by a small EMA step. This keeps allocation
// stable under noisy single observations while still tracking sustained
// demand shifts.
package capacity

import (
	"math"
	"sort"

	"github.com/orneryd/munindb/pkg/hypernet"
)

// Config holds the controller's adaptation parameters.
type Config struct {
	// Hysteresis is the tolerated relative deviation. Observed sizes
	// within [1-Hysteresis, 1+Hysteresis] of target cause no change.
	Hysteresis float64 `yaml:"hysteresis"`

	// AdaptRate is the EMA step toward observed size once outside the
	// hysteresis band.
	AdaptRate float64 `yaml:"adapt_rate"`

	// MinNeurons and MaxNeurons clamp every target.
	MinNeurons int `yaml:"min_neurons"`
	MaxNeurons int `yaml:"max_neurons"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Hysteresis: 0.15,
		AdaptRate:  0.05,
		MinNeurons: 50,
		MaxNeurons: 600,
	}
}

func (c *Config) sanitize() {
	if c.Hysteresis < 0 {
		c.Hysteresis = 0
	}
	if c.AdaptRate <= 0 || c.AdaptRate > 1 {
		c.AdaptRate = 0.05
	}
	if c.MinNeurons <= 0 {
		c.MinNeurons = 50
	}
	if c.MaxNeurons < c.MinNeurons {
		c.MaxNeurons = c.MinNeurons
	}
}

// Controller tracks capacity targets per concept. Targets are kept as
// floats internally so repeated small EMA steps accumulate instead of
// rounding away. Not safe for concurrent use.
type Controller struct {
	cfg     Config
	sizer   hypernet.Sizer
	targets map[string]float64
	dirty   bool
}

// NewController builds a controller that seeds new concepts from sizer.
func NewController(cfg Config, sizer hypernet.Sizer) *Controller {
	cfg.sanitize()
	return &Controller{
		cfg:     cfg,
		sizer:   sizer,
		targets: make(map[string]float64),
	}
}

// TargetFor returns the concept's capacity target, seeding it from the
// sizing formula on first sight. Later calls return the adapted target and
// ignore the signals; the seed is the only moment the formula speaks.
func (c *Controller) TargetFor(concept string, novelty, frequency, complexity float64) int {
	if t, ok := c.targets[concept]; ok {
		return c.round(t)
	}
	seed := float64(c.sizer.NeuronCount(novelty, frequency, complexity))
	c.targets[concept] = c.clamp(seed)
	c.dirty = true
	return c.round(c.targets[concept])
}

// Target reads a concept's target without seeding it.
func (c *Controller) Target(concept string) (int, bool) {
	t, ok := c.targets[concept]
	if !ok {
		return 0, false
	}
	return c.round(t), true
}

// Adjust nudges the concept's target toward observed when the observed size
// falls outside the hysteresis band. The demand signal accelerates
// adaptation: at full demand the EMA step doubles. Unknown concepts are
// seeded directly from the observation, which happens when state was
// partially restored. Returns whether the target moved.
func (c *Controller) Adjust(concept string, observed int, demand float64) bool {
	target, ok := c.targets[concept]
	if !ok {
		c.targets[concept] = c.clamp(float64(observed))
		c.dirty = true
		return true
	}

	ratio := float64(observed) / target
	if ratio >= 1-c.cfg.Hysteresis && ratio <= 1+c.cfg.Hysteresis {
		return false
	}

	rate := c.cfg.AdaptRate * (1 + clamp01(demand))
	if rate > 1 {
		rate = 1
	}
	next := c.clamp(target + rate*(float64(observed)-target))
	if next == target {
		return false
	}
	c.targets[concept] = next
	c.dirty = true
	return true
}

// Concepts returns every tracked concept, sorted.
func (c *Controller) Concepts() []string {
	out := make([]string, 0, len(c.targets))
	for concept := range c.targets {
		out = append(out, concept)
	}
	sort.Strings(out)
	return out
}

// Len returns how many concepts have targets.
func (c *Controller) Len() int { return len(c.targets) }

// IsDirty reports whether targets changed since the last MarkClean.
func (c *Controller) IsDirty() bool { return c.dirty }

// MarkClean clears the dirty flag after a successful save.
func (c *Controller) MarkClean() { c.dirty = false }

// Snapshot returns a copy of the raw targets for persistence.
func (c *Controller) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(c.targets))
	for concept, t := range c.targets {
		out[concept] = t
	}
	return out
}

// Restore replaces all targets, clamping each into the configured bounds.
// Nil maps are ignored.
func (c *Controller) Restore(targets map[string]float64) {
	if targets == nil {
		return
	}
	c.targets = make(map[string]float64, len(targets))
	for concept, t := range targets {
		if concept == "" || math.IsNaN(t) {
			continue
		}
		c.targets[concept] = c.clamp(t)
	}
	c.dirty = false
}

func (c *Controller) clamp(t float64) float64 {
	if t < float64(c.cfg.MinNeurons) {
		return float64(c.cfg.MinNeurons)
	}
	if t > float64(c.cfg.MaxNeurons) {
		return float64(c.cfg.MaxNeurons)
	}
	return t
}

func (c *Controller) round(t float64) int {
	return int(math.Round(t))
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
