// Package cluster implements neurons and the clusters that own them.
//
// A cluster is the unit of allocation and persistence: it owns a set of
// neurons, a centroid summarizing every pattern it has absorbed, and the
// dirty flag that drives incremental saves. Neurons never live outside a
// cluster and never move between clusters.
//
// Example:
//
//	c := cluster.New("cl-1", "region-7")
//	c.GrowTo(50, newID)           // allocate 50 empty neurons
//	c.UpdateCentroid(features)    // absorb a pattern
//	score := c.Similarity(query, true)
package cluster

import (
	"math"
	"sort"
	"time"

	"github.com/orneryd/munindb/pkg/math/vector"
	"github.com/orneryd/munindb/pkg/quantize"
)

// Neuron is a single trainable unit. Weights are sparse: only feature
// indexes that training has touched appear in the map.
type Neuron struct {
	ID string `json:"id"`

	// Weights maps feature index to input weight, clamped to [-1, 1].
	Weights map[int]float64 `json:"weights,omitempty"`

	// RestingPotential is the bias added to every activation.
	RestingPotential float64 `json:"resting_potential"`

	// CurrentPotential is the raw potential from the most recent
	// activation, before the sigmoid. Not persisted as authoritative
	// state; it is a scratch value for firing checks.
	CurrentPotential float64 `json:"current_potential"`

	// Concepts lists the labels this neuron has been trained on.
	Concepts []string `json:"concepts,omitempty"`
}

// NewNeuron creates an empty neuron with zero resting potential.
func NewNeuron(id string) *Neuron {
	return &Neuron{
		ID:      id,
		Weights: make(map[int]float64),
	}
}

// Activate computes the neuron's response to a feature vector: the raw
// potential (resting + sparse dot product) is stored in CurrentPotential and
// the sigmoid of it is returned as the bounded output in (0, 1).
func (n *Neuron) Activate(features []float64) float64 {
	potential := n.RestingPotential
	for idx, w := range n.Weights {
		if idx >= 0 && idx < len(features) {
			potential += w * features[idx]
		}
	}
	n.CurrentPotential = potential
	return sigmoid(potential)
}

// Train nudges the weights toward producing target output for features,
// using the delta rule. Each touched weight stays in [-1, 1]. Returns the
// pre-update output error (target minus actual).
func (n *Neuron) Train(features []float64, target, learningRate float64) float64 {
	out := n.Activate(features)
	err := target - out
	if n.Weights == nil {
		n.Weights = make(map[int]float64)
	}
	for idx, x := range features {
		if x == 0 {
			continue
		}
		w := n.Weights[idx] + learningRate*err*x
		if w > 1 {
			w = 1
		} else if w < -1 {
			w = -1
		}
		n.Weights[idx] = w
	}
	return err
}

// TagConcept associates a label with the neuron. Duplicates are ignored.
func (n *Neuron) TagConcept(label string) bool {
	for _, c := range n.Concepts {
		if c == label {
			return false
		}
	}
	n.Concepts = append(n.Concepts, label)
	return true
}

// HasConcept reports whether the neuron carries the label.
func (n *Neuron) HasConcept(label string) bool {
	for _, c := range n.Concepts {
		if c == label {
			return true
		}
	}
	return false
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Activation pairs a neuron with its response to one input.
type Activation struct {
	NeuronID  string
	Potential float64
	Output    float64
}

// Similarity defaults used when a cluster has no centroid yet. A cluster in
// the query's own region is assumed close; one reached through a neighboring
// region is not.
const (
	SameRegionAffinity  = 0.8
	CrossRegionAffinity = 0.5
)

// NeuronCluster owns neurons and a centroid. Mutations set the dirty flag;
// only a successful save clears it. Not safe for concurrent use.
type NeuronCluster struct {
	id           string
	originRegion quantize.RegionCode
	centroid     []float64
	patternCount uint64
	neurons      []*Neuron
	byID         map[string]*Neuron
	dirty        bool
	lastAccess   time.Time
}

// New creates an empty cluster registered under its origin region. A fresh
// cluster is dirty: it exists in memory but not yet in storage.
func New(id string, origin quantize.RegionCode) *NeuronCluster {
	return &NeuronCluster{
		id:           id,
		originRegion: origin,
		byID:         make(map[string]*Neuron),
		dirty:        true,
		lastAccess:   time.Now(),
	}
}

// ID returns the cluster identifier.
func (c *NeuronCluster) ID() string { return c.id }

// OriginRegion returns the region the cluster was created under.
func (c *NeuronCluster) OriginRegion() quantize.RegionCode { return c.originRegion }

// Size returns the current neuron count.
func (c *NeuronCluster) Size() int { return len(c.neurons) }

// Centroid returns the internal centroid slice, or nil before the first
// pattern. Callers must not mutate it.
func (c *NeuronCluster) Centroid() []float64 { return c.centroid }

// PatternCount returns how many patterns the centroid has absorbed.
func (c *NeuronCluster) PatternCount() uint64 { return c.patternCount }

// Similarity scores the query against the centroid, in [0, 1]. Without a
// centroid the score is a neutral prior keyed on whether the query arrived
// via the cluster's own region. Negative cosine clamps to 0: opposed
// patterns are merely unrelated, not anti-matches.
func (c *NeuronCluster) Similarity(query []float64, sameRegion bool) float64 {
	if c.centroid == nil {
		if sameRegion {
			return SameRegionAffinity
		}
		return CrossRegionAffinity
	}
	cos := vector.CosineSimilarity(query, c.centroid)
	if cos < 0 {
		return 0
	}
	return cos
}

// GrowTo allocates neurons until the cluster holds target members, using
// newID for identities. Only the delta is created; clusters never shrink.
// Returns the newly created neurons, nil if no growth was needed.
func (c *NeuronCluster) GrowTo(target int, newID func() string) []*Neuron {
	if target <= len(c.neurons) {
		return nil
	}
	created := make([]*Neuron, 0, target-len(c.neurons))
	for len(c.neurons) < target {
		n := NewNeuron(newID())
		c.neurons = append(c.neurons, n)
		c.byID[n.ID] = n
		created = append(created, n)
	}
	c.dirty = true
	return created
}

// UpdateCentroid folds a pattern into the centroid as a running average.
// Repeating an identical vector leaves an already-converged centroid in
// place.
func (c *NeuronCluster) UpdateCentroid(v []float64) {
	if c.centroid == nil || len(c.centroid) != len(v) {
		c.centroid = make([]float64, len(v))
		copy(c.centroid, v)
		c.patternCount = 1
		c.dirty = true
		return
	}
	c.patternCount++
	n := float64(c.patternCount)
	for i := range c.centroid {
		c.centroid[i] += (v[i] - c.centroid[i]) / n
	}
	c.dirty = true
}

// Neurons returns the member slice in insertion order. Callers must not
// reorder or mutate it.
func (c *NeuronCluster) Neurons() []*Neuron { return c.neurons }

// Neuron looks up a member by id.
func (c *NeuronCluster) Neuron(id string) (*Neuron, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// FindNeuronsByConcept returns the members tagged with label, in insertion
// order.
func (c *NeuronCluster) FindNeuronsByConcept(label string) []*Neuron {
	var out []*Neuron
	for _, n := range c.neurons {
		if n.HasConcept(label) {
			out = append(out, n)
		}
	}
	return out
}

// ActivateAll runs every member against the input and returns the responses
// in member order.
func (c *NeuronCluster) ActivateAll(features []float64) []Activation {
	out := make([]Activation, len(c.neurons))
	for i, n := range c.neurons {
		output := n.Activate(features)
		out[i] = Activation{NeuronID: n.ID, Potential: n.CurrentPotential, Output: output}
	}
	return out
}

// TrainAll trains every member toward target and tags each with the concept
// label. Returns the mean absolute output error before the updates.
func (c *NeuronCluster) TrainAll(features []float64, label string, target, learningRate float64) float64 {
	if len(c.neurons) == 0 {
		return 0
	}
	var sum float64
	for _, n := range c.neurons {
		err := n.Train(features, target, learningRate)
		sum += math.Abs(err)
		n.TagConcept(label)
	}
	c.dirty = true
	return sum / float64(len(c.neurons))
}

// Concepts returns the distinct labels carried by any member, sorted.
func (c *NeuronCluster) Concepts() []string {
	seen := make(map[string]struct{})
	for _, n := range c.neurons {
		for _, label := range n.Concepts {
			seen[label] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// AnchorNeuronIDs returns up to n member ids, oldest first. Anchors let
// other clusters form synapses to this one without hydrating its members.
func (c *NeuronCluster) AnchorNeuronIDs(n int) []string {
	if n > len(c.neurons) {
		n = len(c.neurons)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = c.neurons[i].ID
	}
	return out
}

// IsDirty reports whether the cluster has unsaved changes.
func (c *NeuronCluster) IsDirty() bool { return c.dirty }

// MarkClean clears the dirty flag after a successful save.
func (c *NeuronCluster) MarkClean() { c.dirty = false }

// MarkDirty flags the cluster for the next save cycle.
func (c *NeuronCluster) MarkDirty() { c.dirty = true }

// Touch refreshes the last-access time.
func (c *NeuronCluster) Touch() { c.lastAccess = time.Now() }

// LastAccess returns when the cluster was last used.
func (c *NeuronCluster) LastAccess() time.Time { return c.lastAccess }

// IdleFor reports how long the cluster has gone unused.
func (c *NeuronCluster) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.lastAccess)
}
