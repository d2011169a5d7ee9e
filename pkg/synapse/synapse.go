// Package synapse maintains the sparse weighted graph between neurons.
//
// Edges strengthen when neurons fire together (Hebbian learning), decay as
// they age, and are pruned once they fall below a floor. The graph is
// deliberately id-based: it never touches neuron state, so clusters can be
// evicted from memory while their synapses persist.
//
// Edges are undirected. Each pair is stored once under canonical ordering
// and mirrored in the adjacency index, so Weight("a","b") and
// Weight("b","a") answer from the same edge.
package synapse

import (
	"sort"
)

// Config holds the graph's learning and decay parameters.
type Config struct {
	// FloorStrength gates participation: activations at or below it are
	// ignored by co-activation recording.
	FloorStrength float64 `yaml:"floor_strength"`

	// LearningRate scales each co-activation increment.
	LearningRate float64 `yaml:"learning_rate"`

	// MinWeight and MaxWeight clamp every reinforcement. Decay is allowed
	// to sink weights below MinWeight so pruning has prey.
	MinWeight float64 `yaml:"min_weight"`
	MaxWeight float64 `yaml:"max_weight"`

	// PruneThreshold removes edges weaker than it during Prune.
	PruneThreshold float64 `yaml:"prune_threshold"`

	// DecayRate multiplies every weight on each Age cycle.
	DecayRate float64 `yaml:"decay_rate"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FloorStrength:  0.1,
		LearningRate:   0.05,
		MinWeight:      0.01,
		MaxWeight:      0.95,
		PruneThreshold: 0.01,
		DecayRate:      0.98,
	}
}

func (c *Config) sanitize() {
	if c.FloorStrength < 0 {
		c.FloorStrength = 0
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.05
	}
	if c.MinWeight <= 0 {
		c.MinWeight = 0.01
	}
	if c.MaxWeight < c.MinWeight {
		c.MaxWeight = c.MinWeight
	}
	if c.PruneThreshold < 0 {
		c.PruneThreshold = 0
	}
	if c.DecayRate <= 0 || c.DecayRate > 1 {
		c.DecayRate = 0.98
	}
}

// Coactivation is one neuron's contribution to a firing event.
type Coactivation struct {
	NeuronID string
	Strength float64
}

// Link is a neighbor lookup result.
type Link struct {
	NeuronID string  `json:"neuron_id"`
	Weight   float64 `json:"weight"`
}

type edge struct {
	weight float64
	age    uint32
}

// Graph is the sparse synapse store. Not safe for concurrent use.
type Graph struct {
	cfg Config
	// adj mirrors every edge under both endpoints; the *edge is shared.
	adj   map[string]map[string]*edge
	count int
	dirty bool
}

// NewGraph creates an empty graph.
func NewGraph(cfg Config) *Graph {
	cfg.sanitize()
	return &Graph{
		cfg: cfg,
		adj: make(map[string]map[string]*edge),
	}
}

// RecordCoactivation reinforces every unordered pair of activations whose
// strengths both exceed the floor. Each pair's weight grows by
// learningRate·sᵢ·sⱼ, clamped to [MinWeight, MaxWeight]; missing edges are
// created and reinforced edges have their age reset. Returns the number of
// pairs touched.
func (g *Graph) RecordCoactivation(acts []Coactivation) int {
	firing := make([]Coactivation, 0, len(acts))
	for _, a := range acts {
		if a.NeuronID != "" && a.Strength > g.cfg.FloorStrength {
			firing = append(firing, a)
		}
	}

	touched := 0
	for i := 0; i < len(firing); i++ {
		for j := i + 1; j < len(firing); j++ {
			if firing[i].NeuronID == firing[j].NeuronID {
				continue
			}
			delta := g.cfg.LearningRate * firing[i].Strength * firing[j].Strength
			g.reinforce(firing[i].NeuronID, firing[j].NeuronID, delta)
			touched++
		}
	}
	if touched > 0 {
		g.dirty = true
	}
	return touched
}

func (g *Graph) reinforce(a, b string, delta float64) {
	e, ok := g.adj[a][b]
	if !ok {
		e = &edge{}
		g.link(a, b, e)
		g.count++
	}
	w := e.weight + delta
	if w < g.cfg.MinWeight {
		w = g.cfg.MinWeight
	}
	if w > g.cfg.MaxWeight {
		w = g.cfg.MaxWeight
	}
	e.weight = w
	e.age = 0
}

func (g *Graph) link(a, b string, e *edge) {
	if g.adj[a] == nil {
		g.adj[a] = make(map[string]*edge)
	}
	if g.adj[b] == nil {
		g.adj[b] = make(map[string]*edge)
	}
	g.adj[a][b] = e
	g.adj[b][a] = e
}

// Weight returns the edge weight between two neurons, in either order.
func (g *Graph) Weight(a, b string) (float64, bool) {
	e, ok := g.adj[a][b]
	if !ok {
		return 0, false
	}
	return e.weight, true
}

// Neighbors returns up to limit links from id, strongest first. Ties break
// by neighbor id for stable output. limit <= 0 returns everything.
func (g *Graph) Neighbors(id string, limit int) []Link {
	peers := g.adj[id]
	if len(peers) == 0 {
		return nil
	}
	out := make([]Link, 0, len(peers))
	for nid, e := range peers {
		out = append(out, Link{NeuronID: nid, Weight: e.weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].NeuronID < out[j].NeuronID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// EdgeCount returns the number of unique edges.
func (g *Graph) EdgeCount() int { return g.count }

// NeuronCount returns the number of neurons with at least one edge.
func (g *Graph) NeuronCount() int { return len(g.adj) }

// Age applies one decay cycle: every weight shrinks by DecayRate and every
// edge grows older. Weights may sink below MinWeight; Prune collects them.
func (g *Graph) Age() {
	for a, peers := range g.adj {
		for b, e := range peers {
			if a < b { // visit each shared edge once
				e.weight *= g.cfg.DecayRate
				e.age++
			}
		}
	}
	if g.count > 0 {
		g.dirty = true
	}
}

// Prune removes every edge weaker than PruneThreshold and returns how many
// were cut. Neurons left with no edges drop out of the adjacency index.
func (g *Graph) Prune() int {
	removed := 0
	for a, peers := range g.adj {
		for b, e := range peers {
			if a < b && e.weight < g.cfg.PruneThreshold {
				delete(g.adj[a], b)
				delete(g.adj[b], a)
				g.count--
				removed++
			}
		}
	}
	for id, peers := range g.adj {
		if len(peers) == 0 {
			delete(g.adj, id)
		}
	}
	if removed > 0 {
		g.dirty = true
	}
	return removed
}

// IsDirty reports whether the graph changed since the last MarkClean.
func (g *Graph) IsDirty() bool { return g.dirty }

// MarkClean clears the dirty flag after a successful save.
func (g *Graph) MarkClean() { g.dirty = false }

// EdgeState is one persisted edge, canonically ordered Source < Target.
type EdgeState struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Age    uint32  `json:"age"`
}

// State is the serializable snapshot of the graph.
type State struct {
	Edges []EdgeState `json:"edges"`
}

// Snapshot captures every edge, sorted by (source, target) so identical
// graphs serialize identically.
func (g *Graph) Snapshot() *State {
	out := &State{Edges: make([]EdgeState, 0, g.count)}
	for a, peers := range g.adj {
		for b, e := range peers {
			if a < b {
				out.Edges = append(out.Edges, EdgeState{Source: a, Target: b, Weight: e.weight, Age: e.age})
			}
		}
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].Source != out.Edges[j].Source {
			return out.Edges[i].Source < out.Edges[j].Source
		}
		return out.Edges[i].Target < out.Edges[j].Target
	})
	return out
}

// Restore replaces graph contents from a snapshot. Malformed edges (missing
// endpoints, self-loops) are skipped. Nil snapshots are ignored.
func (g *Graph) Restore(state *State) {
	if state == nil {
		return
	}
	g.adj = make(map[string]map[string]*edge)
	g.count = 0
	for _, es := range state.Edges {
		if es.Source == "" || es.Target == "" || es.Source == es.Target {
			continue
		}
		a, b := es.Source, es.Target
		if a > b {
			a, b = b, a
		}
		if _, exists := g.adj[a][b]; exists {
			continue
		}
		g.link(a, b, &edge{weight: es.Weight, age: es.Age})
		g.count++
	}
	g.dirty = false
}
