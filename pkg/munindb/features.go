package munindb

import (
	"sort"

	"github.com/orneryd/munindb/pkg/encode"
)

// featureRegistry maps named features onto stable dense indexes.
//
// Indexes 0..encode.Dim-1 belong to the encoder; named features occupy the
// slots above them in first-seen order. The mapping is persisted so weights
// trained against a feature name survive restarts with the same index.
type featureRegistry struct {
	ids   map[string]int
	names []string
	dirty bool
}

func newFeatureRegistry() *featureRegistry {
	return &featureRegistry{ids: make(map[string]int)}
}

// id returns the registry-relative index for a feature name, assigning the
// next free slot on first sight.
func (r *featureRegistry) id(name string) int {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := len(r.names)
	r.ids[name] = id
	r.names = append(r.names, name)
	r.dirty = true
	return id
}

// lookup returns the index without assigning.
func (r *featureRegistry) lookup(name string) (int, bool) {
	id, ok := r.ids[name]
	return id, ok
}

func (r *featureRegistry) count() int { return len(r.names) }

func (r *featureRegistry) snapshot() map[string]int {
	out := make(map[string]int, len(r.ids))
	for name, id := range r.ids {
		out[name] = id
	}
	return out
}

func (r *featureRegistry) restore(ids map[string]int) {
	r.ids = make(map[string]int, len(ids))
	r.names = make([]string, len(ids))
	// Rebuild name order from the persisted indexes; holes collapse.
	type pair struct {
		name string
		id   int
	}
	pairs := make([]pair, 0, len(ids))
	for name, id := range ids {
		pairs = append(pairs, pair{name, id})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	r.names = r.names[:0]
	for _, p := range pairs {
		r.ids[p.name] = len(r.names)
		r.names = append(r.names, p.name)
	}
	r.dirty = false
}

// trainingVector extends an encoded vector with named feature values. The
// encoder owns slots [0, encode.Dim); each named feature lands at
// encode.Dim plus its registry index. Values are clamped to [-1, 1].
func (db *DB) trainingVector(encoded []float64, features map[string]float64) []float64 {
	// Register new names in sorted order so index assignment does not
	// depend on map iteration.
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		db.features.id(name)
	}
	v := make([]float64, encode.Dim+db.features.count())
	copy(v, encoded)
	for name, val := range features {
		id, _ := db.features.lookup(name)
		if val > 1 {
			val = 1
		} else if val < -1 {
			val = -1
		}
		v[encode.Dim+id] = val
	}
	return v
}

// activationVector is the read-path twin of trainingVector: unknown feature
// names are ignored instead of registered, so processing input never grows
// persistent state.
func (db *DB) activationVector(encoded []float64, features map[string]float64) []float64 {
	v := make([]float64, encode.Dim+db.features.count())
	copy(v, encoded)
	for name, val := range features {
		id, ok := db.features.lookup(name)
		if !ok {
			continue
		}
		if val > 1 {
			val = 1
		} else if val < -1 {
			val = -1
		}
		v[encode.Dim+id] = val
	}
	return v
}
