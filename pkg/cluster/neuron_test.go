package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateEmptyNeuron(t *testing.T) {
	n := NewNeuron("n-1")
	out := n.Activate([]float64{1, 0, 0})

	assert.Equal(t, 0.0, n.CurrentPotential, "no weights, no drive")
	assert.InDelta(t, 0.5, out, 1e-12, "sigmoid of zero potential")
}

func TestActivateSparseDotProduct(t *testing.T) {
	n := NewNeuron("n-1")
	n.Weights[0] = 1.0
	n.Weights[2] = -0.5

	out := n.Activate([]float64{1, 1, 1})
	assert.InDelta(t, 0.5, n.CurrentPotential, 1e-12)
	assert.Greater(t, out, 0.5)

	// Indexes beyond the input are ignored rather than panicking.
	n.Weights[99] = 1.0
	n.Activate([]float64{1, 1, 1})
	assert.InDelta(t, 0.5, n.CurrentPotential, 1e-12)
}

func TestActivateUsesRestingPotential(t *testing.T) {
	n := NewNeuron("n-1")
	n.RestingPotential = -2

	out := n.Activate([]float64{1, 1})
	assert.Equal(t, -2.0, n.CurrentPotential)
	assert.Less(t, out, 0.2, "a suppressed neuron outputs below its sigmoid midpoint")
}

func TestTrainMovesOutputTowardTarget(t *testing.T) {
	n := NewNeuron("n-1")
	features := []float64{0.6, 0.8}

	err := n.Train(features, 0.8, 0.5)
	assert.InDelta(t, 0.3, err, 1e-12, "first error is target minus the untrained 0.5")

	for i := 0; i < 200; i++ {
		n.Train(features, 0.8, 0.5)
	}
	assert.InDelta(t, 0.8, n.Activate(features), 0.05, "training converges on the target output")
}

func TestTrainClampsWeights(t *testing.T) {
	n := NewNeuron("n-1")
	features := []float64{1, -1}

	for i := 0; i < 100; i++ {
		n.Train(features, 1.0, 10)
	}
	for idx, w := range n.Weights {
		assert.LessOrEqual(t, w, 1.0, "weight %d above clamp", idx)
		assert.GreaterOrEqual(t, w, -1.0, "weight %d below clamp", idx)
	}
}

func TestTrainSkipsZeroFeatures(t *testing.T) {
	n := NewNeuron("n-1")
	n.Train([]float64{1, 0, 0.5}, 0.8, 0.1)

	_, hasZero := n.Weights[1]
	assert.False(t, hasZero, "zero features must not materialize weights")
	assert.Contains(t, n.Weights, 0)
	assert.Contains(t, n.Weights, 2)
}

func TestTrainNilWeightMap(t *testing.T) {
	n := &Neuron{ID: "n-raw"}
	require.NotPanics(t, func() {
		n.Train([]float64{1}, 0.8, 0.1)
	})
	assert.NotEmpty(t, n.Weights)
}

func TestTagConcept(t *testing.T) {
	n := NewNeuron("n-1")

	assert.True(t, n.TagConcept("apple"))
	assert.False(t, n.TagConcept("apple"), "duplicate tags are rejected")
	assert.True(t, n.TagConcept("fruit"))

	assert.True(t, n.HasConcept("apple"))
	assert.True(t, n.HasConcept("fruit"))
	assert.False(t, n.HasConcept("banana"))
	assert.Len(t, n.Concepts, 2)
}

func TestSigmoidBounds(t *testing.T) {
	assert.InDelta(t, 1.0, sigmoid(50), 1e-9)
	assert.InDelta(t, 0.0, sigmoid(-50), 1e-9)
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.Greater(t, sigmoid(1), sigmoid(-1))
}

func BenchmarkActivate(b *testing.B) {
	n := NewNeuron("n-1")
	features := make([]float64, 128)
	for i := range features {
		features[i] = 0.1
		n.Weights[i] = 0.05
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.Activate(features)
	}
}

func BenchmarkTrain(b *testing.B) {
	n := NewNeuron("n-1")
	features := make([]float64, 128)
	for i := range features {
		features[i] = 0.1
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.Train(features, 0.8, 0.1)
	}
}
