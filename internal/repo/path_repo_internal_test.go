package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReachable(t *testing.T) {
	// a -> b -> c
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
	}
	require.True(t, reachable(edges, "a", "c"))
	require.True(t, reachable(edges, "a", "b"))
	require.False(t, reachable(edges, "c", "a"))
	require.True(t, reachable(edges, "x", "x"))
	require.False(t, reachable(edges, "x", "y"))
}

func TestReachableTerminatesOnExistingCycle(t *testing.T) {
	// Defensive: even if the accepted set somehow contained a cycle the
	// walk must stop.
	edges := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	require.False(t, reachable(edges, "a", "z"))
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	require.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	// Mismatched dimensions and zero vectors score zero.
	require.Equal(t, float32(0), CosineSimilarity([]float32{1, 0}, []float32{1}))
	require.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
