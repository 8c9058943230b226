package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSort(t *testing.T) {
	t.Parallel()

	t.Run("should order dependencies before dependents", func(t *testing.T) {
		t.Parallel()
		deps := map[string][]string{
			"a": nil,
			"b": {"a"},
			"c": {"a", "b"},
			"d": nil,
		}
		order, err := topoSort(deps)
		require.NoError(t, err)
		require.Len(t, order, 4)

		pos := make(map[string]int, len(order))
		for i, name := range order {
			pos[name] = i
		}
		assert.Less(t, pos["a"], pos["b"])
		assert.Less(t, pos["b"], pos["c"])
	})

	t.Run("should be deterministic", func(t *testing.T) {
		t.Parallel()
		deps := map[string][]string{"x": nil, "y": nil, "z": nil}
		first, err := topoSort(deps)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y", "z"}, first, "independent nodes come out name-sorted")
	})

	t.Run("should surface the cycle path", func(t *testing.T) {
		t.Parallel()
		deps := map[string][]string{
			"a": {"b"},
			"b": {"a"},
		}
		_, err := topoSort(deps)
		var cyc *CircularDependencyError
		require.ErrorAs(t, err, &cyc)
		require.NotEmpty(t, cyc.Cycle)
		assert.Equal(t, cyc.Cycle[0], cyc.Cycle[len(cyc.Cycle)-1], "cycle path closes on its start node")
	})
}

func TestFindCycles(t *testing.T) {
	t.Parallel()

	t.Run("should find nothing in a DAG", func(t *testing.T) {
		t.Parallel()
		deps := map[string][]string{"a": nil, "b": {"a"}}
		assert.Empty(t, findCycles(deps))
	})

	t.Run("should find a self loop", func(t *testing.T) {
		t.Parallel()
		cycles := findCycles(map[string][]string{"a": {"a"}})
		require.Len(t, cycles, 1)
		assert.Equal(t, []string{"a", "a"}, cycles[0])
	})

	t.Run("should find a longer loop", func(t *testing.T) {
		t.Parallel()
		cycles := findCycles(map[string][]string{
			"a": {"b"},
			"b": {"c"},
			"c": {"a"},
		})
		require.Len(t, cycles, 1)
		assert.Len(t, cycles[0], 4)
	})

	t.Run("should ignore edges to unknown names", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, findCycles(map[string][]string{"a": {"ghost"}}))
	})
}

func TestCalcCache(t *testing.T) {
	t.Parallel()

	c := newCalcCache()
	_, ok := c.get("a", "2023")
	assert.False(t, ok)

	c.put("a", "2023", 1.5)
	c.put("a", "2024", 2.5)
	c.put("b", "2023", 3.5)

	v, ok := c.get("a", "2023")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, 3, c.len())

	snap := c.snapshot()
	c.clearNode("a")
	assert.Equal(t, 1, c.len())
	assert.Len(t, snap["a"], 2, "snapshot is a deep copy, untouched by later mutation")

	c.clearAll()
	assert.Zero(t, c.len())
}
