package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fingraph/internal/graph"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"sum", "difference", "product", "mean", "weighted_mean", "min", "max"} {
		_, ok := r.Strategy(name)
		assert.True(t, ok, "built-in strategy %q missing", name)
	}
	_, ok := r.Strategy("median")
	assert.False(t, ok)
	assert.Len(t, r.Names(), 7)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	t.Run("should accept new strategies", func(t *testing.T) {
		t.Parallel()
		err := r.Register("first", func(inputs []float64) (float64, error) { return inputs[0], nil })
		require.NoError(t, err)
	})

	t.Run("should reject duplicates", func(t *testing.T) {
		t.Parallel()
		require.Error(t, r.Register("sum", Sum))
	})

	t.Run("should reject empty names and nil functions", func(t *testing.T) {
		t.Parallel()
		require.Error(t, r.Register("", Sum))
		require.Error(t, r.Register("broken", nil))
	})
}

func TestBuiltinStrategies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fn      graph.StrategyFunc
		inputs  []float64
		want    float64
		wantErr bool
	}{
		{name: "sum", fn: Sum, inputs: []float64{1, 2, 3}, want: 6},
		{name: "sum empty", fn: Sum, inputs: nil, want: 0},
		{name: "difference", fn: Difference, inputs: []float64{10, 3, 2}, want: 5},
		{name: "difference empty", fn: Difference, inputs: nil, wantErr: true},
		{name: "product", fn: Product, inputs: []float64{2, 3, 4}, want: 24},
		{name: "mean", fn: Mean, inputs: []float64{2, 4}, want: 3},
		{name: "mean empty", fn: Mean, inputs: nil, wantErr: true},
		{name: "weighted mean", fn: WeightedMean, inputs: []float64{10, 1, 20, 3}, want: 17.5},
		{name: "weighted mean odd inputs", fn: WeightedMean, inputs: []float64{10, 1, 20}, wantErr: true},
		{name: "weighted mean zero weights", fn: WeightedMean, inputs: []float64{10, 0}, wantErr: true},
		{name: "min", fn: Min, inputs: []float64{3, -1, 2}, want: -1},
		{name: "max", fn: Max, inputs: []float64{3, -1, 2}, want: 3},
		{name: "max empty", fn: Max, inputs: nil, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.fn(tc.inputs)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
