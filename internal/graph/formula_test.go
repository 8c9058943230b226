package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-package MetricCatalog for formula tests.
type fakeCatalog map[string]MetricSpec

func (c fakeCatalog) Metric(name string) (MetricSpec, bool) {
	spec, ok := c[name]
	return spec, ok
}

func TestFormulaNode(t *testing.T) {
	t.Parallel()

	t.Run("should evaluate arithmetic with precedence and parentheses", func(t *testing.T) {
		t.Parallel()
		g := New()
		require.NoError(t, g.AddPeriods("2023"))
		require.NoError(t, g.AddDataNode("base", map[Period]float64{"2023": 100}))
		require.NoError(t, g.AddDataNode("addon", map[Period]float64{"2023": 10}))
		require.NoError(t, g.AddCalculation("scaled", "(base + addon) * 1.1"))

		v, err := g.Calculate("scaled", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 121.0, v, 1e-9)
	})

	t.Run("should reject malformed formulas at construction", func(t *testing.T) {
		t.Parallel()
		_, err := NewFormulaNode("broken", "revenue - ")
		require.Error(t, err)
	})

	t.Run("should report division by zero as a calculation error", func(t *testing.T) {
		t.Parallel()
		g := New()
		require.NoError(t, g.AddPeriods("2023"))
		require.NoError(t, g.AddDataNode("num", map[Period]float64{"2023": 1}))
		require.NoError(t, g.AddDataNode("den", map[Period]float64{"2023": 0}))
		require.NoError(t, g.AddCalculation("ratio", "num / den"))

		_, err := g.Calculate("ratio", "2023")
		var calc *CalculationError
		require.ErrorAs(t, err, &calc)
		assert.Equal(t, "ratio", calc.Node)
		assert.Equal(t, Period("2023"), calc.Period)
	})

	t.Run("should deduplicate repeated variables in dependencies", func(t *testing.T) {
		t.Parallel()
		n, err := NewFormulaNode("squared", "x * x")
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, n.Dependencies())
	})

	t.Run("should resolve variables through bindings", func(t *testing.T) {
		t.Parallel()
		g := New()
		require.NoError(t, g.AddPeriods("2023"))
		require.NoError(t, g.AddDataNode("net_sales", map[Period]float64{"2023": 100}))
		require.NoError(t, g.AddDataNode("cost_of_goods", map[Period]float64{"2023": 60}))

		n, err := NewBoundFormulaNode("gp", "revenue - cogs", map[string]string{
			"revenue": "net_sales",
			"cogs":    "cost_of_goods",
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"net_sales", "cost_of_goods"}, n.Dependencies())
		require.NoError(t, g.AddNode(n))

		v, err := g.Calculate("gp", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 40.0, v, 1e-9)
	})

	t.Run("should support conditional expressions", func(t *testing.T) {
		t.Parallel()
		g := New()
		require.NoError(t, g.AddPeriods("2023"))
		require.NoError(t, g.AddDataNode("x", map[Period]float64{"2023": -5}))
		require.NoError(t, g.AddCalculation("abs_x", "x < 0 ? -x : x"))

		v, err := g.Calculate("abs_x", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 5.0, v, 1e-9)
	})
}

func TestMetricNode(t *testing.T) {
	t.Parallel()

	catalog := fakeCatalog{
		"gross_margin": {
			Name:    "gross_margin",
			Formula: "(revenue - cogs) / revenue",
			Inputs:  []string{"revenue", "cogs"},
		},
	}

	t.Run("should evaluate the catalog formula over mapped nodes", func(t *testing.T) {
		t.Parallel()
		g := New(WithCatalog(catalog))
		require.NoError(t, g.AddPeriods("2023"))
		require.NoError(t, g.AddDataNode("sales", map[Period]float64{"2023": 200}))
		require.NoError(t, g.AddDataNode("direct_costs", map[Period]float64{"2023": 150}))
		require.NoError(t, g.AddMetric("gm", "gross_margin", map[string]string{
			"revenue": "sales",
			"cogs":    "direct_costs",
		}))

		v, err := g.Calculate("gm", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 0.25, v, 1e-9)
	})

	t.Run("should require every metric input to be mapped", func(t *testing.T) {
		t.Parallel()
		_, err := NewMetricNode("gm", "gross_margin", map[string]string{"revenue": "sales"}, catalog)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cogs")
	})

	t.Run("should reject unknown metrics", func(t *testing.T) {
		t.Parallel()
		_, err := NewMetricNode("x", "quick_ratio", nil, catalog)
		require.Error(t, err)
	})

	t.Run("should reject a missing catalog", func(t *testing.T) {
		t.Parallel()
		_, err := NewMetricNode("x", "gross_margin", nil, nil)
		require.Error(t, err)
	})
}
