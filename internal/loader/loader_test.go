package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fingraph/api/schemas"
	"github.com/quantfold/fingraph/internal/graph"
	"github.com/quantfold/fingraph/internal/metrics"
	"github.com/quantfold/fingraph/internal/strategies"
)

// Node definitions are deliberately out of dependency order to exercise the
// multi-pass build.
const testDefinitionYAML = `
name: acme-plan
periods: ["2023", "2024", "2025"]
nodes:
  - name: gross_profit
    kind: formula
    formula: revenue - cogs
  - name: total_costs
    kind: strategy
    strategy: sum
    inputs: [cogs, opex]
  - name: gm
    kind: metric
    metric: gross_margin
    metric_inputs:
      revenue: revenue
      cogs: cogs
  - name: revenue
    kind: data
    values: {"2023": 100, "2024": 110}
  - name: cogs
    kind: data
    values: {"2023": 60, "2024": 70}
  - name: opex
    kind: data
    values: {"2023": 20, "2024": 25}
  - name: revenue_fc
    kind: forecast
    forecast:
      base: revenue
      horizon: "2024"
      model: fixed
      rate: 0.1
adjustments:
  - node: gross_profit
    period: "2023"
    value: 5
    kind: ADDITIVE
    reason: audit true-up
    tags: [audit]
`

const testCatalogYAML = `
metrics:
  - name: gross_margin
    formula: (revenue - cogs) / revenue
    inputs: [revenue, cogs]
`

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	catalog, err := metrics.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)
	return New(
		WithCatalog(catalog),
		WithStrategies(strategies.NewRegistry()),
	)
}

func TestParseDefinition(t *testing.T) {
	t.Parallel()

	t.Run("should parse YAML", func(t *testing.T) {
		t.Parallel()
		def, err := ParseDefinition([]byte(testDefinitionYAML), "plan.yaml")
		require.NoError(t, err)
		assert.Equal(t, "acme-plan", def.Name)
		assert.Len(t, def.Nodes, 7)
		assert.Len(t, def.Adjustments, 1)
	})

	t.Run("should parse JSON by extension", func(t *testing.T) {
		t.Parallel()
		def, err := ParseDefinition([]byte(`{"name":"j","periods":["2023"],"nodes":[]}`), "plan.json")
		require.NoError(t, err)
		assert.Equal(t, "j", def.Name)
	})

	t.Run("should report parse failures with the path", func(t *testing.T) {
		t.Parallel()
		_, err := ParseDefinition([]byte("{"), "plan.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plan.json")
	})
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("should build out-of-order definitions", func(t *testing.T) {
		t.Parallel()
		def, err := ParseDefinition([]byte(testDefinitionYAML), "plan.yaml")
		require.NoError(t, err)

		g, err := newTestLoader(t).Build(def)
		require.NoError(t, err)

		v, err := g.Calculate("gross_profit", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 40.0, v, 1e-9)

		v, err = g.Calculate("total_costs", "2024")
		require.NoError(t, err)
		assert.InDelta(t, 95.0, v, 1e-9)

		v, err = g.Calculate("gm", "2023")
		require.NoError(t, err)
		assert.InDelta(t, 0.4, v, 1e-9)

		v, err = g.Calculate("revenue_fc", "2025")
		require.NoError(t, err)
		assert.InDelta(t, 121.0, v, 1e-9)
	})

	t.Run("should replay adjustments", func(t *testing.T) {
		t.Parallel()
		def, err := ParseDefinition([]byte(testDefinitionYAML), "plan.yaml")
		require.NoError(t, err)
		g, err := newTestLoader(t).Build(def)
		require.NoError(t, err)

		v, err := g.AdjustedValue("gross_profit", "2023", nil)
		require.NoError(t, err)
		assert.InDelta(t, 45.0, v, 1e-9)
		assert.True(t, g.WasAdjusted("gross_profit", "2023", graph.TagFilter("audit")))
	})

	t.Run("should surface the blocking node on unknown inputs", func(t *testing.T) {
		t.Parallel()
		def := schemas.GraphDefinition{
			Name:    "broken",
			Periods: []string{"2023"},
			Nodes: []schemas.NodeDefinition{
				{Name: "margin", Kind: schemas.KindFormula, Formula: "profit / sales"},
			},
		}
		_, err := newTestLoader(t).Build(def)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "margin")
	})

	t.Run("should reject definition-level cycles", func(t *testing.T) {
		t.Parallel()
		def := schemas.GraphDefinition{
			Name:    "cyclic",
			Periods: []string{"2023"},
			Nodes: []schemas.NodeDefinition{
				{Name: "a", Kind: schemas.KindFormula, Formula: "b + 1"},
				{Name: "b", Kind: schemas.KindFormula, Formula: "a + 1"},
			},
		}
		_, err := newTestLoader(t).Build(def)
		require.Error(t, err)
	})

	t.Run("should reject unknown node kinds", func(t *testing.T) {
		t.Parallel()
		def := schemas.GraphDefinition{
			Name:    "bad-kind",
			Periods: []string{"2023"},
			Nodes:   []schemas.NodeDefinition{{Name: "x", Kind: "lookup"}},
		}
		_, err := newTestLoader(t).Build(def)
		require.Error(t, err)
	})

	t.Run("statistical forecasts require a pinned seed", func(t *testing.T) {
		t.Parallel()
		def := schemas.GraphDefinition{
			Name:    "stat",
			Periods: []string{"2023", "2024"},
			Nodes: []schemas.NodeDefinition{
				{Name: "revenue", Kind: schemas.KindData, Values: map[string]float64{"2023": 100}},
				{Name: "fc", Kind: schemas.KindForecast, Forecast: &schemas.ForecastDefinition{
					Base: "revenue", Horizon: "2023", Model: schemas.ModelStatistical, Mean: 0.05, StdDev: 0.01,
				}},
			},
		}
		_, err := newTestLoader(t).Build(def)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rand_seed")

		seed := int64(42)
		def.Nodes[1].Forecast.RandSeed = &seed
		g, err := newTestLoader(t).Build(def)
		require.NoError(t, err)
		_, err = g.Calculate("fc", "2024")
		require.NoError(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDefinitionYAML), 0o644))

	g, err := newTestLoader(t).LoadFile(path)
	require.NoError(t, err)
	v, err := g.Calculate("gross_profit", "2024")
	require.NoError(t, err)
	assert.InDelta(t, 40.0, v, 1e-9)

	_, err = newTestLoader(t).LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExportAdjustments(t *testing.T) {
	t.Parallel()

	def, err := ParseDefinition([]byte(testDefinitionYAML), "plan.yaml")
	require.NoError(t, err)
	g, err := newTestLoader(t).Build(def)
	require.NoError(t, err)

	_, err = g.AddAdjustment("revenue", "2024", 1.2, graph.Multiplicative, "fx", graph.WithScenario("upside"))
	require.NoError(t, err)

	out := ExportAdjustments(g)
	require.Len(t, out, 2)
	assert.Equal(t, "gross_profit", out[0].Node)
	assert.Equal(t, "upside", out[1].Scenario)
	assert.NotEmpty(t, out[0].ID)
}
