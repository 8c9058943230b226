package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogYAML = `
metrics:
  - name: gross_margin
    description: Gross profit as a share of revenue.
    formula: (revenue - cogs) / revenue
    inputs: [revenue, cogs]
  - name: current_ratio
    formula: current_assets / current_liabilities
    inputs: [current_assets, current_liabilities]
`

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("should index metrics by name", func(t *testing.T) {
		t.Parallel()
		c, err := Parse([]byte(testCatalogYAML))
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())

		spec, ok := c.Metric("gross_margin")
		require.True(t, ok)
		assert.Equal(t, "(revenue - cogs) / revenue", spec.Formula)
		assert.Equal(t, []string{"revenue", "cogs"}, spec.Inputs)

		_, ok = c.Metric("quick_ratio")
		assert.False(t, ok)
	})

	t.Run("should reject malformed YAML", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte("metrics: ["))
		require.Error(t, err)
	})

	t.Run("should reject duplicate metric names", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte(`
metrics:
  - {name: m, formula: a + b, inputs: [a, b]}
  - {name: m, formula: a - b, inputs: [a, b]}
`))
		require.Error(t, err)
	})

	t.Run("should reject empty names and formulas", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte("metrics:\n  - {formula: a + b}\n"))
		require.Error(t, err)
		_, err = Parse([]byte("metrics:\n  - {name: m}\n"))
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
