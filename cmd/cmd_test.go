package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fingraph/internal/reporting"
)

const testPlanYAML = `
name: cli-plan
periods: ["2023", "2024"]
nodes:
  - name: revenue
    kind: data
    values: {"2023": 100, "2024": 110}
  - name: cogs
    kind: data
    values: {"2023": 60, "2024": 70}
  - name: gross_profit
    kind: formula
    formula: revenue - cogs
adjustments:
  - node: gross_profit
    period: "2023"
    value: 10
    kind: ADDITIVE
    reason: audit true-up
    tags: [audit]
`

// writePlan drops a definition file into a temp dir and returns its path.
func writePlan(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// executeCommand runs the CLI end to end with captured output streams.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Run("should accept a clean definition", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "ok: 3 nodes, 2 periods")
	})

	t.Run("should report structural problems", func(t *testing.T) {
		path := writePlan(t, `
name: bad-horizon
periods: ["2023", "2024"]
nodes:
  - name: revenue
    kind: data
    values: {"2023": 100}
  - name: revenue_fc
    kind: forecast
    forecast:
      base: revenue
      horizon: "2099"
      model: fixed
      rate: 0.1
`)
		_, stderr, err := executeCommand(t, "validate", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 problem(s)")
		assert.Contains(t, stderr, "invalid:")
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, _, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "ghost.yaml"))
		require.Error(t, err)
	})
}

func TestCalcCommand(t *testing.T) {
	t.Run("should print CSV for the requested cells", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "calc", path, "gross_profit", "--format", "csv")
		require.NoError(t, err)

		records, err := csv.NewReader(bytes.NewBufferString(stdout)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"node", "2023", "2024"}, records[0])
		assert.Equal(t, []string{"gross_profit", "40", "40"}, records[1])
	})

	t.Run("should print JSON by default", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "calc", path, "revenue", "--periods", "2023")
		require.NoError(t, err)

		var report reporting.Report
		require.NoError(t, jsoniter.UnmarshalFromString(stdout, &report))
		require.Len(t, report.Rows, 1)
		assert.Equal(t, "revenue", report.Rows[0].Node)
		require.NotNil(t, report.Rows[0].Cells["2023"].Value)
		assert.InDelta(t, 100.0, *report.Rows[0].Cells["2023"].Value, 1e-9)
	})

	t.Run("should fold adjustments with --adjusted", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "calc", path, "gross_profit", "--periods", "2023", "--adjusted", "--format", "csv")
		require.NoError(t, err)

		records, err := csv.NewReader(bytes.NewBufferString(stdout)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"gross_profit", "50"}, records[1])
	})

	t.Run("should write to a file with --output", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		outPath := filepath.Join(t.TempDir(), "report.csv")
		_, _, err := executeCommand(t, "calc", path, "revenue", "--format", "csv", "--output", outPath)
		require.NoError(t, err)

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "revenue")
	})

	t.Run("should reject unknown formats", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		_, _, err := executeCommand(t, "calc", path, "--format", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xml")
	})
}

func TestAuditCommand(t *testing.T) {
	t.Run("should list the adjustment trail", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "audit", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "gross_profit")
		assert.Contains(t, stdout, "ADDITIVE")
		assert.Contains(t, stdout, "audit true-up")
	})

	t.Run("should filter by scenario", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		stdout, _, err := executeCommand(t, "audit", path, "--scenario", "upside")
		require.NoError(t, err)
		assert.Contains(t, stdout, "no adjustments recorded")
	})
}

func TestPushCommand(t *testing.T) {
	t.Run("should require a database URL", func(t *testing.T) {
		path := writePlan(t, testPlanYAML)
		_, _, err := executeCommand(t, "push", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FINGRAPH_DATABASE_URL")
	})
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, Version)
}
