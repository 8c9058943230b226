// Package reporting renders evaluated node/period matrices. It holds no
// evaluation logic: values come out of the engine, errors are reported per
// cell rather than aborting the whole report.
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/quantfold/fingraph/internal/graph"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cell is one evaluated (node, period) result. Exactly one of Value or
// Error is set.
type Cell struct {
	Value *float64 `json:"value,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Row is one node's values across the report periods.
type Row struct {
	Node  string          `json:"node"`
	Cells map[string]Cell `json:"cells"`
}

// Report is a node x period matrix of evaluated values.
type Report struct {
	Periods  []string `json:"periods"`
	Rows     []Row    `json:"rows"`
	Adjusted bool     `json:"adjusted"`
}

// Options controls what a report evaluates.
type Options struct {
	// Adjusted folds discretionary adjustments into every cell.
	Adjusted bool
	// Filter selects which adjustments apply; nil means the default
	// scenario. Only consulted when Adjusted is set.
	Filter *graph.AdjustmentFilter
}

// Build evaluates the given nodes over the given periods. Empty nodes means
// every node in topological order; empty periods means every graph period.
func Build(g *graph.Graph, nodes []string, periods []graph.Period, opts Options) (*Report, error) {
	if len(nodes) == 0 {
		order, err := g.TopologicalSort()
		if err != nil {
			return nil, fmt.Errorf("ordering report rows: %w", err)
		}
		nodes = order
	}
	if len(periods) == 0 {
		periods = g.Periods()
	}

	report := &Report{
		Periods:  make([]string, len(periods)),
		Rows:     make([]Row, 0, len(nodes)),
		Adjusted: opts.Adjusted,
	}
	for i, p := range periods {
		report.Periods[i] = string(p)
	}

	for _, node := range nodes {
		row := Row{Node: node, Cells: make(map[string]Cell, len(periods))}
		for _, p := range periods {
			var v float64
			var err error
			if opts.Adjusted {
				v, err = g.AdjustedValue(node, p, opts.Filter)
			} else {
				v, err = g.Calculate(node, p)
			}
			if err != nil {
				row.Cells[string(p)] = Cell{Error: err.Error()}
				continue
			}
			value := v
			row.Cells[string(p)] = Cell{Value: &value}
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV renders the report as a node x period table. Error cells are
// left empty.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"node"}, r.Periods...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Node)
		for _, p := range r.Periods {
			cell := row.Cells[p]
			if cell.Value != nil {
				record = append(record, strconv.FormatFloat(*cell.Value, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
