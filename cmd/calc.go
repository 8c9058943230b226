// File: cmd/calc.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/fingraph/internal/graph"
	"github.com/quantfold/fingraph/internal/observability"
	"github.com/quantfold/fingraph/internal/reporting"
)

// newCalcCmd creates the `calc` command: evaluate a graph definition and
// render the node/period matrix.
func newCalcCmd() *cobra.Command {
	var (
		periods  []string
		adjusted bool
		scenario string
		tags     []string
		format   string
		output   string
	)

	calcCmd := &cobra.Command{
		Use:   "calc <definition> [node...]",
		Short: "Evaluate a graph definition and print the results",
		Long: `Evaluate nodes of a graph definition across reporting periods.
With no node arguments every node is evaluated in dependency order.
Adjusted values fold recorded discretionary adjustments into the output.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			nodes := args[1:]

			reportPeriods := make([]graph.Period, len(periods))
			for i, p := range periods {
				reportPeriods[i] = graph.Period(p)
			}

			opts := reporting.Options{Adjusted: adjusted}
			if adjusted && (scenario != "" || len(tags) > 0) {
				filter := &graph.AdjustmentFilter{Tags: tags}
				if scenario != "" {
					filter.Scenarios = []string{scenario}
				}
				opts.Filter = filter
			}

			warmCache(cmd.Context(), g, nodes, reportPeriods)

			report, err := reporting.Build(g, nodes, reportPeriods, opts)
			if err != nil {
				return err
			}
			logger.Debug("report built",
				zap.Int("rows", len(report.Rows)),
				zap.Int("periods", len(report.Periods)),
				zap.Bool("adjusted", adjusted),
			)

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return writeReport(report, format, out)
		},
	}

	calcCmd.Flags().StringSliceVar(&periods, "periods", nil, "periods to evaluate (default: all graph periods)")
	calcCmd.Flags().BoolVar(&adjusted, "adjusted", false, "fold discretionary adjustments into the results")
	calcCmd.Flags().StringVar(&scenario, "scenario", "", "adjustment scenario to apply (implies --adjusted filtering)")
	calcCmd.Flags().StringSliceVar(&tags, "tags", nil, "only apply adjustments carrying one of these tags")
	calcCmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	calcCmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	return calcCmd
}

// warmCache evaluates the requested cells in parallel before the report is
// built serially. Evaluation populates the memoization cache, so the report
// pass is pure cache hits; per-cell errors are surfaced by the report, not
// here.
func warmCache(ctx context.Context, g *graph.Graph, nodes []string, periods []graph.Period) {
	if len(nodes) == 0 {
		order, err := g.TopologicalSort()
		if err != nil {
			return
		}
		nodes = order
	}
	if len(periods) == 0 {
		periods = g.Periods()
	}

	var eg errgroup.Group
	eg.SetLimit(appConfig.Engine().WorkerConcurrency)
	for _, node := range nodes {
		for _, p := range periods {
			select {
			case <-ctx.Done():
				return
			default:
			}
			node, p := node, p
			eg.Go(func() error {
				g.Calculate(node, p)
				return nil
			})
		}
	}
	eg.Wait()
}

func writeReport(r *reporting.Report, format string, w io.Writer) error {
	switch format {
	case "json":
		return r.WriteJSON(w)
	case "csv":
		return r.WriteCSV(w)
	default:
		return fmt.Errorf("unknown output format %q (want json or csv)", format)
	}
}
