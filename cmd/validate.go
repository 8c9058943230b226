// File: cmd/validate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newValidateCmd creates the `validate` command: structural checks without
// evaluating anything.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition>",
		Short: "Check a graph definition for structural problems",
		Long: `Build the graph from a definition file and run structural validation:
unknown inputs, unregistered strategies, misconfigured forecasts and
dependency cycles. Nothing is evaluated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			if errs := g.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), "invalid:", e)
				}
				return fmt.Errorf("definition has %d problem(s)", len(errs))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d periods\n", len(g.Nodes()), len(g.Periods()))
			return nil
		},
	}
}
