// File: cmd/audit.go
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantfold/fingraph/internal/loader"
)

// newAuditCmd creates the `audit` command: list the adjustment trail
// recorded in a definition.
func newAuditCmd() *cobra.Command {
	var scenario string

	auditCmd := &cobra.Command{
		Use:   "audit <definition>",
		Short: "List the discretionary adjustments recorded in a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}

			all := loader.ExportAdjustments(g)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNODE\tPERIOD\tKIND\tVALUE\tSCENARIO\tPRIORITY\tTAGS\tREASON")
			count := 0
			for _, a := range all {
				if scenario != "" && a.Scenario != scenario {
					continue
				}
				tags := append([]string(nil), a.Tags...)
				sort.Strings(tags)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\t%d\t%s\t%s\n",
					a.ID, a.Node, a.Period, a.Kind, a.Value,
					a.Scenario, a.Priority, strings.Join(tags, ","), a.Reason)
				count++
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no adjustments recorded")
			}
			return nil
		},
	}

	auditCmd.Flags().StringVar(&scenario, "scenario", "", "only list adjustments in this scenario")
	return auditCmd
}
