// File: cmd/push.go
package cmd

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfold/fingraph/internal/loader"
	"github.com/quantfold/fingraph/internal/observability"
	"github.com/quantfold/fingraph/internal/store"
)

// newPushCmd creates the `push` command: persist a definition and its
// adjustment trail to the configured PostgreSQL store.
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <definition>",
		Short: "Save a graph definition to the definition store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			dsn := appConfig.Database().URL
			if dsn == "" {
				return fmt.Errorf("no database configured: set database.url or FINGRAPH_DATABASE_URL")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading definition %s: %w", args[0], err)
			}
			def, err := loader.ParseDefinition(data, args[0])
			if err != nil {
				return err
			}
			if def.Name == "" {
				return fmt.Errorf("definition %s has no name; the store keys definitions by name", args[0])
			}

			// Build the graph first so broken definitions never reach the store.
			l, err := newLoader()
			if err != nil {
				return err
			}
			g, err := l.Build(def)
			if err != nil {
				return fmt.Errorf("definition %s does not build: %w", args[0], err)
			}

			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			st, err := store.New(ctx, pool, logger)
			if err != nil {
				return err
			}
			if err := st.SaveDefinition(ctx, def); err != nil {
				return err
			}
			if err := st.AppendAdjustments(ctx, def.Name, loader.ExportAdjustments(g)); err != nil {
				return err
			}

			logger.Info("definition pushed", zap.String("name", def.Name))
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %q (%d nodes, %d adjustments)\n",
				def.Name, len(def.Nodes), len(def.Adjustments))
			return nil
		},
	}
}
