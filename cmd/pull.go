// File: cmd/pull.go
package cmd

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quantfold/fingraph/internal/observability"
	"github.com/quantfold/fingraph/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newPullCmd creates the `pull` command: fetch a stored definition and write
// it back out as a definition file.
func newPullCmd() *cobra.Command {
	var (
		output string
		format string
	)

	pullCmd := &cobra.Command{
		Use:   "pull <name>",
		Short: "Fetch a graph definition from the definition store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dsn := appConfig.Database().URL
			if dsn == "" {
				return fmt.Errorf("no database configured: set database.url or FINGRAPH_DATABASE_URL")
			}

			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			st, err := store.New(ctx, pool, observability.GetLogger())
			if err != nil {
				return err
			}
			def, err := st.LoadDefinition(ctx, args[0])
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "json":
				data, err = json.MarshalIndent(def, "", "  ")
			case "yaml":
				data, err = yaml.Marshal(def)
			default:
				return fmt.Errorf("unknown output format %q (want json or yaml)", format)
			}
			if err != nil {
				return fmt.Errorf("encoding definition %q: %w", args[0], err)
			}

			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	pullCmd.Flags().StringVarP(&output, "output", "o", "", "write the definition to a file instead of stdout")
	pullCmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return pullCmd
}
