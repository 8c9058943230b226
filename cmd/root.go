// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quantfold/fingraph/internal/config"
	"github.com/quantfold/fingraph/internal/observability"
)

// appConfig is the resolved configuration shared by all subcommands. It is
// populated by the root command's PersistentPreRunE.
var appConfig config.Interface = config.NewDefaultConfig()

// NewRootCommand builds the fingraph root command with all subcommands
// attached. A fresh instance is created per invocation so flag state never
// leaks between runs.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "fingraph",
		Short:   "fingraph evaluates declarative financial computation graphs.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := initializeViper(cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Fall back to a minimal logger so the error itself is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "fingraph"})
				return err
			}
			appConfig = cfg

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("starting fingraph", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./fingraph.yaml or ~/.fingraph/fingraph.yaml)")
	rootCmd.PersistentFlags().String("catalog.path", "", "metric catalog file (YAML)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newCalcCmd(),
		newValidateCmd(),
		newAuditCmd(),
		newPushCmd(),
		newPullCmd(),
	)
	return rootCmd
}

// Execute runs the CLI with a signal-aware context. Errors are logged and
// returned so main can pick the exit code.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeViper merges defaults, the config file and FINGRAPH_* env vars.
// The config file is optional: the working directory is searched first, then
// ~/.fingraph.
func initializeViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fingraph"))
		}
		v.SetConfigName("fingraph")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FINGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}
	return v, nil
}
