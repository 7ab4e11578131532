// Command costwatch-dashboard serves the cost monitoring dashboard API.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/costwatch/costwatch-dashboard/config"
	"github.com/costwatch/costwatch-dashboard/observability"

	_ "github.com/costwatch/costwatch-dashboard/source/httpsource"
	_ "github.com/costwatch/costwatch-dashboard/source/mocksource"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	envFile    string

	cfg *config.Config
	log *slog.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "costwatch-dashboard",
		Short:        "cost monitoring dashboard",
		Long:         `costwatch-dashboard correlates usage cost, alert windows and anomalies and lets operators tune alert thresholds.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// godotenv never overrides variables that are already set.
			if g.envFile != "" {
				if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load %s: %w", g.envFile, err)
				}
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			g.cfg, g.log = cfg, logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("COSTWATCH_CONFIG"), "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newServeCommand(g),
		newProvidersCommand(g),
		newThresholdCommand(g),
		newConfigCommand(g),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
