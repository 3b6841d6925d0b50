// Package commands implements the orchestrator CLI's cobra command tree:
// run (the long-lived daemon), validate (static recipe/config checks),
// and status (query a running daemon's persisted history).
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
)

var (
	rootDir    string
	recipesDir string
	configDir  string
	historyDB  string
	wasmDir    string

	logLevel  string
	logFormat string

	metricsAddr    string
	metricsEnabled bool

	maxParallel int
)

// Execute runs the root command and maps the result to a process exit
// code.
func Execute(ctx context.Context, version, commit, buildDate string) int {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}

	var oe *orcherr.OrchError
	if errors.As(err, &oe) {
		if oe.Class == orcherr.ClassCycle || oe.Code == orcherr.CodeResolution {
			return 2
		}
	}

	log.Error().Err(err).Msg("command failed")
	return 1
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Edge component lifecycle orchestrator",
		Long: `orchestrator drives a fleet of recipe-described components through
install/startup/run/shutdown, ordered by their declared dependencies,
until the requested target set converges on Running (or Finished for
one-shot components).`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "orchestrator root directory; \"~\" in exists skipif/doif clauses expands against it")
	rootCmd.PersistentFlags().StringVar(&recipesDir, "recipes-dir", "./recipes", "directory of <name>-<version>.yaml recipe files")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "./config", "directory of merged *.yaml component configuration")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "./orchestrator-history.db", "sqlite path for transition/overall history")
	rootCmd.PersistentFlags().StringVar(&wasmDir, "wasm-dir", "", "directory of <class>.wasm handler modules (empty disables the WASM loader)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console or json")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
	rootCmd.PersistentFlags().BoolVar(&metricsEnabled, "metrics", true, "enable the Prometheus metrics sink and endpoint")
	rootCmd.PersistentFlags().IntVar(&maxParallel, "max-parallel", 10, "maximum components advanced concurrently per scheduler round")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}
