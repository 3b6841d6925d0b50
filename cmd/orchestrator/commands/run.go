package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <component> [component...]",
		Short: "Start the orchestrator daemon and drive the given components to Running",
		Long: `Start the orchestrator: locate each named component (and its transitive
dependencies) via the recipe store and config store, drive them through
install/startup toward Running/Finished, then hold the process open
until an interrupt or SIGTERM requests a graceful shutdown back to New.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), args)
		},
	}
	return cmd
}

func runDaemon(ctx context.Context, targets []string) error {
	f, err := buildFleet(ctx)
	if err != nil {
		return err
	}
	defer f.Close(context.Background())
	ctx = f.Logger.WithContext(ctx)

	if err := f.Config.Watch(); err != nil {
		return err
	}
	f.Config.Subscribe("", f.Scheduler.Wake)

	var metricsServer *http.Server
	if metricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(f.Metrics.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
	}

	log.Info().Strs("targets", targets).Msg("starting components")
	if err := f.Scheduler.Startup(ctx, targets); err != nil {
		return err
	}
	log.Info().Msg("target set converged")

	if err := f.Scheduler.Serve(ctx, targets); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("reactor stopped")
	}
	log.Info().Msg("shutting down components")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return f.Scheduler.Shutdown(shutdownCtx, targets)
}
