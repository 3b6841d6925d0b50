package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/edgeorch/orchestrator/pkg/codehandler"
	"github.com/edgeorch/orchestrator/pkg/configstore"
	"github.com/edgeorch/orchestrator/pkg/engine"
	"github.com/edgeorch/orchestrator/pkg/policy"
	"github.com/edgeorch/orchestrator/pkg/recipe"
	"github.com/edgeorch/orchestrator/pkg/scheduler"
	"github.com/edgeorch/orchestrator/pkg/shell"
	"github.com/edgeorch/orchestrator/pkg/skipif"
	"github.com/edgeorch/orchestrator/pkg/statussink"
	"github.com/edgeorch/orchestrator/pkg/telemetry"

	"github.com/rs/zerolog"
)

// fleet bundles every collaborator assembled from CLI flags, giving
// run.go one construction path; status.go and validate.go build only
// the collaborators they use.
type fleet struct {
	Logger    *telemetry.Logger
	Tracer    *telemetry.Tracer
	Config    *configstore.Store
	Recipes   *recipe.Store
	Policy    *policy.Engine
	Registry  *engine.ComponentRegistry
	Scheduler *scheduler.Scheduler
	History   *statussink.HistorySink
	Metrics   *statussink.MetricsSink
}

// buildFleet wires the default implementations of every engine
// collaborator from the process-wide flags.
func buildFleet(ctx context.Context) (*fleet, error) {
	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Logging.Level = logLevel
	telemetryCfg.Logging.Format = logFormat
	if err := telemetryCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	logger, err := telemetry.NewLogger(telemetryCfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	tracer, err := telemetry.NewTracer(telemetryCfg.Tracing, telemetryCfg.ServiceName, telemetryCfg.ServiceVersion, telemetryCfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("build tracer: %w", err)
	}

	cfgStore, err := configstore.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("build config store: %w", err)
	}

	recipeStore := recipe.NewStore(recipesDir)

	policyEngine, err := policy.NewEngine(zerolog.New(os.Stderr).With().Timestamp().Logger())
	if err != nil {
		return nil, fmt.Errorf("build policy engine: %w", err)
	}
	policyGate := policy.NewGate(policyEngine)

	history, err := statussink.NewHistorySink(ctx, historyDB)
	if err != nil {
		return nil, fmt.Errorf("build history sink: %w", err)
	}
	metrics := statussink.NewMetricsSink(statussink.MetricsConfig{Enabled: metricsEnabled, Namespace: "orchestrator"})
	tracingSink := statussink.NewTracingSink(tracer)
	sink := engine.NewMultiSink(history, metrics, tracingSink)

	factories := make(map[string]engine.HandlerFactory)
	var defaultFactory engine.HandlerFactory
	native := codehandler.NewNativeRegistry()
	if wasmDir != "" {
		wasmFactory := codehandler.NewWASMRegistry(wasmDir)
		defaultFactory = codehandler.Chain{native, wasmFactory}
	} else {
		defaultFactory = native
	}

	runner := shell.New()
	evaluator := &skipif.Evaluator{Shell: runner, Root: rootDir}

	registry := engine.NewComponentRegistry(recipeStore, cfgStore, runner, evaluator, sink, tracer, factories)
	registry.Policy = policyGate
	registry.DefaultFactory = defaultFactory

	graph := engine.NewDependencyGraph()
	sched := scheduler.New(registry, graph, maxParallel)

	return &fleet{
		Logger:    logger,
		Tracer:    tracer,
		Config:    cfgStore,
		Recipes:   recipeStore,
		Policy:    policyEngine,
		Registry:  registry,
		Scheduler: sched,
		History:   history,
		Metrics:   metrics,
	}, nil
}

// Close releases the fleet's owned resources.
func (f *fleet) Close(ctx context.Context) {
	if f.Config != nil {
		_ = f.Config.Close()
	}
	if f.History != nil {
		_ = f.History.Close()
	}
	if f.Tracer != nil {
		_ = f.Tracer.Shutdown(ctx)
	}
}
