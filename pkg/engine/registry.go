package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
	"github.com/edgeorch/orchestrator/pkg/shell"
	"github.com/edgeorch/orchestrator/pkg/skipif"
	"github.com/edgeorch/orchestrator/pkg/telemetry"
)

// ComponentRegistry is the process-wide, thread-safe cache of located
// Components, keyed by name.
type ComponentRegistry struct {
	Recipes RecipeSource
	Config  ConfigStore
	Shell   *shell.Runner
	Skipif  *skipif.Evaluator
	Sink    StatusSink
	Tracer  *telemetry.Tracer
	Policy  PolicyGate // optional; nil allows every install

	// Factories maps a recipe's class symbol to the HandlerFactory that
	// instantiates code-backed components for it.
	Factories map[string]HandlerFactory

	// DefaultFactory resolves a class symbol with no exact Factories
	// entry. nil means unrecognised classes fail resolution.
	DefaultFactory HandlerFactory

	mu         sync.Mutex
	components map[string]*Component
	machines   map[string]*LifecycleMachine
	group      singleflight.Group

	singletonMu sync.Mutex
	singletons  map[string]Handler
}

// NewComponentRegistry constructs an empty registry.
func NewComponentRegistry(recipes RecipeSource, config ConfigStore, runner *shell.Runner, eval *skipif.Evaluator, sink StatusSink, tracer *telemetry.Tracer, factories map[string]HandlerFactory) *ComponentRegistry {
	return &ComponentRegistry{
		Recipes:    recipes,
		Config:     config,
		Shell:      runner,
		Skipif:     eval,
		Sink:       sink,
		Tracer:     tracer,
		Factories:  factories,
		components: make(map[string]*Component),
		machines:   make(map[string]*LifecycleMachine),
		singletons: make(map[string]Handler),
	}
}

// Locate returns the named Component, constructing and caching it on
// first access. Concurrent first callers for the same name collapse into
// a single construction via singleflight.
func (r *ComponentRegistry) Locate(ctx context.Context, name string) (*Component, error) {
	r.mu.Lock()
	if c, ok := r.components[name]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		r.mu.Lock()
		if c, ok := r.components[name]; ok {
			r.mu.Unlock()
			return c, nil
		}
		r.mu.Unlock()

		c := r.construct(ctx, name)

		r.mu.Lock()
		r.components[name] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Component), nil
}

// construct builds a Component for name, consulting the ConfigStore and
// RecipeSource, and never returns an error itself: any failure produces
// an error-component instead, logged under the structured
// event component-locate-failed.
func (r *ComponentRegistry) construct(ctx context.Context, name string) *Component {
	log := telemetry.FromContext(ctx).NewComponentLogger(name)

	topics, err := r.Config.LookupTopics("services." + name)
	if err != nil || topics == nil {
		log.WithField("event", "component-locate-failed").
			Warn("no matching definition for component")
		return r.errorComponent(name, "no matching definition")
	}

	recipe, err := r.recipeFor(ctx, name, topics)
	if err != nil {
		log.WithField("event", "component-locate-failed").WithError(err).
			Error("failed to resolve recipe")
		return r.errorComponent(name, err.Error())
	}

	c := newComponent(name, KindGeneric)
	c.Lifecycle = recipe.Lifecycle
	c.Configuration = recipe.Configuration
	applySetenv(c.Lifecycle.Steps, recipe.Setenv)

	declared, ok := firstDependencyDeclaration(topics)
	if !ok {
		declared, ok = recipe.Dependencies, recipe.Dependencies != ""
	}
	if ok {
		deps, err := ParseDependencies(declared)
		if err != nil {
			log.WithField("event", "component-locate-failed").WithError(err).
				Error("bad dependency syntax")
			c.errored = true
			c.state = StateErrored
			c.statusMessage = "bad dependency syntax"
			return c
		}
		c.ExplicitDeps = deps
	}

	if recipe.Class == "" {
		return c
	}

	handler, err := r.instantiateHandler(ctx, recipe.Class, recipe.Configuration)
	if err != nil {
		log.WithField("event", "component-locate-failed").WithError(err).
			Error("handler instantiation failed")
		return r.errorComponent(name, err.Error())
	}
	c.Kind = KindCodeBacked
	c.Class = recipe.Class
	c.handler = handler
	return c
}

// recipeFor resolves the recipe backing name: an explicit recipe/version
// pair under the component's config topics, falling back to bestMatch
// against whatever RecipeSource knows.
func (r *ComponentRegistry) recipeFor(ctx context.Context, name string, topics Topics) (*Recipe, error) {
	version, _ := topics["version"].(string)
	if version != "" {
		if recipe, ok, err := r.Recipes.FindRecipe(ctx, name, version); err != nil {
			return nil, err
		} else if ok {
			return recipe, nil
		}
	}

	requirement, _ := topics["versionRequirement"].(string)
	bestName, bestVersion, ok, err := r.Recipes.BestMatch(ctx, name, requirement)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, orcherr.NewValidation(orcherr.CodeResolution, "no recipe satisfies requirement", nil).
			WithComponent(name)
	}
	recipe, ok, err := r.Recipes.FindRecipe(ctx, bestName, bestVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, orcherr.NewValidation(orcherr.CodeResolution, "resolved version has no recipe", nil).
			WithComponent(name)
	}
	return recipe, nil
}

// applySetenv merges a recipe's top-level setenv entries into every
// step's environment; a step-level entry wins over the recipe-level one.
func applySetenv(steps map[string]*Step, setenv map[string]string) {
	if len(setenv) == 0 {
		return
	}
	for _, step := range steps {
		if step == nil {
			continue
		}
		merged := make(map[string]string, len(setenv)+len(step.Setenv))
		for k, v := range setenv {
			merged[k] = v
		}
		for k, v := range step.Setenv {
			merged[k] = v
		}
		step.Setenv = merged
	}
}

// firstDependencyDeclaration tries the declared-dependency config key
// aliases in order.
func firstDependencyDeclaration(topics Topics) (string, bool) {
	for _, key := range dependencyKeys {
		if v, ok := topics[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// instantiateHandler builds (or retrieves, for a singleton) the Handler
// for a class-backed component.
func (r *ComponentRegistry) instantiateHandler(ctx context.Context, class string, config map[string]interface{}) (Handler, error) {
	factory, ok := r.Factories[class]
	if !ok {
		factory = r.DefaultFactory
	}
	if factory == nil {
		return nil, orcherr.NewValidation(orcherr.CodeResolution, "no handler registered for class "+class, nil)
	}

	configBytes, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal handler config: %w", err)
	}

	if !factory.Singleton(class) {
		return factory.New(ctx, class, configBytes)
	}

	r.singletonMu.Lock()
	defer r.singletonMu.Unlock()
	if h, ok := r.singletons[class]; ok {
		return h, nil
	}
	h, err := factory.New(ctx, class, configBytes)
	if err != nil {
		return nil, err
	}
	r.singletons[class] = h
	return h, nil
}

// errorComponent synthesises a component stuck in Broken carrying a
// diagnostic status message, the registry's response to any resolution
// or instantiation failure.
func (r *ComponentRegistry) errorComponent(name, reason string) *Component {
	c := newComponent(name, KindGeneric)
	c.state = StateBroken
	c.errored = true
	c.statusMessage = reason
	return c
}

// MachineFor returns (constructing if needed) the LifecycleMachine driving
// the named component's transitions, wired to this registry's shell
// runner, skipif evaluator, and StatusSink.
func (r *ComponentRegistry) MachineFor(ctx context.Context, name string) (*LifecycleMachine, error) {
	c, err := r.Locate(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[name]; ok {
		return m, nil
	}
	m := NewLifecycleMachine(c, r.Shell, r.Skipif, r.Sink, r.Tracer)
	m.Policy = r.Policy
	r.machines[name] = m
	return m, nil
}
