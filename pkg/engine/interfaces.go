package engine

import "context"

// Recipe is the tree a RecipeSource returns: required keys name,
// version, lifecycle; optional dependencies, componentType, setenv,
// configuration, class.
type Recipe struct {
	Name          string
	Version       string
	Lifecycle     LifecycleBlock
	Dependencies  string // raw declared form, parsed by ParseDependencies
	ComponentType string
	Setenv        map[string]string
	Configuration map[string]interface{}
	Class         string // handler-id for CodeBacked components
}

// RecipeSource is consumed by the ComponentRegistry to locate recipes.
// Recipe-file parsing and on-disk layout are out of scope
// here; pkg/recipe supplies the default implementation.
type RecipeSource interface {
	FindRecipe(ctx context.Context, name, version string) (*Recipe, bool, error)
	ListVersions(ctx context.Context, name, requirement string) ([]string, error)
	BestMatch(ctx context.Context, name, requirement string) (name_ string, version string, ok bool, err error)
}

// ConfigStore is consumed by the ComponentRegistry and Scheduler for the
// hierarchical key-value tree each component's config is rooted in.
// pkg/configstore supplies the default implementation.
type ConfigStore interface {
	LookupTopics(path string) (Topics, error)
	GetChild(path, key string) (interface{}, bool)
	Subscribe(path string, onChange func()) (unsubscribe func())
}

// Topics is a config subtree: either nested Topics or leaf Topic values.
type Topics map[string]interface{}

// PolicyGate gates a component's install step; pkg/policy supplies the OPA-backed default implementation.
// A nil PolicyGate on a LifecycleMachine allows every install.
type PolicyGate interface {
	EvaluateResource(ctx context.Context, resource *PolicyResource) (allowed bool, reasons []string, err error)
}

// PolicyResource is the minimal shape a component exposes to a
// PolicyGate: enough for a naming or class-allowlist rule, nothing a
// deployment/drift policy engine would need (out of scope here).
type PolicyResource struct {
	Name          string
	Kind          Kind
	Class         string
	Configuration map[string]interface{}
}

// StatusSink receives every lifecycle transition and fleet-health change.
// pkg/statussink supplies Prometheus/otel/sqlite
// implementations; ConfigStore consumers may compose several.
type StatusSink interface {
	OnTransition(componentName string, from, to State, reason string)
	OnOverallChange(overall Overall)
}

// multiSink fans every event out to several StatusSinks, letting the
// Scheduler publish once regardless of how many concrete sinks are wired.
type multiSink struct {
	sinks []StatusSink
}

// NewMultiSink composes sinks into a single StatusSink.
func NewMultiSink(sinks ...StatusSink) StatusSink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) OnTransition(name string, from, to State, reason string) {
	for _, s := range m.sinks {
		s.OnTransition(name, from, to, reason)
	}
}

func (m *multiSink) OnOverallChange(overall Overall) {
	for _, s := range m.sinks {
		s.OnOverallChange(overall)
	}
}
