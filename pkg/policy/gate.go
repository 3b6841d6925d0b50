package policy

import (
	"context"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

// Gate adapts an Engine to engine.PolicyGate, the narrow interface the
// LifecycleMachine's install step calls through.
type Gate struct {
	Engine *Engine
}

// NewGate wraps engine in a Gate.
func NewGate(e *Engine) *Gate { return &Gate{Engine: e} }

// EvaluateResource implements engine.PolicyGate.
func (g *Gate) EvaluateResource(ctx context.Context, resource *engine.PolicyResource) (bool, []string, error) {
	decision, err := g.Engine.EvaluateResource(ctx, &Resource{
		Name:          resource.Name,
		Kind:          string(resource.Kind),
		Class:         resource.Class,
		Configuration: resource.Configuration,
	})
	if err != nil {
		return false, nil, err
	}

	reasons := make([]string, 0, len(decision.Violations))
	for _, v := range decision.Violations {
		reasons = append(reasons, v.Message)
	}
	return decision.Allowed, reasons, nil
}
