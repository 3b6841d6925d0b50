package statussink

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/edgeorch/orchestrator/pkg/engine"
	"github.com/edgeorch/orchestrator/pkg/telemetry"
)

// TracingSink emits one span per transition via telemetry.Tracer, giving
// every lifecycle move a place in the same trace tree as the shell steps
// that caused it (telemetry.Tracer.StartStepSpan is invoked from
// pkg/engine's LifecycleMachine.runStep; this sink covers the transitions
// themselves).
//
// Transitions don't carry a context from the originating caller once a
// Component's background timer or run-exit handler fires them, so this
// sink starts its spans from context.Background() rather than threading
// one through engine.StatusSink's synchronous interface.
type TracingSink struct {
	tracer *telemetry.Tracer
}

// NewTracingSink wraps tracer. A nil tracer makes every call a no-op.
func NewTracingSink(tracer *telemetry.Tracer) *TracingSink {
	return &TracingSink{tracer: tracer}
}

func (s *TracingSink) OnTransition(componentName string, from, to engine.State, reason string) {
	if s.tracer == nil {
		return
	}
	_, span := s.tracer.StartTransitionSpan(context.Background(), componentName, string(from), string(to))
	span.SetAttributes(attribute.String("reason", reason))
	span.End()
}

func (s *TracingSink) OnOverallChange(overall engine.Overall) {
	if s.tracer == nil {
		return
	}
	_, span := s.tracer.StartSpan(context.Background(), "fleet.overall_change",
		attribute.String("overall", string(overall)))
	span.End()
}
