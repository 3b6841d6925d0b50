package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine evaluates a fixed set of Rego policies against a component's
// Resource shape before LifecycleMachine.Install runs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiled
	logger   zerolog.Logger
}

type compiled struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine builds an Engine preloaded with the built-in policy set.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiled),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, p := range builtinPolicies() {
		if err := e.compile(context.Background(), p); err != nil {
			return nil, fmt.Errorf("compile builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Load adds or replaces a policy by name.
func (e *Engine) Load(ctx context.Context, p Policy) error {
	return e.compile(ctx, p)
}

// Enable flips a loaded policy on. Returns false if name is unknown.
func (e *Engine) Enable(name string) bool { return e.setEnabled(name, true) }

// Disable flips a loaded policy off. Returns false if name is unknown.
func (e *Engine) Disable(name string) bool { return e.setEnabled(name, false) }

func (e *Engine) setEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return false
	}
	cp.policy.Enabled = enabled
	return true
}

func (e *Engine) compile(ctx context.Context, p Policy) error {
	if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
		return fmt.Errorf("parse policy %s: %w", p.Name, err)
	}
	pkg := extractPackage(p.Rego)
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare policy %s: %w", p.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	pp := p
	e.policies[p.Name] = &compiled{policy: &pp, query: query}
	return nil
}

// EvaluateResource gates a single component's recipe against every
// enabled policy. Allowed is false iff any enabled policy
// denies with severity error or critical.
func (e *Engine) EvaluateResource(ctx context.Context, res *Resource) (*Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	decision := &Decision{Allowed: true, EvaluatedAt: time.Now()}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		results, err := cp.query.Eval(ctx, rego.EvalInput(map[string]interface{}{"resource": res}))
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Str("resource", res.Name).
				Msg("policy evaluation failed")
			continue
		}

		for _, result := range results {
			if len(result.Expressions) == 0 {
				continue
			}
			denySet, ok := result.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				v := toViolation(cp.policy, d)
				decision.Violations = append(decision.Violations, v)
				if v.Severity == SeverityError || v.Severity == SeverityCritical {
					decision.Allowed = false
				}
			}
		}
	}

	return decision, nil
}

func toViolation(p *Policy, result interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func extractPackage(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "orchestrator.policies"
}
