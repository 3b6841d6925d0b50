package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultEngineAllowsEverything(t *testing.T) {
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := e.EvaluateResource(context.Background(), &Resource{Name: "Weird_Name"})
	if err != nil {
		t.Fatalf("EvaluateResource: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow-all default, got denied: %+v", decision.Violations)
	}
}

func TestNamingPolicyDeniesUppercase(t *testing.T) {
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if !e.Enable("component-naming") {
		t.Fatal("expected component-naming policy to be loaded")
	}

	decision, err := e.EvaluateResource(context.Background(), &Resource{Name: "Bad-Name"})
	if err != nil {
		t.Fatalf("EvaluateResource: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected naming policy to deny an uppercase name")
	}

	decision, err = e.EvaluateResource(context.Background(), &Resource{Name: "good.name"})
	if err != nil {
		t.Fatalf("EvaluateResource: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected naming policy to allow a lowercase dotted name, got: %+v", decision.Violations)
	}
}
