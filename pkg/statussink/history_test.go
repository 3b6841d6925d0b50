package statussink

import (
	"context"
	"testing"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

func setupTestSink(t *testing.T) *HistorySink {
	t.Helper()

	sink, err := NewHistorySink(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestHistorySink_OnTransitionPersistsRow(t *testing.T) {
	sink := setupTestSink(t)

	sink.OnTransition("svc.a", engine.StateNew, engine.StateInstalling, "install action")

	records, err := sink.ListTransitions(context.Background(), "svc.a", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(records))
	}
	r := records[0]
	if r.Component != "svc.a" || r.FromState != "New" || r.ToState != "Installing" || r.Reason != "install action" {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestHistorySink_ListTransitions_FiltersByComponent(t *testing.T) {
	sink := setupTestSink(t)

	sink.OnTransition("svc.a", engine.StateNew, engine.StateInstalling, "r1")
	sink.OnTransition("svc.b", engine.StateNew, engine.StateInstalling, "r2")

	records, err := sink.ListTransitions(context.Background(), "svc.a", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Component != "svc.a" {
		t.Fatalf("expected only svc.a's transition, got %+v", records)
	}
}

func TestHistorySink_ListTransitions_EmptyComponentListsAll(t *testing.T) {
	sink := setupTestSink(t)

	sink.OnTransition("svc.a", engine.StateNew, engine.StateInstalling, "r1")
	sink.OnTransition("svc.b", engine.StateNew, engine.StateInstalling, "r2")

	records, err := sink.ListTransitions(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 transitions across all components, got %d", len(records))
	}
}

func TestHistorySink_OnOverallChangePersistsRow(t *testing.T) {
	sink := setupTestSink(t)

	sink.OnOverallChange(engine.OverallUnhealthy)
	sink.OnOverallChange(engine.OverallHealthy)

	records, err := sink.ListOverallChanges(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 overall changes, got %d", len(records))
	}
	if records[0].Overall != string(engine.OverallHealthy) {
		t.Fatalf("expected most recent change first, got %+v", records[0])
	}
}
