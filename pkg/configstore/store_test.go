package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

func writeConfigFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLookupTopicsNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "services.yaml", `
services:
  sleeperA:
    version: "1.0.0"
    dependencies: "sleeperB"
  sleeperB:
    version: "1.0.0"
`)

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	topics, err := s.LookupTopics("services.sleeperA")
	if err != nil {
		t.Fatalf("LookupTopics: %v", err)
	}
	if topics["dependencies"] != "sleeperB" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}

func TestGetChildMissing(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "services.yaml", "services:\n  foo:\n    version: \"1.0.0\"\n")

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.GetChild("services.foo", "nonexistent"); ok {
		t.Fatal("expected missing key to report not-found")
	}
	if v, ok := s.GetChild("services.foo", "version"); !ok || v != "1.0.0" {
		t.Fatalf("expected version=1.0.0, got %v ok=%v", v, ok)
	}
}

func TestReloadMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "services:\n  alpha:\n    version: \"1.0.0\"\n")
	writeConfigFile(t, dir, "b.yaml", "global:\n  logLevel: debug\n")

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.GetChild("services.alpha", "version"); !ok {
		t.Fatal("expected services.alpha from a.yaml")
	}
	if v, ok := s.GetChild("global", "logLevel"); !ok || v != "debug" {
		t.Fatalf("expected global.logLevel=debug, got %v ok=%v", v, ok)
	}
}

func TestLookupTopicsRootIsTopics(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "services.yaml", "services:\n  foo:\n    version: \"1.0.0\"\n")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, err := s.LookupTopics("")
	if err != nil {
		t.Fatalf("LookupTopics(\"\"): %v", err)
	}
	if _, ok := root["services"].(engine.Topics); !ok {
		t.Fatalf("expected root to expose services as Topics, got %T", root["services"])
	}
}
