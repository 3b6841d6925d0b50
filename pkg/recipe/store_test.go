package recipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeorch/orchestrator/pkg/platform"
)

func writeRecipe(t *testing.T, dir, name, version, body string) {
	t.Helper()
	path := filepath.Join(dir, name+"-"+version+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
}

func TestFindRecipeScalarStep(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "sleeperB", "1.0.0", `
name: sleeperB
version: 1.0.0
dependencies: ""
lifecycle:
  run: "while true; do sleep 5; done"
`)

	store := &Store{Root: dir, Ranks: platform.Ranks{"all": 0}}
	rec, ok, err := store.FindRecipe(context.Background(), "sleeperB", "1.0.0")
	if err != nil || !ok {
		t.Fatalf("FindRecipe: ok=%v err=%v", ok, err)
	}
	step := rec.Lifecycle.Steps["run"]
	if step == nil || step.Command != "while true; do sleep 5; done" {
		t.Fatalf("unexpected run step: %+v", step)
	}
}

func TestFindRecipePlatformTagged(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "svc", "1.0.0", `
name: svc
version: 1.0.0
lifecycle:
  run:
    posix:
      script: A
    ubuntu:
      script: B
    all:
      script: C
`)

	ranks := platform.Ranks{"all": 0, "posix": 3, "ubuntu": 20}
	store := &Store{Root: dir, Ranks: ranks}
	rec, ok, err := store.FindRecipe(context.Background(), "svc", "1.0.0")
	if err != nil || !ok {
		t.Fatalf("FindRecipe: ok=%v err=%v", ok, err)
	}
	if got := rec.Lifecycle.Steps["run"].Command; got != "B" {
		t.Fatalf("expected tag resolution to pick B, got %q", got)
	}
}

func TestFindRecipeMissing(t *testing.T) {
	store := &Store{Root: t.TempDir(), Ranks: platform.Ranks{}}
	_, ok, err := store.FindRecipe(context.Background(), "nope", "1.0.0")
	if err != nil || ok {
		t.Fatalf("expected (false, nil) for missing recipe, got ok=%v err=%v", ok, err)
	}
}

func TestBestMatchPicksHighestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []string{"1.0.0", "1.2.0", "1.10.0", "2.0.0"} {
		writeRecipe(t, dir, "svc", v, "name: svc\nversion: "+v+"\nlifecycle:\n  run: \"x\"\n")
	}

	store := &Store{Root: dir, Ranks: platform.Ranks{"all": 0}}
	name, version, ok, err := store.BestMatch(context.Background(), "svc", "^1.0.0")
	if err != nil || !ok {
		t.Fatalf("BestMatch: ok=%v err=%v", ok, err)
	}
	if name != "svc" || version != "1.10.0" {
		t.Fatalf("expected svc 1.10.0, got %s %s", name, version)
	}
}

func TestListVersionsOrdersNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []string{"1.2.0", "1.10.0"} {
		writeRecipe(t, dir, "svc", v, "name: svc\nversion: "+v+"\nlifecycle:\n  run: \"x\"\n")
	}

	store := &Store{Root: dir, Ranks: platform.Ranks{"all": 0}}
	versions, err := store.ListVersions(context.Background(), "svc", "")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0] != "1.2.0" || versions[1] != "1.10.0" {
		t.Fatalf("expected semver ordering [1.2.0 1.10.0], got %v", versions)
	}
}

func TestListVersionsRejectsCorruptedVersion(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "svc", "1.0.0", "name: svc\nversion: 1.0.0\nlifecycle:\n  run: \"x\"\n")
	writeRecipe(t, dir, "svc", "not.a.version", "name: svc\nversion: not.a.version\nlifecycle:\n  run: \"x\"\n")

	store := &Store{Root: dir, Ranks: platform.Ranks{"all": 0}}
	if _, err := store.ListVersions(context.Background(), "svc", ""); err == nil {
		t.Fatal("expected a corrupted-version error for a non-semver recipe filename")
	}
}
