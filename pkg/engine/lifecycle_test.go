package engine

import (
	"context"
	"testing"
	"time"

	"github.com/edgeorch/orchestrator/pkg/shell"
	"github.com/edgeorch/orchestrator/pkg/skipif"
)

type recordingSink struct {
	transitions []string
}

func (s *recordingSink) OnTransition(name string, from, to State, reason string) {
	s.transitions = append(s.transitions, name+":"+string(from)+"->"+string(to))
}
func (s *recordingSink) OnOverallChange(Overall) {}

func newTestMachine(t *testing.T, lifecycle LifecycleBlock) (*Component, *LifecycleMachine, *recordingSink) {
	t.Helper()
	c := newComponent("test.component", KindGeneric)
	c.Lifecycle = lifecycle
	sink := &recordingSink{}
	eval := &skipif.Evaluator{Shell: shell.New(), Root: t.TempDir()}
	m := NewLifecycleMachine(c, shell.New(), eval, sink, nil)
	return c, m, sink
}

func TestInstall_SuccessReachesAwaitingStartup(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{"install": {Command: "true"}},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateAwaitingStartup {
		t.Fatalf("expected AwaitingStartup, got %s", c.State())
	}
	if c.Errored() {
		t.Fatalf("expected errored flag clear")
	}
}

func TestInstall_FailureGoesBroken(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{"install": {Command: "false"}},
	})

	if err := m.Install(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
	if c.State() != StateBroken {
		t.Fatalf("expected Broken, got %s", c.State())
	}
	if !c.Errored() {
		t.Fatalf("expected sticky error flag set")
	}
}

func TestInstall_MissingStepIsAutomaticSuccess(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{Steps: map[string]*Step{}})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateAwaitingStartup {
		t.Fatalf("expected AwaitingStartup, got %s", c.State())
	}
}

func TestStartup_NoTimerLaunchesRunInBackground(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{
			"install": {Command: "true"},
			"startup": {Command: "true"},
			"run":     {Command: "true"},
		},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for c.State() != StateFinished {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for Finished, stuck at %s", c.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartup_FailureGoesErrored(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{
			"install": {Command: "true"},
			"startup": {Command: "false"},
		},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Startup(context.Background()); err == nil {
		t.Fatalf("expected startup error")
	}
	if c.State() != StateErrored {
		t.Fatalf("expected Errored, got %s", c.State())
	}
}

func TestStartup_WithTimerArmsAndReExecutesRun(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{
			"install": {Command: "true"},
			"startup": {Command: "true"},
			"run":     {Command: "true"},
		},
		Timer: &TimerSpec{Period: 0.02, Fuzz: 0},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	deadline := time.After(5 * time.Second)
	sawRunning := false
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a re-exec, last state %s, sawRunning=%v", c.State(), sawRunning)
		default:
		}
		if c.State() == StateRunning {
			sawRunning = true
		}
		if sawRunning && c.State() == StateFinished {
			c.mu.Lock()
			if c.timer != nil {
				c.timer.Shutdown()
			}
			c.mu.Unlock()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunExitNonZero_GoesErrored(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{
			"install": {Command: "true"},
			"startup": {Command: "true"},
			"run":     {Command: "exit 4"},
		},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for c.State() != StateErrored {
		select {
		case <-deadline:
			t.Fatalf("expected Errored after a non-zero run exit, stuck at %s", c.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !c.Errored() {
		t.Fatalf("expected sticky error flag set after run failure")
	}
}

func TestStop_RunsShutdownAndReturnsToNew(t *testing.T) {
	c, m, sink := newTestMachine(t, LifecycleBlock{
		Steps: map[string]*Step{
			"install":  {Command: "true"},
			"startup":  {Command: "true"},
			"run":      {Command: "sleep 5"},
			"shutdown": {Command: "true"},
		},
	})

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	if err := m.Stop(context.Background(), "dependency dropped"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.State() != StateNew {
		t.Fatalf("expected New after shutdown, got %s", c.State())
	}
	found := false
	for _, tr := range sink.transitions {
		if tr == "test.component:Running->Stopping" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Running->Stopping transition, got %v", sink.transitions)
	}
}

func TestStop_FromNewIsNoop(t *testing.T) {
	c, m, _ := newTestMachine(t, LifecycleBlock{Steps: map[string]*Step{}})
	if err := m.Stop(context.Background(), "close"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateNew {
		t.Fatalf("expected New, got %s", c.State())
	}
}
