package engine

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
	"github.com/edgeorch/orchestrator/pkg/periodic"
	"github.com/edgeorch/orchestrator/pkg/shell"
	"github.com/edgeorch/orchestrator/pkg/skipif"
	"github.com/edgeorch/orchestrator/pkg/telemetry"
)

// LifecycleMachine drives one Component through its lifecycle
// transitions. Transitions are serialized per component (Component.mu):
// the Scheduler may call into a LifecycleMachine from many goroutines, but
// only one transition for a given component executes at a time.
type LifecycleMachine struct {
	c      *Component
	shell  *shell.Runner
	skipif *skipif.Evaluator
	sink   StatusSink
	tracer *telemetry.Tracer

	// Policy gates the install step.
	// Nil allows every install.
	Policy PolicyGate
}

// NewLifecycleMachine wires a Component to the runtime collaborators its
// steps need: a ShellRunner for synchronous/background child processes,
// a skipif/doif Evaluator, and the StatusSink every transition reports to.
func NewLifecycleMachine(c *Component, runner *shell.Runner, eval *skipif.Evaluator, sink StatusSink, tracer *telemetry.Tracer) *LifecycleMachine {
	return &LifecycleMachine{c: c, shell: runner, skipif: eval, sink: sink, tracer: tracer}
}

// transition moves the component from its current state to to, reporting
// reason to the StatusSink. Caller must hold c.mu.
func (m *LifecycleMachine) transition(ctx context.Context, to State, reason string) {
	from := m.c.state
	if from == to {
		return
	}
	m.c.state = to
	m.c.generation++

	if m.tracer != nil {
		_, span := m.tracer.StartTransitionSpan(ctx, m.c.Name, string(from), string(to))
		span.End()
	}
	if m.sink != nil {
		m.sink.OnTransition(m.c.Name, from, to, reason)
	}
	if m.c.onTransition != nil {
		m.c.onTransition(from, to, reason)
	}
}

// Install drives New -> Installing -> {AwaitingStartup | Broken}, or
// Errored -> Installing on a re-install that clears the sticky error
// flag. Caller (the Scheduler) must have
// already confirmed dependencies are satisfied for install.
func (m *LifecycleMachine) Install(ctx context.Context) error {
	m.c.mu.Lock()
	if m.c.state != StateNew && m.c.state != StateErrored {
		m.c.mu.Unlock()
		return orcherr.NewPermanent(orcherr.CodeInvalidState, "install requires state New or Errored", nil).
			WithComponent(m.c.Name)
	}
	m.c.errored = false
	name, kind, class, config := m.c.Name, m.c.Kind, m.c.Class, m.c.Configuration
	m.c.mu.Unlock()

	if m.Policy != nil {
		allowed, reasons, perr := m.Policy.EvaluateResource(ctx, &PolicyResource{
			Name: name, Kind: kind, Class: class, Configuration: config,
		})
		if perr != nil {
			m.c.mu.Lock()
			defer m.c.mu.Unlock()
			m.c.errored = true
			m.transition(ctx, StateBroken, "policy evaluation failed")
			return orcherr.NewPermanent(orcherr.CodePolicyDenied, "policy evaluation failed", perr).
				WithComponent(m.c.Name)
		}
		if !allowed {
			m.c.mu.Lock()
			defer m.c.mu.Unlock()
			m.c.errored = true
			m.transition(ctx, StateBroken, "policy denied: "+strings.Join(reasons, "; "))
			return orcherr.NewPermanent(orcherr.CodePolicyDenied, "policy denied install", nil).
				WithComponent(m.c.Name)
		}
	}

	m.c.mu.Lock()
	m.transition(ctx, StateInstalling, "install action")
	m.c.mu.Unlock()

	err := m.runStep(ctx, "install")

	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if err != nil {
		m.c.errored = true
		m.transition(ctx, StateBroken, "install step failed")
		return err
	}
	m.transition(ctx, StateAwaitingStartup, "install step ok")
	return nil
}

// Startup drives AwaitingStartup -> Starting -> {Finished+timer armed |
// Running+run in background | Errored}. Caller
// must have already confirmed all dependencies meet required_state.
func (m *LifecycleMachine) Startup(ctx context.Context) error {
	m.c.mu.Lock()
	if m.c.state != StateAwaitingStartup {
		m.c.mu.Unlock()
		return orcherr.NewPermanent(orcherr.CodeInvalidState, "startup requires state AwaitingStartup", nil).
			WithComponent(m.c.Name)
	}
	m.transition(ctx, StateStarting, "deps satisfied")
	m.c.mu.Unlock()

	err := m.runStep(ctx, "startup")

	m.c.mu.Lock()
	if err != nil {
		m.c.errored = true
		m.transition(ctx, StateErrored, "startup step failed")
		m.c.mu.Unlock()
		return err
	}

	if timerSpec := m.c.Lifecycle.Timer; timerSpec != nil {
		m.transition(ctx, StateFinished, "startup ok, has timer")
		m.armTimer(timerSpec)
		m.c.mu.Unlock()
		return nil
	}

	m.transition(ctx, StateRunning, "startup ok, no timer")
	m.c.mu.Unlock()

	m.launchRun(ctx)
	return nil
}

// armTimer attaches the periodic re-exec timer for a Finished component
// declaring lifecycle.timer. Caller must hold c.mu.
func (m *LifecycleMachine) armTimer(spec *TimerSpec) {
	period := time.Duration(spec.Period * float64(time.Second))
	m.c.timer = periodic.New(period, spec.Fuzz, func() bool {
		m.c.mu.Lock()
		if m.c.state != StateFinished {
			m.c.mu.Unlock()
			return false
		}
		m.transition(context.Background(), StateRunning, "timer fired")
		m.c.mu.Unlock()
		m.launchRun(context.Background())
		return true
	})
	m.c.timer.Start()
}

// launchRun spawns the run step in the background.
// Must be called with c.mu NOT held.
func (m *LifecycleMachine) launchRun(ctx context.Context) {
	if m.c.Kind == KindCodeBacked && m.c.handler != nil {
		go func() {
			if err := m.c.handler.Run(ctx); err != nil {
				m.onRunExit(ctx, 1)
				return
			}
			m.onRunExit(ctx, 0)
		}()
		return
	}

	step, ok := m.c.Lifecycle.Steps["run"]
	if !ok || step == nil {
		// No run step for this platform variant: treat as an immediate
		// clean exit.
		m.onRunExit(ctx, 0)
		return
	}

	skip, err := m.skipif.ShouldSkip(ctx, step.Condition)
	if err != nil || skip {
		m.onRunExit(ctx, 0)
		return
	}

	_, process, err := m.shell.Run(ctx, "run", step.Command, m.c.Name, func(exitCode int) {
		m.onRunExit(ctx, exitCode)
	}, step.Setenv)
	if err != nil {
		m.onRunExit(ctx, 1)
		return
	}

	m.c.mu.Lock()
	m.c.runProcess = process
	m.c.mu.Unlock()
}

// onRunExit drives Running -> {Finished | Errored} once the run child
// process exits.
func (m *LifecycleMachine) onRunExit(ctx context.Context, exitCode int) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if m.c.state != StateRunning {
		return
	}
	m.c.runProcess = nil
	if exitCode == 0 {
		m.transition(ctx, StateFinished, "run child exited 0")
		return
	}
	m.c.errored = true
	m.transition(ctx, StateErrored, "run child exited non-zero")
}

// ForceErrored transitions the component directly to Errored with reason,
// bypassing the normal step-driven transitions. Used by the Scheduler
// when DependencyGraph.TopoOrder reports a cycle.
func (m *LifecycleMachine) ForceErrored(ctx context.Context, reason string) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.errored = true
	m.c.statusMessage = reason
	m.transition(ctx, StateErrored, reason)
}

// Stop drives the component to Stopping,
// followed by the shutdown step and a return to New (or Finished for a
// one-shot component with no run/timer). Disarms any periodic timer
// synchronously before the shutdown step runs.
func (m *LifecycleMachine) Stop(ctx context.Context, reason string) error {
	m.c.mu.Lock()
	if m.c.state == StateNew || (m.c.state.IsTerminal() && m.c.timer == nil) {
		m.c.mu.Unlock()
		return nil
	}
	if m.c.timer != nil {
		m.c.timer.Shutdown()
		m.c.timer = nil
	}
	process := m.c.runProcess
	m.transition(ctx, StateStopping, reason)
	m.c.mu.Unlock()

	if process != nil {
		grace := shell.DefaultShutdownGrace()
		if s := m.c.Lifecycle.Steps["shutdown"]; s != nil && s.Timeout > 0 {
			grace = time.Duration(s.Timeout * float64(time.Second))
		}
		m.signalRunChild(process, grace)
	}

	err := m.runStep(ctx, "shutdown")

	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	next := StateNew
	if m.c.Lifecycle.Timer == nil && m.c.Lifecycle.Steps["run"] == nil {
		next = StateFinished
	}
	m.transition(ctx, next, "shutdown complete")
	return err
}

// runStep executes the named synchronous lifecycle step: resolves
// skipif/doif, then runs it, with exactly one automatic retry on
// failure for install and startup. A missing step for the selected
// platform variant is treated as an immediate success. Must be called
// without c.mu held — steps may run for an arbitrary duration.
func (m *LifecycleMachine) runStep(ctx context.Context, stepName string) error {
	if m.c.Kind == KindCodeBacked && m.c.handler != nil {
		return m.runHandlerStep(ctx, stepName)
	}

	step, ok := m.c.Lifecycle.Steps[stepName]
	if !ok || step == nil {
		return nil
	}

	skip, err := m.skipif.ShouldSkip(ctx, step.Condition)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	m.setStatusMessage(step.Command)

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.Timeout*float64(time.Second)))
		defer cancel()
	}

	run := func(ctx context.Context) error {
		_, _, err := m.shell.Run(ctx, stepName, step.Command, m.c.Name, nil, step.Setenv)
		return err
	}
	exec := run
	if stepName == "install" || stepName == "startup" {
		// Only install and startup get the automatic retry; shutdown and
		// recover run exactly once.
		exec = func(ctx context.Context) error {
			return shell.RetryOnce(ctx, func() error { return run(ctx) })
		}
	}

	if m.tracer == nil {
		return exec(stepCtx)
	}
	spanCtx, span := m.tracer.StartStepSpan(stepCtx, m.c.Name, stepName)
	err = exec(spanCtx)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
	return err
}

// runHandlerStep dispatches a synchronous step to the component's
// in-process Handler instead of the shell.
func (m *LifecycleMachine) runHandlerStep(ctx context.Context, stepName string) error {
	h := m.c.handler
	var err error
	switch stepName {
	case "install":
		err = h.Install(ctx)
	case "startup":
		err = h.Startup(ctx)
	case "shutdown":
		err = h.Shutdown(ctx)
	default:
		return nil
	}
	if err != nil {
		return orcherr.NewTransient(orcherr.CodeScript, stepName+" handler failed", err).
			WithComponent(m.c.Name).WithStep(stepName)
	}
	return nil
}

func (m *LifecycleMachine) setStatusMessage(msg string) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.statusMessage = msg
}

// signalRunChild sends process a terminate signal and, once grace has
// elapsed, a kill signal unless c.runProcess no longer points at
// process. onRunExit leaves c.runProcess set when the child exits after
// the component has left Running, so after Stop the kill is still sent;
// against a child that has already exited and been waited for, it fails
// without effect.
func (m *LifecycleMachine) signalRunChild(process *os.Process, grace time.Duration) {
	_ = shell.Terminate(process)
	time.AfterFunc(grace, func() {
		m.c.mu.Lock()
		stillRunning := m.c.runProcess == process
		m.c.mu.Unlock()
		if stillRunning {
			_ = shell.Kill(process)
		}
	})
}
