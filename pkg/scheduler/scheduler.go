// Package scheduler implements the event-driven reactor that drives a
// target set of components from their current state to Running (startup)
// or back to New (shutdown), respecting the partial order the
// DependencyGraph induces.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/edgeorch/orchestrator/pkg/engine"
	"github.com/edgeorch/orchestrator/pkg/orcherr"
	"github.com/edgeorch/orchestrator/pkg/telemetry"
)

// stuckPollInterval bounds how long Startup/Shutdown waits for a wake
// signal before re-checking progress and, if still none, emitting another
// stuck diagnostic.
const stuckPollInterval = 2 * time.Second

// Scheduler is the process-wide reactor: one Scheduler drives every
// component reachable from the requested target set.
type Scheduler struct {
	Registry    *engine.ComponentRegistry
	Graph       *engine.DependencyGraph
	MaxParallel int

	wake        chan struct{}
	lastOverall engine.Overall
}

// New constructs a Scheduler. maxParallel <= 0 defaults to 10 concurrent
// workers per round.
func New(registry *engine.ComponentRegistry, graph *engine.DependencyGraph, maxParallel int) *Scheduler {
	if maxParallel <= 0 {
		maxParallel = 10
	}
	return &Scheduler{
		Registry:    registry,
		Graph:       graph,
		MaxParallel: maxParallel,
		wake:        make(chan struct{}, 1),
	}
}

// Wake requests the reactor re-evaluate the ready set at its next
// opportunity. Safe to call from any goroutine,
// including a Component's onTransition callback.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Startup seeds target_set with targets and their transitive dependency
// closure, computes topological order, and repeatedly advances every
// component whose state is below its converged target and whose
// dependencies are satisfied — until the whole target_set has converged
// or the reactor makes no further progress.
func (s *Scheduler) Startup(ctx context.Context, targets []string) error {
	log := telemetry.FromContext(ctx)

	targetSet, err := s.expandTargets(ctx, targets)
	if err != nil {
		return err
	}

	order, err := s.Graph.TopoOrder(targetSet)
	if err != nil {
		var oe *orcherr.OrchError
		if errors.As(err, &oe) && oe.Component != "" {
			if m, merr := s.Registry.MachineFor(ctx, oe.Component); merr == nil {
				m.ForceErrored(ctx, "dependency cycle")
			}
		}
		return err
	}

	runID := uuid.New().String()
	log = log.WithRunID(runID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progressed, allDone, err := s.advanceOnce(ctx, order)
		if err != nil {
			return err
		}
		s.publishOverall(ctx, order)
		if allDone {
			return nil
		}
		if !progressed {
			log.Warnf("stuck: %s", s.findBlockingEdge(ctx, order))
			select {
			case <-s.wake:
			case <-time.After(stuckPollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// advanceOnce runs one round of eligible actions concurrently (bounded
// by MaxParallel). Install and Startup are synchronous calls that block
// until the component reaches its next checkpoint state (AwaitingStartup/
// Broken, or Finished/Running/Errored respectively) — one round therefore
// represents real forward progress, not a fixed-size level.
func (s *Scheduler) advanceOnce(ctx context.Context, order []string) (progressed, allDone bool, err error) {
	type job struct {
		name   string
		action func(context.Context) error
	}
	var jobs []job
	allDone = true
	forcedError := false

	for _, name := range order {
		c, lerr := s.Registry.Locate(ctx, name)
		if lerr != nil {
			return false, false, lerr
		}
		state := c.State()

		// A Running component whose dependency dropped below its required
		// state is torn down, not left running against a broken premise.
		if state == engine.StateRunning && !s.Graph.SatisfiedBy(name, s.stateOf(ctx)) {
			m, merr := s.Registry.MachineFor(ctx, name)
			if merr != nil {
				return false, false, merr
			}
			allDone = false
			jobs = append(jobs, job{name, func(ctx context.Context) error {
				return m.Stop(ctx, "dependency dropped below required state")
			}})
			continue
		}

		if s.isConverged(state) {
			continue
		}
		allDone = false

		if !s.Graph.SatisfiedBy(name, s.stateOf(ctx)) {
			if broken := s.brokenDependency(ctx, name); broken != "" {
				if m, merr := s.Registry.MachineFor(ctx, name); merr == nil {
					m.ForceErrored(ctx, "dep broken: "+broken)
					forcedError = true
				}
			}
			continue
		}

		m, merr := s.Registry.MachineFor(ctx, name)
		if merr != nil {
			return false, false, merr
		}

		switch state {
		case engine.StateNew:
			jobs = append(jobs, job{name, m.Install})
		case engine.StateAwaitingStartup:
			jobs = append(jobs, job{name, m.Startup})
		}
	}

	if len(jobs) == 0 {
		return forcedError, allDone, nil
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.MaxParallel)
	var mu sync.Mutex
	var merr *multierror.Error

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := j.action(ctx); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", j.name, err))
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()

	if merr != nil {
		telemetry.FromContext(ctx).WithError(merr).Warn("advance round completed with component errors")
	}

	return true, false, nil
}

// brokenDependency returns the name of a dependency of name that has
// settled into Broken, or "" if none. A Broken dependency can never
// progress further on its own; this lets the
// scheduler convert a permanently unsatisfiable wait into an explicit
// error instead of leaving the dependent stuck forever.
func (s *Scheduler) brokenDependency(ctx context.Context, name string) string {
	stateOf := s.stateOf(ctx)
	for to := range s.Graph.Edges(name) {
		if st, ok := stateOf(to); ok && st == engine.StateBroken {
			return to
		}
	}
	return ""
}

// isConverged reports whether state needs no further scheduler-driven
// action: it has reached Running, settled into a one-shot Finished, or
// reached a terminal state the scheduler leaves alone (Errored/Broken
// components stay as-is until an external install/close request).
func (s *Scheduler) isConverged(state engine.State) bool {
	return state == engine.StateRunning || state == engine.StateFinished || state.IsTerminal()
}

// publishOverall recomputes fleet health over names and reports it to the
// Registry's StatusSink, but only when it changed since the last report.
func (s *Scheduler) publishOverall(ctx context.Context, names []string) {
	if s.Registry.Sink == nil {
		return
	}
	overall := s.computeOverall(ctx, names)
	if overall == s.lastOverall {
		return
	}
	s.lastOverall = overall
	s.Registry.Sink.OnOverallChange(overall)
}

// computeOverall is Healthy iff every
// component in names is Running or Finished, else Unhealthy.
func (s *Scheduler) computeOverall(ctx context.Context, names []string) engine.Overall {
	for _, name := range names {
		c, err := s.Registry.Locate(ctx, name)
		if err != nil {
			return engine.OverallUnhealthy
		}
		switch c.State() {
		case engine.StateRunning, engine.StateFinished:
		default:
			return engine.OverallUnhealthy
		}
	}
	return engine.OverallHealthy
}

func (s *Scheduler) stateOf(ctx context.Context) func(name string) (engine.State, bool) {
	return func(name string) (engine.State, bool) {
		c, err := s.Registry.Locate(ctx, name)
		if err != nil {
			return "", false
		}
		return c.State(), true
	}
}

// findBlockingEdge names one component still below target and the
// unsatisfied dependency edge blocking it, for the stuck diagnostic.
func (s *Scheduler) findBlockingEdge(ctx context.Context, order []string) string {
	stateOf := s.stateOf(ctx)
	for _, name := range order {
		c, err := s.Registry.Locate(ctx, name)
		if err != nil || s.isConverged(c.State()) {
			continue
		}
		for to, required := range s.Graph.Edges(name) {
			depState, ok := stateOf(to)
			if !ok || !depState.AtLeast(required) {
				return fmt.Sprintf("%s waiting on %s to reach %s (currently %s)", name, to, required, depState)
			}
		}
		return fmt.Sprintf("%s has no unsatisfied dependency but has not advanced", name)
	}
	return "no blocking edge identified"
}

// Serve keeps the reactor alive after Startup has converged: every wake
// (a component transition, a config change, an external request)
// re-runs the advance loop, restarting components whose dependencies
// recovered and stopping Running components whose dependencies dropped.
// Returns ctx.Err() once ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context, targets []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			if err := s.Startup(ctx, targets); err != nil {
				return err
			}
		}
	}
}

// Shutdown drives every component in targets' transitive closure back
// toward New, in reverse topological order: a component transitions to
// Stopping only once every component that depends on it has reached
// Finished, Errored, Broken, or New.
func (s *Scheduler) Shutdown(ctx context.Context, targets []string) error {
	targetSet, err := s.expandTargets(ctx, targets)
	if err != nil {
		return err
	}

	order, err := s.Graph.TopoOrder(targetSet)
	if err != nil {
		// Best-effort shutdown even in the presence of a cycle: fall back
		// to declaration order rather than refusing to stop anything.
		order = targetSet
	}
	reverse := make([]string, len(order))
	for i, n := range order {
		reverse[len(order)-1-i] = n
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progressed, allDone := s.shutdownOnce(ctx, reverse)
		s.publishOverall(ctx, reverse)
		if allDone {
			return nil
		}
		if !progressed {
			select {
			case <-s.wake:
			case <-time.After(stuckPollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Scheduler) shutdownOnce(ctx context.Context, reverse []string) (progressed, allDone bool) {
	allDone = true
	var jobs []string

	for _, name := range reverse {
		c, err := s.Registry.Locate(ctx, name)
		if err != nil {
			continue
		}
		state := c.State()
		if state == engine.StateNew || (state.IsTerminal() && !c.TimerArmed()) {
			continue
		}
		allDone = false

		if !s.dependentsSettled(ctx, reverse, name) {
			continue
		}
		jobs = append(jobs, name)
	}

	if len(jobs) == 0 {
		return false, allDone
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.MaxParallel)
	for _, name := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()
			m, err := s.Registry.MachineFor(ctx, name)
			if err != nil {
				return
			}
			_ = m.Stop(ctx, "dependent cleared for shutdown")
		}(name)
	}
	wg.Wait()
	return true, false
}

// dependentsSettled reports whether every component depending on name
// (within set) has reached a state that lets name proceed to Stopping.
func (s *Scheduler) dependentsSettled(ctx context.Context, set []string, name string) bool {
	for _, other := range set {
		if other == name {
			continue
		}
		if _, dependsOnName := s.Graph.Edges(other)[name]; !dependsOnName {
			continue
		}
		c, err := s.Registry.Locate(ctx, other)
		if err != nil {
			continue
		}
		switch c.State() {
		case engine.StateFinished, engine.StateNew:
		default:
			if !c.State().IsTerminal() {
				return false
			}
		}
	}
	return true
}

// expandTargets performs a BFS over each component's explicit and
// computed dependencies starting from targets, registering every edge on
// the Scheduler's DependencyGraph and returning the full reachable set in
// discovery order.
func (s *Scheduler) expandTargets(ctx context.Context, targets []string) ([]string, error) {
	seen := make(map[string]bool)
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true

		c, err := s.Registry.Locate(ctx, name)
		if err != nil {
			return err
		}
		c.SetTransitionHook(func(_, _ engine.State, _ string) { s.Wake() })
		order = append(order, name)

		for _, dep := range append(append([]engine.DependencyRef{}, c.ExplicitDeps...), c.ComputedDeps...) {
			s.Graph.AddDependency(name, dep.Name, dep.Required)
			if err := visit(dep.Name); err != nil {
				return err
			}
		}
		return nil
	}

	for _, t := range targets {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}
