// Package shell spawns and supervises the child processes behind a
// component's lifecycle steps (install, startup, run, shutdown, recover).
package shell

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
	"github.com/edgeorch/orchestrator/pkg/telemetry"
)

// Outcome is the synchronous result of a ShellRunner.Run call.
type Outcome int

const (
	Ok Outcome = iota
	Failed
)

// BackgroundHandler receives a background step's exit code once its child
// process terminates.
type BackgroundHandler func(exitCode int)

// Runner spawns lifecycle-step child processes via the host shell:
// /bin/sh -c on POSIX, cmd /c on Windows.
type Runner struct {
	// Env is the parent environment every child inherits, plus any
	// setenv entries a recipe declares. Defaults to os.Environ() if nil.
	Env []string
}

// New returns a Runner that inherits the current process environment.
func New() *Runner {
	return &Runner{Env: os.Environ()}
}

// Run executes command as stepName on behalf of owner. With a nil
// background handler it blocks until the child exits and returns Ok iff
// the exit code is 0. With a non-nil handler, it returns as soon as the
// child is spawned and invokes handler from a separate goroutine once the
// child exits — the caller's LifecycleMachine tick consumes the exit code
// from there, never blocking the scheduler on a long-running `run` step.
// The returned *os.Process is non-nil whenever the child was spawned
// (background or not), letting the caller signal it directly — the
// LifecycleMachine's shutdown grace period needs this handle to
// terminate a still-running `run` child.
func (r *Runner) Run(ctx context.Context, stepName, command string, owner string, background BackgroundHandler, setenv map[string]string) (Outcome, *os.Process, error) {
	log := telemetry.FromContext(ctx).WithField("component", owner).WithStep(stepName)

	cmd := r.buildCommand(ctx, command, setenv)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("failed to start step")
		return Failed, nil, orcherr.NewTransient(orcherr.CodeScript, "failed to start step", err).
			WithComponent(owner).WithStep(stepName)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamTo(&wg, stdout, func(line string) { log.Info(line) })
	go streamTo(&wg, stderr, func(line string) { log.Warn(line) })

	if background != nil {
		go func() {
			wg.Wait()
			err := cmd.Wait()
			background(exitCodeOf(err))
		}()
		return Ok, cmd.Process, nil
	}

	wg.Wait()
	err := cmd.Wait()
	code := exitCodeOf(err)
	if code != 0 {
		log.Warnf("step exited with code %d", code)
		return Failed, cmd.Process, orcherr.NewTransient(orcherr.CodeScript, "step exited non-zero", err).
			WithComponent(owner).WithStep(stepName).WithExitCode(code)
	}
	return Ok, cmd.Process, nil
}

func (r *Runner) buildCommand(ctx context.Context, command string, setenv map[string]string) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}

	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	if len(setenv) > 0 {
		env = append(append([]string{}, env...), mapToEnv(setenv)...)
	}
	cmd.Env = env
	return cmd
}

func mapToEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

func streamTo(wg *sync.WaitGroup, r io.Reader, emit func(string)) {
	defer wg.Done()
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// Which searches PATH for cmd and returns its absolute path, or ("",
// false) if not found.
func Which(cmd string) (string, bool) {
	path, err := exec.LookPath(cmd)
	if err != nil {
		return "", false
	}
	return path, true
}

// Successful spawns expr via the host shell and reports true iff it exits
// 0 and writes nothing to standard error.
func (r *Runner) Successful(ctx context.Context, expr string) bool {
	cmd := r.buildCommand(ctx, expr, nil)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return err == nil && stderr.Len() == 0
}

// Terminate sends the POSIX terminate signal (SIGTERM) to process itself,
// not to its process group, for the LifecycleMachine's shutdown grace
// period: signal first, kill only once the grace period elapses.
func Terminate(process *os.Process) error {
	return process.Signal(syscall.SIGTERM)
}

// Kill forcibly terminates the process after a shutdown grace period
// expires without a clean exit.
func Kill(process *os.Process) error {
	return process.Kill()
}

