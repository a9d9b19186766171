// Package supervisor tracks spawned child processes per agent, matches
// output/exit/timeout triggers against attached callbacks, and dispatches
// the resulting actions (spawn a branch, stop the process, inject
// context, notify the channel).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chorus-run/chorus/internal/procmon"
	"github.com/chorus-run/chorus/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

// BranchSpawner enqueues a new execution thread on an agent — the
// SPAWN_BRANCH action. Satisfied by the execution thread manager; kept as
// a narrow interface here so this package never imports threadmgr.
type BranchSpawner interface {
	SpawnBranch(agentName, contextMessage string) error
}

// ContextInjector appends a system message to an agent's main branch
// without starting a new run — the INJECT_CONTEXT action. Satisfied by
// the context manager / thread manager pairing.
type ContextInjector interface {
	InjectMainBranch(agentName, message string) error
}

// ChannelNotifier sends a formatted notice through the rate-limited
// egress sender — the NOTIFY_CHANNEL action.
type ChannelNotifier interface {
	Notify(ctx context.Context, agentName, message string) error
}

// Deps bundles the collaborators a supervisor dispatches actions
// through. Any may be nil; a nil collaborator makes its action a no-op
// logged at Warn, so a supervisor can be constructed before the rest of
// the system is wired (e.g. in tests).
type Deps struct {
	Spawner  BranchSpawner
	Injector ContextInjector
	Notifier ChannelNotifier
}

// Supervisor is the process registry keyed by pid.
type Supervisor struct {
	deps Deps

	mu        sync.Mutex
	processes map[int]*entry
}

type entry struct {
	proc    *TrackedProcess
	cmd     *exec.Cmd
	monitor *procmon.Monitor
	cancel  context.CancelFunc
	span    trace.Span

	debounce map[*ProcessCallback]*time.Timer
}

// New constructs a Supervisor.
func New(deps Deps) *Supervisor {
	return &Supervisor{deps: deps, processes: make(map[int]*entry)}
}

// SpawnOpts configures a new tracked process.
type SpawnOpts struct {
	AgentName        string
	Command          string
	Args             []string
	WorkingDirectory string
	ProcessType      ProcessType
	LogDir           string
	Context          string
	Callbacks        []*ProcessCallback
}

// Spawn starts command under the given working directory, begins
// supervising it, and returns the TrackedProcess record. If opts has no
// callbacks, a default ON_EXIT{ANY} -> NOTIFY_CHANNEL callback is
// attached so every spawned process is at least observable.
func (s *Supervisor) Spawn(ctx context.Context, opts SpawnOpts) (*TrackedProcess, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.WorkingDirectory

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start: %w", err)
	}

	callbacks := opts.Callbacks
	if len(callbacks) == 0 {
		callbacks = []*ProcessCallback{{
			Trigger:  HookTrigger{Kind: OnExit, ExitFilter: ExitAny},
			Action:   NotifyChannel,
			MaxFires: 1,
		}}
	}

	proc := &TrackedProcess{
		PID:              cmd.Process.Pid,
		Command:          fullCommand(opts.Command, opts.Args),
		WorkingDirectory: opts.WorkingDirectory,
		AgentName:        opts.AgentName,
		StartedAt:        time.Now().UTC(),
		ProcessType:      opts.ProcessType,
		Status:           Running,
		Context:          opts.Context,
		LogDir:           opts.LogDir,
		Callbacks:        callbacks,
	}

	spanCtx, span := tracing.StartProcessSupervise(ctx, opts.AgentName, proc.PID)
	runCtx, cancel := context.WithCancel(spanCtx)
	e := &entry{proc: proc, cmd: cmd, cancel: cancel, span: span, debounce: make(map[*ProcessCallback]*time.Timer)}

	mon := procmon.New(proc.PID, stdout, stderr, cmdWaiter{cmd}, opts.LogDir, 0,
		func(pid int, stream, line string) { s.onLine(proc, stream, line) },
		func(pid int, exitCode int) { s.onExit(proc, exitCode) },
	)
	e.monitor = mon

	s.mu.Lock()
	s.processes[proc.PID] = e
	s.mu.Unlock()

	if err := mon.Start(runCtx); err != nil {
		return nil, err
	}
	s.startTimeoutTriggers(proc)
	return proc, nil
}

type cmdWaiter struct{ cmd *exec.Cmd }

func (w cmdWaiter) Wait() (int, error) {
	err := w.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func fullCommand(command string, args []string) string {
	out := command
	for _, a := range args {
		out += " " + a
	}
	return out
}

func (s *Supervisor) startTimeoutTriggers(proc *TrackedProcess) {
	for _, cb := range proc.Callbacks {
		if cb.Trigger.Kind != OnTimeout {
			continue
		}
		cb := cb
		time.AfterFunc(time.Duration(cb.Trigger.TimeoutSeconds*float64(time.Second)), func() {
			s.fire(proc, cb)
		})
	}
}

func (s *Supervisor) onLine(proc *TrackedProcess, stream, line string) {
	s.mu.Lock()
	e, ok := s.processes[proc.PID]
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, cb := range proc.Callbacks {
		if cb.Trigger.Kind != OnOutputMatch || cb.Exhausted {
			continue
		}
		matched, err := regexp.MatchString(cb.Trigger.Pattern, line)
		if err != nil || !matched {
			continue
		}
		if cb.Trigger.ExitFilter != ExitAny {
			// Deferred until exit; the match itself doesn't fire.
			continue
		}
		s.debounceFire(e, proc, cb)
	}
}

// debounceFire (re)starts a per-callback timer of OutputDelaySeconds;
// firing happens only once the timer elapses without a fresh match.
func (s *Supervisor) debounceFire(e *entry, proc *TrackedProcess, cb *ProcessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := e.debounce[cb]; ok {
		t.Stop()
	}
	delay := time.Duration(cb.OutputDelaySeconds * float64(time.Second))
	e.debounce[cb] = time.AfterFunc(delay, func() { s.fire(proc, cb) })
}

func (s *Supervisor) onExit(proc *TrackedProcess, exitCode int) {
	s.mu.Lock()
	if proc.Status == Running {
		proc.Status = Exited
	}
	proc.ExitCode = &exitCode
	if e, ok := s.processes[proc.PID]; ok && e.span != nil {
		e.span.End()
	}
	s.mu.Unlock()

	for _, cb := range proc.Callbacks {
		switch cb.Trigger.Kind {
		case OnExit:
			if cb.Trigger.ExitFilter.matches(exitCode) {
				s.fire(proc, cb)
			}
		case OnOutputMatch:
			if cb.Trigger.ExitFilter != ExitAny && cb.Trigger.ExitFilter.matches(exitCode) {
				s.fire(proc, cb)
			}
		}
	}
}

// fire increments fire_count, marks exhaustion, and dispatches the
// action. Called from timer goroutines so it takes its own lock.
func (s *Supervisor) fire(proc *TrackedProcess, cb *ProcessCallback) {
	s.mu.Lock()
	if cb.Exhausted {
		s.mu.Unlock()
		return
	}
	cb.FireCount++
	if cb.MaxFires > 0 && cb.FireCount >= cb.MaxFires {
		cb.Exhausted = true
	}
	s.mu.Unlock()

	ctx := context.Background()
	switch cb.Action {
	case SpawnBranch:
		if s.deps.Spawner == nil {
			slog.Warn("no branch spawner wired, dropping SPAWN_BRANCH", "component", "supervisor", "pid", proc.PID)
			return
		}
		if err := s.deps.Spawner.SpawnBranch(proc.AgentName, cb.ContextMessage); err != nil {
			slog.Warn("spawn_branch callback failed", "component", "supervisor", "pid", proc.PID, "error", err)
		}
	case StopProcess:
		if err := s.KillProcess(ctx, proc.PID); err != nil {
			slog.Warn("stop_process callback failed", "component", "supervisor", "pid", proc.PID, "error", err)
		}
	case InjectContext:
		if s.deps.Injector == nil {
			slog.Warn("no context injector wired, dropping INJECT_CONTEXT", "component", "supervisor", "pid", proc.PID)
			return
		}
		if err := s.deps.Injector.InjectMainBranch(proc.AgentName, cb.ContextMessage); err != nil {
			slog.Warn("inject_context callback failed", "component", "supervisor", "pid", proc.PID, "error", err)
		}
	case NotifyChannel:
		if s.deps.Notifier == nil {
			slog.Warn("no channel notifier wired, dropping NOTIFY_CHANNEL", "component", "supervisor", "pid", proc.PID)
			return
		}
		if err := s.deps.Notifier.Notify(ctx, proc.AgentName, cb.ContextMessage); err != nil {
			slog.Warn("notify_channel callback failed", "component", "supervisor", "pid", proc.PID, "error", err)
		}
	}
}

// ListProcesses returns tracked processes, optionally filtered to one
// agent.
func (s *Supervisor) ListProcesses(agentName string) []*TrackedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*TrackedProcess
	for _, e := range s.processes {
		if agentName == "" || e.proc.AgentName == agentName {
			out = append(out, e.proc)
		}
	}
	return out
}

// GetProcess looks up a tracked process by pid.
func (s *Supervisor) GetProcess(pid int) *TrackedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.processes[pid]; ok {
		return e.proc
	}
	return nil
}

// RollingTail returns the process's rolling output tail, if still
// tracked.
func (s *Supervisor) RollingTail(pid int) []string {
	s.mu.Lock()
	e, ok := s.processes[pid]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return e.monitor.RollingTail()
}

// KillProcess sends SIGTERM, waits a grace interval, then SIGKILL.
// Status becomes KILLED once the process has been reaped. Returns an
// error if the process is not currently RUNNING.
func (s *Supervisor) KillProcess(ctx context.Context, pid int) error {
	s.mu.Lock()
	e, ok := s.processes[pid]
	s.mu.Unlock()
	if !ok || e.proc.Status != Running {
		return fmt.Errorf("supervisor: process %d is not running", pid)
	}

	e.cmd.Process.Signal(syscallTerm())
	graceTimer := time.NewTimer(5 * time.Second)
	defer graceTimer.Stop()

	done := make(chan struct{})
	go func() {
		e.monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-graceTimer.C:
		e.cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		e.cmd.Process.Kill()
		<-done
	}

	s.mu.Lock()
	e.proc.Status = Killed
	s.mu.Unlock()
	e.cancel()
	return nil
}

// ForegroundResult is the captured outcome of RunForeground.
type ForegroundResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// RunForeground spawns command, captures its stdout and stderr separately, and
// blocks until it exits or timeout elapses (whichever first). On
// timeout, the process is killed and TimedOut is set. This is the
// foreground path the shell tool uses: unlike Spawn, it does not persist
// a TrackedProcess in the registry's long-lived pid map, since a
// synchronous command has no life beyond this call.
func (s *Supervisor) RunForeground(ctx context.Context, opts SpawnOpts, timeout time.Duration) (*ForegroundResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	cmd.Dir = opts.WorkingDirectory
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ForegroundResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return nil, fmt.Errorf("supervisor: run foreground: %w", err)
}

// ReconcileLost marks any RUNNING process whose monitor is no longer
// present in this registry as LOST — used by the scheduled heartbeat
// after a supervisor restart, per the spec's note that cross-restart
// recovery is a caller responsibility beyond marking status.
func (s *Supervisor) ReconcileLost(knownPIDs map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, e := range s.processes {
		if e.proc.Status == Running && !knownPIDs[pid] {
			e.proc.Status = Lost
		}
	}
}
