package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/chorus-run/chorus/internal/supervisor"
)

// Runner is the narrow slice of the process supervisor the shell tool
// needs; satisfied by *supervisor.Supervisor.
type Runner interface {
	RunForeground(ctx context.Context, opts supervisor.SpawnOpts, timeout time.Duration) (*supervisor.ForegroundResult, error)
}

// ShellTool runs a command line under the workspace root via the
// process supervisor, subject to a maximum timeout. Permission gating
// (C2) happens one layer up, in the tool loop, before Handle is ever
// called — this tool canonicalizes its own detail string so the loop can
// build the action string and consult the permission engine first.
type ShellTool struct {
	root    string
	runner  Runner
	timeout time.Duration
}

// NewShellTool constructs a ShellTool rooted at an agent's workspace,
// bounded by timeout (<=0 uses a 60s default).
func NewShellTool(root string, runner Runner, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ShellTool{root: root, runner: runner, timeout: timeout}
}

func (t *ShellTool) Name() string        { return "bash" }
func (t *ShellTool) Description() string { return "Run a shell command inside the agent's workspace." }
func (t *ShellTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
		"required":   []string{"command"},
	}
}

// Detail is the full command line, per the spec's example action string
// for a shell tool.
func (t *ShellTool) Detail(args map[string]any) string {
	return argString(args, "command")
}

func (t *ShellTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	command := argString(args, "command")
	result, err := t.runner.RunForeground(ctx, supervisor.SpawnOpts{
		Command:          "sh",
		Args:             []string{"-c", command},
		WorkingDirectory: t.root,
		ProcessType:      supervisor.Foreground,
	}, t.timeout)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "", fmt.Errorf("command timed out after %s", t.timeout)
	}
	out := result.Stdout
	if result.Stderr != "" {
		out += "\n" + result.Stderr
	}
	if result.ExitCode != 0 {
		out += fmt.Sprintf("\n(exit code %d)", result.ExitCode)
	}
	return out, nil
}
