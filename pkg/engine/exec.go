package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"mococo/pkg/roster"
)

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns its stdout as bytes.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// ExecEngine shells out to an agent CLI for each invocation. The CLI is
// expected to print a JSON result object as its last output line; if it
// does not, the whole stdout becomes the output with zero reported cost.
type ExecEngine struct {
	bin      string
	baseArgs []string
	runner   CommandRunner
}

// NewExecEngine creates an engine backed by the given CLI binary.
func NewExecEngine(bin string, baseArgs []string) *ExecEngine {
	return &ExecEngine{bin: bin, baseArgs: baseArgs, runner: &ExecCommandRunner{}}
}

// NewExecEngineWithRunner creates an engine with a custom runner for tests.
func NewExecEngineWithRunner(bin string, baseArgs []string, runner CommandRunner) *ExecEngine {
	return &ExecEngine{bin: bin, baseArgs: baseArgs, runner: runner}
}

// Execute runs the CLI with the worker's model and prompt and parses the
// result. A worker without a model override runs on the CLI's default.
func (e *ExecEngine) Execute(ctx context.Context, w *roster.Worker, prompt string) (Result, error) {
	args := append([]string(nil), e.baseArgs...)
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	args = append(args, "-p", prompt)

	out, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute %s: %w", w.Name, err)
	}
	return parseResult(out), nil
}

// parseResult extracts the trailing JSON result line if present.
func parseResult(out []byte) Result {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasPrefix(last, "{") {
		var r Result
		if json.Unmarshal([]byte(last), &r) == nil && r.Output != "" {
			return r
		}
	}
	return Result{Output: strings.TrimSpace(string(out))}
}
