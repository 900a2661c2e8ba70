package gateway

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
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

// ExecGateway delivers messages by shelling out to a transport CLI:
// `<bin> post <channel> <content>` and `<bin> typing <channel>`. This keeps
// the chat platform integration outside the scheduler process.
type ExecGateway struct {
	bin     string
	runner  CommandRunner
	refresh time.Duration
}

// NewExecGateway creates a gateway backed by the given transport binary.
// A nil runner means real subprocess execution.
func NewExecGateway(bin string, runner CommandRunner, refresh time.Duration) *ExecGateway {
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	if refresh == 0 {
		refresh = progressRefresh
	}
	return &ExecGateway{bin: bin, runner: runner, refresh: refresh}
}

// Post delivers content to a channel.
func (g *ExecGateway) Post(ctx context.Context, channel, content string) error {
	if _, err := g.runner.Run(ctx, g.bin, "post", channel, content); err != nil {
		return fmt.Errorf("post to %s: %w", channel, err)
	}
	return nil
}

// ShowProgress re-asserts a typing indicator on the channel until the
// returned stop function is called or ctx is cancelled. Indicator failures
// are ignored.
func (g *ExecGateway) ShowProgress(ctx context.Context, channel string) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(g.refresh)
		defer ticker.Stop()

		_, _ = g.runner.Run(ctx, g.bin, "typing", channel)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = g.runner.Run(ctx, g.bin, "typing", channel)
			}
		}
	}()

	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}
