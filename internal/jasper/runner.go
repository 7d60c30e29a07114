package jasper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// RunOptions control how a command is executed.
type RunOptions struct {
	// RedirectStderr merges stderr into the captured output.
	RedirectStderr bool
	// Background starts the process and returns without waiting for it.
	// The exit status is not checked. Ignored on Windows.
	Background bool
	// RunAsUser executes the command through su as another user. Ignored on Windows.
	RunAsUser string
}

// DefaultRunOptions captures stderr so tool diagnostics reach the caller.
var DefaultRunOptions = RunOptions{RedirectStderr: true}

// Runner executes a built command. Implementations spawn exactly one process per
// call and never retry.
type Runner interface {
	Run(ctx context.Context, cmd Command, opts RunOptions) ([]string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Disabled makes every Run fail with ErrExecutionDisabled.
	Disabled bool

	logger *logrus.Logger
	goos   string
}

// NewExecRunner returns a runner for the current platform.
func NewExecRunner(logger *logrus.Logger) *ExecRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ExecRunner{logger: logger, goos: runtime.GOOS}
}

// Run executes cmd. In foreground mode a non-zero exit status yields a *ProcessError.
// No timeout is applied; the call blocks until the process exits or ctx is cancelled.
func (r *ExecRunner) Run(ctx context.Context, cmd Command, opts RunOptions) ([]string, error) {
	if r.Disabled {
		return nil, fmt.Errorf("%w: refusing to run %s", ErrExecutionDisabled, cmd.Operation())
	}
	if cmd.Executable == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidInput)
	}

	argv := buildArgv(cmd, opts, r.goos)
	if opts.Background && r.goos != "windows" {
		return nil, r.start(cmd, argv)
	}

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	c.Stdout = &out
	if opts.RedirectStderr {
		c.Stderr = &out
	}

	err := c.Run()
	lines := splitLines(out.String())
	if err == nil {
		return lines, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return lines, fmt.Errorf("%w: %s interrupted: %w", ErrProcessFailed, cmd.Operation(), ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return lines, &ProcessError{Command: cmd, Output: lines, ExitCode: exitErr.ExitCode()}
	}
	return lines, fmt.Errorf("%w: start %s: %v", ErrProcessFailed, argv[0], err)
}

// buildArgv returns the process argv for cmd. With RunAsUser set outside
// Windows the escaped command line runs through `su <user> -c`.
func buildArgv(cmd Command, opts RunOptions, goos string) []string {
	if goos != "windows" && opts.RunAsUser != "" {
		return []string{"su", opts.RunAsUser, "-c", cmd.String()}
	}
	return cmd.Argv()
}

// start launches a detached process and reaps it in the background.
func (r *ExecRunner) start(cmd Command, argv []string) error {
	c := exec.Command(argv[0], argv[1:]...)
	if err := c.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrProcessFailed, argv[0], err)
	}
	go func() {
		if err := c.Wait(); err != nil {
			r.logger.WithError(err).WithField("operation", cmd.Operation()).
				Warn("Background jasperstarter process exited with an error")
		}
	}()
	return nil
}

// splitLines mirrors line-oriented capture: trailing whitespace is trimmed from
// every line and a final empty line is dropped.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimRight(l, " \t\r"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
