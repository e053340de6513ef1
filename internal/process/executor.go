// Package process runs external programs for subprocess filters.
package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group has been killed.
const waitDelay = 2 * time.Second

// Command describes one invocation.
type Command struct {
	Path        string
	Args        []string
	Dir         string
	Env         []string
	Stdin       []byte
	Timeout     time.Duration
	MergeStderr bool
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result is the outcome of an invocation that started.
type Result struct {
	State    State
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Executor runs commands. A nonzero exit is reported through Result, not as
// an error; errors mean the process could not run to completion.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// OSExecutor runs commands as child processes in their own process group.
type OSExecutor struct {
	logger *slog.Logger
}

// NewOSExecutor creates an executor that logs through logger.
func NewOSExecutor(logger *slog.Logger) *OSExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSExecutor{logger: logger}
}

// Run starts the command and waits for it. On timeout the whole process
// group is killed and a Timeout error is returned; on cancellation of ctx an
// Interrupt error is returned.
func (e *OSExecutor) Run(ctx context.Context, c Command) (*Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if c.MergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	e.logger.Debug("Running subprocess", logfields.Command(c.String()), logfields.Path(c.Dir))

	res := &Result{State: Running}
	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.State = FailedTimeout
		res.ExitCode = -1
		e.logger.Warn("Subprocess timed out",
			logfields.Command(c.String()),
			slog.Duration("timeout", c.Timeout))
		return res, derrors.TimeoutError(c.String()).
			WithContext("timeout", c.Timeout.String()).
			Build()
	}
	if ctx.Err() != nil {
		res.State = FailedNonzero
		res.ExitCode = -1
		return res, derrors.Interrupted("subprocess interrupted").
			WithCause(ctx.Err()).
			WithContext("command", c.String()).
			Build()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.State = FailedNonzero
			res.ExitCode = exitErr.ExitCode()
			if len(res.Stderr) > 0 {
				e.logger.Debug("Subprocess stderr", logfields.Command(c.String()), "error_output", string(res.Stderr))
			}
			return res, nil
		}
		res.State = NotRun
		return res, derrors.WrapError(err, derrors.CategoryInternal, "failed to start subprocess").
			Fatal().
			WithContext("command", c.String()).
			Build()
	}

	res.State = Succeeded
	return res, nil
}
