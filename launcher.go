package minicron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"
)

// waitDelay bounds how long Wait keeps draining output after a timed out
// child has been killed.
const waitDelay = 5 * time.Second

// LauncherConfig holds the configuration for a Launcher.
type LauncherConfig struct {
	// Policy selects whether Launch waits for the child. Default: PolicyWait.
	Policy Policy

	// Timeout kills the child's process group once exceeded.
	// Default: 0 (no timeout; a hung job under PolicyWait stalls every
	// following tick).
	Timeout time.Duration

	// Stdout and Stderr receive the child's output.
	// Default: the daemon's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Dir is the child's working directory. Default: the daemon's.
	Dir string

	// Env is the child's environment. Default: the daemon's.
	Env []string

	// Logger receives launch and exit events. Default: discarded.
	Logger *slog.Logger
}

// Launcher starts the scheduled command as a child process.
type Launcher struct {
	config   LauncherConfig
	logger   *slog.Logger
	reapers  errgroup.Group
	inflight atomic.Int64
}

// NewLauncher creates a Launcher with the given configuration.
func NewLauncher(config LauncherConfig) (*Launcher, error) {
	policy, ok := ParsePolicy(string(config.Policy))
	if !ok {
		return nil, fmt.Errorf("unknown launch policy %q", config.Policy)
	}
	config.Policy = policy
	if config.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Launcher{
		config: config,
		logger: logger,
	}, nil
}

// Policy returns the launch policy in effect.
func (l *Launcher) Policy() Policy { return l.config.Policy }

// InFlight returns the number of detached children not yet reaped.
func (l *Launcher) InFlight() int { return int(l.inflight.Load()) }

// Wait blocks until every detached child has been reaped. It must not be
// called concurrently with Launch.
func (l *Launcher) Wait() {
	_ = l.reapers.Wait()
}

// Launch tokenizes command and starts it.
//
// On a tokenize or start failure Launch returns the failed run together with
// the error and onExit is not called. Otherwise onExit receives the finished
// run: before Launch returns under PolicyWait, from a reaper goroutine under
// PolicyDetach. A non-zero exit status is recorded in the run, not returned.
//
// Cancelling ctx does not kill the child; only the configured timeout does.
func (l *Launcher) Launch(ctx context.Context, scheduledAt time.Time, command string, onExit func(*Run)) (*Run, error) {
	run := &Run{
		Command:     command,
		Policy:      l.config.Policy,
		ScheduledAt: scheduledAt,
		ExitCode:    -1,
	}

	args, err := Tokenize(command)
	if err != nil {
		run.Error = err.Error()
		return run, err
	}
	run.Args = args

	childCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if l.config.Timeout > 0 {
		childCtx, cancel = context.WithTimeout(childCtx, l.config.Timeout)
	}

	cmd := exec.CommandContext(childCtx, args[0], args[1:]...)
	cmd.Dir = l.config.Dir
	cmd.Env = l.config.Env
	cmd.Stdout = l.config.Stdout
	cmd.Stderr = l.config.Stderr
	if l.config.Timeout > 0 {
		killGroupOnCancel(cmd)
		cmd.WaitDelay = waitDelay
	}

	line := shellquote.Join(args...)
	if err := cmd.Start(); err != nil {
		cancel()
		perr := &ProcessError{Op: "start", Command: args[0], Err: err}
		run.Error = perr.Error()
		return run, perr
	}
	run.PID = cmd.Process.Pid
	run.StartedAt = time.Now()
	l.logger.LogAttrs(ctx, slog.LevelInfo, "job started",
		slog.String("command", line),
		slog.Int("pid", run.PID),
		slog.String("policy", string(run.Policy)))

	if l.config.Policy == PolicyDetach {
		done := *run
		l.inflight.Add(1)
		l.reapers.Go(func() error {
			defer l.inflight.Add(-1)
			defer cancel()
			l.finish(childCtx, cmd, &done, cmd.Wait())
			if onExit != nil {
				onExit(&done)
			}
			return nil
		})
		return run, nil
	}

	defer cancel()
	l.finish(childCtx, cmd, run, cmd.Wait())
	if onExit != nil {
		onExit(run)
	}
	return run, nil
}

// finish fills in the exit details of run from the result of cmd.Wait.
func (l *Launcher) finish(ctx context.Context, cmd *exec.Cmd, run *Run, waitErr error) {
	run.FinishedAt = time.Now()
	if cmd.ProcessState != nil {
		run.ExitCode = cmd.ProcessState.ExitCode()
	}

	attrs := []slog.Attr{
		slog.Int("pid", run.PID),
		slog.Int("exit_code", run.ExitCode),
		slog.Duration("duration", run.Duration()),
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		run.Error = fmt.Sprintf("killed after timeout %s", l.config.Timeout)
		l.logger.LogAttrs(ctx, slog.LevelWarn, "job timed out", attrs...)
	case waitErr == nil:
		l.logger.LogAttrs(ctx, slog.LevelInfo, "job finished", attrs...)
	case errors.As(waitErr, &exitErr):
		l.logger.LogAttrs(ctx, slog.LevelWarn, "job exited with non-zero status", attrs...)
	default:
		run.Error = (&ProcessError{Op: "wait", Command: run.Args[0], Err: waitErr}).Error()
		l.logger.LogAttrs(ctx, slog.LevelError, "waiting for job failed",
			append(attrs, slog.String("error", waitErr.Error()))...)
	}
}
