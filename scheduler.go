package minicron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Driver selects what drives the matcher.
type Driver string

const (
	// DriverPoll evaluates the matcher once per Interval.
	DriverPoll Driver = "poll"
	// DriverCron lets robfig/cron compute the next fire from the matcher and
	// sleep until then.
	DriverCron Driver = "cron"
)

// Config holds the configuration for a Scheduler.
type Config struct {
	// Matcher decides when the command fires. Required.
	Matcher *Matcher

	// Command is the raw command text, tokenized on every fire. Required.
	Command string

	// Launcher starts the command. Required.
	Launcher *Launcher

	// Store records every run. Optional.
	Store RunStore

	// Logger receives scheduling events. Default: discarded.
	Logger *slog.Logger

	// Driver selects the tick source. Default: DriverPoll.
	Driver Driver

	// Event Handlers (all optional)

	// OnStart is called when the scheduler starts.
	OnStart func(ctx context.Context) error

	// OnStop is called when the scheduler stops.
	OnStop func(ctx context.Context) error

	// OnRun is called with every run once it has finished or failed to
	// start. Under PolicyDetach it is called from reaper goroutines.
	OnRun func(ctx context.Context, run *Run)

	// OnError is called when an error occurs while firing.
	// If OnError is not set, errors are only logged.
	OnError func(ctx context.Context, err error)

	// Timing Configuration

	// Interval is the polling period of DriverPoll.
	// Default: 1 second
	Interval time.Duration

	// Now reads the current time.
	// Default: time.Now
	Now func() time.Time
}

// Scheduler fires one command according to one schedule.
type Scheduler struct {
	config Config
	logger *slog.Logger

	// State tracking
	running    atomic.Bool
	processing atomic.Bool
	fires      atomic.Uint64

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	cron     *cron.Cron
}

// New creates a new Scheduler with the given configuration.
// Returns an error if the configuration is invalid.
func New(config Config) (*Scheduler, error) {
	if config.Matcher == nil {
		return nil, errors.New("matcher is required")
	}
	if config.Command == "" {
		return nil, errors.New("command is required")
	}
	if config.Launcher == nil {
		return nil, errors.New("launcher is required")
	}

	// Set defaults
	switch config.Driver {
	case "":
		config.Driver = DriverPoll
	case DriverPoll, DriverCron:
	default:
		return nil, fmt.Errorf("unknown driver %q", config.Driver)
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// A malformed command is only an error once it fires; say so early.
	if _, err := Tokenize(config.Command); err != nil {
		logger.Warn("command will fail to launch", slog.String("error", err.Error()))
	}

	return &Scheduler{
		config: config,
		logger: logger,
	}, nil
}

// Start begins ticking.
// It's safe to call Start multiple times; subsequent calls are no-ops.
// The scheduler runs until Stop is called or the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	// Only start once
	if s.running.Swap(true) {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.config.OnStart != nil {
		if err := s.config.OnStart(s.ctx); err != nil {
			s.running.Store(false)
			s.cancel()
			return fmt.Errorf("OnStart handler failed: %w", err)
		}
	}

	s.logger.LogAttrs(s.ctx, slog.LevelInfo, "scheduler started",
		slog.String("schedule", s.config.Matcher.Schedule().String()),
		slog.String("command", s.config.Command),
		slog.String("driver", string(s.config.Driver)),
		slog.String("policy", string(s.config.Launcher.Policy())))

	switch s.config.Driver {
	case DriverCron:
		s.startCron()
	default:
		s.wg.Add(1)
		go s.run()
	}

	return nil
}

// Stop stops ticking and waits for the in-flight job, including detached
// children, to finish. It's safe to call Stop multiple times.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if s.cancel != nil {
			s.cancel()
		}

		done := make(chan struct{})
		go func() {
			if s.cron != nil {
				<-s.cron.Stop().Done()
			}
			s.wg.Wait()
			s.config.Launcher.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		s.logger.Info("scheduler stopped", slog.Uint64("fires", s.fires.Load()))

		if s.config.OnStop != nil {
			if stopErr := s.config.OnStop(context.Background()); stopErr != nil && err == nil {
				err = fmt.Errorf("OnStop handler failed: %w", stopErr)
			}
		}
	})
	return err
}

// Run starts the scheduler and blocks until ctx is canceled and the
// in-flight job has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.ctx.Done()
	return s.Stop(context.Background())
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// IsProcessing returns true while a fire is being handled.
func (s *Scheduler) IsProcessing() bool {
	return s.processing.Load()
}

// Fires returns how many times the schedule has fired.
func (s *Scheduler) Fires() uint64 {
	return s.fires.Load()
}

// run is the polling loop: evaluate, fire, sleep.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for s.running.Load() {
		s.tick()

		select {
		case <-time.After(s.config.Interval):
		case <-s.ctx.Done():
			return
		}
	}
}

// tick evaluates the matcher once and fires on a match.
func (s *Scheduler) tick() {
	now := s.config.Now()
	d := s.config.Matcher.Evaluate(now)
	if !d.Fire {
		if d.Suppressed {
			s.logger.LogAttrs(s.ctx, slog.LevelDebug, "fire suppressed by step",
				slog.Time("at", now))
		}
		return
	}
	s.fire(now)
}

// fire launches the command for the tick at the given instant. Failures are
// contained to this fire.
func (s *Scheduler) fire(at time.Time) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	n := s.fires.Add(1)
	s.logger.LogAttrs(s.ctx, slog.LevelDebug, "schedule fired",
		slog.Time("at", at), slog.Uint64("fire", n))

	run, err := s.config.Launcher.Launch(s.ctx, at, s.config.Command, s.finished)
	if err != nil {
		s.handleError(fmt.Errorf("launch failed: %w", err))
		s.finished(run)
	}
}

// finished records a run that exited or never started.
func (s *Scheduler) finished(run *Run) {
	ctx := context.WithoutCancel(s.ctx)
	if s.config.Store != nil {
		if err := s.config.Store.Record(ctx, run); err != nil {
			s.handleError(fmt.Errorf("failed to record run: %w", err))
		}
	}
	if s.config.OnRun != nil {
		s.config.OnRun(ctx, run)
	}
}

// handleError logs err and calls the OnError handler if configured.
func (s *Scheduler) handleError(err error) {
	s.logger.LogAttrs(s.ctx, slog.LevelError, "fire failed", slog.String("error", err.Error()))
	if s.config.OnError != nil {
		s.config.OnError(s.ctx, err)
	}
}
