package minicron

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule adapts a Matcher to cron.Schedule.
//
// Next advances the matcher's latch as if the returned instant had fired, so
// the schedule must be driven by a single cron.Cron and nothing else.
type CronSchedule struct {
	m *Matcher
}

// NewCronSchedule wraps m.
func NewCronSchedule(m *Matcher) *CronSchedule {
	return &CronSchedule{m: m}
}

// Next returns the next fire strictly after t, or the zero time when the
// schedule never fires again within five years.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.m.advance(t)
}

// startCron registers the launch with a robfig/cron runner. Under PolicyWait
// a fire that comes due while the previous run is still going is skipped,
// keeping at most one run in flight.
func (s *Scheduler) startCron() {
	logger := cronLogger{s.logger}
	wrappers := []cron.JobWrapper{cron.Recover(logger)}
	if s.config.Launcher.Policy() == PolicyWait {
		wrappers = append(wrappers, cron.SkipIfStillRunning(logger))
	}

	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(wrappers...),
	)
	s.cron.Schedule(NewCronSchedule(s.config.Matcher), cron.FuncJob(func() {
		s.fire(s.config.Now())
	}))
	s.cron.Start()
}

// cronLogger routes robfig/cron's logging into slog. Its info chatter goes to
// debug level.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
