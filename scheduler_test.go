package minicron

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// MockStore is a RunStore that counts records and can be made to fail.
type MockStore struct {
	mu   sync.Mutex
	runs []Run
	fail error
}

func (s *MockStore) Record(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	run.ID = len(s.runs) + 1
	s.runs = append(s.runs, *run)
	return nil
}

func (s *MockStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *MockStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// minuteClock returns a Now function that advances one minute per call.
func minuteClock(start time.Time) func() time.Time {
	var calls atomic.Int64
	return func() time.Time {
		n := calls.Add(1) - 1
		return start.Add(time.Duration(n) * time.Minute)
	}
}

func testConfig(t *testing.T, spec, command string) Config {
	t.Helper()
	sched, err := ParseSchedule(spec)
	if err != nil {
		t.Fatalf("failed to parse schedule: %v", err)
	}
	launcher, err := NewLauncher(LauncherConfig{Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("failed to create launcher: %v", err)
	}
	return Config{
		Matcher:  NewMatcher(sched),
		Command:  command,
		Launcher: launcher,
		Interval: 10 * time.Millisecond,
	}
}

func stopScheduler(t *testing.T, sched *Scheduler) {
	t.Helper()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
}

func TestNew(t *testing.T) {
	valid := testConfig(t, "* * * * *", "true")

	t.Run("requires matcher", func(t *testing.T) {
		config := valid
		config.Matcher = nil
		if _, err := New(config); err == nil {
			t.Error("expected error when matcher is nil")
		}
	})

	t.Run("requires command", func(t *testing.T) {
		config := valid
		config.Command = ""
		if _, err := New(config); err == nil {
			t.Error("expected error when command is empty")
		}
	})

	t.Run("requires launcher", func(t *testing.T) {
		config := valid
		config.Launcher = nil
		if _, err := New(config); err == nil {
			t.Error("expected error when launcher is nil")
		}
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		config := valid
		config.Driver = "sundial"
		if _, err := New(config); err == nil {
			t.Error("expected error for unknown driver")
		}
	})

	t.Run("sets defaults", func(t *testing.T) {
		config := valid
		config.Interval = 0
		sched, err := New(config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sched.config.Interval != time.Second {
			t.Errorf("expected default interval of 1 second, got %v", sched.config.Interval)
		}
		if sched.config.Driver != DriverPoll {
			t.Errorf("expected default driver %q, got %q", DriverPoll, sched.config.Driver)
		}
		if sched.config.Now == nil {
			t.Error("expected default clock")
		}
	})

	t.Run("accepts a command that will not tokenize", func(t *testing.T) {
		config := valid
		config.Command = `echo "unterminated`
		if _, err := New(config); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig(t, "0 0 1 1 *", "true")
	var started, stopped atomic.Int32
	config.OnStart = func(ctx context.Context) error { started.Add(1); return nil }
	config.OnStop = func(ctx context.Context) error { stopped.Add(1); return nil }
	sched, _ := New(config)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if !sched.IsRunning() {
		t.Error("scheduler should be running")
	}

	stopScheduler(t, sched)
	stopScheduler(t, sched)

	if sched.IsRunning() {
		t.Error("scheduler should not be running")
	}
	if started.Load() != 1 || stopped.Load() != 1 {
		t.Errorf("expected one OnStart and one OnStop, got %d and %d", started.Load(), stopped.Load())
	}
}

func TestScheduler_OnStartError(t *testing.T) {
	config := testConfig(t, "* * * * *", "true")
	config.OnStart = func(ctx context.Context) error { return errors.New("not today") }
	sched, _ := New(config)

	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected OnStart error")
	}
	if sched.IsRunning() {
		t.Error("scheduler should not be running after a failed start")
	}
}

func TestScheduler_FiresAndRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &MockStore{}
	var onRun atomic.Int32
	config := testConfig(t, "* * * * *", "true")
	config.Store = store
	config.Now = minuteClock(at("2026-01-01 10:00:00"))
	config.OnRun = func(ctx context.Context, run *Run) { onRun.Add(1) }
	sched, _ := New(config)

	sched.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for store.Count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stopScheduler(t, sched)

	runs, _ := store.Recent(context.Background(), 0)
	if len(runs) < 3 {
		t.Fatalf("expected at least 3 runs, got %d", len(runs))
	}
	if int(onRun.Load()) != len(runs) {
		t.Errorf("expected OnRun once per run, got %d for %d runs", onRun.Load(), len(runs))
	}
	if sched.Fires() != uint64(len(runs)) {
		t.Errorf("expected %d fires, got %d", len(runs), sched.Fires())
	}
	for _, run := range runs {
		if !run.Succeeded() {
			t.Errorf("run %v should have succeeded: %+v", run.ID, run)
		}
		if run.ScheduledAt.Second() != 0 {
			t.Errorf("run scheduled off the minute: %v", run.ScheduledAt)
		}
	}
}

func TestScheduler_OncePerMinute(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &MockStore{}
	config := testConfig(t, "* * * * *", "true")
	config.Store = store
	frozen := at("2026-01-01 10:00:00")
	config.Now = func() time.Time { return frozen }
	sched, _ := New(config)

	sched.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	stopScheduler(t, sched)

	if store.Count() != 1 {
		t.Errorf("expected exactly 1 run within one minute, got %d", store.Count())
	}
}

func TestScheduler_TokenizeFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &MockStore{}
	var errs atomic.Int32
	config := testConfig(t, "* * * * *", `echo "unterminated`)
	config.Store = store
	config.Now = minuteClock(at("2026-01-01 10:00:00"))
	config.OnError = func(ctx context.Context, err error) {
		if errors.Is(err, ErrUnterminatedQuote) {
			errs.Add(1)
		}
	}
	sched, _ := New(config)

	sched.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for errs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stopScheduler(t, sched)

	if errs.Load() < 2 {
		t.Fatalf("expected the failure on every fire, got %d", errs.Load())
	}
	runs, _ := store.Recent(context.Background(), 1)
	if len(runs) != 1 || runs[0].Error == "" || runs[0].PID != 0 {
		t.Errorf("expected a recorded run that never started, got %+v", runs)
	}
}

func TestScheduler_StoreFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &MockStore{fail: errors.New("disk full")}
	var errs atomic.Int32
	config := testConfig(t, "* * * * *", "true")
	config.Store = store
	config.Now = minuteClock(at("2026-01-01 10:00:00"))
	config.OnError = func(ctx context.Context, err error) { errs.Add(1) }
	sched, _ := New(config)

	sched.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for errs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stopScheduler(t, sched)

	if errs.Load() < 2 {
		t.Errorf("expected OnError for every failed record, got %d", errs.Load())
	}
}

func TestScheduler_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig(t, "0 0 1 1 *", "true")
	sched, _ := New(config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sched.IsRunning() {
		t.Error("scheduler should not be running")
	}
}

func TestScheduler_CronDriver(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig(t, "* * * * *", "true")
	config.Driver = DriverCron
	sched, err := New(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.Start(context.Background())
	if sched.cron == nil {
		t.Fatal("cron driver should create a cron runner")
	}
	entries := sched.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(entries))
	}
	next := entries[0].Next
	if next.Second() != 0 || !next.After(time.Now().Add(-time.Minute)) {
		t.Errorf("unexpected next fire %v", next)
	}
	stopScheduler(t, sched)
}

func TestScheduler_StopWaitsForDetached(t *testing.T) {
	requireShell(t)
	defer goleak.VerifyNone(t)

	store := &MockStore{}
	config := testConfig(t, "* * * * *", "sleep 0.3")
	launcher, _ := NewLauncher(LauncherConfig{Policy: PolicyDetach})
	config.Launcher = launcher
	config.Store = store
	frozen := at("2026-01-01 10:00:00")
	config.Now = func() time.Time { return frozen }
	sched, _ := New(config)

	sched.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for sched.Fires() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stopScheduler(t, sched)

	if launcher.InFlight() != 0 {
		t.Errorf("expected no children in flight after Stop, got %d", launcher.InFlight())
	}
	if store.Count() != 1 {
		t.Errorf("expected the detached run to be recorded on exit, got %d", store.Count())
	}
}
