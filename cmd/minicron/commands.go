package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DEEJ4Y/minicron"
	"github.com/DEEJ4Y/minicron/internal/config"
	"github.com/DEEJ4Y/minicron/internal/crontab"
	"github.com/DEEJ4Y/minicron/internal/logging"
	"github.com/DEEJ4Y/minicron/mongodb"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v3"
)

// createCommands creates the subcommands.
func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "check",
			Usage:  "parse the crontab and print the compiled schedule",
			Action: cmdCheck,
		},
		{
			Name:  "next",
			Usage: "print upcoming fire times",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "count",
					Aliases: []string{"n"},
					Usage:   "how many fire times to print",
					Value:   5,
				},
			},
			Action: cmdNext,
		},
		{
			Name:  "history",
			Usage: "print recent runs from the MongoDB history store",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"n"},
					Usage:   "how many runs to print",
					Value:   20,
				},
			},
			Action: cmdHistory,
		},
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("file") {
		cfg.Crontab = cmd.String("file")
	}
	if cmd.IsSet("policy") {
		cfg.Policy = cmd.String("policy")
	}
	if cmd.IsSet("driver") {
		cfg.Driver = cmd.String("driver")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("interval") {
		cfg.Interval = cmd.Duration("interval")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}

	if cfg.Crontab == "" {
		path, err := crontab.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		cfg.Crontab = path
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadEntry reads and parses the schedule line.
func loadEntry(path string) (*minicron.Entry, error) {
	line, err := crontab.ReadLine(path)
	if err != nil {
		return nil, err
	}
	entry, err := minicron.ParseLine(line)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entry, nil
}

func newLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// openStore returns the MongoDB store when configured and an in-memory ring
// otherwise.
func openStore(ctx context.Context, cfg config.Config) (minicron.RunStore, func() error, error) {
	if cfg.History.MongoURI == "" {
		return minicron.NewMemoryStore(cfg.History.Size), func() error { return nil }, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.History.Timeout)
	defer cancel()

	host, _ := os.Hostname()
	store, disconnect, err := mongodb.Connect(dialCtx, cfg.History.MongoURI,
		cfg.History.Database, cfg.History.Collection, host)
	if err != nil {
		return nil, nil, fmt.Errorf("history store: %w", err)
	}
	if err := store.EnsureIndexes(dialCtx); err != nil {
		return nil, nil, fmt.Errorf("history store: %w", err)
	}
	closeStore := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.History.Timeout)
		defer cancel()
		return disconnect(ctx)
	}
	return store, closeStore, nil
}

// cmdDaemon runs the scheduler until SIGINT or SIGTERM.
func cmdDaemon(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Present() {
		return usage("unexpected argument %q", cmd.Args().First())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fail(err)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return fail(err)
	}
	defer closeLog()

	logger.Debug("crontab file location", slog.String("path", cfg.Crontab))
	entry, err := loadEntry(cfg.Crontab)
	if err != nil {
		return fail(err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close history store", slog.String("error", err.Error()))
		}
	}()

	launcher, err := minicron.NewLauncher(minicron.LauncherConfig{
		Policy:  minicron.Policy(cfg.Policy),
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fail(err)
	}

	sched, err := minicron.New(minicron.Config{
		Matcher:  minicron.NewMatcher(entry.Schedule),
		Command:  entry.Command,
		Launcher: launcher,
		Store:    store,
		Logger:   logger,
		Driver:   minicron.Driver(cfg.Driver),
		Interval: cfg.Interval,
	})
	if err != nil {
		return fail(err)
	}

	if err := sched.Start(ctx); err != nil {
		return fail(err)
	}
	<-ctx.Done()

	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fail(fmt.Errorf("shutdown: %w", err))
	}
	return nil
}

// cmdCheck prints the compiled schedule and the command's argv.
func cmdCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fail(err)
	}
	entry, err := loadEntry(cfg.Crontab)
	if err != nil {
		return fail(err)
	}
	if err := printEntry(cmd.Root().Writer, entry); err != nil {
		return fail(err)
	}
	return nil
}

func printEntry(w io.Writer, entry *minicron.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tEXPR\tVALUES\tSTEP")
	for _, f := range minicron.Fields {
		spec := entry.Schedule.Field(f)
		step := "-"
		if spec.Step > 0 {
			step = fmt.Sprint(spec.Step)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f, spec.Text, f.Describe(spec), step)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	args, err := minicron.Tokenize(entry.Command)
	if err != nil {
		fmt.Fprintf(w, "\ncommand: %s\n", entry.Command)
		return err
	}
	fmt.Fprintf(w, "\ncommand: %s\n", shellquote.Join(args...))
	return nil
}

// cmdNext prints the next fire times from now.
func cmdNext(ctx context.Context, cmd *cli.Command) error {
	n := cmd.Int("count")
	if n <= 0 {
		return usage("--count must be positive, got %d", n)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fail(err)
	}
	entry, err := loadEntry(cfg.Crontab)
	if err != nil {
		return fail(err)
	}

	times := minicron.NewMatcher(entry.Schedule).Upcoming(time.Now(), int(n))
	if len(times) == 0 {
		return fail(fmt.Errorf("schedule %q never fires", entry.Schedule))
	}
	for _, t := range times {
		fmt.Fprintln(cmd.Root().Writer, t.Format("Mon 2006-01-02 15:04 MST"))
	}
	return nil
}

// cmdHistory prints recent runs from MongoDB.
func cmdHistory(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fail(err)
	}
	if cfg.History.MongoURI == "" {
		return fail(fmt.Errorf("history needs history.mongo_uri in the configuration file"))
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer closeStore()

	runs, err := store.Recent(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fail(err)
	}
	printRuns(cmd.Root().Writer, runs)
	return nil
}

func printRuns(w io.Writer, runs []minicron.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEDULED\tPID\tEXIT\tDURATION\tCOMMAND\tERROR")
	for _, r := range runs {
		line := r.Command
		if len(r.Args) > 0 {
			line = shellquote.Join(r.Args...)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ScheduledAt.Format(time.DateTime), r.PID, r.ExitCode,
			r.Duration().Round(time.Millisecond), line, strings.ReplaceAll(r.Error, "\t", " "))
	}
	tw.Flush()
}
