// minicron runs one command on a cron-style schedule.
//
// Usage:
//
//	minicron [global options] [command]
//
// The schedule is the first line of the crontab file:
//
//	<minute> <hour> <day of month> <month> <day of week> <command> [args...]
//
// Commands:
//
//	(none)    run the daemon, polling the schedule once per second
//	check     parse the crontab and print the compiled schedule
//	next      print upcoming fire times
//	history   print recent runs from the MongoDB history store
//
// Exit codes:
//
//	0: clean shutdown, help
//	1: unreadable crontab, parse failure, runtime failure
//	2: usage error
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// shutdownTimeout bounds how long the daemon waits for the running job on
// SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Version can be set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

// createApp creates the CLI application.
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "minicron",
		Usage:   "run one command on a cron schedule",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "path of the crontab file (default: ~/.crontab.txt)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON configuration file",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "wait for each job (wait) or fire and forget (detach)",
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "tick source: poll or cron",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "kill a job running longer than this (0 disables)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "polling period",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to this rotated file instead of stderr",
			},
		},
		Action:   cmdDaemon,
		Commands: createCommands(),
		// Exit codes are mapped in run, never by the framework.
		ExitErrHandler: func(_ context.Context, _ *cli.Command, _ error) {},
	}
}

func run() int {
	app := createApp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(os.Stderr, "minicron: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		// Anything else comes from flag or command parsing; the framework
		// has already printed the error and the usage.
		return 2
	}
	return 0
}

// exitError carries the exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error {
	return &exitError{code: 1, err: err}
}

func usage(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}
