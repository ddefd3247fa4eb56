// Command bolock inspects and maintains the lock and version columns of
// business-object tables.
//
//	bolock -c bolock.yaml migrate
//	bolock -c bolock.yaml locks Invoice
//	bolock -c bolock.yaml release Invoice id=42
//	bolock -c bolock.yaml sweep --loop
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	os.Exit(runMain(os.Args, os.Stdout, os.Stderr))
}

// runMain executes the command line and returns the process exit code.
func runMain(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp(stdout, stderr).Run(ctx, args); err != nil {
		fmt.Fprintln(stderr, "bolock:", err)
		return 1
	}
	return 0
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "bolock",
		Usage:     "inspect and maintain business-object locks",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "bolock.yaml",
				Usage:   "path to the YAML configuration",
				Sources: cli.EnvVars("BOLOCK_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every SQL statement",
			},
		},
		Commands: []*cli.Command{
			locksCommand(),
			releaseCommand(),
			sweepCommand(),
			migrateCommand(),
		},
	}
}

func logger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.Root().ErrWriter, &slog.HandlerOptions{Level: level}))
}
