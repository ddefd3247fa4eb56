package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"ariga.io/atlas/sql/schema"
	"github.com/urfave/cli/v3"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/config"
	"github.com/syssam/bolock/dialect/sql/rowstore"
	"github.com/syssam/bolock/pessimistic"
)

func load(cmd *cli.Command) (*config.Config, *conn, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	c, err := open(cfg, logger(cmd), cmd.Bool("debug"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}

// classes returns the classes named on the command line, or every
// configured class when none are.
func classes(cfg *config.Config, args cli.Args) []string {
	if args.Present() {
		return args.Slice()
	}
	return cfg.Classes()
}

func locksCommand() *cli.Command {
	return &cli.Command{
		Name:      "locks",
		Usage:     "list locked rows",
		ArgsUsage: "[class...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, c, err := load(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			now := time.Now()
			cols := c.store.LockColumns()
			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CLASS\tID\tUSER\tMACHINE\tLOCKED AT\tSTATE")
			for _, class := range classes(cfg, cmd.Args()) {
				rows, err := c.store.Locks(ctx, class)
				if err != nil {
					return err
				}
				for _, row := range rows {
					holder, err := row.Editor(cols.User, cols.Machine, cols.Date)
					if err != nil {
						return err
					}
					state := "live"
					if pessimistic.Expired(holder.Time, now, cfg.LeaseDuration()) {
						state = "expired"
					}
					at := ""
					if !holder.Time.IsZero() {
						at = holder.Time.Local().Format(time.DateTime)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						class, c.store.Identity(class, row), holder.User, holder.Machine, at, state)
				}
			}
			return w.Flush()
		},
	}
}

// parseID parses "col=value" arguments. Integer values are passed as int64.
func parseID(args []string) (bolock.Identity, error) {
	if len(args) == 0 {
		return nil, errors.New("missing key, expected col=value")
	}
	id := make(bolock.Identity, 0, len(args))
	for _, a := range args {
		col, v, ok := strings.Cut(a, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid key %q, expected col=value", a)
		}
		var value any = v
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			value = n
		}
		id = append(id, bolock.KeyValue{Column: col, Value: value})
	}
	return id, nil
}

func releaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "release",
		Usage:     "clear the lock of one row, live or not",
		ArgsUsage: "class col=value...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return errors.New("release: missing class")
			}
			id, err := parseID(args[1:])
			if err != nil {
				return fmt.Errorf("release: %w", err)
			}
			_, c, err := load(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cleared, err := c.store.ClearLock(ctx, args[0], id, time.Time{})
			if err != nil {
				return err
			}
			if !cleared {
				return fmt.Errorf("release: %s (%s) is not locked", args[0], id)
			}
			fmt.Fprintf(cmd.Root().Writer, "released %s (%s)\n", args[0], id)
			return nil
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:      "sweep",
		Usage:     "clear expired lock flags",
		ArgsUsage: "[class...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "loop",
				Usage: "keep sweeping at the configured interval, reloading the configuration when it changes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("loop") {
				return sweepLoop(ctx, cmd)
			}
			cfg, c, err := load(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cleared, err := sweeper(cfg, c, cmd).Sweep(ctx)
			if err != nil {
				return err
			}
			for _, class := range slices.Sorted(maps.Keys(cleared)) {
				fmt.Fprintf(cmd.Root().Writer, "%s: cleared %d\n", class, cleared[class])
			}
			return nil
		},
	}
}

func sweeper(cfg *config.Config, c *conn, cmd *cli.Command) *pessimistic.Sweeper {
	return pessimistic.NewSweeper(c.store, cfg.LeaseDuration(), classes(cfg, cmd.Args()),
		pessimistic.WithWorkers(cfg.Sweep.Workers),
		pessimistic.WithSweepLogger(logger(cmd)),
	)
}

// sweepLoop runs the sweeper until ctx is done and restarts it with the new
// configuration whenever the configuration file changes.
func sweepLoop(ctx context.Context, cmd *cli.Command) error {
	log := logger(cmd)
	reloads := make(chan *config.Config, 1)
	go func() {
		err := config.Watch(ctx, cmd.String("config"), func(cfg *config.Config, err error) {
			if err != nil {
				log.WarnContext(ctx, "ignoring configuration change", "error", err)
				return
			}
			select {
			case reloads <- cfg:
			default:
			}
		})
		if err != nil {
			log.ErrorContext(ctx, "watching configuration", "error", err)
		}
	}()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	for {
		c, err := open(cfg, log, cmd.Bool("debug"))
		if err != nil {
			return err
		}
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- sweeper(cfg, c, cmd).Run(runCtx, cfg.Sweep.Interval) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return c.Close()
		case cfg = <-reloads:
			cancel()
			<-done
			c.Close()
			log.InfoContext(ctx, "configuration reloaded", "classes", cfg.Classes())
		}
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "add the tracking columns to the configured tables",
		ArgsUsage: "[class...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "strategy",
				Value: "both",
				Usage: "columns to add: optimistic, pessimistic or both",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			strategy := cmd.String("strategy")
			if !slices.Contains([]string{"optimistic", "pessimistic", "both"}, strategy) {
				return fmt.Errorf("migrate: unknown strategy %q", strategy)
			}
			cfg, c, err := load(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			var tables []*schema.Table
			for _, class := range classes(cfg, cmd.Args()) {
				m := c.store.Mapping(class)
				if strategy != "pessimistic" {
					tables = append(tables, rowstore.VersionTable(m, cfg.VersionColumns))
				}
				if strategy != "optimistic" {
					tables = append(tables, rowstore.LeaseTable(m, cfg.LockColumns))
				}
			}
			if err := rowstore.Migrate(ctx, cfg.Dialect, c.drv.DB(), tables...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "migrated %d tables\n", len(classes(cfg, cmd.Args())))
			return nil
		},
	}
}
