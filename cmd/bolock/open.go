package main

import (
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/bolock/config"
	"github.com/syssam/bolock/dialect"
	"github.com/syssam/bolock/dialect/sql"
	"github.com/syssam/bolock/dialect/sql/rowstore"
)

// dsn adjusts the configured data source for the row store. MySQL must
// report matched rather than changed rows, and return timestamps as
// time.Time.
func dsn(cfg *config.Config) (string, error) {
	if cfg.Dialect != dialect.MySQL {
		return cfg.DSN, nil
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("parsing mysql dsn: %w", err)
	}
	mc.ClientFoundRows = true
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

type conn struct {
	drv   *sql.Driver
	store *rowstore.Store
}

func (c *conn) Close() error { return c.drv.Close() }

func open(cfg *config.Config, log *slog.Logger, debug bool) (*conn, error) {
	source, err := dsn(cfg)
	if err != nil {
		return nil, err
	}
	drv, err := sql.Open(cfg.Dialect, source)
	if err != nil {
		return nil, err
	}
	if err := drv.DB().Ping(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Dialect, err)
	}
	var d dialect.Driver = sql.NewStatsDriver(drv, sql.WithStatsLogger(log))
	if debug {
		d = sql.NewDebugDriver(d, log)
	}
	return &conn{
		drv:   drv,
		store: rowstore.New(d, cfg.StoreOptions()...),
	}, nil
}
