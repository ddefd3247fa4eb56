// Package sql implements dialect.Driver on top of database/sql.
//
// Besides the driver it provides the small statement builder used by the
// row store: identifier quoting and bind placeholders per dialect, and
// equality, range and null predicates.
//
//	query, args, err := sql.Select(dialect.Postgres, "contacts",
//	    []string{"version_number"},
//	    sql.EQ("id", 7),
//	)
//	// SELECT "version_number" FROM "contacts" WHERE "id" = $1
//
// # Wrappers
//
// NewDebugDriver logs each statement through log/slog at debug level and
// NewStatsDriver counts statements and warns about slow ones:
//
//	drv, err := sql.Open("postgres", dsn)
//	if err != nil {
//	    return err
//	}
//	stats := sql.NewStatsDriver(drv, sql.WithSlowThreshold(200*time.Millisecond))
//	store := rowstore.New(stats)
package sql
