// Package dialect defines the database contract used by the SQL row store.
//
// A Driver executes statements and queries and opens transactions; a Tx
// adds Commit and Rollback. Both satisfy ExecQuerier, which is all the row
// store needs for single-statement checks and writes.
//
// # Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The dialect decides identifier quoting and placeholder syntax. See
// dialect/sql for the database/sql implementation and dialect/sql/rowstore
// for the fetcher and writer built on it.
package dialect
