package main

import (
	"bytes"
	"context"
	stdsql "database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/bolock/config"
)

func setup(t *testing.T) (string, *stdsql.DB) {
	t.Helper()
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "app.db") + "?_time_format=sqlite"
	path := filepath.Join(dir, "bolock.yaml")
	cfg := fmt.Sprintf("dialect: sqlite\ndsn: %q\nlease_minutes: 10\ntables:\n  Invoice: invoices\n  Contact: contacts\n", dsn)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	db, err := stdsql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return path, db
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newApp(&out, &errOut).Run(context.Background(), append([]string{"bolock"}, args...))
	return out.String(), err
}

func TestCLI(t *testing.T) {
	path, db := setup(t)

	out, err := run(t, "-c", path, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrated 2 tables\n", out)

	now := time.Now().UTC()
	for id, at := range map[int]time.Time{1: now, 2: now.Add(-time.Hour)} {
		_, err := db.Exec(`INSERT INTO invoices (id, locked, date_locked, user_locked, machine_locked) VALUES (?, true, ?, 'alice', 'WS01')`, id, at)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO invoices (id, locked) VALUES (3, false)`)
	require.NoError(t, err)

	out, err = run(t, "-c", path, "locks", "Invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "CLASS")
	assert.Regexp(t, `Invoice\s+id=1\s+alice\s+WS01\s+.*live`, out)
	assert.Regexp(t, `Invoice\s+id=2\s+alice\s+WS01\s+.*expired`, out)
	assert.NotContains(t, out, "id=3")

	out, err = run(t, "-c", path, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "Contact: cleared 0\nInvoice: cleared 1\n", out)

	out, err = run(t, "-c", path, "release", "Invoice", "id=1")
	require.NoError(t, err)
	assert.Equal(t, "released Invoice (id=1)\n", out)

	_, err = run(t, "-c", path, "release", "Invoice", "id=1")
	require.ErrorContains(t, err, "is not locked")

	out, err = run(t, "-c", path, "locks")
	require.NoError(t, err)
	assert.NotContains(t, out, "Invoice")
}

func TestCLIErrors(t *testing.T) {
	path, _ := setup(t)

	_, err := run(t, "-c", path, "release")
	require.ErrorContains(t, err, "missing class")
	_, err = run(t, "-c", path, "release", "Invoice", "7")
	require.ErrorContains(t, err, "expected col=value")
	_, err = run(t, "-c", path, "migrate", "--strategy", "hybrid")
	require.ErrorContains(t, err, "unknown strategy")
	_, err = run(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "locks")
	require.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID([]string{"year=2024", "no=A-1"})
	require.NoError(t, err)
	assert.Equal(t, "year=2024, no=A-1", id.String())
	assert.Equal(t, int64(2024), id[0].Value)
	assert.Equal(t, "A-1", id[1].Value)

	_, err = parseID(nil)
	require.Error(t, err)
	_, err = parseID([]string{"=1"})
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	got, err := dsn(&config.Config{Dialect: "mysql", DSN: "app:secret@tcp(db:3306)/app"})
	require.NoError(t, err)
	assert.Contains(t, got, "clientFoundRows=true")
	assert.Contains(t, got, "parseTime=true")

	got, err = dsn(&config.Config{Dialect: "postgres", DSN: "postgres://db/app"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/app", got)
}

func TestRunMainExitCode(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, runMain([]string{"bolock", "release"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "bolock: release: missing class")

	errOut.Reset()
	assert.Equal(t, 0, runMain([]string{"bolock", "--help"}, &out, &errOut))
	assert.Empty(t, errOut.String())
}
