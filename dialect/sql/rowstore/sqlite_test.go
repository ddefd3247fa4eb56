package rowstore

import (
	"context"
	stdsql "database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/bolocktest"
	"github.com/syssam/bolock/dialect"
	"github.com/syssam/bolock/dialect/sql"
	"github.com/syssam/bolock/identity"
	"github.com/syssam/bolock/optimistic"
	"github.com/syssam/bolock/pessimistic"
)

func openSQLite(t *testing.T) (*stdsql.DB, *Store) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "bolock.db") + "?_time_format=sqlite"
	drv, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	s := New(drv)
	require.NoError(t, Migrate(context.Background(), dialect.SQLite, drv.DB(),
		VersionTable(s.Mapping("Contact"), DefaultVersionColumns),
		LeaseTable(s.Mapping("Invoice"), DefaultLockColumns),
	))
	return drv.DB(), s
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)

	_, err := db.Exec(`CREATE TABLE notes (id integer PRIMARY KEY, body text)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO notes (id, body) VALUES (1, 'keep')`)
	require.NoError(t, err)

	m := s.Mapping("Note")
	require.NoError(t, Migrate(ctx, dialect.SQLite, db,
		VersionTable(m, DefaultVersionColumns),
		LeaseTable(m, DefaultLockColumns),
	))
	// A second run finds nothing to do.
	require.NoError(t, Migrate(ctx, dialect.SQLite, db,
		VersionTable(m, DefaultVersionColumns),
		LeaseTable(m, DefaultLockColumns),
	))

	cols := append(DefaultVersionColumns.Names(), DefaultLockColumns.Names()...)
	row, err := s.FetchRow(ctx, "Note", bolock.ID("id", 1), append(cols, "body"))
	require.NoError(t, err)
	assert.Equal(t, "keep", row["body"])
	for _, c := range cols {
		assert.Nil(t, row[c], c)
	}

	err = Migrate(ctx, "oracle", db)
	require.ErrorContains(t, err, "unsupported dialect")
}

func contactStore(s *Store, obj bolock.Object, user string, version int64) (*optimistic.VersionStore, optimistic.Props) {
	c := DefaultVersionColumns
	props := optimistic.Props{
		Version:            bolock.NewProp[int64](c.Version),
		DateLastUpdated:    bolock.NewProp[time.Time](c.Date),
		UserLastUpdated:    bolock.NewProp[string](c.User),
		MachineLastUpdated: bolock.NewProp[string](c.Machine),
	}
	props.Version.Set(version)
	return optimistic.New(obj, props,
		optimistic.WithFetcher(s),
		optimistic.WithIdentity(identity.Static{User: user, Machine: "WS-" + user}),
	), props
}

func saveContact(s *Store, obj bolock.Object, props optimistic.Props) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.UpdateVersioned(ctx, obj.ClassName(), obj.ID(), props.Version.Name(), props.Version.Value()-1, map[string]any{
			props.Version.Name():            props.Version.Value(),
			props.DateLastUpdated.Name():    props.DateLastUpdated.Value(),
			props.UserLastUpdated.Name():    props.UserLastUpdated.Value(),
			props.MachineLastUpdated.Name(): props.MachineLastUpdated.Value(),
		})
	}
}

func TestSQLiteOptimistic(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)
	_, err := db.Exec(`INSERT INTO contacts (id) VALUES (1)`)
	require.NoError(t, err)
	obj := &bolocktest.Object{Class: "Contact", Key: bolock.ID("id", 1)}

	aliceStore, aliceProps := contactStore(s, obj, "alice", 0)
	bobStore, bobProps := contactStore(s, obj, "bob", 0)
	alice := bolock.NewSession(obj, aliceStore)
	bob := bolock.NewSession(obj, bobStore)

	require.NoError(t, alice.BeginEdit(ctx))
	require.NoError(t, bob.BeginEdit(ctx))
	require.NoError(t, alice.Save(ctx, saveContact(s, obj, aliceProps)))
	assert.Equal(t, int64(1), aliceProps.Version.Value())

	err = bob.Save(ctx, saveContact(s, obj, bobProps))
	var conflict *bolock.PersistConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice", conflict.Editor.User)
	assert.Equal(t, "WS-alice", conflict.Editor.Machine)
	assert.False(t, conflict.Editor.Time.IsZero())

	// The guarded update refuses a stale version even without the check.
	err = s.UpdateVersioned(ctx, "Contact", obj.ID(), "version_number", 0, map[string]any{"version_number": int64(1)})
	assert.True(t, bolock.IsPersistConflict(err))

	_, err = db.Exec(`DELETE FROM contacts WHERE id = 1`)
	require.NoError(t, err)
	err = alice.BeginEdit(ctx)
	assert.True(t, bolock.IsRecordDeleted(err))
}

func invoiceStore(s *Store, obj bolock.Object, user string, clock *bolocktest.Clock) (*pessimistic.LeaseStore, pessimistic.Props) {
	c := DefaultLockColumns
	props := pessimistic.Props{
		Locked:        bolock.NewProp[bool](c.Locked),
		DateLocked:    bolock.NewProp[time.Time](c.Date),
		UserLocked:    bolock.NewProp[string](c.User),
		MachineLocked: bolock.NewProp[string](c.Machine),
		OSUserLocked:  bolock.NewProp[string](c.OSUser),
	}
	return pessimistic.New(obj, props, 10*time.Minute,
		pessimistic.WithStorage(s),
		pessimistic.WithIdentity(identity.Static{User: user, Machine: "WS-" + user}),
		pessimistic.WithClock(clock.Now),
	), props
}

func TestSQLitePessimistic(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)
	_, err := db.Exec(`INSERT INTO invoices (id, locked) VALUES (1, false), (2, false)`)
	require.NoError(t, err)
	clock := bolocktest.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	first := &bolocktest.Object{Class: "Invoice", Key: bolock.ID("id", 1)}

	alice, _ := invoiceStore(s, first, "alice", clock)
	bob, bobProps := invoiceStore(s, first, "bob", clock)

	require.NoError(t, alice.CheckBeforeBeginEdit(ctx))
	err = bob.CheckBeforeBeginEdit(ctx)
	var lock *bolock.LockConflictError
	require.ErrorAs(t, err, &lock)
	assert.Equal(t, "alice", lock.Holder.User)
	assert.True(t, lock.Holder.Time.Equal(clock.Now()))

	clock.Advance(15 * time.Minute)
	require.NoError(t, bob.CheckBeforeBeginEdit(ctx), "expired lease is taken over")
	assert.True(t, bobProps.Locked.Value())

	row, err := s.FetchRow(ctx, "Invoice", first.ID(), DefaultLockColumns.Names())
	require.NoError(t, err)
	assert.Equal(t, "bob", row["user_locked"])
	assert.Equal(t, "bob", row["os_user_locked"])

	require.NoError(t, bob.ReleaseLocks(ctx))
	row, err = s.FetchRow(ctx, "Invoice", first.ID(), []string{"locked"})
	require.NoError(t, err)
	locked, _, err := row.Bool("locked")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestSQLiteClearExpired(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)
	_, err := db.Exec(`INSERT INTO invoices (id, locked) VALUES (1, false), (2, false), (3, false)`)
	require.NoError(t, err)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for id, at := range map[int]time.Time{1: start, 2: start.Add(30 * time.Minute)} {
		require.NoError(t, s.WriteFields(ctx, "Invoice", bolock.ID("id", id), map[string]any{
			"locked": true, "date_locked": at, "user_locked": "alice",
		}))
	}

	rows, err := s.Locks(ctx, "Invoice")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	n, err := s.ClearExpired(ctx, "Invoice", start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = s.Locks(ctx, "Invoice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, bolock.ID("id", int64(2)), s.Identity("Invoice", rows[0]))

	cleared, err := s.ClearLock(ctx, "Invoice", bolock.ID("id", 2), start)
	require.NoError(t, err)
	assert.False(t, cleared, "lock taken after cutoff stays")
	cleared, err = s.ClearLock(ctx, "Invoice", bolock.ID("id", 2), time.Time{})
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestMigrateIncompatible(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)
	_, err := db.Exec(`CREATE TABLE orders (id text PRIMARY KEY, version_number text, locked integer)`)
	require.NoError(t, err)

	m := s.Mapping("Order")
	err = Migrate(ctx, dialect.SQLite, db, VersionTable(m, DefaultVersionColumns), LeaseTable(m, DefaultLockColumns))
	var invalid ValidationErrors
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid, 1)
	assert.Equal(t, "version_number", invalid[0].Column)
	assert.Contains(t, err.Error(), "orders.version_number: column type string cannot hold integer values")

	// Nothing was applied.
	var columns int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM pragma_table_info('orders')`).Scan(&columns))
	assert.Equal(t, 3, columns)

	// A missing column is a schema error, not a value.
	_, err = db.Exec(`INSERT INTO orders (id, version_number, locked) VALUES ('o-1', '1', 0)`)
	require.NoError(t, err)
	row, err := s.FetchRow(ctx, "Order", bolock.ID("id", "o-1"), []string{"date_locked"})
	require.Error(t, err)
	assert.Nil(t, row)
	assert.False(t, bolock.IsNotFound(err))
	assert.ErrorContains(t, err, "date_locked")
}

func TestMigrateStringKey(t *testing.T) {
	ctx := context.Background()
	db, s := openSQLite(t)
	s = New(sql.OpenDB(dialect.SQLite, db), WithKeyType("Ticket", KeyString))

	m := s.Mapping("Ticket")
	require.NoError(t, Migrate(ctx, dialect.SQLite, db, LeaseTable(m, DefaultLockColumns)))

	var typ string
	require.NoError(t, db.QueryRow(`SELECT type FROM pragma_table_info('tickets') WHERE name = 'id'`).Scan(&typ))
	assert.Contains(t, strings.ToLower(typ), "varchar")

	obj := bolocktest.NewObject("Ticket")
	_, err := db.Exec(`INSERT INTO tickets (id) VALUES (?)`, obj.ID().Values()...)
	require.NoError(t, err)
	require.NoError(t, s.WriteFields(ctx, "Ticket", obj.ID(), map[string]any{"locked": true, "user_locked": "alice"}))
	row, err := s.FetchRow(ctx, "Ticket", obj.ID(), []string{"id", "user_locked"})
	require.NoError(t, err)
	assert.Equal(t, obj.ID().Values()[0], row["id"])
	assert.Equal(t, "alice", row["user_locked"])
}
