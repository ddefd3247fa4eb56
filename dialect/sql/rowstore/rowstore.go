// Package rowstore implements bolock.RecordFetcher and bolock.PersistenceWriter
// over a dialect.Driver.
//
// Each class maps to a table and its key columns. Unless configured with
// WithTable, the table is the snake-cased plural of the class name
// ("InvoiceLine" is stored in "invoice_lines") keyed by an integer "id";
// WithKeyType switches the key to text, as used for uuid identities.
//
// Writes report a missing row through the number of affected rows. MySQL
// connections must set clientFoundRows=true so that rewriting a row with
// its current values is not mistaken for a missing row.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/dialect"
	"github.com/syssam/bolock/dialect/sql"
)

// Mapping locates the rows of a class.
type Mapping struct {
	Table   string
	Key     []string
	KeyType KeyType
}

// KeyType is the column type of the key columns of tables created by
// Migrate. The zero value is KeyInt.
type KeyType string

// Key column types.
const (
	KeyInt    KeyType = "int"
	KeyString KeyType = "string"
)

// Store reads and writes business-object rows through a driver.
type Store struct {
	drv    dialect.Driver
	locks  LockColumns
	mu     sync.RWMutex
	tables map[string]Mapping
}

// Option configures the Store.
type Option func(*Store)

// WithTable maps class to table. With no key columns the key is "id".
func WithTable(class, table string, key ...string) Option {
	return func(s *Store) {
		if len(key) == 0 {
			key = []string{"id"}
		}
		s.tables[class] = Mapping{Table: table, Key: key, KeyType: s.tables[class].KeyType}
	}
}

// WithKeyType sets the key column type of class. Default is KeyInt.
func WithKeyType(class string, t KeyType) Option {
	return func(s *Store) {
		m, ok := s.tables[class]
		if !ok {
			m = defaultMapping(class)
		}
		m.KeyType = t
		s.tables[class] = m
	}
}

// WithLockColumns sets the lease columns. Default is DefaultLockColumns.
func WithLockColumns(c LockColumns) Option {
	return func(s *Store) {
		s.locks = c
	}
}

// New returns a Store executing statements on drv.
func New(drv dialect.Driver, opts ...Option) *Store {
	s := &Store{
		drv:    drv,
		locks:  DefaultLockColumns,
		tables: make(map[string]Mapping),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the dialect of the underlying driver.
func (s *Store) Dialect() string { return s.drv.Dialect() }

// Mapping returns the table mapping of class.
func (s *Store) Mapping(class string) Mapping {
	s.mu.RLock()
	m, ok := s.tables[class]
	s.mu.RUnlock()
	if ok {
		return m
	}
	m = defaultMapping(class)
	s.mu.Lock()
	s.tables[class] = m
	s.mu.Unlock()
	return m
}

func defaultMapping(class string) Mapping {
	return Mapping{
		Table: inflect.Underscore(inflect.Pluralize(class)),
		Key:   []string{"id"},
	}
}

// Identity builds the identity of a row returned by Locks.
func (s *Store) Identity(class string, row bolock.Row) bolock.Identity {
	key := s.Mapping(class).Key
	id := make(bolock.Identity, len(key))
	for i, c := range key {
		id[i] = bolock.KeyValue{Column: c, Value: row[c]}
	}
	return id
}

func where(id bolock.Identity) (sql.P, error) {
	if len(id) == 0 {
		return nil, errors.New("rowstore: empty identity")
	}
	ps := make([]sql.P, len(id))
	for i, kv := range id {
		ps[i] = sql.EQ(kv.Column, kv.Value)
	}
	return sql.And(ps...), nil
}

// FetchRow implements bolock.RecordFetcher.
func (s *Store) FetchRow(ctx context.Context, class string, id bolock.Identity, columns []string) (bolock.Row, error) {
	return s.fetch(ctx, s.drv, class, id, columns)
}

func (s *Store) fetch(ctx context.Context, eq dialect.ExecQuerier, class string, id bolock.Identity, columns []string) (bolock.Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("rowstore: fetching %s: no columns", class)
	}
	pred, err := where(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, eq, s.Mapping(class).Table, columns, pred)
	if err != nil {
		return nil, fmt.Errorf("rowstore: fetching %s (%s): %w", class, id, err)
	}
	if len(rows) == 0 {
		return nil, bolock.NewNotFoundError(class, id)
	}
	return rows[0], nil
}

// WriteFields implements bolock.PersistenceWriter.
func (s *Store) WriteFields(ctx context.Context, class string, id bolock.Identity, fields map[string]any) error {
	pred, err := where(id)
	if err != nil {
		return err
	}
	n, err := s.update(ctx, s.drv, s.Mapping(class).Table, fields, pred)
	if err != nil {
		return fmt.Errorf("rowstore: writing %s (%s): %w", class, id, err)
	}
	if n == 0 {
		return bolock.NewNotFoundError(class, id)
	}
	return nil
}

// UpdateVersioned writes fields only if the persisted version in column is
// still expect; a NULL version matches an expect of 0. When no row is
// updated it returns a *bolock.RecordDeletedError if the row is gone and a
// *bolock.PersistConflictError otherwise. The update and the follow-up read
// run in one transaction.
func (s *Store) UpdateVersioned(ctx context.Context, class string, id bolock.Identity, column string, expect int64, fields map[string]any) error {
	pred, err := where(id)
	if err != nil {
		return err
	}
	guard := sql.EQ(column, expect)
	if expect == 0 {
		guard = sql.Or(sql.IsNull(column), guard)
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("rowstore: writing %s (%s): %w", class, id, classify(err))
	}
	if err := s.updateVersioned(ctx, tx, class, id, column, fields, sql.And(pred, guard)); err != nil {
		return rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rowstore: committing %s (%s): %w", class, id, classify(err))
	}
	return nil
}

func (s *Store) updateVersioned(ctx context.Context, tx dialect.Tx, class string, id bolock.Identity, column string, fields map[string]any, pred sql.P) error {
	n, err := s.update(ctx, tx, s.Mapping(class).Table, fields, pred)
	if err != nil {
		return fmt.Errorf("rowstore: writing %s (%s): %w", class, id, err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.fetch(ctx, tx, class, id, []string{column})
	switch {
	case bolock.IsNotFound(err):
		return bolock.NewRecordDeletedError(class, id)
	case err != nil:
		return err
	}
	return bolock.NewPersistConflictError(class, id, bolock.Editor{})
}

// rollback rolls tx back and returns err, joined with the rollback error
// if there is one.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		return errors.Join(err, fmt.Errorf("rowstore: rolling back: %w", rerr))
	}
	return err
}

func (s *Store) query(ctx context.Context, eq dialect.ExecQuerier, table string, columns []string, pred sql.P) ([]bolock.Row, error) {
	query, args, err := sql.Select(s.drv.Dialect(), table, columns, pred)
	if err != nil {
		return nil, err
	}
	rs := &sql.Rows{}
	if err := eq.Query(ctx, query, args, rs); err != nil {
		return nil, classify(err)
	}
	maps, err := sql.ScanRows(rs)
	if err != nil {
		return nil, err
	}
	rows := make([]bolock.Row, len(maps))
	for i, m := range maps {
		rows[i] = bolock.Row(m)
	}
	return rows, nil
}

func (s *Store) update(ctx context.Context, eq dialect.ExecQuerier, table string, fields map[string]any, pred sql.P) (int64, error) {
	query, args, err := sql.Update(s.drv.Dialect(), table, fields, pred)
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if err := eq.Exec(ctx, query, args, &res); err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

var (
	_ bolock.RecordFetcher     = (*Store)(nil)
	_ bolock.PersistenceWriter = (*Store)(nil)
)
