package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/dialect/sql"
)

// LockColumns names the lease columns of a table. OSUser may be empty.
type LockColumns struct {
	Locked  string `yaml:"locked"`
	Date    string `yaml:"date"`
	User    string `yaml:"user"`
	Machine string `yaml:"machine"`
	OSUser  string `yaml:"os_user"`
}

// DefaultLockColumns are the lease column names used when none are configured.
var DefaultLockColumns = LockColumns{
	Locked:  "locked",
	Date:    "date_locked",
	User:    "user_locked",
	Machine: "machine_locked",
	OSUser:  "os_user_locked",
}

// Names returns the configured column names in a stable order.
func (c LockColumns) Names() []string {
	names := []string{c.Locked, c.Date, c.User, c.Machine}
	if c.OSUser != "" {
		names = append(names, c.OSUser)
	}
	return names
}

// LockColumns returns the lease columns used by Locks and the clear methods.
func (s *Store) LockColumns() LockColumns { return s.locks }

// Locks returns the key and lease columns of every row of class whose lock
// flag is set, expired or not.
func (s *Store) Locks(ctx context.Context, class string) ([]bolock.Row, error) {
	m, cols := s.Mapping(class), s.locks
	columns := append(append([]string(nil), m.Key...), cols.Names()...)
	rows, err := s.query(ctx, s.drv, m.Table, columns, sql.EQ(cols.Locked, true))
	if err != nil {
		return nil, fmt.Errorf("rowstore: listing locks of %s: %w", class, err)
	}
	return rows, nil
}

// ClearLock clears the lock flag of one row. A non-zero cutoff restricts
// the update to a lock taken at or before cutoff, so a lease renewed in the
// meantime is left alone. It reports whether a lock was cleared.
func (s *Store) ClearLock(ctx context.Context, class string, id bolock.Identity, cutoff time.Time) (bool, error) {
	cols := s.locks
	pred, err := where(id)
	if err != nil {
		return false, err
	}
	n, err := s.update(ctx, s.drv, s.Mapping(class).Table,
		map[string]any{cols.Locked: false},
		sql.And(pred, held(cols, cutoff)),
	)
	if err != nil {
		return false, fmt.Errorf("rowstore: clearing lock of %s (%s): %w", class, id, err)
	}
	return n > 0, nil
}

// ClearExpired clears every lock of class taken at or before cutoff and
// returns the number of rows changed. Locks with no timestamp count as
// expired.
func (s *Store) ClearExpired(ctx context.Context, class string, cutoff time.Time) (int64, error) {
	cols := s.locks
	n, err := s.update(ctx, s.drv, s.Mapping(class).Table,
		map[string]any{cols.Locked: false},
		held(cols, cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("rowstore: clearing expired locks of %s: %w", class, err)
	}
	return n, nil
}

func held(cols LockColumns, cutoff time.Time) sql.P {
	locked := sql.EQ(cols.Locked, true)
	if cutoff.IsZero() {
		return locked
	}
	return sql.And(locked, sql.Or(sql.IsNull(cols.Date), sql.LTE(cols.Date, cutoff)))
}
