package rowstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrContention is wrapped into errors caused by the database giving up on
// a row lock: lock wait timeouts, deadlocks, serialization failures and
// busy SQLite databases. Such a statement may succeed when reissued.
var ErrContention = errors.New("rowstore: lock contention")

// PostgreSQL SQLSTATE codes for lock contention.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// MySQL error numbers for lock contention.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// SQLite primary result codes for lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// sqliteCoder is implemented by modernc.org/sqlite errors.
type sqliteCoder interface {
	Code() int
}

// IsContention reports whether err resulted from lock contention in the
// database rather than from a bad statement or a lost connection.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContention) {
		return true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch string(pe.Code) {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlLockWaitTimeout || me.Number == mysqlDeadlock
	}
	var se sqliteCoder
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
		return false
	}
	// Fallback to string matching for drivers that return plain errors.
	return containsAny(err.Error(),
		"Error 1205",        // MySQL
		"Error 1213",        // MySQL
		"deadlock detected", // Postgres
		"database is locked",
		"SQLITE_BUSY",
	)
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classify marks contention errors with ErrContention.
func classify(err error) error {
	if err == nil || !IsContention(err) || errors.Is(err, ErrContention) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrContention, err)
}
