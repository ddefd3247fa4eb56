package bolock

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors for concurrency checks.
var (
	// ErrConflict is matched by every concurrency conflict below.
	ErrConflict = errors.New("bolock: concurrency conflict")

	// ErrNotFound is returned by a RecordFetcher when the row does not exist.
	ErrNotFound = errors.New("bolock: row not found")

	// ErrRecordDeleted is returned when the persisted row is gone but the
	// in-memory object is not marked for deletion.
	ErrRecordDeleted = errors.New("bolock: record deleted")

	// ErrEditConflict is returned when the version changed before editing began.
	ErrEditConflict = errors.New("bolock: edit conflict")

	// ErrPersistConflict is returned when the version changed before persisting.
	ErrPersistConflict = errors.New("bolock: persist conflict")

	// ErrLockConflict is returned when another session holds a live lease lock.
	ErrLockConflict = errors.New("bolock: lock conflict")

	// ErrLockExpired is returned when the session's own lease ran out before persisting.
	ErrLockExpired = errors.New("bolock: lock expired")
)

// timeLayout is used when rendering editor timestamps in messages.
const timeLayout = "2006-01-02 15:04:05"

// Editor describes the session that last touched a row: the last updater
// for optimistic locking, the lock holder for pessimistic locking.
type Editor struct {
	User    string
	Machine string
	Time    time.Time
}

func (e Editor) String() string {
	ts := "unknown time"
	if !e.Time.IsZero() {
		ts = e.Time.Format(timeLayout)
	}
	return fmt.Sprintf("user %q on machine %q at %s", e.User, e.Machine, ts)
}

// conflict holds the fields shared by all conflict errors.
type conflict struct {
	class string
	id    Identity
}

// Class returns the class name of the conflicting object.
func (c conflict) Class() string { return c.class }

// ID returns the identity of the conflicting object.
func (c conflict) ID() Identity { return c.id }

// RecordDeletedError reports that the persisted row no longer exists.
type RecordDeletedError struct{ conflict }

// NewRecordDeletedError returns a new RecordDeletedError.
func NewRecordDeletedError(class string, id Identity) *RecordDeletedError {
	return &RecordDeletedError{conflict{class: class, id: id}}
}

// Error returns the error string.
func (e *RecordDeletedError) Error() string {
	return fmt.Sprintf("bolock: %s (%s) was deleted by another user", e.class, e.id)
}

// Is reports whether the target error matches RecordDeletedError.
func (e *RecordDeletedError) Is(err error) bool {
	return err == ErrRecordDeleted || err == ErrConflict
}

// IsRecordDeleted returns true if the error is a RecordDeletedError.
func IsRecordDeleted(err error) bool {
	return err != nil && errors.Is(err, ErrRecordDeleted)
}

// EditConflictError reports a version mismatch detected at begin-edit time.
type EditConflictError struct {
	conflict
	Editor Editor
}

// NewEditConflictError returns a new EditConflictError.
func NewEditConflictError(class string, id Identity, editor Editor) *EditConflictError {
	return &EditConflictError{conflict: conflict{class: class, id: id}, Editor: editor}
}

// Error returns the error string.
func (e *EditConflictError) Error() string {
	return fmt.Sprintf("bolock: cannot edit %s (%s): edited by %s", e.class, e.id, e.Editor)
}

// Is reports whether the target error matches EditConflictError.
func (e *EditConflictError) Is(err error) bool {
	return err == ErrEditConflict || err == ErrConflict
}

// IsEditConflict returns true if the error is an EditConflictError.
func IsEditConflict(err error) bool {
	return err != nil && errors.Is(err, ErrEditConflict)
}

// PersistConflictError reports a version mismatch detected at persist time.
type PersistConflictError struct {
	conflict
	// Editor is zero when the conflict was detected by a guarded update
	// that could not read the competing row.
	Editor Editor
}

// NewPersistConflictError returns a new PersistConflictError.
func NewPersistConflictError(class string, id Identity, editor Editor) *PersistConflictError {
	return &PersistConflictError{conflict: conflict{class: class, id: id}, Editor: editor}
}

// Error returns the error string.
func (e *PersistConflictError) Error() string {
	if e.Editor == (Editor{}) {
		return fmt.Sprintf("bolock: cannot save %s (%s): edited by another user", e.class, e.id)
	}
	return fmt.Sprintf("bolock: cannot save %s (%s): edited by %s", e.class, e.id, e.Editor)
}

// Is reports whether the target error matches PersistConflictError.
func (e *PersistConflictError) Is(err error) bool {
	return err == ErrPersistConflict || err == ErrConflict
}

// IsPersistConflict returns true if the error is a PersistConflictError.
func IsPersistConflict(err error) bool {
	return err != nil && errors.Is(err, ErrPersistConflict)
}

// LockConflictError reports that another session holds a live lease lock.
type LockConflictError struct {
	conflict
	Holder Editor
}

// NewLockConflictError returns a new LockConflictError.
func NewLockConflictError(class string, id Identity, holder Editor) *LockConflictError {
	return &LockConflictError{conflict: conflict{class: class, id: id}, Holder: holder}
}

// Error returns the error string.
func (e *LockConflictError) Error() string {
	return fmt.Sprintf("bolock: cannot edit %s (%s): locked by %s", e.class, e.id, e.Holder)
}

// Is reports whether the target error matches LockConflictError.
func (e *LockConflictError) Is(err error) bool {
	return err == ErrLockConflict || err == ErrConflict
}

// IsLockConflict returns true if the error is a LockConflictError.
func IsLockConflict(err error) bool {
	return err != nil && errors.Is(err, ErrLockConflict)
}

// LockExpiredError reports that the session's own lease expired before the
// object could be persisted.
type LockExpiredError struct {
	conflict
	LockedAt time.Time
	Duration time.Duration
}

// NewLockExpiredError returns a new LockExpiredError.
func NewLockExpiredError(class string, id Identity, lockedAt time.Time, d time.Duration) *LockExpiredError {
	return &LockExpiredError{conflict: conflict{class: class, id: id}, LockedAt: lockedAt, Duration: d}
}

// Error returns the error string.
func (e *LockExpiredError) Error() string {
	return fmt.Sprintf("bolock: lock on %s (%s) taken at %s exceeded its duration of %s",
		e.class, e.id, e.LockedAt.Format(timeLayout), e.Duration)
}

// Is reports whether the target error matches LockExpiredError.
func (e *LockExpiredError) Is(err error) bool {
	return err == ErrLockExpired || err == ErrConflict
}

// IsLockExpired returns true if the error is a LockExpiredError.
func IsLockExpired(err error) bool {
	return err != nil && errors.Is(err, ErrLockExpired)
}

// IsConflict returns true if the error is any of the concurrency conflicts.
func IsConflict(err error) bool {
	return err != nil && errors.Is(err, ErrConflict)
}

// NotFoundError is returned by fetchers and writers when the addressed row
// does not exist.
type NotFoundError struct {
	class string
	id    Identity
}

// NewNotFoundError returns a new NotFoundError.
func NewNotFoundError(class string, id Identity) *NotFoundError {
	return &NotFoundError{class: class, id: id}
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bolock: %s not found (%s)", e.class, e.id)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// TimestampError is returned when a persisted timestamp column cannot be
// parsed. It is not a conflict and must not be retried.
type TimestampError struct {
	Column string
	Value  any
	Err    error
}

// Error returns the error string.
func (e *TimestampError) Error() string {
	return fmt.Sprintf("bolock: malformed timestamp in column %q (%v): %v", e.Column, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *TimestampError) Unwrap() error {
	return e.Err
}

// WriteError wraps a failed synchronous lock write.
type WriteError struct {
	Class  string
	Fields []string
	Err    error
}

// Error returns the error string.
func (e *WriteError) Error() string {
	return fmt.Sprintf("bolock: writing %v of %s: %v", e.Fields, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
