// Package pessimistic implements lease-lock concurrency control.
//
// Beginning an edit takes a lock on the persisted row by setting its locked
// flag together with the lock time and the holder's user and machine. The
// lock is written immediately, outside the object's save transaction, so
// other sessions see it at once. A lock older than the configured duration
// is stale and ignored; readers never clear it, only the holder's
// ReleaseLocks (or the Sweeper) does.
package pessimistic

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/identity"
)

// Props are the business-object properties tracked by a LeaseStore.
// All are required except OSUserLocked, which is not tracked when nil.
type Props struct {
	Locked        *bolock.Prop[bool]
	DateLocked    *bolock.Prop[time.Time]
	UserLocked    *bolock.Prop[string]
	MachineLocked *bolock.Prop[string]
	OSUserLocked  *bolock.Prop[string]
}

// LeaseStore is the pessimistic bolock.Control.
type LeaseStore struct {
	obj      bolock.Object
	props    Props
	duration time.Duration
	fetcher  bolock.RecordFetcher
	writer   bolock.PersistenceWriter
	identity bolock.IdentityProvider
	now      func() time.Time
}

// Option configures the LeaseStore.
type Option func(*LeaseStore)

// WithFetcher sets the fetcher used to read the persisted row. Without a
// fetcher the store performs no persistence checks.
func WithFetcher(f bolock.RecordFetcher) Option {
	return func(s *LeaseStore) {
		s.fetcher = f
	}
}

// WithWriter sets the writer used for the immediate lock writes. Without a
// writer locks are only taken in memory.
func WithWriter(w bolock.PersistenceWriter) Option {
	return func(s *LeaseStore) {
		s.writer = w
	}
}

// WithStorage sets a backend that is both fetcher and writer.
func WithStorage[T interface {
	bolock.RecordFetcher
	bolock.PersistenceWriter
}](rw T) Option {
	return func(s *LeaseStore) {
		s.fetcher, s.writer = rw, rw
	}
}

// WithIdentity sets the identity provider. Default is identity.OS.
func WithIdentity(p bolock.IdentityProvider) Option {
	return func(s *LeaseStore) {
		s.identity = p
	}
}

// WithClock sets the time source. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LeaseStore) {
		s.now = now
	}
}

// New returns a LeaseStore bound to obj with the given lock duration.
// It panics if a required property is nil or the duration is not positive.
func New(obj bolock.Object, props Props, duration time.Duration, opts ...Option) *LeaseStore {
	if props.Locked == nil || props.DateLocked == nil || props.UserLocked == nil || props.MachineLocked == nil {
		panic(fmt.Sprintf("pessimistic: %s: locked, date, user and machine properties are required", obj.ClassName()))
	}
	if duration <= 0 {
		panic(fmt.Sprintf("pessimistic: %s: lock duration must be positive, got %s", obj.ClassName(), duration))
	}
	s := &LeaseStore{
		obj:      obj,
		props:    props,
		duration: duration,
		identity: identity.OS{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMinutes is New with the duration given in whole minutes.
func NewMinutes(obj bolock.Object, props Props, minutes int, opts ...Option) *LeaseStore {
	return New(obj, props, time.Duration(minutes)*time.Minute, opts...)
}

// Duration returns the lock duration.
func (s *LeaseStore) Duration() time.Duration { return s.duration }

// Checked reports whether the store compares against persisted state.
func (s *LeaseStore) Checked() bool { return s.fetcher != nil }

// Expired reports whether a lock taken at lockedAt has run out at now.
func Expired(lockedAt, now time.Time, d time.Duration) bool {
	return !lockedAt.After(now.Add(-d))
}

// Columns returns the persisted lock columns.
func (s *LeaseStore) Columns() []string {
	cols := []string{
		s.props.Locked.Name(),
		s.props.DateLocked.Name(),
		s.props.UserLocked.Name(),
		s.props.MachineLocked.Name(),
	}
	if s.props.OSUserLocked != nil {
		cols = append(cols, s.props.OSUserLocked.Name())
	}
	return cols
}

// fetch returns the persisted row, or nil when the row is missing and the
// object is marked for deletion.
func (s *LeaseStore) fetch(ctx context.Context) (bolock.Row, error) {
	class, id := s.obj.ClassName(), s.obj.ID()
	row, err := s.fetcher.FetchRow(ctx, class, id, s.Columns())
	switch {
	case bolock.IsNotFound(err):
		if s.obj.IsDeleted() {
			return nil, nil
		}
		return nil, bolock.NewRecordDeletedError(class, id)
	case err != nil:
		return nil, fmt.Errorf("pessimistic: fetching %s (%s): %w", class, id, err)
	}
	return row, nil
}

// CheckBeforeBeginEdit fails with a LockConflictError when another session
// holds a live lock on the row. Otherwise it takes the lock and writes it
// to storage before returning.
func (s *LeaseStore) CheckBeforeBeginEdit(ctx context.Context) error {
	if s.obj.IsNew() || s.fetcher == nil {
		return nil
	}
	row, err := s.fetch(ctx)
	if err != nil || row == nil {
		return err
	}
	now := s.now()
	locked, _, err := row.Bool(s.props.Locked.Name())
	if err != nil {
		return err
	}
	if locked {
		holder, err := row.Editor(s.props.UserLocked.Name(), s.props.MachineLocked.Name(), s.props.DateLocked.Name())
		if err != nil {
			return err
		}
		if !Expired(holder.Time, now, s.duration) {
			return bolock.NewLockConflictError(s.obj.ClassName(), s.obj.ID(), holder)
		}
	}
	s.props.Locked.Set(true)
	s.props.DateLocked.Set(now)
	u, ok := s.identity.CurrentUser()
	identity.Stamp(s.props.UserLocked, u, ok)
	identity.Stamp(s.props.OSUserLocked, u, ok)
	m, ok := s.identity.MachineName()
	identity.Stamp(s.props.MachineLocked, m, ok)

	// The local lock is kept even if the write fails; the caller sees the
	// error and decides whether to abandon the edit.
	fields := map[string]any{
		s.props.Locked.Name():        true,
		s.props.DateLocked.Name():    now,
		s.props.UserLocked.Name():    s.props.UserLocked.Any(),
		s.props.MachineLocked.Name(): s.props.MachineLocked.Any(),
	}
	if s.props.OSUserLocked != nil {
		fields[s.props.OSUserLocked.Name()] = s.props.OSUserLocked.Any()
	}
	return s.write(ctx, fields)
}

// CheckBeforePersist fails with a LockExpiredError when the lock held by
// this session ran out before the object could be written.
func (s *LeaseStore) CheckBeforePersist(ctx context.Context) error {
	if s.obj.IsNew() || s.fetcher == nil {
		return nil
	}
	if _, err := s.fetch(ctx); err != nil {
		return err
	}
	if !s.props.Locked.Value() {
		return nil
	}
	lockedAt, ok := s.props.DateLocked.Get()
	if ok && Expired(lockedAt, s.now(), s.duration) {
		return bolock.NewLockExpiredError(s.obj.ClassName(), s.obj.ID(), lockedAt, s.duration)
	}
	return nil
}

// PrepareForPersist is a no-op: the lock properties were stamped when the
// edit began.
func (s *LeaseStore) PrepareForPersist() {}

// Rollback is a no-op: the lock is not part of the save transaction.
func (s *LeaseStore) Rollback() {}

// ReleaseLocks clears the lock held by this session and writes the change
// immediately. It does nothing when no lock is held.
func (s *LeaseStore) ReleaseLocks(ctx context.Context) error {
	if !s.props.Locked.Value() {
		return nil
	}
	s.props.Locked.Set(false)
	return s.write(ctx, map[string]any{s.props.Locked.Name(): false})
}

func (s *LeaseStore) write(ctx context.Context, fields map[string]any) error {
	if s.writer == nil {
		return nil
	}
	if err := s.writer.WriteFields(ctx, s.obj.ClassName(), s.obj.ID(), fields); err != nil {
		names := make([]string, 0, len(fields))
		for _, c := range s.Columns() {
			if _, ok := fields[c]; ok {
				names = append(names, c)
			}
		}
		return &bolock.WriteError{Class: s.obj.ClassName(), Fields: names, Err: err}
	}
	return nil
}

var _ bolock.Control = (*LeaseStore)(nil)
