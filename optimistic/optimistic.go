// Package optimistic implements version-number concurrency control.
//
// No locks are taken. Every persisted object carries a version number that is
// incremented on each save; a check fails when the persisted version differs
// from the one held in memory. The comparison is strict equality, so a
// persisted version that is lower than the in-memory one is a conflict too.
//
// Detection and the write are separate steps. A persistence layer that wants
// to close the window between them issues a guarded update (see
// rowstore.Store.UpdateVersioned).
package optimistic

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/identity"
)

// Props are the business-object properties tracked by a VersionStore.
// All are required except OSUser, which is not tracked when nil.
type Props struct {
	Version            *bolock.Prop[int64]
	DateLastUpdated    *bolock.Prop[time.Time]
	UserLastUpdated    *bolock.Prop[string]
	MachineLastUpdated *bolock.Prop[string]
	OSUser             *bolock.Prop[string]
}

// VersionStore is the optimistic bolock.Control.
type VersionStore struct {
	obj      bolock.Object
	props    Props
	fetcher  bolock.RecordFetcher
	identity bolock.IdentityProvider
	now      func() time.Time
}

// Option configures the VersionStore.
type Option func(*VersionStore)

// WithFetcher sets the fetcher used to read the persisted row. Without a
// fetcher the store performs no persistence checks.
func WithFetcher(f bolock.RecordFetcher) Option {
	return func(s *VersionStore) {
		s.fetcher = f
	}
}

// WithIdentity sets the identity provider. Default is identity.OS.
func WithIdentity(p bolock.IdentityProvider) Option {
	return func(s *VersionStore) {
		s.identity = p
	}
}

// WithClock sets the time source. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *VersionStore) {
		s.now = now
	}
}

// New returns a VersionStore bound to obj. It panics if a required
// property is nil, as that is a programming error in the object definition.
func New(obj bolock.Object, props Props, opts ...Option) *VersionStore {
	if props.Version == nil || props.DateLastUpdated == nil || props.UserLastUpdated == nil || props.MachineLastUpdated == nil {
		panic(fmt.Sprintf("optimistic: %s: version, date, user and machine properties are required", obj.ClassName()))
	}
	s := &VersionStore{
		obj:      obj,
		props:    props,
		identity: identity.OS{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checked reports whether the store compares against persisted state.
func (s *VersionStore) Checked() bool { return s.fetcher != nil }

// Columns returns the persisted columns read by the checks.
func (s *VersionStore) Columns() []string {
	return []string{
		s.props.Version.Name(),
		s.props.DateLastUpdated.Name(),
		s.props.UserLastUpdated.Name(),
		s.props.MachineLastUpdated.Name(),
	}
}

// CheckBeforeBeginEdit fails with an EditConflictError when the object was
// saved by someone else since it was loaded.
func (s *VersionStore) CheckBeforeBeginEdit(ctx context.Context) error {
	return s.check(ctx, func(e bolock.Editor) error {
		return bolock.NewEditConflictError(s.obj.ClassName(), s.obj.ID(), e)
	})
}

// CheckBeforePersist fails with a PersistConflictError when the object was
// saved by someone else since it was loaded.
func (s *VersionStore) CheckBeforePersist(ctx context.Context) error {
	return s.check(ctx, func(e bolock.Editor) error {
		return bolock.NewPersistConflictError(s.obj.ClassName(), s.obj.ID(), e)
	})
}

func (s *VersionStore) check(ctx context.Context, mismatch func(bolock.Editor) error) error {
	if s.obj.IsNew() || s.fetcher == nil {
		return nil
	}
	class, id := s.obj.ClassName(), s.obj.ID()
	row, err := s.fetcher.FetchRow(ctx, class, id, s.Columns())
	switch {
	case bolock.IsNotFound(err):
		if s.obj.IsDeleted() {
			return nil
		}
		return bolock.NewRecordDeletedError(class, id)
	case err != nil:
		return fmt.Errorf("optimistic: fetching %s (%s): %w", class, id, err)
	}
	// An unset version and a NULL column both count as 0.
	persisted, _, err := row.Int64(s.props.Version.Name())
	if err != nil {
		return err
	}
	if persisted == s.props.Version.Value() {
		return nil
	}
	editor, err := row.Editor(s.props.UserLastUpdated.Name(), s.props.MachineLastUpdated.Name(), s.props.DateLastUpdated.Name())
	if err != nil {
		return err
	}
	return mismatch(editor)
}

// PrepareForPersist stamps the last-updated properties and increments the
// version number. Identity lookups that fail leave their property unchanged.
func (s *VersionStore) PrepareForPersist() {
	s.props.DateLastUpdated.Set(s.now())
	u, ok := s.identity.CurrentUser()
	identity.Stamp(s.props.UserLastUpdated, u, ok)
	identity.Stamp(s.props.OSUser, u, ok)
	m, ok := s.identity.MachineName()
	identity.Stamp(s.props.MachineLastUpdated, m, ok)
	v, _ := s.props.Version.Get()
	s.props.Version.Set(v + 1)
}

// Rollback undoes the version increment of PrepareForPersist. An unset
// version becomes 0.
func (s *VersionStore) Rollback() {
	v, ok := s.props.Version.Get()
	if !ok {
		s.props.Version.Set(0)
		return
	}
	s.props.Version.Set(v - 1)
}

// ReleaseLocks is a no-op: optimistic control holds no locks.
func (s *VersionStore) ReleaseLocks(context.Context) error { return nil }

var _ bolock.Control = (*VersionStore)(nil)
