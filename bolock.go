// Package bolock provides concurrency control for persisted business objects.
//
// A business object owns one Control, created when the object is loaded and
// living as long as the object does. The object's edit/save pipeline calls the
// control at fixed points:
//
//	CheckBeforeBeginEdit  before the first change of an edit
//	CheckBeforePersist    immediately before the write is issued
//	PrepareForPersist     after the check, before the write
//	Rollback              when the write transaction fails
//	ReleaseLocks          after a successful write or a cancelled edit
//
// Two strategies implement Control:
//
//   - optimistic.VersionStore compares a version number on every check and
//     never takes locks.
//   - pessimistic.LeaseStore takes a lease lock when editing begins and
//     rejects edits of rows leased by another session.
//
// Stores never reach into global state: the RecordFetcher, PersistenceWriter
// and IdentityProvider are passed to their constructors. Session wraps the
// pipeline for callers that do not have their own.
package bolock

import (
	"context"
	"fmt"
	"strings"
)

// Control is the concurrency-control contract implemented by every strategy.
// A Control is bound to a single business object and is not safe for
// concurrent use.
type Control interface {
	// CheckBeforeBeginEdit verifies the object may be edited.
	CheckBeforeBeginEdit(ctx context.Context) error
	// CheckBeforePersist verifies the object may be written.
	CheckBeforePersist(ctx context.Context) error
	// PrepareForPersist stamps the tracking properties before the write.
	PrepareForPersist()
	// Rollback undoes PrepareForPersist after a failed write.
	Rollback()
	// ReleaseLocks releases any lock held for the object.
	ReleaseLocks(ctx context.Context) error
}

// Object is the business object as seen by a concurrency control.
type Object interface {
	// ClassName is the business-object class, used to address storage.
	ClassName() string
	// ID is the primary identity of the object.
	ID() Identity
	// IsNew reports whether the object has never been persisted.
	IsNew() bool
	// IsDeleted reports whether the object is marked for deletion.
	IsDeleted() bool
}

// RecordFetcher reads the current persisted row of an object.
// A missing row is reported with an error matching IsNotFound.
type RecordFetcher interface {
	FetchRow(ctx context.Context, class string, id Identity, columns []string) (Row, error)
}

// PersistenceWriter writes field values of a persisted object immediately,
// outside of the object's own save transaction.
type PersistenceWriter interface {
	WriteFields(ctx context.Context, class string, id Identity, fields map[string]any) error
}

// IdentityProvider resolves the principal and host recorded on edits and
// locks. Both lookups are best-effort: ok is false when the value is
// unavailable, and the caller leaves the target property untouched.
type IdentityProvider interface {
	CurrentUser() (name string, ok bool)
	MachineName() (name string, ok bool)
}

// KeyValue is one column of an object identity.
type KeyValue struct {
	Column string
	Value  any
}

// Identity is the ordered primary key of a business object.
type Identity []KeyValue

// ID returns a single-column identity.
func ID(column string, value any) Identity {
	return Identity{{Column: column, Value: value}}
}

// Columns returns the key column names in order.
func (id Identity) Columns() []string {
	cols := make([]string, len(id))
	for i, kv := range id {
		cols[i] = kv.Column
	}
	return cols
}

// Values returns the key values in order.
func (id Identity) Values() []any {
	vs := make([]any, len(id))
	for i, kv := range id {
		vs[i] = kv.Value
	}
	return vs
}

// String renders the identity as "col=value" pairs.
func (id Identity) String() string {
	if len(id) == 0 {
		return "no id"
	}
	parts := make([]string, len(id))
	for i, kv := range id {
		parts[i] = fmt.Sprintf("%s=%v", kv.Column, kv.Value)
	}
	return strings.Join(parts, ", ")
}

// Prop is a nullable property owned by a business object. Stores keep
// pointers to the owner's props and update them in place.
type Prop[T any] struct {
	name  string
	value T
	valid bool
}

// NewProp returns an unset property persisted in the given column.
func NewProp[T any](name string) *Prop[T] {
	return &Prop[T]{name: name}
}

// Name returns the persisted column name.
func (p *Prop[T]) Name() string { return p.name }

// Get returns the value and whether it is set.
func (p *Prop[T]) Get() (T, bool) { return p.value, p.valid }

// Value returns the value, or the zero value when unset.
func (p *Prop[T]) Value() T { return p.value }

// Set sets the value.
func (p *Prop[T]) Set(v T) {
	p.value, p.valid = v, true
}

// Clear unsets the value.
func (p *Prop[T]) Clear() {
	var zero T
	p.value, p.valid = zero, false
}

// Valid reports whether the value is set.
func (p *Prop[T]) Valid() bool { return p.valid }

// Any returns the value for writing, nil when unset.
func (p *Prop[T]) Any() any {
	if !p.valid {
		return nil
	}
	return p.value
}
