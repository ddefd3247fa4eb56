// Package bolocktest provides business-object and clock fakes for tests.
package bolocktest

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/bolock"
)

// Object is a minimal bolock.Object.
type Object struct {
	Class   string
	Key     bolock.Identity
	Unsaved bool
	Deleted bool
}

// NewObject returns a persisted object of the given class with a random id.
func NewObject(class string) *Object {
	return &Object{Class: class, Key: bolock.ID("id", uuid.NewString())}
}

// ClassName implements bolock.Object.
func (o *Object) ClassName() string { return o.Class }

// ID implements bolock.Object.
func (o *Object) ID() bolock.Identity { return o.Key }

// IsNew implements bolock.Object.
func (o *Object) IsNew() bool { return o.Unsaved }

// IsDeleted implements bolock.Object.
func (o *Object) IsDeleted() bool { return o.Deleted }

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var _ bolock.Object = (*Object)(nil)
