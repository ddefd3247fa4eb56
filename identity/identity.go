// Package identity resolves the user and machine recorded on edits and locks.
package identity

import (
	"os"
	"os/user"

	"github.com/syssam/bolock"
)

// OS resolves identities from the operating system. Lookup failures (no
// permission, missing passwd entry, no host name) report ok == false.
type OS struct{}

// CurrentUser returns the login name of the current process user.
func (OS) CurrentUser() (string, bool) {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "", false
	}
	return u.Username, true
}

// MachineName returns the host name.
func (OS) MachineName() (string, bool) {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "", false
	}
	return h, true
}

// Static returns fixed values. An empty field is reported as unavailable.
type Static struct {
	User    string
	Machine string
}

// CurrentUser returns the configured user.
func (s Static) CurrentUser() (string, bool) { return s.User, s.User != "" }

// MachineName returns the configured machine.
func (s Static) MachineName() (string, bool) { return s.Machine, s.Machine != "" }

// Func adapts lookup functions to bolock.IdentityProvider.
type Func struct {
	User    func() (string, error)
	Machine func() (string, error)
}

// CurrentUser calls the user function. Errors and nil functions report
// the value as unavailable.
func (f Func) CurrentUser() (string, bool) { return call(f.User) }

// MachineName calls the machine function.
func (f Func) MachineName() (string, bool) { return call(f.Machine) }

func call(fn func() (string, error)) (string, bool) {
	if fn == nil {
		return "", false
	}
	v, err := fn()
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// Stamp sets p to the value when ok, and leaves it unchanged otherwise.
// A nil property is not tracked and is skipped.
func Stamp(p *bolock.Prop[string], v string, ok bool) {
	if p == nil || !ok {
		return
	}
	p.Set(v)
}

var (
	_ bolock.IdentityProvider = OS{}
	_ bolock.IdentityProvider = Static{}
	_ bolock.IdentityProvider = Func{}
)
