package identity_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/bolock"
	"github.com/syssam/bolock/identity"
)

func TestOS(t *testing.T) {
	host, err := os.Hostname()
	name, ok := identity.OS{}.MachineName()
	if err == nil && host != "" {
		assert.True(t, ok)
		assert.Equal(t, host, name)
	} else {
		assert.False(t, ok)
	}
}

func TestStatic(t *testing.T) {
	s := identity.Static{User: "alice"}
	u, ok := s.CurrentUser()
	assert.True(t, ok)
	assert.Equal(t, "alice", u)
	_, ok = s.MachineName()
	assert.False(t, ok)
}

func TestFunc(t *testing.T) {
	f := identity.Func{
		User:    func() (string, error) { return "", errors.New("permission denied") },
		Machine: func() (string, error) { return "WS01", nil },
	}
	_, ok := f.CurrentUser()
	assert.False(t, ok)
	m, ok := f.MachineName()
	assert.True(t, ok)
	assert.Equal(t, "WS01", m)

	_, ok = identity.Func{}.CurrentUser()
	assert.False(t, ok)
}

func TestStamp(t *testing.T) {
	p := bolock.NewProp[string]("user_last_updated")
	p.Set("previous")

	identity.Stamp(p, "ignored", false)
	assert.Equal(t, "previous", p.Value())

	identity.Stamp(p, "bob", true)
	assert.Equal(t, "bob", p.Value())

	assert.NotPanics(t, func() { identity.Stamp(nil, "bob", true) })
}
