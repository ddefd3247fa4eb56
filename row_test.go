package bolock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/bolock"
)

func TestRowInt64(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		ok      bool
		wantErr bool
	}{
		{"nil", nil, 0, false, false},
		{"int64", int64(5), 5, true, false},
		{"int", 6, 6, true, false},
		{"uint8", uint8(7), 7, true, false},
		{"uint64", uint64(8), 8, true, false},
		{"float", float64(9), 9, true, false},
		{"fraction", 9.5, 0, false, true},
		{"bytes", []byte("10"), 10, true, false},
		{"text", " 11 ", 11, true, false},
		{"garbage", "eleven", 0, false, true},
		{"bool", true, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, err := bolock.Row{"v": tt.value}.Int64("v")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRowBool(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    bool
		ok      bool
		wantErr bool
	}{
		{"nil", nil, false, false, false},
		{"bool", true, true, true, false},
		{"one", int64(1), true, true, false},
		{"zero", 0, false, true, false},
		{"bytes", []byte("1"), true, true, false},
		{"text", "false", false, true, false},
		{"garbage", "maybe", false, false, true},
		{"time", time.Now(), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, err := bolock.Row{"v": tt.value}.Bool("v")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRowTime(t *testing.T) {
	want := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, value := range []any{
		want,
		"2020-01-01T10:00:00Z",
		"2020-01-01 10:00:00+00:00",
		"2020-01-01 10:00:00",
		[]byte("2020-01-01T10:00:00"),
		"2020-01-01 10:00:00.000",
	} {
		got, ok, err := bolock.Row{"t": value}.Time("t")
		require.NoError(t, err, "%v", value)
		assert.True(t, ok)
		assert.True(t, want.Equal(got), "%v parsed as %v", value, got)
	}

	_, ok, err := bolock.Row{}.Time("t")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = bolock.Row{"t": "01/02/2020"}.Time("t")
	var ts *bolock.TimestampError
	require.ErrorAs(t, err, &ts)
	assert.Equal(t, "t", ts.Column)

	_, _, err = bolock.Row{"t": 42}.Time("t")
	require.ErrorAs(t, err, &ts)
}

func TestRowTextAndEditor(t *testing.T) {
	row := bolock.Row{
		"user":    "alice",
		"machine": []byte("WS01"),
		"at":      "2020-01-01 10:00:00",
		"n":       3,
	}
	s, ok := row.Text("n")
	assert.True(t, ok)
	assert.Equal(t, "3", s)
	_, ok = row.Text("missing")
	assert.False(t, ok)

	e, err := row.Editor("user", "machine", "at")
	require.NoError(t, err)
	assert.Equal(t, "alice", e.User)
	assert.Equal(t, "WS01", e.Machine)
	assert.Equal(t, 2020, e.Time.Year())

	e, err = row.Editor("user", "", "")
	require.NoError(t, err)
	assert.Equal(t, bolock.Editor{User: "alice"}, e)
}

func TestIdentityAndProp(t *testing.T) {
	id := bolock.Identity{{Column: "a", Value: 1}, {Column: "b", Value: "x"}}
	assert.Equal(t, []string{"a", "b"}, id.Columns())
	assert.Equal(t, []any{1, "x"}, id.Values())
	assert.Equal(t, "a=1, b=x", id.String())
	assert.Equal(t, "no id", bolock.Identity{}.String())

	p := bolock.NewProp[int64]("version_number")
	assert.Equal(t, "version_number", p.Name())
	assert.False(t, p.Valid())
	assert.Nil(t, p.Any())
	p.Set(3)
	v, ok := p.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, int64(3), p.Any())
	p.Clear()
	assert.False(t, p.Valid())
	assert.Equal(t, int64(0), p.Value())
}
