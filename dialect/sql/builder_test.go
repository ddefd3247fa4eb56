package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/bolock/dialect"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, `"contacts"`, Quote(dialect.Postgres, "contacts"))
	assert.Equal(t, "`app`.`contacts`", Quote(dialect.SQLite, "app.contacts"))
	assert.Equal(t, `"app"."contacts"`, Quote(dialect.Postgres, "app.contacts"))
	assert.Equal(t, "`contacts`", Quote(dialect.MySQL, "contacts"))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", Placeholder(dialect.Postgres, 3))
	assert.Equal(t, "?", Placeholder(dialect.MySQL, 3))
	assert.Equal(t, "?", Placeholder(dialect.SQLite, 1))
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"version_number", true},
		{"_private", true},
		{"app.contacts", true},
		{"", false},
		{"1col", false},
		{"col-name", false},
		{"col; DROP TABLE x", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidIdentifier(tt.input))
		})
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
	}{
		{"Postgres", dialect.Postgres, `SELECT "version_number", "user_last_updated" FROM "contacts" WHERE ("year" = $1 AND "no" = $2)`},
		{"MySQL", dialect.MySQL, "SELECT `version_number`, `user_last_updated` FROM `contacts` WHERE (`year` = ? AND `no` = ?)"},
		{"SQLite", dialect.SQLite, "SELECT `version_number`, `user_last_updated` FROM `contacts` WHERE (`year` = ? AND `no` = ?)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := Select(tt.dialect, "contacts",
				[]string{"version_number", "user_last_updated"},
				And(EQ("year", 2024), EQ("no", "A-1")),
			)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []any{2024, "A-1"}, args)
		})
	}
}

func TestUpdate(t *testing.T) {
	at := time.Date(2024, 5, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	query, args, err := Update(dialect.Postgres, "invoices",
		map[string]any{"locked": false, "user_locked": "bob", "date_locked": at},
		And(EQ("id", 7), Or(IsNull("date_locked"), LTE("date_locked", at))),
	)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "invoices" SET "date_locked" = $1, "locked" = $2, "user_locked" = $3 WHERE ("id" = $4 AND ("date_locked" IS NULL OR "date_locked" <= $5))`, query)
	require.Len(t, args, 5)
	assert.Equal(t, time.UTC, args[0].(time.Time).Location())
	assert.True(t, at.Equal(args[0].(time.Time)))
	assert.Equal(t, false, args[1])

	_, _, err = Update(dialect.Postgres, "invoices", nil, nil)
	require.Error(t, err)
}

func TestBuilderInvalidIdentifier(t *testing.T) {
	_, _, err := Select(dialect.SQLite, "contacts", []string{"name; --"}, nil)
	require.ErrorContains(t, err, "invalid identifier")
}
