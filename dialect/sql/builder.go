package sql

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/bolock/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Quote quotes an identifier for the given dialect. A dotted identifier is
// quoted per part, so "app.contacts" becomes "app"."contacts".
// SQLite gets backticks: it reads a double-quoted name that matches no
// column as a string literal.
func Quote(d, ident string) string {
	q := `"`
	switch normalize(d) {
	case dialect.MySQL, dialect.SQLite:
		q = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = q + p + q
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the n-th (1-based) bind parameter for the dialect.
func Placeholder(d string, n int) string {
	if normalize(d) == dialect.Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Builder accumulates an SQL statement and its arguments.
// The first invalid identifier is kept and reported by Query.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
	err     error
}

// Dialect returns a Builder for the given dialect.
func Dialect(d string) *Builder {
	return &Builder{dialect: d}
}

// WriteString appends raw SQL.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier.
func (b *Builder) Ident(s string) *Builder {
	if !isValidIdentifier(s) && b.err == nil {
		b.err = fmt.Errorf("dialect/sql: invalid identifier %q", s)
	}
	b.sb.WriteString(Quote(b.dialect, s))
	return b
}

// Idents appends a comma separated list of quoted identifiers.
func (b *Builder) Idents(s ...string) *Builder {
	for i, c := range s {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(c)
	}
	return b
}

// Arg appends a placeholder and records its argument. Times are bound in
// UTC so that stored values compare consistently across sessions.
func (b *Builder) Arg(v any) *Builder {
	if t, ok := v.(time.Time); ok {
		v = t.UTC()
	}
	b.args = append(b.args, v)
	b.sb.WriteString(Placeholder(b.dialect, len(b.args)))
	return b
}

// Query returns the statement and its arguments.
func (b *Builder) Query() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return b.sb.String(), b.args, nil
}

// P is a predicate that writes itself into a Builder.
type P func(*Builder)

// EQ returns a "col = v" predicate.
func EQ(col string, v any) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(" = ").Arg(v)
	}
}

// LTE returns a "col <= v" predicate.
func LTE(col string, v any) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(" <= ").Arg(v)
	}
}

// IsNull returns a "col IS NULL" predicate.
func IsNull(col string) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	}
}

// And joins predicates with AND.
func And(ps ...P) P {
	return join(" AND ", ps)
}

// Or joins predicates with OR.
func Or(ps ...P) P {
	return join(" OR ", ps)
}

func join(op string, ps []P) P {
	return func(b *Builder) {
		if len(ps) > 1 {
			b.WriteString("(")
		}
		for i, p := range ps {
			if i > 0 {
				b.WriteString(op)
			}
			p(b)
		}
		if len(ps) > 1 {
			b.WriteString(")")
		}
	}
}

// Select builds "SELECT cols FROM table WHERE where".
func Select(d, table string, columns []string, where P) (string, []any, error) {
	b := Dialect(d).WriteString("SELECT ").Idents(columns...).WriteString(" FROM ").Ident(table)
	if where != nil {
		b.WriteString(" WHERE ")
		where(b)
	}
	return b.Query()
}

// Update builds "UPDATE table SET ... WHERE where". Columns are set in
// sorted order so that the statement text is stable.
func Update(d, table string, fields map[string]any, where P) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("dialect/sql: update %s: no fields", table)
	}
	b := Dialect(d).WriteString("UPDATE ").Ident(table).WriteString(" SET ")
	for i, c := range slices.Sorted(maps.Keys(fields)) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(fields[c])
	}
	if where != nil {
		b.WriteString(" WHERE ")
		where(b)
	}
	return b.Query()
}
