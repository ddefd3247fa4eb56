package rowstore

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/bolock/dialect"
)

// VersionColumns names the version tracking columns of a table.
type VersionColumns struct {
	Version string `yaml:"version"`
	Date    string `yaml:"date"`
	User    string `yaml:"user"`
	Machine string `yaml:"machine"`
}

// DefaultVersionColumns are the version column names used when none are configured.
var DefaultVersionColumns = VersionColumns{
	Version: "version_number",
	Date:    "date_last_updated",
	User:    "user_last_updated",
	Machine: "machine_last_updated",
}

// Names returns the configured column names in a stable order.
func (c VersionColumns) Names() []string {
	return []string{c.Version, c.Date, c.User, c.Machine}
}

// VersionTable describes the table of m with the version tracking columns.
// Tracking columns are nullable so they can be added to populated tables.
func VersionTable(m Mapping, c VersionColumns) *schema.Table {
	return table(m,
		schema.NewIntColumn(c.Version, "bigint").SetNull(true),
		schema.NewTimeColumn(c.Date, "timestamp").SetNull(true),
		schema.NewStringColumn(c.User, "varchar", schema.StringSize(255)).SetNull(true),
		schema.NewStringColumn(c.Machine, "varchar", schema.StringSize(255)).SetNull(true),
	)
}

// LeaseTable describes the table of m with the lease columns.
func LeaseTable(m Mapping, c LockColumns) *schema.Table {
	cols := []*schema.Column{
		schema.NewBoolColumn(c.Locked, "boolean").SetNull(true),
		schema.NewTimeColumn(c.Date, "timestamp").SetNull(true),
		schema.NewStringColumn(c.User, "varchar", schema.StringSize(255)).SetNull(true),
		schema.NewStringColumn(c.Machine, "varchar", schema.StringSize(255)).SetNull(true),
	}
	if c.OSUser != "" {
		cols = append(cols, schema.NewStringColumn(c.OSUser, "varchar", schema.StringSize(255)).SetNull(true))
	}
	return table(m, cols...)
}

func table(m Mapping, cols ...*schema.Column) *schema.Table {
	t := schema.NewTable(m.Table)
	key := make([]*schema.Column, len(m.Key))
	for i, k := range m.Key {
		switch m.KeyType {
		case KeyString:
			key[i] = schema.NewStringColumn(k, "varchar", schema.StringSize(255))
		default:
			key[i] = schema.NewIntColumn(k, "bigint")
		}
	}
	t.AddColumns(key...)
	t.AddColumns(cols...)
	t.SetPrimaryKey(schema.NewPrimaryKey(key...))
	return t
}

// Migrate creates the missing tables and adds the missing tracking columns
// to existing ones. It never drops or alters a column; an existing column
// of an incompatible type fails the migration with ValidationErrors. Descriptors of the
// same table are merged, so a table may carry both column sets.
func Migrate(ctx context.Context, d string, db *stdsql.DB, tables ...*schema.Table) error {
	drv, err := open(d, db)
	if err != nil {
		return err
	}
	tables = merge(tables)
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	current, err := drv.InspectSchema(ctx, "", &schema.InspectOptions{Tables: names})
	if err != nil {
		return fmt.Errorf("rowstore: inspecting schema: %w", err)
	}
	var (
		changes []schema.Change
		invalid ValidationErrors
	)
	for _, t := range tables {
		existing, ok := current.Table(t.Name)
		if !ok {
			t.SetSchema(current)
			changes = append(changes, &schema.AddTable{T: t})
			continue
		}
		var add []schema.Change
		for _, c := range t.Columns {
			if isKey(t, c) {
				continue
			}
			have, ok := existing.Column(c.Name)
			if !ok {
				add = append(add, &schema.AddColumn{C: c})
				continue
			}
			if err := validateColumn(t.Name, have, c); err != nil {
				invalid = append(invalid, err)
			}
		}
		if len(add) > 0 {
			changes = append(changes, &schema.ModifyTable{T: existing, Changes: add})
		}
	}
	if len(invalid) > 0 {
		return invalid
	}
	if len(changes) == 0 {
		return nil
	}
	if err := drv.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("rowstore: applying schema changes: %w", err)
	}
	return nil
}

// isKey reports whether c is part of the primary key of t. Key columns of
// existing tables are left as they are.
func isKey(t *schema.Table, c *schema.Column) bool {
	if t.PrimaryKey == nil {
		return false
	}
	for _, p := range t.PrimaryKey.Parts {
		if p.C == c {
			return true
		}
	}
	return false
}

func merge(tables []*schema.Table) []*schema.Table {
	var (
		out    []*schema.Table
		byName = make(map[string]*schema.Table)
	)
	for _, t := range tables {
		first, ok := byName[t.Name]
		if !ok {
			byName[t.Name] = t
			out = append(out, t)
			continue
		}
		for _, c := range t.Columns {
			if _, ok := first.Column(c.Name); !ok {
				first.AddColumns(c)
			}
		}
	}
	return out
}

func open(d string, db *stdsql.DB) (migrate.Driver, error) {
	switch d {
	case dialect.SQLite:
		return sqlite.Open(db)
	case dialect.Postgres:
		return postgres.Open(db)
	case dialect.MySQL:
		return mysql.Open(db)
	default:
		return nil, fmt.Errorf("rowstore: unsupported dialect %q", d)
	}
}
