// Package config loads the YAML configuration of the bolock tools.
//
//	dialect: postgres
//	dsn: postgres://app@db/app?sslmode=disable
//	lease_minutes: 15
//	tables:
//	  Invoice: {table: invoice, key: [year, no]}
//	  Contact: contacts
//	  Ticket: {table: tickets, key_type: string}
//	lock_columns:
//	  locked: is_locked
//	sweep:
//	  interval: 1m
//
// Column names that are not configured keep their defaults. An os_user lock
// column of "-" means the tables do not track the OS user.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/bolock/dialect"
	"github.com/syssam/bolock/dialect/sql/rowstore"
)

// DefaultLeaseMinutes is the lease duration used when none is configured.
const DefaultLeaseMinutes = 15

// Untracked as lock_columns.os_user means the tables have no OS user column.
const Untracked = "-"

// Config is the tool configuration.
type Config struct {
	Dialect        string                  `yaml:"dialect"`
	DSN            string                  `yaml:"dsn"`
	LeaseMinutes   int                     `yaml:"lease_minutes,omitempty"`
	Tables         map[string]Table        `yaml:"tables,omitempty"`
	VersionColumns rowstore.VersionColumns `yaml:"version_columns,omitempty"`
	LockColumns    rowstore.LockColumns    `yaml:"lock_columns,omitempty"`
	Sweep          Sweep                   `yaml:"sweep,omitempty"`
}

// Table maps a class to its table. In YAML it is either the table name or
// a mapping with table, key and key_type ("int" or "string").
type Table struct {
	Table   string     `yaml:"table"`
	Key     StringList `yaml:"key,omitempty"`
	KeyType string     `yaml:"key_type,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Table.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Table = node.Value
		return nil
	}
	type plain Table
	return node.Decode((*plain)(t))
}

// Sweep configures the expired-lock sweeper.
type Sweep struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Workers  int           `yaml:"workers,omitempty"`
}

// StringList is a YAML type that can be either a string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) defaults() {
	if c.LeaseMinutes == 0 {
		c.LeaseMinutes = DefaultLeaseMinutes
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = time.Minute
	}
	if c.Sweep.Workers == 0 {
		c.Sweep.Workers = 4
	}
	fill(&c.VersionColumns.Version, rowstore.DefaultVersionColumns.Version)
	fill(&c.VersionColumns.Date, rowstore.DefaultVersionColumns.Date)
	fill(&c.VersionColumns.User, rowstore.DefaultVersionColumns.User)
	fill(&c.VersionColumns.Machine, rowstore.DefaultVersionColumns.Machine)
	fill(&c.LockColumns.Locked, rowstore.DefaultLockColumns.Locked)
	fill(&c.LockColumns.Date, rowstore.DefaultLockColumns.Date)
	fill(&c.LockColumns.User, rowstore.DefaultLockColumns.User)
	fill(&c.LockColumns.Machine, rowstore.DefaultLockColumns.Machine)
	switch c.LockColumns.OSUser {
	case "":
		c.LockColumns.OSUser = rowstore.DefaultLockColumns.OSUser
	case Untracked:
		c.LockColumns.OSUser = ""
	}
}

func fill(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.Dialect {
	case dialect.Postgres, dialect.MySQL, dialect.SQLite:
	case "":
		errs = append(errs, errors.New("config: dialect is required"))
	default:
		errs = append(errs, fmt.Errorf("config: unsupported dialect %q", c.Dialect))
	}
	if c.LeaseMinutes < 0 {
		errs = append(errs, fmt.Errorf("config: lease_minutes must be positive, got %d", c.LeaseMinutes))
	}
	if c.Sweep.Interval < 0 || c.Sweep.Workers < 0 {
		errs = append(errs, errors.New("config: sweep interval and workers must be positive"))
	}
	for class, t := range c.Tables {
		if t.Table == "" {
			errs = append(errs, fmt.Errorf("config: class %s has no table", class))
		}
		switch rowstore.KeyType(t.KeyType) {
		case "", rowstore.KeyInt, rowstore.KeyString:
		default:
			errs = append(errs, fmt.Errorf("config: class %s has unsupported key_type %q", class, t.KeyType))
		}
	}
	return errors.Join(errs...)
}

// LeaseDuration returns the configured lease duration.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseMinutes) * time.Minute
}

// Classes returns the configured class names in sorted order.
func (c *Config) Classes() []string {
	return slices.Sorted(maps.Keys(c.Tables))
}

// StoreOptions returns the row store options for the configured tables and
// lock columns.
func (c *Config) StoreOptions() []rowstore.Option {
	opts := []rowstore.Option{rowstore.WithLockColumns(c.LockColumns)}
	for _, class := range c.Classes() {
		t := c.Tables[class]
		opts = append(opts, rowstore.WithTable(class, t.Table, t.Key...))
		if t.KeyType != "" {
			opts = append(opts, rowstore.WithKeyType(class, rowstore.KeyType(t.KeyType)))
		}
	}
	return opts
}
