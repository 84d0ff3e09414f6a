// Package executor defines the database backend interface the secure
// pipeline runs validated statements through, and a registry the
// concrete backends install themselves into. A backend only ever sees
// statements that already passed validation and rewriting; it has no
// say in what is safe.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/sadopc/sqlgate/internal/catalog"
)

var (
	ErrNotConnected = errors.New("not connected to database")
	ErrCancelled    = errors.New("query cancelled")
)

// Driver opens connections to one kind of database.
type Driver interface {
	Open(ctx context.Context, dsn string) (Backend, error)
	Name() string
	DefaultPort() int
}

// Backend is an open connection capable of running read queries and
// describing its schema.
type Backend interface {
	// Query runs a single read statement and materializes the result.
	Query(ctx context.Context, stmt string) (*ResultSet, error)

	// Introspect returns the models visible to this connection, for
	// catalog snapshots built from a live database.
	Introspect(ctx context.Context) ([]catalog.Model, error)

	Ping(ctx context.Context) error
	Close() error

	Name() string
	DatabaseName() string
}

// ResultSet holds a fully materialized query result. Row values are
// rendered to strings; NULL renders as the empty string.
type ResultSet struct {
	Columns  []ColumnMeta
	Rows     [][]string
	RowCount int64
	Duration time.Duration
}

// ColumnMeta describes one result column.
type ColumnMeta struct {
	Name string
	Type string
}

// Registry holds registered drivers by name.
var Registry = map[string]Driver{}

// Register adds a driver to the global registry.
func Register(d Driver) {
	Registry[d.Name()] = d
}
