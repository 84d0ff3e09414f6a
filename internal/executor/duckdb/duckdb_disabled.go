//go:build !duckdb

package duckdb

import (
	"context"
	"errors"

	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/executor"
)

var errDisabled = errors.New("DuckDB support not compiled in. Rebuild with -tags duckdb")

func init() {
	executor.Register(&disabledDriver{})
}

type disabledDriver struct{}

func (d *disabledDriver) Name() string     { return "duckdb" }
func (d *disabledDriver) DefaultPort() int { return 0 }

func (d *disabledDriver) Open(_ context.Context, _ string) (executor.Backend, error) {
	return nil, errDisabled
}

// disabledBackend is never instantiated but satisfies the interface at compile time.
var _ executor.Backend = (*disabledBackend)(nil)

type disabledBackend struct{}

func (b *disabledBackend) Query(_ context.Context, _ string) (*executor.ResultSet, error) {
	return nil, errDisabled
}
func (b *disabledBackend) Introspect(_ context.Context) ([]catalog.Model, error) {
	return nil, errDisabled
}
func (b *disabledBackend) Ping(_ context.Context) error { return errDisabled }
func (b *disabledBackend) Close() error                 { return errDisabled }
func (b *disabledBackend) Name() string                 { return "duckdb" }
func (b *disabledBackend) DatabaseName() string         { return "" }
