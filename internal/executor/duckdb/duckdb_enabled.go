//go:build duckdb

package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/executor"
)

func init() {
	executor.Register(&duckdbDriver{})
}

type duckdbDriver struct{}

func (d *duckdbDriver) Name() string     { return "duckdb" }
func (d *duckdbDriver) DefaultPort() int { return 0 }

func (d *duckdbDriver) Open(ctx context.Context, dsn string) (executor.Backend, error) {
	dsn = strings.TrimPrefix(dsn, "duckdb://")
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}

	return &duckdbBackend{db: db, dsn: dsn}, nil
}

type duckdbBackend struct {
	db  *sql.DB
	dsn string
}

func (b *duckdbBackend) Name() string         { return "duckdb" }
func (b *duckdbBackend) DatabaseName() string { return b.dsn }

func (b *duckdbBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *duckdbBackend) Close() error {
	return b.db.Close()
}

func (b *duckdbBackend) Query(ctx context.Context, stmt string) (*executor.ResultSet, error) {
	start := time.Now()

	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("duckdb: query: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("duckdb: column types: %w", err)
	}

	cols := make([]executor.ColumnMeta, len(colTypes))
	for i, ct := range colTypes {
		cols[i] = executor.ColumnMeta{
			Name: ct.Name(),
			Type: ct.DatabaseTypeName(),
		}
	}

	var resultRows [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("duckdb: scan: %w", err)
		}
		resultRows = append(resultRows, executor.ValuesToStrings(values))
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("duckdb: rows: %w", err)
	}

	return &executor.ResultSet{
		Columns:  cols,
		Rows:     resultRows,
		RowCount: int64(len(resultRows)),
		Duration: time.Since(start),
	}, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Introspect builds catalog models for every table and view in the main
// schema of the opened database.
func (b *duckdbBackend) Introspect(ctx context.Context) ([]catalog.Model, error) {
	tables, err := b.listTables(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]catalog.Model, 0, len(tables))
	for _, t := range tables {
		cols, err := b.columns(ctx, t)
		if err != nil {
			return nil, err
		}
		rels, err := b.foreignKeys(ctx, t)
		if err != nil {
			return nil, err
		}
		models = append(models, catalog.Model{
			Name:          t,
			Columns:       cols,
			Relationships: rels,
		})
	}
	return models, nil
}

func (b *duckdbBackend) listTables(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("duckdb: tables scan: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (b *duckdbBackend) columns(ctx context.Context, table string) ([]catalog.Column, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT column_name,
		       data_type,
		       CASE WHEN column_name IN (
		           SELECT kcu.column_name
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = 'main'
		             AND tc.table_name      = ?
		       ) THEN true ELSE false END
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, table, table)
	if err != nil {
		return nil, fmt.Errorf("duckdb: columns: %w", err)
	}
	defer rows.Close()

	var cols []catalog.Column
	for rows.Next() {
		var col catalog.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.IsPK); err != nil {
			return nil, fmt.Errorf("duckdb: columns scan: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (b *duckdbBackend) foreignKeys(ctx context.Context, table string) ([]catalog.Relationship, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT kcu.column_name,
		       kcu2.table_name  AS ref_table,
		       kcu2.column_name AS ref_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
		  ON rc.constraint_schema = kcu.constraint_schema
		 AND rc.constraint_name   = kcu.constraint_name
		JOIN information_schema.key_column_usage kcu2
		  ON rc.unique_constraint_schema = kcu2.constraint_schema
		 AND rc.unique_constraint_name   = kcu2.constraint_name
		 AND kcu.ordinal_position        = kcu2.ordinal_position
		WHERE kcu.table_schema = 'main' AND kcu.table_name = ?
		ORDER BY rc.constraint_name, kcu.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("duckdb: foreign keys: %w", err)
	}
	defer rows.Close()

	var rels []catalog.Relationship
	for rows.Next() {
		var rel catalog.Relationship
		if err := rows.Scan(&rel.Column, &rel.RefTable, &rel.RefColumn); err != nil {
			return nil, fmt.Errorf("duckdb: foreign keys scan: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
