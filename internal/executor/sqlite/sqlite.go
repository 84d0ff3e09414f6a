// Package sqlite implements the executor.Backend interface on top of
// the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/executor"

	_ "modernc.org/sqlite"
)

func init() {
	executor.Register(&sqliteDriver{})
}

type sqliteDriver struct{}

func (d *sqliteDriver) Name() string     { return "sqlite" }
func (d *sqliteDriver) DefaultPort() int { return 0 }

func (d *sqliteDriver) Open(ctx context.Context, dsn string) (executor.Backend, error) {
	dsn = normalizeDSN(dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite enable foreign keys: %w", err)
	}

	dbName := dsn
	if dsn != ":memory:" {
		dbName = filepath.Base(dsn)
	}

	return &sqliteBackend{
		db:     db,
		dbName: dbName,
	}, nil
}

// normalizeDSN strips common SQLite URI prefixes.
func normalizeDSN(dsn string) string {
	if strings.HasPrefix(dsn, "sqlite://") {
		return strings.TrimPrefix(dsn, "sqlite://")
	}
	if strings.HasPrefix(dsn, "file:") {
		return strings.TrimPrefix(dsn, "file:")
	}
	return dsn
}

type sqliteBackend struct {
	db     *sql.DB
	dbName string
}

func (b *sqliteBackend) Name() string         { return "sqlite" }
func (b *sqliteBackend) DatabaseName() string { return b.dbName }

func (b *sqliteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func (b *sqliteBackend) Query(ctx context.Context, stmt string) (*executor.ResultSet, error) {
	start := time.Now()

	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("sqlite column types: %w", err)
	}

	cols := make([]executor.ColumnMeta, len(colTypes))
	for i, ct := range colTypes {
		cols[i] = executor.ColumnMeta{
			Name: ct.Name(),
			Type: ct.DatabaseTypeName(),
		}
	}

	var resultRows [][]string
	scanDest := make([]any, len(cols))
	for i := range scanDest {
		scanDest[i] = new(sql.NullString)
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range scanDest {
			ns := v.(*sql.NullString)
			if ns.Valid {
				row[i] = ns.String
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("sqlite rows: %w", err)
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

// Introspect builds catalog models for every user table and view in the
// opened file, using sqlite_master plus the table_info and
// foreign_key_list pragmas.
func (b *sqliteBackend) Introspect(ctx context.Context) ([]catalog.Model, error) {
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

func (b *sqliteBackend) listTables(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite tables scan: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (b *sqliteBackend) columns(ctx context.Context, table string) ([]catalog.Column, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("sqlite columns: %w", err)
	}
	defer rows.Close()

	var columns []catalog.Column
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("sqlite columns scan: %w", err)
		}
		columns = append(columns, catalog.Column{
			Name: name,
			Type: colType,
			IsPK: pk > 0,
		})
	}
	return columns, rows.Err()
}

func (b *sqliteBackend) foreignKeys(ctx context.Context, table string) ([]catalog.Relationship, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("sqlite foreign_key_list: %w", err)
	}
	defer rows.Close()

	var rels []catalog.Relationship
	for rows.Next() {
		var (
			id       int
			seq      int
			refTable string
			from     string
			to       string
			onUpdate string
			onDelete string
			match    string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("sqlite foreign_key_list scan: %w", err)
		}
		rels = append(rels, catalog.Relationship{
			Column:    from,
			RefTable:  refTable,
			RefColumn: to,
		})
	}
	return rels, rows.Err()
}
