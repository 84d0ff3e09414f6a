// Package postgres implements the executor.Backend interface on top of
// pgx connection pools.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sadopc/sqlgate/internal/catalog"
	"github.com/sadopc/sqlgate/internal/executor"
)

func init() {
	executor.Register(&pgDriver{})
}

type pgDriver struct{}

func (d *pgDriver) Name() string     { return "postgres" }
func (d *pgDriver) DefaultPort() int { return 5432 }

func (d *pgDriver) Open(ctx context.Context, dsn string) (executor.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &pgBackend{
		pool:   pool,
		dbName: extractDBName(dsn),
	}, nil
}

// extractDBName parses the database name from the DSN.
func extractDBName(dsn string) string {
	if dsn == "" {
		return ""
	}
	// URL format first (postgres://... or postgresql://...)
	u, err := url.Parse(dsn)
	if err == nil && u.Scheme != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	// Fallback: keyword=value format (e.g. "host=localhost dbname=myapp")
	for _, part := range strings.Fields(dsn) {
		if strings.HasPrefix(part, "dbname=") {
			return strings.TrimPrefix(part, "dbname=")
		}
	}
	return ""
}

// pgBackend implements executor.Backend for PostgreSQL.
type pgBackend struct {
	pool   *pgxpool.Pool
	dbName string
}

func (b *pgBackend) Name() string         { return "postgres" }
func (b *pgBackend) DatabaseName() string { return b.dbName }

func (b *pgBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *pgBackend) Close() error {
	b.pool.Close()
	return nil
}

func (b *pgBackend) Query(ctx context.Context, stmt string) (*executor.ResultSet, error) {
	start := time.Now()

	rows, err := b.pool.Query(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols := fieldDescToMeta(rows.FieldDescriptions())

	var result [][]string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("query values: %w", err)
		}
		result = append(result, executor.ValuesToStrings(vals))
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, executor.ErrCancelled
		}
		return nil, fmt.Errorf("query rows: %w", err)
	}

	return &executor.ResultSet{
		Columns:  cols,
		Rows:     result,
		RowCount: int64(len(result)),
		Duration: time.Since(start),
	}, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Introspect builds catalog models for every base table and view in the
// user-visible schemas of the connected database. Tables in the public
// schema are named bare; others keep their schema qualifier.
func (b *pgBackend) Introspect(ctx context.Context) ([]catalog.Model, error) {
	tables, err := b.listTables(ctx)
	if err != nil {
		return nil, err
	}

	columns, err := b.allColumns(ctx)
	if err != nil {
		return nil, err
	}

	pks, err := b.primaryKeyColumns(ctx)
	if err != nil {
		return nil, err
	}

	rels, err := b.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]catalog.Model, 0, len(tables))
	for _, t := range tables {
		m := catalog.Model{Name: modelName(t.schema, t.name)}
		key := t.schema + "." + t.name
		for _, col := range columns[key] {
			col.IsPK = pks[key][col.Name]
			m.Columns = append(m.Columns, col)
		}
		m.Relationships = rels[key]
		models = append(models, m)
	}
	return models, nil
}

type tableRef struct {
	schema string
	name   string
}

func modelName(schema, table string) string {
	if schema == "public" {
		return table
	}
	return schema + "." + table
}

func (b *pgBackend) listTables(ctx context.Context) ([]tableRef, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT table_schema, table_name
		 FROM information_schema.tables
		 WHERE table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		   AND table_type IN ('BASE TABLE', 'VIEW')
		 ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, fmt.Errorf("tables scan: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// allColumns loads every column of every user table in one query, keyed
// by "schema.table".
func (b *pgBackend) allColumns(ctx context.Context) (map[string][]catalog.Column, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT table_schema, table_name, column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		 ORDER BY table_schema, table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()

	cols := make(map[string][]catalog.Column)
	for rows.Next() {
		var schemaName, table, name, dtype string
		if err := rows.Scan(&schemaName, &table, &name, &dtype); err != nil {
			return nil, fmt.Errorf("columns scan: %w", err)
		}
		key := schemaName + "." + table
		cols[key] = append(cols[key], catalog.Column{Name: name, Type: dtype})
	}
	return cols, rows.Err()
}

// primaryKeyColumns returns the primary key column set per "schema.table".
func (b *pgBackend) primaryKeyColumns(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT n.nspname, t.relname, a.attname
		 FROM pg_index i
		 JOIN pg_class t ON t.oid = i.indrelid
		 JOIN pg_namespace n ON n.oid = t.relnamespace
		 JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		 WHERE i.indisprimary
		   AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`)
	if err != nil {
		return nil, fmt.Errorf("primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string]map[string]bool)
	for rows.Next() {
		var schemaName, table, col string
		if err := rows.Scan(&schemaName, &table, &col); err != nil {
			return nil, fmt.Errorf("primary keys scan: %w", err)
		}
		key := schemaName + "." + table
		if pks[key] == nil {
			pks[key] = make(map[string]bool)
		}
		pks[key][col] = true
	}
	return pks, rows.Err()
}

// foreignKeys returns relationships per "schema.table".
func (b *pgBackend) foreignKeys(ctx context.Context) (map[string][]catalog.Relationship, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT tc.table_schema,
		        tc.table_name,
		        kcu.column_name,
		        ccu.table_schema AS ref_schema,
		        ccu.table_name   AS ref_table,
		        ccu.column_name  AS ref_column
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		      ON kcu.constraint_name = tc.constraint_name
		     AND kcu.table_schema    = tc.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		      ON ccu.constraint_name = tc.constraint_name
		     AND ccu.table_schema    = tc.table_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		 ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer rows.Close()

	rels := make(map[string][]catalog.Relationship)
	for rows.Next() {
		var schemaName, table, col, refSchema, refTable, refCol string
		if err := rows.Scan(&schemaName, &table, &col, &refSchema, &refTable, &refCol); err != nil {
			return nil, fmt.Errorf("foreign keys scan: %w", err)
		}
		key := schemaName + "." + table
		rels[key] = append(rels[key], catalog.Relationship{
			Column:    col,
			RefTable:  modelName(refSchema, refTable),
			RefColumn: refCol,
		})
	}
	return rels, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// fieldDescToMeta converts pgx field descriptions to column metadata.
func fieldDescToMeta(fds []pgconn.FieldDescription) []executor.ColumnMeta {
	cols := make([]executor.ColumnMeta, len(fds))
	for i, fd := range fds {
		cols[i] = executor.ColumnMeta{
			Name: fd.Name,
			Type: pgTypeOIDToName(fd.DataTypeOID),
		}
	}
	return cols
}

// pgTypeOIDToName maps common PostgreSQL type OIDs to human-readable names.
func pgTypeOIDToName(oid uint32) string {
	switch oid {
	case 16:
		return "bool"
	case 17:
		return "bytea"
	case 20:
		return "int8"
	case 21:
		return "int2"
	case 23:
		return "int4"
	case 25:
		return "text"
	case 114:
		return "json"
	case 700:
		return "float4"
	case 701:
		return "float8"
	case 790:
		return "money"
	case 1007:
		return "int4[]"
	case 1009:
		return "text[]"
	case 1016:
		return "int8[]"
	case 1042:
		return "bpchar"
	case 1043:
		return "varchar"
	case 1082:
		return "date"
	case 1083:
		return "time"
	case 1114:
		return "timestamp"
	case 1184:
		return "timestamptz"
	case 1186:
		return "interval"
	case 1700:
		return "numeric"
	case 2950:
		return "uuid"
	case 3802:
		return "jsonb"
	default:
		return fmt.Sprintf("oid:%d", oid)
	}
}
