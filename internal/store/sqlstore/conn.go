package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flatbridge/flatbridge/internal/sqlbuild"
	"github.com/flatbridge/flatbridge/internal/store"
)

type Conn struct {
	conn    *sql.Conn
	dialect store.Dialect
}

// NewConn wraps an already acquired connection.
func NewConn(conn *sql.Conn, dialect store.Dialect) *Conn {
	return &Conn{conn: conn, dialect: dialect}
}

func (c *Conn) Dialect() store.Dialect {
	return c.dialect
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", store.ErrConnection, err)
	}
	return nil
}

func (c *Conn) ListTables(ctx context.Context, schema string) ([]string, error) {
	query := `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	var args []any
	if schema != "" {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = ` +
			sqlbuild.Placeholder(c.dialect, 1) + ` ORDER BY table_name`
		args = append(args, schema)
	}

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %w", store.ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan table name: %w", store.ErrQuery, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tables: %w", store.ErrQuery, err)
	}
	return tables, nil
}

func (c *Conn) DescribeTable(ctx context.Context, table string) ([]store.ColumnDefinition, error) {
	query := `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ` +
		sqlbuild.Placeholder(c.dialect, 1) + ` AND table_schema = current_schema() ORDER BY ordinal_position`

	rows, err := c.conn.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: describe %s: %w", store.ErrQuery, table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]store.ColumnDefinition, 0)
	for rows.Next() {
		var column store.ColumnDefinition
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("%w: scan column: %w", store.ErrQuery, err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate columns: %w", store.ErrQuery, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrTableNotFound, table)
	}
	return columns, nil
}

func (c *Conn) Query(ctx context.Context, statement string) (store.RowCursor, error) {
	rows, err := c.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", store.ErrQuery, err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("%w: query columns: %w", store.ErrQuery, err)
	}
	return &cursor{rows: rows, columns: columns}, nil
}

func (c *Conn) ExecDDL(ctx context.Context, statement string) error {
	if _, err := c.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("%w: ddl: %w", store.ErrQuery, err)
	}
	return nil
}

func (c *Conn) BatchInsert(ctx context.Context, statement string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin batch: %w", store.ErrQuery, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, statement)
	if err != nil {
		return fmt.Errorf("%w: prepare batch: %w", store.ErrQuery, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("%w: insert batch row %d: %w", store.ErrQuery, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit batch: %w", store.ErrQuery, err)
	}
	committed = true
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

type cursor struct {
	rows    *sql.Rows
	columns []string
	values  []any
	err     error
}

func (c *cursor) Columns() []string {
	return c.columns
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	values := make([]any, len(c.columns))
	targets := make([]any, len(c.columns))
	for i := range values {
		targets[i] = &values[i]
	}
	if err := c.rows.Scan(targets...); err != nil {
		c.err = fmt.Errorf("%w: scan row: %w", store.ErrQuery, err)
		return false
	}
	c.values = normalizeValues(values)
	return true
}

func (c *cursor) Values() []any {
	return c.values
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate rows: %w", store.ErrQuery, err)
	}
	return nil
}

func (c *cursor) Close() error {
	return c.rows.Close()
}

func normalizeValues(values []any) []any {
	for i, value := range values {
		if typed, ok := value.([]byte); ok {
			values[i] = string(typed)
		}
	}
	return values
}
