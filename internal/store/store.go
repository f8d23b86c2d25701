// Package store defines the contract the ingestion engine uses to talk to
// the analytical store.
package store

import (
	"context"
	"errors"
)

var (
	ErrConnection    = errors.New("store connection failed")
	ErrQuery         = errors.New("store statement failed")
	ErrTableNotFound = errors.New("table not found")
)

// Dialect selects driver specific SQL rendering.
type Dialect string

const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

// ConnectionParams identify one store endpoint. Empty fields are filled from
// configured defaults by the caller.
type ConnectionParams struct {
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DSN      string `json:"dsn,omitempty"`
}

type ColumnDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableSchema struct {
	TableName string             `json:"tableName"`
	Columns   []ColumnDefinition `json:"columns"`
}

type Connector interface {
	Connect(ctx context.Context, params ConnectionParams) (Conn, error)
}

// Conn is a single scoped session. Callers must Close it.
type Conn interface {
	Ping(ctx context.Context) error
	// ListTables lists tables in schema, or in the session's current schema
	// when schema is empty.
	ListTables(ctx context.Context, schema string) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]ColumnDefinition, error)
	Query(ctx context.Context, statement string) (RowCursor, error)
	ExecDDL(ctx context.Context, statement string) error
	// BatchInsert runs statement once per row inside one transaction.
	BatchInsert(ctx context.Context, statement string, rows [][]any) error
	Dialect() Dialect
	Close() error
}

// RowCursor is forward only and cannot be restarted.
type RowCursor interface {
	Columns() []string
	Next() bool
	Values() []any
	Err() error
	Close() error
}
