// Package sqlstore implements store.Connector on database/sql for DuckDB
// and Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/flatbridge/flatbridge/internal/store"
)

const defaultPingTimeout = 5 * time.Second

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// OpenFunc opens a database handle for a registered driver name.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Connector caches one *sql.DB per driver and DSN. An in-memory DuckDB
// database is therefore shared by every connection of the process.
type Connector struct {
	Pool        PoolConfig
	PingTimeout time.Duration

	open OpenFunc
	mu   sync.Mutex
	dbs  map[string]*sql.DB
}

func NewConnector(pool PoolConfig) *Connector {
	return NewConnectorWithOpener(pool, sql.Open)
}

func NewConnectorWithOpener(pool PoolConfig, open OpenFunc) *Connector {
	return &Connector{
		Pool:        pool,
		PingTimeout: defaultPingTimeout,
		open:        open,
		dbs:         map[string]*sql.DB{},
	}
}

func (c *Connector) Connect(ctx context.Context, params store.ConnectionParams) (store.Conn, error) {
	dialect, err := DialectFor(params.Driver)
	if err != nil {
		return nil, err
	}
	db, err := c.database(dialect, DSN(params))
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire %s connection: %w", store.ErrConnection, dialect, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout())
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", store.ErrConnection, dialect, err)
	}
	return &Conn{conn: conn, dialect: dialect}, nil
}

// Close releases every cached pool.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, db := range c.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.dbs, key)
	}
	return firstErr
}

func (c *Connector) database(dialect store.Dialect, dsn string) (*sql.DB, error) {
	key := string(dialect) + "|" + dsn

	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}

	db, err := c.open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", store.ErrConnection, dialect, err)
	}
	if c.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.Pool.MaxOpenConns)
	}
	if c.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.Pool.MaxIdleConns)
	}
	if c.Pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.Pool.ConnMaxIdleTime)
	}
	if c.Pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.Pool.ConnMaxLifetime)
	}
	c.dbs[key] = db
	return db, nil
}

func (c *Connector) pingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func DialectFor(driver string) (store.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "duckdb":
		return store.DialectDuckDB, nil
	case "postgres", "postgresql", "pgx":
		return store.DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported driver %q", store.ErrConnection, driver)
	}
}

// DSN builds the data source name. An explicit DSN wins. DuckDB uses the
// database field as its file path, empty meaning in-memory.
func DSN(params store.ConnectionParams) string {
	if params.DSN != "" {
		return params.DSN
	}
	dialect, _ := DialectFor(params.Driver)
	if dialect == store.DialectDuckDB {
		return params.Database
	}

	host := params.Host
	if host == "" {
		host = "localhost"
	}
	port := params.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + params.Database,
	}
	switch {
	case params.Username != "" && params.Password != "":
		u.User = url.UserPassword(params.Username, params.Password)
	case params.Username != "":
		u.User = url.User(params.Username)
	}
	return u.String()
}

func driverName(dialect store.Dialect) string {
	if dialect == store.DialectPostgres {
		return "pgx"
	}
	return "duckdb"
}
