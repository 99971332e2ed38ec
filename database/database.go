// Package database provides the database session used by migrations, queries and model clients.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver registered as "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DriverPostgres selects the lib/pq driver.
	DriverPostgres = "postgres"
	// DriverPGX selects the pgx stdlib driver.
	DriverPGX = "pgx"
)

var (
	// ErrNotConnected is returned when the session is used before Connect or after Close.
	ErrNotConnected = errors.New("database not connected")
	// ErrAlreadyConnected is returned when Connect is called on a connected session.
	ErrAlreadyConnected = errors.New("database connection already exists")
	// ErrUnsupportedDriver is returned for a driver other than postgres or pgx.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Executor runs a statement and returns its rows.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) ([]Row, error)
}

// Session is an Executor that can also run a function inside a transaction.
// WithTransaction commits when fn returns nil and rolls back otherwise,
// returning fn's error unchanged.
type Session interface {
	Executor
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error
}

// Config holds connection settings.
type Config struct {
	URL    string
	Driver string
}

// Database represents a database connection with transaction support.
type Database struct {
	config Config

	mu   sync.RWMutex
	conn *sqlx.DB
}

// New creates a Database that is not connected yet.
func New(config Config) *Database {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}
	return &Database{config: config}
}

// Open creates a Database and connects it.
func Open(ctx context.Context, config Config) (*Database, error) {
	db := New(config)
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Connect establishes the connection pool. It fails with ErrAlreadyConnected when called twice.
func (db *Database) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return ErrAlreadyConnected
	}

	if db.config.Driver != DriverPostgres && db.config.Driver != DriverPGX {
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, db.config.Driver)
	}

	conn, err := sqlx.ConnectContext(ctx, db.config.Driver, db.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	db.conn = conn
	return nil
}

// Close closes the connection pool. The Database can be connected again afterwards.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return ErrNotConnected
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Connection returns the underlying sqlx database connection.
func (db *Database) Connection() (*sqlx.DB, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.conn == nil {
		return nil, ErrNotConnected
	}
	return db.conn, nil
}

// Ping verifies the connection is alive.
func (db *Database) Ping(ctx context.Context) error {
	conn, err := db.Connection()
	if err != nil {
		return err
	}

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Execute runs query with positional parameters and returns all rows.
func (db *Database) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := db.Connection()
	if err != nil {
		return nil, err
	}
	return execute(ctx, conn, query, args)
}

// WithTransaction runs fn inside a transaction.
func (db *Database) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error {
	conn, err := db.Connection()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	err = fn(ctx, &transaction{tx: tx})
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type transaction struct {
	tx *sqlx.Tx
}

func (t *transaction) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	return execute(ctx, t.tx, query, args)
}

type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

func execute(ctx context.Context, q queryer, query string, args []any) ([]Row, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var result []Row
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		result = append(result, normalize(row))
	}

	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return result, nil
}

// normalize converts driver byte slices into strings.
func normalize(row map[string]any) Row {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
