package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// QueryError is returned when a statement fails to execute.
type QueryError struct {
	Query string
	Err   error
}

// Error returns the formatted error message for QueryError.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

// Unwrap returns the underlying driver error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the SQLSTATE code of a driver error, or an empty string.
func ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

// IsUndefinedTable reports whether err is a "relation does not exist" error.
func IsUndefinedTable(err error) bool {
	return ErrorCode(err) == "42P01"
}

// IsUndefinedColumn reports whether err is a "column does not exist" error.
func IsUndefinedColumn(err error) bool {
	return ErrorCode(err) == "42703"
}
