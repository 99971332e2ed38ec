package migration

import (
	"errors"
	"fmt"

	"github.com/platforma-dev/nexus/schema"
)

var (
	// ErrMissingTable is returned when an operation has no table name.
	ErrMissingTable = errors.New("operation requires table name")
	// ErrMissingColumn is returned when a column operation has no column name.
	ErrMissingColumn = errors.New("operation requires column name")
	// ErrMissingField is returned when a column operation has no field definition.
	ErrMissingField = errors.New("operation requires field definition")
	// ErrUnsupportedOperation is returned for an operation outside the supported set.
	ErrUnsupportedOperation = errors.New("unsupported migration operation")
	// ErrUnsupportedFieldType is returned for a field type without a column type mapping.
	ErrUnsupportedFieldType = schema.ErrUnknownFieldType
	// ErrInvalidField is returned for a field whose flags contradict its type.
	ErrInvalidField = schema.ErrAutoIncrementType
	// ErrInvalidDefault is returned when a default value does not match its field type.
	ErrInvalidDefault = errors.New("invalid default value")

	// ErrMigrationNotApplied is returned by RollbackTo when the target is not in the ledger.
	ErrMigrationNotApplied = errors.New("migration not found in applied migrations")
	// ErrMigrationDefinitionNotFound is returned when an applied migration is missing from the catalog.
	ErrMigrationDefinitionNotFound = errors.New("migration definition not found")
)

// ConfigError reports an operation that cannot be rendered to SQL.
// It is detected before any statement is sent.
type ConfigError struct {
	Kind   Kind
	Table  string
	Column string
	Err    error
}

// Error returns the formatted error message for ConfigError.
func (e *ConfigError) Error() string {
	target := e.Table
	if e.Column != "" {
		target += "." + e.Column
	}
	if e.Kind == "" {
		return fmt.Sprintf("invalid operation on %s: %v", target, e.Err)
	}
	return fmt.Sprintf("invalid %s operation on %s: %v", e.Kind, target, e.Err)
}

// Unwrap returns the underlying error for ConfigError.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
