// Package migration turns schema differences into reversible DDL operations,
// renders them to SQL and applies them with a transactional ledger.
package migration

import (
	"time"

	"github.com/platforma-dev/nexus/schema"
)

// Kind identifies an operation variant.
type Kind string

const (
	KindCreateTable  Kind = "CREATE_TABLE"
	KindDropTable    Kind = "DROP_TABLE"
	KindAddColumn    Kind = "ADD_COLUMN"
	KindDropColumn   Kind = "DROP_COLUMN"
	KindModifyColumn Kind = "MODIFY_COLUMN"
)

// Operation is a single schema change. The set of variants is closed:
// CreateTable, DropTable, AddColumn, DropColumn and ModifyColumn.
type Operation interface {
	Kind() Kind
	TableName() string
	operation()
}

// CreateTable creates a table with the given columns in order.
type CreateTable struct {
	Table  string
	Fields schema.Fields
}

// DropTable drops a table if it exists.
type DropTable struct {
	Table string
}

// AddColumn adds one column. Field must be set.
type AddColumn struct {
	Table  string
	Column string
	Field  *schema.Field
}

// DropColumn drops one column.
type DropColumn struct {
	Table  string
	Column string
}

// ModifyColumn changes a column definition from Old to New. New must be set.
type ModifyColumn struct {
	Table  string
	Column string
	Old    *schema.Field
	New    *schema.Field
}

// NewCreateTable returns a CreateTable owning a copy of fields.
func NewCreateTable(table string, fields schema.Fields) CreateTable {
	return CreateTable{Table: table, Fields: append(schema.Fields(nil), fields...)}
}

// NewDropTable returns a DropTable.
func NewDropTable(table string) DropTable {
	return DropTable{Table: table}
}

// NewAddColumn returns an AddColumn owning a copy of field.
func NewAddColumn(table, column string, field schema.Field) AddColumn {
	return AddColumn{Table: table, Column: column, Field: &field}
}

// NewDropColumn returns a DropColumn.
func NewDropColumn(table, column string) DropColumn {
	return DropColumn{Table: table, Column: column}
}

// NewModifyColumn returns a ModifyColumn owning copies of both definitions.
func NewModifyColumn(table, column string, oldField, newField schema.Field) ModifyColumn {
	return ModifyColumn{Table: table, Column: column, Old: &oldField, New: &newField}
}

func (CreateTable) Kind() Kind  { return KindCreateTable }
func (DropTable) Kind() Kind    { return KindDropTable }
func (AddColumn) Kind() Kind    { return KindAddColumn }
func (DropColumn) Kind() Kind   { return KindDropColumn }
func (ModifyColumn) Kind() Kind { return KindModifyColumn }

func (o CreateTable) TableName() string  { return o.Table }
func (o DropTable) TableName() string    { return o.Table }
func (o AddColumn) TableName() string    { return o.Table }
func (o DropColumn) TableName() string   { return o.Table }
func (o ModifyColumn) TableName() string { return o.Table }

func (CreateTable) operation()  {}
func (DropTable) operation()    {}
func (AddColumn) operation()    {}
func (DropColumn) operation()   {}
func (ModifyColumn) operation() {}

// Migration is an ordered list of forward operations and the list that reverts them.
// Down is already in execution order: the inverse of the last Up entry comes first.
type Migration struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Up        []Operation
	Down      []Operation
}

// Result is the outcome of applying or rolling back one migration.
type Result struct {
	Success       bool
	MigrationID   string
	Error         string
	Err           error
	ExecutionTime time.Duration
}

// InitialVersion is the current version reported when no migration is applied.
const InitialVersion = "0.0.0"

// State summarizes the ledger.
// LastMigrationDate is the zero time when nothing is applied.
type State struct {
	AppliedMigrations []string
	CurrentVersion    string
	LastMigrationDate time.Time
}
