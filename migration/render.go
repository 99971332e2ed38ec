package migration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platforma-dev/nexus/schema"
)

const (
	identityClause = "GENERATED BY DEFAULT AS IDENTITY"
	isoTimestamp   = "2006-01-02T15:04:05.000Z07:00"
)

// Render converts an operation to the SQL statements that perform it.
// The result depends only on the operation.
// Only the value variants are rendered; nil and pointer operations are unsupported.
func Render(op Operation) ([]string, error) {
	switch op.(type) {
	case CreateTable, DropTable, AddColumn, DropColumn, ModifyColumn:
	default:
		return nil, &ConfigError{Err: ErrUnsupportedOperation}
	}
	if op.TableName() == "" {
		return nil, &ConfigError{Kind: op.Kind(), Err: ErrMissingTable}
	}

	switch o := op.(type) {
	case CreateTable:
		return renderCreateTable(o)

	case DropTable:
		return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s;", o.Table)}, nil

	case AddColumn:
		if o.Column == "" {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Err: ErrMissingColumn}
		}
		if o.Field == nil {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Column: o.Column, Err: ErrMissingField}
		}
		clause, err := columnClause(o.Column, *o.Field)
		if err != nil {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Column: o.Column, Err: err}
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", o.Table, clause)}, nil

	case DropColumn:
		if o.Column == "" {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Err: ErrMissingColumn}
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", o.Table, o.Column)}, nil

	case ModifyColumn:
		if o.Column == "" {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Err: ErrMissingColumn}
		}
		if o.New == nil {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Column: o.Column, Err: ErrMissingField}
		}
		statements, err := renderModifyColumn(o.Table, o.Column, *o.New)
		if err != nil {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Column: o.Column, Err: err}
		}
		return statements, nil
	}

	return nil, &ConfigError{Err: ErrUnsupportedOperation}
}

// RenderAll renders every operation in order and concatenates the statements.
func RenderAll(ops []Operation) ([]string, error) {
	var statements []string
	for _, op := range ops {
		sqls, err := Render(op)
		if err != nil {
			return nil, err
		}
		statements = append(statements, sqls...)
	}
	return statements, nil
}

func renderCreateTable(o CreateTable) ([]string, error) {
	parts := make([]string, 0, len(o.Fields)+1)
	for _, nf := range o.Fields {
		clause, err := columnClause(nf.Name, nf.Field)
		if err != nil {
			return nil, &ConfigError{Kind: o.Kind(), Table: o.Table, Column: nf.Name, Err: err}
		}
		parts = append(parts, clause)
	}

	if keys := o.Fields.PrimaryKeys(); len(keys) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
	}

	if len(parts) == 0 {
		return []string{fmt.Sprintf("CREATE TABLE %s ();", o.Table)}, nil
	}

	return []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", o.Table, strings.Join(parts, ",\n  "))}, nil
}

func renderModifyColumn(table, column string, field schema.Field) ([]string, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", table, column)
	statements := []string{fmt.Sprintf("%s TYPE %s;", prefix, columnType(field.Type))}

	if field.Nullable {
		statements = append(statements, prefix+" DROP NOT NULL;")
	} else {
		statements = append(statements, prefix+" SET NOT NULL;")
	}

	if field.HasDefault() {
		literal, err := formatDefault(field.Default, field.Type)
		if err != nil {
			return nil, err
		}
		statements = append(statements, fmt.Sprintf("%s SET DEFAULT %s;", prefix, literal))
	} else {
		statements = append(statements, prefix+" DROP DEFAULT;")
	}

	return statements, nil
}

// ColumnClause renders "name TYPE [NOT NULL] [UNIQUE] [identity | DEFAULT lit]".
func ColumnClause(name string, field schema.Field) (string, error) {
	return columnClause(name, field)
}

func columnClause(name string, field schema.Field) (string, error) {
	if err := field.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(columnType(field.Type))

	if !field.Nullable {
		b.WriteString(" NOT NULL")
	}

	if field.Unique {
		b.WriteString(" UNIQUE")
	}

	// identity columns never carry a DEFAULT clause
	if field.AutoIncrement {
		b.WriteString(" ")
		b.WriteString(identityClause)
	} else if field.HasDefault() {
		literal, err := formatDefault(field.Default, field.Type)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(literal)
	}

	return b.String(), nil
}

func columnType(t schema.FieldType) string {
	switch t {
	case schema.TypeString:
		return "VARCHAR(255)"
	case schema.TypeNumber:
		return "INTEGER"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "TIMESTAMP"
	case schema.TypeJSON:
		return "JSONB"
	default:
		return ""
	}
}

func formatDefault(value any, t schema.FieldType) (string, error) {
	switch v := value.(type) {
	case schema.Expression:
		return string(v), nil
	case string:
		if v == schema.CurrentTimestamp {
			return v, nil
		}
	}

	switch t {
	case schema.TypeString:
		return quoteLiteral(fmt.Sprint(value)), nil

	case schema.TypeNumber:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return fmt.Sprint(v), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case json.Number:
			return v.String(), nil
		}

	case schema.TypeBoolean:
		if v, ok := value.(bool); ok {
			return strconv.FormatBool(v), nil
		}

	case schema.TypeDate:
		switch v := value.(type) {
		case time.Time:
			return quoteLiteral(v.UTC().Format(isoTimestamp)), nil
		case string:
			return quoteLiteral(v), nil
		}

	case schema.TypeJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidDefault, err)
		}
		return quoteLiteral(string(b)), nil
	}

	return "", fmt.Errorf("%w: %v (%T) for %s field", ErrInvalidDefault, value, value, t)
}

// quoteLiteral quotes s as a SQL string literal. Values with backslashes use the E'' form.
func quoteLiteral(s string) string {
	return strings.TrimSpace(pq.QuoteLiteral(s))
}
