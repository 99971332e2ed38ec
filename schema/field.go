// Package schema provides the configuration values describing models and their fields.
package schema

import (
	"errors"
	"fmt"
	"slices"
)

// FieldType is the logical type of a model field.
type FieldType string

const (
	// TypeString maps to a bounded varchar column.
	TypeString FieldType = "string"
	// TypeNumber maps to an integer column.
	TypeNumber FieldType = "number"
	// TypeBoolean maps to a boolean column.
	TypeBoolean FieldType = "boolean"
	// TypeDate maps to a timestamp column.
	TypeDate FieldType = "date"
	// TypeJSON maps to a binary JSON column.
	TypeJSON FieldType = "json"
)

// CurrentTimestamp is a default value rendered as the SQL function call, never quoted.
const CurrentTimestamp = "CURRENT_TIMESTAMP"

// Expression is a default value rendered verbatim as SQL.
type Expression string

// Null is an explicit NULL default.
const Null Expression = "NULL"

var (
	// ErrUnknownFieldType is returned for a field type outside the supported set.
	ErrUnknownFieldType = errors.New("unsupported field type")
	// ErrAutoIncrementType is returned when auto increment is set on a non-number field.
	ErrAutoIncrementType = errors.New("auto increment requires number field")
)

// Field describes a single column.
// A nil Default means the column has no default.
type Field struct {
	Type          FieldType `yaml:"type"`
	Nullable      bool      `yaml:"nullable,omitempty"`
	Unique        bool      `yaml:"unique,omitempty"`
	Default       any       `yaml:"default,omitempty"`
	PrimaryKey    bool      `yaml:"primaryKey,omitempty"`
	AutoIncrement bool      `yaml:"autoIncrement,omitempty"`
}

// Validate checks the field type and the auto increment constraint.
func (f Field) Validate() error {
	switch f.Type {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeJSON:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFieldType, f.Type)
	}

	if f.AutoIncrement && f.Type != TypeNumber {
		return fmt.Errorf("%w: got %s", ErrAutoIncrementType, f.Type)
	}

	return nil
}

// HasDefault reports whether a default value is set.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// Build returns the field itself so a Field can be passed wherever a builder is accepted.
func (f Field) Build() Field {
	return f
}

// FieldBuilder assembles a Field fluently. Every method returns a new builder.
type FieldBuilder struct {
	field Field
}

// NewField starts a builder for the given type.
func NewField(t FieldType) FieldBuilder {
	return FieldBuilder{field: Field{Type: t}}
}

// String starts a string field.
func String() FieldBuilder { return NewField(TypeString) }

// Number starts a number field.
func Number() FieldBuilder { return NewField(TypeNumber) }

// Boolean starts a boolean field.
func Boolean() FieldBuilder { return NewField(TypeBoolean) }

// Date starts a date field.
func Date() FieldBuilder { return NewField(TypeDate) }

// JSON starts a json field.
func JSON() FieldBuilder { return NewField(TypeJSON) }

// Nullable allows NULL values.
func (b FieldBuilder) Nullable() FieldBuilder {
	b.field.Nullable = true
	return b
}

// Unique adds a unique constraint.
func (b FieldBuilder) Unique() FieldBuilder {
	b.field.Unique = true
	return b
}

// Default sets the default value.
func (b FieldBuilder) Default(value any) FieldBuilder {
	b.field.Default = value
	return b
}

// PrimaryKey marks the field as part of the primary key.
func (b FieldBuilder) PrimaryKey() FieldBuilder {
	b.field.PrimaryKey = true
	return b
}

// AutoIncrement makes the column an identity column.
func (b FieldBuilder) AutoIncrement() FieldBuilder {
	b.field.AutoIncrement = true
	return b
}

// Build returns the assembled field.
func (b FieldBuilder) Build() Field {
	return b.field
}

// FieldSource is anything that yields a Field: a Field or a FieldBuilder.
type FieldSource interface {
	Build() Field
}

// NamedField pairs a column name with its definition.
type NamedField struct {
	Name  string
	Field Field
}

// Fields is an ordered mapping of column name to definition.
// Insertion order is significant: it is the column order of rendered DDL.
type Fields []NamedField

// NewFields builds Fields from name/field pairs in the given order.
func NewFields(pairs ...NamedField) Fields {
	var fields Fields
	for _, p := range pairs {
		fields = fields.With(p.Name, p.Field)
	}
	return fields
}

// Get returns the field with the given name.
func (f Fields) Get(name string) (Field, bool) {
	for _, nf := range f {
		if nf.Name == name {
			return nf.Field, true
		}
	}
	return Field{}, false
}

// Names returns column names in insertion order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for _, nf := range f {
		names = append(names, nf.Name)
	}
	return names
}

// With returns a copy with the field set. An existing name keeps its position.
func (f Fields) With(name string, field Field) Fields {
	out := slices.Clone(f)
	for i := range out {
		if out[i].Name == name {
			out[i].Field = field
			return out
		}
	}
	return append(out, NamedField{Name: name, Field: field})
}

// PrimaryKeys returns the names of fields flagged as primary key, in insertion order.
func (f Fields) PrimaryKeys() []string {
	var keys []string
	for _, nf := range f {
		if nf.Field.PrimaryKey {
			keys = append(keys, nf.Name)
		}
	}
	return keys
}
