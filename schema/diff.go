package schema

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// SchemaDiff is the difference between two schema versions.
// It is produced by a schema comparison step and consumed by the migration generator.
type SchemaDiff struct { //nolint:revive
	NewTables      []string      `yaml:"newTables,omitempty"`
	DroppedTables  []string      `yaml:"droppedTables,omitempty"`
	ModifiedTables []TableChange `yaml:"modifiedTables,omitempty"`
}

// TableChange lists column level changes of one existing table.
type TableChange struct {
	Table           string        `yaml:"table"`
	NewColumns      Fields        `yaml:"newColumns,omitempty"`
	DroppedColumns  []string      `yaml:"droppedColumns,omitempty"`
	ModifiedColumns ColumnChanges `yaml:"modifiedColumns,omitempty"`
}

// ColumnChange is a column whose definition changed from Old to New.
type ColumnChange struct {
	Name string
	Old  Field
	New  Field
}

// ColumnChanges is an ordered list of column changes.
type ColumnChanges []ColumnChange

type columnChangeYAML struct {
	Old Field `yaml:"old"`
	New Field `yaml:"new"`
}

// DecodeDiff reads a SchemaDiff YAML document.
func DecodeDiff(r io.Reader) (SchemaDiff, error) {
	var diff SchemaDiff

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(&diff)
	if err != nil && !errors.Is(err, io.EOF) {
		return SchemaDiff{}, fmt.Errorf("failed to decode schema diff: %w", err)
	}

	for i, change := range diff.ModifiedTables {
		if change.Table == "" {
			return SchemaDiff{}, fmt.Errorf("modified table #%d: missing table name", i)
		}
	}

	return diff, nil
}

// MarshalYAML encodes fields as a mapping that keeps insertion order.
func (f Fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, nf := range f {
		var value yaml.Node
		if err := value.Encode(nf.Field); err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", nf.Name, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: nf.Name}, &value)
	}
	return node, nil
}

// UnmarshalYAML decodes a mapping into fields, keeping document order.
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}

	var fields Fields
	for _, pair := range pairs {
		var field Field
		if err := pair.value.Decode(&field); err != nil {
			return fmt.Errorf("field %s: %w", pair.key, err)
		}
		fields = fields.With(pair.key, field)
	}

	*f = fields
	return nil
}

// MarshalYAML encodes changes as a mapping of column name to old/new definitions.
func (c ColumnChanges) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, change := range c {
		var value yaml.Node
		if err := value.Encode(columnChangeYAML{Old: change.Old, New: change.New}); err != nil {
			return nil, fmt.Errorf("failed to encode column change %s: %w", change.Name, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: change.Name}, &value)
	}
	return node, nil
}

// UnmarshalYAML decodes a mapping of column name to old/new definitions.
func (c *ColumnChanges) UnmarshalYAML(node *yaml.Node) error {
	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}

	changes := make(ColumnChanges, 0, len(pairs))
	for _, pair := range pairs {
		var change columnChangeYAML
		if err := pair.value.Decode(&change); err != nil {
			return fmt.Errorf("column change %s: %w", pair.key, err)
		}
		changes = append(changes, ColumnChange{Name: pair.key, Old: change.Old, New: change.New})
	}

	*c = changes
	return nil
}

// expressionTag marks a default that is SQL rather than a literal value.
const expressionTag = "!expr"

var fieldKeys = []string{"type", "nullable", "unique", "default", "primaryKey", "autoIncrement"} //nolint:gochecknoglobals

// MarshalYAML encodes e as a tagged scalar so that it decodes back to an Expression.
func (e Expression) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: expressionTag, Value: string(e)}, nil
}

// UnmarshalYAML decodes a field. Unknown keys are rejected and !expr defaults become Expression values.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if !slices.Contains(fieldKeys, pair.key) {
			return fmt.Errorf("line %d: unknown field key %q", pair.value.Line, pair.key)
		}
	}

	type plain Field
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	for _, pair := range pairs {
		if pair.key == "default" && pair.value.Tag == expressionTag {
			decoded.Default = Expression(pair.value.Value)
		}
	}

	*f = Field(decoded)
	return nil
}

type mappingPair struct {
	key   string
	value *yaml.Node
}

func mappingPairs(node *yaml.Node) ([]mappingPair, error) {
	if node.ShortTag() == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected mapping", node.Line)
	}

	pairs := make([]mappingPair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, mappingPair{key: node.Content[i].Value, value: node.Content[i+1]})
	}
	return pairs, nil
}
