package schema

import (
	"maps"
	"strings"
)

// RelationType is the kind of association between two models.
type RelationType string

const (
	HasOne        RelationType = "hasOne"
	HasMany       RelationType = "hasMany"
	BelongsTo     RelationType = "belongsTo"
	BelongsToMany RelationType = "belongsToMany"
)

// Relation describes an association to another model.
type Relation struct {
	Type       RelationType `yaml:"type"`
	Model      string       `yaml:"model"`
	ForeignKey string       `yaml:"foreignKey,omitempty"`
	LocalKey   string       `yaml:"localKey,omitempty"`
	Through    string       `yaml:"through,omitempty"`
}

// NewHasOne returns a hasOne relation.
func NewHasOne(model, foreignKey string) Relation {
	return Relation{Type: HasOne, Model: model, ForeignKey: foreignKey}
}

// NewHasMany returns a hasMany relation.
func NewHasMany(model, foreignKey string) Relation {
	return Relation{Type: HasMany, Model: model, ForeignKey: foreignKey}
}

// NewBelongsTo returns a belongsTo relation.
func NewBelongsTo(model, localKey string) Relation {
	return Relation{Type: BelongsTo, Model: model, LocalKey: localKey}
}

// NewBelongsToMany returns a belongsToMany relation through a join table.
func NewBelongsToMany(model, through string) Relation {
	return Relation{Type: BelongsToMany, Model: model, Through: through}
}

// Model is the configuration of one model.
type Model struct {
	TableName  string
	Fields     Fields
	Relations  map[string]Relation
	Timestamps bool
}

// Table returns the configured table name or the lower-cased model name.
func (m Model) Table(modelName string) string {
	if m.TableName != "" {
		return m.TableName
	}
	return strings.ToLower(modelName)
}

// PrimaryKey returns the first primary key column, or "id" when none is flagged.
func (m Model) PrimaryKey() string {
	if keys := m.Fields.PrimaryKeys(); len(keys) > 0 {
		return keys[0]
	}
	return "id"
}

// ModelBuilder assembles a Model. Timestamps are enabled by default.
type ModelBuilder struct {
	model Model
}

// NewModel starts a model builder.
func NewModel() ModelBuilder {
	return ModelBuilder{model: Model{Timestamps: true}}
}

// TableName overrides the table name.
func (b ModelBuilder) TableName(name string) ModelBuilder {
	b.model.TableName = name
	return b
}

// Field adds or replaces a field.
func (b ModelBuilder) Field(name string, field FieldSource) ModelBuilder {
	b.model.Fields = b.model.Fields.With(name, field.Build())
	return b
}

// Relation adds or replaces a relation.
func (b ModelBuilder) Relation(name string, relation Relation) ModelBuilder {
	relations := maps.Clone(b.model.Relations)
	if relations == nil {
		relations = make(map[string]Relation)
	}
	relations[name] = relation
	b.model.Relations = relations
	return b
}

// Timestamps toggles automatic created_at/updated_at columns.
func (b ModelBuilder) Timestamps(enabled bool) ModelBuilder {
	b.model.Timestamps = enabled
	return b
}

// Build returns the assembled model.
func (b ModelBuilder) Build() Model {
	return b.model
}

// Schema is a set of named models with an optional version label.
type Schema struct {
	Models  map[string]Model
	Version string
}

// Builder assembles a Schema.
type Builder struct {
	schema Schema
}

// New starts a schema builder.
func New() Builder {
	return Builder{schema: Schema{Models: map[string]Model{}}}
}

// Model adds or replaces a model.
func (b Builder) Model(name string, model Model) Builder {
	models := maps.Clone(b.schema.Models)
	models[name] = model
	b.schema.Models = models
	return b
}

// Version sets the schema version label.
func (b Builder) Version(version string) Builder {
	b.schema.Version = version
	return b
}

// Build returns the assembled schema.
func (b Builder) Build() Schema {
	return b.schema
}
