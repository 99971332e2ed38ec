package migration

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platforma-dev/nexus/schema"
)

const idTimeLayout = "20060102_150405"

// Generator builds migrations from schema diffs.
type Generator struct {
	now    func() time.Time
	suffix func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock sets the time source used for ids and CreatedAt.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithSuffix sets the source of the random id suffix.
func WithSuffix(suffix func() string) GeneratorOption {
	return func(g *Generator) { g.suffix = suffix }
}

// NewGenerator returns a Generator using the wall clock and a random suffix.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{now: time.Now, suffix: randomSuffix}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultTableFields are the columns every new table starts with.
func DefaultTableFields() schema.Fields {
	return schema.NewFields(
		schema.NamedField{Name: "id", Field: schema.Number().PrimaryKey().AutoIncrement().Build()},
		schema.NamedField{Name: "created_at", Field: schema.Date().Default(schema.CurrentTimestamp).Build()},
		schema.NamedField{Name: "updated_at", Field: schema.Date().Default(schema.CurrentTimestamp).Build()},
	)
}

// FromDiff converts a schema diff into a migration.
//
// Up is built in diff order: new tables, dropped tables, then for each modified
// table its added, dropped and modified columns. Every inverse is prepended to
// Down, so Down undoes the last change first.
//
// Two changes have no faithful inverse. A dropped table is reverted by creating
// an empty table with the same name, and a dropped column is not reverted at all,
// because the diff does not carry the previous definitions.
func (g *Generator) FromDiff(diff schema.SchemaDiff, name string) Migration {
	var up, down []Operation

	forward := func(op Operation) { up = append(up, op) }
	inverse := func(op Operation) { down = slices.Insert(down, 0, op) }

	for _, table := range diff.NewTables {
		forward(NewCreateTable(table, DefaultTableFields()))
		inverse(NewDropTable(table))
	}

	for _, table := range diff.DroppedTables {
		forward(NewDropTable(table))
		inverse(NewCreateTable(table, nil))
	}

	for _, change := range diff.ModifiedTables {
		for _, column := range change.NewColumns {
			forward(NewAddColumn(change.Table, column.Name, column.Field))
			inverse(NewDropColumn(change.Table, column.Name))
		}

		for _, column := range change.DroppedColumns {
			forward(NewDropColumn(change.Table, column))
		}

		for _, column := range change.ModifiedColumns {
			forward(NewModifyColumn(change.Table, column.Name, column.Old, column.New))
			inverse(NewModifyColumn(change.Table, column.Name, column.New, column.Old))
		}
	}

	now := g.now().UTC()
	return Migration{
		ID:        g.id(now),
		Name:      name,
		CreatedAt: now,
		Up:        up,
		Down:      down,
	}
}

// NewID returns a fresh migration id: a sortable UTC timestamp and a short random suffix.
func (g *Generator) NewID() string {
	return g.id(g.now().UTC())
}

func (g *Generator) id(t time.Time) string {
	return t.Format(idTimeLayout) + "_" + g.suffix()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}
