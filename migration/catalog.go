package migration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platforma-dev/nexus/schema"
)

var (
	errMissingID     = errors.New("missing migration id")
	errDuplicateID   = errors.New("duplicate migration id")
	errUnknownOpType = errors.New("unknown operation type")
)

type migrationYAML struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	CreatedAt time.Time       `yaml:"createdAt"`
	Up        []operationYAML `yaml:"up"`
	Down      []operationYAML `yaml:"down"`
}

type operationYAML struct {
	Type     Kind          `yaml:"type"`
	Table    string        `yaml:"table"`
	Column   string        `yaml:"column,omitempty"`
	Fields   schema.Fields `yaml:"fields,omitempty"`
	Field    *schema.Field `yaml:"field,omitempty"`
	OldField *schema.Field `yaml:"oldField,omitempty"`
	NewField *schema.Field `yaml:"newField,omitempty"`
}

// LoadMigrations reads migration files from an fs.FS.
// Files must have .yaml or .yml extension and are read in lexicographic order,
// which is id order for generated files. Every file must carry a unique id.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			filenames = append(filenames, entry.Name())
		}
	}

	slices.Sort(filenames)

	migrations := make([]Migration, 0, len(filenames))
	seen := make(map[string]string, len(filenames))
	for _, filename := range filenames {
		migration, err := parseMigrationFile(fsys, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", filename, err)
		}

		if previous, ok := seen[migration.ID]; ok {
			return nil, fmt.Errorf("%w %s in %s and %s", errDuplicateID, migration.ID, previous, filename)
		}
		seen[migration.ID] = filename

		migrations = append(migrations, migration)
	}

	return migrations, nil
}

func parseMigrationFile(fsys fs.FS, filename string) (Migration, error) {
	file, err := fsys.Open(filename)
	if err != nil {
		return Migration{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ParseMigration(file)
}

// ParseMigration decodes a single migration document.
func ParseMigration(r io.Reader) (Migration, error) {
	var doc migrationYAML

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Migration{}, fmt.Errorf("failed to decode migration: %w", err)
	}

	if doc.ID == "" {
		return Migration{}, errMissingID
	}

	up, err := decodeOperations(doc.Up)
	if err != nil {
		return Migration{}, fmt.Errorf("up: %w", err)
	}

	down, err := decodeOperations(doc.Down)
	if err != nil {
		return Migration{}, fmt.Errorf("down: %w", err)
	}

	return Migration{
		ID:        doc.ID,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt,
		Up:        up,
		Down:      down,
	}, nil
}

// EncodeMigration writes m as a YAML document for ParseMigration.
// Expression defaults are tagged !expr and read back as Expression values.
// time.Time defaults are read back as their RFC 3339 string, which renders
// the same instant with different text.
func EncodeMigration(w io.Writer, m Migration) error {
	up, err := encodeOperations(m.Up)
	if err != nil {
		return fmt.Errorf("up: %w", err)
	}

	down, err := encodeOperations(m.Down)
	if err != nil {
		return fmt.Errorf("down: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	doc := migrationYAML{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC(), Up: up, Down: down}
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode migration %s: %w", m.ID, err)
	}

	return encoder.Close()
}

// WriteMigration stores m in dir as <id>_<name>.yaml and returns the file path.
func WriteMigration(dir string, m Migration) (string, error) {
	var buf bytes.Buffer
	if err := EncodeMigration(&buf, m); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	path := filepath.Join(dir, FileName(m))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}

	return path, nil
}

// FileName returns the catalog file name of m.
func FileName(m Migration) string {
	name := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, m.Name), "_")

	if name == "" {
		return m.ID + ".yaml"
	}
	return m.ID + "_" + name + ".yaml"
}

func decodeOperations(docs []operationYAML) ([]Operation, error) {
	ops := make([]Operation, 0, len(docs))
	for i, doc := range docs {
		var op Operation
		switch doc.Type {
		case KindCreateTable:
			op = CreateTable{Table: doc.Table, Fields: doc.Fields}
		case KindDropTable:
			op = DropTable{Table: doc.Table}
		case KindAddColumn:
			op = AddColumn{Table: doc.Table, Column: doc.Column, Field: doc.Field}
		case KindDropColumn:
			op = DropColumn{Table: doc.Table, Column: doc.Column}
		case KindModifyColumn:
			op = ModifyColumn{Table: doc.Table, Column: doc.Column, Old: doc.OldField, New: doc.NewField}
		default:
			return nil, fmt.Errorf("operation #%d: %w %q", i, errUnknownOpType, doc.Type)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func encodeOperations(ops []Operation) ([]operationYAML, error) {
	docs := make([]operationYAML, 0, len(ops))
	for i, op := range ops {
		var doc operationYAML
		switch o := op.(type) {
		case CreateTable:
			doc = operationYAML{Table: o.Table, Fields: o.Fields}
		case DropTable:
			doc = operationYAML{Table: o.Table}
		case AddColumn:
			doc = operationYAML{Table: o.Table, Column: o.Column, Field: o.Field}
		case DropColumn:
			doc = operationYAML{Table: o.Table, Column: o.Column}
		case ModifyColumn:
			doc = operationYAML{Table: o.Table, Column: o.Column, OldField: o.Old, NewField: o.New}
		default:
			return nil, fmt.Errorf("operation #%d: %w", i, ErrUnsupportedOperation)
		}
		doc.Type = op.Kind()
		docs = append(docs, doc)
	}
	return docs, nil
}
