package model

import (
	"context"
	"fmt"

	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/log"
	"github.com/platforma-dev/nexus/migration"
	"github.com/platforma-dev/nexus/schema"
)

const tableExistsQuery = `SELECT EXISTS (
  SELECT FROM information_schema.tables
  WHERE table_schema = current_schema()
  AND table_name = $1
) AS exists`

// Sync creates tables for models that do not have one yet.
type Sync struct {
	exec database.Executor
}

// NewSync returns a Sync using exec.
func NewSync(exec database.Executor) *Sync {
	return &Sync{exec: exec}
}

// TableExists reports whether table exists in the current schema.
func (s *Sync) TableExists(ctx context.Context, table string) (bool, error) {
	rows, err := s.exec.Execute(ctx, tableExistsQuery, table)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	exists, _ := rows[0]["exists"].(bool)
	return exists, nil
}

// CreateTable creates table with the model fields and, when enabled, the timestamp columns.
func (s *Sync) CreateTable(ctx context.Context, table string, m schema.Model) error {
	statements, err := migration.Render(migration.NewCreateTable(table, TableFields(m)))
	if err != nil {
		return err
	}

	for _, statement := range statements {
		if _, err := s.exec.Execute(ctx, statement); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// EnsureTable creates table unless it exists and reports whether it was created.
func (s *Sync) EnsureTable(ctx context.Context, table string, m schema.Model) (bool, error) {
	ctx = log.WithTable(ctx, table)

	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	log.InfoContext(ctx, "creating table")
	if err := s.CreateTable(ctx, table, m); err != nil {
		return false, err
	}
	return true, nil
}

// TableFields returns the columns of the model table: its fields followed by
// created_at and updated_at when timestamps are enabled.
func TableFields(m schema.Model) schema.Fields {
	fields := m.Fields
	if m.Timestamps {
		timestamp := schema.Date().Default(schema.CurrentTimestamp).Build()
		fields = fields.With(createdAt, timestamp).With(updatedAt, timestamp)
	}
	return fields
}
