// Package model provides a CRUD client over a model table and creates missing tables from model definitions.
package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/query"
	"github.com/platforma-dev/nexus/schema"
)

const (
	createdAt = "created_at"
	updatedAt = "updated_at"
)

// ErrNoChanges is returned by Update when there is nothing to set.
var ErrNoChanges = errors.New("no columns to update")

// Client reads and writes rows of one model table.
type Client struct {
	table   string
	model   schema.Model
	session database.Session
	now     func() time.Time
}

// New returns a client for the model registered under name.
// The table defaults to the lower-cased model name.
func New(name string, m schema.Model, session database.Session) *Client {
	return &Client{
		table:   m.Table(name),
		model:   m,
		session: session,
		now:     time.Now,
	}
}

// Table returns the table the client works with.
func (c *Client) Table() string {
	return c.table
}

// Query returns a query builder over the model table.
func (c *Client) Query() query.Builder {
	return query.New(c.table)
}

// EnsureTable creates the model table unless it exists.
func (c *Client) EnsureTable(ctx context.Context) (bool, error) {
	return NewSync(c.session).EnsureTable(ctx, c.table, c.model)
}

// Create inserts a row and returns it as stored.
// created_at and updated_at are set when the model has timestamps.
func (c *Client) Create(ctx context.Context, data map[string]any) (database.Row, error) {
	values := maps.Clone(data)
	if values == nil {
		values = map[string]any{}
	}
	if c.model.Timestamps {
		now := c.now()
		values[createdAt] = now
		values[updatedAt] = now
	}

	var sql string
	columns, args := split(values)
	if len(columns) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", c.table)
	} else {
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			c.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	}

	rows, err := c.session.Execute(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", c.table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to create %s: no row returned", c.table)
	}
	return rows[0], nil
}

// FindByID returns the row whose primary key equals id, or query.ErrNotFound.
func (c *Client) FindByID(ctx context.Context, id any) (database.Row, error) {
	return c.Query().WhereEq(c.model.PrimaryKey(), id).FindOne(ctx, c.session)
}

// FindAll returns every row of the table.
func (c *Client) FindAll(ctx context.Context) ([]database.Row, error) {
	return c.Query().Find(ctx, c.session)
}

// Update sets the given columns on the row with primary key id and returns the updated row.
// updated_at is set when the model has timestamps. A missing row yields query.ErrNotFound.
func (c *Client) Update(ctx context.Context, id any, data map[string]any) (database.Row, error) {
	values := maps.Clone(data)
	if values == nil {
		values = map[string]any{}
	}
	if c.model.Timestamps {
		values[updatedAt] = c.now()
	}

	columns, args := split(values)
	if len(columns) == 0 {
		return nil, ErrNoChanges
	}

	assignments := make([]string, len(columns))
	for i, column := range columns {
		assignments[i] = column + " = $" + strconv.Itoa(i+2)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1 RETURNING *",
		c.table, strings.Join(assignments, ", "), c.model.PrimaryKey())

	rows, err := c.session.Execute(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", c.table, err)
	}
	if len(rows) == 0 {
		return nil, query.ErrNotFound
	}
	return rows[0], nil
}

// Delete removes the row with primary key id. Deleting a missing row is not an error.
func (c *Client) Delete(ctx context.Context, id any) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", c.table, c.model.PrimaryKey())
	if _, err := c.session.Execute(ctx, sql, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.table, err)
	}
	return nil
}

// split returns column names in sorted order with their values.
func split(values map[string]any) ([]string, []any) {
	columns := slices.Sorted(maps.Keys(values))
	args := make([]any, len(columns))
	for i, column := range columns {
		args[i] = values[column]
	}
	return columns, args
}
