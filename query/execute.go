package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/platforma-dev/nexus/database"
)

// ErrNotFound is returned by FindOne when no row matches.
var ErrNotFound = errors.New("no matching row")

// Page is a result set with its total count.
// Pagination is set when the query has a limit.
type Page struct {
	Rows       []database.Row
	Count      int64
	Pagination *Pagination
}

// Pagination describes the page a result set belongs to.
type Pagination struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Find executes the query and returns every matching row.
func (b Builder) Find(ctx context.Context, exec database.Executor) ([]database.Row, error) {
	sql, params, err := b.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := exec.Execute(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", b.table, err)
	}
	return rows, nil
}

// FindOne executes the query limited to one row.
func (b Builder) FindOne(ctx context.Context, exec database.Executor) (database.Row, error) {
	rows, err := b.Limit(1).Find(ctx, exec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count returns the number of rows matching the conditions.
func (b Builder) Count(ctx context.Context, exec database.Executor) (int64, error) {
	sql, params, err := b.CountSQL()
	if err != nil {
		return 0, err
	}

	rows, err := exec.Execute(ctx, sql, params...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", b.table, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("failed to count %s: no result row", b.table)
	}

	return toInt64(rows[0]["count"])
}

// FindAndCount returns the matching rows together with the total count.
func (b Builder) FindAndCount(ctx context.Context, exec database.Executor) (Page, error) {
	rows, err := b.Find(ctx, exec)
	if err != nil {
		return Page{}, err
	}

	count, err := b.Count(ctx, exec)
	if err != nil {
		return Page{}, err
	}

	page := Page{Rows: rows, Count: count}
	if b.limit > 0 {
		page.Pagination = &Pagination{
			Page:       b.offset/b.limit + 1,
			Limit:      b.limit,
			Total:      count,
			TotalPages: int((count + int64(b.limit) - 1) / int64(b.limit)),
		}
	}
	return page, nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse count %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected count value %T", value)
	}
}
