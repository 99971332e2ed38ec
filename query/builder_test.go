package query_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"

	"github.com/lib/pq"

	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/query"
)

func TestToSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		builder        query.Builder
		expectedSQL    string
		expectedParams []any
	}{
		{
			name:           "select all",
			builder:        query.New("users"),
			expectedSQL:    "SELECT * FROM users",
			expectedParams: nil,
		},
		{
			name:           "selected columns",
			builder:        query.New("users").Select("id", "email"),
			expectedSQL:    "SELECT id, email FROM users",
			expectedParams: nil,
		},
		{
			name:           "conditions joined with and",
			builder:        query.New("users").WhereEq("name", "John").Where("age", query.Gt, 18),
			expectedSQL:    "SELECT * FROM users WHERE name = $1 AND age > $2",
			expectedParams: []any{"John", 18},
		},
		{
			name:           "like and ilike",
			builder:        query.New("users").WhereLike("name", "%jo%").WhereILike("email", "%@gmail.com"),
			expectedSQL:    "SELECT * FROM users WHERE name LIKE $1 AND email ILIKE $2",
			expectedParams: []any{"%jo%", "%@gmail.com"},
		},
		{
			name:           "conditions from map are sorted",
			builder:        query.New("users").WhereAll(map[string]any{"name": "John", "age": 25}),
			expectedSQL:    "SELECT * FROM users WHERE age = $1 AND name = $2",
			expectedParams: []any{25, "John"},
		},
		{
			name:           "order limit offset",
			builder:        query.New("users").WhereEq("active", true).OrderBy("created_at", query.Desc).OrderBy("id", "").Limit(10).Offset(20),
			expectedSQL:    "SELECT * FROM users WHERE active = $1 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3",
			expectedParams: []any{true, 10, 20},
		},
		{
			name:           "paginate",
			builder:        query.New("users").Paginate(3, 25),
			expectedSQL:    "SELECT * FROM users LIMIT $1 OFFSET $2",
			expectedParams: []any{25, 50},
		},
		{
			name:           "first page has no offset",
			builder:        query.New("users").Paginate(1, 25),
			expectedSQL:    "SELECT * FROM users LIMIT $1",
			expectedParams: []any{25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sql, params, err := tt.builder.ToSQL()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if sql != tt.expectedSQL {
				t.Errorf("expected SQL %q, got %q", tt.expectedSQL, sql)
			}
			if !reflect.DeepEqual(params, tt.expectedParams) {
				t.Errorf("expected params %v, got %v", tt.expectedParams, params)
			}
		})
	}
}

func TestToSQLMembership(t *testing.T) {
	t.Parallel()

	sql, params, err := query.New("users").
		WhereIn("status", []string{"active", "pending"}).
		WhereNotIn("role", []string{"banned"}).
		ToSQL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT * FROM users WHERE status = ANY($1) AND role <> ALL($2)"
	if sql != expected {
		t.Errorf("expected SQL %q, got %q", expected, sql)
	}

	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}

	valuer, ok := params[0].(driver.Valuer)
	if !ok {
		t.Fatalf("expected driver.Valuer, got %T", params[0])
	}
	value, err := valuer.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != `{"active","pending"}` {
		t.Errorf("expected array literal, got %v", value)
	}

	if !reflect.DeepEqual(params[1], pq.Array([]string{"banned"})) {
		t.Errorf("expected pq.Array param, got %#v", params[1])
	}
}

func TestToSQLEmptyMembership(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values any
	}{
		{"untyped nil", nil},
		{"nil slice", []int(nil)},
		{"empty slice", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, params, err := query.New("users").WhereNotIn("id", tt.values).ToSQL()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			valuer, ok := params[0].(driver.Valuer)
			if !ok {
				t.Fatalf("expected driver.Valuer, got %T", params[0])
			}
			value, err := valuer.Value()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value != "{}" {
				t.Errorf("expected empty array literal, got %#v", value)
			}
		})
	}
}

func TestBuilderIsImmutable(t *testing.T) {
	t.Parallel()

	base := query.New("users").WhereEq("active", true)
	admins := base.WhereEq("role", "admin")
	guests := base.WhereEq("role", "guest")

	if len(base.Conditions()) != 1 {
		t.Errorf("expected base to keep 1 condition, got %d", len(base.Conditions()))
	}

	adminConditions := admins.Conditions()
	guestConditions := guests.Conditions()
	if adminConditions[1].Value != "admin" || guestConditions[1].Value != "guest" {
		t.Errorf("expected derived builders to be independent, got %v and %v", adminConditions, guestConditions)
	}
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		builder  query.Builder
		expected error
	}{
		{"invalid operator", query.New("users").Where("age", "=>", 1), query.ErrInvalidOperator},
		{"sql injection in operator", query.New("users").Where("age", "= 1; DROP TABLE users; --", 1), query.ErrInvalidOperator},
		{"invalid direction", query.New("users").OrderBy("age", "SIDEWAYS"), query.ErrInvalidDirection},
		{"missing table", query.New(""), query.ErrMissingTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, _, err := tt.builder.ToSQL(); !errors.Is(err, tt.expected) {
				t.Errorf("ToSQL: expected %v, got %v", tt.expected, err)
			}
			if _, _, err := tt.builder.CountSQL(); !errors.Is(err, tt.expected) {
				t.Errorf("CountSQL: expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestCountSQL(t *testing.T) {
	t.Parallel()

	sql, params, err := query.New("users").WhereEq("active", true).OrderBy("id", query.Asc).Limit(5).CountSQL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sql != "SELECT COUNT(*) AS count FROM users WHERE active = $1" {
		t.Errorf("unexpected SQL %q", sql)
	}
	if !reflect.DeepEqual(params, []any{true}) {
		t.Errorf("unexpected params %v", params)
	}
}

type recordingExecutor struct {
	queries [][]any
	results map[string][]database.Row
	err     error
}

func (e *recordingExecutor) Execute(_ context.Context, sql string, args ...any) ([]database.Row, error) {
	e.queries = append(e.queries, append([]any{sql}, args...))
	if e.err != nil {
		return nil, e.err
	}
	return e.results[sql], nil
}

func TestExecute(t *testing.T) {
	t.Parallel()

	t.Run("find", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{results: map[string][]database.Row{
			"SELECT * FROM users WHERE active = $1": {{"id": int64(1)}, {"id": int64(2)}},
		}}

		rows, err := query.New("users").WhereEq("active", true).Find(context.Background(), exec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("expected 2 rows, got %d", len(rows))
		}
	})

	t.Run("find one limits to one row", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{results: map[string][]database.Row{
			"SELECT * FROM users WHERE id = $1 LIMIT $2": {{"id": int64(7)}},
		}}

		row, err := query.New("users").WhereEq("id", 7).FindOne(context.Background(), exec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if row["id"] != int64(7) {
			t.Errorf("expected id 7, got %v", row["id"])
		}
		if !reflect.DeepEqual(exec.queries[0][1:], []any{7, 1}) {
			t.Errorf("expected params [7 1], got %v", exec.queries[0][1:])
		}
	})

	t.Run("find one without match", func(t *testing.T) {
		t.Parallel()

		_, err := query.New("users").WhereEq("id", 7).FindOne(context.Background(), &recordingExecutor{})
		if !errors.Is(err, query.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("count", func(t *testing.T) {
		t.Parallel()

		for _, value := range []any{int64(42), "42"} {
			exec := &recordingExecutor{results: map[string][]database.Row{
				"SELECT COUNT(*) AS count FROM users": {{"count": value}},
			}}

			count, err := query.New("users").Count(context.Background(), exec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if count != 42 {
				t.Errorf("expected 42, got %d", count)
			}
		}
	})

	t.Run("find and count", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{results: map[string][]database.Row{
			"SELECT * FROM users LIMIT $1 OFFSET $2": {{"id": int64(11)}, {"id": int64(12)}},
			"SELECT COUNT(*) AS count FROM users":    {{"count": int64(23)}},
		}}

		page, err := query.New("users").Paginate(2, 10).FindAndCount(context.Background(), exec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(page.Rows) != 2 || page.Count != 23 {
			t.Errorf("unexpected page %+v", page)
		}
		expected := &query.Pagination{Page: 2, Limit: 10, Total: 23, TotalPages: 3}
		if !reflect.DeepEqual(page.Pagination, expected) {
			t.Errorf("expected pagination %+v, got %+v", expected, page.Pagination)
		}
	})

	t.Run("executor error is wrapped", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")

		_, err := query.New("users").Find(context.Background(), &recordingExecutor{err: errBoom})
		if !errors.Is(err, errBoom) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})

	t.Run("invalid builder sends nothing", func(t *testing.T) {
		t.Parallel()

		exec := &recordingExecutor{}

		_, err := query.New("users").Where("x", "~", 1).Find(context.Background(), exec)
		if !errors.Is(err, query.ErrInvalidOperator) {
			t.Errorf("expected ErrInvalidOperator, got %v", err)
		}
		if len(exec.queries) != 0 {
			t.Errorf("expected no queries, got %v", exec.queries)
		}
	})
}
