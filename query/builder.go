// Package query builds parameterized SELECT statements against a single table.
package query

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Operator is a comparison used in a WHERE condition.
type Operator string

const (
	Eq    Operator = "="
	NotEq Operator = "!="
	Gt    Operator = ">"
	Lt    Operator = "<"
	Gte   Operator = ">="
	Lte   Operator = "<="
	In    Operator = "IN"
	NotIn Operator = "NOT IN"
	Like  Operator = "LIKE"
	ILike Operator = "ILIKE"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

var (
	// ErrInvalidOperator is returned when a condition uses an unknown operator.
	ErrInvalidOperator = errors.New("invalid query operator")
	// ErrInvalidDirection is returned when an order uses an unknown direction.
	ErrInvalidDirection = errors.New("invalid order direction")
	// ErrMissingTable is returned when a builder has no table.
	ErrMissingTable = errors.New("query requires table name")
)

// Condition is a single predicate. Conditions are joined with AND.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Order is a single ORDER BY entry.
type Order struct {
	Field     string
	Direction Direction
}

// Builder accumulates query state. Every method returns a new Builder,
// so a partially built query can be shared and extended safely.
type Builder struct {
	table      string
	fields     []string
	conditions []Condition
	orders     []Order
	limit      int
	offset     int
	err        error
}

// New returns a Builder selecting from table.
func New(table string) Builder {
	return Builder{table: table}
}

// Table returns the table the builder selects from.
func (b Builder) Table() string {
	return b.table
}

// Where adds a condition.
func (b Builder) Where(field string, op Operator, value any) Builder {
	if !validOperator(op) && b.err == nil {
		b.err = fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	b.conditions = append(slices.Clip(b.conditions), Condition{Field: field, Operator: op, Value: value})
	return b
}

// WhereEq adds an equality condition.
func (b Builder) WhereEq(field string, value any) Builder {
	return b.Where(field, Eq, value)
}

// WhereAll adds an equality condition per entry, ordered by field name.
func (b Builder) WhereAll(values map[string]any) Builder {
	for _, field := range slices.Sorted(maps.Keys(values)) {
		b = b.WhereEq(field, values[field])
	}
	return b
}

// WhereIn adds a membership condition. values must be a slice.
func (b Builder) WhereIn(field string, values any) Builder {
	return b.Where(field, In, values)
}

// WhereNotIn adds a negated membership condition. values must be a slice.
func (b Builder) WhereNotIn(field string, values any) Builder {
	return b.Where(field, NotIn, values)
}

// WhereLike adds a case sensitive pattern condition.
func (b Builder) WhereLike(field, pattern string) Builder {
	return b.Where(field, Like, pattern)
}

// WhereILike adds a case insensitive pattern condition.
func (b Builder) WhereILike(field, pattern string) Builder {
	return b.Where(field, ILike, pattern)
}

// OrderBy adds a sort entry. An empty direction means ascending.
func (b Builder) OrderBy(field string, direction Direction) Builder {
	if direction == "" {
		direction = Asc
	}
	if direction != Asc && direction != Desc && b.err == nil {
		b.err = fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	b.orders = append(slices.Clip(b.orders), Order{Field: field, Direction: direction})
	return b
}

// Limit caps the number of rows. Zero means no limit.
func (b Builder) Limit(count int) Builder {
	b.limit = count
	return b
}

// Offset skips rows. Zero means no offset.
func (b Builder) Offset(count int) Builder {
	b.offset = count
	return b
}

// Select restricts the selected columns. No columns selects all.
func (b Builder) Select(fields ...string) Builder {
	b.fields = slices.Clone(fields)
	return b
}

// Paginate sets limit and offset for a 1-based page.
func (b Builder) Paginate(page, perPage int) Builder {
	if page < 1 {
		page = 1
	}
	return b.Limit(perPage).Offset((page - 1) * perPage)
}

// Conditions returns a copy of the accumulated conditions.
func (b Builder) Conditions() []Condition {
	return slices.Clone(b.conditions)
}

// Orders returns a copy of the accumulated sort entries.
func (b Builder) Orders() []Order {
	return slices.Clone(b.orders)
}

// Err returns the first error recorded while building.
func (b Builder) Err() error {
	return b.err
}

// ToSQL renders the SELECT statement and its bind values in placeholder order.
func (b Builder) ToSQL() (string, []any, error) {
	if err := b.validate(); err != nil {
		return "", nil, err
	}

	columns := "*"
	if len(b.fields) > 0 {
		columns = strings.Join(b.fields, ", ")
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(columns)
	sql.WriteString(" FROM ")
	sql.WriteString(b.table)

	params := b.writeWhere(&sql, nil)

	if len(b.orders) > 0 {
		orders := make([]string, 0, len(b.orders))
		for _, o := range b.orders {
			orders = append(orders, o.Field+" "+string(o.Direction))
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(orders, ", "))
	}

	if b.limit > 0 {
		params = append(params, b.limit)
		sql.WriteString(" LIMIT " + placeholder(len(params)))
	}

	if b.offset > 0 {
		params = append(params, b.offset)
		sql.WriteString(" OFFSET " + placeholder(len(params)))
	}

	return sql.String(), params, nil
}

// CountSQL renders a COUNT statement over the same conditions, ignoring order, limit and offset.
func (b Builder) CountSQL() (string, []any, error) {
	if err := b.validate(); err != nil {
		return "", nil, err
	}

	var sql strings.Builder
	sql.WriteString("SELECT COUNT(*) AS count FROM ")
	sql.WriteString(b.table)

	params := b.writeWhere(&sql, nil)
	return sql.String(), params, nil
}

func (b Builder) validate() error {
	if b.err != nil {
		return b.err
	}
	if b.table == "" {
		return ErrMissingTable
	}
	return nil
}

func (b Builder) writeWhere(sql *strings.Builder, params []any) []any {
	if len(b.conditions) == 0 {
		return params
	}

	clauses := make([]string, 0, len(b.conditions))
	for _, c := range b.conditions {
		switch c.Operator {
		case In:
			params = append(params, membership(c.Value))
			clauses = append(clauses, fmt.Sprintf("%s = ANY(%s)", c.Field, placeholder(len(params))))
		case NotIn:
			params = append(params, membership(c.Value))
			clauses = append(clauses, fmt.Sprintf("%s <> ALL(%s)", c.Field, placeholder(len(params))))
		default:
			params = append(params, c.Value)
			clauses = append(clauses, fmt.Sprintf("%s %s %s", c.Field, c.Operator, placeholder(len(params))))
		}
	}

	sql.WriteString(" WHERE ")
	sql.WriteString(strings.Join(clauses, " AND "))
	return params
}

// membership binds values as an array parameter. A nil value or nil slice
// binds an empty array instead of NULL so NOT IN with nothing excluded matches every row.
func membership(values any) any {
	if values == nil {
		return pq.StringArray{}
	}
	if v := reflect.ValueOf(values); v.Kind() == reflect.Slice && v.IsNil() {
		return pq.StringArray{}
	}
	return pq.Array(values)
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func validOperator(op Operator) bool {
	switch op {
	case Eq, NotEq, Gt, Lt, Gte, Lte, In, NotIn, Like, ILike:
		return true
	default:
		return false
	}
}
