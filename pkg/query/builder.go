package query

import (
	"fmt"
	"reflect"
	"strings"
)

// SortField names a projected property to order by.
type SortField struct {
	Field      string
	Descending bool
}

// Builder accumulates WHERE conditions and ordering against a projection,
// numbering placeholders as conditions are added. The zero set of conditions
// produces an unfiltered statement.
type Builder struct {
	projection *ProjectionMap
	where      []string
	args       []any
	sort       []SortField
	fallback   []SortField
}

// NewBuilder creates a Builder over the projection. defaultSort applies when
// no explicit ordering is set.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection: projection,
		fallback:   defaultSort,
	}
}

// OrderByFields replaces the default sort order.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sort = fields
	return b
}

// WhereEquals adds an equality condition. Nil values are ignored so optional
// filters can be applied unconditionally.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	b.args = append(b.args, value)
	b.where = append(b.where, fmt.Sprintf("%s = $%d", b.projection.Column(field), len(b.args)))
	return b
}

// WhereContains adds a case-insensitive substring condition. Nil and empty
// values are ignored.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	b.args = append(b.args, "%"+*value+"%")
	b.where = append(b.where, fmt.Sprintf("%s ILIKE $%d", b.projection.Column(field), len(b.args)))
	return b
}

// WhereSearch adds a single condition matching the search term against any of
// the given fields. Nil and empty terms are ignored.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	pattern := "%" + *search + "%"
	clauses := make([]string, len(fields))
	for i, field := range fields {
		b.args = append(b.args, pattern)
		clauses[i] = fmt.Sprintf("%s ILIKE $%d", b.projection.Column(field), len(b.args))
	}

	b.where = append(b.where, "("+strings.Join(clauses, " OR ")+")")
	return b
}

// Build returns the filtered, ordered SELECT statement and its arguments.
func (b *Builder) Build() (string, []any) {
	return b.selectSQL() + b.whereSQL() + b.orderSQL(), b.args
}

// BuildCount returns a COUNT(*) statement over the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	return "SELECT COUNT(*) FROM " + b.projection.From() + b.whereSQL(), b.args
}

// BuildPage returns a SELECT statement limited to one page of results.
// Pages are one-based.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	offset := (page - 1) * pageSize
	sql := fmt.Sprintf("%s%s%s LIMIT %d OFFSET %d",
		b.selectSQL(), b.whereSQL(), b.orderSQL(), pageSize, offset)
	return sql, b.args
}

// BuildSingle returns a SELECT statement fetching one record by the given
// identity property, independent of any accumulated conditions.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	sql := fmt.Sprintf("%s WHERE %s = $1", b.selectSQL(), b.projection.Column(idField))
	return sql, []any{id}
}

// BuildSingleOrNull returns a SELECT statement limited to the first row
// matching the current conditions.
func (b *Builder) BuildSingleOrNull() (string, []any) {
	return b.selectSQL() + b.whereSQL() + b.orderSQL() + " LIMIT 1", b.args
}

func (b *Builder) selectSQL() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.From()
}

func (b *Builder) whereSQL() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *Builder) orderSQL() string {
	fields := b.sort
	if len(fields) == 0 {
		fields = b.fallback
	}
	if len(fields) == 0 {
		return ""
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts[i] = b.projection.Column(f.Field) + " " + dir
	}

	return " ORDER BY " + strings.Join(parts, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}

	return false
}
