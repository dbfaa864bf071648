// Package query builds parameterized SQL statements from projection mappings.
package query

import "strings"

// ProjectionMap ties view property names to qualified columns on a single
// aliased table. Builders resolve property names through it so repositories
// never embed raw column references in filter code.
type ProjectionMap struct {
	from    string
	alias   string
	columns map[string]string
	order   []string
}

// NewProjectionMap starts a projection over schema.table with the given alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		from:    schema + "." + table + " " + alias,
		alias:   alias,
		columns: make(map[string]string),
	}
}

// Project registers a column under a view property name. Columns render in
// registration order, so scan functions can rely on a stable sequence.
func (p *ProjectionMap) Project(column, property string) *ProjectionMap {
	qualified := p.alias + "." + column
	p.columns[property] = qualified
	p.order = append(p.order, qualified)
	return p
}

// Column resolves a property to its qualified column. Unprojected names pass
// through unchanged, which lets callers reference expressions directly.
func (p *ProjectionMap) Column(property string) string {
	if col, ok := p.columns[property]; ok {
		return col
	}
	return property
}

// Columns renders the full projected column list for a SELECT clause.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.order, ", ")
}

// From returns the aliased table reference for a FROM clause.
func (p *ProjectionMap) From() string {
	return p.from
}
