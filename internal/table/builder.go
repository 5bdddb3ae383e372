package table

import (
	"math"
	"sort"
)

// Builder accumulates sparse rows and assembles a table whose columns are
// padded with missing values. Column layout never depends on map order.
type Builder struct {
	name    string
	source  string
	columns map[string][]any
	rows    int
}

func NewBuilder(name, source string) *Builder {
	return &Builder{name: name, source: source, columns: make(map[string][]any)}
}

// Append adds one row. NaN floats are stored as missing.
func (b *Builder) Append(row map[string]any) {
	for name, v := range row {
		col, ok := b.columns[name]
		if !ok {
			col = make([]any, b.rows, b.rows+1)
		}
		if f, isFloat := v.(float64); isFloat && math.IsNaN(f) {
			v = nil
		}
		b.columns[name] = append(col, v)
	}
	b.rows++
	for name, col := range b.columns {
		if len(col) < b.rows {
			b.columns[name] = append(col, nil)
		}
	}
}

// Rows returns the number of appended rows.
func (b *Builder) Rows() int {
	return b.rows
}

// Build assembles the table in canonical column order.
func (b *Builder) Build() *Table {
	if b.rows == 0 {
		return Empty(b.name, b.source)
	}
	names := make([]string, 0, len(b.columns))
	for name := range b.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	out := New(b.name, b.source)
	for _, name := range OrderColumns(names) {
		out.Columns = append(out.Columns, NewColumn(name, b.columns[name]))
	}
	return out
}
