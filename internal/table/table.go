// Package table owns the columnar signal table shared by every pipeline stage.
//
// Ownership boundary:
// - column model and kinds
// - canonical time representation and column ordering
// - type sanitization for strongly-typed sinks
//
// Missing values are nil in every column kind.
package table

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	TimeColumn = "time"
	IDColumn   = "arbitration_id"
)

var (
	ErrDuplicateColumn = errors.New("table: duplicate column")
	ErrMissingTime     = errors.New("table: missing time column")
	ErrLengthMismatch  = errors.New("table: column length mismatch")
)

// Kind is the storage class of a column.
type Kind uint8

const (
	KindMixed Kind = iota
	KindTime
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "datetime"
	case KindFloat:
		return "float64"
	case KindText:
		return "string"
	default:
		return "object"
	}
}

// Column is one named series. Values hold time.Time, float64 or string
// depending on Kind; KindMixed may hold any of them.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NewColumn infers the kind of values.
func NewColumn(name string, values []any) *Column {
	return &Column{Name: name, Kind: InferKind(values), Values: values}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// NullFraction is NullCount/Len; an empty column has no missing values.
func (c *Column) NullFraction() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return float64(c.NullCount()) / float64(len(c.Values))
}

// Unique counts distinct non-missing values.
func (c *Column) Unique() int {
	seen := make(map[any]struct{})
	for _, v := range c.Values {
		if v == nil {
			continue
		}
		if ts, ok := v.(time.Time); ok {
			v = ts.UnixNano()
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Table is an ordered set of equal-length columns. Tables are treated as
// immutable once a stage returns them; transformations build new tables.
type Table struct {
	// Name is the file stem the table was read from or will be written to.
	Name string
	// Source is the catalog tag the table was decoded with.
	Source  string
	Columns []*Column
}

// New returns an empty table without columns.
func New(name, source string) *Table {
	return &Table{Name: name, Source: source}
}

// Empty returns the canonical zero-row table.
func Empty(name, source string) *Table {
	return &Table{
		Name:   name,
		Source: source,
		Columns: []*Column{
			{Name: TimeColumn, Kind: KindTime, Values: []any{}},
			{Name: IDColumn, Kind: KindText, Values: []any{}},
		},
	}
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// Column finds a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// AddColumn appends c, rejecting duplicates and mismatched lengths.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.Column(c.Name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
	}
	if len(t.Columns) > 0 && c.Len() != t.Len() {
		return fmt.Errorf("%w: %q has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.Len())
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// ColumnNames returns column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// SignalNames returns every column name except time.
func (t *Table) SignalNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == TimeColumn {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// Select returns a table holding only the named columns, in the given order.
// Unknown names are ignored.
func (t *Table) Select(names []string) *Table {
	out := &Table{Name: t.Name, Source: t.Source}
	for _, name := range names {
		if c, ok := t.Column(name); ok {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Take builds a table from the rows at idx, in idx order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{Name: t.Name, Source: t.Source, Columns: make([]*Column, 0, len(t.Columns))}
	for _, c := range t.Columns {
		values := make([]any, len(idx))
		for i, row := range idx {
			values[i] = c.Values[row]
		}
		out.Columns = append(out.Columns, &Column{Name: c.Name, Kind: c.Kind, Values: values})
	}
	return out
}

// WithName returns a shallow copy of t renamed to name.
func (t *Table) WithName(name string) *Table {
	out := *t
	out.Name = name
	return &out
}

// OrderColumns applies the canonical order: time, arbitration_id, then the
// remaining names ascending.
func OrderColumns(names []string) []string {
	out := make([]string, 0, len(names))
	rest := make([]string, 0, len(names))
	hasTime, hasID := false, false
	for _, name := range names {
		switch name {
		case TimeColumn:
			hasTime = true
		case IDColumn:
			hasID = true
		default:
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	if hasTime {
		out = append(out, TimeColumn)
	}
	if hasID {
		out = append(out, IDColumn)
	}
	return append(out, rest...)
}

// InferKind returns the narrowest kind holding every non-missing value.
func InferKind(values []any) Kind {
	kind := KindMixed
	first := true
	for _, v := range values {
		var k Kind
		switch v.(type) {
		case nil:
			continue
		case time.Time:
			k = KindTime
		case float64:
			k = KindFloat
		case string:
			k = KindText
		default:
			return KindMixed
		}
		if first {
			kind = k
			first = false
			continue
		}
		if k != kind {
			return KindMixed
		}
	}
	if first {
		// all missing
		return KindFloat
	}
	return kind
}

// ToFloat converts numeric values and numeric text to float64. NaN is
// reported as not numeric.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FormatValue renders a value as text; nil renders as the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
