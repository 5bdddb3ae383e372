package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize converts the time column to UTC instants and applies the
// canonical column order. Numeric time values are seconds since epoch;
// values that cannot be interpreted become missing.
func Normalize(t *Table) (*Table, error) {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	timeCol, ok := t.Column(TimeColumn)
	if !ok {
		return nil, ErrMissingTime
	}

	out := &Table{Name: t.Name, Source: t.Source, Columns: make([]*Column, 0, len(t.Columns))}
	for _, name := range OrderColumns(t.ColumnNames()) {
		c, _ := t.Column(name)
		if name == TimeColumn {
			c = normalizeTime(timeCol)
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

func normalizeTime(c *Column) *Column {
	values := make([]any, len(c.Values))
	for i, v := range c.Values {
		if ts, ok := ParseTime(v); ok {
			values[i] = ts
		}
	}
	return &Column{Name: c.Name, Kind: KindTime, Values: values}
}

// ParseTime interprets v as an instant. Numbers are seconds since epoch.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromSeconds(f)
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), true
		}
		return time.Time{}, false
	default:
		f, ok := ToFloat(v)
		if !ok {
			return time.Time{}, false
		}
		return fromSeconds(f)
	}
}

func fromSeconds(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	// beyond this int64 nanoseconds overflow
	if math.Abs(f) > 9.2e9 {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	nsec := math.Round(frac * 1e9)
	return time.Unix(int64(sec), int64(nsec)).UTC(), true
}

// DropMissingTime removes rows whose time is missing.
func DropMissingTime(t *Table) *Table {
	timeCol, ok := t.Column(TimeColumn)
	if !ok {
		return t
	}
	keep := make([]int, 0, timeCol.Len())
	for i, v := range timeCol.Values {
		if v != nil {
			keep = append(keep, i)
		}
	}
	if len(keep) == timeCol.Len() {
		return t
	}
	return t.Take(keep)
}

// Sanitize makes every column representable in a strongly-typed sink: a
// mixed column becomes float when every value parses numerically and text
// otherwise.
func Sanitize(t *Table) *Table {
	out := &Table{Name: t.Name, Source: t.Source, Columns: make([]*Column, 0, len(t.Columns))}
	for _, c := range t.Columns {
		if c.Kind != KindMixed || c.Name == TimeColumn {
			out.Columns = append(out.Columns, c)
			continue
		}
		out.Columns = append(out.Columns, sanitizeColumn(c))
	}
	return out
}

func sanitizeColumn(c *Column) *Column {
	floats := make([]any, len(c.Values))
	numeric := true
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		f, ok := ToFloat(v)
		if !ok {
			numeric = false
			break
		}
		floats[i] = f
	}
	if numeric {
		return &Column{Name: c.Name, Kind: KindFloat, Values: floats}
	}
	texts := make([]any, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		texts[i] = FormatValue(v)
	}
	return &Column{Name: c.Name, Kind: KindText, Values: texts}
}
