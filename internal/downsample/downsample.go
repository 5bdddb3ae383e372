// Package downsample resamples signal tables onto a fixed time grid with
// per-column aggregation chosen by signal type.
package downsample

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/table"
)

const DefaultPeriod = time.Second

// maxBins bounds the output grid of a single table.
const maxBins = 50_000_000

var (
	ErrInvalidPeriod = errors.New("downsample: period must be positive")
	ErrTooManyBins   = errors.New("downsample: time span too large for period")
)

// Aggregation is the per-interval reduction applied to one column.
type Aggregation uint8

const (
	AggFirst Aggregation = iota
	AggMean
	AggMode
)

func (a Aggregation) String() string {
	switch a {
	case AggMean:
		return "mean"
	case AggMode:
		return "mode"
	default:
		return "first"
	}
}

// AggregationFor picks the reduction for a column. Declared signal types
// win; columns without a declaration fall back to their storage kind.
func AggregationFor(name string, kind table.Kind, types map[string]catalog.DataType) Aggregation {
	if name == table.IDColumn {
		return AggFirst
	}
	switch types[name] {
	case catalog.DataTypeEnum:
		return AggMode
	case catalog.DataTypeFloat, catalog.DataTypeInt:
		if kind == table.KindText {
			return AggFirst
		}
		return AggMean
	}
	if kind == table.KindFloat {
		return AggMean
	}
	return AggFirst
}

// Downsample partitions rows into half-open intervals of period anchored at
// the first timestamp and emits one row per interval spanned, empty
// intervals included. Rows with missing time are dropped first.
func Downsample(t *table.Table, types map[string]catalog.DataType, period time.Duration) (*table.Table, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	norm, err := table.Normalize(t)
	if err != nil {
		return nil, err
	}
	norm = table.DropMissingTime(norm)
	if norm.IsEmpty() {
		return table.Empty(t.Name, t.Source), nil
	}
	norm = sortByTime(norm)

	timeCol, _ := norm.Column(table.TimeColumn)
	start := timeCol.Values[0].(time.Time)
	last := timeCol.Values[len(timeCol.Values)-1].(time.Time)
	span := int64(last.Sub(start) / period)
	if span >= maxBins {
		return nil, fmt.Errorf("%w: %d intervals", ErrTooManyBins, span+1)
	}
	nBins := int(span) + 1

	// bins[k] lists row indexes in interval k, in time order
	bins := make([][]int, nBins)
	for i, v := range timeCol.Values {
		k := int(v.(time.Time).Sub(start) / period)
		bins[k] = append(bins[k], i)
	}

	out := table.New(t.Name, t.Source)
	grid := make([]any, nBins)
	for k := range grid {
		grid[k] = start.Add(time.Duration(k) * period)
	}
	out.Columns = append(out.Columns, &table.Column{Name: table.TimeColumn, Kind: table.KindTime, Values: grid})

	for _, c := range norm.Columns {
		if c.Name == table.TimeColumn {
			continue
		}
		agg := AggregationFor(c.Name, c.Kind, types)
		values := make([]any, nBins)
		for k, rows := range bins {
			values[k] = aggregate(agg, c.Values, rows)
		}
		out.Columns = append(out.Columns, table.NewColumn(c.Name, values))
	}
	return table.Normalize(out)
}

func sortByTime(t *table.Table) *table.Table {
	timeCol, _ := t.Column(table.TimeColumn)
	idx := make([]int, timeCol.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return timeCol.Values[idx[a]].(time.Time).Before(timeCol.Values[idx[b]].(time.Time))
	})
	return t.Take(idx)
}

func aggregate(agg Aggregation, values []any, rows []int) any {
	switch agg {
	case AggMean:
		return mean(values, rows)
	case AggMode:
		return mode(values, rows)
	default:
		return first(values, rows)
	}
}

func first(values []any, rows []int) any {
	for _, i := range rows {
		if values[i] != nil {
			return values[i]
		}
	}
	return nil
}

func mean(values []any, rows []int) any {
	var (
		sum float64
		n   int
	)
	for _, i := range rows {
		f, ok := table.ToFloat(values[i])
		if !ok {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return nil
	}
	return sum / float64(n)
}

// mode returns the most frequent non-missing value; ties go to the
// smallest value.
func mode(values []any, rows []int) any {
	counts := make(map[any]int)
	var order []any
	for _, i := range rows {
		v := values[i]
		if v == nil {
			continue
		}
		if f, ok := table.ToFloat(v); ok {
			v = f
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	var (
		best      any
		bestCount int
	)
	for _, v := range order {
		n := counts[v]
		if n > bestCount || (n == bestCount && less(v, best)) {
			best, bestCount = v, n
		}
	}
	return best
}

func less(a, b any) bool {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	switch {
	case aNum && bNum:
		return fa < fb
	case aNum != bNum:
		return aNum
	default:
		return strings.Compare(table.FormatValue(a), table.FormatValue(b)) < 0
	}
}
