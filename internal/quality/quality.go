// Package quality drops low-information signal columns and relabels enum
// codes with their catalog labels.
package quality

import (
	"math"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/table"
	"github.com/rs/zerolog/log"
)

const (
	ReasonHighNulls     = "high nulls"
	ReasonLowUniqueness = "low uniqueness"
)

// Thresholds configures the drop policy. A column is dropped when its null
// fraction is strictly above MaxNullFraction, or, for non-enum columns,
// when it has fewer than MinUniqueNonEnum distinct values.
type Thresholds struct {
	MaxNullFraction  float64
	MinUniqueNonEnum int
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxNullFraction: 0.10, MinUniqueNonEnum: 2}
}

// Drop records one dropped column.
type Drop struct {
	Column       string
	Reason       string
	NullFraction float64
	Unique       int
}

// Report is the outcome of one FilterAndLabel call.
type Report struct {
	File    string
	Dropped []Drop
	Kept    []string
	Labeled []string
	Failed  []string
}

func (r Report) DroppedCount() int { return len(r.Dropped) }
func (r Report) KeptCount() int    { return len(r.Kept) }
func (r Report) LabeledCount() int { return len(r.Labeled) }
func (r Report) FailedCount() int  { return len(r.Failed) }

// FilterAndLabel applies the drop policy to every signal column and then
// labels retained enum columns. time and arbitration_id are never dropped.
func FilterAndLabel(t *table.Table, enums catalog.EnumMap, th Thresholds) (*table.Table, Report) {
	rep := Report{File: t.Name}
	out := table.New(t.Name, t.Source)
	for _, c := range t.Columns {
		if c.Name == table.TimeColumn || c.Name == table.IDColumn {
			out.Columns = append(out.Columns, c)
			continue
		}
		_, isEnum := enums[c.Name]
		if reason, drop := dropReason(c, isEnum, th); drop {
			rep.Dropped = append(rep.Dropped, Drop{
				Column:       c.Name,
				Reason:       reason,
				NullFraction: c.NullFraction(),
				Unique:       c.Unique(),
			})
			continue
		}
		rep.Kept = append(rep.Kept, c.Name)
		if !isEnum {
			out.Columns = append(out.Columns, c)
			continue
		}
		labeled, ok := labelColumn(c, enums)
		if !ok {
			log.Warn().Msgf("quality.FilterAndLabel label skipped file=%s column=%s kind=%s", t.Name, c.Name, c.Kind)
			rep.Failed = append(rep.Failed, c.Name)
			out.Columns = append(out.Columns, c)
			continue
		}
		rep.Labeled = append(rep.Labeled, c.Name)
		out.Columns = append(out.Columns, labeled)
	}
	return table.Sanitize(out), rep
}

func dropReason(c *table.Column, isEnum bool, th Thresholds) (string, bool) {
	if c.NullFraction() > th.MaxNullFraction {
		return ReasonHighNulls, true
	}
	if !isEnum && c.Unique() < th.MinUniqueNonEnum {
		return ReasonLowUniqueness, true
	}
	return "", false
}

// labelColumn rounds each value to the nearest code and substitutes the
// label. Codes without a label keep their original value. It fails when any
// value is not numeric.
func labelColumn(c *table.Column, enums catalog.EnumMap) (*table.Column, bool) {
	values := make([]any, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		f, ok := table.ToFloat(v)
		if !ok || math.IsInf(f, 0) {
			return nil, false
		}
		if label, ok := enums.Label(c.Name, int64(math.Round(f))); ok {
			values[i] = label
			continue
		}
		values[i] = v
	}
	return table.NewColumn(c.Name, values), true
}
