// Package merge concatenates filtered tables that share a source catalog.
package merge

import (
	"errors"
	"sort"
	"time"

	"github.com/danmuck/busdecode/internal/table"
)

var ErrEmptyGroup = errors.New("merge: group has no tables")

// Group is the set of tables decoded with one catalog.
type Group struct {
	Source string
	Tables []*table.Table
}

// GroupBySource groups tables by their source tag. Groups are ordered by
// tag; member order follows input order.
func GroupBySource(tables []*table.Table) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, t := range tables {
		i, ok := index[t.Source]
		if !ok {
			i = len(groups)
			index[t.Source] = i
			groups = append(groups, Group{Source: t.Source})
		}
		groups[i].Tables = append(groups[i].Tables, t)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Source < groups[b].Source })
	return groups
}

// Merge unions the column sets of tables, concatenates their rows without
// dedup and stable-sorts the result by time. Missing times sort last.
// Columns left mixed by concatenation are sanitized.
func Merge(source string, tables []*table.Table) (*table.Table, error) {
	var members []*table.Table
	for _, t := range tables {
		if t != nil {
			members = append(members, t)
		}
	}
	if len(members) == 0 {
		return table.Empty(source, source), ErrEmptyGroup
	}

	seen := make(map[string]struct{})
	var names []string
	total := 0
	for _, t := range members {
		for _, name := range t.ColumnNames() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		total += t.Len()
	}
	if _, ok := seen[table.TimeColumn]; !ok {
		return nil, table.ErrMissingTime
	}
	names = table.OrderColumns(names)

	columns := make(map[string][]any, len(names))
	for _, name := range names {
		columns[name] = make([]any, 0, total)
	}
	for _, t := range members {
		n := t.Len()
		for _, name := range names {
			if c, ok := t.Column(name); ok {
				columns[name] = append(columns[name], c.Values...)
				continue
			}
			columns[name] = append(columns[name], make([]any, n)...)
		}
	}

	out := table.New(source, source)
	for _, name := range names {
		out.Columns = append(out.Columns, table.NewColumn(name, columns[name]))
	}
	out, err := table.Normalize(out)
	if err != nil {
		return nil, err
	}
	return table.Sanitize(sortByTime(out)), nil
}

func sortByTime(t *table.Table) *table.Table {
	timeCol, _ := t.Column(table.TimeColumn)
	idx := make([]int, timeCol.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, aok := timeCol.Values[idx[a]].(time.Time)
		tb, bok := timeCol.Values[idx[b]].(time.Time)
		switch {
		case aok && bok:
			return ta.Before(tb)
		default:
			return aok && !bok
		}
	})
	return t.Take(idx)
}
