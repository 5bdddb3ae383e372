package validate

import (
	"math"
	"sort"

	"github.com/danmuck/busdecode/internal/table"
)

// Quality is the classification of one (file, signal) profile.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityTooNull  Quality = "too_null"
	QualityConstant Quality = "constant"
)

// Thresholds drive Classify. A signal is too_null when its null fraction
// is strictly above MaxNullFraction and constant when it has at most
// MaxConstantUnique distinct values.
type Thresholds struct {
	MaxNullFraction   float64
	MaxConstantUnique int
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxNullFraction: 0.10, MaxConstantUnique: 1}
}

// Classify is a pure function of the two statistics.
func Classify(nullFraction float64, unique int, th Thresholds) Quality {
	switch {
	case nullFraction > th.MaxNullFraction:
		return QualityTooNull
	case unique <= th.MaxConstantUnique:
		return QualityConstant
	default:
		return QualityGood
	}
}

// SchemaDiff compares the signal sets of one file across a stage pair.
type SchemaDiff struct {
	StagePair   string
	File        string
	BeforeCount int
	AfterCount  int
	Kept        []string
	Dropped     []string
	Added       []string
}

// Diff compares column name sets, ignoring order and the time column.
// Result lists are sorted.
func Diff(stagePair, file string, before, after []string) SchemaDiff {
	b := nameSet(before)
	a := nameSet(after)
	d := SchemaDiff{StagePair: stagePair, File: file, BeforeCount: len(b), AfterCount: len(a)}
	for name := range b {
		if _, ok := a[name]; ok {
			d.Kept = append(d.Kept, name)
		} else {
			d.Dropped = append(d.Dropped, name)
		}
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			d.Added = append(d.Added, name)
		}
	}
	sort.Strings(d.Kept)
	sort.Strings(d.Dropped)
	sort.Strings(d.Added)
	return d
}

func nameSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == table.TimeColumn {
			continue
		}
		out[n] = struct{}{}
	}
	return out
}

// QualityRecord profiles one signal column of one file. Min, Max and Mean
// are nil for columns without numeric values.
type QualityRecord struct {
	File         string
	Signal       string
	NullFraction float64
	Unique       int
	DType        string
	Min          *float64
	Max          *float64
	Mean         *float64
	Quality      Quality
}

// Profile computes a QualityRecord for every signal column of t.
func Profile(file string, t *table.Table, th Thresholds) []QualityRecord {
	var out []QualityRecord
	for _, c := range t.Columns {
		if c.Name == table.TimeColumn || c.Name == table.IDColumn {
			continue
		}
		rec := QualityRecord{
			File:         file,
			Signal:       c.Name,
			NullFraction: c.NullFraction(),
			Unique:       c.Unique(),
			DType:        c.Kind.String(),
		}
		if c.Kind == table.KindFloat {
			rec.Min, rec.Max, rec.Mean = numericStats(c.Values)
		}
		rec.Quality = Classify(rec.NullFraction, rec.Unique, th)
		out = append(out, rec)
	}
	return out
}

func numericStats(values []any) (*float64, *float64, *float64) {
	var (
		lo, hi, sum = math.Inf(1), math.Inf(-1), 0.0
		n           int
	)
	for _, v := range values {
		f, ok := table.ToFloat(v)
		if !ok {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		sum += f
		n++
	}
	if n == 0 {
		return nil, nil, nil
	}
	mean := sum / float64(n)
	return &lo, &hi, &mean
}

// Allowlist returns the sorted distinct signals classified good in at
// least one record.
func Allowlist(records []QualityRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Quality == QualityGood {
			seen[r.Signal] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Comparison tracks one signal's null fraction across two stages.
type Comparison struct {
	File          string
	Signal        string
	BeforeNull    float64
	AfterNull     float64
	Delta         float64
	BeforeQuality Quality
	AfterQuality  Quality
}

// CompareProfiles joins two profile sets on (File, Signal) and reports
// signals present in both. Output is ordered by file then signal.
func CompareProfiles(before, after []QualityRecord) []Comparison {
	type key struct{ file, signal string }
	index := make(map[key]QualityRecord, len(before))
	for _, r := range before {
		index[key{r.File, r.Signal}] = r
	}
	var out []Comparison
	for _, r := range after {
		b, ok := index[key{r.File, r.Signal}]
		if !ok {
			continue
		}
		out = append(out, Comparison{
			File:          r.File,
			Signal:        r.Signal,
			BeforeNull:    b.NullFraction,
			AfterNull:     r.NullFraction,
			Delta:         r.NullFraction - b.NullFraction,
			BeforeQuality: b.Quality,
			AfterQuality:  r.Quality,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Signal < out[j].Signal
	})
	return out
}
