package validate

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	QualityHeader    = []string{"file", "signal_name", "null_fraction", "unique_values", "dtype", "min", "max", "mean", "quality"}
	DiffHeader       = []string{"stage_pair", "file", "before_count", "after_count", "kept", "dropped", "added", "dropped_signals", "added_signals"}
	ComparisonHeader = []string{"file", "signal_name", "null_fraction_before", "null_fraction_after", "null_fraction_delta", "quality_before", "quality_after"}
)

// listSeparator joins signal names inside one CSV cell.
const listSeparator = ";"

func WriteQualityCSV(w io.Writer, records []QualityRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.File,
			r.Signal,
			formatFloat(r.NullFraction),
			strconv.Itoa(r.Unique),
			r.DType,
			formatOptional(r.Min),
			formatOptional(r.Max),
			formatOptional(r.Mean),
			string(r.Quality),
		})
	}
	return writeCSV(w, QualityHeader, rows)
}

func WriteDiffCSV(w io.Writer, diffs []SchemaDiff) error {
	rows := make([][]string, 0, len(diffs))
	for _, d := range diffs {
		rows = append(rows, []string{
			d.StagePair,
			d.File,
			strconv.Itoa(d.BeforeCount),
			strconv.Itoa(d.AfterCount),
			strconv.Itoa(len(d.Kept)),
			strconv.Itoa(len(d.Dropped)),
			strconv.Itoa(len(d.Added)),
			strings.Join(d.Dropped, listSeparator),
			strings.Join(d.Added, listSeparator),
		})
	}
	return writeCSV(w, DiffHeader, rows)
}

func WriteComparisonCSV(w io.Writer, comps []Comparison) error {
	rows := make([][]string, 0, len(comps))
	for _, c := range comps {
		rows = append(rows, []string{
			c.File,
			c.Signal,
			formatFloat(c.BeforeNull),
			formatFloat(c.AfterNull),
			formatFloat(c.Delta),
			string(c.BeforeQuality),
			string(c.AfterQuality),
		})
	}
	return writeCSV(w, ComparisonHeader, rows)
}

// WriteAllowlist writes one signal name per line.
func WriteAllowlist(w io.Writer, names []string) error {
	bw := bufio.NewWriter(w)
	for _, n := range names {
		if _, err := fmt.Fprintln(bw, n); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
