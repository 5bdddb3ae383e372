package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danmuck/busdecode/internal/store"
	"github.com/danmuck/busdecode/internal/validate"
	"github.com/rs/zerolog/log"
)

const (
	PairDecodedDownsampled  = "decoded->downsampled"
	PairDownsampledFiltered = "downsampled->filtered"
	PairFilteredMerged      = "filtered->merged"

	DiffReportFile       = "signal_diff_report.csv"
	QualityReportFile    = "quality_report.csv"
	AllowlistFile        = "selected_signals.txt"
	ComparisonReportFile = "signal_qc_comparison.csv"
)

// ValidationReport collects every diagnostic computed by ValidateAll.
type ValidationReport struct {
	Diffs       []validate.SchemaDiff
	Quality     []validate.QualityRecord
	Allowlist   []string
	Comparisons []validate.Comparison
}

// ValidateAll diffs signal sets across adjacent stages, profiles merged
// tables and writes the reports. Missing successor files are skipped with
// a warning.
func (p *Pipeline) ValidateAll(ctx context.Context) (ValidationReport, error) {
	var rep ValidationReport
	th := p.cfg.ClassifyThresholds()

	decoded, err := p.store.List(ctx, p.cfg.Paths.DecodedDir)
	if err != nil {
		return rep, fmt.Errorf("list decoded tables: %w", err)
	}
	for _, in := range decoded {
		succ := downsampledPath(p.cfg.Paths.DownsampledDir, store.Stem(in))
		if d, ok := p.diffPair(ctx, PairDecodedDownsampled, in, succ); ok {
			rep.Diffs = append(rep.Diffs, d)
		}
	}

	downsampled, err := p.store.List(ctx, p.cfg.Paths.DownsampledDir)
	if err != nil {
		return rep, fmt.Errorf("list downsampled tables: %w", err)
	}
	var before []validate.QualityRecord
	for _, in := range downsampled {
		succ := filteredPath(p.cfg.Paths.ProcessedDir, store.Stem(in))
		if d, ok := p.diffPair(ctx, PairDownsampledFiltered, in, succ); ok {
			rep.Diffs = append(rep.Diffs, d)
		}
		if t, err := p.store.Read(ctx, in); err == nil {
			before = append(before, validate.Profile(baseStem(in), t, th)...)
		}
	}

	processed, err := p.store.List(ctx, p.cfg.Paths.ProcessedDir)
	if err != nil {
		return rep, fmt.Errorf("list processed tables: %w", err)
	}
	var after []validate.QualityRecord
	for _, in := range processed {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		t, err := p.store.Read(ctx, in)
		if err != nil {
			p.record(FileOutcome{Stage: StageValidate, File: in, Status: StatusFailed, Err: err})
			continue
		}
		after = append(after, validate.Profile(baseStem(in), t, th)...)
		succ := mergedPath(p.cfg.Paths.MergedDir, t.Source)
		if d, ok := p.diffColumns(ctx, PairFilteredMerged, in, t.ColumnNames(), succ); ok {
			rep.Diffs = append(rep.Diffs, d)
		}
	}
	rep.Comparisons = validate.CompareProfiles(before, after)

	merged, err := p.store.List(ctx, p.cfg.Paths.MergedDir)
	if err != nil {
		return rep, fmt.Errorf("list merged tables: %w", err)
	}
	for _, in := range merged {
		t, err := p.store.Read(ctx, in)
		if err != nil {
			p.record(FileOutcome{Stage: StageValidate, File: in, Status: StatusFailed, Err: err})
			continue
		}
		rep.Quality = append(rep.Quality, validate.Profile(store.Stem(in), t, th)...)
	}
	rep.Allowlist = validate.Allowlist(rep.Quality)

	if err := p.writeReports(rep); err != nil {
		return rep, err
	}
	log.Info().Msgf(
		"pipeline.Pipeline.ValidateAll run=%s diffs=%d profiles=%d allowlist=%d comparisons=%d",
		p.runID, len(rep.Diffs), len(rep.Quality), len(rep.Allowlist), len(rep.Comparisons),
	)
	return rep, nil
}

func (p *Pipeline) diffPair(ctx context.Context, pair, in, succ string) (validate.SchemaDiff, bool) {
	cols, err := p.store.Columns(ctx, in)
	if err != nil {
		p.record(FileOutcome{Stage: StageValidate, File: in, Status: StatusFailed, Err: err})
		return validate.SchemaDiff{}, false
	}
	return p.diffColumns(ctx, pair, in, cols, succ)
}

func (p *Pipeline) diffColumns(ctx context.Context, pair, in string, before []string, succ string) (validate.SchemaDiff, bool) {
	after, err := p.store.Columns(ctx, succ)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, store.ErrNotFound) {
			status = StatusSkipped
			err = fmt.Errorf("missing successor %s: %w", succ, err)
		}
		p.record(FileOutcome{Stage: StageValidate, File: in, Output: succ, Status: status, Err: err})
		return validate.SchemaDiff{}, false
	}
	d := validate.Diff(pair, filepath.Base(in), before, after)
	if len(d.Dropped) > 0 || len(d.Added) > 0 {
		log.Debug().Msgf(
			"pipeline.Pipeline.ValidateAll pair=%s file=%s dropped=%v added=%v",
			pair, d.File, d.Dropped, d.Added,
		)
	}
	return d, true
}

func (p *Pipeline) writeReports(rep ValidationReport) error {
	dir := p.cfg.Paths.ReportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{DiffReportFile, func(w io.Writer) error { return validate.WriteDiffCSV(w, rep.Diffs) }},
		{QualityReportFile, func(w io.Writer) error { return validate.WriteQualityCSV(w, rep.Quality) }},
		{AllowlistFile, func(w io.Writer) error { return validate.WriteAllowlist(w, rep.Allowlist) }},
		{ComparisonReportFile, func(w io.Writer) error { return validate.WriteComparisonCSV(w, rep.Comparisons) }},
	}
	for _, rw := range writers {
		path := filepath.Join(dir, rw.name)
		if err := writeFile(path, rw.write); err != nil {
			return err
		}
		p.record(FileOutcome{Stage: StageValidate, File: rw.name, Output: path, Status: StatusWritten})
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report (%s): %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write report (%s): %w", path, err)
	}
	return f.Close()
}
