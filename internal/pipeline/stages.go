package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/downsample"
	"github.com/danmuck/busdecode/internal/merge"
	"github.com/danmuck/busdecode/internal/observability"
	"github.com/danmuck/busdecode/internal/quality"
	"github.com/danmuck/busdecode/internal/store"
	"github.com/danmuck/busdecode/internal/table"
	"github.com/rs/zerolog/log"
)

// Registry returns the loaded registry, loading catalogs on first use.
func (p *Pipeline) Registry(ctx context.Context) (*catalog.Registry, error) {
	p.mu.Lock()
	reg := p.registry
	p.mu.Unlock()
	if reg != nil {
		return reg, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := globFiles(p.cfg.Paths.DBCDir, p.cfg.Runtime.CatalogGlob)
	if err != nil {
		return nil, fmt.Errorf("list catalogs: %w", err)
	}
	reg, err = catalog.LoadCatalogs(p.parser, files, p.cfg.EnumPolicy())
	if err != nil {
		return nil, err
	}
	for _, skipped := range reg.Skipped() {
		p.record(FileOutcome{Stage: StageExtract, File: skipped, Status: StatusSkipped, Err: errors.New("catalog failed to load")})
	}
	p.mu.Lock()
	p.registry = reg
	p.mu.Unlock()
	return reg, nil
}

// ExtractCatalog loads every catalog and writes the signal metadata CSV
// and the enum map.
func (p *Pipeline) ExtractCatalog(ctx context.Context) (*catalog.Registry, error) {
	reg, err := p.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.cfg.Paths.RegistryDir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	metaPath := p.cfg.MetadataPath()
	f, err := os.Create(metaPath)
	if err != nil {
		return nil, fmt.Errorf("create metadata csv: %w", err)
	}
	if err := catalog.WriteMetadataCSV(f, reg.Rows()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write metadata csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := catalog.WriteEnumMap(p.cfg.EnumMapPath(), reg.EnumMap()); err != nil {
		return nil, fmt.Errorf("write enum map: %w", err)
	}
	for _, c := range reg.Catalogs() {
		p.record(FileOutcome{
			Stage: StageExtract, File: c.Name, Output: metaPath,
			Status: StatusWritten, Rows: c.SignalCount(),
		})
	}
	log.Info().Msgf(
		"pipeline.Pipeline.ExtractCatalog run=%s catalogs=%d signals=%d enums=%d skipped=%d",
		p.runID, len(reg.Catalogs()), len(reg.Rows()), len(reg.EnumMap()), len(reg.Skipped()),
	)
	return reg, nil
}

type decodeJob struct {
	log string
	cat *catalog.Catalog
}

// DecodeLogs decodes every raw log against every catalog.
func (p *Pipeline) DecodeLogs(ctx context.Context) error {
	reg, err := p.Registry(ctx)
	if err != nil {
		return err
	}
	logs, err := globFiles(p.cfg.Paths.RawDir, p.cfg.Runtime.FrameGlob)
	if err != nil {
		return fmt.Errorf("list raw logs: %w", err)
	}
	if len(logs) == 0 {
		log.Warn().Msgf("pipeline.Pipeline.DecodeLogs run=%s no logs dir=%s", p.runID, p.cfg.Paths.RawDir)
	}
	var jobs []decodeJob
	for _, l := range logs {
		for _, c := range reg.Catalogs() {
			jobs = append(jobs, decodeJob{log: l, cat: c})
		}
	}
	return p.forEach(ctx, len(jobs), func(ctx context.Context, i int) {
		p.decodeOne(ctx, jobs[i])
	})
}

func (p *Pipeline) decodeOne(ctx context.Context, job decodeJob) {
	out := decodedPath(p.cfg.Paths.DecodedDir, job.log, job.cat.Tag)
	outcome := FileOutcome{Stage: StageDecode, File: job.log, Output: out}

	src, err := p.opener(job.log)
	if err != nil {
		outcome.Status, outcome.Err = StatusFailed, err
		p.record(outcome)
		return
	}
	defer src.Close()

	t, sum, err := p.decoder.Decode(ctx, src, job.cat)
	p.mu.Lock()
	p.decoded = append(p.decoded, sum)
	p.mu.Unlock()
	observability.RecordFrames(sum.Catalog, "decoded", sum.Decoded)
	observability.RecordFrames(sum.Catalog, "skip_unknown_id", sum.UnknownID)
	observability.RecordFrames(sum.Catalog, "skip_decode_error", sum.DecodeErrors)
	log.Info().Msgf(
		"pipeline.Pipeline.DecodeLogs run=%s log=%s catalog=%s frames=%d decoded=%d unknown=%d errors=%d",
		p.runID, filepath.Base(job.log), job.cat.Tag, sum.Frames, sum.Decoded, sum.UnknownID, sum.DecodeErrors,
	)
	if err != nil {
		outcome.Status, outcome.Err = StatusFailed, err
		p.record(outcome)
		return
	}
	p.write(ctx, outcome, t)
}

// write persists t unless it is empty and records the outcome.
func (p *Pipeline) write(ctx context.Context, outcome FileOutcome, t *table.Table) {
	if t.IsEmpty() {
		outcome.Status = StatusEmpty
		p.record(outcome)
		return
	}
	if err := p.store.Write(ctx, outcome.Output, t); err != nil {
		outcome.Status, outcome.Err = StatusFailed, err
		p.record(outcome)
		return
	}
	outcome.Status = StatusWritten
	outcome.Rows = t.Len()
	outcome.Columns = len(t.Columns)
	p.record(outcome)
}

// DownsampleAll resamples every decoded table.
func (p *Pipeline) DownsampleAll(ctx context.Context) error {
	reg, err := p.Registry(ctx)
	if err != nil {
		return err
	}
	types := reg.SignalTypes()
	inputs, err := p.store.List(ctx, p.cfg.Paths.DecodedDir)
	if err != nil {
		return fmt.Errorf("list decoded tables: %w", err)
	}
	period := p.cfg.Downsample.Period.Duration
	return p.forEach(ctx, len(inputs), func(ctx context.Context, i int) {
		in := inputs[i]
		outcome := FileOutcome{
			Stage:  StageDownsample,
			File:   in,
			Output: downsampledPath(p.cfg.Paths.DownsampledDir, baseStem(in)),
		}
		t, err := p.store.Read(ctx, in)
		if err != nil {
			outcome.Status, outcome.Err = StatusFailed, err
			p.record(outcome)
			return
		}
		ds, err := downsample.Downsample(t, types, period)
		if err != nil {
			outcome.Status, outcome.Err = StatusFailed, err
			p.record(outcome)
			return
		}
		log.Info().Msgf(
			"pipeline.Pipeline.DownsampleAll run=%s file=%s rows=%d->%d cols=%d->%d period=%s",
			p.runID, filepath.Base(in), t.Len(), ds.Len(), len(t.Columns), len(ds.Columns), period,
		)
		p.write(ctx, outcome, ds)
	})
}

// enumMap prefers the loaded registry and falls back to the enum map file.
func (p *Pipeline) enumMap() (catalog.EnumMap, error) {
	p.mu.Lock()
	reg := p.registry
	p.mu.Unlock()
	if reg != nil {
		return reg.EnumMap(), nil
	}
	return catalog.ReadEnumMap(p.cfg.EnumMapPath())
}

// CleanAll filters and labels every downsampled table.
func (p *Pipeline) CleanAll(ctx context.Context) error {
	enums, err := p.enumMap()
	if err != nil {
		return fmt.Errorf("load enum map: %w", err)
	}
	inputs, err := p.store.List(ctx, p.cfg.Paths.DownsampledDir)
	if err != nil {
		return fmt.Errorf("list downsampled tables: %w", err)
	}
	th := p.cfg.QualityThresholds()
	return p.forEach(ctx, len(inputs), func(ctx context.Context, i int) {
		in := inputs[i]
		outcome := FileOutcome{
			Stage:  StageClean,
			File:   in,
			Output: filteredPath(p.cfg.Paths.ProcessedDir, store.Stem(in)),
		}
		t, err := p.store.Read(ctx, in)
		if err != nil {
			outcome.Status, outcome.Err = StatusFailed, err
			p.record(outcome)
			return
		}
		out, rep := quality.FilterAndLabel(t, enums, th)
		p.mu.Lock()
		p.reports = append(p.reports, rep)
		p.mu.Unlock()
		for _, d := range rep.Dropped {
			observability.RecordQualityColumns(d.Reason, 1)
		}
		observability.RecordQualityColumns("kept", rep.KeptCount())
		observability.RecordQualityColumns("labeled", rep.LabeledCount())
		observability.RecordQualityColumns("label_failed", rep.FailedCount())
		log.Info().Msgf(
			"pipeline.Pipeline.CleanAll run=%s file=%s dropped=%d kept=%d labeled=%d label_failed=%d",
			p.runID, filepath.Base(in), rep.DroppedCount(), rep.KeptCount(), rep.LabeledCount(), rep.FailedCount(),
		)
		p.write(ctx, outcome, out)
	})
}

// MergeAll concatenates processed tables per source catalog.
func (p *Pipeline) MergeAll(ctx context.Context) error {
	inputs, err := p.store.List(ctx, p.cfg.Paths.ProcessedDir)
	if err != nil {
		return fmt.Errorf("list processed tables: %w", err)
	}
	tables := make([]*table.Table, len(inputs))
	err = p.forEach(ctx, len(inputs), func(ctx context.Context, i int) {
		t, err := p.store.Read(ctx, inputs[i])
		if err != nil {
			p.record(FileOutcome{Stage: StageMerge, File: inputs[i], Status: StatusSkipped, Err: err})
			return
		}
		tables[i] = t
	})
	if err != nil {
		return err
	}
	var members []*table.Table
	for _, t := range tables {
		if t != nil {
			members = append(members, t)
		}
	}
	groups := merge.GroupBySource(members)
	return p.forEach(ctx, len(groups), func(ctx context.Context, i int) {
		g := groups[i]
		outcome := FileOutcome{Stage: StageMerge, File: g.Source, Output: mergedPath(p.cfg.Paths.MergedDir, g.Source)}
		merged, err := merge.Merge(g.Source, g.Tables)
		if errors.Is(err, merge.ErrEmptyGroup) {
			outcome.Status, outcome.Err = StatusSkipped, err
			p.record(outcome)
			return
		}
		if err != nil {
			outcome.Status, outcome.Err = StatusFailed, err
			p.record(outcome)
			return
		}
		log.Info().Msgf(
			"pipeline.Pipeline.MergeAll run=%s source=%s members=%d rows=%d cols=%d",
			p.runID, g.Source, len(g.Tables), merged.Len(), len(merged.Columns),
		)
		p.write(ctx, outcome, merged)
	})
}
