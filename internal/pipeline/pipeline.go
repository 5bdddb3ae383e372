package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/config"
	"github.com/danmuck/busdecode/internal/decode"
	"github.com/danmuck/busdecode/internal/frame"
	"github.com/danmuck/busdecode/internal/observability"
	"github.com/danmuck/busdecode/internal/quality"
	"github.com/danmuck/busdecode/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageExtract    Stage = "extract"
	StageDecode     Stage = "decode"
	StageDownsample Stage = "downsample"
	StageClean      Stage = "clean"
	StageMerge      Stage = "merge"
	StageValidate   Stage = "validate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageExtract, StageDecode, StageDownsample, StageClean, StageMerge, StageValidate}

var ErrUnknownStage = errors.New("pipeline: unknown stage")

func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Stages {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, raw)
}

// Status is the per-file result of one stage.
type Status string

const (
	StatusWritten Status = "written"
	StatusEmpty   Status = "empty"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FileOutcome records what one stage did with one input.
type FileOutcome struct {
	Stage   Stage
	File    string
	Output  string
	Status  Status
	Rows    int
	Columns int
	Err     error
}

// RunSummary aggregates every outcome recorded by a Pipeline.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Outcomes []FileOutcome
	Decoded  []decode.Summary
	Quality  []quality.Report
}

// Count returns how many outcomes of stage have status.
func (s RunSummary) Count(stage Stage, status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Stage == stage && o.Status == status {
			n++
		}
	}
	return n
}

// Pipeline runs the stages over the directories named in its config. Per
// file failures are recorded and never abort sibling files.
type Pipeline struct {
	cfg     config.Config
	parser  catalog.Parser
	opener  frame.Opener
	store   store.TableStore
	decoder *decode.Decoder

	runID   string
	started time.Time

	mu       sync.Mutex
	registry *catalog.Registry
	outcomes []FileOutcome
	decoded  []decode.Summary
	reports  []quality.Report
}

func New(cfg config.Config, parser catalog.Parser, opener frame.Opener, st store.TableStore) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		parser:  parser,
		opener:  opener,
		store:   st,
		decoder: decode.New(),
		runID:   uuid.NewString(),
		started: time.Now(),
	}
}

func (p *Pipeline) RunID() string {
	return p.runID
}

// Summary snapshots the outcomes recorded so far.
func (p *Pipeline) Summary() RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	sum := RunSummary{
		RunID:    p.runID,
		Started:  p.started,
		Duration: time.Since(p.started),
		Outcomes: append([]FileOutcome(nil), p.outcomes...),
		Decoded:  append([]decode.Summary(nil), p.decoded...),
		Quality:  append([]quality.Report(nil), p.reports...),
	}
	sort.SliceStable(sum.Outcomes, func(i, j int) bool {
		a, b := sum.Outcomes[i], sum.Outcomes[j]
		if a.Stage != b.Stage {
			return stageIndex(a.Stage) < stageIndex(b.Stage)
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Output < b.Output
	})
	return sum
}

func stageIndex(s Stage) int {
	for i, known := range Stages {
		if known == s {
			return i
		}
	}
	return len(Stages)
}

func (p *Pipeline) record(o FileOutcome) {
	p.mu.Lock()
	p.outcomes = append(p.outcomes, o)
	p.mu.Unlock()
	observability.RecordStageFile(string(o.Stage), string(o.Status))

	switch o.Status {
	case StatusFailed:
		log.Error().Msgf("pipeline.Pipeline.%s run=%s file=%s err=%v", o.Stage, p.runID, o.File, o.Err)
	case StatusSkipped:
		log.Warn().Msgf("pipeline.Pipeline.%s run=%s file=%s skipped err=%v", o.Stage, p.runID, o.File, o.Err)
	case StatusEmpty:
		log.Info().Msgf("pipeline.Pipeline.%s run=%s file=%s empty result, no output", o.Stage, p.runID, o.File)
	default:
		log.Debug().Msgf(
			"pipeline.Pipeline.%s run=%s file=%s output=%s rows=%d cols=%d",
			o.Stage, p.runID, o.File, o.Output, o.Rows, o.Columns,
		)
	}
}

// Run executes every stage in order.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	for _, stage := range Stages {
		if err := p.RunStage(ctx, stage); err != nil {
			return p.Summary(), err
		}
	}
	sum := p.Summary()
	log.Info().Msgf(
		"pipeline.Pipeline.Run run=%s outcomes=%d failed=%d duration=%s",
		sum.RunID, len(sum.Outcomes), countStatus(sum.Outcomes, StatusFailed), sum.Duration,
	)
	return sum, nil
}

// RunStage executes a single stage.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage) error {
	start := time.Now()
	var err error
	switch stage {
	case StageExtract:
		_, err = p.ExtractCatalog(ctx)
	case StageDecode:
		err = p.DecodeLogs(ctx)
	case StageDownsample:
		err = p.DownsampleAll(ctx)
	case StageClean:
		err = p.CleanAll(ctx)
	case StageMerge:
		err = p.MergeAll(ctx)
	case StageValidate:
		_, err = p.ValidateAll(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	observability.RecordStageDuration(string(stage), time.Since(start))
	if err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	log.Info().Msgf("pipeline.Pipeline.RunStage run=%s stage=%s duration=%s", p.runID, stage, time.Since(start))
	return nil
}

func countStatus(outcomes []FileOutcome, status Status) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// forEach runs fn for indexes [0, n) with at most cfg.Runtime.Workers in
// flight. fn reports per-item failures through record; only cancellation
// stops the loop.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	workers := p.cfg.Runtime.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// globFiles lists files in dir matching pattern, sorted.
func globFiles(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
