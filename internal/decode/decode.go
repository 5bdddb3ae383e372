package decode

import (
	"context"
	"fmt"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/frame"
	"github.com/danmuck/busdecode/internal/table"
	"github.com/rs/zerolog/log"
)

// Result tags the fate of one frame.
type Result string

const (
	ResultDecoded     Result = "decoded"
	ResultUnknownID   Result = "skip_unknown_id"
	ResultDecodeError Result = "skip_decode_error"
)

// ctxCheckEvery bounds how many frames are consumed between cancellation
// checks.
const ctxCheckEvery = 1024

// Summary aggregates per-frame results for one (log, catalog) pair.
type Summary struct {
	Catalog      string
	Frames       int
	Decoded      int
	UnknownID    int
	DecodeErrors int
	// Errors counts decode failures by reason.
	Errors map[string]int
}

func (s *Summary) record(r Result, err error) {
	s.Frames++
	switch r {
	case ResultDecoded:
		s.Decoded++
	case ResultUnknownID:
		s.UnknownID++
	case ResultDecodeError:
		s.DecodeErrors++
		if s.Errors == nil {
			s.Errors = make(map[string]int)
		}
		s.Errors[err.Error()]++
	}
}

// Count returns the number of frames tagged r.
func (s Summary) Count(r Result) int {
	switch r {
	case ResultDecoded:
		return s.Decoded
	case ResultUnknownID:
		return s.UnknownID
	case ResultDecodeError:
		return s.DecodeErrors
	}
	return 0
}

// Decoder turns frame sources into signal tables.
type Decoder struct{}

func New() *Decoder {
	return &Decoder{}
}

// Decode consumes src in arrival order against cat. Frames with no
// matching message or with an undecodable payload are counted and skipped.
// The caller owns src and must close it.
func (d *Decoder) Decode(ctx context.Context, src frame.Source, cat *catalog.Catalog) (*table.Table, Summary, error) {
	sum := Summary{Catalog: cat.Tag}
	b := table.NewBuilder("", cat.Tag)
	for f, err := range src.Frames() {
		if err != nil {
			return nil, sum, fmt.Errorf("decode.Decoder.Decode read catalog=%s: %w", cat.Tag, err)
		}
		if sum.Frames%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, sum, err
			}
		}
		msg, ok := cat.Message(f.ID)
		if !ok {
			sum.record(ResultUnknownID, nil)
			continue
		}
		values, err := DecodeMessage(*msg, f.Data)
		if err != nil {
			sum.record(ResultDecodeError, err)
			continue
		}
		row := make(map[string]any, len(values)+2)
		for name, v := range values {
			if name == table.TimeColumn || name == table.IDColumn {
				continue
			}
			row[name] = flatten(v)
		}
		row[table.TimeColumn] = f.Timestamp
		row[table.IDColumn] = catalog.FormatID(f.ID)
		b.Append(row)
		sum.record(ResultDecoded, nil)
	}

	out, err := table.Normalize(b.Build())
	if err != nil {
		return nil, sum, fmt.Errorf("decode.Decoder.Decode normalize catalog=%s: %w", cat.Tag, err)
	}
	log.Debug().Msgf(
		"decode.Decoder.Decode catalog=%s frames=%d decoded=%d unknown=%d errors=%d",
		cat.Tag, sum.Frames, sum.Decoded, sum.UnknownID, sum.DecodeErrors,
	)
	return table.Sanitize(out), sum, nil
}

// DecodeMessage decodes every active signal of msg from data. Enumerated
// values come back as NamedValue.
func DecodeMessage(msg catalog.Message, data []byte) (map[string]any, error) {
	if len(data) < msg.Length {
		return nil, ErrShortPayload
	}
	var (
		selector    uint64
		hasSelector bool
	)
	if mux, ok := msg.Multiplexer(); ok {
		raw, err := extractRaw(data, mux)
		if err != nil {
			return nil, err
		}
		selector, hasSelector = raw, true
	}

	values := make(map[string]any, len(msg.Signals))
	for _, sig := range msg.Signals {
		if sig.Multiplexed {
			if !hasSelector {
				return nil, ErrMissingMultiplexer
			}
			if selector != sig.MultiplexValue {
				continue
			}
		}
		v, err := decodeSignal(data, sig)
		if err != nil {
			return nil, err
		}
		values[sig.Name] = v
	}
	return values, nil
}
