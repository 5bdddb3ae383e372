package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"testing"
	"time"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/frame"
	"github.com/danmuck/busdecode/internal/table"
	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32LE(v float32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
	return out
}

// scenarioCatalog defines message M (0x100) with enum X and float Y.
func scenarioCatalog() *catalog.Catalog {
	m := catalog.Message{ID: 0x100, Name: "M", Length: 5, Signals: []catalog.SignalDefinition{
		{Name: "X", StartBit: 0, Length: 8, Scale: 1, Choices: []catalog.Choice{{Value: 0, Label: "OFF"}, {Value: 1, Label: "ON"}}},
		{Name: "Y", StartBit: 8, Length: 32, Float: true, Scale: 1},
	}}
	return catalog.BuildCatalog("can1-body.dbc", []catalog.Message{m}, catalog.DefaultEnumPolicy())
}

func scenarioFrames() []frame.Frame {
	return []frame.Frame{
		{Timestamp: 1, ID: 0x100, Data: append([]byte{0}, float32LE(1.5)...)},
		{Timestamp: 2, ID: 0x999, Data: []byte{1, 2, 3}},
		{Timestamp: 3, ID: 0x100, Data: append([]byte{1}, float32LE(2.5)...)},
	}
}

func TestDecodeEndToEndScenario(t *testing.T) {
	testlog.Start(t)
	out, sum, err := New().Decode(context.Background(), frame.NewSliceSource(scenarioFrames()...), scenarioCatalog())
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "arbitration_id", "X", "Y"}, out.ColumnNames())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "can1_body", out.Source)

	x, _ := out.Column("X")
	assert.Equal(t, []any{0.0, 1.0}, x.Values)
	assert.Equal(t, table.KindFloat, x.Kind)
	y, _ := out.Column("Y")
	assert.Equal(t, []any{1.5, 2.5}, y.Values)
	ts, _ := out.Column(table.TimeColumn)
	assert.Equal(t, time.Unix(1, 0).UTC(), ts.Values[0])
	assert.Equal(t, time.Unix(3, 0).UTC(), ts.Values[1])
	ids, _ := out.Column(table.IDColumn)
	assert.Equal(t, []any{"0x100", "0x100"}, ids.Values)

	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, 2, sum.Decoded)
	assert.Equal(t, 1, sum.UnknownID)
	assert.Equal(t, 0, sum.DecodeErrors)
}

func TestDecodeIsDeterministic(t *testing.T) {
	testlog.Start(t)
	render := func() string {
		out, _, err := New().Decode(context.Background(), frame.NewSliceSource(scenarioFrames()...), scenarioCatalog())
		require.NoError(t, err)
		var buf bytes.Buffer
		for _, c := range out.Columns {
			fmt.Fprintf(&buf, "%s:%s:", c.Name, c.Kind)
			for _, v := range c.Values {
				buf.WriteString(table.FormatValue(v))
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		return buf.String()
	}
	first := render()
	for i := 0; i < 20; i++ {
		if got := render(); got != first {
			t.Fatalf("non-deterministic output:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestDecodeUnmatchedOnlyIsCanonicalEmpty(t *testing.T) {
	testlog.Start(t)
	src := frame.NewSliceSource(frame.Frame{Timestamp: 1, ID: 0x7FF, Data: []byte{1}})
	out, sum, err := New().Decode(context.Background(), src, scenarioCatalog())
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
	assert.Equal(t, []string{"time", "arbitration_id"}, out.ColumnNames())
	assert.Equal(t, 0, sum.Decoded)
	assert.Equal(t, 1, sum.Count(ResultUnknownID))
}

func TestDecodeShortPayloadIsCountedNotFatal(t *testing.T) {
	testlog.Start(t)
	src := frame.NewSliceSource(
		frame.Frame{Timestamp: 1, ID: 0x100, Data: []byte{1}},
		frame.Frame{Timestamp: 2, ID: 0x100, Data: append([]byte{1}, float32LE(3)...)},
	)
	out, sum, err := New().Decode(context.Background(), src, scenarioCatalog())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 1, sum.DecodeErrors)
	assert.Equal(t, 1, sum.Errors[ErrShortPayload.Error()])
}

type failingSource struct{}

func (failingSource) Frames() iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		if !yield(frame.Frame{Timestamp: 1, ID: 0x100, Data: append([]byte{0}, float32LE(1)...)}, nil) {
			return
		}
		yield(frame.Frame{}, frame.ErrShortHeader)
	}
}

func (failingSource) Close() error { return nil }

func TestDecodeReturnsSourceError(t *testing.T) {
	testlog.Start(t)
	_, sum, err := New().Decode(context.Background(), failingSource{}, scenarioCatalog())
	if !errors.Is(err, frame.ErrShortHeader) {
		t.Fatalf("expected source error, got %v", err)
	}
	if sum.Decoded != 1 {
		t.Fatalf("expected one decoded frame before failure, got %d", sum.Decoded)
	}
}

func TestDecodeHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New().Decode(ctx, frame.NewSliceSource(scenarioFrames()...), scenarioCatalog())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDecodeMessageLayouts(t *testing.T) {
	testlog.Start(t)
	msg := catalog.Message{ID: 0x1A0, Name: "Drive", Length: 8, Signals: []catalog.SignalDefinition{
		{Name: "Speed", StartBit: 8, Length: 16, Scale: 0.01},
		{Name: "Torque", StartBit: 31, Length: 16, ByteOrder: catalog.BigEndian, Signed: true, Scale: 0.5, Offset: -100},
		{Name: "Tenths", StartBit: 44, Length: 4, Scale: 0.1},
		{Name: "Nibble", StartBit: 6, Length: 4, Scale: 1},
	}}
	// Speed 0x2710 LE at byte 1..2; Torque 0xFFFE BE at bytes 3..4;
	// Tenths raw 3 in byte 5 high nibble; Nibble spans bytes 0..1.
	data := []byte{0xC0, 0x10, 0x27, 0xFF, 0xFE, 0x30, 0, 0}
	values, err := DecodeMessage(msg, data)
	require.NoError(t, err)
	assert.Equal(t, 100.0, values["Speed"])
	assert.Equal(t, -101.0, values["Torque"])
	assert.Equal(t, 0.3, values["Tenths"])
	// bits 6,7 of byte 0 are 1,1 and bits 0,1 of byte 1 are 0,0
	assert.Equal(t, 3.0, values["Nibble"])
}

func TestDecodeMessageMotorolaUnsignedAcrossBytes(t *testing.T) {
	testlog.Start(t)
	msg := catalog.Message{Length: 2, Signals: []catalog.SignalDefinition{
		{Name: "V", StartBit: 3, Length: 8, ByteOrder: catalog.BigEndian, Scale: 1},
	}}
	// msb at byte 0 bit 3: bits 3..0 of byte 0 then bits 7..4 of byte 1
	values, err := DecodeMessage(msg, []byte{0x0A, 0xB0})
	require.NoError(t, err)
	assert.Equal(t, float64(0xAB), values["V"])
}

func TestDecodeMessageFloatAndLargeUnsigned(t *testing.T) {
	testlog.Start(t)
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint64(raw[0:8], math.Float64bits(-12.25))
	binary.LittleEndian.PutUint64(raw[8:16], math.MaxUint64)
	msg := catalog.Message{Length: 16, Signals: []catalog.SignalDefinition{
		{Name: "F", StartBit: 0, Length: 64, Float: true, Scale: 2, Offset: 1},
		{Name: "U", StartBit: 64, Length: 64, Scale: 1},
		{Name: "S", StartBit: 64, Length: 64, Signed: true, Scale: 1},
	}}
	values, err := DecodeMessage(msg, raw)
	require.NoError(t, err)
	assert.Equal(t, -23.5, values["F"])
	assert.Equal(t, float64(math.MaxUint64), values["U"])
	assert.Equal(t, -1.0, values["S"])
}

func TestDecodeMessageEnumAndMultiplexing(t *testing.T) {
	testlog.Start(t)
	msg := catalog.Message{ID: 0x200, Name: "Mux", Length: 2, Signals: []catalog.SignalDefinition{
		{Name: "Page", Length: 8, Scale: 1, IsMultiplexer: true},
		{Name: "A", StartBit: 8, Length: 8, Scale: 1, Multiplexed: true, MultiplexValue: 1,
			Choices: []catalog.Choice{{Value: 7, Label: "SEVEN"}}},
		{Name: "B", StartBit: 8, Length: 8, Scale: 2, Multiplexed: true, MultiplexValue: 2},
	}}
	values, err := DecodeMessage(msg, []byte{1, 7})
	require.NoError(t, err)
	assert.Equal(t, NamedValue{Code: 7, Label: "SEVEN"}, values["A"])
	assert.NotContains(t, values, "B")
	assert.Equal(t, 7.0, flatten(values["A"]))

	values, err = DecodeMessage(msg, []byte{2, 9})
	require.NoError(t, err)
	assert.Equal(t, 18.0, values["B"])
	assert.NotContains(t, values, "A")

	orphan := catalog.Message{Length: 1, Signals: []catalog.SignalDefinition{
		{Name: "C", Length: 8, Scale: 1, Multiplexed: true, MultiplexValue: 0},
	}}
	_, err = DecodeMessage(orphan, []byte{0})
	if !errors.Is(err, ErrMissingMultiplexer) {
		t.Fatalf("expected ErrMissingMultiplexer, got %v", err)
	}
}

func TestDecodeMessageBitsOutsidePayload(t *testing.T) {
	testlog.Start(t)
	msg := catalog.Message{Length: 1, Signals: []catalog.SignalDefinition{
		{Name: "Wide", StartBit: 4, Length: 8, Scale: 1},
	}}
	_, err := DecodeMessage(msg, []byte{0xFF})
	if !errors.Is(err, ErrBitsOutOfRange) {
		t.Fatalf("expected ErrBitsOutOfRange, got %v", err)
	}
}
