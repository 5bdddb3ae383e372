package frame

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/danmuck/busdecode/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Frame{Timestamp: 12.5, ID: 0x18FEF100, Extended: true, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.ID != in.ID || !out.Extended || out.Timestamp != in.Timestamp {
		t.Fatalf("frame mismatch: got=%+v want=%+v", out, in)
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("payload mismatch")
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after last frame, got %v", err)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	bad := make([]byte, FixedHeaderLen)
	_, err = ReadFrame(bytes.NewReader(bad), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestValidateLimits(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		f    Frame
		want error
	}{
		{"classic ok", Frame{ID: 0x7FF, Data: make([]byte, 8)}, nil},
		{"classic too long", Frame{ID: 0x10, Data: make([]byte, 12)}, ErrPayloadTooLarge},
		{"fd ok", Frame{ID: 0x10, FD: true, Data: make([]byte, 64)}, nil},
		{"fd too long", Frame{ID: 0x10, FD: true, Data: make([]byte, 65)}, ErrPayloadTooLarge},
		{"standard id overflow", Frame{ID: 0x800}, ErrInvalidID},
		{"extended id overflow", Frame{ID: 0x20000000, Extended: true}, ErrInvalidID},
		{"nan timestamp", Frame{ID: 1, Timestamp: math.NaN()}, ErrInvalidTimestamp},
	}
	for _, tc := range cases {
		err := tc.f.Validate(DefaultLimits())
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestStreamSourceYieldsUntilError(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		if err := WriteFrame(&buf, Frame{Timestamp: float64(i), ID: 0x100, Data: []byte{byte(i)}}, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	buf.Write([]byte{0x42, 0x55})
	src := NewStreamSource(io.NopCloser(&buf), DefaultLimits())
	defer src.Close()

	var n int
	var last error
	for f, err := range src.Frames() {
		if err != nil {
			last = err
			continue
		}
		if f.Data[0] != byte(n) {
			t.Fatalf("out of order frame %d: %+v", n, f)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("expected 3 frames, got %d", n)
	}
	if !errors.Is(last, ErrShortHeader) {
		t.Fatalf("expected trailing ErrShortHeader, got %v", last)
	}
}

func TestIDText(t *testing.T) {
	if got := (Frame{ID: 0x1A0}).IDText(); got != "0x1a0" {
		t.Fatalf("id text: %s", got)
	}
}
