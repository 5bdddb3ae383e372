package formats

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/busdecode/internal/frame"
	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src frame.Source) []frame.Frame {
	t.Helper()
	defer src.Close()
	var out []frame.Frame
	for f, err := range src.Frames() {
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestOpenPicksReaderByExtension(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	want := frame.Frame{Timestamp: 12.5, ID: 0x1A0, Channel: "can0", Data: []byte{0x01, 0x02}}

	text := filepath.Join(dir, "drive.log")
	require.NoError(t, os.WriteFile(text, []byte("(12.500000) can0 1A0#0102\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, frame.WriteFrame(&buf, want, frame.DefaultLimits()))
	bin := filepath.Join(dir, "drive.BIN")
	require.NoError(t, os.WriteFile(bin, buf.Bytes(), 0o644))

	for _, path := range []string{text, bin} {
		src, err := Open(path)
		require.NoError(t, err, path)
		got := collect(t, src)
		require.Len(t, got, 1, path)
		assert.Equal(t, want.ID, got[0].ID)
		assert.Equal(t, want.Data, got[0].Data)
		assert.InDelta(t, want.Timestamp, got[0].Timestamp, 1e-9)
	}

	_, err := Open(filepath.Join(dir, "missing.log"))
	assert.Error(t, err)
	_, err = Open(filepath.Join(dir, "drive.mf4"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRegisterClaimsExtension(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, []string{"binary", "candump"}, Names())

	fake := funcFormat{name: "fixture", exts: []string{".FIX"}, open: func(string) (frame.Source, error) {
		return frame.NewSliceSource(frame.Frame{ID: 7}), nil
	}}
	Register(fake)
	t.Cleanup(func() {
		mu.Lock()
		delete(registry, "fixture")
		delete(byExt, ".fix")
		mu.Unlock()
	})

	f, err := ForPath("/tmp/x.fix")
	require.NoError(t, err)
	assert.Equal(t, "fixture", f.Name())
	src, err := Open("/tmp/x.fix")
	require.NoError(t, err)
	assert.Len(t, collect(t, src), 1)

	_, ok := Get("candump")
	assert.True(t, ok)
	if _, err := ForPath("noext"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
