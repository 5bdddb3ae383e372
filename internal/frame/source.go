package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// Source is a lazy, ordered sequence of frames backed by a scoped resource.
// Frames yields a non-nil error at most once, as its final element.
type Source interface {
	Frames() iter.Seq2[Frame, error]
	Close() error
}

// Opener opens the frame log at path.
type Opener func(path string) (Source, error)

// SliceSource serves frames from memory.
type SliceSource struct {
	frames []Frame
}

func NewSliceSource(frames ...Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for _, f := range s.frames {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (s *SliceSource) Close() error {
	return nil
}

// StreamSource reads the binary frame log format.
type StreamSource struct {
	r      *bufio.Reader
	closer io.Closer
	limits Limits
}

// NewStreamSource wraps rc; Close closes rc.
func NewStreamSource(rc io.ReadCloser, limits Limits) *StreamSource {
	return &StreamSource{r: bufio.NewReader(rc), closer: rc, limits: limits}
}

// OpenBinary opens a binary frame log file.
func OpenBinary(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame log (%s): %w", path, err)
	}
	return NewStreamSource(f, DefaultLimits()), nil
}

func (s *StreamSource) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := ReadFrame(s.r, s.limits)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (s *StreamSource) Close() error {
	return s.closer.Close()
}
