// Package candump reads SocketCAN candump -l style text logs.
package candump

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/busdecode/internal/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformedLine = errors.New("candump: malformed line")
	ErrBadTimestamp  = errors.New("candump: bad timestamp")
	ErrBadID         = errors.New("candump: bad arbitration id")
	ErrBadPayload    = errors.New("candump: bad payload")
)

// maxLine bounds a single log line; an FD frame is well under this.
const maxLine = 64 * 1024

// Reader streams frames from a candump log. Malformed lines are skipped
// and counted.
type Reader struct {
	name    string
	rc      io.ReadCloser
	limits  frame.Limits
	skipped int
}

// Open opens a candump log file.
func Open(path string) (frame.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candump (%s): %w", path, err)
	}
	return NewReader(path, f), nil
}

func NewReader(name string, rc io.ReadCloser) *Reader {
	return &Reader{name: name, rc: rc, limits: frame.DefaultLimits()}
}

// Skipped returns the number of malformed lines seen so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) Close() error {
	return r.rc.Close()
}

func (r *Reader) Frames() iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		sc := bufio.NewScanner(r.rc)
		sc.Buffer(make([]byte, 4096), maxLine)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			f, err := ParseLine(line)
			if err == nil {
				err = f.Validate(r.limits)
			}
			if err != nil {
				r.skipped++
				log.Debug().Msgf("candump.Reader.Frames skip file=%s line=%d err=%v", r.name, lineNo, err)
				continue
			}
			if !yield(f, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(frame.Frame{}, fmt.Errorf("read candump (%s): %w", r.name, err))
		}
	}
}

// ParseLine parses one "(ts) iface id#data" line. Classic ("#"), remote
// ("#R") and FD ("##<flags>") payload forms are accepted.
func ParseLine(line string) (frame.Frame, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return frame.Frame{}, ErrMalformedLine
	}
	tsText := fields[0]
	if !strings.HasPrefix(tsText, "(") || !strings.HasSuffix(tsText, ")") {
		return frame.Frame{}, ErrBadTimestamp
	}
	ts, err := strconv.ParseFloat(tsText[1:len(tsText)-1], 64)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}

	f := frame.Frame{Timestamp: ts, Channel: fields[1]}
	idText, rest, ok := strings.Cut(fields[2], "#")
	if !ok {
		return frame.Frame{}, ErrMalformedLine
	}
	if len(idText) == 0 || len(idText) > 8 {
		return frame.Frame{}, ErrBadID
	}
	id, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrBadID, err)
	}
	f.ID = uint32(id)
	f.Extended = len(idText) > 3

	switch {
	case strings.HasPrefix(rest, "#"):
		// FD: one flags nibble, then data.
		if len(rest) < 2 {
			return frame.Frame{}, ErrBadPayload
		}
		f.FD = true
		rest = rest[2:]
	case strings.HasPrefix(rest, "R"):
		f.Remote = true
		return f, nil
	}
	rest = strings.ReplaceAll(rest, ".", "")
	data, err := hex.DecodeString(rest)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	f.Data = data
	return f, nil
}

// FormatLine renders f in the form ParseLine accepts.
func FormatLine(f frame.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%.6f) %s ", f.Timestamp, channelOr(f.Channel))
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	switch {
	case f.Remote:
		b.WriteString("#R")
	case f.FD:
		b.WriteString("##0")
		b.WriteString(strings.ToUpper(hex.EncodeToString(f.Data)))
	default:
		b.WriteString("#")
		b.WriteString(strings.ToUpper(hex.EncodeToString(f.Data)))
	}
	return b.String()
}

func channelOr(ch string) string {
	if ch == "" {
		return "can0"
	}
	return ch
}
