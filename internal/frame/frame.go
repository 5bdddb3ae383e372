package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	Magic          uint32 = 0x42555346 // "BUSF"
	Version        uint16 = 1
	FixedHeaderLen        = 24

	FlagExtended uint16 = 0x01
	FlagFD       uint16 = 0x02
	FlagRemote   uint16 = 0x04

	MaxClassicPayload = 8
	MaxFDPayload      = 64
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrInvalidID          = errors.New("frame: arbitration id out of range")
	ErrInvalidTimestamp   = errors.New("frame: invalid timestamp")
)

// Frame is one timestamped bus message instance.
type Frame struct {
	// Timestamp is seconds, absolute or relative per source.
	Timestamp float64
	ID        uint32
	Extended  bool
	FD        bool
	Remote    bool
	Channel   string
	Data      []byte
}

// IDText renders the arbitration id as lower-case hex with 0x prefix.
func (f Frame) IDText() string {
	return fmt.Sprintf("0x%x", f.ID)
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: MaxFDPayload}
}

// Validate checks id range and payload size.
func (f Frame) Validate(limits Limits) error {
	if f.Extended && f.ID > 0x1FFFFFFF {
		return ErrInvalidID
	}
	if !f.Extended && f.ID > 0x7FF {
		return ErrInvalidID
	}
	max := limits.MaxPayloadBytes
	if !f.FD && max > MaxClassicPayload {
		max = MaxClassicPayload
	}
	if len(f.Data) > max {
		return ErrPayloadTooLarge
	}
	if math.IsNaN(f.Timestamp) || math.IsInf(f.Timestamp, 0) {
		return ErrInvalidTimestamp
	}
	return nil
}

// ReadFrame reads one record of the binary frame log format.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	if binary.BigEndian.Uint32(fixed[0:4]) != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if binary.BigEndian.Uint16(fixed[4:6]) != Version {
		return Frame{}, ErrUnsupportedVersion
	}
	flags := binary.BigEndian.Uint16(fixed[6:8])
	f := Frame{
		ID:        binary.BigEndian.Uint32(fixed[8:12]),
		Timestamp: math.Float64frombits(binary.BigEndian.Uint64(fixed[12:20])),
		Extended:  flags&FlagExtended != 0,
		FD:        flags&FlagFD != 0,
		Remote:    flags&FlagRemote != 0,
	}
	payloadLen := binary.BigEndian.Uint32(fixed[20:24])
	if payloadLen > uint32(limits.MaxPayloadBytes) {
		return Frame{}, ErrPayloadTooLarge
	}
	f.Data = make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, f.Data); err != nil {
			return Frame{}, fmt.Errorf("frame: short payload: %w", err)
		}
	}
	return f, nil
}

// WriteFrame writes f in the binary frame log format.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if err := f.Validate(limits); err != nil {
		return err
	}
	var flags uint16
	if f.Extended {
		flags |= FlagExtended
	}
	if f.FD {
		flags |= FlagFD
	}
	if f.Remote {
		flags |= FlagRemote
	}
	buf := make([]byte, FixedHeaderLen, FixedHeaderLen+len(f.Data))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint16(buf[6:8], flags)
	binary.BigEndian.PutUint32(buf[8:12], f.ID)
	binary.BigEndian.PutUint64(buf[12:20], math.Float64bits(f.Timestamp))
	binary.BigEndian.PutUint32(buf[20:24], uint32(len(f.Data)))
	buf = append(buf, f.Data...)
	_, err := w.Write(buf)
	return err
}
