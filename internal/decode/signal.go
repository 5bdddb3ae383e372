package decode

import (
	"errors"
	"math"
	"math/big"

	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/shopspring/decimal"
)

var (
	ErrShortPayload       = errors.New("decode: payload shorter than message")
	ErrBitsOutOfRange     = errors.New("decode: signal bits outside payload")
	ErrBadSignalLength    = errors.New("decode: unsupported signal length")
	ErrMissingMultiplexer = errors.New("decode: multiplexer selector missing")
)

// NamedValue is a decoded value that the catalog declares a label for.
// Records carry only Code.
type NamedValue struct {
	Code  int64
	Label string
}

// extractRaw reads the signal's raw bit pattern, right aligned.
func extractRaw(data []byte, sig catalog.SignalDefinition) (uint64, error) {
	length := int(sig.Length)
	if length == 0 || length > 64 {
		return 0, ErrBadSignalLength
	}
	start := int(sig.StartBit)
	var v uint64
	if sig.ByteOrder == catalog.BigEndian {
		// sawtooth start bit to sequential msb0 position
		pos := (start/8)*8 + 7 - start%8
		for i := 0; i < length; i++ {
			p := pos + i
			if p/8 >= len(data) {
				return 0, ErrBitsOutOfRange
			}
			bit := (data[p/8] >> (7 - uint(p%8))) & 1
			v = v<<1 | uint64(bit)
		}
		return v, nil
	}
	for i := 0; i < length; i++ {
		p := start + i
		if p/8 >= len(data) {
			return 0, ErrBitsOutOfRange
		}
		bit := (data[p/8] >> uint(p%8)) & 1
		v |= uint64(bit) << uint(i)
	}
	return v, nil
}

func signExtend(v uint64, length uint16) int64 {
	if length >= 64 {
		return int64(v)
	}
	if v&(1<<(length-1)) != 0 {
		return int64(v) - int64(1)<<length
	}
	return int64(v)
}

// decodeSignal returns the physical value, or a NamedValue when the raw
// code has a catalog label.
func decodeSignal(data []byte, sig catalog.SignalDefinition) (any, error) {
	raw, err := extractRaw(data, sig)
	if err != nil {
		return nil, err
	}
	if sig.Float {
		var f float64
		switch sig.Length {
		case 32:
			f = float64(math.Float32frombits(uint32(raw)))
		case 64:
			f = math.Float64frombits(raw)
		default:
			return nil, ErrBadSignalLength
		}
		return f*sig.Scale + sig.Offset, nil
	}

	if len(sig.Choices) > 0 {
		code := int64(raw)
		if sig.Signed {
			code = signExtend(raw, sig.Length)
		}
		if label, ok := sig.ChoiceLabel(code); ok {
			return NamedValue{Code: code, Label: label}, nil
		}
	}

	var d decimal.Decimal
	switch {
	case sig.Signed:
		d = decimal.NewFromInt(signExtend(raw, sig.Length))
	case raw > math.MaxInt64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0)
	default:
		d = decimal.NewFromInt(int64(raw))
	}
	if sig.Scale == 1 && sig.Offset == 0 {
		return d.InexactFloat64(), nil
	}
	d = d.Mul(decimal.NewFromFloat(sig.Scale)).Add(decimal.NewFromFloat(sig.Offset))
	return d.InexactFloat64(), nil
}

// flatten reduces enumerated values to their numeric code.
func flatten(v any) any {
	if nv, ok := v.(NamedValue); ok {
		return float64(nv.Code)
	}
	return v
}
