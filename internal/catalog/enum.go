package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoChoices      = errors.New("catalog: enum has no choices")
	ErrEnumCoercion   = errors.New("catalog: enum coercion failed")
	ErrJunkEnum       = errors.New("catalog: enum labels are all placeholders")
	ErrPseudoBoolEnum = errors.New("catalog: pseudo-boolean enum with placeholder label")
)

// DefaultJunkLabels are placeholder labels that carry no meaning on their own.
var DefaultJunkLabels = []string{"SNA", "N/A", "NONE", "UNKNOWN", "UNDEFINED", ""}

// EnumPolicy decides which raw choice tables become enums.
type EnumPolicy struct {
	JunkLabels []string
	// MaxPseudoBoolEntries is the size at or below which a single junk label
	// rejects the table.
	MaxPseudoBoolEntries int
}

func DefaultEnumPolicy() EnumPolicy {
	labels := make([]string, len(DefaultJunkLabels))
	copy(labels, DefaultJunkLabels)
	return EnumPolicy{JunkLabels: labels, MaxPseudoBoolEntries: 2}
}

func (p EnumPolicy) junkSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.JunkLabels))
	for _, l := range p.JunkLabels {
		set[strings.ToUpper(strings.TrimSpace(l))] = struct{}{}
	}
	return set
}

// IsJunkLabelSet reports whether every label, upper-cased, is a junk label.
func IsJunkLabelSet(labels []string, policy EnumPolicy) bool {
	junk := policy.junkSet()
	for _, l := range labels {
		if _, ok := junk[strings.ToUpper(strings.TrimSpace(l))]; !ok {
			return false
		}
	}
	return true
}

// HasJunkLabel reports whether any label, upper-cased, is a junk label.
func HasJunkLabel(labels []string, policy EnumPolicy) bool {
	junk := policy.junkSet()
	for _, l := range labels {
		if _, ok := junk[strings.ToUpper(strings.TrimSpace(l))]; ok {
			return true
		}
	}
	return false
}

// EnumTable maps a raw code rendered as text to its label.
type EnumTable map[string]string

// Codes returns the codes in ascending numeric order.
func (e EnumTable) Codes() []string {
	codes := make([]string, 0, len(e))
	for code := range e {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		a, errA := strconv.ParseInt(codes[i], 10, 64)
		b, errB := strconv.ParseInt(codes[j], 10, 64)
		if errA != nil || errB != nil {
			return codes[i] < codes[j]
		}
		return a < b
	})
	return codes
}

// Labels returns the labels in code order.
func (e EnumTable) Labels() []string {
	labels := make([]string, 0, len(e))
	for _, code := range e.Codes() {
		labels = append(labels, e[code])
	}
	return labels
}

// MarshalJSON writes codes in numeric order so output is stable.
func (e EnumTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, code := range e.Codes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(code)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e[code])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeEnum turns a raw choice table into an accepted enum table.
//
// The table is rejected when it is empty, when any code is not an integer or
// any label is not valid text, when every label is a junk label, or when it is
// small enough to be a pseudo-boolean and contains a junk label.
func NormalizeEnum(choices []Choice, policy EnumPolicy) (EnumTable, error) {
	if len(choices) == 0 {
		return nil, ErrNoChoices
	}
	table := make(EnumTable, len(choices))
	for _, c := range choices {
		code, err := coerceCode(c.Value)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(c.Label) {
			return nil, fmt.Errorf("%w: label for code %d is not valid text", ErrEnumCoercion, code)
		}
		table[strconv.FormatInt(code, 10)] = strings.TrimSpace(c.Label)
	}
	labels := table.Labels()
	if IsJunkLabelSet(labels, policy) {
		return nil, ErrJunkEnum
	}
	if len(table) <= policy.MaxPseudoBoolEntries && HasJunkLabel(labels, policy) {
		return nil, ErrPseudoBoolEnum
	}
	return table, nil
}

func coerceCode(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: code %v is not finite", ErrEnumCoercion, v)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: code %v is not an integer", ErrEnumCoercion, v)
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: code %v out of range", ErrEnumCoercion, v)
	}
	return int64(v), nil
}

// EnumMap holds one canonical enum table per signal name.
type EnumMap map[string]EnumTable

// Label looks up the label of code for signal.
func (m EnumMap) Label(signal string, code int64) (string, bool) {
	table, ok := m[signal]
	if !ok {
		return "", false
	}
	label, ok := table[strconv.FormatInt(code, 10)]
	return label, ok
}

// Signals returns the mapped signal names sorted.
func (m EnumMap) Signals() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
