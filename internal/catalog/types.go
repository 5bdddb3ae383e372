package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DataType is the analysis class of a signal.
type DataType string

const (
	DataTypeEnum  DataType = "enum"
	DataTypeFloat DataType = "float"
	DataTypeInt   DataType = "int"
)

// ByteOrder is the bit numbering of a signal inside the payload.
type ByteOrder uint8

const (
	// LittleEndian is Intel order; StartBit is the least significant bit.
	LittleEndian ByteOrder = iota
	// BigEndian is Motorola order; StartBit is the most significant bit in
	// sawtooth numbering.
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

// Choice is one raw value description as declared by the catalog file.
type Choice struct {
	Value float64
	Label string
}

// SignalDefinition describes one signal of one message.
type SignalDefinition struct {
	Name        string
	MessageID   uint32
	MessageName string

	StartBit  uint16
	Length    uint16
	ByteOrder ByteOrder
	Signed    bool
	// Float marks IEEE-754 signals; Length is 32 or 64.
	Float bool

	Scale  float64
	Offset float64
	Min    float64
	Max    float64
	Unit   string

	// Choices is the raw value table; Enum is set only when Choices passed
	// the enum policy.
	Choices []Choice
	Enum    EnumTable

	Note string

	IsMultiplexer     bool
	Multiplexed       bool
	MultiplexValue    uint64
	MultiplexerSignal string

	Source string
}

// IsEnum reports whether the signal carries an accepted enum table.
func (s SignalDefinition) IsEnum() bool {
	return len(s.Enum) > 0
}

// DataType classifies the signal as enum, float or int.
func (s SignalDefinition) DataType() DataType {
	switch {
	case s.IsEnum():
		return DataTypeEnum
	case s.Float:
		return DataTypeFloat
	default:
		return DataTypeInt
	}
}

// ChoiceLabel returns the raw catalog label for code, if declared.
func (s SignalDefinition) ChoiceLabel(code int64) (string, bool) {
	for _, c := range s.Choices {
		if int64(c.Value) == code && c.Value == float64(int64(c.Value)) {
			return c.Label, true
		}
	}
	return "", false
}

// Message is one bus message and its signals in declaration order.
type Message struct {
	ID       uint32
	Name     string
	Length   int
	Extended bool
	Signals  []SignalDefinition
}

// IDText renders the id the way tables and registries carry it.
func (m Message) IDText() string {
	return FormatID(m.ID)
}

// Multiplexer returns the switch signal of a multiplexed message.
func (m Message) Multiplexer() (SignalDefinition, bool) {
	for _, s := range m.Signals {
		if s.IsMultiplexer {
			return s, true
		}
	}
	return SignalDefinition{}, false
}

// FormatID renders an arbitration id as lower-case hex with 0x prefix.
func FormatID(id uint32) string {
	return fmt.Sprintf("0x%x", id)
}

// Catalog is one parsed catalog file.
type Catalog struct {
	// Name is the catalog file base name.
	Name string
	// Tag identifies tables decoded with this catalog.
	Tag      string
	Messages []Message
	byID     map[uint32]int
}

// NewCatalog indexes msgs by id. Messages are kept sorted by id.
func NewCatalog(name string, msgs []Message) *Catalog {
	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	c := &Catalog{
		Name:     filepath.Base(name),
		Tag:      TagFor(name),
		Messages: sorted,
		byID:     make(map[uint32]int, len(sorted)),
	}
	for i, m := range sorted {
		if _, dup := c.byID[m.ID]; !dup {
			c.byID[m.ID] = i
		}
	}
	return c
}

// Message looks up a message by arbitration id.
func (c *Catalog) Message(id uint32) (*Message, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return &c.Messages[i], true
}

// SignalCount returns the number of signals over all messages.
func (c *Catalog) SignalCount() int {
	n := 0
	for _, m := range c.Messages {
		n += len(m.Signals)
	}
	return n
}

// TagFor derives the catalog tag from a file name: the stem with '-'
// replaced by '_'.
func TagFor(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(stem, "-", "_")
}

// Parser reads a catalog file into message definitions.
type Parser interface {
	ParseFile(path string) ([]Message, error)
}
