package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	files map[string][]Message
	calls []string
}

func (f *fakeParser) ParseFile(path string) ([]Message, error) {
	f.calls = append(f.calls, path)
	msgs, ok := f.files[path]
	if !ok {
		return nil, errors.New("unparsable")
	}
	return msgs, nil
}

func gearMessage(id uint32, choices []Choice) Message {
	return Message{
		ID:     id,
		Name:   "Drive",
		Length: 8,
		Signals: []SignalDefinition{
			{Name: "Gear", StartBit: 0, Length: 4, Scale: 1, Choices: choices, Note: "selected gear"},
			{Name: "Speed", StartBit: 8, Length: 16, Scale: 0.01, Unit: "km/h", Max: 655.35},
			{Name: "Torque", StartBit: 32, Length: 32, Float: true, Scale: 1},
		},
	}
}

func TestLoadCatalogsSkipsBrokenFilesAndFirstEnumWins(t *testing.T) {
	testlog.Start(t)
	parser := &fakeParser{files: map[string][]Message{
		"dbc/b-vehicle.dbc": {gearMessage(0x1A0, []Choice{{0, "PARK"}, {1, "DRIVE"}, {2, "REVERSE"}})},
		"dbc/a-can.dbc":     {gearMessage(0x100, []Choice{{0, "P"}, {1, "R"}, {2, "N"}, {3, "D"}})},
	}}
	reg, err := LoadCatalogs(parser, []string{"dbc/c-broken.dbc", "dbc/b-vehicle.dbc", "dbc/a-can.dbc"}, DefaultEnumPolicy())
	require.NoError(t, err)

	assert.Equal(t, []string{"dbc/a-can.dbc", "dbc/b-vehicle.dbc", "dbc/c-broken.dbc"}, parser.calls)
	assert.Equal(t, []string{"a_can", "b_vehicle"}, reg.Tags())
	assert.Equal(t, []string{"dbc/c-broken.dbc"}, reg.Skipped())

	enums := reg.EnumMap()
	assert.Equal(t, EnumTable{"0": "P", "1": "R", "2": "N", "3": "D"}, enums["Gear"])

	types := reg.SignalTypes()
	assert.Equal(t, DataTypeEnum, types["Gear"])
	assert.Equal(t, DataTypeInt, types["Speed"])
	assert.Equal(t, DataTypeFloat, types["Torque"])

	rows := reg.Rows()
	require.Len(t, rows, 6)
	assert.Equal(t, "0x100", rows[0].MessageID)
	assert.Equal(t, "a-can.dbc", rows[0].DBCSource)
	assert.Len(t, reg.Signal("Gear"), 2)
}

func TestLoadCatalogsAllBroken(t *testing.T) {
	testlog.Start(t)
	reg, err := LoadCatalogs(&fakeParser{}, []string{"x.dbc"}, DefaultEnumPolicy())
	if !errors.Is(err, ErrNoCatalogs) {
		t.Fatalf("expected ErrNoCatalogs, got %v", err)
	}
	if len(reg.Catalogs()) != 0 {
		t.Fatalf("expected no catalogs")
	}
}

func TestBuildCatalogRejectsCoercionFailureAndClassifies(t *testing.T) {
	testlog.Start(t)
	msg := gearMessage(0x10, []Choice{{0.5, "HALF"}, {1, "ON"}})
	cat := BuildCatalog("can1-party.dbc", []Message{msg}, DefaultEnumPolicy())
	m, ok := cat.Message(0x10)
	require.True(t, ok)
	gear := m.Signals[0]
	assert.False(t, gear.IsEnum())
	assert.Equal(t, DataTypeInt, gear.DataType())
	assert.Equal(t, "can1_party", cat.Tag)
	assert.Equal(t, "can1-party.dbc", gear.Source)
	assert.Equal(t, "Drive", gear.MessageName)

	_, ok = cat.Message(0x11)
	assert.False(t, ok)
}

func TestBuildCatalogFillsMultiplexerParent(t *testing.T) {
	testlog.Start(t)
	msg := Message{ID: 0x200, Name: "Mux", Length: 8, Signals: []SignalDefinition{
		{Name: "Page", Length: 8, Scale: 1, IsMultiplexer: true},
		{Name: "A", StartBit: 8, Length: 8, Scale: 1, Multiplexed: true, MultiplexValue: 1},
	}}
	cat := BuildCatalog("mux.dbc", []Message{msg}, DefaultEnumPolicy())
	reg := NewRegistry(cat)
	rows := reg.Rows()
	assert.True(t, rows[0].IsMultiplexer)
	assert.Equal(t, "Page", rows[1].MultiplexerSignal)
}

func TestWriteMetadataCSV(t *testing.T) {
	testlog.Start(t)
	cat := BuildCatalog("a-can.dbc", []Message{gearMessage(0x1A0, []Choice{{0, "P"}, {1, "R"}, {2, "N"}})}, DefaultEnumPolicy())
	var buf bytes.Buffer
	require.NoError(t, WriteMetadataCSV(&buf, NewRegistry(cat).Rows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, MetadataHeader, records[0])
	gear := records[1]
	assert.Equal(t, "Gear", gear[0])
	assert.Equal(t, "enum", gear[2])
	assert.Equal(t, `{"0":"P","1":"R","2":"N"}`, gear[3])
	assert.Equal(t, "0x1a0", gear[12])
	assert.Equal(t, "selected gear", gear[14])
	speed := records[2]
	assert.Equal(t, "", speed[3])
	assert.Equal(t, "0.01", speed[6])
	assert.Equal(t, "655.35", speed[5])
}

func TestEnumMapFileRoundTrip(t *testing.T) {
	testlog.Start(t)
	m := EnumMap{
		"Gear":  {"0": "P", "10": "D", "2": "N"},
		"Light": {"0": "OFF", "1": "ON", "2": "AUTO"},
	}
	for _, name := range []string{"enum_maps.json", "enum_maps.yaml"} {
		path := filepath.Join(t.TempDir(), "registry", name)
		require.NoError(t, WriteEnumMap(path, m))
		got, err := ReadEnumMap(path)
		require.NoError(t, err)
		assert.Equal(t, m, got, name)
	}
}
