package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MetadataHeader is the column layout of the signal metadata registry.
var MetadataHeader = []string{
	"signal_name",
	"unit",
	"data_type",
	"enum_values",
	"min_physical",
	"max_physical",
	"scaling",
	"offset",
	"bit_length",
	"is_multiplexer",
	"multiplexer_signal",
	"message_name",
	"message_id",
	"dbc_source",
	"notes",
}

// WriteMetadataCSV writes rows with MetadataHeader.
func WriteMetadataCSV(w io.Writer, rows []MetadataRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MetadataHeader); err != nil {
		return err
	}
	for _, row := range rows {
		enumValues := ""
		if len(row.EnumValues) > 0 {
			raw, err := json.Marshal(row.EnumValues)
			if err != nil {
				return fmt.Errorf("encode enum values for %s: %w", row.SignalName, err)
			}
			enumValues = string(raw)
		}
		record := []string{
			row.SignalName,
			row.Unit,
			string(row.DataType),
			enumValues,
			formatFloat(row.MinPhysical),
			formatFloat(row.MaxPhysical),
			formatFloat(row.Scaling),
			formatFloat(row.Offset),
			strconv.Itoa(row.BitLength),
			strconv.FormatBool(row.IsMultiplexer),
			row.MultiplexerSignal,
			row.MessageName,
			row.MessageID,
			row.DBCSource,
			row.Notes,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEnumMap stores m as JSON, or YAML when path ends in .yaml or .yml.
func WriteEnumMap(path string, m EnumMap) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(toPlain(m))
	} else {
		data, err = marshalEnumJSON(m)
	}
	if err != nil {
		return fmt.Errorf("encode enum map: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create enum map dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadEnumMap loads a file written by WriteEnumMap.
func ReadEnumMap(path string) (EnumMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read enum map (%s): %w", path, err)
	}
	plain := make(map[string]map[string]string)
	if isYAML(path) {
		err = yaml.Unmarshal(data, &plain)
	} else {
		err = json.Unmarshal(data, &plain)
	}
	if err != nil {
		return nil, fmt.Errorf("parse enum map (%s): %w", path, err)
	}
	out := make(EnumMap, len(plain))
	for signal, table := range plain {
		out[signal] = EnumTable(table)
	}
	return out, nil
}

// marshalEnumJSON writes signals sorted by name and codes in numeric order.
func marshalEnumJSON(m EnumMap) ([]byte, error) {
	var b strings.Builder
	b.WriteString("{\n")
	for i, signal := range m.Signals() {
		key, err := json.Marshal(signal)
		if err != nil {
			return nil, err
		}
		table, err := json.Marshal(m[signal])
		if err != nil {
			return nil, err
		}
		b.WriteString("  ")
		b.Write(key)
		b.WriteString(": ")
		b.Write(table)
		if i < len(m)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return []byte(b.String()), nil
}

func toPlain(m EnumMap) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for signal, table := range m {
		out[signal] = map[string]string(table)
	}
	return out
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
