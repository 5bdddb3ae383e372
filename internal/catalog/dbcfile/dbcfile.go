// Package dbcfile reads DBC catalog files into catalog messages.
package dbcfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/danmuck/busdecode/internal/catalog"
	"go.einride.tech/can/pkg/dbc"
)

// independentSignalsMessage is the placeholder message some tools emit for
// signals that belong to no frame.
const independentSignalsMessage = "VECTOR__INDEPENDENT_SIG_MSG"

// Parser implements catalog.Parser for DBC files.
type Parser struct{}

func (Parser) ParseFile(path string) ([]catalog.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dbc (%s): %w", path, err)
	}
	return Parse(filepath.Base(path), data)
}

type signalKey struct {
	messageID dbc.MessageID
	signal    dbc.Identifier
}

// Parse converts DBC source text into messages sorted by id.
func Parse(name string, data []byte) ([]catalog.Message, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("parse dbc (%s): %w", name, err)
	}

	var messageDefs []*dbc.MessageDef
	choices := make(map[signalKey][]catalog.Choice)
	comments := make(map[signalKey]string)
	floats := make(map[signalKey]dbc.SignalValueType)
	for _, def := range p.Defs() {
		switch d := def.(type) {
		case *dbc.MessageDef:
			if string(d.Name) == independentSignalsMessage {
				continue
			}
			messageDefs = append(messageDefs, d)
		case *dbc.ValueDescriptionsDef:
			if d.SignalName == "" {
				continue
			}
			key := signalKey{messageID: d.MessageID, signal: d.SignalName}
			for _, vd := range d.ValueDescriptions {
				choices[key] = append(choices[key], catalog.Choice{Value: vd.Value, Label: vd.Description})
			}
		case *dbc.CommentDef:
			if d.ObjectType != dbc.ObjectTypeSignal {
				continue
			}
			comments[signalKey{messageID: d.MessageID, signal: d.SignalName}] = d.Comment
		case *dbc.SignalValueTypeDef:
			floats[signalKey{messageID: d.MessageID, signal: d.SignalName}] = d.SignalValueType
		}
	}

	msgs := make([]catalog.Message, 0, len(messageDefs))
	for _, md := range messageDefs {
		msg := catalog.Message{
			ID:       md.MessageID.ToCAN(),
			Name:     string(md.Name),
			Length:   int(md.Size),
			Extended: md.MessageID.IsExtended(),
			Signals:  make([]catalog.SignalDefinition, 0, len(md.Signals)),
		}
		for _, sd := range md.Signals {
			key := signalKey{messageID: md.MessageID, signal: sd.Name}
			sig := catalog.SignalDefinition{
				Name:           string(sd.Name),
				StartBit:       uint16(sd.StartBit),
				Length:         uint16(sd.Size),
				Signed:         sd.IsSigned,
				Scale:          sd.Factor,
				Offset:         sd.Offset,
				Min:            sd.Minimum,
				Max:            sd.Maximum,
				Unit:           sd.Unit,
				Choices:        choices[key],
				Note:           comments[key],
				IsMultiplexer:  sd.IsMultiplexerSwitch,
				Multiplexed:    sd.IsMultiplexed,
				MultiplexValue: uint64(sd.MultiplexerSwitch),
			}
			if sd.IsBigEndian {
				sig.ByteOrder = catalog.BigEndian
			}
			switch floats[key] {
			case dbc.SignalValueTypeFloat32, dbc.SignalValueTypeFloat64:
				sig.Float = true
			}
			msg.Signals = append(msg.Signals, sig)
		}
		msgs = append(msgs, msg)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}
