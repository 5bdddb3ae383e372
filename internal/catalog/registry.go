package catalog

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

var ErrNoCatalogs = errors.New("catalog: no catalog could be loaded")

// MetadataRow is one line of the signal metadata registry.
type MetadataRow struct {
	SignalName        string
	Unit              string
	DataType          DataType
	EnumValues        EnumTable
	MinPhysical       float64
	MaxPhysical       float64
	Scaling           float64
	Offset            float64
	BitLength         int
	IsMultiplexer     bool
	MultiplexerSignal string
	MessageName       string
	MessageID         string
	DBCSource         string
	Notes             string
}

// Registry is the read-only catalog state of one pipeline run.
type Registry struct {
	catalogs []*Catalog
	rows     []MetadataRow
	enums    EnumMap
	types    map[string]DataType
	skipped  []string
}

// BuildCatalog applies the enum policy to every signal of msgs and returns
// the indexed catalog.
func BuildCatalog(name string, msgs []Message, policy EnumPolicy) *Catalog {
	source := filepath.Base(name)
	built := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out := m
		out.Signals = make([]SignalDefinition, 0, len(m.Signals))
		mux, hasMux := m.Multiplexer()
		for _, s := range m.Signals {
			s.MessageID = m.ID
			s.MessageName = m.Name
			s.Source = source
			if s.Multiplexed && hasMux && s.MultiplexerSignal == "" {
				s.MultiplexerSignal = mux.Name
			}
			s.Enum = nil
			if len(s.Choices) > 0 {
				enum, err := NormalizeEnum(s.Choices, policy)
				switch {
				case err == nil:
					s.Enum = enum
				case errors.Is(err, ErrEnumCoercion):
					log.Warn().Msgf(
						"catalog.BuildCatalog enum discarded catalog=%q signal=%q err=%v",
						source,
						s.Name,
						err,
					)
				default:
					log.Debug().Msgf("catalog.BuildCatalog enum rejected signal=%q reason=%v", s.Name, err)
				}
			}
			out.Signals = append(out.Signals, s)
		}
		built = append(built, out)
	}
	return NewCatalog(name, built)
}

// NewRegistry aggregates catalogs in the given order. On signal name
// collisions the first populated enum table and the first data type win.
// A signal with a canonical enum table is typed enum.
func NewRegistry(catalogs ...*Catalog) *Registry {
	r := &Registry{
		catalogs: catalogs,
		enums:    make(EnumMap),
		types:    make(map[string]DataType),
	}
	for _, c := range catalogs {
		for _, m := range c.Messages {
			for _, s := range m.Signals {
				r.rows = append(r.rows, metadataRow(c, m, s))
				if _, ok := r.types[s.Name]; !ok {
					r.types[s.Name] = s.DataType()
				}
				if s.IsEnum() {
					if _, ok := r.enums[s.Name]; !ok {
						r.enums[s.Name] = s.Enum
					}
				}
			}
		}
	}
	// an enum table from any catalog makes the signal an enum everywhere
	for name := range r.enums {
		r.types[name] = DataTypeEnum
	}
	return r
}

func metadataRow(c *Catalog, m Message, s SignalDefinition) MetadataRow {
	return MetadataRow{
		SignalName:        s.Name,
		Unit:              s.Unit,
		DataType:          s.DataType(),
		EnumValues:        s.Enum,
		MinPhysical:       s.Min,
		MaxPhysical:       s.Max,
		Scaling:           s.Scale,
		Offset:            s.Offset,
		BitLength:         int(s.Length),
		IsMultiplexer:     s.IsMultiplexer,
		MultiplexerSignal: s.MultiplexerSignal,
		MessageName:       m.Name,
		MessageID:         m.IDText(),
		DBCSource:         c.Name,
		Notes:             s.Note,
	}
}

// LoadCatalogs parses files in lexicographic order. A file that fails to
// parse is logged and skipped; ErrNoCatalogs is returned only when nothing
// loaded.
func LoadCatalogs(parser Parser, files []string, policy EnumPolicy) (*Registry, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	catalogs := make([]*Catalog, 0, len(sorted))
	var skipped []string
	for _, path := range sorted {
		msgs, err := parser.ParseFile(path)
		if err != nil {
			log.Error().Msgf("catalog.LoadCatalogs skip path=%q err=%v", path, err)
			skipped = append(skipped, path)
			continue
		}
		c := BuildCatalog(path, msgs, policy)
		log.Info().Msgf(
			"catalog.LoadCatalogs loaded catalog=%q messages=%d signals=%d",
			c.Name,
			len(c.Messages),
			c.SignalCount(),
		)
		catalogs = append(catalogs, c)
	}
	r := NewRegistry(catalogs...)
	r.skipped = skipped
	if len(catalogs) == 0 {
		return r, ErrNoCatalogs
	}
	return r, nil
}

// Catalogs returns the loaded catalogs in load order.
func (r *Registry) Catalogs() []*Catalog {
	out := make([]*Catalog, len(r.catalogs))
	copy(out, r.catalogs)
	return out
}

// Catalog finds a catalog by tag.
func (r *Registry) Catalog(tag string) (*Catalog, bool) {
	for _, c := range r.catalogs {
		if c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// Tags returns the catalog tags in load order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.catalogs))
	for _, c := range r.catalogs {
		tags = append(tags, c.Tag)
	}
	return tags
}

// Rows returns the metadata registry rows.
func (r *Registry) Rows() []MetadataRow {
	out := make([]MetadataRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// EnumMap returns the canonical enum map. Callers must not modify it.
func (r *Registry) EnumMap() EnumMap {
	return r.enums
}

// SignalTypes returns the signal name to data type lookup.
func (r *Registry) SignalTypes() map[string]DataType {
	out := make(map[string]DataType, len(r.types))
	for k, v := range r.types {
		out[k] = v
	}
	return out
}

// Skipped lists catalog files that failed to load.
func (r *Registry) Skipped() []string {
	return append([]string(nil), r.skipped...)
}

// Signal returns every definition carrying name, in load order.
func (r *Registry) Signal(name string) []MetadataRow {
	var out []MetadataRow
	for _, row := range r.rows {
		if row.SignalName == name {
			out = append(out, row)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
