package server

import (
	"bufio"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/busdecode/internal/auth"
	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SignalView is one registry row as served over HTTP.
type SignalView struct {
	Name              string            `json:"name"`
	Unit              string            `json:"unit,omitempty"`
	DataType          catalog.DataType  `json:"data_type"`
	EnumValues        catalog.EnumTable `json:"enum_values,omitempty"`
	Min               float64           `json:"min"`
	Max               float64           `json:"max"`
	Scale             float64           `json:"scale"`
	Offset            float64           `json:"offset"`
	BitLength         int               `json:"bit_length"`
	IsMultiplexer     bool              `json:"is_multiplexer,omitempty"`
	MultiplexerSignal string            `json:"multiplexer_signal,omitempty"`
	MessageName       string            `json:"message_name"`
	MessageID         string            `json:"message_id"`
	Source            string            `json:"source"`
	Notes             string            `json:"notes,omitempty"`
}

type MessageView struct {
	Catalog string `json:"catalog"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Length  int    `json:"length"`
	Signals int    `json:"signals"`
}

func signalView(r catalog.MetadataRow) SignalView {
	return SignalView{
		Name:              r.SignalName,
		Unit:              r.Unit,
		DataType:          r.DataType,
		EnumValues:        r.EnumValues,
		Min:               r.MinPhysical,
		Max:               r.MaxPhysical,
		Scale:             r.Scaling,
		Offset:            r.Offset,
		BitLength:         r.BitLength,
		IsMultiplexer:     r.IsMultiplexer,
		MultiplexerSignal: r.MultiplexerSignal,
		MessageName:       r.MessageName,
		MessageID:         r.MessageID,
		Source:            r.DBCSource,
		Notes:             r.Notes,
	}
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.Started).String(),
			"service":  serviceName,
			"version":  version,
			"catalogs": s.registry.Tags(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.routes()

	api.GET("/signals", func(c *gin.Context) {
		filter := catalog.DataType(strings.ToLower(c.Query("data_type")))
		switch filter {
		case "", catalog.DataTypeEnum, catalog.DataTypeFloat, catalog.DataTypeInt:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data_type " + string(filter)})
			return
		}
		signals := make([]SignalView, 0)
		for _, row := range s.registry.Rows() {
			if filter != "" && row.DataType != filter {
				continue
			}
			signals = append(signals, signalView(row))
		}
		c.JSON(http.StatusOK, gin.H{"count": len(signals), "signals": signals})
	})

	api.GET("/signals/:name", func(c *gin.Context) {
		rows := s.registry.Signal(c.Param("name"))
		if len(rows) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
			return
		}
		views := make([]SignalView, 0, len(rows))
		for _, row := range rows {
			views = append(views, signalView(row))
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "definitions": views})
	})

	api.GET("/enums", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"enums": s.registry.EnumMap()})
	})

	api.GET("/enums/:name", func(c *gin.Context) {
		enum, ok := s.registry.EnumMap()[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "enum not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "values": enum})
	})

	api.GET("/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": s.messages()})
	})

	api.GET("/reports/allowlist", func(c *gin.Context) {
		names, err := readAllowlist(filepath.Join(s.reportDir, pipeline.AllowlistFile))
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "allowlist not written yet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"signals": names})
	})
}

// routes returns the browse route group, behind the token check when one
// is configured.
func (s *Server) routes() gin.IRoutes {
	if s.auth == nil {
		return s.router
	}
	return s.router.Group("/", auth.Middleware(s.auth))
}

func (s *Server) messages() []MessageView {
	var out []MessageView
	for _, cat := range s.registry.Catalogs() {
		for _, m := range cat.Messages {
			out = append(out, MessageView{
				Catalog: cat.Tag,
				ID:      m.IDText(),
				Name:    m.Name,
				Length:  m.Length,
				Signals: len(m.Signals),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Catalog < out[j].Catalog })
	return out
}

func readAllowlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names := make([]string, 0)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}
