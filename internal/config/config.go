package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/quality"
	"github.com/danmuck/busdecode/internal/validate"
	"github.com/rs/zerolog/log"
)

// Duration is a time.Duration written as text ("1s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Paths      PathsConfig      `toml:"paths"`
	Enum       EnumConfig       `toml:"enum"`
	Downsample DownsampleConfig `toml:"downsample"`
	Quality    QualityConfig    `toml:"quality"`
	Runtime    RuntimeConfig    `toml:"runtime"`
	Server     ServerConfig     `toml:"server"`
}

// PathsConfig locates stage inputs and outputs. Stage directories left
// unset follow data_dir.
type PathsConfig struct {
	DataDir        string `toml:"data_dir"`
	DBCDir         string `toml:"dbc_dir"`
	RegistryDir    string `toml:"registry_dir"`
	RawDir         string `toml:"raw_dir"`
	DecodedDir     string `toml:"decoded_dir"`
	DownsampledDir string `toml:"downsampled_dir"`
	ProcessedDir   string `toml:"processed_dir"`
	MergedDir      string `toml:"merged_dir"`
	ReportDir      string `toml:"report_dir"`
}

type EnumConfig struct {
	JunkLabels           []string `toml:"junk_labels"`
	MaxPseudoBoolEntries int      `toml:"max_pseudo_bool_entries"`
	MapFile              string   `toml:"map_file"`
}

type DownsampleConfig struct {
	Period Duration `toml:"period"`
}

type QualityConfig struct {
	MaxNullFraction           float64 `toml:"max_null_fraction"`
	MinUniqueNonEnum          int     `toml:"min_unique_non_enum"`
	ClassifyMaxNullFraction   float64 `toml:"classify_max_null_fraction"`
	ClassifyMaxConstantUnique int     `toml:"classify_max_constant_unique"`
}

type RuntimeConfig struct {
	Workers     int    `toml:"workers"`
	FrameGlob   string `toml:"frame_glob"`
	CatalogGlob string `toml:"catalog_glob"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// AuthToken, when set, is required as a bearer token on browse routes.
	AuthToken string `toml:"auth_token"`
}

// ValidationError reports one invalid config field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func DefaultConfig() Config {
	policy := catalog.DefaultEnumPolicy()
	qt := quality.DefaultThresholds()
	vt := validate.DefaultThresholds()
	return Config{
		Paths: derivePaths("data", PathsConfig{
			DBCDir:      filepath.Join("config", "dbc"),
			RegistryDir: filepath.Join("config", "registry"),
		}),
		Enum: EnumConfig{
			JunkLabels:           append([]string(nil), policy.JunkLabels...),
			MaxPseudoBoolEntries: policy.MaxPseudoBoolEntries,
			MapFile:              "enum_maps.json",
		},
		Downsample: DownsampleConfig{Period: Duration{time.Second}},
		Quality: QualityConfig{
			MaxNullFraction:           qt.MaxNullFraction,
			MinUniqueNonEnum:          qt.MinUniqueNonEnum,
			ClassifyMaxNullFraction:   vt.MaxNullFraction,
			ClassifyMaxConstantUnique: vt.MaxConstantUnique,
		},
		Runtime: RuntimeConfig{
			Workers:     1,
			FrameGlob:   "*.log",
			CatalogGlob: "*.dbc",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

func derivePaths(dataDir string, p PathsConfig) PathsConfig {
	p.DataDir = dataDir
	p.RawDir = filepath.Join(dataDir, "raw")
	p.DecodedDir = filepath.Join(dataDir, "decoded")
	p.DownsampledDir = filepath.Join(dataDir, "downsampled")
	p.ProcessedDir = filepath.Join(dataDir, "processed")
	p.MergedDir = filepath.Join(dataDir, "merged")
	p.ReportDir = filepath.Join(dataDir, "reports")
	return p
}

// WithDataDir moves data_dir and every stage dir derived from it.
func (c Config) WithDataDir(dir string) Config {
	c.Paths = derivePaths(strings.TrimSpace(dir), c.Paths)
	return c
}

// Load decodes path and overlays every defined key onto DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Msgf("config.Load unknown key=%s path=%s", key.String(), path)
	}

	if meta.IsDefined("paths", "data_dir") {
		cfg.Paths = derivePaths(strings.TrimSpace(raw.Paths.DataDir), cfg.Paths)
	}
	overlayString(meta, &cfg.Paths.DBCDir, raw.Paths.DBCDir, "paths", "dbc_dir")
	overlayString(meta, &cfg.Paths.RegistryDir, raw.Paths.RegistryDir, "paths", "registry_dir")
	overlayString(meta, &cfg.Paths.RawDir, raw.Paths.RawDir, "paths", "raw_dir")
	overlayString(meta, &cfg.Paths.DecodedDir, raw.Paths.DecodedDir, "paths", "decoded_dir")
	overlayString(meta, &cfg.Paths.DownsampledDir, raw.Paths.DownsampledDir, "paths", "downsampled_dir")
	overlayString(meta, &cfg.Paths.ProcessedDir, raw.Paths.ProcessedDir, "paths", "processed_dir")
	overlayString(meta, &cfg.Paths.MergedDir, raw.Paths.MergedDir, "paths", "merged_dir")
	overlayString(meta, &cfg.Paths.ReportDir, raw.Paths.ReportDir, "paths", "report_dir")

	if meta.IsDefined("enum", "junk_labels") {
		cfg.Enum.JunkLabels = raw.Enum.JunkLabels
	}
	if meta.IsDefined("enum", "max_pseudo_bool_entries") {
		cfg.Enum.MaxPseudoBoolEntries = raw.Enum.MaxPseudoBoolEntries
	}
	overlayString(meta, &cfg.Enum.MapFile, raw.Enum.MapFile, "enum", "map_file")

	if meta.IsDefined("downsample", "period") {
		cfg.Downsample.Period = raw.Downsample.Period
	}

	if meta.IsDefined("quality", "max_null_fraction") {
		cfg.Quality.MaxNullFraction = raw.Quality.MaxNullFraction
	}
	if meta.IsDefined("quality", "min_unique_non_enum") {
		cfg.Quality.MinUniqueNonEnum = raw.Quality.MinUniqueNonEnum
	}
	if meta.IsDefined("quality", "classify_max_null_fraction") {
		cfg.Quality.ClassifyMaxNullFraction = raw.Quality.ClassifyMaxNullFraction
	}
	if meta.IsDefined("quality", "classify_max_constant_unique") {
		cfg.Quality.ClassifyMaxConstantUnique = raw.Quality.ClassifyMaxConstantUnique
	}

	if meta.IsDefined("runtime", "workers") {
		cfg.Runtime.Workers = raw.Runtime.Workers
	}
	overlayString(meta, &cfg.Runtime.FrameGlob, raw.Runtime.FrameGlob, "runtime", "frame_glob")
	overlayString(meta, &cfg.Runtime.CatalogGlob, raw.Runtime.CatalogGlob, "runtime", "catalog_glob")

	overlayString(meta, &cfg.Server.Addr, raw.Server.Addr, "server", "addr")
	if meta.IsDefined("server", "cors_origins") {
		cfg.Server.CorsOrigins = raw.Server.CorsOrigins
	}
	overlayString(meta, &cfg.Server.AuthToken, raw.Server.AuthToken, "server", "auth_token")

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayString(meta toml.MetaData, dst *string, value string, key ...string) {
	if meta.IsDefined(key...) {
		*dst = strings.TrimSpace(value)
	}
}

func Validate(cfg Config) error {
	required := []struct {
		field string
		value string
	}{
		{"paths.dbc_dir", cfg.Paths.DBCDir},
		{"paths.registry_dir", cfg.Paths.RegistryDir},
		{"paths.raw_dir", cfg.Paths.RawDir},
		{"paths.decoded_dir", cfg.Paths.DecodedDir},
		{"paths.downsampled_dir", cfg.Paths.DownsampledDir},
		{"paths.processed_dir", cfg.Paths.ProcessedDir},
		{"paths.merged_dir", cfg.Paths.MergedDir},
		{"paths.report_dir", cfg.Paths.ReportDir},
		{"enum.map_file", cfg.Enum.MapFile},
		{"runtime.frame_glob", cfg.Runtime.FrameGlob},
		{"runtime.catalog_glob", cfg.Runtime.CatalogGlob},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	for _, glob := range []struct{ field, pattern string }{
		{"runtime.frame_glob", cfg.Runtime.FrameGlob},
		{"runtime.catalog_glob", cfg.Runtime.CatalogGlob},
	} {
		if _, err := filepath.Match(glob.pattern, ""); err != nil {
			return ValidationError{Field: glob.field, Reason: "malformed pattern"}
		}
	}
	if cfg.Enum.MaxPseudoBoolEntries < 0 {
		return ValidationError{Field: "enum.max_pseudo_bool_entries", Reason: "must be >= 0"}
	}
	if cfg.Downsample.Period.Duration <= 0 {
		return ValidationError{Field: "downsample.period", Reason: "must be positive"}
	}
	if f := cfg.Quality.MaxNullFraction; f < 0 || f > 1 {
		return ValidationError{Field: "quality.max_null_fraction", Reason: "must be within [0, 1]"}
	}
	if f := cfg.Quality.ClassifyMaxNullFraction; f < 0 || f > 1 {
		return ValidationError{Field: "quality.classify_max_null_fraction", Reason: "must be within [0, 1]"}
	}
	if cfg.Quality.MinUniqueNonEnum < 0 {
		return ValidationError{Field: "quality.min_unique_non_enum", Reason: "must be >= 0"}
	}
	if cfg.Runtime.Workers < 1 {
		return ValidationError{Field: "runtime.workers", Reason: "must be >= 1"}
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return ValidationError{Field: "server.addr", Reason: "is required"}
	}
	return nil
}

func (c Config) EnumPolicy() catalog.EnumPolicy {
	return catalog.EnumPolicy{JunkLabels: c.Enum.JunkLabels, MaxPseudoBoolEntries: c.Enum.MaxPseudoBoolEntries}
}

func (c Config) QualityThresholds() quality.Thresholds {
	return quality.Thresholds{MaxNullFraction: c.Quality.MaxNullFraction, MinUniqueNonEnum: c.Quality.MinUniqueNonEnum}
}

func (c Config) ClassifyThresholds() validate.Thresholds {
	return validate.Thresholds{
		MaxNullFraction:   c.Quality.ClassifyMaxNullFraction,
		MaxConstantUnique: c.Quality.ClassifyMaxConstantUnique,
	}
}

// EnumMapPath is where the enum map is written and read.
func (c Config) EnumMapPath() string {
	return filepath.Join(c.Paths.RegistryDir, c.Enum.MapFile)
}

// MetadataPath is where the signal metadata CSV is written.
func (c Config) MetadataPath() string {
	return filepath.Join(c.Paths.RegistryDir, "signal_metadata.csv")
}
