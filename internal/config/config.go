package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Raster    RasterConfig    `yaml:"raster" mapstructure:"raster"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Crosswalk CrosswalkConfig `yaml:"crosswalk" mapstructure:"crosswalk"`
	Zones     ZonesConfig     `yaml:"zones" mapstructure:"zones"`
	Tabulate  TabulateConfig  `yaml:"tabulate" mapstructure:"tabulate"`
	Engine    CommandConfig   `yaml:"engine" mapstructure:"engine"`
	Staging   CommandConfig   `yaml:"staging" mapstructure:"staging"`
	Indicator IndicatorConfig `yaml:"indicator" mapstructure:"indicator"`
	Outputs   []string        `yaml:"outputs" mapstructure:"outputs"`
	SQLite    SQLiteConfig    `yaml:"sqlite" mapstructure:"sqlite"`
	PostGIS   PostGISConfig   `yaml:"postgis" mapstructure:"postgis"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates pipeline inputs and outputs.
type PathsConfig struct {
	SourceDir      string `yaml:"source_dir" mapstructure:"source_dir"`
	StagingDir     string `yaml:"staging_dir" mapstructure:"staging_dir"`
	TablesDir      string `yaml:"tables_dir" mapstructure:"tables_dir"`
	OutputDir      string `yaml:"output_dir" mapstructure:"output_dir"`
	ReferenceTable string `yaml:"reference_table" mapstructure:"reference_table"`
	CrosswalkTable string `yaml:"crosswalk_table" mapstructure:"crosswalk_table"`
	RunLog         string `yaml:"run_log" mapstructure:"run_log"`
}

// RunLogPath returns the run log location, defaulting into the output dir.
func (p PathsConfig) RunLogPath() string {
	if p.RunLog != "" {
		return p.RunLog
	}
	return filepath.Join(p.OutputDir, "chg_ta_log.csv")
}

// RasterConfig locates change rasters under the source dir.
type RasterConfig struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
}

// ReferenceConfig names the reference table columns.
type ReferenceConfig struct {
	KeyColumn    string `yaml:"key_column" mapstructure:"key_column"`
	BeforeColumn string `yaml:"before_column" mapstructure:"before_column"`
	AfterColumn  string `yaml:"after_column" mapstructure:"after_column"`
}

// CrosswalkConfig configures class classification.
type CrosswalkConfig struct {
	LabelColumn    string   `yaml:"label_column" mapstructure:"label_column"`
	CategoryColumn string   `yaml:"category_column" mapstructure:"category_column"`
	ValueColumn    string   `yaml:"value_column" mapstructure:"value_column"`
	Canopy         []string `yaml:"canopy" mapstructure:"canopy"`
	Developed      []string `yaml:"developed" mapstructure:"developed"`
	CodeWidth      int      `yaml:"code_width" mapstructure:"code_width"`
	Strict         bool     `yaml:"strict" mapstructure:"strict"`
}

// SchemeConfig is one zone scheme.
type SchemeConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Path string `yaml:"path" mapstructure:"path"`
}

// ZonesConfig configures the zone schemes.
type ZonesConfig struct {
	CellField      string         `yaml:"cell_field" mapstructure:"cell_field"`
	CanonicalField string         `yaml:"canonical_field" mapstructure:"canonical_field"`
	SRID           int            `yaml:"srid" mapstructure:"srid"`
	Schemes        []SchemeConfig `yaml:"schemes" mapstructure:"schemes"`
}

// Scheme returns the scheme called name.
func (z ZonesConfig) Scheme(name string) (SchemeConfig, bool) {
	for _, s := range z.Schemes {
		if s.Name == name {
			return s, true
		}
	}
	return SchemeConfig{}, false
}

// TabulateConfig configures the tabulation stage.
type TabulateConfig struct {
	ValueField  string   `yaml:"value_field" mapstructure:"value_field"`
	CellSize    float64  `yaml:"cell_size" mapstructure:"cell_size"`
	TableExt    string   `yaml:"table_ext" mapstructure:"table_ext"` // must be one of TableFormats
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	Units       []string `yaml:"units" mapstructure:"units"`
}

// TableFormats are the table extensions the aggregator can read. The engine
// command must write its tables in one of them (e.g. export TabulateArea
// output to CSV rather than leaving a .dbf).
var TableFormats = []string{"csv", "txt", "xlsx"}

// CommandConfig holds an external command argv template.
type CommandConfig struct {
	Command []string `yaml:"command" mapstructure:"command"`
}

// IndicatorConfig configures the aggregation stage.
type IndicatorConfig struct {
	Field       string   `yaml:"field" mapstructure:"field"`
	AreaPerUnit float64  `yaml:"area_per_unit" mapstructure:"area_per_unit"`
	Prefix      string   `yaml:"prefix" mapstructure:"prefix"`
	TableExts   []string `yaml:"table_exts" mapstructure:"table_exts"`
}

// SQLiteConfig configures the SQLite sink.
type SQLiteConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Table string `yaml:"table" mapstructure:"table"`
}

// PostGISConfig configures the PostGIS sink.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	Mode        string `yaml:"mode" mapstructure:"mode"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TCOUTCOME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.source_dir", "")
	v.SetDefault("paths.staging_dir", "./output/TA_results")
	v.SetDefault("paths.tables_dir", "./output/TA_results")
	v.SetDefault("paths.output_dir", "./output")
	v.SetDefault("paths.reference_table", "./input/landcover_dates.csv")
	v.SetDefault("paths.crosswalk_table", "./input/land_use_color_table_FINAL.csv")
	v.SetDefault("paths.run_log", "")
	v.SetDefault("raster.pattern", "{unit}/output/{unit}_landusechange_{t1}{t2}.tif")
	v.SetDefault("reference.key_column", "co_fips")
	v.SetDefault("reference.before_column", "T1")
	v.SetDefault("reference.after_column", "T2")
	v.SetDefault("crosswalk.label_column", "Class")
	v.SetDefault("crosswalk.category_column", "GenAbbrev")
	v.SetDefault("crosswalk.value_column", "Value")
	v.SetDefault("crosswalk.canopy", []string{"TCIS", "TCTG", "FORE", "TCOT"})
	v.SetDefault("crosswalk.developed", []string{"ROAD", "IMPS", "IMPO", "TURF", "PDEV"})
	v.SetDefault("crosswalk.code_width", 2)
	v.SetDefault("crosswalk.strict", false)
	v.SetDefault("zones.cell_field", "gridcode")
	v.SetDefault("zones.canonical_field", "GRIDCODE")
	v.SetDefault("zones.srid", 0)
	v.SetDefault("zones.schemes", []map[string]any{
		{"name": "100acrehex", "path": "./input/CB_Region_Hex_100ac.shp"},
		{"name": "1mihex", "path": "./input/CB_Region_Hex_1mi2.shp"},
	})
	v.SetDefault("tabulate.value_field", "VALUE")
	v.SetDefault("tabulate.cell_size", 1)
	v.SetDefault("tabulate.table_ext", "csv")
	v.SetDefault("tabulate.concurrency", 1)
	v.SetDefault("tabulate.units", []string{})
	v.SetDefault("engine.command", []string{})
	v.SetDefault("staging.command", []string{})
	v.SetDefault("indicator.field", "TCD")
	v.SetDefault("indicator.area_per_unit", 4046.86)
	v.SetDefault("indicator.prefix", "TC_Outcome")
	v.SetDefault("indicator.table_exts", []string{"csv", "txt", "xlsx"})
	v.SetDefault("outputs", []string{"csv", "shapefile"})
	v.SetDefault("sqlite.path", "")
	v.SetDefault("sqlite.table", "tc_outcome")
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.schema", "public")
	v.SetDefault("postgis.table", "tc_outcome")
	v.SetDefault("postgis.mode", "replace")
	v.SetDefault("postgis.max_conns", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings the given command mode needs. Modes are
// "tabulate", "aggregate", "run" and "status".
func (c *Config) Validate(mode string) error {
	var errs []string

	tabulate, aggregate := false, false
	switch mode {
	case "tabulate":
		tabulate = true
	case "aggregate":
		aggregate = true
	case "run":
		tabulate, aggregate = true, true
	case "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Paths.OutputDir == "" && c.Paths.RunLog == "" {
		errs = append(errs, "paths.output_dir is required")
	}

	if tabulate || aggregate {
		if c.Paths.TablesDir == "" {
			errs = append(errs, "paths.tables_dir is required")
		}
		errs = append(errs, c.checkTableFormats()...)
		if len(c.Zones.Schemes) == 0 {
			errs = append(errs, "zones.schemes must list at least one scheme")
		}
		seen := make(map[string]bool, len(c.Zones.Schemes))
		for i, s := range c.Zones.Schemes {
			if s.Name == "" || s.Path == "" {
				errs = append(errs, fmt.Sprintf("zones.schemes[%d] needs a name and path", i))
			}
			if seen[s.Name] {
				errs = append(errs, fmt.Sprintf("zones.schemes has duplicate name %q", s.Name))
			}
			seen[s.Name] = true
		}
		if c.Zones.CellField == "" {
			errs = append(errs, "zones.cell_field is required")
		}
	}

	if tabulate {
		if c.Paths.SourceDir == "" {
			errs = append(errs, "paths.source_dir is required")
		}
		if c.Paths.StagingDir == "" {
			errs = append(errs, "paths.staging_dir is required")
		}
		if c.Paths.ReferenceTable == "" {
			errs = append(errs, "paths.reference_table is required")
		}
		if len(c.Engine.Command) == 0 {
			errs = append(errs, "engine.command is required")
		}
		if c.Tabulate.Concurrency < 1 || c.Tabulate.Concurrency > 64 {
			errs = append(errs, "tabulate.concurrency must be between 1 and 64")
		}
		if c.Tabulate.CellSize <= 0 {
			errs = append(errs, "tabulate.cell_size must be > 0")
		}
	}

	if aggregate {
		if c.Paths.CrosswalkTable == "" {
			errs = append(errs, "paths.crosswalk_table is required")
		}
		if c.Crosswalk.CodeWidth < 1 || c.Crosswalk.CodeWidth > 9 {
			errs = append(errs, "crosswalk.code_width must be between 1 and 9")
		}
		if c.Indicator.AreaPerUnit <= 0 {
			errs = append(errs, "indicator.area_per_unit must be > 0")
		}
		if c.Indicator.Field == "" || c.Zones.CanonicalField == "" {
			errs = append(errs, "indicator.field and zones.canonical_field are required")
		}
		for _, o := range c.Outputs {
			switch strings.ToLower(strings.TrimSpace(o)) {
			case "csv", "shapefile", "shp", "geojson", "xlsx", "sqlite":
			case "postgis":
				if c.PostGIS.DatabaseURL == "" {
					errs = append(errs, "postgis.database_url is required for the postgis output")
				}
			default:
				errs = append(errs, fmt.Sprintf("outputs: unknown output %q", o))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// checkTableFormats ensures the tables the engine writes are ones the
// aggregator reads and discovers.
func (c *Config) checkTableFormats() []string {
	var errs []string
	ext := normalizeExt(c.Tabulate.TableExt)
	if ext == "" {
		ext = "csv"
	}
	if !slices.Contains(TableFormats, ext) {
		errs = append(errs, fmt.Sprintf("tabulate.table_ext %q is not readable; use one of %s",
			c.Tabulate.TableExt, strings.Join(TableFormats, ", ")))
	}

	if len(c.Indicator.TableExts) == 0 {
		return errs
	}
	found := false
	for _, e := range c.Indicator.TableExts {
		n := normalizeExt(e)
		if !slices.Contains(TableFormats, n) {
			errs = append(errs, fmt.Sprintf("indicator.table_exts: %q is not readable", e))
		}
		if n == ext {
			found = true
		}
	}
	if !found {
		errs = append(errs, fmt.Sprintf("indicator.table_exts must include tabulate.table_ext %q", ext))
	}
	return errs
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
