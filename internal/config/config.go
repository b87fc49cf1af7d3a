package config

import (
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig              `yaml:"store" mapstructure:"store"`
	Log      LogConfig                `yaml:"log" mapstructure:"log"`
	Compose  ComposeConfig            `yaml:"compose" mapstructure:"compose"`
	Output   OutputConfig             `yaml:"output" mapstructure:"output"`
	WCS      WCSConfig                `yaml:"wcs" mapstructure:"wcs"`
	Metrics  MetricsConfig            `yaml:"metrics" mapstructure:"metrics"`
	Datasets map[string]DatasetConfig `yaml:"datasets" mapstructure:"datasets"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ComposeConfig holds compositing defaults used when a flag is not given.
type ComposeConfig struct {
	Scenario string `yaml:"scenario" mapstructure:"scenario"`
	Period   int    `yaml:"period" mapstructure:"period"`
	TileSize int    `yaml:"tile_size" mapstructure:"tile_size"`
	Workers  int    `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures where and how products are written.
type OutputConfig struct {
	Dir             string   `yaml:"dir" mapstructure:"dir"`
	TempDir         string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	KeepTemporary   bool     `yaml:"keep_temporary" mapstructure:"keep_temporary"`
	Prefix          string   `yaml:"prefix" mapstructure:"prefix"`
	CreationOptions []string `yaml:"creation_options" mapstructure:"creation_options"`
}

// WCSConfig configures the HTTP transport used for coverage servers.
type WCSConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Period units. A period counts calendar days, or for file-backed datasets
// the number of gap-filling images.
const (
	PeriodDays   = "days"
	PeriodImages = "images"
)

// Dataset sources.
const (
	SourceWCS   = "wcs"
	SourceLocal = "local"
)

// Cloud mask interpretations.
const (
	CloudNonZero  = "nonzero"
	CloudSentinel = "sentinel"
	CloudThematic = "thematic"
)

// DatasetConfig describes one input product: where its acquisitions and
// cloud masks come from and how mask values are read.
type DatasetConfig struct {
	Description string `yaml:"description" mapstructure:"description"`
	Source      string `yaml:"source" mapstructure:"source"`

	// WCS sources.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	EOID      string `yaml:"eoid" mapstructure:"eoid"`
	MaskEOID  string `yaml:"mask_eoid" mapstructure:"mask_eoid"`

	// Local sources. Pattern is a doublestar glob relative to Root. Masks
	// sit next to the file with MaskSuffix inserted before the extension,
	// or in MaskDir matched on the first MaskPrefixLen characters.
	Root          string `yaml:"root" mapstructure:"root"`
	Pattern       string `yaml:"pattern" mapstructure:"pattern"`
	MaskSuffix    string `yaml:"mask_suffix" mapstructure:"mask_suffix"`
	MaskDir       string `yaml:"mask_dir" mapstructure:"mask_dir"`
	MaskPrefixLen int    `yaml:"mask_prefix_len" mapstructure:"mask_prefix_len"`

	// PeriodUnit is days or, for local sources, images. NoData is written
	// on the composite bands; thematic datasets default to 255.
	PeriodUnit string   `yaml:"period_unit" mapstructure:"period_unit"`
	NoData     *float64 `yaml:"nodata" mapstructure:"nodata"`

	Cloud       string    `yaml:"cloud" mapstructure:"cloud"`
	CloudValues []float64 `yaml:"cloud_values" mapstructure:"cloud_values"`
	Bands       []string  `yaml:"bands" mapstructure:"bands"`
	OutputCRS   string    `yaml:"output_crs" mapstructure:"output_crs"`
}

// CountsImages reports whether the period limits the number of images
// rather than the number of days.
func (d DatasetConfig) CountsImages() bool { return d.PeriodUnit == PeriodImages }

// Thematic reports whether clouds are encoded in the data band itself.
func (d DatasetConfig) Thematic() bool { return d.Cloud == CloudThematic }

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
	v.SetEnvPrefix("CLOUDLESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cloudless.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("compose.scenario", "T")
	v.SetDefault("compose.period", 7)
	v.SetDefault("compose.tile_size", 256)
	v.SetDefault("compose.workers", 4)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.temp_dir", "")
	v.SetDefault("output.keep_temporary", false)
	v.SetDefault("output.prefix", "CF_")
	v.SetDefault("output.creation_options", []string{"TILED=YES", "COMPRESS=DEFLATE"})
	v.SetDefault("wcs.timeout_secs", 180)
	v.SetDefault("wcs.max_retries", 3)
	v.SetDefault("wcs.user_agent", "cloudless/1.0")
	v.SetDefault("wcs.rate_per_sec", 5.0)
	v.SetDefault("metrics.addr", "")

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

	for name, ds := range cfg.Datasets {
		cfg.Datasets[name] = ds.withDefaults()
	}

	return &cfg, nil
}

func (d DatasetConfig) withDefaults() DatasetConfig {
	if d.Source == "" {
		d.Source = SourceWCS
	}
	if d.Cloud == "" {
		d.Cloud = CloudNonZero
	}
	if d.PeriodUnit == "" {
		d.PeriodUnit = PeriodDays
	}
	if d.MaskDir != "" && d.MaskPrefixLen == 0 {
		d.MaskPrefixLen = 25
	}
	return d
}

// DatasetNames returns the configured dataset names in sorted order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dataset looks up a dataset by name. Names are case-insensitive.
func (c *Config) Dataset(name string) (DatasetConfig, error) {
	ds, ok := c.Datasets[strings.ToLower(name)]
	if !ok {
		return DatasetConfig{}, eris.Errorf("config: unknown dataset %q (configured: %s)",
			name, strings.Join(c.DatasetNames(), ", "))
	}
	return ds, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if !slices.Contains([]string{"T", "M", "B"}, strings.ToUpper(c.Compose.Scenario)) {
		return eris.Errorf("config: unsupported scenario %q", c.Compose.Scenario)
	}
	if c.Compose.Period < 0 {
		return eris.Errorf("config: compose.period must not be negative, got %d", c.Compose.Period)
	}
	if c.Compose.TileSize <= 0 {
		return eris.Errorf("config: compose.tile_size must be positive, got %d", c.Compose.TileSize)
	}
	for _, name := range c.DatasetNames() {
		if err := c.Datasets[name].validate(); err != nil {
			return eris.Wrapf(err, "config: dataset %s", name)
		}
	}
	return nil
}

func (d DatasetConfig) validate() error {
	switch d.Source {
	case SourceWCS:
		if d.ServerURL == "" || d.EOID == "" {
			return eris.New("server_url and eoid are required")
		}
		if d.MaskEOID == "" && !d.Thematic() {
			return eris.New("mask_eoid is required unless cloud is thematic")
		}
	case SourceLocal:
		if d.Root == "" || d.Pattern == "" {
			return eris.New("root and pattern are required")
		}
		if d.MaskSuffix == "" && d.MaskDir == "" && !d.Thematic() {
			return eris.New("mask_suffix or mask_dir is required unless cloud is thematic")
		}
	default:
		return eris.Errorf("unsupported source %q", d.Source)
	}

	switch d.PeriodUnit {
	case PeriodDays, "":
	case PeriodImages:
		if d.Source != SourceLocal {
			return eris.Errorf("period_unit %q needs a local source", d.PeriodUnit)
		}
	default:
		return eris.Errorf("unsupported period_unit %q", d.PeriodUnit)
	}

	switch d.Cloud {
	case CloudNonZero:
	case CloudSentinel:
		if len(d.CloudValues) == 0 {
			return eris.New("cloud_values are required for sentinel masks")
		}
	case CloudThematic:
		if n := len(d.CloudValues); n != 0 && n != 3 {
			return eris.Errorf("thematic cloud_values take cloud, empty and nodata, got %d values", n)
		}
	default:
		return eris.Errorf("unsupported cloud interpretation %q", d.Cloud)
	}
	return nil
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
