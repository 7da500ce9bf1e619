package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crosswalk-cli/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Geography GeographyConfig `yaml:"geography" mapstructure:"geography"`
	Tiger     TigerConfig     `yaml:"tiger" mapstructure:"tiger"`
	Crosswalk CrosswalkConfig `yaml:"crosswalk" mapstructure:"crosswalk"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Boundary  BoundaryConfig  `yaml:"boundary" mapstructure:"boundary"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GeographyConfig names the target ZIPs and the states whose source units
// are considered.
type GeographyConfig struct {
	TargetZIPs         []string          `yaml:"target_zips" mapstructure:"target_zips"`
	ZIPToZCTAOverrides map[string]string `yaml:"zip_to_zcta_overrides" mapstructure:"zip_to_zcta_overrides"`
	States             []string          `yaml:"states" mapstructure:"states"`
}

// TigerConfig configures TIGER/Line downloads.
type TigerConfig struct {
	Year        int    `yaml:"year" mapstructure:"year"`
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// CrosswalkConfig tunes the overlay.
type CrosswalkConfig struct {
	MinOverlapArea  float64 `yaml:"min_overlap_area" mapstructure:"min_overlap_area"`
	RelativeOverlap float64 `yaml:"relative_overlap" mapstructure:"relative_overlap"`
	SnapTolerance   float64 `yaml:"snap_tolerance" mapstructure:"snap_tolerance"`
	MaxDistortion   float64 `yaml:"max_distortion" mapstructure:"max_distortion"`
	FallbackPolicy  string  `yaml:"fallback_policy" mapstructure:"fallback_policy"`
}

// CacheConfig configures the geo-ID cache and run log.
type CacheConfig struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	Path        string         `yaml:"path" mapstructure:"path"`
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CensusConfig holds Census Data API settings.
type CensusConfig struct {
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	StartYear  int     `yaml:"start_year" mapstructure:"start_year"`
	EndYear    int     `yaml:"end_year" mapstructure:"end_year"`
}

// BoundaryConfig selects where polygons come from.
type BoundaryConfig struct {
	Source      string         `yaml:"source" mapstructure:"source"`
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PipelineConfig configures job execution.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// OutputConfig names output locations.
type OutputConfig struct {
	Workbook   string `yaml:"workbook" mapstructure:"workbook"`
	WeightsDir string `yaml:"weights_dir" mapstructure:"weights_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Boundary sources.
const (
	BoundaryFile    = "file"
	BoundaryPostGIS = "postgis"
)

// Cache drivers.
const (
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
)

// Load reads configuration from file and environment. An empty path looks
// for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CROSSWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults; every key needs one for env overrides to reach Unmarshal
	v.SetDefault("geography.target_zips", []string{})
	v.SetDefault("geography.states", []string{})
	v.SetDefault("tiger.year", 2024)
	v.SetDefault("tiger.cache_dir", "tiger_cache")
	v.SetDefault("tiger.concurrency", 3)
	v.SetDefault("tiger.batch_size", 50000)
	v.SetDefault("crosswalk.min_overlap_area", 1.0)
	v.SetDefault("crosswalk.relative_overlap", 1e-9)
	v.SetDefault("crosswalk.snap_tolerance", 1e-3)
	v.SetDefault("crosswalk.max_distortion", 0.02)
	v.SetDefault("crosswalk.fallback_policy", "fail")
	v.SetDefault("cache.driver", CacheSQLite)
	v.SetDefault("cache.path", "geoid_cache.db")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.rate_per_sec", 5.0)
	v.SetDefault("census.start_year", 2015)
	v.SetDefault("census.end_year", 0)
	v.SetDefault("boundary.source", BoundaryFile)
	v.SetDefault("boundary.database_url", "")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("output.workbook", "crosswalk.xlsx")
	v.SetDefault("output.weights_dir", "weights")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional when no path is given)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	// Comma-separated env values arrive as a single element.
	cfg.Geography.TargetZIPs = splitList(cfg.Geography.TargetZIPs)
	cfg.Geography.States = splitList(cfg.Geography.States)

	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings needed by a command. "weights", "allocate",
// "aggregate", "geoids" and "refresh" need target ZIPs; "tiger" needs a
// PostGIS URL.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "weights", "allocate", "aggregate", "geoids", "refresh":
		if len(c.Geography.TargetZIPs) == 0 {
			errs = append(errs, "geography.target_zips is required")
		}
		switch c.Boundary.Source {
		case BoundaryFile:
		case BoundaryPostGIS:
			if c.Boundary.DatabaseURL == "" {
				errs = append(errs, "boundary.database_url is required for the postgis source")
			}
		default:
			errs = append(errs, "boundary.source must be file or postgis")
		}
	case "tiger":
		if c.Boundary.DatabaseURL == "" {
			errs = append(errs, "boundary.database_url is required")
		}
	}

	switch strings.ToLower(c.Crosswalk.FallbackPolicy) {
	case "", "fail", "all":
	default:
		errs = append(errs, "crosswalk.fallback_policy must be fail or all")
	}
	switch c.Cache.Driver {
	case CacheSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required for the sqlite cache")
		}
	case CachePostgres:
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres cache")
		}
	default:
		errs = append(errs, "cache.driver must be sqlite or postgres")
	}
	if c.Crosswalk.MinOverlapArea < 0 || c.Crosswalk.RelativeOverlap < 0 {
		errs = append(errs, "crosswalk overlap thresholds must not be negative")
	}
	if c.Census.EndYear != 0 && c.Census.StartYear > c.Census.EndYear {
		errs = append(errs, "census.start_year must not exceed census.end_year")
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, "pipeline.concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
