// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Grid      GridConfig      `yaml:"grid" mapstructure:"grid"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Media     MediaConfig     `yaml:"media" mapstructure:"media"`
	Serve     ServeConfig     `yaml:"serve" mapstructure:"serve"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PlacesConfig holds the place search API settings.
type PlacesConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	RequestIntervalMS int    `yaml:"request_interval_ms" mapstructure:"request_interval_ms"`
	PageDelaySecs     int    `yaml:"page_delay_secs" mapstructure:"page_delay_secs"`
	MaxPages          int    `yaml:"max_pages" mapstructure:"max_pages"`
	PhotoMaxWidth     int    `yaml:"photo_max_width" mapstructure:"photo_max_width"`
	MaxPhotosPerVenue int    `yaml:"max_photos_per_venue" mapstructure:"max_photos_per_venue"`
	BreakerThreshold  int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds model API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	TextModel   string `yaml:"text_model" mapstructure:"text_model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
}

// GridConfig defines the crawl area and cell geometry.
type GridConfig struct {
	SWLat       float64 `yaml:"sw_lat" mapstructure:"sw_lat"`
	SWLng       float64 `yaml:"sw_lng" mapstructure:"sw_lng"`
	NELat       float64 `yaml:"ne_lat" mapstructure:"ne_lat"`
	NELng       float64 `yaml:"ne_lng" mapstructure:"ne_lng"`
	RadiusM     float64 `yaml:"radius_m" mapstructure:"radius_m"`
	Overlap     float64 `yaml:"overlap" mapstructure:"overlap"`
	PriorityLat float64 `yaml:"priority_lat" mapstructure:"priority_lat"`
	PriorityLng float64 `yaml:"priority_lng" mapstructure:"priority_lng"`
}

// LedgerConfig locates the crawl progress files.
type LedgerConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	RemovalsPath string `yaml:"removals_path" mapstructure:"removals_path"`
}

// MediaConfig configures photo downloads. An empty dir disables them.
type MediaConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServeConfig configures the read-only HTTP API.
type ServeConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("TASTEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tastemap.db")
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.request_interval_ms", 200)
	v.SetDefault("places.page_delay_secs", 2)
	v.SetDefault("places.max_pages", 3)
	v.SetDefault("places.photo_max_width", 800)
	v.SetDefault("places.max_photos_per_venue", 3)
	v.SetDefault("places.breaker_threshold", 5)
	v.SetDefault("places.breaker_reset_secs", 60)
	v.SetDefault("anthropic.text_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("grid.radius_m", 500)
	v.SetDefault("grid.overlap", 0.3)
	v.SetDefault("ledger.path", "grid_progress.csv")
	v.SetDefault("ledger.removals_path", "removal_candidates.txt")
	v.SetDefault("media.dir", "media")
	v.SetDefault("serve.port", 8080)
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

// ValidateGrid checks the grid section describes a usable area.
func (c *Config) ValidateGrid() error {
	g := c.Grid
	if g.SWLat == 0 && g.SWLng == 0 && g.NELat == 0 && g.NELng == 0 {
		return eris.New("config: grid bounding box not set")
	}
	if g.RadiusM <= 0 {
		return eris.New("config: grid.radius_m must be positive")
	}
	if g.Overlap < 0 || g.Overlap >= 1 {
		return eris.New("config: grid.overlap must be in [0, 1)")
	}
	return nil
}

// ValidatePlaces checks the place search section is usable for crawling.
func (c *Config) ValidatePlaces() error {
	if c.Places.Key == "" {
		return eris.New("config: places.key not set")
	}
	return nil
}

// ValidateAnthropic checks the model API section is usable for enrichment.
func (c *Config) ValidateAnthropic() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key not set")
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
