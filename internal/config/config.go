// Package config loads geolayer settings from an optional YAML file and
// GEOLAYER_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"geolayer/internal/legend"
)

type Config struct {
	Legend LegendConfig `yaml:"legend"`
	Layer  LayerConfig  `yaml:"layer"`
	Server ServerConfig `yaml:"server"`
}

type LegendConfig struct {
	MissingValue float64 `yaml:"missing_value"`
	RainbowLimit int     `yaml:"rainbow_limit"`
	Seed         uint64  `yaml:"seed"`
	Intervals    int     `yaml:"intervals"`
}

type LayerConfig struct {
	BufferQuadSegs int     `yaml:"buffer_quad_segs"`
	LabelFontSize  float64 `yaml:"label_font_size"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	// OverlayTimeout bounds one set operation, in seconds.
	OverlayTimeout int `yaml:"overlay_timeout"`
	// BasemapURL is a tile template with {z}, {x} and {y} placeholders.
	BasemapURL     string `yaml:"basemap_url"`
	BasemapMinZoom int    `yaml:"basemap_min_zoom"`
	BasemapMaxZoom int    `yaml:"basemap_max_zoom"`
}

// Default returns the built-in settings.
func Default() *Config {
	o := legend.DefaultOptions()
	return &Config{
		Legend: LegendConfig{
			MissingValue: o.MissingValue,
			RainbowLimit: o.RainbowLimit,
			Seed:         o.Seed,
			Intervals:    o.Intervals,
		},
		Layer: LayerConfig{
			BufferQuadSegs: 8,
			LabelFontSize:  9,
		},
		Server: ServerConfig{
			Port:           "3000",
			ReadTimeout:    10,
			WriteTimeout:   10,
			OverlayTimeout: 60,
			BasemapURL:     "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			BasemapMinZoom: 0,
			BasemapMaxZoom: 19,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Legend.MissingValue = getEnvAsFloat("GEOLAYER_MISSING_VALUE", c.Legend.MissingValue)
	c.Legend.RainbowLimit = getEnvAsInt("GEOLAYER_RAINBOW_LIMIT", c.Legend.RainbowLimit)
	c.Legend.Seed = uint64(getEnvAsInt("GEOLAYER_SEED", int(c.Legend.Seed)))
	c.Legend.Intervals = getEnvAsInt("GEOLAYER_INTERVALS", c.Legend.Intervals)
	c.Layer.BufferQuadSegs = getEnvAsInt("GEOLAYER_BUFFER_QUADSEGS", c.Layer.BufferQuadSegs)
	c.Layer.LabelFontSize = getEnvAsFloat("GEOLAYER_LABEL_FONT_SIZE", c.Layer.LabelFontSize)
	c.Server.Port = getEnv("GEOLAYER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsInt("GEOLAYER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsInt("GEOLAYER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.OverlayTimeout = getEnvAsInt("GEOLAYER_OVERLAY_TIMEOUT", c.Server.OverlayTimeout)
	c.Server.BasemapURL = getEnv("GEOLAYER_BASEMAP_URL", c.Server.BasemapURL)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Legend.RainbowLimit < 0 {
		errs = append(errs, errors.New("legend.rainbow_limit must not be negative"))
	}
	if c.Legend.Intervals < 1 {
		errs = append(errs, errors.New("legend.intervals must be at least 1"))
	}
	if c.Layer.BufferQuadSegs < 1 {
		errs = append(errs, errors.New("layer.buffer_quad_segs must be at least 1"))
	}
	if c.Layer.LabelFontSize <= 0 {
		errs = append(errs, errors.New("layer.label_font_size must be positive"))
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q is not a number", c.Server.Port))
	}
	if c.Server.BasemapMinZoom < 0 || c.Server.BasemapMaxZoom < c.Server.BasemapMinZoom {
		errs = append(errs, fmt.Errorf("server basemap zoom range [%d, %d] is invalid", c.Server.BasemapMinZoom, c.Server.BasemapMaxZoom))
	}
	return errors.Join(errs...)
}

// LegendOptions converts the legend section for the classifiers.
func (c *Config) LegendOptions() legend.Options {
	return legend.Options{
		MissingValue: c.Legend.MissingValue,
		RainbowLimit: c.Legend.RainbowLimit,
		Seed:         c.Legend.Seed,
		Intervals:    c.Legend.Intervals,
	}
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

func (c *Config) OverlayTimeout() time.Duration {
	return time.Duration(c.Server.OverlayTimeout) * time.Second
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
