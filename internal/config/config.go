// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/postalcode/internal/country"
)

const (
	configEnv = "POSTALCODE"

	// ProviderNominatim is the only geocoder provider currently supported.
	ProviderNominatim = "nominatim"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	// Countries limits the country selector. An empty list selects all ISO 3166-1 countries.
	Countries []string `fig:"countries"`

	Server struct {
		Listen       string        `fig:"listen" default:"127.0.0.1:8080"`
		PingInterval time.Duration `fig:"ping_interval" default:"30s"`
	} `fig:"server"`

	Geocoder struct {
		Provider           string        `fig:"provider" default:"nominatim"`
		Endpoint           string        `fig:"endpoint" default:"https://nominatim.openstreetmap.org"`
		Timeout            time.Duration `fig:"timeout" default:"10s"`
		RateLimit          time.Duration `fig:"rate_limit" default:"1s"`
		CacheHitTTL        time.Duration `fig:"cache_hit_ttl" default:"1h"`
		CacheMissTTL       time.Duration `fig:"cache_miss_ttl" default:"5m"`
		CachePurgeInterval time.Duration `fig:"cache_purge_interval" default:"10m"`
		CancelSuperseded   bool          `fig:"cancel_superseded"`
	} `fig:"geocoder"`

	Map struct {
		Container   string        `fig:"container" default:"postalcode-map"`
		TileURL     string        `fig:"tile_url" default:"https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"`
		Attribution string        `fig:"attribution" default:"© OpenStreetMap"`
		Zoom        int           `fig:"zoom" default:"13"`
		MaxZoom     int           `fig:"max_zoom" default:"20"`
		ResizeDelay time.Duration `fig:"resize_delay" default:"300ms"`
	} `fig:"map"`

	GeoLocation struct {
		File                   string        `fig:"file"`
		GPSDAddress            string        `fig:"gpsd_address" default:"localhost:2947"`
		Timeout                time.Duration `fig:"timeout" default:"10s"`
		DisableGPSD            bool          `fig:"disable_gpsd"`
		DisableGeoClue         bool          `fig:"disable_geoclue"`
		DisableGeolocationFile bool          `fig:"disable_geolocation_file"`
		DisableIchnaea         bool          `fig:"disable_ichnaea"`
		DisableGeoIP           bool          `fig:"disable_geoip"`
	} `fig:"geolocation"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Geocoder.Provider != ProviderNominatim {
		return fmt.Errorf("unsupported geocoder provider: %s", c.Geocoder.Provider)
	}
	if strings.TrimSpace(c.Geocoder.Endpoint) == "" {
		return fmt.Errorf("geocoder endpoint must not be empty")
	}
	if c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("invalid geocoder timeout: %s", c.Geocoder.Timeout)
	}
	if c.Geocoder.RateLimit < 0 {
		return fmt.Errorf("invalid geocoder rate limit: %s", c.Geocoder.RateLimit)
	}
	if c.Map.MaxZoom < 1 || c.Map.Zoom < 0 || c.Map.Zoom > c.Map.MaxZoom {
		return fmt.Errorf("invalid map zoom: %d (max zoom: %d)", c.Map.Zoom, c.Map.MaxZoom)
	}
	if c.Map.Container == "" {
		return fmt.Errorf("map container must not be empty")
	}
	if c.Map.ResizeDelay < 0 {
		return fmt.Errorf("invalid map resize delay: %s", c.Map.ResizeDelay)
	}
	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("invalid server ping interval: %s", c.Server.PingInterval)
	}
	if c.GeoLocation.Timeout <= 0 {
		return fmt.Errorf("invalid geolocation timeout: %s", c.GeoLocation.Timeout)
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "postalcode", "geolocation")
	}

	for i, code := range c.Countries {
		code = strings.ToLower(strings.TrimSpace(code))
		if err := country.Validate(code); err != nil {
			return fmt.Errorf("invalid country in configuration: %w", err)
		}
		c.Countries[i] = code
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
