package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielrs/building-forecast-service/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	UpstreamURL        string
	UpstreamContact    string
	UpstreamTimeout    time.Duration
	UpstreamDefaultTTL time.Duration

	RequestTimeout time.Duration

	CacheBackend    string // "in_memory" or "memcached"
	CacheMaxEntries int

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow       time.Duration
	DegradedFallbackPct  int
	OverloadWindow       time.Duration
	OverloadThresholdPct int

	ArchivePath string // empty disables the forecast archive

	TrackedLocations []models.Location
	RefreshInterval  time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		URL        string `yaml:"url"`
		Contact    string `yaml:"contact"`
		Timeout    string `yaml:"timeout"`
		DefaultTTL string `yaml:"default_ttl"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend    string `yaml:"backend"`
		MaxEntries int    `yaml:"max_entries"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Breaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		OpenTimeout      string `yaml:"open_timeout"`
	} `yaml:"breaker"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Health struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedFallbackPct  int    `yaml:"degraded_fallback_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"health"`

	Archive struct {
		Path string `yaml:"path"`
	} `yaml:"archive"`

	Refresh struct {
		Interval  string   `yaml:"interval"`
		Locations []string `yaml:"locations"` // "lat,lon" pairs
	} `yaml:"refresh"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) with env
// overrides. A .env file in the working directory is loaded first if present.
// The upstream contact comes from UPSTREAM_CONTACT env or the config file and
// is required (met.no terms of service). Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.UpstreamURL = fc.Upstream.URL
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = "https://api.met.no/weatherapi/locationforecast/2.0/complete"
	}
	cfg.UpstreamContact = strings.TrimSpace(os.Getenv("UPSTREAM_CONTACT"))
	if cfg.UpstreamContact == "" {
		cfg.UpstreamContact = strings.TrimSpace(fc.Upstream.Contact)
	}
	if cfg.UpstreamContact == "" {
		return nil, fmt.Errorf("UPSTREAM_CONTACT required (set env or config upstream.contact)")
	}
	cfg.UpstreamTimeout = parseDuration(fc.Upstream.Timeout, 10*time.Second)
	cfg.UpstreamDefaultTTL = parseDuration(fc.Upstream.DefaultTTL, 30*time.Minute)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 128
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.BreakerEnabled = fc.Breaker.Enabled
	cfg.BreakerFailureThreshold = uint32(fc.Breaker.FailureThreshold)
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Breaker.OpenTimeout, 2*time.Minute)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedFallbackPct = fc.Health.DegradedFallbackPct
	if cfg.DegradedFallbackPct <= 0 {
		cfg.DegradedFallbackPct = 50
	}
	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}

	cfg.ArchivePath = strings.TrimSpace(os.Getenv("ARCHIVE_PATH"))
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = strings.TrimSpace(fc.Archive.Path)
	}

	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, 30*time.Minute)
	cfg.TrackedLocations, err = parseLocations(fc.Refresh.Locations)
	if err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseLocations parses "lat,lon" strings from the refresh config.
func parseLocations(raw []string) ([]models.Location, error) {
	var out []models.Location
	for _, s := range raw {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("refresh.locations entry %q must be \"lat,lon\"", s)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("refresh.locations entry %q: bad latitude: %w", s, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("refresh.locations entry %q: bad longitude: %w", s, err)
		}
		out = append(out, models.Location{Lat: lat, Lon: lon})
	}
	return out, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Ensures the request timeout exceeds the upstream timeout and that the
// cache backend is a known value. Auto-adjusts RequestTimeout if needed.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for _, loc := range cfg.TrackedLocations {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return fmt.Errorf("refresh.locations entry %s out of range", loc.Key())
		}
	}
	return nil
}
