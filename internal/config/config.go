package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/renewcast/energy-data-aggregation/internal/energy"
)

// Sources is the yaml-backed description of what to ingest: EIA respondent
// codes for the generation and demand datasets, and named locations for the
// weather dataset.
type Sources struct {
	Generation struct {
		Entities []string `yaml:"entities"`
	} `yaml:"generation"`
	Demand struct {
		Entities []string `yaml:"entities"`
	} `yaml:"demand"`
	Weather struct {
		Locations []energy.Location `yaml:"locations"`
	} `yaml:"weather"`

	// Base URL overrides, mainly for tests and proxies.
	EIABaseURL       string `yaml:"eia_base_url"`
	OpenMeteoBaseURL string `yaml:"open_meteo_base_url"`
}

// AppConfig is the full runtime configuration, constructed once per process
// and passed explicitly into each component.
type AppConfig struct {
	EIAAPIKey      string
	GeocoderAPIKey string

	// DatabaseURL selects the Postgres store; empty selects the in-memory
	// store (dry runs).
	DatabaseURL string

	// HTTPTimeout bounds every outbound API call.
	HTTPTimeout time.Duration

	// RefreshDays is the trailing window re-ingested by the scheduled job.
	RefreshDays int

	// RefreshAt is the local time of day the scheduled refresh runs.
	RefreshAt string

	Port string

	Sources Sources
}

// Load reads configuration from the environment and the given yaml sources
// file. An empty path is allowed and yields no configured sources.
func Load(sourcesPath string) (*AppConfig, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.EIAAPIKey = os.Getenv("EIA_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.RefreshAt = getenvDefault("REFRESH_AT", "02:00")
	cfg.RefreshDays = getenvInt("REFRESH_DAYS", 7)

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	if sourcesPath != "" {
		file, err := os.ReadFile(sourcesPath)
		if err != nil {
			return nil, fmt.Errorf("reading sources config: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg.Sources); err != nil {
			return nil, fmt.Errorf("parsing sources config: %w", err)
		}
	}
	if cfg.Sources.EIABaseURL == "" {
		cfg.Sources.EIABaseURL = getenvDefault("EIA_BASE_URL", "https://api.eia.gov/v2")
	}
	if cfg.Sources.OpenMeteoBaseURL == "" {
		cfg.Sources.OpenMeteoBaseURL = getenvDefault("OPEN_METEO_BASE_URL", "https://archive-api.open-meteo.com/v1")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the single fatal precondition: EIA-backed sources need a
// credential before any entity is processed.
func (c *AppConfig) validate() error {
	needsEIA := len(c.Sources.Generation.Entities) > 0 || len(c.Sources.Demand.Entities) > 0
	if needsEIA && c.EIAAPIKey == "" {
		return energy.ErrMissingCredential
	}
	return nil
}

// DefaultRange returns the default ingestion range: the trailing year ending
// 30 days ago. Recent EIA data is revised for several weeks, so the most
// recent month is left out.
func DefaultRange(now time.Time) (time.Time, time.Time) {
	end := energy.DateOf(now.AddDate(0, 0, -30))
	start := end.AddDate(0, 0, -365)
	return start, end
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
