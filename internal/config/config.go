package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds process configuration.
type Config struct {
	DatabaseURL         string  `yaml:"database_url"`
	LogLevel            string  `yaml:"log_level"`
	LogFormat           string  `yaml:"log_format"`
	DiscountRate        float64 `yaml:"discount_rate"`
	LateChargeRate      float64 `yaml:"late_charge_rate"`
	RateClassCatalog    string  `yaml:"rate_class_catalog"`
	RenewableEnergyFile string  `yaml:"renewable_energy_file"`
	ComputeWorkers      int     `yaml:"compute_workers"`
	MetricsFile         string  `yaml:"metrics_file"`
}

// Defaults applied before env and file overrides.
const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultDiscountRate   = 0.2
	DefaultLateChargeRate = 0.1
	DefaultComputeWorkers = 4
)

// Load reads configuration from the environment and, when REEBILL_CONFIG is
// set, overlays the YAML file it names.
func Load() (Config, error) {
	return LoadFile(os.Getenv("REEBILL_CONFIG"))
}

// LoadFile is Load with an explicit overlay path. An empty path skips the
// overlay.
func LoadFile(path string) (Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = os.Getenv("PG_DSN")
	}
	cfg := Config{
		DatabaseURL:         databaseURL,
		LogLevel:            getenvDefault("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getenvDefault("LOG_FORMAT", DefaultLogFormat),
		DiscountRate:        getenvFloatDefault("DISCOUNT_RATE", DefaultDiscountRate),
		LateChargeRate:      getenvFloatDefault("LATE_CHARGE_RATE", DefaultLateChargeRate),
		RateClassCatalog:    os.Getenv("RATE_CLASS_CATALOG"),
		RenewableEnergyFile: os.Getenv("RENEWABLE_ENERGY_FILE"),
		ComputeWorkers:      getenvIntDefault("COMPUTE_WORKERS", DefaultComputeWorkers),
		MetricsFile:         os.Getenv("METRICS_FILE"),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.DiscountRate < 0 || c.DiscountRate > 1 {
		return fmt.Errorf("config: discount_rate %v out of [0, 1]", c.DiscountRate)
	}
	if c.LateChargeRate < 0 || c.LateChargeRate > 1 {
		return fmt.Errorf("config: late_charge_rate %v out of [0, 1]", c.LateChargeRate)
	}
	if c.ComputeWorkers < 1 {
		return errors.New("config: compute_workers must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
