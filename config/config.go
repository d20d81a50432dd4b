// Package config holds pipeline configuration and its defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds scraping pipeline configuration.
type Config struct {
	MySQLDSN string

	UserAgent       string
	Timeout         time.Duration
	FetchDelay      time.Duration
	MaxProductPages int // per category page, 0 means unlimited

	ValidSampleSize      int     // valid items persisted per vendor run
	ReuseConfidence      float64 // cached selectors at or above are reused
	MinConfidence        float64 // below this after rediscovery the vendor fails
	DiscoverySamplePages int     // product pages sampled during discovery

	SelectorCacheSize int

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the reference policy values.
func DefaultConfig() *Config {
	return &Config{
		MySQLDSN:        "root:password@tcp(localhost:3306)/pricewatch?parseTime=true&loc=Local",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Timeout:         15 * time.Second,
		FetchDelay:      0,
		MaxProductPages: 200,

		ValidSampleSize:      10,
		ReuseConfidence:      0.6,
		MinConfidence:        0.5,
		DiscoverySamplePages: 3,

		SelectorCacheSize: 128,

		MetricsAddr: "",
		Verbose:     false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.MySQLDSN == "" {
		return fmt.Errorf("mysql dsn cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.FetchDelay < 0 {
		return fmt.Errorf("fetch delay cannot be negative")
	}
	if c.MaxProductPages < 0 {
		return fmt.Errorf("max product pages cannot be negative")
	}
	if c.ValidSampleSize < 0 {
		return fmt.Errorf("valid sample size cannot be negative")
	}
	if c.ReuseConfidence < 0 || c.ReuseConfidence > 1 {
		return fmt.Errorf("reuse confidence must be within [0, 1]")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1]")
	}
	if c.MinConfidence > c.ReuseConfidence {
		return fmt.Errorf("min confidence (%.2f) cannot exceed reuse confidence (%.2f)", c.MinConfidence, c.ReuseConfidence)
	}
	if c.DiscoverySamplePages <= 0 {
		return fmt.Errorf("discovery sample pages must be positive")
	}
	if c.SelectorCacheSize <= 0 {
		return fmt.Errorf("selector cache size must be positive")
	}
	return nil
}

// ApplyEnvOverrides layers environment values over the config. Secrets come
// through viper bindings so deployments can avoid literal DSNs in flags.
func ApplyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()
	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("metrics_addr", "METRICS_ADDR")
	_ = viper.BindEnv("user_agent", "SCRAPER_USER_AGENT")

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := viper.GetString("metrics_addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := viper.GetString("user_agent"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("SCRAPER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("SCRAPER_FETCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FetchDelay = d
		}
	}
	if v := os.Getenv("SCRAPER_SAMPLE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.ValidSampleSize = i
		}
	}
}

// EnvInt reads an integer environment variable. The second return reports
// whether the variable was set.
func EnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvString reads a string environment variable and whether it was set.
func EnvString(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
