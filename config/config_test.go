package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty dsn", mutate: func(c *Config) { c.MySQLDSN = "" }, wantErr: true},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.FetchDelay = -time.Second }, wantErr: true},
		{name: "negative sample size", mutate: func(c *Config) { c.ValidSampleSize = -1 }, wantErr: true},
		{name: "zero sample size allowed", mutate: func(c *Config) { c.ValidSampleSize = 0 }, wantErr: false},
		{name: "confidence above one", mutate: func(c *Config) { c.ReuseConfidence = 1.5 }, wantErr: true},
		{name: "min above reuse", mutate: func(c *Config) { c.MinConfidence = 0.9 }, wantErr: true},
		{name: "zero discovery pages", mutate: func(c *Config) { c.DiscoverySamplePages = 0 }, wantErr: true},
		{name: "zero cache size", mutate: func(c *Config) { c.SelectorCacheSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "user:pw@tcp(db:3306)/prices?parseTime=true")
	t.Setenv("SCRAPER_TIMEOUT", "30s")
	t.Setenv("SCRAPER_SAMPLE_SIZE", "25")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	if cfg.MySQLDSN != "user:pw@tcp(db:3306)/prices?parseTime=true" {
		t.Fatalf("MySQLDSN = %q, want env value", cfg.MySQLDSN)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.ValidSampleSize != 25 {
		t.Fatalf("ValidSampleSize = %d, want 25", cfg.ValidSampleSize)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("PRICEWATCH_TEST_INT", "42")
	got, ok, err := EnvInt("PRICEWATCH_TEST_INT")
	if err != nil || !ok || got != 42 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (42, true, nil)", got, ok, err)
	}

	if _, ok, err := EnvInt("PRICEWATCH_TEST_INT_UNSET"); ok || err != nil {
		t.Fatalf("EnvInt unset = (_, %v, %v), want (false, nil)", ok, err)
	}

	t.Setenv("PRICEWATCH_TEST_INT", "nope")
	if _, _, err := EnvInt("PRICEWATCH_TEST_INT"); err == nil {
		t.Fatal("EnvInt with garbage value: want error, got nil")
	}
}
