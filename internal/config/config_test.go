package config_test

import (
	"testing"
	"time"

	"appointment-booking-api/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	c, err := config.Load("testdata/does-not-exist.env")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != "8080" || c.GRPCPort != "50051" {
		t.Errorf("ports = %s/%s", c.Port, c.GRPCPort)
	}
	if c.AccessTokenTTL != 15*time.Minute {
		t.Errorf("access ttl = %v", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("refresh ttl = %v", c.RefreshTokenTTL)
	}
	if c.Storage != "postgres" || !c.SeedSample {
		t.Errorf("storage=%s seedSample=%v", c.Storage, c.SeedSample)
	}
	if c.TokenPurgeSchedule != "@hourly" {
		t.Errorf("purge schedule = %q", c.TokenPurgeSchedule)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "memory")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5000, https://example.com ,")

	c, err := config.Load("testdata/does-not-exist.env")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != "9090" || c.Storage != "memory" {
		t.Errorf("port=%s storage=%s", c.Port, c.Storage)
	}
	if c.AccessTokenTTL != 5*time.Minute {
		t.Errorf("access ttl = %v", c.AccessTokenTTL)
	}
	if c.RateLimitRPS != 2.5 {
		t.Errorf("rps = %v", c.RateLimitRPS)
	}
	origins := c.Origins()
	if len(origins) != 2 || origins[0] != "http://localhost:5000" || origins[1] != "https://example.com" {
		t.Errorf("origins = %q", origins)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad storage", map[string]string{"JWT_SECRET": "x", "STORAGE": "sqlite"}},
		{"zero rate", map[string]string{"JWT_SECRET": "x", "RATE_LIMIT_BURST": "0"}},
		{"bad log format", map[string]string{"JWT_SECRET": "x", "LOG_FORMAT": "xml"}},
		{"bad cron", map[string]string{"JWT_SECRET": "x", "TOKEN_PURGE_SCHEDULE": "every hour"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := config.Load("testdata/does-not-exist.env"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
