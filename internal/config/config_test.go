package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SQUARE_BASE_URL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SquareBaseURL != "" {
		t.Fatalf("expected default square base url empty, got %s", cfg.SquareBaseURL)
	}
	if cfg.InquiryCacheTTL != 5*time.Minute {
		t.Fatalf("expected default inquiry cache TTL, got %s", cfg.InquiryCacheTTL)
	}
	if cfg.SquareTimeout != 15*time.Second {
		t.Fatalf("expected default square timeout, got %s", cfg.SquareTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SQUARE_LOCATION_ID", "L123")
	t.Setenv("DEFAULT_TEAM_MEMBER_ID", "TM456")
	t.Setenv("INQUIRY_CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.SquareLocationID != "L123" {
		t.Fatalf("expected location override, got %s", cfg.SquareLocationID)
	}
	if cfg.DefaultTeamMemberID != "TM456" {
		t.Fatalf("expected team member override, got %s", cfg.DefaultTeamMemberID)
	}
	if cfg.InquiryCacheTTL != 90*time.Second {
		t.Fatalf("expected TTL override, got %s", cfg.InquiryCacheTTL)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
}
