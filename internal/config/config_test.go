package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "4000" || cfg.Address() != ":4000" {
		t.Fatalf("expected port 4000, got %q (%q)", cfg.Port, cfg.Address())
	}
	if cfg.OTPExpiry != 2*time.Minute {
		t.Fatalf("expected 2m expiry, got %s", cfg.OTPExpiry)
	}
	if cfg.BlockDuration != 10*time.Minute {
		t.Fatalf("expected 10m block, got %s", cfg.BlockDuration)
	}
	if cfg.MaxTries != 3 {
		t.Fatalf("expected 3 tries, got %d", cfg.MaxTries)
	}
	if cfg.ResendCooldown != 30*time.Second {
		t.Fatalf("expected 30s cooldown, got %s", cfg.ResendCooldown)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("expected a development secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("OTP_EXP_MINUTES", "5")
	t.Setenv("BLOCK_MINUTES", "1")
	t.Setenv("MAX_TRIES", "5")
	t.Setenv("RESEND_COOLDOWN_SEC", "0")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Address())
	}
	if cfg.OTPExpiry != 5*time.Minute || cfg.BlockDuration != time.Minute || cfg.MaxTries != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ResendCooldown != 0 {
		t.Fatalf("expected cooldown disabled, got %s", cfg.ResendCooldown)
	}
	if cfg.StoreBackend != BackendRedis || cfg.LogLevel != "debug" {
		t.Fatalf("expected lower-cased backend and level, got %q %q", cfg.StoreBackend, cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"non-numeric", map[string]string{"MAX_TRIES": "three"}, "MAX_TRIES"},
		{"zero tries", map[string]string{"MAX_TRIES": "0"}, "MAX_TRIES"},
		{"negative cooldown", map[string]string{"RESEND_COOLDOWN_SEC": "-1"}, "RESEND_COOLDOWN_SEC"},
		{"redis without url", map[string]string{"STORE_BACKEND": "redis"}, "REDIS_URL"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "etcd"}, "STORE_BACKEND"},
		{"default secret in production", map[string]string{"APP_ENV": "production"}, "JWT_SECRET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestProductionWithCustomSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "a-real-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDev() {
		t.Fatalf("production must not be treated as dev")
	}
}
