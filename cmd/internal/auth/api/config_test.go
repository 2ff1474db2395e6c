package authapi

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTHGATE_AUTH_TRUST_PROXY", "true")
	t.Setenv("AUTHGATE_AUTH_MAX_BODY_BYTES", "2048")
	t.Setenv("AUTHGATE_AUTH_LOGIN_IP_MAX", "3")
	t.Setenv("AUTHGATE_AUTH_LOGIN_IP_WINDOW", "90s")

	cfg := LoadConfigFromEnv()
	if !cfg.TrustProxy || cfg.MaxBodyBytes != 2048 || cfg.LoginIPMax != 3 || cfg.LoginIPWindow != 90*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("AUTHGATE_AUTH_TRUST_PROXY", "maybe")
	t.Setenv("AUTHGATE_AUTH_MAX_BODY_BYTES", "-1")
	t.Setenv("AUTHGATE_AUTH_LOGIN_IP_MAX", "zero")
	t.Setenv("AUTHGATE_AUTH_LOGIN_IP_WINDOW", "soon")

	if got, want := LoadConfigFromEnv(), DefaultConfig(); got != want {
		t.Fatalf("got %+v, want defaults %+v", got, want)
	}
}
