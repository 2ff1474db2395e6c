package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"authgate/cmd/internal/auth/session"
)

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHGATE_PASETO_V4_SECRET_KEY_HEX", session.NewSecretKeyHex())
	t.Setenv("AUTHGATE_DATABASE_URL", "")
	t.Setenv("GITHUB_OAUTH_CLIENT_ID", "")
	t.Setenv("PLANNING_CENTER_OAUTH_CLIENT_ID", "")
	t.Setenv("AUTHGATE_REQUIRE_TOKEN_HMAC", "")
}

func newTestApp(t *testing.T, mutate func(*Config)) *App {
	t.Helper()
	testEnv(t)
	cfg := LoadConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestApp_Probes(t *testing.T) {
	a := newTestApp(t, nil)

	rr := get(t, a.Handler(), "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	if rr := get(t, a.Handler(), "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.ReadinessRequireDB = true })

	if rr := get(t, a.Handler(), "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db: %d", rr.Code)
	}
}

func TestApp_GateAndMetrics(t *testing.T) {
	a := newTestApp(t, nil)

	rr := get(t, a.Handler(), "/private")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login?returnUrl=%2Fprivate" {
		t.Fatalf("private: %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if rr := get(t, a.Handler(), "/login"); rr.Code != http.StatusOK {
		t.Fatalf("login loader: %d", rr.Code)
	}

	body := get(t, a.Handler(), "/metrics").Body.String()
	for _, want := range []string{
		`authgate_gate_outcomes_total{outcome="login_redirect"} 1`,
		`authgate_gate_outcomes_total{outcome="public"} 1`,
		`authgate_http_requests_total{class="3xx",method="GET"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_RoutePrefix(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.RoutePrefix = "/app" })

	rr := get(t, a.Handler(), "/app/private")
	if rr.Code != http.StatusSeeOther || !strings.HasPrefix(rr.Header().Get("Location"), "/app/login?returnUrl=") {
		t.Fatalf("prefixed private: %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if rr := get(t, a.Handler(), "/app"); rr.Code != http.StatusOK {
		t.Fatalf("prefixed home: %d", rr.Code)
	}
}

func TestNew_RequiresAccessTokenKey(t *testing.T) {
	testEnv(t)
	t.Setenv("AUTHGATE_PASETO_V4_SECRET_KEY_HEX", "")

	if _, err := New(context.Background(), LoadConfig(), slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error without AUTHGATE_PASETO_V4_SECRET_KEY_HEX")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("AUTHGATE_TOKEN_HMAC_KEY", "")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("expected error for missing key")
	}

	t.Setenv("AUTHGATE_TOKEN_HMAC_KEY", "short")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("expected error for short key")
	}

	t.Setenv("AUTHGATE_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("valid key: %v", err)
	}

	if err := ValidateSecurityConfig(Config{}); err != nil {
		t.Fatalf("policy off: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUTHGATE_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("AUTHGATE_DB_MAX_CONNS", "-3")
	t.Setenv("AUTHGATE_HTTP_READ_TIMEOUT", "2s")
	t.Setenv("AUTHGATE_HTTP_IDLE_TIMEOUT", "nope")
	t.Setenv("AUTHGATE_TRACING", "true")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("negative conns should fall back, got %d", cfg.DBMaxConns)
	}
	if cfg.ReadTimeout.String() != "2s" || cfg.IdleTimeout.String() != "1m0s" {
		t.Fatalf("timeouts = %v %v", cfg.ReadTimeout, cfg.IdleTimeout)
	}
	if !cfg.Tracing {
		t.Fatalf("tracing should be on")
	}
}

func TestApp_TracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	a := newTestApp(t, func(c *Config) {
		c.Tracing = true
		c.TraceWriter = &buf
	})

	if rr := get(t, a.Handler(), "/private"); rr.Code != http.StatusSeeOther {
		t.Fatalf("private: %d", rr.Code)
	}
	a.Close()

	if !strings.Contains(buf.String(), `"Name":"authclient.Validate"`) {
		t.Fatalf("expected a Validate span, got %q", buf.String())
	}
}
