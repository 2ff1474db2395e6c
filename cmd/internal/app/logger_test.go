package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewHandler_Formats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newHandler(&buf, "info", "json")).Info("gate.redirect", "status", 303)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if rec["msg"] != "gate.redirect" || rec["status"] != float64(303) {
		t.Fatalf("json record = %v", rec)
	}

	buf.Reset()
	slog.New(newHandler(&buf, "info", "text")).Info("gate.redirect", "status", 303)
	if !strings.Contains(buf.String(), "msg=gate.redirect") || !strings.Contains(buf.String(), "status=303") {
		t.Fatalf("text output = %q", buf.String())
	}

	buf.Reset()
	slog.New(newHandler(&buf, "warn", "json")).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
}

func TestConsoleHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))
	log.With("component", "gate").WithGroup("req").Info("http.request",
		"path", "/private",
		"status", 303,
		"result", "redirect",
		"ua", "Mozilla/5.0 (X11)",
	)

	line := buf.String()
	for _, want := range []string{
		"INFO ",
		"http.request",
		"component=gate",
		"req.path=/private",
		"req.status=303",
		`req.ua="Mozilla/5.0 (X11)"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("color disabled but output has escapes: %q", line)
	}
}

func TestConsoleHandler_Color(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newConsoleHandler(&buf, nil, true)).Error("auth.refresh.fail", "status", 500)
	if !strings.Contains(buf.String(), ansiRed+"500"+ansiReset) {
		t.Fatalf("expected red status, got %q", buf.String())
	}
}
