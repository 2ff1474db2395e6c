package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestKeygen(t *testing.T) {
	t.Parallel()

	key := strings.TrimSpace(runCmd(t, "keygen"))
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 64 {
		t.Fatalf("expected 64-byte hex key, got %q (%v)", key, err)
	}
}

func TestKeygen_All(t *testing.T) {
	t.Parallel()

	lines := strings.Split(strings.TrimSpace(runCmd(t, "keygen", "--all")), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	for i, prefix := range []string{"AUTHGATE_PASETO_V4_SECRET_KEY_HEX=", "AUTHGATE_TOKEN_HMAC_KEY=", "AUTHGATE_OAUTH_STATE_KEY="} {
		if !strings.HasPrefix(lines[i], prefix) || len(lines[i]) < len(prefix)+32 {
			t.Fatalf("line %d = %q", i, lines[i])
		}
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	if out := runCmd(t, "version"); !strings.HasPrefix(out, "authgate dev") {
		t.Fatalf("version = %q", out)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("AUTHGATE_TEST_FROM_FILE=loaded\nAUTHGATE_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("AUTHGATE_TEST_FROM_FILE", "")
	os.Unsetenv("AUTHGATE_TEST_FROM_FILE")
	t.Setenv("AUTHGATE_TEST_PRESET", "env")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("AUTHGATE_TEST_FROM_FILE"); got != "loaded" {
		t.Fatalf("file value = %q", got)
	}
	if got := os.Getenv("AUTHGATE_TEST_PRESET"); got != "env" {
		t.Fatalf("existing env must win, got %q", got)
	}
}
