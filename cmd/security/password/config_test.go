package password

import "testing"

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("AUTHGATE_PASSWORD_MIN_LEN", "10")
	t.Setenv("AUTHGATE_PASSWORD_MAX_LEN", "200")
	t.Setenv("AUTHGATE_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("AUTHGATE_ARGON2_ITERATIONS", "4")
	t.Setenv("AUTHGATE_ARGON2_PARALLELISM", "2")
	t.Setenv("AUTHGATE_ARGON2_SALT_LEN", "24")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 || cfg.Params.SaltLength != 24 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("AUTHGATE_PASSWORD_MIN_LEN", "20")
	t.Setenv("AUTHGATE_PASSWORD_MAX_LEN", "10")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv_OutOfRange(t *testing.T) {
	t.Setenv("AUTHGATE_ARGON2_ITERATIONS", "0")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}
