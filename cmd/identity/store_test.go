package identity

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func strPtr(s string) *string { return &s }

// exerciseStore runs the behaviors every Store implementation must share.
func exerciseStore(t *testing.T, st Store, suffix string) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	email := "User" + suffix + "@Example.com"

	u, err := st.CreateUser(ctx, CreateUserInput{Email: strPtr(email), PasswordHash: "hash-1", Now: now})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Email == nil || *u.Email != email {
		t.Fatalf("CreateUser: unexpected user %+v", u)
	}

	_, err = st.CreateUser(ctx, CreateUserInput{Email: strPtr("user" + suffix + "@example.com"), Now: now})
	if !IsConflict(err) || ConflictField(err) != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	ua, err := st.GetUserAuthByEmail(ctx, " USER"+suffix+"@example.COM ")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.User.ID != u.ID || ua.PasswordHash != "hash-1" {
		t.Fatalf("GetUserAuthByEmail: got %+v", ua)
	}

	if err := st.SetPasswordHash(ctx, u.ID, "hash-2", now); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	ua, _ = st.GetUserAuthByEmail(ctx, email)
	if ua.PasswordHash != "hash-2" {
		t.Fatalf("expected updated hash, got %q", ua.PasswordHash)
	}

	if _, err := st.GetUserByID(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	phone := "+1555" + suffix
	pu, err := st.CreateUser(ctx, CreateUserInput{PhoneNumber: strPtr(phone), Now: now})
	if err != nil {
		t.Fatalf("CreateUser(phone): %v", err)
	}
	got, err := st.GetUserByPhone(ctx, phone)
	if err != nil || got.ID != pu.ID {
		t.Fatalf("GetUserByPhone: %+v %v", got, err)
	}

	acct := ExternalAccount{Provider: "github", Subject: "gh-" + suffix, UserID: u.ID, Email: email}
	if err := st.LinkExternal(ctx, acct, now); err != nil {
		t.Fatalf("LinkExternal: %v", err)
	}
	if err := st.LinkExternal(ctx, acct, now); !IsConflict(err) {
		t.Fatalf("expected external conflict, got %v", err)
	}
	ext, err := st.GetExternal(ctx, "github", "gh-"+suffix)
	if err != nil || ext.UserID != u.ID {
		t.Fatalf("GetExternal: %+v %v", ext, err)
	}

	if err := st.CreateResetToken(ctx, u.ID, "reset-"+suffix, now.Add(time.Hour), now); err != nil {
		t.Fatalf("CreateResetToken: %v", err)
	}
	uid, err := st.ConsumeResetToken(ctx, "reset-"+suffix, now.Add(time.Minute))
	if err != nil || uid != u.ID {
		t.Fatalf("ConsumeResetToken: %q %v", uid, err)
	}
	if _, err := st.ConsumeResetToken(ctx, "reset-"+suffix, now.Add(2*time.Minute)); !IsNotActive(err) {
		t.Fatalf("expected reused token to be not active, got %v", err)
	}

	if err := st.CreateResetToken(ctx, u.ID, "expired-"+suffix, now.Add(time.Minute), now); err != nil {
		t.Fatalf("CreateResetToken: %v", err)
	}
	if _, err := st.ConsumeResetToken(ctx, "expired-"+suffix, now.Add(time.Hour)); !IsNotActive(err) {
		t.Fatalf("expected expired token to be not active, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore(), "1")
}

func TestMemoryStore_CreateUserRequiresContact(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore().CreateUser(context.Background(), CreateUserInput{Email: strPtr("  ")})
	if !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var op OpError
	if !errors.As(err, &op) || op.Op != "identity.CreateUser" {
		t.Fatalf("expected OpError, got %#v", err)
	}
}

// Postgres runs when AUTHGATE_DATABASE_URL is set and migrations/001_init.sql is applied.
func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("AUTHGATE_DATABASE_URL")
	if dbURL == "" {
		t.Skip("AUTHGATE_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}

	st, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	exerciseStore(t, st, time.Now().Format("150405.000000"))
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"+1 (555) 123-4567": "+15551234567",
		" 555.123.4567 ":    "5551234567",
		"1+2":               "12",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q)=%q want=%q", in, got, want)
		}
	}
}
