package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"authgate/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pool is owned by the caller; this store never closes it.
// Table identifiers are quoted through pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema (default "authgate").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "authgate"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// CreateUser inserts the user and, when PasswordHash is set, its credential, in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	email, phone := trimPtr(in.Email), trimPtr(in.PhoneNumber)
	if email == nil && phone == nil {
		return User{}, invalid(op, "email or phone number is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	var emailNorm, phoneNorm *string
	if email != nil {
		n := NormalizeEmail(*email)
		emailNorm = &n
	}
	if phone != nil {
		n := NormalizePhone(*phone)
		phoneNorm = &n
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("users")+` (id, email, email_norm, phone_number, phone_norm, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, email, emailNorm, phone, phoneNorm, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	if in.PasswordHash != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO `+s.table("user_credentials")+` (user_id, password_hash, created_at, updated_at)
			 VALUES ($1, $2, $3, $3)`,
			id, in.PasswordHash, now,
		)
		if err != nil {
			return User{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email, PhoneNumber: phone, CreatedAt: now}, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByID", `id = $1`, userID)
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByPhone", `phone_norm = $1`, NormalizePhone(phone))
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, phone_number, created_at FROM `+s.table("users")+` WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.PhoneNumber, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	var ua UserAuth
	var hash *string
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.phone_number, u.created_at, c.password_hash
		   FROM `+s.table("users")+` u
		   LEFT JOIN `+s.table("user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`,
		NormalizeEmail(email),
	).Scan(&ua.User.ID, &ua.User.Email, &ua.User.PhoneNumber, &ua.User.CreatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByEmail", Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}
	if hash != nil {
		ua.PasswordHash = *hash
	}
	return ua, nil
}

// SetPasswordHash upserts the password credential.
func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`,
		userID, hash, now,
	)
	if pgIsForeignKeyViolation(err) {
		return NotFoundError{Op: "identity.SetPasswordHash", Resource: "user"}
	}
	return err
}

func (s *PostgresStore) UpdateEmail(ctx context.Context, userID, email string) error {
	const op = "identity.UpdateEmail"

	email = strings.TrimSpace(email)
	if email == "" {
		return invalid(op, "email is required")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+` SET email = $2, email_norm = $3 WHERE id = $1`,
		userID, email, NormalizeEmail(email),
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) LinkExternal(ctx context.Context, acct ExternalAccount, now time.Time) error {
	const op = "identity.LinkExternal"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("external_accounts")+` (provider, subject, user_id, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		acct.Provider, acct.Subject, acct.UserID, acct.Email, now,
	)
	switch {
	case err == nil:
		return nil
	case pgIsForeignKeyViolation(err):
		return NotFoundError{Op: op, Resource: "user"}
	default:
		if _, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: "external_account"}
		}
		return err
	}
}

func (s *PostgresStore) GetExternal(ctx context.Context, provider, subject string) (ExternalAccount, error) {
	acct := ExternalAccount{Provider: provider, Subject: subject}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, email FROM `+s.table("external_accounts")+` WHERE provider = $1 AND subject = $2`,
		provider, subject,
	).Scan(&acct.UserID, &acct.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExternalAccount{}, NotFoundError{Op: "identity.GetExternal", Resource: "external_account"}
	}
	if err != nil {
		return ExternalAccount{}, err
	}
	return acct, nil
}

func (s *PostgresStore) UpdateExternalEmail(ctx context.Context, provider, subject, email string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("external_accounts")+` SET email = $3 WHERE provider = $1 AND subject = $2`,
		provider, subject, email,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.UpdateExternalEmail", Resource: "external_account"}
	}
	return nil
}

func (s *PostgresStore) CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time) error {
	id, err := ids.NewULID(now)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table("password_reset_tokens")+` (id, user_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, userID, tokenHash, now, expiresAt,
	)
	if pgIsForeignKeyViolation(err) {
		return NotFoundError{Op: "identity.CreateResetToken", Resource: "user"}
	}
	return err
}

// ConsumeResetToken atomically marks an unused, unexpired token as used.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`UPDATE `+s.table("password_reset_tokens")+`
		    SET used_at = $2
		  WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id`,
		tokenHash, now,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", resetNotActive()
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "phone"):
		return "phone_number", true
	case strings.Contains(c, "external"):
		return "external_account", true
	default:
		return "unique", true
	}
}
