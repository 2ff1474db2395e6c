package passwordless

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (authgate.passwordless_codes).
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed flow store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, p Pending, purgeBefore time.Time) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM authgate.passwordless_codes WHERE expires_at < $1
	`, purgeBefore); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authgate.passwordless_codes (
			pre_auth_session_id, device_id_hash, email, phone_number,
			code_hash, link_hash, expires_at, attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, p.PreAuthSessionID, p.DeviceIDHash, nullIfEmpty(p.Contact.Email), nullIfEmpty(p.Contact.PhoneNumber),
		nullIfEmpty(p.CodeHash), nullIfEmpty(p.LinkHash), p.ExpiresAt, p.Attempts)
	return err
}

func (s *PostgresStore) Redeem(ctx context.Context, preAuthSessionID string, fn func(p *Pending) Outcome) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p := Pending{PreAuthSessionID: preAuthSessionID}
	err = tx.QueryRow(ctx, `
		SELECT device_id_hash, COALESCE(email, ''), COALESCE(phone_number, ''),
		       COALESCE(code_hash, ''), COALESCE(link_hash, ''), expires_at, attempts
		FROM authgate.passwordless_codes
		WHERE pre_auth_session_id = $1
		FOR UPDATE
	`, preAuthSessionID).Scan(
		&p.DeviceIDHash, &p.Contact.Email, &p.Contact.PhoneNumber,
		&p.CodeHash, &p.LinkHash, &p.ExpiresAt, &p.Attempts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrFlowNotFound
	}
	if err != nil {
		return err
	}

	switch fn(&p) {
	case OutcomeSave:
		_, err = tx.Exec(ctx, `
			UPDATE authgate.passwordless_codes SET attempts = $2 WHERE pre_auth_session_id = $1
		`, preAuthSessionID, p.Attempts)
	case OutcomeDelete:
		_, err = tx.Exec(ctx, `
			DELETE FROM authgate.passwordless_codes WHERE pre_auth_session_id = $1
		`, preAuthSessionID)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
