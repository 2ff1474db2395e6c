package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (authgate.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectRow = `
	SELECT
		id, user_id, refresh_token_hash, COALESCE(anti_csrf_hash, ''),
		created_at, last_used_at, expires_at, revoked_at,
		replaced_by_session_id, revocation_reason
	FROM authgate.sessions
`

func scanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.RefreshTokenHash,
		&row.AntiCsrfHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBySessionID,
		&row.RevocationReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func createRow(ctx context.Context, q querier, now time.Time, in NewSession) (string, error) {
	id := ulid.Make().String()

	_, err := q.Exec(ctx, `
		INSERT INTO authgate.sessions (
			id, user_id, refresh_token_hash, anti_csrf_hash,
			created_at, last_used_at, expires_at, revoked_at,
			replaced_by_session_id, user_agent, ip
		) VALUES (
			$1, $2, $3, $4,
			$5, $5, $6, NULL,
			NULL, $7, $8
		)
	`, id, in.UserID, in.RefreshHash, nullIfEmpty(in.AntiCsrfHash), now, in.ExpiresAt,
		nullIfEmpty(in.Device.UserAgent), ipOrNil(in.Device))
	if err != nil {
		return "", err
	}
	return id, nil
}

func revokeAllRows(ctx context.Context, q querier, now time.Time, userID, reason string) error {
	_, err := q.Exec(ctx, `
		UPDATE authgate.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, in NewSession) (string, error) {
	return createRow(ctx, s.pool, now, in)
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, selectRow+`WHERE id = $1`, sessionID))
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE authgate.sessions
		SET last_used_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE authgate.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeAll revokes all sessions for a user (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	return revokeAllRows(ctx, s.pool, now, userID, reason)
}

// InTx runs fn inside a read-committed transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgTx{tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) GetByRefreshHashForUpdate(ctx context.Context, refreshHash string) (Row, error) {
	return scanRow(t.tx.QueryRow(ctx, selectRow+`WHERE refresh_token_hash = $1 FOR UPDATE`, refreshHash))
}

func (t pgTx) Create(ctx context.Context, now time.Time, in NewSession) (string, error) {
	return createRow(ctx, t.tx, now, in)
}

// MarkRotated revokes the old session and links it to the replacement session.
func (t pgTx) MarkRotated(ctx context.Context, now time.Time, sessionID string, replacedBy string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE authgate.sessions
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_session_id = $3,
			revocation_reason = 'rotation'
		WHERE id = $1
	`, sessionID, now, replacedBy)
	return err
}

func (t pgTx) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	return revokeAllRows(ctx, t.tx, now, userID, reason)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ipOrNil(dev DeviceContext) any {
	if dev.IP == nil {
		return nil
	}
	return dev.IP.String()
}
