package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore implements Store in process memory.
//
// InTx holds the store lock for the whole callback, which serializes
// rotations the same way a row lock does in PostgreSQL.
type MemoryStore struct {
	mu        sync.Mutex
	rows      map[string]Row    // id -> row
	byRefresh map[string]string // refresh hash -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:      make(map[string]Row),
		byRefresh: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, now time.Time, in NewSession) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).create(now, in), nil
}

func (s *MemoryStore) GetByID(_ context.Context, sessionID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) Touch(_ context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.rows[sessionID]; ok {
		row.LastUsedAt = &now
		s.rows[sessionID] = row
	}
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, now time.Time, sessionID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.rows[sessionID]; ok {
		s.rows[sessionID] = revoked(row, now, reason)
	}
	return nil
}

func (s *MemoryStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).RevokeAll(ctx, now, userID, reason)
}

// InTx runs fn under the store lock and restores the previous state if fn fails.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, byRefresh := maps.Clone(s.rows), maps.Clone(s.byRefresh)
	if err := fn((*memTx)(s)); err != nil {
		s.rows, s.byRefresh = rows, byRefresh
		return err
	}
	return nil
}

// memTx operates on a MemoryStore whose lock is already held.
type memTx MemoryStore

func (t *memTx) create(now time.Time, in NewSession) string {
	id := ulid.Make().String()
	t.rows[id] = Row{
		ID:               id,
		UserID:           in.UserID,
		RefreshTokenHash: in.RefreshHash,
		AntiCsrfHash:     in.AntiCsrfHash,
		CreatedAt:        now,
		LastUsedAt:       &now,
		ExpiresAt:        in.ExpiresAt,
	}
	t.byRefresh[in.RefreshHash] = id
	return id
}

func (t *memTx) Create(_ context.Context, now time.Time, in NewSession) (string, error) {
	return t.create(now, in), nil
}

func (t *memTx) GetByRefreshHashForUpdate(_ context.Context, refreshHash string) (Row, error) {
	id, ok := t.byRefresh[refreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return t.rows[id], nil
}

func (t *memTx) MarkRotated(_ context.Context, now time.Time, sessionID string, replacedBy string) error {
	row, ok := t.rows[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	row.LastUsedAt = &now
	row.RevokedAt = &now
	row.ReplacedBySessionID = &replacedBy
	reason := "rotation"
	row.RevocationReason = &reason
	t.rows[sessionID] = row
	return nil
}

func (t *memTx) RevokeAll(_ context.Context, now time.Time, userID string, reason string) error {
	for id, row := range t.rows {
		if row.UserID == userID {
			t.rows[id] = revoked(row, now, reason)
		}
	}
	return nil
}

func revoked(row Row, now time.Time, reason string) Row {
	if row.RevokedAt == nil {
		row.RevokedAt = &now
	}
	if row.RevocationReason == nil {
		row.RevocationReason = &reason
	}
	return row
}
