package passwordless

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps flows in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	flows map[string]Pending
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]Pending)}
}

func (s *MemoryStore) Put(ctx context.Context, p Pending, purgeBefore time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.flows {
		if f.ExpiresAt.Before(purgeBefore) {
			delete(s.flows, id)
		}
	}
	s.flows[p.PreAuthSessionID] = p
	return nil
}

func (s *MemoryStore) Redeem(ctx context.Context, preAuthSessionID string, fn func(p *Pending) Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.flows[preAuthSessionID]
	if !ok {
		return ErrFlowNotFound
	}
	switch fn(&p) {
	case OutcomeSave:
		s.flows[preAuthSessionID] = p
	case OutcomeDelete:
		delete(s.flows, preAuthSessionID)
	}
	return nil
}

// Len returns the number of flows held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}
