package passwordless

import (
	"context"
	"errors"
	"time"
)

// ErrFlowNotFound is returned by Store.Redeem when no flow matches.
var ErrFlowNotFound = errors.New("passwordless: flow not found")

// Pending is a flow between requesting and redeeming a code. Secrets are
// stored as hashes only.
type Pending struct {
	PreAuthSessionID string
	DeviceIDHash     string
	Contact          Contact
	CodeHash         string
	LinkHash         string
	ExpiresAt        time.Time
	Attempts         int
}

// Outcome tells Store.Redeem what to do with a flow after fn inspected it.
type Outcome int

const (
	OutcomeKeep Outcome = iota
	OutcomeSave
	OutcomeDelete
)

// Store persists pending flows.
type Store interface {
	// Put stores p and drops flows that expired before purgeBefore.
	Put(ctx context.Context, p Pending, purgeBefore time.Time) error

	// Redeem locks the flow for preAuthSessionID, passes it to fn and applies
	// the returned Outcome. OutcomeSave persists changes fn made to Attempts.
	Redeem(ctx context.Context, preAuthSessionID string, fn func(p *Pending) Outcome) error
}
