// Package passwordless issues one-time sign-in codes and magic links bound to
// a device, and redeems them at most once.
//
// Codes are stored hashed, in memory or in Postgres. A device is identified by a random
// deviceId and preAuthSessionId pair that the browser carries in cookies
// between requesting and redeeming a code.
package passwordless

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"authgate/cmd/security/token"

	"github.com/google/uuid"
)

var (
	// ErrInvalidContact is returned unless exactly one of email or phone number is set.
	ErrInvalidContact = errors.New("passwordless: exactly one of email or phone number is required")
	// ErrInvalidFlow is returned for an unknown flow.
	ErrInvalidFlow = errors.New("passwordless: invalid flow")
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("passwordless: invalid config")
)

// Flow selects what a code request delivers.
type Flow string

const (
	FlowCode Flow = "code"
	FlowLink Flow = "link"
	FlowBoth Flow = "both"
)

// ParseFlow maps "" to FlowBoth.
func ParseFlow(s string) (Flow, error) {
	switch f := Flow(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FlowBoth, nil
	case FlowCode, FlowLink, FlowBoth:
		return f, nil
	default:
		return "", ErrInvalidFlow
	}
}

// Status is the outcome of redeeming a code.
type Status string

const (
	StatusOK            Status = "OK"
	StatusIncorrectCode Status = "INCORRECT_USER_INPUT_CODE_ERROR"
	StatusExpiredCode   Status = "EXPIRED_USER_INPUT_CODE_ERROR"
	StatusRestartFlow   Status = "RESTART_FLOW_ERROR"
	StatusLinkingFailed Status = "LINKING_TO_SESSION_USER_FAILED"
)

// Contact is where a code is delivered. Exactly one field is set.
type Contact struct {
	Email       string
	PhoneNumber string
}

func (c Contact) valid() bool {
	return (c.Email == "") != (c.PhoneNumber == "")
}

// Code is a freshly created code. UserInputCode or LinkCode is empty when the flow excludes it.
type Code struct {
	DeviceID         string
	PreAuthSessionID string
	UserInputCode    string
	LinkCode         string
	Flow             Flow
	Contact          Contact
	ExpiresAt        time.Time
}

// Result is the outcome of a redemption. Contact is set only for StatusOK.
type Result struct {
	Status  Status
	Contact Contact
}

// Config controls code lifetime and retry budget.
type Config struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

// DefaultConfig returns a 15 minute TTL and 5 attempts.
func DefaultConfig() Config {
	return Config{CodeTTL: 15 * time.Minute, MaxAttempts: 5}
}

// LoadConfigFromEnv reads AUTHGATE_PASSWORDLESS_CODE_TTL and AUTHGATE_PASSWORDLESS_MAX_ATTEMPTS.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("AUTHGATE_PASSWORDLESS_CODE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.CodeTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("AUTHGATE_PASSWORDLESS_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return Config{}, ErrConfig
		}
		cfg.MaxAttempts = n
	}
	return cfg, nil
}

// Manager creates and redeems flows held in a Store.
type Manager struct {
	cfg   Config
	store Store
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore keeps flows in st instead of process memory.
func WithStore(st Store) Option {
	return func(m *Manager) {
		if st != nil {
			m.store = st
		}
	}
}

// NewManager constructs a Manager. Flows live in a MemoryStore unless WithStore is given.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.CodeTTL <= 0 || cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	m := &Manager{cfg: cfg, store: NewMemoryStore()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateCode starts a flow for contact.
func (m *Manager) CreateCode(ctx context.Context, now time.Time, contact Contact, flow Flow) (Code, error) {
	if err := ctx.Err(); err != nil {
		return Code{}, err
	}
	contact.Email = strings.TrimSpace(contact.Email)
	contact.PhoneNumber = strings.TrimSpace(contact.PhoneNumber)
	if !contact.valid() {
		return Code{}, ErrInvalidContact
	}
	flow, err := ParseFlow(string(flow))
	if err != nil {
		return Code{}, err
	}

	code := Code{
		DeviceID:         uuid.NewString(),
		PreAuthSessionID: uuid.NewString(),
		Flow:             flow,
		Contact:          contact,
		ExpiresAt:        now.Add(m.cfg.CodeTTL),
	}
	p := Pending{
		PreAuthSessionID: code.PreAuthSessionID,
		DeviceIDHash:     token.HashSecretHex(code.DeviceID),
		Contact:          contact,
		ExpiresAt:        code.ExpiresAt,
	}

	if flow != FlowLink {
		c, err := sixDigits()
		if err != nil {
			return Code{}, err
		}
		code.UserInputCode = c
		p.CodeHash = token.HashSecretHex(c)
	}
	if flow != FlowCode {
		l, err := token.NewOpaque(32)
		if err != nil {
			return Code{}, err
		}
		code.LinkCode = l
		p.LinkHash = token.HashSecretHex(l)
	}

	// Recently expired flows are kept so redemption can still report the expiry.
	if err := m.store.Put(ctx, p, now.Add(-m.cfg.CodeTTL)); err != nil {
		return Code{}, fmt.Errorf("passwordless: store code: %w", err)
	}
	return code, nil
}

// ConsumeUserInputCode redeems a typed code. A wrong code uses up one
// attempt; the last failed attempt ends the flow.
func (m *Manager) ConsumeUserInputCode(ctx context.Context, now time.Time, deviceID, preAuthSessionID, userInputCode string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Status: StatusRestartFlow}
	err := m.store.Redeem(ctx, preAuthSessionID, func(p *Pending) Outcome {
		if p.CodeHash == "" || !token.Equal(token.HashSecretHex(deviceID), p.DeviceIDHash) {
			return OutcomeKeep
		}
		if !token.Equal(token.HashSecretHex(strings.TrimSpace(userInputCode)), p.CodeHash) {
			p.Attempts++
			if p.Attempts >= m.cfg.MaxAttempts {
				return OutcomeDelete
			}
			res.Status = StatusIncorrectCode
			return OutcomeSave
		}
		if !p.ExpiresAt.After(now) {
			res.Status = StatusExpiredCode
			return OutcomeKeep
		}
		res = Result{Status: StatusOK, Contact: p.Contact}
		return OutcomeDelete
	})
	return m.finish(res, err)
}

// ConsumeLinkCode redeems a magic link. Any mismatch or an expired link ends the flow.
func (m *Manager) ConsumeLinkCode(ctx context.Context, now time.Time, preAuthSessionID, linkCode string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Status: StatusRestartFlow}
	err := m.store.Redeem(ctx, preAuthSessionID, func(p *Pending) Outcome {
		if p.LinkHash == "" || !token.Equal(token.HashSecretHex(linkCode), p.LinkHash) {
			return OutcomeKeep
		}
		if p.ExpiresAt.After(now) {
			res = Result{Status: StatusOK, Contact: p.Contact}
		}
		return OutcomeDelete
	})
	return m.finish(res, err)
}

func (m *Manager) finish(res Result, err error) (Result, error) {
	switch {
	case errors.Is(err, ErrFlowNotFound):
		return Result{Status: StatusRestartFlow}, nil
	case err != nil:
		return Result{}, fmt.Errorf("passwordless: redeem: %w", err)
	}
	return res, nil
}

func sixDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
