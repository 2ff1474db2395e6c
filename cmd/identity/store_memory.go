package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"authgate/cmd/identity/ids"
)

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu sync.Mutex

	users    map[string]memUser // id -> user
	byEmail  map[string]string  // email_norm -> id
	byPhone  map[string]string  // phone_norm -> id
	external map[string]ExternalAccount
	resets   map[string]memReset // token hash -> reset
}

type memUser struct {
	user         User
	passwordHash string
}

type memReset struct {
	userID    string
	expiresAt time.Time
	usedAt    *time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]memUser),
		byEmail:  make(map[string]string),
		byPhone:  make(map[string]string),
		external: make(map[string]ExternalAccount),
		resets:   make(map[string]memReset),
	}
}

func externalKey(provider, subject string) string { return provider + "\x00" + subject }

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

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

	s.mu.Lock()
	defer s.mu.Unlock()

	if email != nil {
		if _, ok := s.byEmail[NormalizeEmail(*email)]; ok {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}
	if phone != nil {
		if _, ok := s.byPhone[NormalizePhone(*phone)]; ok {
			return User{}, ConflictError{Op: op, Field: "phone_number"}
		}
	}

	u := User{ID: id, Email: email, PhoneNumber: phone, CreatedAt: now}
	s.users[id] = memUser{user: u, passwordHash: in.PasswordHash}
	if email != nil {
		s.byEmail[NormalizeEmail(*email)] = id
	}
	if phone != nil {
		s.byPhone[NormalizePhone(*phone)] = id
	}
	return u, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return mu.user, nil
}

func (s *MemoryStore) GetUserAuthByEmail(_ context.Context, email string) (UserAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByEmail", Resource: "user"}
	}
	mu := s.users[id]
	return UserAuth{User: mu.user, PasswordHash: mu.passwordHash}, nil
}

func (s *MemoryStore) GetUserByPhone(_ context.Context, phone string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPhone[NormalizePhone(phone)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByPhone", Resource: "user"}
	}
	return s.users[id].user, nil
}

func (s *MemoryStore) SetPasswordHash(_ context.Context, userID, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.SetPasswordHash", Resource: "user"}
	}
	mu.passwordHash = hash
	s.users[userID] = mu
	return nil
}

func (s *MemoryStore) UpdateEmail(_ context.Context, userID, email string) error {
	const op = "identity.UpdateEmail"

	email = strings.TrimSpace(email)
	if email == "" {
		return invalid(op, "email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	norm := NormalizeEmail(email)
	if owner, taken := s.byEmail[norm]; taken && owner != userID {
		return ConflictError{Op: op, Field: "email"}
	}
	if mu.user.Email != nil {
		delete(s.byEmail, NormalizeEmail(*mu.user.Email))
	}
	mu.user.Email = &email
	s.users[userID] = mu
	s.byEmail[norm] = userID
	return nil
}

func (s *MemoryStore) LinkExternal(_ context.Context, acct ExternalAccount, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := externalKey(acct.Provider, acct.Subject)
	if _, ok := s.external[k]; ok {
		return ConflictError{Op: "identity.LinkExternal", Field: "external_account"}
	}
	if _, ok := s.users[acct.UserID]; !ok {
		return NotFoundError{Op: "identity.LinkExternal", Resource: "user"}
	}
	s.external[k] = acct
	return nil
}

func (s *MemoryStore) GetExternal(_ context.Context, provider, subject string) (ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.external[externalKey(provider, subject)]
	if !ok {
		return ExternalAccount{}, NotFoundError{Op: "identity.GetExternal", Resource: "external_account"}
	}
	return acct, nil
}

func (s *MemoryStore) UpdateExternalEmail(_ context.Context, provider, subject, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := externalKey(provider, subject)
	acct, ok := s.external[k]
	if !ok {
		return NotFoundError{Op: "identity.UpdateExternalEmail", Resource: "external_account"}
	}
	acct.Email = email
	s.external[k] = acct
	return nil
}

func (s *MemoryStore) CreateResetToken(_ context.Context, userID, tokenHash string, expiresAt, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return NotFoundError{Op: "identity.CreateResetToken", Resource: "user"}
	}
	s.resets[tokenHash] = memReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resets[tokenHash]
	if !ok || r.usedAt != nil || !r.expiresAt.After(now) {
		return "", resetNotActive()
	}
	r.usedAt = &now
	s.resets[tokenHash] = r
	return r.userID, nil
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
