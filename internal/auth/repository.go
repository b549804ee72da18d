package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryUserRepository is an in-memory implementation of UserRepository.
// It backs development runs without a database and tests.
type InMemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[string]*User  // keyed by user ID
	byUsername map[string]string // username -> userID
	byEmail    map[string]string // lower-cased email -> userID
}

// NewInMemoryUserRepository creates a new in-memory user repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// Create creates a new user.
func (r *InMemoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[user.Username]; ok {
		return ErrUsernameTaken
	}
	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailTaken
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	r.byUsername[user.Username] = user.ID
	r.byEmail[email] = user.ID

	return nil
}

// FindByID finds a user by their internal ID.
func (r *InMemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

// FindByUsername finds a user by username.
func (r *InMemoryUserRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byUsername[username])
}

// FindByEmail finds a user by email address.
func (r *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byEmail[strings.ToLower(email)])
}

// MarkVerified flags the user's email as verified.
func (r *InMemoryUserRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.IsVerified = true
	user.UpdatedAt = at
	return nil
}

// SetEnabled enables or disables an account.
func (r *InMemoryUserRepository) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.IsEnabled = enabled
	return nil
}

// lookup returns a copy of the user with id. Callers hold the lock.
func (r *InMemoryUserRepository) lookup(id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

// InMemoryVerificationTokenRepository is an in-memory implementation of
// VerificationTokenRepository.
type InMemoryVerificationTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*VerificationToken // keyed by token value
}

// NewInMemoryVerificationTokenRepository creates a new in-memory token repository.
func NewInMemoryVerificationTokenRepository() *InMemoryVerificationTokenRepository {
	return &InMemoryVerificationTokenRepository{
		tokens: make(map[string]*VerificationToken),
	}
}

// Create stores a new token.
func (r *InMemoryVerificationTokenRepository) Create(_ context.Context, token *VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokenCopy := *token
	r.tokens[token.Token] = &tokenCopy
	return nil
}

// FindByToken finds a token by its value.
func (r *InMemoryVerificationTokenRepository) FindByToken(_ context.Context, value string) (*VerificationToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[value]
	if !ok {
		return nil, ErrInvalidVerificationToken
	}
	tokenCopy := *token
	return &tokenCopy, nil
}

// Delete removes a token.
func (r *InMemoryVerificationTokenRepository) Delete(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, value)
	return nil
}

// DeleteForUser removes all tokens of a user.
func (r *InMemoryVerificationTokenRepository) DeleteForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for value, token := range r.tokens {
		if token.UserID == userID {
			delete(r.tokens, value)
		}
	}
	return nil
}

// TokensForUser returns the outstanding tokens of a user.
func (r *InMemoryVerificationTokenRepository) TokensForUser(userID string) []VerificationToken {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []VerificationToken
	for _, token := range r.tokens {
		if token.UserID == userID {
			out = append(out, *token)
		}
	}
	return out
}
