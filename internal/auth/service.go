package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/mail"
	"github.com/ecoshield360/ecoshield/internal/validation"
)

// VerificationTokenExpiry is how long an email verification token is valid.
const VerificationTokenExpiry = 24 * time.Hour

// VerifyEmailPath is the API path that consumes verification tokens.
const VerifyEmailPath = "/api/v1/auth/verify-email"

// Predefined service errors.
var (
	ErrValidation               = errors.New("validation failed")
	ErrUserNotFound             = errors.New("user not found")
	ErrUsernameTaken            = errors.New("username already exists")
	ErrEmailTaken               = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid username or password")
	ErrEmailNotVerified         = errors.New("email address has not been verified")
	ErrAccountDisabled          = errors.New("account is disabled")
	ErrInvalidVerificationToken = errors.New("invalid or already used verification token")
	ErrVerificationTokenExpired = errors.New("verification token has expired")
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// Create stores a new user. It returns ErrUsernameTaken or ErrEmailTaken
	// when a unique field is already in use.
	Create(ctx context.Context, user *User) error

	// FindByID finds a user by their internal ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByUsername finds a user by username.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByEmail finds a user by email address.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// MarkVerified flags the user's email as verified.
	MarkVerified(ctx context.Context, id string, at time.Time) error
}

// VerificationTokenRepository defines the interface for verification token operations.
type VerificationTokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *VerificationToken) error

	// FindByToken returns ErrInvalidVerificationToken for unknown tokens.
	FindByToken(ctx context.Context, token string) (*VerificationToken, error)

	// Delete removes a token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteForUser removes every outstanding token of a user.
	DeleteForUser(ctx context.Context, userID string) error
}

// Mailer accepts outgoing email for delivery.
type Mailer interface {
	Enqueue(ctx context.Context, msg mail.Message) error
}

// Service provides authentication operations.
type Service struct {
	jwtService          *JWTService
	userRepo            UserRepository
	tokenRepo           VerificationTokenRepository
	mailer              Mailer
	logger              zerolog.Logger
	publicBaseURL       string
	enforcePasswordRule bool
	bcryptCost          int
	now                 func() time.Time
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService *JWTService
	UserRepo   UserRepository
	TokenRepo  VerificationTokenRepository
	Mailer     Mailer
	Logger     zerolog.Logger

	// PublicBaseURL prefixes the verification link sent by email.
	PublicBaseURL string

	// EnforcePasswordPolicy enables the password strength rules.
	EnforcePasswordPolicy bool

	// BcryptCost overrides bcrypt.DefaultCost when non-zero.
	BcryptCost int

	// Now overrides the clock (default: time.Now).
	Now func() time.Time
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Service{
		jwtService:          cfg.JWTService,
		userRepo:            cfg.UserRepo,
		tokenRepo:           cfg.TokenRepo,
		mailer:              cfg.Mailer,
		logger:              cfg.Logger.With().Str("component", "auth").Logger(),
		publicBaseURL:       strings.TrimSuffix(baseURL, "/"),
		enforcePasswordRule: cfg.EnforcePasswordPolicy,
		bcryptCost:          cfg.BcryptCost,
		now:                 now,
	}
}

// Register creates an unverified account, sends the verification email and
// returns an access token for the new user.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)

	fields := validation.Validate(req)
	if s.enforcePasswordRule {
		if missing := PasswordPolicyViolations(req.Password); len(missing) > 0 {
			fields = append(fields, FieldError{
				Field:   "password",
				Message: "password missing: " + strings.Join(missing, ", "),
				Code:    "WEAK_PASSWORD",
			})
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if _, err := s.userRepo.FindByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:           generateUserID(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		IsEnabled:    true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// The account exists at this point; a failed email can be retried
	// through ResendVerification.
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("verification email not sent")
	}

	return s.issue(user)
}

// Login checks a username and password and returns an access token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	if fields := validation.Validate(req); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEnabled {
		return nil, ErrAccountDisabled
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	return s.issue(user)
}

// VerifyEmail consumes a verification token and marks its user verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidVerificationToken
	}

	record, err := s.tokenRepo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidVerificationToken) {
			return err
		}
		return fmt.Errorf("finding verification token: %w", err)
	}

	now := s.now()
	if record.Expired(now) {
		return ErrVerificationTokenExpired
	}

	if _, err := s.userRepo.FindByID(ctx, record.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("finding user: %w", err)
	}

	if err := s.userRepo.MarkVerified(ctx, record.UserID, now); err != nil {
		return fmt.Errorf("marking user verified: %w", err)
	}
	if err := s.tokenRepo.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting verification token: %w", err)
	}

	s.logger.Info().Str("user_id", record.UserID).Msg("email verified")
	return nil
}

// ResendVerification replaces any outstanding token of the account with email
// and sends a new verification email. Unknown and already verified addresses
// succeed without sending anything.
func (s *Service) ResendVerification(ctx context.Context, req *ResendVerificationRequest) error {
	req.Email = normalizeEmail(req.Email)
	if fields := validation.Validate(req); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("finding user: %w", err)
	}
	if user.IsVerified {
		return nil
	}

	if err := s.tokenRepo.DeleteForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("deleting outstanding tokens: %w", err)
	}
	return s.sendVerification(ctx, user)
}

// ValidateAccessToken validates an access token and returns the user ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

// VerificationLink builds the URL that verifies token.
func (s *Service) VerificationLink(token string) string {
	return s.publicBaseURL + VerifyEmailPath + "?token=" + url.QueryEscape(token)
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	token, err := GenerateVerificationToken()
	if err != nil {
		return err
	}

	now := s.now()
	record := &VerificationToken{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(VerificationTokenExpiry),
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("storing verification token: %w", err)
	}

	if s.mailer == nil {
		s.logger.Warn().Str("user_id", user.ID).Msg("no mailer configured; verification email dropped")
		return nil
	}

	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	msg, err := mail.VerificationMessage(user.Email, name, s.VerificationLink(token))
	if err != nil {
		return fmt.Errorf("building verification email: %w", err)
	}
	if err := s.mailer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueueing verification email: %w", err)
	}
	return nil
}

func (s *Service) issue(user *User) (*AuthResult, error) {
	token, expiresAt, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	return &AuthResult{User: user, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// generateUserID generates a unique user ID with prefix.
func generateUserID() string {
	return "usr_" + uuid.New().String()[:22]
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
