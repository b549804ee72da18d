package auth_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecoshield360/ecoshield/internal/auth"
	"github.com/ecoshield360/ecoshield/internal/mail"
)

type outbox struct {
	messages []mail.Message
	err      error
}

func (o *outbox) Enqueue(_ context.Context, msg mail.Message) error {
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

// tokenFrom pulls the verification token out of the link in an email body.
func tokenFrom(t *testing.T, msg mail.Message) string {
	t.Helper()
	_, rest, ok := strings.Cut(msg.HTMLBody, "?token=")
	require.True(t, ok, "no verification link in body")
	end := strings.IndexAny(rest, `"<&`)
	require.Positive(t, end)
	token, err := url.QueryUnescape(rest[:end])
	require.NoError(t, err)
	return token
}

type fixture struct {
	svc    *auth.Service
	users  *auth.InMemoryUserRepository
	tokens *auth.InMemoryVerificationTokenRepository
	outbox *outbox
	jwt    *auth.JWTService
	now    time.Time
}

func newFixture(t *testing.T, enforcePolicy bool) *fixture {
	t.Helper()
	f := &fixture{
		users:  auth.NewInMemoryUserRepository(),
		tokens: auth.NewInMemoryVerificationTokenRepository(),
		outbox: &outbox{},
		now:    time.Now().UTC().Truncate(time.Second),
	}
	clock := func() time.Time { return f.now }
	f.jwt = auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret",
		Issuer:     testIssuer,
		Audience:   testAudience,
		Now:        clock,
	})
	f.svc = auth.NewService(auth.ServiceConfig{
		JWTService:            f.jwt,
		UserRepo:              f.users,
		TokenRepo:             f.tokens,
		Mailer:                f.outbox,
		Logger:                zerolog.New(io.Discard),
		PublicBaseURL:         "https://api.example.com/",
		EnforcePasswordPolicy: enforcePolicy,
		BcryptCost:            bcrypt.MinCost,
		Now:                   clock,
	})
	return f
}

func registerRequest() *auth.RegisterRequest {
	return &auth.RegisterRequest{
		FirstName: "Ana",
		LastName:  "Pérez",
		Username:  "anap",
		Email:     "Ana@Example.com ",
		Password:  "Secret#12",
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.User.ID, "usr_"))
	assert.Equal(t, "ana@example.com", res.User.Email)
	assert.Equal(t, auth.RoleUser, res.User.Role)
	assert.True(t, res.User.IsEnabled)
	assert.False(t, res.User.IsVerified)
	assert.NotEqual(t, "Secret#12", res.User.PasswordHash)

	claims, err := f.jwt.ValidateAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "anap", claims.Subject)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.False(t, claims.IsVerified)

	require.Len(t, f.outbox.messages, 1)
	msg := f.outbox.messages[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, mail.VerificationSubject, msg.Subject)
	assert.Contains(t, msg.HTMLBody, "https://api.example.com/api/v1/auth/verify-email?token=")

	tokens := f.tokens.TokensForUser(res.User.ID)
	require.Len(t, tokens, 1)
	assert.Equal(t, tokens[0].Token, tokenFrom(t, msg))
	assert.Len(t, tokens[0].Token, auth.VerificationTokenLength)
	assert.Equal(t, f.now.Add(24*time.Hour), tokens[0].ExpiresAt)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, false)

	req := &auth.RegisterRequest{Username: "ab", Email: "nope", Password: "short"}
	_, err := f.svc.Register(context.Background(), req)
	require.ErrorIs(t, err, auth.ErrValidation)

	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	assert.Equal(t, map[string]bool{"username": true, "email": true, "password": true}, fields)
	assert.Empty(t, f.outbox.messages)
}

func TestRegister_PasswordPolicy(t *testing.T) {
	f := newFixture(t, true)

	req := registerRequest()
	req.Password = "password12"
	_, err := f.svc.Register(context.Background(), req)

	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "password", verr.Fields[0].Field)
	assert.Equal(t, "WEAK_PASSWORD", verr.Fields[0].Code)
	assert.Contains(t, verr.Fields[0].Message, "uppercase")

	req.Password = "Password#12"
	_, err = f.svc.Register(context.Background(), req)
	assert.NoError(t, err)
}

func TestRegister_Duplicates(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	sameUsername := registerRequest()
	sameUsername.Email = "other@example.com"
	_, err = f.svc.Register(context.Background(), sameUsername)
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	sameEmail := registerRequest()
	sameEmail.Username = "other"
	sameEmail.Email = "ANA@example.com"
	_, err = f.svc.Register(context.Background(), sameEmail)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestRegister_MailFailureKeepsAccount(t *testing.T) {
	f := newFixture(t, false)
	f.outbox.err = errors.New("queue down")

	res, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, err = f.users.FindByID(context.Background(), res.User.ID)
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)
	reg, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	login := &auth.LoginRequest{Username: "anap", Password: "Secret#12"}

	_, err = f.svc.Login(context.Background(), login)
	assert.ErrorIs(t, err, auth.ErrEmailNotVerified)

	require.NoError(t, f.svc.VerifyEmail(context.Background(), tokenFrom(t, f.outbox.messages[0])))

	res, err := f.svc.Login(context.Background(), login)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	claims, err := f.jwt.ValidateAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsVerified)
	assert.Equal(t, "Ana Pérez", claims.FullName)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, false)
	reg, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(context.Background(), tokenFrom(t, f.outbox.messages[0])))

	_, err = f.svc.Login(context.Background(), &auth.LoginRequest{Username: "nobody", Password: "Secret#12"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), &auth.LoginRequest{Username: "anap", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), &auth.LoginRequest{})
	assert.ErrorIs(t, err, auth.ErrValidation)

	require.NoError(t, f.users.SetEnabled(reg.User.ID, false))
	_, err = f.svc.Login(context.Background(), &auth.LoginRequest{Username: "anap", Password: "Secret#12"})
	assert.ErrorIs(t, err, auth.ErrAccountDisabled)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t, false)
	reg, err := f.svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	token := tokenFrom(t, f.outbox.messages[0])

	require.NoError(t, f.svc.VerifyEmail(context.Background(), token))

	user, err := f.svc.GetUser(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Empty(t, f.tokens.TokensForUser(reg.User.ID))

	assert.ErrorIs(t, f.svc.VerifyEmail(context.Background(), token), auth.ErrInvalidVerificationToken)
}

func TestVerifyEmail_Errors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, ""), auth.ErrInvalidVerificationToken)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "unknown"), auth.ErrInvalidVerificationToken)

	require.NoError(t, f.tokens.Create(ctx, &auth.VerificationToken{
		Token:     "orphan",
		UserID:    "usr_missing",
		ExpiresAt: f.now.Add(time.Hour),
	}))
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "orphan"), auth.ErrUserNotFound)

	_, err := f.svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	token := tokenFrom(t, f.outbox.messages[0])

	f.now = f.now.Add(auth.VerificationTokenExpiry)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, token), auth.ErrVerificationTokenExpired)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	first := tokenFrom(t, f.outbox.messages[0])

	require.NoError(t, f.svc.ResendVerification(ctx, &auth.ResendVerificationRequest{Email: "ana@example.com"}))
	require.Len(t, f.outbox.messages, 2)
	second := tokenFrom(t, f.outbox.messages[1])
	assert.NotEqual(t, first, second)

	tokens := f.tokens.TokensForUser(reg.User.ID)
	require.Len(t, tokens, 1)
	assert.Equal(t, second, tokens[0].Token)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, first), auth.ErrInvalidVerificationToken)

	require.NoError(t, f.svc.VerifyEmail(ctx, second))
}

func TestResendVerification_Silent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.svc.ResendVerification(ctx, &auth.ResendVerificationRequest{Email: "ghost@example.com"}))
	assert.Empty(t, f.outbox.messages)

	_, err := f.svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, tokenFrom(t, f.outbox.messages[0])))

	require.NoError(t, f.svc.ResendVerification(ctx, &auth.ResendVerificationRequest{Email: "ana@example.com"}))
	assert.Len(t, f.outbox.messages, 1)

	err = f.svc.ResendVerification(ctx, &auth.ResendVerificationRequest{Email: "bad"})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestGetUser_NotFound(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.GetUser(context.Background(), "usr_nope")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestVerificationLink(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, "https://api.example.com/api/v1/auth/verify-email?token=abc", f.svc.VerificationLink("abc"))
}
