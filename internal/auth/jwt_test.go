package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshield360/ecoshield/internal/auth"
)

const (
	testIssuer   = "https://api.ecoshield360.org"
	testAudience = "ecoshield-api"
)

func newJWT(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", testIssuer, testAudience)

	user := &auth.User{
		ID:         "usr_test123",
		FirstName:  "Ana",
		LastName:   "Pérez",
		Username:   "anap",
		Email:      "ana@example.com",
		Role:       auth.RoleUser,
		IsVerified: true,
	}

	token, expiresAt, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.AccessTokenExpiry), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "anap", claims.Subject)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "Ana Pérez", claims.FullName)
	assert.Equal(t, user.Email, claims.Email)
	assert.True(t, claims.IsVerified)
	assert.Equal(t, []string{"ROLE_USER"}, claims.Authorities)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotNil(t, claims.NotBefore)
	assert.NotNil(t, claims.IssuedAt)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", testIssuer, testAudience)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newJWT("key-one", testIssuer, testAudience).GenerateAccessToken(&auth.User{ID: "usr_test123"})
	require.NoError(t, err)

	_, err = newJWT("key-two", testIssuer, testAudience).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	token, _, err := newJWT("test-key", "issuer-one", testAudience).GenerateAccessToken(&auth.User{ID: "usr_test123"})
	require.NoError(t, err)

	_, err = newJWT("test-key", "issuer-two", testAudience).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_WrongAudience(t *testing.T) {
	token, _, err := newJWT("test-key", testIssuer, "audience-one").GenerateAccessToken(&auth.User{ID: "usr_test123"})
	require.NoError(t, err)

	_, err = newJWT("test-key", testIssuer, "audience-two").ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-key",
		Issuer:     testIssuer,
		Audience:   testAudience,
		Now:        func() time.Time { return now },
	})

	token, expiresAt, err := svc.GenerateAccessToken(&auth.User{ID: "usr_test123", Username: "ana"})
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Hour), expiresAt)

	now = issued.Add(2 * time.Hour)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}
