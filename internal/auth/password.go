package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// specialCharacters satisfy the special character rule of the strength policy.
const specialCharacters = `!@#$%^&*(),.?":{}|<>`

const (
	// VerificationTokenLength is the number of characters in a verification token.
	VerificationTokenLength = 32

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// HashPassword hashes a password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordPolicyViolations lists the strength rules password does not meet.
// An empty result means the password is acceptable.
func PasswordPolicyViolations(password string) []string {
	var missing []string

	if len([]rune(password)) < 8 {
		missing = append(missing, "at least 8 characters")
	}

	var upper bool
	var digits int
	for _, r := range password {
		if unicode.IsUpper(r) {
			upper = true
		}
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if !upper {
		missing = append(missing, "at least one uppercase letter")
	}
	if digits < 2 {
		missing = append(missing, "at least two digits")
	}
	if !strings.ContainsAny(password, specialCharacters) {
		missing = append(missing, "at least one special character")
	}

	return missing
}

// GenerateVerificationToken returns a random alphanumeric token.
func GenerateVerificationToken() (string, error) {
	limit := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, VerificationTokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating verification token: %w", err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
