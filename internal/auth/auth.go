package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCostFactor = 12
)

// HashPassword generates a bcrypt hash for the given password, for use in
// SMSC connection definitions.
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCostFactor)
	if err != nil {
		slog.Error("Failed to generate bcrypt hash for password", slog.Any("error", err))
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("Error comparing password hash", slog.Any("error", err))
		}
		return false
	}
	return true
}

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// CheckPassword authenticates a bind password against the configured value,
// which may be plain text or a bcrypt hash.
func CheckPassword(supplied, configured string) bool {
	if IsHash(configured) {
		return CheckPasswordHash(supplied, configured)
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}
