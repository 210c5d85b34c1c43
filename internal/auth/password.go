package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gilkh/livret/internal/middleware"
)

// HashPassword returns the bcrypt hash stored as a template's export password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// PasswordGate checks export passwords, limiting attempts per client.
type PasswordGate struct {
	limiter *middleware.KeyedLimiter
}

func NewPasswordGate(limiter *middleware.KeyedLimiter) *PasswordGate {
	return &PasswordGate{limiter: limiter}
}

// Check compares password with hash. Every attempt, right or wrong, counts
// against client's budget.
func (g *PasswordGate) Check(client, hash, password string) error {
	if g.limiter != nil && !g.limiter.Allow(client) {
		return ErrTooManyAttempts
	}
	if hash == "" || password == "" {
		return ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
