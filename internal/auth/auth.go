// Package auth verifies the bearer tokens issued by the school's auth
// service, signs the short-lived tokens that let the headless browser load a
// render page, and gates exports behind a template's export password.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gilkh/livret/internal/logging"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrWrongPurpose    = errors.New("token not valid for this resource")
	ErrInvalidPassword = errors.New("invalid export password")
	ErrTooManyAttempts = errors.New("too many export password attempts")
)

// PurposeRender marks tokens that only open the render page of one assignment.
const PurposeRender = "render"

// Claims carried by both API and render tokens.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 JWTs with one shared secret.
type Tokens struct {
	secret    []byte
	renderTTL time.Duration
	now       func() time.Time
}

// NewTokens uses secret, or a random one when empty. A random secret means
// tokens from the external auth service cannot be verified, which is only
// acceptable for local use.
func NewTokens(secret string, renderTTL time.Duration) *Tokens {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate jwt secret: %v", err))
		}
		logging.WarnWithComponent(logging.ComponentAuth, "JWT_SECRET not set, using a random secret; API bearer tokens will be rejected")
	}
	if renderTTL <= 0 {
		renderTTL = 2 * time.Minute
	}
	return &Tokens{secret: key, renderTTL: renderTTL, now: time.Now}
}

// Issue signs a token for subject. The API normally receives tokens from the
// auth service; this is used by the CLI and tests.
func (t *Tokens) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// RenderToken signs a token that opens the render page of one assignment.
func (t *Tokens) RenderToken(assignmentID string) (string, error) {
	now := t.now()
	claims := Claims{
		Purpose: PurposeRender,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   assignmentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.renderTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, algorithm and expiry.
func (t *Tokens) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyRender accepts only a render token for assignmentID.
func (t *Tokens) VerifyRender(token, assignmentID string) error {
	claims, err := t.Verify(token)
	if err != nil {
		return err
	}
	if claims.Purpose != PurposeRender || claims.Subject != assignmentID {
		return ErrWrongPurpose
	}
	return nil
}
