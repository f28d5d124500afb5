package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes used by the development backend.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Claims are the access-token claims issued by the learnhub backend. Role
// information arrives either as a single "role" or as a "roles" list (a bare
// string is accepted for "roles" too); callers normalize, the codec does not.
type Claims struct {
	jwt.RegisteredClaims

	Email string           `json:"email,omitempty"`
	Name  string           `json:"name,omitempty"`
	Role  string           `json:"role,omitempty"`
	Roles jwt.ClaimStrings `json:"roles,omitempty"`
}

// NewAccessClaims builds the claims for an access token.
func NewAccessClaims(subject, email, role, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email: email,
		Role:  role,
		Roles: jwt.ClaimStrings{role},
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// RoleNames returns the raw role values from both claim shapes, list first,
// without duplicates.
func (c *Claims) RoleNames() []string {
	candidates := append([]string{}, c.Roles...)
	candidates = append(candidates, c.Role)

	names := make([]string, 0, len(candidates))
	for _, r := range candidates {
		if r != "" && !slices.Contains(names, r) {
			names = append(names, r)
		}
	}
	return names
}

// ExpiresAtTime returns the exp claim, or nil when the token has none.
func (c *Claims) ExpiresAtTime() *time.Time {
	if c.ExpiresAt == nil {
		return nil
	}
	t := c.ExpiresAt.Time
	return &t
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
