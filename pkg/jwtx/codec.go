package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec reads token payloads without verifying signatures; the backend is the
// trust boundary and re-verifies every token it receives.
type Codec struct {
	// Now defaults to time.Now.
	Now func() time.Time

	// Leeway treats a token as still valid this long past its exp.
	Leeway time.Duration

	// RequireExpiry makes tokens without an exp claim count as expired.
	// The default (false) treats them as non-expiring.
	RequireExpiry bool
}

var unverified = jwt.NewParser()

// Decode parses the token payload. It returns nil for anything that is not a
// well-formed JWT; garbage tokens are an expected condition, not an error.
func Decode(token string) *Claims {
	if token == "" {
		return nil
	}

	claims := &Claims{}
	if _, _, err := unverified.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// Decode is the package-level Decode; it exists so callers can hold a Codec.
func (c Codec) Decode(token string) *Claims {
	return Decode(token)
}

// IsExpired reports whether token's exp lies in the past. Tokens with no
// decodable exp follow RequireExpiry.
func (c Codec) IsExpired(token string) bool {
	return c.ClaimsExpired(Decode(token))
}

// ClaimsExpired is IsExpired for already decoded claims.
func (c Codec) ClaimsExpired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return c.RequireExpiry
	}
	return c.now().After(claims.ExpiresAt.Add(c.Leeway))
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
