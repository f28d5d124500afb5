package session

import (
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
)

// RolePrefix is prepended to every normalized role name.
const RolePrefix = "ROLE_"

// Identity is the authenticated principal derived from the access token,
// optionally enriched with the profile returned by login or register.
// It is never persisted.
type Identity struct {
	Subject  string `json:"subject"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`

	// Roles holds normalized role names, e.g. "ROLE_ADMIN".
	Roles []string `json:"roles"`

	// ExpiresAt is nil when the token carries no exp claim.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Profile is the user object some auth responses carry next to the tokens.
type Profile struct {
	ID       string   `json:"id,omitempty"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"fullName,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// NormalizeRole upper-cases name and adds RolePrefix unless already present.
// An empty name stays empty.
func NormalizeRole(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, RolePrefix) {
		return name
	}
	return RolePrefix + name
}

// NormalizeRoles normalizes names, dropping empties and duplicates.
func NormalizeRoles(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		r := NormalizeRole(n)
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// IdentityFromClaims builds an identity from decoded token claims.
func IdentityFromClaims(claims *jwtx.Claims) *Identity {
	if claims == nil {
		return nil
	}
	return &Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		FullName:  claims.Name,
		Roles:     NormalizeRoles(claims.RoleNames()...),
		ExpiresAt: claims.ExpiresAtTime(),
	}
}

// Merge returns a copy of i with profile fields overriding the token's.
// Profile roles win over token roles: the roles list first, then the single role.
func (i *Identity) Merge(p *Profile) *Identity {
	if i == nil {
		return nil
	}
	out := i.Clone()
	if p == nil {
		return out
	}

	if p.ID != "" {
		out.Subject = p.ID
	}
	if p.Email != "" {
		out.Email = p.Email
	}
	if p.FullName != "" {
		out.FullName = p.FullName
	}

	switch {
	case len(NormalizeRoles(p.Roles...)) > 0:
		out.Roles = NormalizeRoles(p.Roles...)
	case p.Role != "":
		out.Roles = NormalizeRoles(p.Role)
	}
	return out
}

// HasRole reports exact, case-sensitive membership of role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Roles = slices.Clone(i.Roles)
	if i.ExpiresAt != nil {
		t := *i.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// HasRole is the nil-safe role check used for UI and route gating.
func HasRole(identity *Identity, role string) bool {
	return identity.HasRole(role)
}
