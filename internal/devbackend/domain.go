package devbackend

import "time"

// Role names as stored on users. Tokens carry them unprefixed.
const (
	RoleStudent    = "STUDENT"
	RoleInstructor = "INSTRUCTOR"
	RoleAdmin      = "ADMIN"
)

type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string // argon2id, PHC encoded
	Role         string
	CreatedAt    time.Time
}

// RefreshToken is the server-side record of an issued refresh token.
// Only the fingerprint of the opaque token is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string

	// FamilyID is shared by every token descending from one login, so reuse
	// of a rotated token can revoke the whole chain.
	FamilyID string

	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// TokenPair is what login, register and refresh hand out.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile is the public view of a user.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}
}

// AuthResult is the payload of login and register.
type AuthResult struct {
	TokenPair
	User Profile `json:"user"`
}
