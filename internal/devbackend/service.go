package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
	"github.com/aussiebroadwan/learnhub/pkg/idx"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/aussiebroadwan/learnhub/pkg/slogx"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRefresh     = errors.New("refresh token revoked")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password too short")
	ErrUnknownUser        = errors.New("user not found")
)

// AuthService issues and rotates credentials for the development backend.
type AuthService struct {
	Store      *Store
	Signer     *jwtx.EdDSASigner
	Hasher     cryptox.PasswordHasher
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login verifies the password and starts a new refresh token family.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a hash so unknown emails take as long as wrong passwords.
			_, _ = s.Hasher.Hash(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		l.Info("login rejected", slog.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(user, idx.New().String())
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded", slog.String("user_id", user.ID))
	return &AuthResult{TokenPair: *pair, User: user.Profile()}, nil
}

// Register creates a STUDENT account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*AuthResult, error) {
	user, err := s.createUser(email, password, fullName, RoleStudent)
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(user, idx.New().String())
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return &AuthResult{TokenPair: *pair, User: user.Profile()}, nil
}

// Seed creates a user with an explicit role. Existing emails are left alone.
func (s *AuthService) Seed(email, password, fullName, role string) (Profile, error) {
	if existing, err := s.Store.GetUserByEmail(email); err == nil {
		return existing.Profile(), nil
	}
	user, err := s.createUser(email, password, fullName, strings.ToUpper(role))
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

func (s *AuthService) createUser(email, password, fullName, role string) (User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
	}
	if err := s.Store.CreateUser(user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return user, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated away revokes its whole family, since only a leaked copy can do that.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}

	hash := cryptox.FingerprintToken(refreshToken)
	current, err := s.Store.GetRefreshToken(hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if current.Revoked {
		n := s.Store.RevokeFamily(current.FamilyID)
		l.Warn("refresh token reuse detected",
			slog.String("user_id", current.UserID),
			slog.String("family_id", current.FamilyID),
			slog.Int("revoked", n),
		)
		return nil, ErrInvalidRefresh
	}
	if now.After(current.ExpiresAt) {
		return nil, ErrInvalidRefresh
	}

	user, err := s.Store.GetUserByID(current.UserID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	access, err := s.signAccess(user, now)
	if err != nil {
		return nil, err
	}
	opaque, next, err := s.newRefresh(user.ID, current.FamilyID, now)
	if err != nil {
		return nil, err
	}

	if err := s.Store.RotateRefreshToken(hash, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	l.Debug("refresh token rotated", slog.String("user_id", user.ID))
	return &TokenPair{AccessToken: access, RefreshToken: opaque}, nil
}

// Logout revokes the presented refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return
	}
	s.Store.RevokeRefreshToken(cryptox.FingerprintToken(refreshToken))
	slogx.FromContext(ctx).Debug("refresh token revoked")
}

func (s *AuthService) Profile(_ context.Context, userID string) (Profile, error) {
	user, err := s.Store.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, ErrUnknownUser
		}
		return Profile{}, err
	}
	return user.Profile(), nil
}

func (s *AuthService) ListUsers(_ context.Context) []Profile {
	users := s.Store.ListUsers()
	out := make([]Profile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Profile())
	}
	return out
}

func (s *AuthService) issue(user User, familyID string) (*TokenPair, error) {
	now := s.now()

	access, err := s.signAccess(user, now)
	if err != nil {
		return nil, err
	}
	opaque, rt, err := s.newRefresh(user.ID, familyID, now)
	if err != nil {
		return nil, err
	}
	s.Store.InsertRefreshToken(rt)

	return &TokenPair{AccessToken: access, RefreshToken: opaque}, nil
}

func (s *AuthService) signAccess(user User, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(user.ID, user.Email, user.Role, s.Issuer, s.AccessTTL, now)
	claims.Name = user.FullName

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) newRefresh(userID, familyID string, now time.Time) (string, RefreshToken, error) {
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", RefreshToken{}, err
	}
	return opaque, RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(opaque),
		FamilyID:  familyID,
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
	}, nil
}
