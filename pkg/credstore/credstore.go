//go:generate mockgen -destination=mocks/backend_mock.go -package=mocks . Backend

// Package credstore persists the session's access and refresh tokens.
//
// A Store is deliberately dumb: two independent string slots under fixed keys,
// each settable and clearable on its own. It never looks inside a token; expiry
// is a property of the token's claims and belongs to jwtx. Durability comes
// from the Backend, so a file, SQLite or Redis backend lets a restarted
// process resume the previous session silently.
package credstore

import (
	"context"
	"fmt"
)

// Fixed, namespaced keys for the two slots.
const (
	KeyAccessToken  = "learnhub.auth.accessToken"
	KeyRefreshToken = "learnhub.auth.refreshToken"
)

// Backend is a string key-value store. Get reports ok=false for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store exposes the six token operations plus ClearAll over a Backend.
// An empty string means "absent" in both directions.
type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// SetAccessToken stores token; an empty token clears the slot.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	return s.set(ctx, KeyAccessToken, token)
}

func (s *Store) ClearAccessToken(ctx context.Context) error {
	return s.clear(ctx, KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// SetRefreshToken stores token; an empty token clears the slot.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.set(ctx, KeyRefreshToken, token)
}

func (s *Store) ClearRefreshToken(ctx context.Context) error {
	return s.clear(ctx, KeyRefreshToken)
}

// ClearAll clears both slots. Both deletes are attempted even if the first fails.
func (s *Store) ClearAll(ctx context.Context) error {
	errAccess := s.clear(ctx, KeyAccessToken)
	errRefresh := s.clear(ctx, KeyRefreshToken)
	if errAccess != nil {
		return errAccess
	}
	return errRefresh
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("credstore: read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.clear(ctx, key)
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("credstore: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("credstore: clear %s: %w", key, err)
	}
	return nil
}
