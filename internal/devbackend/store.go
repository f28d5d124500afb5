package devbackend

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Store keeps users and refresh tokens in memory. The development backend
// is throwaway by design; restarting it logs every client out.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*User // by ID
	byEmail  map[string]string
	refreshs map[string]*RefreshToken // by token hash
}

func NewStore() *Store {
	return &Store{
		users:    map[string]*User{},
		byEmail:  map[string]string{},
		refreshs: map[string]*RefreshToken{},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrDuplicate
	}
	u.Email = email
	s.users[u.ID] = &u
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return *s.users[id], nil
}

func (s *Store) GetUserByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// ListUsers returns users ordered by creation time.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) InsertRefreshToken(rt RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshs[rt.TokenHash] = &rt
}

func (s *Store) GetRefreshToken(hash string) (RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.refreshs[hash]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return *rt, nil
}

// RotateRefreshToken revokes the token with oldHash and stores next in one
// step. It fails with ErrNotFound if the old token is gone or already revoked,
// so two concurrent rotations of the same token cannot both succeed.
func (s *Store) RotateRefreshToken(oldHash string, next RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refreshs[oldHash]
	if !ok || old.Revoked {
		return ErrNotFound
	}
	old.Revoked = true
	s.refreshs[next.TokenHash] = &next
	return nil
}

func (s *Store) RevokeRefreshToken(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.refreshs[hash]; ok {
		rt.Revoked = true
	}
}

// RevokeFamily revokes every token descending from the same login.
func (s *Store) RevokeFamily(familyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rt := range s.refreshs {
		if rt.FamilyID == familyID && !rt.Revoked {
			rt.Revoked = true
			n++
		}
	}
	return n
}

// PruneFamilies drops every family without a usable token at now, i.e.
// one whose members are all revoked or expired.
func (s *Store) PruneFamilies(now time.Time) (families, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[string]bool{}
	for _, rt := range s.refreshs {
		if !rt.Revoked && !now.After(rt.ExpiresAt) {
			live[rt.FamilyID] = true
		}
	}

	dead := map[string]bool{}
	for hash, rt := range s.refreshs {
		if live[rt.FamilyID] {
			continue
		}
		delete(s.refreshs, hash)
		dead[rt.FamilyID] = true
		tokens++
	}
	return len(dead), tokens
}

// FamilySize returns how many tokens of familyID are held, revoked or not.
func (s *Store) FamilySize(familyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rt := range s.refreshs {
		if rt.FamilyID == familyID {
			n++
		}
	}
	return n
}
