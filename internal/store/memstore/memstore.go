// Package memstore is an in-process implementation of the store
// contracts. It backs the test suites and STORAGE=memory runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	users        map[int64]*model.User
	branches     map[int64]*model.Branch
	appointments map[int64]*model.Appointment
	audits       []model.AppointmentAudit
	tokens       map[string]*model.RefreshToken
	seq          map[string]int64 // per-table sequences
	now          func() time.Time
}

func New() *Store {
	return &Store{
		users:        make(map[int64]*model.User),
		branches:     make(map[int64]*model.Branch),
		appointments: make(map[int64]*model.Appointment),
		tokens:       make(map[string]*model.RefreshToken),
		seq:          make(map[string]int64),
		now:          time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) id(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func notFound(what string, id any) error {
	return &store.DBError{Sentinel: store.ErrNotFound, Cause: fmt.Errorf("%s %v", what, id)}
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.users {
		if ex.Username == u.Username {
			return &store.DBError{Sentinel: store.ErrDuplicate, Cause: fmt.Errorf("username %q", u.Username), Constraint: "users_username_key"}
		}
		if strings.EqualFold(ex.Email, u.Email) {
			return &store.DBError{Sentinel: store.ErrDuplicate, Cause: fmt.Errorf("email %q", u.Email), Constraint: "users_email_key"}
		}
	}
	u.ID = s.id("users")
	u.CreatedAt = s.now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user", username)
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountUsers(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// ---- branches ----

func (s *Store) CreateBranch(_ context.Context, b *model.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id("branches")
	cp := *b
	s.branches[b.ID] = &cp
	return nil
}

func (s *Store) ListBranches(context.Context) ([]model.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetBranch(_ context.Context, id int64) (*model.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[id]
	if !ok {
		return nil, notFound("branch", id)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) CountBranches(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.branches), nil
}

// ---- refresh tokens ----

func (s *Store) CreateRefreshToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.tokens[id] = &model.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rt := range s.tokens {
		if rt.TokenHash == tokenHash {
			cp := *rt
			return &cp, nil
		}
	}
	return nil, notFound("refresh token", "by hash")
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID, newID string, userID int64, newHash string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldID]
	if !ok || old.Revoked {
		return &store.DBError{Sentinel: store.ErrConflict, Cause: fmt.Errorf("refresh token %s already rotated", oldID)}
	}
	old.Revoked = true
	replaced := newID
	old.ReplacedBy = &replaced
	s.tokens[newID] = &model.RefreshToken{
		ID:        newID,
		UserID:    userID,
		TokenHash: newHash,
		ExpiresAt: newExpiry,
		CreatedAt: s.now().UTC(),
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokens(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (s *Store) PurgeRefreshTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rt := range s.tokens {
		if rt.ExpiresAt.Before(cutoff) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}
