package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"appointment-booking-api/internal/model"
)

// Session is the signed-in identity a Client acts as. It is optionally
// backed by a file so a CLI can keep it between runs.
type Session struct {
	mu    sync.RWMutex
	path  string
	state sessionState
}

type sessionState struct {
	User         *model.PublicUser `json:"user,omitempty"`
	AccessToken  string            `json:"accessToken,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
}

// NewSession returns an empty in-memory session.
func NewSession() *Session { return &Session{} }

// LoadSession reads path. A missing file yields an empty session bound to
// path, so Save creates it later.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(raw, &s.state); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return s, nil
}

// Save writes the session with owner-only permissions. In-memory
// sessions ignore it.
func (s *Session) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *Session) Set(user model.PublicUser, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sessionState{User: &user, AccessToken: accessToken, RefreshToken: refreshToken}
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sessionState{}
}

// User returns the signed-in user, or nil.
func (s *Session) User() *model.PublicUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}

func (s *Session) tokens() (access, refresh string, userID int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User != nil {
		userID = s.state.User.ID
	}
	return s.state.AccessToken, s.state.RefreshToken, userID
}

func (s *Session) LoggedIn() bool {
	access, _, _ := s.tokens()
	return access != ""
}
