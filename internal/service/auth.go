package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/auth"
	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/store"
)

type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginRecorder counts login attempts by outcome.
type LoginRecorder interface {
	RecordLogin(result string)
}

type AuthService struct {
	users  UserStore
	tokens TokenStore
	cfg    AuthConfig
	rec    LoginRecorder
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewAuthService(users UserStore, tokens TokenStore, cfg AuthConfig, rec LoginRecorder, log logrus.FieldLogger) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = auth.DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logging.Discard()
	}
	return &AuthService{users: users, tokens: tokens, cfg: cfg, rec: rec, log: log, now: time.Now}
}

// TokenPair is what a successful login, registration or refresh returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type Session struct {
	User model.PublicUser
	TokenPair
}

type Registration struct {
	Username string
	Email    string
	Password string
	FullName string
}

func (s *AuthService) recordLogin(result string) {
	if s.rec != nil {
		s.rec.RecordLogin(result)
	}
}

// Login checks credentials against an active account.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr(err, "login")
	}
	if u == nil || !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		s.recordLogin("failure")
		logging.WithContext(ctx, s.log).WithField("username", username).Warn("failed login")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	s.recordLogin("success")
	return &Session{User: u.Public(), TokenPair: *pair}, nil
}

// Register creates an active User-role account and signs it in. Username
// clashes are reported before email clashes.
func (s *AuthService) Register(ctx context.Context, r Registration) (*Session, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)

	taken, err := s.users.UsernameExists(ctx, r.Username)
	if err != nil {
		return nil, storeErr(err, "register")
	}
	if taken {
		return nil, ErrDuplicateUsername
	}
	taken, err = s.users.EmailExists(ctx, r.Email)
	if err != nil {
		return nil, storeErr(err, "register")
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(r.FullName),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// lost a race with a concurrent registration
		switch store.DuplicateField(err) {
		case "username":
			return nil, ErrDuplicateUsername
		case "email":
			return nil, ErrDuplicateEmail
		}
		return nil, storeErr(err, "register")
	}
	logging.WithContext(ctx, s.log).WithField("username", u.Username).Info("user registered")

	pair, err := s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u.Public(), TokenPair: *pair}, nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*TokenPair, error) {
	access, err := auth.MakeToken(u, s.cfg.Secret, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if _, err := s.tokens.CreateRefreshToken(ctx, u.ID, hash, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return nil, storeErr(err, "store refresh token")
	}
	return &TokenPair{AccessToken: access, RefreshToken: raw, ExpiresIn: s.cfg.AccessTTL}, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated revokes every token of its owner.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	rt, err := s.tokens.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, storeErr(err, "refresh")
	}

	if rt.Revoked {
		logging.WithContext(ctx, s.log).WithField("user_id", rt.UserID).Warn("refresh token reuse, revoking all sessions")
		if err := s.tokens.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			return nil, storeErr(err, "revoke tokens")
		}
		return nil, ErrInvalidToken
	}
	if s.now().After(rt.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, storeErr(err, "refresh")
	}
	if !u.IsActive {
		return nil, ErrInvalidToken
	}

	access, err := auth.MakeToken(u, s.cfg.Secret, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	newRaw, newHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	err = s.tokens.RotateRefreshToken(ctx, rt.ID, uuid.New().String(), u.ID, newHash, s.now().Add(s.cfg.RefreshTTL))
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, storeErr(err, "rotate refresh token")
	}

	return &Session{
		User:      u.Public(),
		TokenPair: TokenPair{AccessToken: access, RefreshToken: newRaw, ExpiresIn: s.cfg.AccessTTL},
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return storeErr(s.tokens.RevokeAllRefreshTokens(ctx, userID), "logout")
}

func (s *AuthService) User(ctx context.Context, id int64) (*model.PublicUser, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("user %d", id))
	}
	p := u.Public()
	return &p, nil
}

func (s *AuthService) UserByUsername(ctx context.Context, username string) (*model.PublicUser, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("user %q", username))
	}
	p := u.Public()
	return &p, nil
}
