// Package auth registers operators and issues the bearer tokens that guard
// the dashboard API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultTTL is the access token lifetime.
const DefaultTTL = time.Hour

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l.With("component", "auth") }
}

// WithTTL sets the access token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the clock used for token times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// Service stores users and tracks revoked tokens.
type Service struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	log    *slog.Logger

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewService migrates the users table and returns a Service signing
// tokens with secret.
func NewService(db *gorm.DB, secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &Service{
		db:      db,
		secret:  []byte(secret),
		ttl:     DefaultTTL,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		log:     slog.Default().With("component", "auth"),
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return s, nil
}

// Register creates a user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, ErrInvalidUsername
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing > 0 {
		return nil, ErrUserExists
	}

	hash, err := hashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		Name:         strings.TrimSpace(req.Name),
		Age:          req.Age,
		Height:       req.Height,
		Weight:       req.Weight,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		s.log.Error("failed to create user", "username", username, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("login with unknown username", "username", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := checkPassword(user.PasswordHash, req.Password); err != nil {
		s.log.Warn("invalid password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.issue(&user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("user logged in", "user_id", user.ID)
	return &Session{User: &user, AccessToken: token, TokenType: "Bearer", ExpiresAt: exp}, nil
}

// Logout revokes token until it would have expired.
func (s *Service) Logout(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return ErrUnauthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	s.log.Info("user logged out", "user_id", claims.Subject)
	return nil
}

// CurrentUser resolves the user behind token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, ErrUnauthenticated
	}

	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.Subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}
