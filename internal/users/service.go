package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nlsql/nlsql/internal/auth"
)

const (
	DefaultSessionTTL = time.Hour
	DefaultBcryptCost = 10

	// SessionRole is granted to every logged-in user.
	SessionRole = "query_reader"
)

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Clock      func() time.Time
	// Sessions defaults to an in-process store; sessions held there are lost
	// on restart.
	Sessions SessionStore
}

// Service registers users, issues session tokens on login and validates them.
type Service struct {
	repo     Repository
	sessions SessionStore
	ttl      time.Duration
	cost     int
	clock    func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = DefaultBcryptCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sessions == nil {
		opts.Sessions = NewMemorySessionStore()
	}
	return &Service{
		repo:     repo,
		sessions: opts.Sessions,
		ttl:      opts.SessionTTL,
		cost:     opts.BcryptCost,
		clock:    opts.Clock,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	now := s.clock()
	session := Session{Token: token, Username: user.Username, ExpiresAt: now.Add(s.ttl).UTC()}

	// Expired rows are swept on login; a failed sweep is retried on the next one.
	_, _ = s.sessions.DeleteExpiredSessions(ctx, now)
	if err := s.sessions.SaveSession(ctx, StoredSession{
		TokenHash: hashToken(token),
		Username:  session.Username,
		ExpiresAt: session.ExpiresAt,
	}); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Validate resolves a session token to an identity. It satisfies
// auth.APIKeyValidator so sessions can be chained with static keys.
func (s *Service) Validate(ctx context.Context, token string) (auth.Identity, bool) {
	hash := hashToken(token)
	stored, err := s.sessions.GetSession(ctx, hash)
	if err != nil {
		return auth.Identity{}, false
	}
	if !s.clock().Before(stored.ExpiresAt) {
		_ = s.sessions.DeleteSession(ctx, hash)
		return auth.Identity{}, false
	}
	return auth.Identity{Subject: stored.Username, Roles: []string{SessionRole}}, true
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
