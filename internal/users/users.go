package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidInput       = errors.New("username and password are required")
	ErrSessionNotFound    = errors.New("session not found")
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository persists user accounts. CreateUser returns ErrUserExists when the
// username is taken; GetUserByUsername returns ErrNotFound for unknown names.
type Repository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
}

type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredSession is the persisted form of a Session. Only the SHA-256 of the
// token is kept so a leaked session table cannot be replayed.
type StoredSession struct {
	TokenHash string
	Username  string
	ExpiresAt time.Time
}

// SessionStore persists login sessions. GetSession returns ErrSessionNotFound
// for unknown hashes and leaves expiry checks to the caller.
type SessionStore interface {
	SaveSession(ctx context.Context, session StoredSession) error
	GetSession(ctx context.Context, tokenHash string) (StoredSession, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
