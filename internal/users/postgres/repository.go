package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nlsql/nlsql/internal/users"
)

const uniqueViolation = "23505"

// Repository stores accounts in the app_user table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping users db: %w", err)
	}
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, user users.User) (users.User, error) {
	query := `
INSERT INTO app_user (id, username, password_hash, created_at)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.PasswordHash, user.CreatedAt).Scan(&user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return users.User{}, users.ErrUserExists
		}
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (users.User, error) {
	query := `
SELECT id, username, password_hash, created_at
FROM app_user
WHERE username = $1`

	var user users.User
	if err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrNotFound
		}
		return users.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
