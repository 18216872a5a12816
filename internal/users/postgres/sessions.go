package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nlsql/nlsql/internal/users"
)

// Session methods persist login sessions in user_session so tokens survive
// API restarts and are shared between replicas.

func (r *Repository) SaveSession(ctx context.Context, session users.StoredSession) error {
	query := `
INSERT INTO user_session (token_hash, username, expires_at)
VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, session.TokenHash, session.Username, session.ExpiresAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, tokenHash string) (users.StoredSession, error) {
	query := `
SELECT token_hash, username, expires_at
FROM user_session
WHERE token_hash = $1`

	var session users.StoredSession
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.TokenHash,
		&session.Username,
		&session.ExpiresAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.StoredSession{}, users.ErrSessionNotFound
		}
		return users.StoredSession{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *Repository) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_session WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_session WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return removed, nil
}
