package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// SessionRepo implements SessionRepository using PostgreSQL. The unique
// constraint on sessions.account_id makes the acquire a single conditional write.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// TryAcquire inserts a session, or takes over an expired one, in one statement.
// When a live session exists the upsert's WHERE filters the row out, nothing
// is returned and the existing row is left untouched.
func (r *SessionRepo) TryAcquire(
	ctx context.Context, accountID uuid.UUID, token string, expiresAt *time.Time,
) (*model.Session, error) {
	const q = `
INSERT INTO sessions (token, account_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (account_id) DO UPDATE
SET token = EXCLUDED.token, created_at = now(), expires_at = EXCLUDED.expires_at
WHERE sessions.expires_at IS NOT NULL AND sessions.expires_at <= now()
RETURNING token, account_id, created_at, expires_at`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, q, token, accountID, expiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionActive
		}
		return nil, err
	}
	return s, nil
}

// Get loads the account's session unless it has expired.
func (r *SessionRepo) Get(ctx context.Context, accountID uuid.UUID) (*model.Session, error) {
	const q = `
SELECT token, account_id, created_at, expires_at FROM sessions
WHERE account_id=$1 AND (expires_at IS NULL OR expires_at > now())`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, q, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s   model.Session
		exp pgtype.Timestamptz
	)
	if err := row.Scan(&s.Token, &s.AccountID, &s.CreatedAt, &exp); err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		s.ExpiresAt = &t
	}
	return &s, nil
}

// Release deletes all sessions of the account.
func (r *SessionRepo) Release(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const q = `DELETE FROM sessions WHERE account_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
