package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter with a sliding failure window and lockout.
type PG struct {
	db       querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. Any *pgxpool.Pool satisfies q.
func NewPG(q querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{db: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashAddr returns a stable hash of the client host so raw addresses are never stored.
// The port is dropped: one client reconnecting from new ports is still one client.
func HashAddr(addr string) []byte {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, identifier, addr string) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE identifier=$1 AND addr_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, identifier, HashAddr(addr)).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := blockedUntil.Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (identifier, addr).
func (l *PG) Success(ctx context.Context, identifier, addr string) error {
	const q = `DELETE FROM login_attempts WHERE identifier=$1 AND addr_hash=$2`
	_, err := l.db.Exec(ctx, q, identifier, HashAddr(addr))
	return err
}

// Failure records a failed attempt. Once maxFails failures land inside the
// window the pair is blocked for blockFor.
func (l *PG) Failure(ctx context.Context, identifier, addr string) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (identifier, addr_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (identifier, addr_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - login_attempts.updated_at > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	ipHash := HashAddr(addr)
	var fails int
	if err := l.db.QueryRow(ctx, q, identifier, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if l.maxFails <= 0 || fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE login_attempts SET blocked_until=$3 WHERE identifier=$1 AND addr_hash=$2`
	if _, err := l.db.Exec(ctx, upd, identifier, ipHash, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
