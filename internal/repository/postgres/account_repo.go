package postgres

import (
	"context"
	"errors"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, phone, full_name, pwd_hash, salt_auth, is_staff, is_superuser, created_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, phone, full_name, pwd_hash, salt_auth, is_staff, is_superuser)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		a.ID, a.Phone, a.FullName, a.PwdHash, a.SaltAuth, a.IsStaff, a.IsSuperuser,
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByPhone selects an account by its login identifier.
func (r *AccountRepo) GetByPhone(ctx context.Context, phone string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE phone=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, phone))
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Phone, &a.FullName, &a.PwdHash, &a.SaltAuth, &a.IsStaff, &a.IsSuperuser, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
