// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/orderhub/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to login identities.
type AccountRepository interface {
	// Create inserts a new account; a taken phone yields errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByPhone loads an account by its login identifier.
	GetByPhone(ctx context.Context, phone string) (*model.Account, error)
}

// SessionRepository is the session registry. It owns the
// at-most-one-session-per-account invariant.
type SessionRepository interface {
	// TryAcquire atomically creates a session for the account unless a live one
	// exists, in which case it returns errs.ErrSessionActive and changes nothing.
	// A nil expiresAt creates a session that never expires.
	TryAcquire(ctx context.Context, accountID uuid.UUID, token string, expiresAt *time.Time) (*model.Session, error)
	// Get returns the live session of the account or errs.ErrNotFound.
	Get(ctx context.Context, accountID uuid.UUID) (*model.Session, error)
	// Release deletes every session of the account and reports how many were removed.
	Release(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// ProductMode selects how order creation resolves its product row.
type ProductMode string

const (
	// ProductModeCreate inserts a new product for every order.
	ProductModeCreate ProductMode = "create"
	// ProductModeReuse links an identical existing product when there is one.
	ProductModeReuse ProductMode = "reuse"
)

// OrderRepository persists orders together with their product and items.
type OrderRepository interface {
	// CreateSingleItem stores product, order and a quantity-1 item as one unit.
	CreateSingleItem(ctx context.Context, accountID uuid.UUID, in model.NewOrder, mode ProductMode) (*model.Order, error)
}
