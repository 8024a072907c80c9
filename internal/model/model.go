// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// Account is an identity able to log in. Phone is immutable once created.
type Account struct {
	ID          uuid.UUID // PK
	Phone       string    // unique login identifier
	FullName    string
	PwdHash     []byte // Argon2id(password, SaltAuth)
	SaltAuth    []byte
	IsStaff     bool
	IsSuperuser bool
	CreatedAt   time.Time
}

// DisplayName renders the account the way order events show it.
func (a Account) DisplayName() string {
	return a.FullName + " (" + a.Phone + ")"
}

// Session is the single active login record of an account.
type Session struct {
	Token     string
	AccountID uuid.UUID
	CreatedAt time.Time
	ExpiresAt *time.Time // nil: never expires
}

// Product is a priced catalog entry referenced by order items.
type Product struct {
	ID           uuid.UUID
	Name         string
	Price        decimal.Decimal
	SpecialPrice *decimal.Decimal
}

// OrderItem links an order to a product. Quantity is always >= 1.
type OrderItem struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
}

// Order is a persisted purchase owned by an account.
type Order struct {
	ID        int64
	AccountID uuid.UUID
	CreatedAt time.Time
	IsPaid    bool
	Items     []OrderItem
}

// NewOrder is a validated order-creation intent for a single product.
type NewOrder struct {
	Name         string
	Price        decimal.Decimal
	SpecialPrice *decimal.Decimal
}

// OrderEvent is the broadcast payload describing a just-created order.
type OrderEvent struct {
	ID        int64            `json:"id"`
	User      string           `json:"user"`
	CreatedAt time.Time        `json:"created_at"`
	Items     []OrderEventItem `json:"items"`
}

// OrderEventItem summarises one order line.
type OrderEventItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}
