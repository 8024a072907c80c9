package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderRepo implements OrderRepository using PostgreSQL.
type OrderRepo struct{ db *DB }

// NewOrderRepo constructs an order repository.
func NewOrderRepo(db *DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateSingleItem writes product, order and item in one transaction so that a
// failure at any step leaves no partial rows behind.
func (r *OrderRepo) CreateSingleItem(
	ctx context.Context, accountID uuid.UUID, in model.NewOrder, mode repository.ProductMode,
) (*model.Order, error) {
	const insOrder = `INSERT INTO orders (account_id) VALUES ($1) RETURNING id, created_at, is_paid`
	const insItem = `INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1,$2,$3)`

	var order *model.Order
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		productID, err := resolveProduct(ctx, tx, in, mode)
		if err != nil {
			return err
		}

		o := model.Order{AccountID: accountID}
		if err := tx.QueryRow(ctx, insOrder, accountID).Scan(&o.ID, &o.CreatedAt, &o.IsPaid); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		item := model.OrderItem{ProductID: productID, ProductName: in.Name, Quantity: 1}
		if _, err := tx.Exec(ctx, insItem, o.ID, productID, item.Quantity); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		o.Items = []model.OrderItem{item}
		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func resolveProduct(ctx context.Context, tx pgx.Tx, in model.NewOrder, mode repository.ProductMode) (uuid.UUID, error) {
	const sel = `
SELECT id FROM products
WHERE name=$1 AND price=$2 AND special_price IS NOT DISTINCT FROM $3
ORDER BY id LIMIT 1`
	const ins = `INSERT INTO products (id, name, price, special_price) VALUES ($1,$2,$3,$4)`

	price := in.Price.String()
	special := decimalArg(in.SpecialPrice)

	if mode == repository.ProductModeReuse {
		var id uuid.UUID
		err := tx.QueryRow(ctx, sel, in.Name, price, special).Scan(&id)
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return uuid.Nil, fmt.Errorf("lookup product: %w", err)
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, ins, id, in.Name, price, special); err != nil {
		return uuid.Nil, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// decimalArg renders an optional NUMERIC parameter in text form.
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
