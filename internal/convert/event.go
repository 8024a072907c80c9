// Package convert maps domain entities to their wire representations.
package convert

import (
	"encoding/json"

	"github.com/and161185/orderhub/internal/model"
)

// ToOrderEvent summarises a committed order for broadcast.
func ToOrderEvent(o model.Order, owner model.Account) model.OrderEvent {
	items := make([]model.OrderEventItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, model.OrderEventItem{ProductName: it.ProductName, Quantity: it.Quantity})
	}
	return model.OrderEvent{
		ID:        o.ID,
		User:      owner.DisplayName(),
		CreatedAt: o.CreatedAt,
		Items:     items,
	}
}

// OrderEventFrame renders the frame group members receive: {"order": {...}}.
func OrderEventFrame(evt model.OrderEvent) ([]byte, error) {
	return json.Marshal(struct {
		Order model.OrderEvent `json:"order"`
	}{Order: evt})
}

// OrderJSON is the REST representation of an order.
type OrderJSON struct {
	ID        int64           `json:"id"`
	AccountID string          `json:"user_id"`
	CreatedAt string          `json:"created_at"`
	IsPaid    bool            `json:"is_paid"`
	Items     []OrderItemJSON `json:"items"`
}

// OrderItemJSON is one line of OrderJSON.
type OrderItemJSON struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// ToOrderJSON converts an order for HTTP responses.
func ToOrderJSON(o model.Order) OrderJSON {
	items := make([]OrderItemJSON, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemJSON{
			ProductID:   it.ProductID.String(),
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
		})
	}
	return OrderJSON{
		ID:        o.ID,
		AccountID: o.AccountID.String(),
		CreatedAt: o.CreatedAt.UTC().Format(timeLayout),
		IsPaid:    o.IsPaid,
		Items:     items,
	}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"
