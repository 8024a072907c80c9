package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MessageType discriminates inbound application messages.
type MessageType string

const (
	MsgCreateOrder MessageType = "create_order"
)

// messageTypes is every type clients may send; each must have a handler.
var messageTypes = []MessageType{MsgCreateOrder}

// Replies sent to the initiating connection.
const (
	replyInvalidType   = "Invalid message type"
	replyInvalidJSON   = "Invalid JSON"
	replyInvalidOrder  = "Invalid order data"
	replyOrderFailed   = "Failed to create order"
	replyRateLimited   = "Rate limit exceeded"
	replyOrderCreatedF = "Order %d created"
)

type handlerFunc func(ctx context.Context, c *conn, raw []byte)

func (g *Gateway) handlerTable() map[MessageType]handlerFunc {
	return map[MessageType]handlerFunc{
		MsgCreateOrder: g.handleCreateOrder,
	}
}

type envelope struct {
	Type MessageType `json:"type"`
}

type errorReply struct {
	Error string `json:"error"`
}

type messageReply struct {
	Message string `json:"message"`
}

func (g *Gateway) dispatch(ctx context.Context, c *conn, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(errorReply{Error: replyInvalidJSON})
		return
	}
	h, ok := g.handlers[env.Type]
	if !ok {
		c.reply(errorReply{Error: replyInvalidType})
		return
	}
	h(ctx, c, raw)
}

type createOrderPayload struct {
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	SpecialPrice *decimal.Decimal `json:"special_price"`
}

func (g *Gateway) handleCreateOrder(ctx context.Context, c *conn, raw []byte) {
	var p createOrderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.reply(errorReply{Error: replyInvalidOrder})
		return
	}
	in := model.NewOrder{Name: p.Name, Price: p.Price, SpecialPrice: p.SpecialPrice}

	// the deadline covers waiting for a slot too: the reader is blocked
	// meanwhile and stops answering pings
	octx, cancel := context.WithTimeout(ctx, g.cfg.OrderTimeout)
	defer cancel()
	var order *model.Order
	err := g.pool.Do(octx, func(ctx context.Context) error {
		var err error
		order, err = g.orders.PersistOrder(ctx, c.account, in)
		return err
	})
	switch {
	case err == nil:
		// confirm to the initiator before its own copy of the broadcast
		c.reply(messageReply{Message: fmt.Sprintf(replyOrderCreatedF, order.ID)})
		g.orders.AnnounceOrder(ctx, c.account, order)
	case errors.Is(err, errs.ErrValidation):
		c.reply(errorReply{Error: replyInvalidOrder})
	default:
		g.log.Error("create order from connection",
			zap.String("conn", c.id),
			zap.String("account", c.account.ID.String()),
			zap.Error(err),
		)
		c.reply(errorReply{Error: replyOrderFailed})
	}
}
