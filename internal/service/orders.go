package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/orderhub/internal/convert"
	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/hub"
	"github.com/and161185/orderhub/internal/metrics"
	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NUMERIC(10,2)
var maxPrice = decimal.New(1, 8)

// OrderCreator validates, persists and announces a new order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, owner model.Account, in model.NewOrder) (*model.Order, error)
}

// OrderPipeline splits CreateOrder so a caller can answer the initiator
// after the order is committed and before it is announced.
type OrderPipeline interface {
	OrderCreator
	PersistOrder(ctx context.Context, owner model.Account, in model.NewOrder) (*model.Order, error)
	AnnounceOrder(ctx context.Context, owner model.Account, o *model.Order)
}

// Broadcaster publishes a frame to every member of a group.
type Broadcaster interface {
	Broadcast(ctx context.Context, group string, payload []byte) error
}

type OrderService struct {
	orders repository.OrderRepository
	bc     Broadcaster
	mode   repository.ProductMode
	log    *zap.Logger
	rec    metrics.Recorder
}

var (
	_ OrderPipeline = (*OrderService)(nil)
	_ Broadcaster   = (*hub.Manager)(nil)
)

// NewOrderService constructs the order pipeline.
func NewOrderService(
	orders repository.OrderRepository,
	bc Broadcaster,
	mode repository.ProductMode,
	log *zap.Logger,
	rec metrics.Recorder,
) *OrderService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if mode == "" {
		mode = repository.ProductModeCreate
	}
	return &OrderService{orders: orders, bc: bc, mode: mode, log: log, rec: rec}
}

// CreateOrder persists a single-item order and broadcasts it to the orders
// group. A failed broadcast is logged; the committed order is still returned.
func (s *OrderService) CreateOrder(ctx context.Context, owner model.Account, in model.NewOrder) (*model.Order, error) {
	o, err := s.PersistOrder(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	s.AnnounceOrder(ctx, owner, o)
	return o, nil
}

// PersistOrder validates in and commits the order without announcing it.
// Prices are rounded half-even to cents, as the NUMERIC(10,2) columns store them.
func (s *OrderService) PersistOrder(ctx context.Context, owner model.Account, in model.NewOrder) (*model.Order, error) {
	in, err := normalizeNewOrder(in)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.CreateSingleItem(ctx, owner.ID, in, s.mode)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.rec.RecordOrderCreated()
	return o, nil
}

// AnnounceOrder broadcasts o to the orders group. Failures are logged only.
func (s *OrderService) AnnounceOrder(ctx context.Context, owner model.Account, o *model.Order) {
	frame, err := convert.OrderEventFrame(convert.ToOrderEvent(*o, owner))
	if err != nil {
		s.log.Error("encode order event", zap.Int64("order", o.ID), zap.Error(err))
		return
	}
	// the order is committed; a caller hanging up must not cancel the fanout
	if err := s.bc.Broadcast(context.WithoutCancel(ctx), hub.GroupOrders, frame); err != nil {
		s.log.Warn("order broadcast failed", zap.Int64("order", o.ID), zap.Error(err))
	}
}

func normalizeNewOrder(in model.NewOrder) (model.NewOrder, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Price = in.Price.RoundBank(2)
	if in.SpecialPrice != nil {
		sp := in.SpecialPrice.RoundBank(2)
		in.SpecialPrice = &sp
	}
	switch {
	case in.Name == "":
		return in, fmt.Errorf("%w: empty name", errs.ErrValidation)
	case !in.Price.IsPositive() || !in.Price.LessThan(maxPrice):
		return in, fmt.Errorf("%w: price out of range", errs.ErrValidation)
	case in.SpecialPrice != nil && (in.SpecialPrice.IsNegative() || !in.SpecialPrice.LessThan(maxPrice)):
		return in, fmt.Errorf("%w: special price out of range", errs.ErrValidation)
	}
	return in, nil
}
