package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"trading-robot/internal/model"
)

// PaperBroker simulates order execution without real broker calls.
// Useful for backtesting and paper trading.
type PaperBroker struct {
	mu       sync.RWMutex
	fills    []model.Fill
	orders   map[string]*paperOrder
	orderSeq int64

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	deferred    bool    // report PENDING on placement, fill on the next status query
	now         func() time.Time
}

type paperOrder struct {
	req    OrderRequest
	status model.OrderStatus
	fill   *model.Fill
}

// PaperOption configures a PaperBroker.
type PaperOption func(*PaperBroker)

// WithDeferredFills makes placements return PENDING; the fill happens on the
// first OrderStatus call, like a real broker confirming asynchronously.
func WithDeferredFills() PaperOption {
	return func(p *PaperBroker) { p.deferred = true }
}

// WithClock overrides the fill timestamp source.
func WithClock(now func() time.Time) PaperOption {
	return func(p *PaperBroker) { p.now = now }
}

// NewPaperBroker creates a paper broker.
// slippageBps controls simulated slippage in basis points.
func NewPaperBroker(slippageBps float64, opts ...PaperOption) *PaperBroker {
	p := &PaperBroker{
		fills:       make([]model.Fill, 0, 64),
		orders:      make(map[string]*paperOrder),
		slippageBps: slippageBps,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GetFills returns a snapshot of all fills.
func (p *PaperBroker) GetFills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// PlaceOrder accepts market and limit orders. Market orders fill at the
// reference price moved against the order by the slippage.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	if len(req.Order.OrderLegCollection) == 0 {
		return OrderAck{}, fmt.Errorf("paper: order %s has no legs", req.TradeID)
	}
	price := req.RefPrice
	if req.Order.OrderType == Limit {
		price = req.Order.Price
	}
	if price <= 0 {
		return OrderAck{}, fmt.Errorf("paper: no reference price for %s", req.Symbol)
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	o := &paperOrder{req: req, status: model.OrderPending}
	p.orders[orderID] = o
	if !p.deferred {
		p.fillLocked(orderID, o, price)
	}
	ack := o.ack(orderID)
	p.mu.Unlock()

	return ack, nil
}

// OrderStatus reports the order state, filling deferred orders.
func (p *PaperBroker) OrderStatus(ctx context.Context, orderID string) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderAck{}, fmt.Errorf("paper: unknown order %s", orderID)
	}
	if o.status == model.OrderPending {
		price := o.req.RefPrice
		if o.req.Order.OrderType == Limit {
			price = o.req.Order.Price
		}
		p.fillLocked(orderID, o, price)
	}
	return o.ack(orderID), nil
}

func (p *PaperBroker) fillLocked(orderID string, o *paperOrder, price float64) {
	leg := o.req.Order.OrderLegCollection[0]
	side := "BUY"
	if leg.Instruction == model.InstructionSell || leg.Instruction == model.InstructionSellShort {
		side = "SELL"
	}

	slippage := 0.0
	if o.req.Order.OrderType != Limit && p.slippageBps > 0 {
		slippage = price * p.slippageBps / 10000
		if side == "BUY" {
			price += slippage // buy higher
		} else {
			price -= slippage // sell lower
		}
	}

	var qty int64
	for _, l := range o.req.Order.OrderLegCollection {
		qty += l.Quantity
	}

	fill := model.Fill{
		OrderID:  orderID,
		TradeID:  o.req.TradeID,
		Symbol:   leg.Instrument.Symbol,
		Side:     side,
		Qty:      qty,
		Price:    price,
		Slippage: slippage,
		Reason:   o.req.TradeID,
		FilledAt: p.now().UTC(),
	}
	o.status = model.OrderFilled
	o.fill = &fill
	p.fills = append(p.fills, fill)

	log.Printf("[paper] %s %s qty=%d price=%.4f (slip=%.4f) order=%s trade=%s",
		side, fill.Symbol, qty, price, slippage, orderID, o.req.TradeID)
}

func (o *paperOrder) ack(orderID string) OrderAck {
	a := OrderAck{OrderID: orderID, Status: o.status}
	if o.fill != nil {
		f := *o.fill
		a.Fill = &f
		a.Message = fmt.Sprintf("paper filled at %.4f", f.Price)
	}
	return a
}
