package execution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"trading-robot/internal/model"
	"trading-robot/internal/notification"
	"trading-robot/internal/signal"
)

// Outcome is the result of one submission or status check.
type Outcome struct {
	Symbol  string
	TradeID string
	OrderID string
	Intent  Intent
	Status  model.OrderStatus
	State   State // ownership after the outcome
	Fill    *model.Fill
	Err     error
}

// Dispatch maps signal results to trades and drives the ownership book.
type Dispatch struct {
	broker   Broker
	trades   TradeMap
	book     *Book
	journal  model.FillRecorder
	notifier notification.Notifier

	// OnOutcome, if set, sees every outcome (metrics hook).
	OnOutcome func(Outcome)

	mu        sync.Mutex
	submitted []model.Order
}

// NewDispatch creates a dispatcher. journal and notifier may be nil.
func NewDispatch(broker Broker, trades TradeMap, book *Book, journal model.FillRecorder, notifier notification.Notifier) *Dispatch {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Dispatch{broker: broker, trades: trades, book: book, journal: journal, notifier: notifier}
}

// Book returns the ownership book.
func (d *Dispatch) Book() *Book { return d.book }

// Trades returns the trade map.
func (d *Dispatch) Trades() TradeMap { return d.trades }

// Submitted returns the order documents sent so far, in submission order.
func (d *Dispatch) Submitted() []model.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Order, len(d.submitted))
	copy(out, d.submitted)
	return out
}

// Execute submits the mapped buy trade for flat symbols with a buy signal and
// the mapped sell trade for owned symbols with a sell signal. Symbols with an
// order in flight are skipped. refPrices carries the latest close per symbol.
func (d *Dispatch) Execute(ctx context.Context, res signal.Result, refPrices map[string]float64) []Outcome {
	var out []Outcome
	for _, sym := range d.trades.Symbols() {
		v, ok := res.Verdicts[sym]
		if !ok {
			continue
		}
		pair := d.trades[sym]
		var trade *Trade
		switch d.book.State(sym) {
		case Flat:
			if v.Buy {
				trade = pair.Buy
			}
		case Owned:
			if v.Sell {
				trade = pair.Sell
			}
		}
		if trade == nil {
			continue
		}
		out = append(out, d.submit(ctx, sym, trade, refPrices[sym]))
	}
	return out
}

func (d *Dispatch) submit(ctx context.Context, sym string, trade *Trade, ref float64) Outcome {
	exit := trade.Intent == Exit
	o := Outcome{Symbol: sym, TradeID: trade.ID, Intent: trade.Intent}
	if err := d.book.Begin(sym, exit); err != nil {
		o.Err = err
		o.State = d.book.State(sym)
		return d.finish(ctx, o)
	}

	order := trade.Order()
	d.mu.Lock()
	d.submitted = append(d.submitted, order)
	d.mu.Unlock()

	ack, err := d.broker.PlaceOrder(ctx, OrderRequest{TradeID: trade.ID, Symbol: sym, Order: order, RefPrice: ref})
	if err != nil {
		o.Err = fmt.Errorf("place %s for %s: %w", trade.ID, sym, err)
		o.Status = model.OrderRejected
		o.State = d.book.Fail(sym)
		return d.finish(ctx, o)
	}
	o.OrderID = ack.OrderID
	d.book.Attach(sym, ack.OrderID)
	return d.finish(ctx, d.settle(o, ack))
}

// settle applies a broker ack to the book.
func (d *Dispatch) settle(o Outcome, ack OrderAck) Outcome {
	o.Status = ack.Status
	o.Fill = ack.Fill
	switch ack.Status {
	case model.OrderFilled:
		o.State = d.book.Confirm(o.Symbol)
		if d.journal != nil && ack.Fill != nil {
			if err := d.journal.RecordFill(*ack.Fill); err != nil {
				log.Printf("[dispatch] journal fill %s: %v", ack.OrderID, err)
			}
		}
	case model.OrderRejected, model.OrderCanceled:
		o.State = d.book.Fail(o.Symbol)
		o.Err = fmt.Errorf("order %s %s: %s", ack.OrderID, ack.Status, ack.Message)
	default:
		o.State = d.book.State(o.Symbol)
	}
	return o
}

func (d *Dispatch) finish(ctx context.Context, o Outcome) Outcome {
	if o.Err != nil {
		d.notify(ctx, notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "order failed",
			Symbol:  o.Symbol,
			Message: o.Err.Error(),
		})
	} else {
		log.Printf("[dispatch] %s %s order=%s status=%s state=%s", o.Symbol, o.TradeID, o.OrderID, o.Status, o.State)
		if o.Fill != nil {
			d.notify(ctx, notification.Alert{
				Level:   notification.AlertInfo,
				Title:   "order filled",
				Symbol:  o.Symbol,
				Message: fmt.Sprintf("%s %d @ %.4f (%s)", o.Fill.Side, o.Fill.Qty, o.Fill.Price, o.TradeID),
			})
		}
	}
	if d.OnOutcome != nil {
		d.OnOutcome(o)
	}
	return o
}

func (d *Dispatch) notify(ctx context.Context, a notification.Alert) {
	if err := d.notifier.Send(ctx, a); err != nil {
		log.Printf("[dispatch] notify: %v", err)
	}
}

// Reconcile polls the status of every pending order and settles terminal ones.
func (d *Dispatch) Reconcile(ctx context.Context) []Outcome {
	var out []Outcome
	for _, p := range d.book.Pending() {
		ack, err := d.broker.OrderStatus(ctx, p.OrderID)
		if err != nil {
			log.Printf("[dispatch] status %s (%s): %v", p.OrderID, p.Symbol, err)
			continue
		}
		if !ack.Status.Terminal() {
			continue
		}
		intent := Enter
		if p.State == PendingExit {
			intent = Exit
		}
		o := Outcome{Symbol: p.Symbol, OrderID: p.OrderID, Intent: intent}
		if ack.Fill != nil {
			o.TradeID = ack.Fill.TradeID
		}
		out = append(out, d.finish(ctx, d.settle(o, ack)))
	}
	return out
}
