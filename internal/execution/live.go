package execution

import (
	"context"
	"fmt"
	"time"

	"trading-robot/internal/model"
	"trading-robot/pkg/broker"
)

// OrderAPI is the part of the broker client the live adapter needs.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, order model.Order) (string, error)
	GetOrder(ctx context.Context, orderID string) (broker.OrderInfo, error)
}

// LiveBroker submits orders through the broker REST API. Placements come back
// PENDING and are settled by Dispatch.Reconcile.
type LiveBroker struct {
	api    OrderAPI
	trades map[string]string // order id -> trade id
}

// NewLiveBroker wraps a broker client.
func NewLiveBroker(api OrderAPI) *LiveBroker {
	return &LiveBroker{api: api, trades: make(map[string]string)}
}

func (b *LiveBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	id, err := b.api.PlaceOrder(ctx, req.Order)
	if err != nil {
		return OrderAck{}, err
	}
	b.trades[id] = req.TradeID
	return OrderAck{OrderID: id, Status: model.OrderPending}, nil
}

func (b *LiveBroker) OrderStatus(ctx context.Context, orderID string) (OrderAck, error) {
	info, err := b.api.GetOrder(ctx, orderID)
	if err != nil {
		return OrderAck{}, err
	}
	ack := OrderAck{OrderID: orderID, Status: info.OrderStatus(), Message: info.Message}
	if ack.Status == model.OrderFilled {
		side := "BUY"
		if info.Instruction == string(model.InstructionSell) || info.Instruction == string(model.InstructionSellShort) {
			side = "SELL"
		}
		filledAt := time.Now().UTC()
		if info.CloseTime > 0 {
			filledAt = time.UnixMilli(info.CloseTime).UTC()
		}
		ack.Fill = &model.Fill{
			OrderID:  orderID,
			TradeID:  b.trades[orderID],
			Symbol:   info.Symbol,
			Side:     side,
			Qty:      info.FilledQuantity,
			Price:    info.AvgPrice,
			Reason:   fmt.Sprintf("broker %s", info.Status),
			FilledAt: filledAt,
		}
	}
	if ack.Status.Terminal() {
		delete(b.trades, orderID)
	}
	return ack, nil
}
