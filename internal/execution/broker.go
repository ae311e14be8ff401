package execution

import (
	"context"

	"trading-robot/internal/model"
)

// OrderRequest is one order submission.
type OrderRequest struct {
	TradeID  string
	Symbol   string // signal symbol the trade was mapped from
	Order    model.Order
	RefPrice float64 // latest close, used by paper fills
}

// OrderAck is the broker's answer to a placement or status query.
// Fill is set once Status is FILLED.
type OrderAck struct {
	OrderID string
	Status  model.OrderStatus
	Message string
	Fill    *model.Fill
}

// Broker places orders and reports their status.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	OrderStatus(ctx context.Context, orderID string) (OrderAck, error)
}
