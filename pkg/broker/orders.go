package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"trading-robot/internal/model"
)

// OrderInfo is the broker's view of a placed order.
type OrderInfo struct {
	OrderID        string  `json:"orderId"`
	Status         string  `json:"status"` // WORKING, QUEUED, FILLED, REJECTED, CANCELED, EXPIRED
	FilledQuantity int64   `json:"filledQuantity"`
	AvgPrice       float64 `json:"averagePrice"`
	Symbol         string  `json:"symbol"`
	Instruction    string  `json:"instruction"`
	Message        string  `json:"statusDescription"`
	CloseTime      int64   `json:"closeTime"` // unix ms
}

// OrderStatus maps the broker status onto model.OrderStatus.
func (o OrderInfo) OrderStatus() model.OrderStatus {
	switch strings.ToUpper(o.Status) {
	case "FILLED":
		return model.OrderFilled
	case "REJECTED", "EXPIRED":
		return model.OrderRejected
	case "CANCELED", "CANCELLED":
		return model.OrderCanceled
	default:
		return model.OrderPending
	}
}

// PlaceOrder submits an order document and returns the order id.
func (c *Client) PlaceOrder(ctx context.Context, order model.Order) (string, error) {
	params := map[string]any{
		"orderType":          order.OrderType,
		"session":            order.Session,
		"duration":           order.Duration,
		"orderStrategyType":  order.OrderStrategyType,
		"orderLegCollection": order.OrderLegCollection,
	}
	if order.Price > 0 {
		params["price"] = order.Price
	}
	var res struct {
		OrderID string `json:"orderId"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "api.order.place", nil, params, &res); err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if res.OrderID == "" {
		return "", fmt.Errorf("place order: response carries no order id")
	}
	return res.OrderID, nil
}

// GetOrder returns the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderInfo, error) {
	var info OrderInfo
	if err := c.doRequest(ctx, http.MethodGet, "api.order.status", map[string]string{"id": orderID}, nil, &info); err != nil {
		return OrderInfo{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	if info.OrderID == "" {
		info.OrderID = orderID
	}
	return info, nil
}

// CancelOrder requests cancellation of an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.doRequest(ctx, http.MethodPost, "api.order.cancel", map[string]string{"id": orderID}, nil, nil)
}
