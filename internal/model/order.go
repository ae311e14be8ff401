package model

import "time"

// Instruction is the per-leg side of an order document.
type Instruction string

const (
	InstructionBuy        Instruction = "BUY"
	InstructionSell       Instruction = "SELL"
	InstructionSellShort  Instruction = "SELL_SHORT"
	InstructionBuyToCover Instruction = "BUY_TO_COVER"
)

// Instrument identifies what an order leg trades.
type Instrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"` // EQUITY, OPTION, ...
}

// OrderLeg is a single instrument leg of an order document.
type OrderLeg struct {
	Instruction Instruction `json:"instruction"`
	Quantity    int64       `json:"quantity"`
	Instrument  Instrument  `json:"instrument"`
}

// Order is the broker-facing order document built from a trade.
// It is also the shape persisted in the order-strategies audit file.
type Order struct {
	OrderType          string     `json:"orderType"` // MARKET, LIMIT
	Session            string     `json:"session"`   // NORMAL, AM, PM, SEAMLESS
	Duration           string     `json:"duration"`  // DAY, GOOD_TILL_CANCEL
	OrderStrategyType  string     `json:"orderStrategyType"`
	Price              float64    `json:"price,omitempty"`
	OrderLegCollection []OrderLeg `json:"orderLegCollection"`
}

// OrderStatus is the lifecycle state reported by a broker for a placed order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderCanceled OrderStatus = "CANCELED"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCanceled
}

// Fill is a confirmed execution of an order.
type Fill struct {
	OrderID  string    `json:"order_id"`
	TradeID  string    `json:"trade_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"` // BUY, SELL
	Qty      int64     `json:"qty"`
	Price    float64   `json:"price"`
	Slippage float64   `json:"slippage"`
	Reason   string    `json:"reason"`
	FilledAt time.Time `json:"filled_at"`
}
