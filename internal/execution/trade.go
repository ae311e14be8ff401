// Package execution turns signals into orders: it maps symbols to trades,
// tracks ownership through pending/confirmed/failed states, submits orders to a
// broker (paper or live) and journals the fills.
package execution

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"trading-robot/internal/model"
)

// ErrInvalidTrade is returned by Trade.Validate.
var ErrInvalidTrade = errors.New("invalid trade")

// Intent says whether a trade opens or closes a position.
type Intent string

const (
	Enter Intent = "enter"
	Exit  Intent = "exit"
)

// Side is the position direction.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Order types.
const (
	Market = "MARKET"
	Limit  = "LIMIT"
)

// Leg is one instrument in a trade.
type Leg struct {
	Symbol    string `json:"symbol" mapstructure:"symbol"`
	Quantity  int64  `json:"quantity" mapstructure:"quantity"`
	AssetType string `json:"assetType" mapstructure:"asset_type"`
}

// Trade is a reusable order template, e.g. "long_enter: buy 1 FCEL at market".
type Trade struct {
	ID        string  `json:"id" mapstructure:"id"`
	Intent    Intent  `json:"intent" mapstructure:"intent"`
	Side      Side    `json:"side" mapstructure:"side"`
	OrderType string  `json:"orderType" mapstructure:"order_type"`
	Price     float64 `json:"price,omitempty" mapstructure:"price"` // limit price
	Session   string  `json:"session,omitempty" mapstructure:"session"`
	Duration  string  `json:"duration,omitempty" mapstructure:"duration"`
	Legs      []Leg   `json:"legs" mapstructure:"legs"`
}

// NewTrade creates a market trade with no legs.
func NewTrade(id string, intent Intent, side Side) *Trade {
	return &Trade{ID: id, Intent: intent, Side: side, OrderType: Market}
}

// AddLeg appends an equity leg and returns t for chaining.
func (t *Trade) AddLeg(symbol string, qty int64) *Trade {
	t.Legs = append(t.Legs, Leg{Symbol: symbol, Quantity: qty, AssetType: "EQUITY"})
	return t
}

// Instruction maps intent and side to the order instruction.
func (t *Trade) Instruction() model.Instruction {
	switch {
	case t.Intent == Enter && t.Side == Short:
		return model.InstructionSellShort
	case t.Intent == Exit && t.Side == Short:
		return model.InstructionBuyToCover
	case t.Intent == Exit:
		return model.InstructionSell
	default:
		return model.InstructionBuy
	}
}

// Validate checks the trade is complete enough to submit.
func (t *Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTrade)
	}
	if t.Intent != Enter && t.Intent != Exit {
		return fmt.Errorf("%w: %s: intent %q", ErrInvalidTrade, t.ID, t.Intent)
	}
	if t.Side != Long && t.Side != Short {
		return fmt.Errorf("%w: %s: side %q", ErrInvalidTrade, t.ID, t.Side)
	}
	switch strings.ToUpper(t.OrderType) {
	case Market:
	case Limit:
		if t.Price <= 0 {
			return fmt.Errorf("%w: %s: limit order needs a price", ErrInvalidTrade, t.ID)
		}
	default:
		return fmt.Errorf("%w: %s: order type %q", ErrInvalidTrade, t.ID, t.OrderType)
	}
	if len(t.Legs) == 0 {
		return fmt.Errorf("%w: %s: no legs", ErrInvalidTrade, t.ID)
	}
	for _, l := range t.Legs {
		if l.Symbol == "" || l.Quantity <= 0 {
			return fmt.Errorf("%w: %s: bad leg %+v", ErrInvalidTrade, t.ID, l)
		}
	}
	return nil
}

// Order renders the broker order document.
func (t *Trade) Order() model.Order {
	o := model.Order{
		OrderType:         strings.ToUpper(t.OrderType),
		Session:           defaultStr(t.Session, "NORMAL"),
		Duration:          defaultStr(t.Duration, "DAY"),
		OrderStrategyType: "SINGLE",
	}
	if o.OrderType == Limit {
		o.Price = t.Price
	}
	instr := t.Instruction()
	for _, l := range t.Legs {
		o.OrderLegCollection = append(o.OrderLegCollection, model.OrderLeg{
			Instruction: instr,
			Quantity:    l.Quantity,
			Instrument:  model.Instrument{Symbol: l.Symbol, AssetType: defaultStr(l.AssetType, "EQUITY")},
		})
	}
	return o
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// TradePair is the trade to submit on a buy signal and on a sell signal.
type TradePair struct {
	Buy  *Trade `json:"buy"`
	Sell *Trade `json:"sell"`
}

// TradeMap maps a signal symbol to its trades.
type TradeMap map[string]TradePair

// Symbols returns the mapped symbols, sorted.
func (m TradeMap) Symbols() []string {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Trades returns every distinct trade, ordered by symbol with buy before sell.
func (m TradeMap) Trades() []*Trade {
	var out []*Trade
	seen := make(map[*Trade]bool)
	for _, sym := range m.Symbols() {
		p := m[sym]
		for _, t := range []*Trade{p.Buy, p.Sell} {
			if t != nil && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Validate checks every trade in the map.
func (m TradeMap) Validate() error {
	for _, t := range m.Trades() {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
