// Package signal evaluates comparison rules over indicator columns.
//
// A rule compares two columns (e.g. sma50 against sma200) or one column
// against fixed levels (rsi14 against 30/70). Only the newest row of each
// symbol is read, and an undefined operand never produces a signal.
package signal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"trading-robot/internal/indicator"
)

var (
	// ErrMissingColumn is returned when a rule references an unknown column.
	ErrMissingColumn = indicator.ErrMissingColumn

	// ErrDuplicateRule is returned when a rule name is reused.
	ErrDuplicateRule = errors.New("duplicate rule")

	// ErrInvalidRule is returned for rules that can never fire or use an unknown relation.
	ErrInvalidRule = errors.New("invalid rule")
)

// Rule compares Left against Right (or against BuyLevel/SellLevel when Right is empty).
type Rule struct {
	Name      string   `json:"name" mapstructure:"name"`
	Left      string   `json:"left" mapstructure:"left"`
	Right     string   `json:"right,omitempty" mapstructure:"right"`
	Buy       Relation `json:"buy" mapstructure:"buy"`
	Sell      Relation `json:"sell" mapstructure:"sell"`
	BuyLevel  float64  `json:"buyLevel,omitempty" mapstructure:"buy_level"`
	SellLevel float64  `json:"sellLevel,omitempty" mapstructure:"sell_level"`
}

// Threshold reports whether the rule compares against fixed levels.
func (r Rule) Threshold() bool { return r.Right == "" }

func (r Rule) operands(lv, rv float64, sell bool) (float64, float64) {
	if !r.Threshold() {
		return lv, rv
	}
	if sell {
		return lv, r.SellLevel
	}
	return lv, r.BuyLevel
}

// Verdict is the outcome for one symbol.
type Verdict struct {
	Buy  bool `json:"buy"`
	Sell bool `json:"sell"`
}

// Result holds the verdicts derived from the most recent row of every symbol.
type Result struct {
	At       time.Time          `json:"at"`
	Verdicts map[string]Verdict `json:"verdicts"`
}

// Buys returns the symbols with a buy signal, sorted.
func (r Result) Buys() []string {
	return r.collect(func(v Verdict) bool { return v.Buy })
}

// Sells returns the symbols with a sell signal, sorted.
func (r Result) Sells() []string {
	return r.collect(func(v Verdict) bool { return v.Sell })
}

func (r Result) collect(pred func(Verdict) bool) []string {
	var out []string
	for sym, v := range r.Verdicts {
		if pred(v) {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Evaluator holds the registered rules. Not safe for concurrent use.
type Evaluator struct {
	engine *indicator.Engine
	rules  []Rule
	names  map[string]struct{}
}

// New creates an evaluator reading from engine.
func New(engine *indicator.Engine) *Evaluator {
	return &Evaluator{engine: engine, names: make(map[string]struct{})}
}

// Register validates rule against the engine's columns and adds it.
func (e *Evaluator) Register(rule Rule) error {
	if rule.Name == "" {
		rule.Name = rule.Left + "/" + rule.Right
	}
	if _, ok := e.names[rule.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
	}
	if !rule.Buy.valid() || !rule.Sell.valid() {
		return fmt.Errorf("%w: %s has an unknown relation", ErrInvalidRule, rule.Name)
	}
	if rule.Buy == None && rule.Sell == None {
		return fmt.Errorf("%w: %s has no buy or sell relation", ErrInvalidRule, rule.Name)
	}
	if !e.engine.HasColumn(rule.Left) {
		return fmt.Errorf("%w: %q (left of %s)", ErrMissingColumn, rule.Left, rule.Name)
	}
	if !rule.Threshold() && !e.engine.HasColumn(rule.Right) {
		return fmt.Errorf("%w: %q (right of %s)", ErrMissingColumn, rule.Right, rule.Name)
	}
	e.names[rule.Name] = struct{}{}
	e.rules = append(e.rules, rule)
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate reads the newest row of every symbol. A side fires only when every
// rule that defines a relation for it holds; rules with None on a side do not
// vote on that side. Buy and sell may both be true.
func (e *Evaluator) Evaluate() Result {
	store := e.engine.Store()
	res := Result{At: store.LastTS(), Verdicts: make(map[string]Verdict)}

	for _, sym := range e.engine.Symbols() {
		res.Verdicts[sym] = e.evaluate(sym)
	}
	return res
}

func (e *Evaluator) evaluate(sym string) Verdict {
	buyVotes, sellVotes := 0, 0
	buy, sell := true, true

	for _, rule := range e.rules {
		lv, ok := e.engine.Value(sym, rule.Left)
		if !ok {
			return Verdict{}
		}
		var rv float64
		if !rule.Threshold() {
			if rv, ok = e.engine.Value(sym, rule.Right); !ok {
				return Verdict{}
			}
		}

		if rule.Buy != None {
			buyVotes++
			l, r := rule.operands(lv, rv, false)
			buy = buy && rule.Buy.Holds(l, r)
		}
		if rule.Sell != None {
			sellVotes++
			l, r := rule.operands(lv, rv, true)
			sell = sell && rule.Sell.Holds(l, r)
		}
	}
	return Verdict{Buy: buyVotes > 0 && buy, Sell: sellVotes > 0 && sell}
}
