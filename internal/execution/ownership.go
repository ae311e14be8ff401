package execution

import (
	"fmt"
	"sort"
	"sync"
)

// State is the ownership state of one symbol.
type State int

const (
	Flat State = iota
	PendingEntry
	Owned
	PendingExit
)

func (s State) String() string {
	switch s {
	case Flat:
		return "FLAT"
	case PendingEntry:
		return "PENDING_ENTRY"
	case Owned:
		return "OWNED"
	case PendingExit:
		return "PENDING_EXIT"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Book tracks ownership per symbol. A symbol only becomes Owned or Flat on a
// confirmed fill; a failed order puts it back where it was.
type Book struct {
	mu      sync.Mutex
	state   map[string]State
	pending map[string]string // symbol -> order id
}

// NewBook creates a book from the initial ownership (symbol -> owned).
func NewBook(owned map[string]bool) *Book {
	b := &Book{state: make(map[string]State), pending: make(map[string]string)}
	for sym, o := range owned {
		if o {
			b.state[sym] = Owned
		}
	}
	return b
}

// State returns the current state of symbol (Flat if unknown).
func (b *Book) State(symbol string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state[symbol]
}

// Owned reports whether symbol is held (Owned or PendingExit).
func (b *Book) Owned(symbol string) bool {
	s := b.State(symbol)
	return s == Owned || s == PendingExit
}

// Begin moves Flat→PendingEntry (exit=false) or Owned→PendingExit (exit=true).
func (b *Book) Begin(symbol string, exit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.state[symbol]
	switch {
	case !exit && cur == Flat:
		b.state[symbol] = PendingEntry
	case exit && cur == Owned:
		b.state[symbol] = PendingExit
	case exit:
		return fmt.Errorf("book: %s: cannot exit from %s", symbol, cur)
	default:
		return fmt.Errorf("book: %s: cannot enter from %s", symbol, cur)
	}
	return nil
}

// Attach records the broker order id of the pending transition.
func (b *Book) Attach(symbol, orderID string) {
	b.mu.Lock()
	b.pending[symbol] = orderID
	b.mu.Unlock()
}

// Confirm completes a pending transition.
func (b *Book) Confirm(symbol string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state[symbol] {
	case PendingEntry:
		b.state[symbol] = Owned
	case PendingExit:
		b.state[symbol] = Flat
	}
	delete(b.pending, symbol)
	return b.state[symbol]
}

// Fail reverts a pending transition.
func (b *Book) Fail(symbol string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state[symbol] {
	case PendingEntry:
		b.state[symbol] = Flat
	case PendingExit:
		b.state[symbol] = Owned
	}
	delete(b.pending, symbol)
	return b.state[symbol]
}

// Pending returns symbol -> order id for orders awaiting confirmation, sorted by symbol.
func (b *Book) Pending() []PendingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingOrder, 0, len(b.pending))
	for sym, id := range b.pending {
		out = append(out, PendingOrder{Symbol: sym, OrderID: id, State: b.state[sym]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PendingOrder is an order awaiting confirmation.
type PendingOrder struct {
	Symbol  string
	OrderID string
	State   State
}

// Snapshot returns a copy of every non-flat state.
func (b *Book) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.state))
	for sym, s := range b.state {
		if s != Flat {
			out[sym] = s
		}
	}
	return out
}
