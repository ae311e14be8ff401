// Package indicator provides technical indicator calculations over the bar store.
//
// Every indicator implements the Indicator interface: it is fed one source
// value at a time and keeps only the O(1) state needed for the next update,
// so the Engine can extend columns incrementally as bars arrive.
package indicator

import (
	"fmt"
	"strings"
)

// Indicator is the incremental state of one indicator over one series.
type Indicator interface {
	Kind() Kind

	// Update feeds the next source value.
	Update(x float64)

	// Value is the current value; meaningless until Ready.
	Value() float64
	Ready() bool

	// Clone returns an independent copy of the state, used for checkpoints.
	Clone() Indicator
}

// Kind selects the indicator computation.
type Kind string

const (
	KindSMA  Kind = "SMA"
	KindEMA  Kind = "EMA"
	KindRSI  Kind = "RSI"
	KindSMMA Kind = "SMMA"
)

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindSMA, KindEMA, KindRSI, KindSMMA:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s)
	}
}

// New creates a fresh indicator of the given kind.
func New(kind Kind, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be > 0, got %d", ErrInvalidSpec, period)
	}
	switch kind {
	case KindSMA:
		return NewSMA(period), nil
	case KindEMA:
		return NewEMA(period), nil
	case KindRSI:
		return NewRSI(period), nil
	case KindSMMA:
		return NewSMMA(period), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, kind)
	}
}
