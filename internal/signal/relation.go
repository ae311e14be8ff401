package signal

import (
	"fmt"
	"strings"
)

// Relation is a comparison between a left and a right operand.
type Relation int

const (
	None Relation = iota // never fires
	GE
	LE
	GT
	LT
	EQ
)

var relationNames = [...]string{
	None: "none",
	GE:   ">=",
	LE:   "<=",
	GT:   ">",
	LT:   "<",
	EQ:   "==",
}

// Holds applies the relation to (l, r).
func (r Relation) Holds(l, rv float64) bool {
	switch r {
	case GE:
		return l >= rv
	case LE:
		return l <= rv
	case GT:
		return l > rv
	case LT:
		return l < rv
	case EQ:
		return l == rv
	default:
		return false
	}
}

func (r Relation) String() string {
	if r < None || int(r) >= len(relationNames) {
		return fmt.Sprintf("Relation(%d)", int(r))
	}
	return relationNames[r]
}

func (r Relation) valid() bool { return r >= None && int(r) < len(relationNames) }

// ParseRelation accepts the symbolic form (">=") or the short name ("ge").
func ParseRelation(s string) (Relation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">=", "ge":
		return GE, nil
	case "<=", "le":
		return LE, nil
	case ">", "gt":
		return GT, nil
	case "<", "lt":
		return LT, nil
	case "==", "=", "eq":
		return EQ, nil
	case "", "none":
		return None, nil
	}
	return None, fmt.Errorf("%w: unknown relation %q", ErrInvalidRule, s)
}

func (r Relation) MarshalText() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("%w: relation %d", ErrInvalidRule, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Relation) UnmarshalText(b []byte) error {
	v, err := ParseRelation(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
