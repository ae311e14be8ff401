package indicator

import (
	"errors"
	"fmt"
	"strings"

	"trading-robot/internal/model"
)

var (
	// ErrDuplicateIndicator is returned when an indicator name or output column is already taken.
	ErrDuplicateIndicator = errors.New("duplicate indicator")

	// ErrMissingColumn is returned when a referenced column does not exist.
	ErrMissingColumn = errors.New("missing column")

	// ErrInvalidSpec is returned for unknown kinds or non-positive periods.
	ErrInvalidSpec = errors.New("invalid indicator spec")
)

// Spec describes one indicator column to maintain.
type Spec struct {
	Name   string `json:"name" mapstructure:"name"`
	Kind   Kind   `json:"kind" mapstructure:"kind"`
	Period int    `json:"period" mapstructure:"period"`
	Source string `json:"source" mapstructure:"source"` // input column, default "close"
	Output string `json:"output" mapstructure:"output"` // output column, default Name
}

// withDefaults fills in the source and output columns.
func (s Spec) withDefaults() Spec {
	s.Name = strings.TrimSpace(s.Name)
	if s.Source == "" {
		s.Source = ColumnClose
	}
	if s.Output == "" {
		s.Output = s.Name
	}
	if k, err := ParseKind(string(s.Kind)); err == nil {
		s.Kind = k
	}
	return s
}

// Validate checks the spec in isolation (not against registered columns).
func (s Spec) Validate() error {
	s = s.withDefaults()
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if s.Period <= 0 {
		return fmt.Errorf("%w: %s period must be > 0, got %d", ErrInvalidSpec, s.Name, s.Period)
	}
	return nil
}

// Warmup returns the number of source values consumed before the first defined output.
func (s Spec) Warmup() int {
	if s.Kind == KindRSI {
		return s.Period + 1
	}
	return s.Period
}

// Bar columns every store exposes.
const (
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

var barColumns = map[string]func(b *model.Bar) float64{
	ColumnOpen:   func(b *model.Bar) float64 { return b.Open },
	ColumnHigh:   func(b *model.Bar) float64 { return b.High },
	ColumnLow:    func(b *model.Bar) float64 { return b.Low },
	ColumnClose:  func(b *model.Bar) float64 { return b.Close },
	ColumnVolume: func(b *model.Bar) float64 { return float64(b.Volume) },
}

// column is a typed accessor resolved at registration time: either a bar
// field or the output of a previously registered indicator.
type column struct {
	bar func(b *model.Bar) float64
	ind int
}
