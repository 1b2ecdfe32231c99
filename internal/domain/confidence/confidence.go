// Package confidence defines the bounded confidence score attached to every
// piece of agent output.
package confidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/Upchuck/internal/domain"
)

const (
	highThreshold = 80 // hundredths
	lowThreshold  = 50
)

// ErrOutOfRange is matched by every RangeError.
var ErrOutOfRange = errors.New("confidence score must be between 0.0 and 1.0")

// RangeError is returned when a raw value falls outside [0.0, 1.0].
type RangeError struct {
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s, got %v", ErrOutOfRange.Error(), e.Value)
}

// Is matches ErrOutOfRange and domain.ErrValidation.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange || target == domain.ErrValidation
}

// Score is a confidence value in [0.0, 1.0] held at two-decimal precision.
// The zero Score is a valid 0.00. Scores compare with == and Compare.
type Score struct {
	hundredths uint8
}

// New validates v and rounds it to two decimals, half to even on the
// shortest decimal form of v, so 0.575 becomes 0.58.
func New(v float64) (Score, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Score{}, &RangeError{Value: v}
	}
	d := decimal.NewFromFloat(v).RoundBank(2)
	return Score{hundredths: uint8(d.Shift(2).IntPart())}, nil
}

// MustNew is like New but panics on an out-of-range value. Intended for
// constants and tests.
func MustNew(v float64) Score {
	s, err := New(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Value returns the stored, rounded value.
func (s Score) Value() float64 {
	return float64(s.hundredths) / 100
}

// IsHighConfidence reports whether the score is at least 0.80.
func (s Score) IsHighConfidence() bool { return s.hundredths >= highThreshold }

// IsLowConfidence reports whether the score is below 0.50.
func (s Score) IsLowConfidence() bool { return s.hundredths < lowThreshold }

// Compare returns -1, 0 or +1 as s is less than, equal to, or greater than o.
func (s Score) Compare(o Score) int {
	switch {
	case s.hundredths < o.hundredths:
		return -1
	case s.hundredths > o.hundredths:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s >= threshold.
func (s Score) AtLeast(threshold Score) bool {
	return s.hundredths >= threshold.hundredths
}

// String renders the score as a whole percentage, e.g. "85%".
func (s Score) String() string {
	return strconv.Itoa(int(s.hundredths)) + "%"
}

// MarshalJSON encodes the score as a plain number.
func (s Score) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(s.Value(), 'f', 2, 64)), nil
}

// UnmarshalJSON decodes a number and applies the same validation as New.
func (s *Score) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode confidence score: %w", err)
	}
	parsed, err := New(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes the score as a plain number.
func (s Score) MarshalYAML() (any, error) {
	return s.Value(), nil
}

// UnmarshalYAML decodes a number and applies the same validation as New.
func (s *Score) UnmarshalYAML(unmarshal func(any) error) error {
	var v float64
	if err := unmarshal(&v); err != nil {
		return err
	}
	parsed, err := New(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
