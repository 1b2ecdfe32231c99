package confidence

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/Strob0t/Upchuck/internal/domain"
)

func TestNewRounds(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1, 1},
		{0.5, 0.5},
		{0.85, 0.85},
		{0.12345, 0.12},
		{0.999, 1},
		{0.004, 0},
		{0.29, 0.29},
		{0.125, 0.12}, // half to even
		{0.575, 0.58},
		{0.115, 0.12},
		{0.135, 0.14},
		{0.145, 0.14},
		{0.285, 0.28},
	}

	for _, tt := range tests {
		s, err := New(tt.in)
		if err != nil {
			t.Fatalf("New(%v): unexpected error %v", tt.in, err)
		}
		if s.Value() != tt.want {
			t.Errorf("New(%v).Value() = %v, want %v", tt.in, s.Value(), tt.want)
		}
	}
}

func TestNewOutOfRange(t *testing.T) {
	for _, v := range []float64{-0.01, 1.1, 1.0001, -1, math.NaN(), math.Inf(1)} {
		_, err := New(v)
		if err == nil {
			t.Fatalf("New(%v): expected error", v)
		}
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("New(%v): expected ErrOutOfRange, got %v", v, err)
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("New(%v): expected domain.ErrValidation, got %v", v, err)
		}
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		v         float64
		high, low bool
	}{
		{0.8, true, false},
		{0.79, false, false},
		{0.5, false, false},
		{0.49, false, true},
		{1, true, false},
		{0, false, true},
	}
	for _, tt := range tests {
		s := MustNew(tt.v)
		if s.IsHighConfidence() != tt.high {
			t.Errorf("%v IsHighConfidence = %v", tt.v, s.IsHighConfidence())
		}
		if s.IsLowConfidence() != tt.low {
			t.Errorf("%v IsLowConfidence = %v", tt.v, s.IsLowConfidence())
		}
	}
}

func TestEqualityAndOrdering(t *testing.T) {
	a := MustNew(0.854)
	b := MustNew(0.85)
	if a != b {
		t.Fatalf("expected %v == %v", a, b)
	}
	if MustNew(0.2).Compare(MustNew(0.3)) != -1 {
		t.Error("expected 0.2 < 0.3")
	}
	if MustNew(0.9).Compare(MustNew(0.3)) != 1 {
		t.Error("expected 0.9 > 0.3")
	}
	if !MustNew(0.75).AtLeast(MustNew(0.75)) {
		t.Error("expected 0.75 >= 0.75")
	}
}

func TestString(t *testing.T) {
	if got := MustNew(0.85).String(); got != "85%" {
		t.Errorf("String() = %q, want 85%%", got)
	}
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(MustNew(0.7))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0.70" {
		t.Errorf("marshal = %s, want 0.70", data)
	}

	var s Score
	if err := json.Unmarshal([]byte("0.333"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Value() != 0.33 {
		t.Errorf("unmarshal = %v, want 0.33", s.Value())
	}

	if err := json.Unmarshal([]byte("1.5"), &s); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}
