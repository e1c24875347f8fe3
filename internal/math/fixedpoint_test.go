package math_test

import (
	gomath "math"
	"testing"

	"SpotVault/internal/math"
)

// ============================================================================
// Test: MulDiv
// ============================================================================

func TestMulDiv_FloorAndCeil(t *testing.T) {
	cases := []struct {
		name      string
		a, b, d   int64
		wantFloor int64
		wantCeil  int64
	}{
		{"exact", 10, 6, 3, 20, 20},
		{"remainder", 10, 7, 3, 23, 24},
		{"zero numerator", 0, 7, 3, 0, 0},
		{"large exact", 1_000_000_000_000, math.InterestPrecision, math.InterestPrecision, 1_000_000_000_000, 1_000_000_000_000},
	}

	for _, tc := range cases {
		got, err := math.MulDivFloor(tc.a, tc.b, tc.d)
		if err != nil {
			t.Fatalf("%s: floor: %v", tc.name, err)
		}
		if got != tc.wantFloor {
			t.Errorf("%s: floor: got %d, want %d", tc.name, got, tc.wantFloor)
		}

		got, err = math.MulDivCeil(tc.a, tc.b, tc.d)
		if err != nil {
			t.Fatalf("%s: ceil: %v", tc.name, err)
		}
		if got != tc.wantCeil {
			t.Errorf("%s: ceil: got %d, want %d", tc.name, got, tc.wantCeil)
		}
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a * b overflows int64 but the quotient fits.
	a := int64(5_000_000_000_000) // 5M quote units at 1e6
	got, err := math.MulDivFloor(a, math.InterestPrecision, math.InterestPrecision)
	if err != nil {
		t.Fatalf("MulDivFloor: %v", err)
	}
	if got != a {
		t.Errorf("got %d, want %d", got, a)
	}
}

func TestMulDiv_OverflowingQuotient(t *testing.T) {
	_, err := math.MulDivFloor(gomath.MaxInt64, 2, 1)
	if err != math.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestMulDiv_DivisionByZero(t *testing.T) {
	_, err := math.MulDivFloor(1, 1, 0)
	if err != math.ErrDivisionByZero {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestMulDiv_NegativeOperand(t *testing.T) {
	if _, err := math.MulDivFloor(-1, 1, 1); err == nil {
		t.Error("negative operand should fail")
	}
}

// ============================================================================
// Test: checked add/sub/mul
// ============================================================================

func TestCheckedAdd(t *testing.T) {
	if got, err := math.CheckedAdd(1, 2); err != nil || got != 3 {
		t.Errorf("got (%d, %v), want (3, nil)", got, err)
	}
	if _, err := math.CheckedAdd(gomath.MaxInt64, 1); err != math.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := math.CheckedAdd(gomath.MinInt64, -1); err != math.ErrUnderflow {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestCheckedSubNonNeg(t *testing.T) {
	if got, err := math.CheckedSubNonNeg(5, 3); err != nil || got != 2 {
		t.Errorf("got (%d, %v), want (2, nil)", got, err)
	}
	if _, err := math.CheckedSubNonNeg(3, 5); err != math.ErrUnderflow {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestCheckedMul(t *testing.T) {
	if got, err := math.CheckedMul(7, 6); err != nil || got != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", got, err)
	}
	if _, err := math.CheckedMul(gomath.MaxInt64, 2); err != math.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	// MinInt64 * -1 wraps to MinInt64 and would slip past a quotient check
	if _, err := math.CheckedMul(gomath.MinInt64, -1); err != math.ErrUnderflow {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
	if _, err := math.CheckedMul(-3, 5); err != math.ErrUnderflow {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestSaturatingAdd(t *testing.T) {
	if got := math.SaturatingAdd(40, 2); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if got := math.SaturatingAdd(gomath.MaxInt64, 1); got != gomath.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
	if got := math.SaturatingAdd(gomath.MinInt64, -1); got != gomath.MinInt64 {
		t.Errorf("got %d, want MinInt64", got)
	}
}
