package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// Fixed-point scales used throughout the ledger.
const (
	// QuotePrecision scales quote-asset token amounts (10^6).
	QuotePrecision int64 = 1_000_000

	// InterestPrecision scales cumulative interest indices (10^10).
	InterestPrecision int64 = 10_000_000_000

	// RatePrecision scales annualized interest rates (10^6).
	RatePrecision int64 = 1_000_000

	// UtilizationPrecision scales utilization ratios (10^6).
	UtilizationPrecision int64 = 1_000_000

	// PercentPrecision scales fee and factor fractions (10^6).
	PercentPrecision int64 = 1_000_000

	// PricePrecision scales oracle prices (10^6).
	PricePrecision int64 = 1_000_000

	// SecondsPerYear is the accrual horizon for annualized rates.
	SecondsPerYear int64 = 31_536_000
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Intermediate products are computed in big.Int to avoid silent wraparound.
// The pool keeps steady-state allocation at zero on the hot path.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // toward zero (floor for non-negative operands)
	RoundUp                       // away from zero (ceil for non-negative operands)
)

// MulDiv computes a * b / denominator with the given rounding mode,
// using a wide intermediate. All operands must be non-negative.
func MulDiv(a, b, denominator int64, rounding RoundingMode) (int64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}
	if a < 0 || b < 0 || denominator < 0 {
		return 0, ErrUnderflow
	}

	numerator := getInt()
	quotient := getInt()
	remainder := getInt()
	defer putInt(numerator)
	defer putInt(quotient)
	defer putInt(remainder)

	numerator.Mul(big.NewInt(a), big.NewInt(b))
	quotient.QuoRem(numerator, big.NewInt(denominator), remainder)

	if !quotient.IsInt64() {
		return 0, ErrOverflow
	}
	result := quotient.Int64()

	if rounding == RoundUp && remainder.Sign() != 0 {
		if result == math.MaxInt64 {
			return 0, ErrOverflow
		}
		result++
	}
	return result, nil
}

// MulDivFloor computes floor(a * b / denominator).
func MulDivFloor(a, b, denominator int64) (int64, error) {
	return MulDiv(a, b, denominator, RoundDown)
}

// MulDivCeil computes ceil(a * b / denominator).
func MulDivCeil(a, b, denominator int64) (int64, error) {
	return MulDiv(a, b, denominator, RoundUp)
}

// CheckedAdd returns a + b or ErrOverflow on int64 wraparound.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrUnderflow
	}
	return a + b, nil
}

// CheckedSub returns a - b or an error on wraparound. Ledger quantities are
// non-negative, so a negative result is reported as underflow.
func CheckedSub(a, b int64) (int64, error) {
	if b > 0 && a < math.MinInt64+b {
		return 0, ErrUnderflow
	}
	if b < 0 && a > math.MaxInt64+b {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// CheckedSubNonNeg is CheckedSub restricted to non-negative results.
func CheckedSubNonNeg(a, b int64) (int64, error) {
	r, err := CheckedSub(a, b)
	if err != nil {
		return 0, err
	}
	if r < 0 {
		return 0, ErrUnderflow
	}
	return r, nil
}

// SaturatingAdd returns a + b, clamping at the int64 bounds instead of
// wrapping.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// CheckedMul returns a * b or ErrOverflow if the product exceeds int64.
// Operands must be non-negative, matching MulDiv. The quotient check below
// cannot see a MinInt64 * -1 wraparound, so negatives are rejected outright.
func CheckedMul(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrUnderflow
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}
