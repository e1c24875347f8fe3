package state_test

import (
	"testing"

	"SpotVault/internal/math"
	"SpotVault/internal/state"
)

func newAccrualMarket(t *testing.T, now int64) *state.SpotMarket {
	t.Helper()
	mm := state.NewMarketManager()
	m, err := mm.InitializeMarket(baseMarketConfig(0), now)
	if err != nil {
		t.Fatalf("InitializeMarket: %v", err)
	}
	return m
}

func TestAccrueInterest_SameInstantNoOp(t *testing.T) {
	m := newAccrualMarket(t, 1_000)
	m.DepositBalance = 1_000_000_000
	m.BorrowBalance = 250_000_000

	result, err := state.AccrueInterest(m, 1_000)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if result.Elapsed != 0 || result.BorrowInterestTokens != 0 {
		t.Errorf("same-instant call must be a no-op, got %+v", result)
	}
	if m.CumulativeBorrowInterest != math.InterestPrecision {
		t.Error("borrow index must not move on a no-op")
	}
}

func TestAccrueInterest_NoBorrowsAdvancesClockOnly(t *testing.T) {
	m := newAccrualMarket(t, 1_000)
	m.DepositBalance = 1_000_000_000

	result, err := state.AccrueInterest(m, 2_000)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if result.BorrowInterestTokens != 0 {
		t.Errorf("no borrows should accrue nothing, got %d", result.BorrowInterestTokens)
	}
	if m.LastInterestTs != 2_000 {
		t.Errorf("last interest ts: got %d, want 2000", m.LastInterestTs)
	}
	if m.CumulativeDepositInterest != math.InterestPrecision {
		t.Error("deposit index must not move without borrows")
	}
}

func TestAccrueInterest_OneYearAtQuarterUtilization(t *testing.T) {
	// 1000 tokens deposited, 250 borrowed, both at index 1. Utilization 25%,
	// borrow rate 100_000 * 250_000/800_000 = 31_250 (3.125% APR).
	m := newAccrualMarket(t, 0)
	m.DepositBalance = 1_000 * math.QuotePrecision
	m.BorrowBalance = 250 * math.QuotePrecision

	result, err := state.AccrueInterest(m, math.SecondsPerYear)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}

	if result.Utilization != 250_000 {
		t.Errorf("utilization: got %d, want 250_000", result.Utilization)
	}
	if result.BorrowRate != 31_250 {
		t.Errorf("borrow rate: got %d, want 31_250", result.BorrowRate)
	}

	// Index delta: 1e10 * 31_250 / 1e6 = 312_500_000.
	wantBorrowIndex := math.InterestPrecision + 312_500_000
	if m.CumulativeBorrowInterest != wantBorrowIndex {
		t.Errorf("borrow index: got %d, want %d", m.CumulativeBorrowInterest, wantBorrowIndex)
	}

	// Borrowers owe 250e6 * 0.03125 = 7_812_500 extra tokens; 90% of that is
	// diverted into the revenue pool, the rest compounds the deposit index.
	if result.BorrowInterestTokens != 7_812_500 {
		t.Errorf("interest tokens: got %d, want 7_812_500", result.BorrowInterestTokens)
	}
	if result.RevenueTokens != 7_031_250 {
		t.Errorf("revenue tokens: got %d, want 7_031_250", result.RevenueTokens)
	}
	if result.DepositInterestTokens != 781_250 {
		t.Errorf("depositor tokens: got %d, want 781_250", result.DepositInterestTokens)
	}

	wantDepositIndex := math.InterestPrecision + 7_812_500 // 781_250 * 1e10 / 1000e6
	if m.CumulativeDepositInterest != wantDepositIndex {
		t.Errorf("deposit index: got %d, want %d", m.CumulativeDepositInterest, wantDepositIndex)
	}

	poolTokens, err := m.RevenuePoolTokens()
	if err != nil {
		t.Fatalf("RevenuePoolTokens: %v", err)
	}
	if poolTokens > result.RevenueTokens || poolTokens < result.RevenueTokens-1 {
		t.Errorf("revenue pool tokens %d should equal %d up to one unit of rounding",
			poolTokens, result.RevenueTokens)
	}

	if m.LastInterestTs != math.SecondsPerYear {
		t.Errorf("last interest ts: got %d, want %d", m.LastInterestTs, math.SecondsPerYear)
	}
}

func TestAccrueInterest_RepeatedCallCompounds(t *testing.T) {
	m := newAccrualMarket(t, 0)
	m.DepositBalance = 1_000 * math.QuotePrecision
	m.BorrowBalance = 250 * math.QuotePrecision

	if _, err := state.AccrueInterest(m, math.SecondsPerYear); err != nil {
		t.Fatalf("first accrual: %v", err)
	}
	firstBorrowIndex := m.CumulativeBorrowInterest

	if _, err := state.AccrueInterest(m, 2*math.SecondsPerYear); err != nil {
		t.Fatalf("second accrual: %v", err)
	}

	firstDelta := firstBorrowIndex - math.InterestPrecision
	secondDelta := m.CumulativeBorrowInterest - firstBorrowIndex
	if secondDelta <= firstDelta {
		t.Errorf("second year delta %d should exceed first year delta %d (compounding)",
			secondDelta, firstDelta)
	}
}

func TestAccrueInterest_NoDepositorsRoutesAllToRevenue(t *testing.T) {
	m := newAccrualMarket(t, 0)
	m.BorrowBalance = 100 * math.QuotePrecision

	result, err := state.AccrueInterest(m, math.SecondsPerYear)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if result.BorrowInterestTokens == 0 {
		t.Fatal("expected interest with outstanding borrows")
	}
	if result.RevenueTokens != result.BorrowInterestTokens {
		t.Errorf("with no depositors the full accrual goes to revenue: got %d of %d",
			result.RevenueTokens, result.BorrowInterestTokens)
	}
	if m.CumulativeDepositInterest != math.InterestPrecision {
		t.Error("deposit index must not move without depositors")
	}
}

func TestAccrueInterest_TimestampRegressionIgnored(t *testing.T) {
	m := newAccrualMarket(t, 5_000)
	m.DepositBalance = 1_000_000
	m.BorrowBalance = 500_000

	result, err := state.AccrueInterest(m, 4_000)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if result.Elapsed != 0 {
		t.Errorf("regressed timestamp must be a no-op, got elapsed %d", result.Elapsed)
	}
	if m.LastInterestTs != 5_000 {
		t.Errorf("last interest ts must not regress: got %d", m.LastInterestTs)
	}
}
