package math_test

import (
	"testing"

	"SpotVault/internal/math"
)

func TestStakeAmountToShares_Bootstrap(t *testing.T) {
	amount := int64(1_000_000 * math.QuotePrecision)
	shares, err := math.StakeAmountToShares(amount, 0, 0)
	if err != nil {
		t.Fatalf("StakeAmountToShares: %v", err)
	}
	if shares != amount {
		t.Errorf("bootstrap mint: got %d, want %d", shares, amount)
	}
}

func TestStakeAmountToShares_ProportionalFloor(t *testing.T) {
	// Pool worth 150 tokens with 100 shares: 10 tokens buy floor(10*100/150)=6.
	shares, err := math.StakeAmountToShares(10, 100, 150)
	if err != nil {
		t.Fatalf("StakeAmountToShares: %v", err)
	}
	if shares != 6 {
		t.Errorf("got %d, want 6", shares)
	}
}

func TestStakeAmountToSharesCeil_RoundsAgainstRequester(t *testing.T) {
	shares, err := math.StakeAmountToSharesCeil(10, 100, 150)
	if err != nil {
		t.Fatalf("StakeAmountToSharesCeil: %v", err)
	}
	if shares != 7 {
		t.Errorf("got %d, want 7", shares)
	}
}

func TestUnstakeSharesToAmount_Floor(t *testing.T) {
	amount, err := math.UnstakeSharesToAmount(7, 100, 150)
	if err != nil {
		t.Fatalf("UnstakeSharesToAmount: %v", err)
	}
	if amount != 10 {
		t.Errorf("got %d, want 10", amount)
	}
}

func TestUnstakeSharesToAmount_EmptyPool(t *testing.T) {
	amount, err := math.UnstakeSharesToAmount(0, 0, 0)
	if err != nil {
		t.Fatalf("UnstakeSharesToAmount: %v", err)
	}
	if amount != 0 {
		t.Errorf("got %d, want 0", amount)
	}
}

// Valuation never exceeds the exact pro-rata claim and is monotonic in shares.
func TestUnstakeSharesToAmount_MonotonicAndBounded(t *testing.T) {
	const totalShares, vaultBalance = 997, 12_345_678
	prev := int64(-1)
	for shares := int64(0); shares <= totalShares; shares += 83 {
		amount, err := math.UnstakeSharesToAmount(shares, totalShares, vaultBalance)
		if err != nil {
			t.Fatalf("shares=%d: %v", shares, err)
		}
		if amount < prev {
			t.Fatalf("shares=%d: amount %d < previous %d", shares, amount, prev)
		}
		exactNumerator := shares * vaultBalance
		if amount*totalShares > exactNumerator {
			t.Fatalf("shares=%d: amount %d exceeds floor bound", shares, amount)
		}
		prev = amount
	}
}

func TestInterestRateModel_BorrowRate(t *testing.T) {
	model := math.InterestRateModel{
		OptimalUtilization: 800_000,   // 80%
		OptimalRate:        100_000,   // 10% APR
		MaxRate:            3_000_000, // 300% APR
	}

	cases := []struct {
		name        string
		utilization int64
		want        int64
	}{
		{"idle", 0, 0},
		{"half of kink", 400_000, 50_000},
		{"at kink", 800_000, 100_000},
		{"above kink", 900_000, 1_550_000},
		{"full", 1_000_000, 3_000_000},
	}

	for _, tc := range cases {
		got, err := model.BorrowRate(tc.utilization)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestUtilization(t *testing.T) {
	u, err := math.Utilization(1_000_000, 250_000)
	if err != nil {
		t.Fatalf("Utilization: %v", err)
	}
	if u != 250_000 {
		t.Errorf("got %d, want 250_000", u)
	}

	u, err = math.Utilization(0, 100)
	if err != nil {
		t.Fatalf("Utilization: %v", err)
	}
	if u != math.UtilizationPrecision {
		t.Errorf("no-deposit market should read fully utilized, got %d", u)
	}

	u, err = math.Utilization(100, 0)
	if err != nil || u != 0 {
		t.Errorf("no borrows: got (%d, %v), want (0, nil)", u, err)
	}
}

func TestTokensFromBalance_AsymmetricRounding(t *testing.T) {
	// Index 1.5x: 7 normalized units are worth 10.5 tokens.
	index := math.InterestPrecision + math.InterestPrecision/2

	deposit, err := math.TokensFromBalance(7, index, math.RoundDown)
	if err != nil {
		t.Fatalf("TokensFromBalance: %v", err)
	}
	if deposit != 10 {
		t.Errorf("deposit side should floor: got %d, want 10", deposit)
	}

	borrow, err := math.TokensFromBalance(7, index, math.RoundUp)
	if err != nil {
		t.Fatalf("TokensFromBalance: %v", err)
	}
	if borrow != 11 {
		t.Errorf("borrow side should ceil: got %d, want 11", borrow)
	}
}

func TestBalanceFromTokens_Inverse(t *testing.T) {
	index := math.InterestPrecision + math.InterestPrecision/2

	balance, err := math.BalanceFromTokens(10, index, math.RoundDown)
	if err != nil {
		t.Fatalf("BalanceFromTokens: %v", err)
	}
	if balance != 6 {
		t.Errorf("got %d, want 6", balance)
	}

	balance, err = math.BalanceFromTokens(10, index, math.RoundUp)
	if err != nil {
		t.Fatalf("BalanceFromTokens: %v", err)
	}
	if balance != 7 {
		t.Errorf("got %d, want 7", balance)
	}
}
