package state_test

import (
	"errors"
	"testing"

	"SpotVault/internal/math"
	"SpotVault/internal/state"

	"github.com/google/uuid"
)

func newStakeFixture(t *testing.T) (*state.SpotMarket, *state.InsuranceFundStake) {
	t.Helper()
	mm := state.NewMarketManager()
	m, err := mm.InitializeMarket(baseMarketConfig(0), 0)
	if err != nil {
		t.Fatalf("InitializeMarket: %v", err)
	}
	sm := state.NewStakeManager()
	stake, err := sm.Initialize(0, uuid.New())
	if err != nil {
		t.Fatalf("Initialize stake: %v", err)
	}
	return m, stake
}

func TestAddStake_BootstrapOneToOne(t *testing.T) {
	m, stake := newStakeFixture(t)
	amount := int64(1_000_000) * math.QuotePrecision

	minted, err := state.AddStake(m, stake, 0, amount)
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}
	if minted != amount {
		t.Errorf("bootstrap mint: got %d, want %d", minted, amount)
	}
	if m.TotalIfShares != amount || m.UserIfShares != amount || stake.IfShares != amount {
		t.Errorf("shares after bootstrap: total=%d user=%d staker=%d, want all %d",
			m.TotalIfShares, m.UserIfShares, stake.IfShares, amount)
	}
}

func TestAddStake_ProportionalMintFloors(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 100); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Vault grew to 150 tokens against 100 shares; 10 tokens mint 6 shares.
	minted, err := state.AddStake(m, stake, 150, 10)
	if err != nil {
		t.Fatalf("AddStake: %v", err)
	}
	if minted != 6 {
		t.Errorf("got %d shares, want 6", minted)
	}
	if m.TotalIfShares != 106 || stake.IfShares != 106 {
		t.Errorf("shares: total=%d staker=%d, want 106/106", m.TotalIfShares, stake.IfShares)
	}
}

func TestAddStake_DustRejected(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 10); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// 1 token against a 10x-grown pool mints floor(1*10/100) = 0 shares.
	_, err := state.AddStake(m, stake, 100, 1)
	if !errors.Is(err, state.ErrZeroMintOrBurn) {
		t.Errorf("got %v, want ErrZeroMintOrBurn", err)
	}
	if m.TotalIfShares != 10 || stake.IfShares != 10 {
		t.Error("failed stake must not move shares")
	}
}

func TestAddStake_BlockedDuringWithdrawRequest(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := state.RequestRemoveStake(m, stake, 1_000, 500, 100); err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}

	_, err := state.AddStake(m, stake, 1_000, 100)
	if !errors.Is(err, state.ErrWithdrawRequestInProgress) {
		t.Errorf("got %v, want ErrWithdrawRequestInProgress", err)
	}
}

func TestRequestRemoveStake_RecordsFrozenClaim(t *testing.T) {
	m, stake := newStakeFixture(t)
	staked := int64(1_000_000) * math.QuotePrecision
	if _, err := state.AddStake(m, stake, 0, staked); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	half := staked / 2
	shares, err := state.RequestRemoveStake(m, stake, staked, half, 777)
	if err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}
	if shares != half {
		t.Errorf("request shares: got %d, want %d", shares, half)
	}
	if stake.LastWithdrawRequestShares != half ||
		stake.LastWithdrawRequestValue != half ||
		stake.LastWithdrawRequestTs != 777 {
		t.Errorf("request fields: %+v", stake)
	}
	if stake.IfShares != staked || m.TotalIfShares != staked {
		t.Error("requesting must not burn shares")
	}
}

func TestRequestRemoveStake_InsufficientShares(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	_, err := state.RequestRemoveStake(m, stake, 1_000, 1_001, 0)
	if !errors.Is(err, state.ErrInsufficientShares) {
		t.Errorf("got %v, want ErrInsufficientShares", err)
	}
}

func TestRequestRemoveStake_OnlyOneOutstanding(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := state.RequestRemoveStake(m, stake, 1_000, 100, 0); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := state.RequestRemoveStake(m, stake, 1_000, 100, 1)
	if !errors.Is(err, state.ErrWithdrawRequestInProgress) {
		t.Errorf("got %v, want ErrWithdrawRequestInProgress", err)
	}
}

func TestRemoveStake_EscrowLockEnforced(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := state.RequestRemoveStake(m, stake, 1_000, 500, 100); err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}

	// Escrow period is 10s; request at 100 unlocks at 110.
	for _, now := range []int64{100, 105, 109} {
		_, err := state.RemoveStake(m, stake, now)
		if !errors.Is(err, state.ErrEscrowPeriodNotElapsed) {
			t.Errorf("now=%d: got %v, want ErrEscrowPeriodNotElapsed", now, err)
		}
	}

	result, err := state.RemoveStake(m, stake, 110)
	if err != nil {
		t.Fatalf("RemoveStake at unlock: %v", err)
	}
	if result.SharesBurned != 500 || result.TokensPaid != 500 {
		t.Errorf("got %+v, want 500 burned / 500 paid", result)
	}
}

func TestRemoveStake_PaysFrozenValueDespiteGrowth(t *testing.T) {
	m, stake := newStakeFixture(t)
	staked := int64(1_000_000) * math.QuotePrecision
	if _, err := state.AddStake(m, stake, 0, staked); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	half := staked / 2
	if _, err := state.RequestRemoveStake(m, stake, staked, half, 0); err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}

	// The vault doubles during escrow (revenue sweeps). The payout is still
	// the frozen request value; the surplus worth of the burned shares stays
	// behind for the remaining stakers.
	result, err := state.RemoveStake(m, stake, 10)
	if err != nil {
		t.Fatalf("RemoveStake: %v", err)
	}
	if result.TokensPaid != half {
		t.Errorf("paid %d, want frozen value %d", result.TokensPaid, half)
	}
	if result.SharesBurned != half {
		t.Errorf("burned %d, want %d", result.SharesBurned, half)
	}
	if stake.IfShares != staked-half || m.TotalIfShares != staked-half || m.UserIfShares != staked-half {
		t.Errorf("shares after remove: staker=%d total=%d user=%d, want all %d",
			stake.IfShares, m.TotalIfShares, m.UserIfShares, staked-half)
	}
	if stake.LastWithdrawRequestShares != 0 || stake.LastWithdrawRequestValue != 0 || stake.LastWithdrawRequestTs != 0 {
		t.Errorf("request fields must be cleared: %+v", stake)
	}
}

func TestRemoveStake_WithoutRequest(t *testing.T) {
	m, stake := newStakeFixture(t)
	_, err := state.RemoveStake(m, stake, 1_000)
	if !errors.Is(err, state.ErrNoWithdrawRequest) {
		t.Errorf("got %v, want ErrNoWithdrawRequest", err)
	}
}

func TestCancelRequest_ForfeitsEscrowGrowth(t *testing.T) {
	m, stake := newStakeFixture(t)
	staked := int64(1_000_000_000_000)
	if _, err := state.AddStake(m, stake, 0, staked); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	half := staked / 2
	if _, err := state.RequestRemoveStake(m, stake, staked, half, 0); err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}

	// Vault doubles during escrow: the frozen claim re-prices to a quarter
	// of the shares, forfeiting the other quarter.
	result, err := state.CancelRequestRemoveStake(m, stake, 2*staked)
	if err != nil {
		t.Fatalf("CancelRequestRemoveStake: %v", err)
	}
	wantForfeited := staked / 4
	if result.SharesForfeited != wantForfeited {
		t.Errorf("forfeited %d, want %d", result.SharesForfeited, wantForfeited)
	}
	wantShares := staked - wantForfeited
	if stake.IfShares != wantShares || m.TotalIfShares != wantShares || m.UserIfShares != wantShares {
		t.Errorf("shares after cancel: staker=%d total=%d user=%d, want all %d",
			stake.IfShares, m.TotalIfShares, m.UserIfShares, wantShares)
	}
	if stake.LastWithdrawRequestShares != 0 {
		t.Error("request fields must be cleared")
	}
}

func TestCancelRequest_NoGrowthNoForfeit(t *testing.T) {
	m, stake := newStakeFixture(t)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := state.RequestRemoveStake(m, stake, 1_000, 400, 0); err != nil {
		t.Fatalf("RequestRemoveStake: %v", err)
	}

	result, err := state.CancelRequestRemoveStake(m, stake, 1_000)
	if err != nil {
		t.Fatalf("CancelRequestRemoveStake: %v", err)
	}
	if result.SharesForfeited != 0 {
		t.Errorf("unchanged ratio must forfeit nothing, got %d", result.SharesForfeited)
	}
	if stake.IfShares != 1_000 || m.TotalIfShares != 1_000 {
		t.Error("shares must be unchanged")
	}
}

func TestCancelRequest_WithoutRequest(t *testing.T) {
	m, stake := newStakeFixture(t)
	_, err := state.CancelRequestRemoveStake(m, stake, 0)
	if !errors.Is(err, state.ErrNoWithdrawRequest) {
		t.Errorf("got %v, want ErrNoWithdrawRequest", err)
	}
}

func TestSettleRevenue_PeriodGate(t *testing.T) {
	mm := state.NewMarketManager()
	m, err := mm.InitializeMarket(baseMarketConfig(0), 1_000)
	if err != nil {
		t.Fatalf("InitializeMarket: %v", err)
	}
	m.RevenuePool.Balance = 5_000_000

	// Settle period is 3600s from initialization at 1000.
	_, err = state.SettleRevenue(m, 4_000)
	if !errors.Is(err, state.ErrSettlePeriodNotElapsed) {
		t.Errorf("got %v, want ErrSettlePeriodNotElapsed", err)
	}
	if m.RevenuePool.Balance != 5_000_000 {
		t.Error("failed settle must leave the pool unchanged")
	}

	result, err := state.SettleRevenue(m, 4_600)
	if err != nil {
		t.Fatalf("SettleRevenue: %v", err)
	}
	if result.TokensSwept != 5_000_000 {
		t.Errorf("swept %d, want 5_000_000", result.TokensSwept)
	}
	if m.RevenuePool.Balance != 0 {
		t.Error("pool must be zeroed after settle")
	}
	if m.LastRevenueSettleTs != 4_600 {
		t.Errorf("last settle ts: got %d, want 4_600", m.LastRevenueSettleTs)
	}

	// Immediately settling again is gated.
	_, err = state.SettleRevenue(m, 4_601)
	if !errors.Is(err, state.ErrSettlePeriodNotElapsed) {
		t.Errorf("got %v, want ErrSettlePeriodNotElapsed", err)
	}
}

func TestStakeManager_InitializeTwiceFails(t *testing.T) {
	sm := state.NewStakeManager()
	authority := uuid.New()
	if _, err := sm.Initialize(0, authority); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if _, err := sm.Initialize(0, authority); err == nil {
		t.Error("second initialize must fail")
	}
}

func TestStakeManager_CloneCommit(t *testing.T) {
	sm := state.NewStakeManager()
	authority := uuid.New()
	if _, err := sm.Initialize(2, authority); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	clone, err := sm.Clone(2, authority)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	clone.IfShares = 99

	live, _ := sm.Get(2, authority)
	if live.IfShares != 0 {
		t.Error("clone mutation must not touch the live record")
	}

	sm.Commit(clone)
	live, _ = sm.Get(2, authority)
	if live.IfShares != 99 {
		t.Error("commit should replace the live record")
	}
}
