package state_test

import (
	gomath "math"
	"testing"

	"SpotVault/internal/state"

	"github.com/google/uuid"
)

func TestStatsManager_RecomputeAcrossMarkets(t *testing.T) {
	markets := state.NewMarketManager()
	for idx := uint16(0); idx < 2; idx++ {
		cfg := baseMarketConfig(idx)
		if _, err := markets.InitializeMarket(cfg, 0); err != nil {
			t.Fatalf("init market %d: %v", idx, err)
		}
	}

	stakes := state.NewStakeManager()
	stats := state.NewStatsManager(markets, stakes)
	authority := uuid.New()

	vaultBalances := map[uint16]int64{0: 0, 1: 0}
	vaultBalance := func(idx uint16) int64 { return vaultBalances[idx] }

	for idx := uint16(0); idx < 2; idx++ {
		stake, err := stakes.Initialize(idx, authority)
		if err != nil {
			t.Fatalf("init stake %d: %v", idx, err)
		}
		stats.RecordStakeInitialized(authority)

		m, _ := markets.Get(idx)
		amount := int64(1_000) * int64(idx+1)
		if _, err := state.AddStake(m, stake, vaultBalances[idx], amount); err != nil {
			t.Fatalf("stake %d: %v", idx, err)
		}
		vaultBalances[idx] += amount
	}

	if err := stats.Recompute(authority, vaultBalance); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	s, ok := stats.Get(authority)
	if !ok {
		t.Fatal("stats record missing")
	}
	if s.NumberOfUsers != 2 {
		t.Errorf("number of users: got %d, want 2", s.NumberOfUsers)
	}
	if s.QuoteAssetInsuranceFundStake != 3_000 {
		t.Errorf("stake rollup: got %d, want 3_000", s.QuoteAssetInsuranceFundStake)
	}
}

func TestStatsManager_RecomputeReflectsVaultGrowth(t *testing.T) {
	markets := state.NewMarketManager()
	if _, err := markets.InitializeMarket(baseMarketConfig(0), 0); err != nil {
		t.Fatalf("init market: %v", err)
	}
	stakes := state.NewStakeManager()
	stats := state.NewStatsManager(markets, stakes)
	authority := uuid.New()

	stake, err := stakes.Initialize(0, authority)
	if err != nil {
		t.Fatalf("init stake: %v", err)
	}
	m, _ := markets.Get(0)
	if _, err := state.AddStake(m, stake, 0, 1_000); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// The vault doubled via revenue sweeps: same shares, twice the value.
	if err := stats.Recompute(authority, func(uint16) int64 { return 2_000 }); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	s, _ := stats.Get(authority)
	if s.QuoteAssetInsuranceFundStake != 2_000 {
		t.Errorf("stake rollup: got %d, want 2_000", s.QuoteAssetInsuranceFundStake)
	}
}

func TestStatsManager_RecomputeSaturatesOnHugeStakes(t *testing.T) {
	markets := state.NewMarketManager()
	stakes := state.NewStakeManager()
	stats := state.NewStatsManager(markets, stakes)
	authority := uuid.New()

	// Two markets each holding a stake worth more than half of int64. The
	// rollup runs on committed state, so it must clamp rather than fail.
	const huge = int64(5_000_000_000_000_000_000)
	for idx := uint16(0); idx < 2; idx++ {
		if _, err := markets.InitializeMarket(baseMarketConfig(idx), 0); err != nil {
			t.Fatalf("init market %d: %v", idx, err)
		}
		stake, err := stakes.Initialize(idx, authority)
		if err != nil {
			t.Fatalf("init stake %d: %v", idx, err)
		}
		m, _ := markets.Get(idx)
		if _, err := state.AddStake(m, stake, 0, huge); err != nil {
			t.Fatalf("stake %d: %v", idx, err)
		}
	}

	if err := stats.Recompute(authority, func(uint16) int64 { return huge }); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	s, _ := stats.Get(authority)
	if s.QuoteAssetInsuranceFundStake != gomath.MaxInt64 {
		t.Errorf("stake rollup: got %d, want MaxInt64", s.QuoteAssetInsuranceFundStake)
	}
}

func TestOracleManager_SequenceGapsTolerated(t *testing.T) {
	om := state.NewOracleManager()

	if err := om.UpdatePrice(0, 100, 1, 5, 50); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}
	// Gap from 5 to 9 is accepted.
	if err := om.UpdatePrice(0, 110, 1, 9, 60); err != nil {
		t.Fatalf("UpdatePrice with gap: %v", err)
	}
	// Stale sequence is silently dropped.
	if err := om.UpdatePrice(0, 90, 1, 7, 70); err != nil {
		t.Fatalf("stale UpdatePrice: %v", err)
	}

	markets := state.NewMarketManager()
	m, err := markets.InitializeMarket(baseMarketConfig(0), 0)
	if err != nil {
		t.Fatalf("init market: %v", err)
	}

	p, err := om.Price(m, 65)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if p.Price != 110 || p.Sequence != 9 {
		t.Errorf("got price=%d seq=%d, want 110/9", p.Price, p.Sequence)
	}
}
