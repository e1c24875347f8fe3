package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"

	"github.com/google/uuid"
)

// UserStats is a derived per-authority rollup: the token value of all
// insurance-fund shares the authority holds across markets. It carries no
// independent invariants and is recomputed transactionally on every stake
// mutation, never cached across unrelated operations.
type UserStats struct {
	Authority                    uuid.UUID
	NumberOfUsers                int64 // initialized stake records
	QuoteAssetInsuranceFundStake int64 // token units
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (s *UserStats) CanonicalBytes() []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, s.Authority[:]...)
	buf = appendInt64LE(buf, s.NumberOfUsers)
	buf = appendInt64LE(buf, s.QuoteAssetInsuranceFundStake)
	return buf
}

// VaultBalanceFunc reads the insurance vault's token balance for a market.
type VaultBalanceFunc func(marketIndex uint16) int64

// StatsManager owns the derived UserStats records.
type StatsManager struct {
	stats   map[uuid.UUID]*UserStats
	markets *MarketManager
	stakes  *StakeManager
}

func NewStatsManager(markets *MarketManager, stakes *StakeManager) *StatsManager {
	return &StatsManager{
		stats:   make(map[uuid.UUID]*UserStats),
		markets: markets,
		stakes:  stakes,
	}
}

func (sm *StatsManager) GetOrCreate(authority uuid.UUID) *UserStats {
	s, ok := sm.stats[authority]
	if !ok {
		s = &UserStats{Authority: authority}
		sm.stats[authority] = s
	}
	return s
}

func (sm *StatsManager) Get(authority uuid.UUID) (*UserStats, bool) {
	s, ok := sm.stats[authority]
	return s, ok
}

// RecordStakeInitialized bumps the initialized-stake count.
func (sm *StatsManager) RecordStakeInitialized(authority uuid.UUID) {
	sm.GetOrCreate(authority).NumberOfUsers++
}

// Recompute rebuilds the stake-value rollup for an authority from the
// committed stake and market records. It runs after the journal batch has
// been applied, so it must not fail: the per-market values sum with
// saturating arithmetic, and any remaining error means the committed state
// itself is inconsistent.
func (sm *StatsManager) Recompute(authority uuid.UUID, vaultBalance VaultBalanceFunc) error {
	var total int64
	for _, stake := range sm.stakes.AuthorityStakes(authority) {
		if stake.IfShares == 0 {
			continue
		}
		m, err := sm.markets.Get(stake.MarketIndex)
		if err != nil {
			return fmt.Errorf("stats rollup: %w", err)
		}
		value, err := fpmath.UnstakeSharesToAmount(stake.IfShares, m.TotalIfShares, vaultBalance(m.MarketIndex))
		if err != nil {
			return fmt.Errorf("stats rollup market %d: %w", m.MarketIndex, err)
		}
		total = fpmath.SaturatingAdd(total, value)
	}
	sm.GetOrCreate(authority).QuoteAssetInsuranceFundStake = total
	return nil
}

// Restore directly sets a stats record (used for snapshot restore).
func (sm *StatsManager) Restore(s UserStats) {
	sm.stats[s.Authority] = &s
}

// All returns every stats record (for snapshot creation).
func (sm *StatsManager) All() []*UserStats {
	result := make([]*UserStats, 0, len(sm.stats))
	for _, s := range sm.stats {
		result = append(result, s)
	}
	return result
}
