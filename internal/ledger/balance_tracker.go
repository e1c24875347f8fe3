package ledger

import (
	"fmt"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Vault Balance Queries ===

// SpotVaultBalance returns the token balance of a market's operating vault:
// deposit inflows minus withdrawal outflows for that market.
func (bt *BalanceTracker) SpotVaultBalance(marketIndex uint16, assetID AssetID) int64 {
	return bt.GetBalance(NewSpotVaultKey(marketIndex, assetID))
}

// InsuranceVaultBalance returns the token balance of a market's insurance
// vault. This is the denominator of all share conversions for that market.
func (bt *BalanceTracker) InsuranceVaultBalance(marketIndex uint16, assetID AssetID) int64 {
	return bt.GetBalance(NewInsuranceVaultKey(marketIndex, assetID))
}

// === Invariant Checks ===

// ValidateSufficient checks that an account can fund an outgoing transfer.
// External boundary accounts are exempt: they are allowed to run negative
// because they mirror flows that happen outside the venue.
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	if key.Scope == AccountScopeExternal {
		return nil
	}
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("%w: account %s has %d, need %d",
			ErrInsufficientFunds, key.AccountPath(), balance, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances with the given snapshot
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		bt.balances[k] = v
	}
}
