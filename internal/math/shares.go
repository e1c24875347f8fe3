package math

// Share-pool math for the insurance vault. Minting rounds down and request
// pricing rounds up so the pool never pays out more than a stake is worth.

// StakeAmountToShares returns the shares minted for depositing amount tokens
// into a vault holding vaultBalance tokens against totalShares outstanding.
// An empty pool bootstraps 1:1.
func StakeAmountToShares(amount, totalShares, vaultBalance int64) (int64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	if vaultBalance == 0 {
		// Shares exist but the pool is empty: prior stakers are wiped out,
		// so the depositor re-bootstraps at 1:1.
		return amount, nil
	}
	return MulDivFloor(amount, totalShares, vaultBalance)
}

// StakeAmountToSharesCeil prices a withdrawal request: the shares that must
// be reserved to claim amount tokens at the current ratio, rounded against
// the requester.
func StakeAmountToSharesCeil(amount, totalShares, vaultBalance int64) (int64, error) {
	if totalShares == 0 || vaultBalance == 0 {
		return amount, nil
	}
	return MulDivCeil(amount, totalShares, vaultBalance)
}

// UnstakeSharesToAmount values shares against the pool: the token amount a
// holder of shares could claim, rounded down.
func UnstakeSharesToAmount(shares, totalShares, vaultBalance int64) (int64, error) {
	if totalShares == 0 {
		return 0, nil
	}
	return MulDivFloor(shares, vaultBalance, totalShares)
}
