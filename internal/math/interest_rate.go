package math

// InterestRateModel is a two-slope utilization curve: the borrow rate climbs
// linearly to OptimalRate at OptimalUtilization, then steepens linearly to
// MaxRate at full utilization. Rates are annualized at RatePrecision.
type InterestRateModel struct {
	OptimalUtilization int64 // UtilizationPrecision scale
	OptimalRate        int64 // RatePrecision scale
	MaxRate            int64 // RatePrecision scale
}

// Utilization returns borrowTokens / depositTokens at UtilizationPrecision.
// A market with no deposits but outstanding borrows reads as fully utilized.
func Utilization(depositTokens, borrowTokens int64) (int64, error) {
	if borrowTokens == 0 {
		return 0, nil
	}
	if depositTokens == 0 {
		return UtilizationPrecision, nil
	}
	u, err := MulDivCeil(borrowTokens, UtilizationPrecision, depositTokens)
	if err != nil {
		return 0, err
	}
	if u > UtilizationPrecision {
		u = UtilizationPrecision
	}
	return u, nil
}

// BorrowRate returns the annualized borrow rate for the given utilization.
func (m InterestRateModel) BorrowRate(utilization int64) (int64, error) {
	if utilization <= m.OptimalUtilization {
		return MulDivCeil(m.OptimalRate, utilization, m.OptimalUtilization)
	}
	surplus := utilization - m.OptimalUtilization
	span := UtilizationPrecision - m.OptimalUtilization
	extra, err := MulDivCeil(m.MaxRate-m.OptimalRate, surplus, span)
	if err != nil {
		return 0, err
	}
	return CheckedAdd(m.OptimalRate, extra)
}

// TokensFromBalance converts a normalized balance to a token amount using a
// cumulative interest index. Deposit-side callers round down, borrow-side
// callers round up, so the ledger never over-credits or under-collects.
func TokensFromBalance(balance, cumulativeIndex int64, rounding RoundingMode) (int64, error) {
	return MulDiv(balance, cumulativeIndex, InterestPrecision, rounding)
}

// BalanceFromTokens is the inverse conversion.
func BalanceFromTokens(tokens, cumulativeIndex int64, rounding RoundingMode) (int64, error) {
	return MulDiv(tokens, InterestPrecision, cumulativeIndex, rounding)
}
