package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"
)

// InterestAccrual reports the outcome of one accrual step.
type InterestAccrual struct {
	MarketIndex           uint16
	Elapsed               int64
	Utilization           int64
	BorrowRate            int64
	BorrowInterestTokens  int64 // total interest charged to borrowers
	DepositInterestTokens int64 // portion compounded into the deposit index
	RevenueTokens         int64 // portion diverted into the revenue pool
}

// AccrueInterest advances both cumulative indices on the staged market to the
// given timestamp. A configured fraction of the borrower-side accrual is
// diverted into the revenue pool instead of compounding into the depositor
// index. Repeated calls within the same instant are no-ops; timestamp
// regression is treated the same way.
func AccrueInterest(m *SpotMarket, now int64) (InterestAccrual, error) {
	result := InterestAccrual{MarketIndex: m.MarketIndex}

	elapsed := now - m.LastInterestTs
	if elapsed <= 0 {
		return result, nil
	}
	result.Elapsed = elapsed

	if m.BorrowBalance == 0 {
		m.LastInterestTs = now
		return result, nil
	}

	depositTokens, err := m.DepositTokens()
	if err != nil {
		return result, fmt.Errorf("deposit tokens: %w", err)
	}
	borrowTokens, err := m.BorrowTokens()
	if err != nil {
		return result, fmt.Errorf("borrow tokens: %w", err)
	}

	utilization, err := fpmath.Utilization(depositTokens, borrowTokens)
	if err != nil {
		return result, fmt.Errorf("utilization: %w", err)
	}
	result.Utilization = utilization

	borrowRate, err := m.RateModel.BorrowRate(utilization)
	if err != nil {
		return result, fmt.Errorf("borrow rate: %w", err)
	}
	result.BorrowRate = borrowRate

	// Index growth rounds up so debt is never under-collected.
	rateElapsed, err := fpmath.CheckedMul(borrowRate, elapsed)
	if err != nil {
		return result, fmt.Errorf("rate * elapsed: %w", err)
	}
	borrowIndexDelta, err := fpmath.MulDivCeil(m.CumulativeBorrowInterest, rateElapsed,
		fpmath.SecondsPerYear*fpmath.RatePrecision)
	if err != nil {
		return result, fmt.Errorf("borrow index delta: %w", err)
	}
	if borrowIndexDelta == 0 {
		m.LastInterestTs = now
		return result, nil
	}

	interestTokens, err := fpmath.TokensFromBalance(m.BorrowBalance, borrowIndexDelta, fpmath.RoundUp)
	if err != nil {
		return result, fmt.Errorf("interest tokens: %w", err)
	}

	revenueTokens, err := fpmath.MulDivFloor(interestTokens, m.IfFactorNumerator, m.IfFactorDenominator)
	if err != nil {
		return result, fmt.Errorf("revenue share: %w", err)
	}
	depositorTokens := interestTokens - revenueTokens

	newBorrowIndex, err := fpmath.CheckedAdd(m.CumulativeBorrowInterest, borrowIndexDelta)
	if err != nil {
		return result, fmt.Errorf("borrow index: %w", err)
	}

	newDepositIndex := m.CumulativeDepositInterest
	if m.DepositBalance > 0 && depositorTokens > 0 {
		depositIndexDelta, err := fpmath.MulDivFloor(depositorTokens, fpmath.InterestPrecision, m.DepositBalance)
		if err != nil {
			return result, fmt.Errorf("deposit index delta: %w", err)
		}
		newDepositIndex, err = fpmath.CheckedAdd(m.CumulativeDepositInterest, depositIndexDelta)
		if err != nil {
			return result, fmt.Errorf("deposit index: %w", err)
		}
	} else if m.DepositBalance == 0 {
		// Nobody to pay: the full accrual goes to the revenue pool.
		revenueTokens = interestTokens
		depositorTokens = 0
	}

	revenueBalanceDelta, err := fpmath.BalanceFromTokens(revenueTokens, newDepositIndex, fpmath.RoundDown)
	if err != nil {
		return result, fmt.Errorf("revenue balance delta: %w", err)
	}
	newRevenueBalance, err := fpmath.CheckedAdd(m.RevenuePool.Balance, revenueBalanceDelta)
	if err != nil {
		return result, fmt.Errorf("revenue pool balance: %w", err)
	}

	m.CumulativeBorrowInterest = newBorrowIndex
	m.CumulativeDepositInterest = newDepositIndex
	m.RevenuePool.Balance = newRevenueBalance
	m.LastInterestTs = now

	result.BorrowInterestTokens = interestTokens
	result.DepositInterestTokens = depositorTokens
	result.RevenueTokens = revenueTokens
	return result, nil
}
