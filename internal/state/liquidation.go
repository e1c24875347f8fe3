package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"
)

// LiquidationEngine evaluates collateral health and executes forced partial
// closeout of undercollateralized borrow positions.
type LiquidationEngine struct {
	markets *MarketManager
	oracle  *OracleManager
}

func NewLiquidationEngine(markets *MarketManager, oracle *OracleManager) *LiquidationEngine {
	return &LiquidationEngine{markets: markets, oracle: oracle}
}

type marketLookup func(marketIndex uint16) (*SpotMarket, error)

// CollateralValue is the maintenance-weighted net collateral of an account:
// oracle-priced deposits scaled down by the asset weight, minus oracle-priced
// borrows scaled up by the liability weight. Negative means liquidatable.
func (le *LiquidationEngine) CollateralValue(u *UserAccount, now int64) (int64, error) {
	return le.collateralValue(u, le.markets.Get, now)
}

// CollateralValueStaged evaluates health with staged market clones substituted
// for their committed slots. Used to gate operations before commit.
func (le *LiquidationEngine) CollateralValueStaged(u *UserAccount, staged []*SpotMarket, now int64) (int64, error) {
	lookup := func(index uint16) (*SpotMarket, error) {
		for _, m := range staged {
			if m != nil && m.MarketIndex == index {
				return m, nil
			}
		}
		return le.markets.Get(index)
	}
	return le.collateralValue(u, lookup, now)
}

func (le *LiquidationEngine) collateralValue(u *UserAccount, lookup marketLookup, now int64) (int64, error) {
	var total int64
	for _, p := range u.ActivePositions() {
		if p.Balance == 0 {
			continue
		}
		m, err := lookup(p.MarketIndex)
		if err != nil {
			return 0, err
		}
		price, err := le.oracle.Price(m, now)
		if err != nil {
			return 0, err
		}

		switch p.BalanceType {
		case BalanceTypeDeposit:
			tokens, err := fpmath.TokensFromBalance(p.Balance, m.CumulativeDepositInterest, fpmath.RoundDown)
			if err != nil {
				return 0, fmt.Errorf("deposit tokens: %w", err)
			}
			value, err := fpmath.MulDivFloor(tokens, price.Price, fpmath.PricePrecision)
			if err != nil {
				return 0, fmt.Errorf("deposit value: %w", err)
			}
			weighted, err := fpmath.MulDivFloor(value, m.MaintenanceAssetWeight, fpmath.PercentPrecision)
			if err != nil {
				return 0, fmt.Errorf("weighted deposit: %w", err)
			}
			total, err = fpmath.CheckedAdd(total, weighted)
			if err != nil {
				return 0, fmt.Errorf("collateral total: %w", err)
			}

		case BalanceTypeBorrow:
			tokens, err := fpmath.TokensFromBalance(p.Balance, m.CumulativeBorrowInterest, fpmath.RoundUp)
			if err != nil {
				return 0, fmt.Errorf("borrow tokens: %w", err)
			}
			value, err := fpmath.MulDivCeil(tokens, price.Price, fpmath.PricePrecision)
			if err != nil {
				return 0, fmt.Errorf("borrow value: %w", err)
			}
			weighted, err := fpmath.MulDivCeil(value, m.MaintenanceLiabilityWeight, fpmath.PercentPrecision)
			if err != nil {
				return 0, fmt.Errorf("weighted borrow: %w", err)
			}
			total, err = fpmath.CheckedSub(total, weighted)
			if err != nil {
				return 0, fmt.Errorf("collateral total: %w", err)
			}
		}
	}
	return total, nil
}

// CanBeLiquidated reports whether the account's maintenance collateral is
// exhausted.
func (le *LiquidationEngine) CanBeLiquidated(u *UserAccount, now int64) (bool, error) {
	value, err := le.CollateralValue(u, now)
	if err != nil {
		return false, err
	}
	return value < 0, nil
}

// LiquidationResult reports an executed liquidation.
type LiquidationResult struct {
	LiabilityTransfer int64 // tokens repaid by the liquidator
	AssetTransfer     int64 // collateral tokens seized for the liquidator
	IfFeeTokens       int64 // portion of the repayment kept for the fund
	CollateralValue   int64 // health at execution time
	Bankrupt          bool
}

// LiquidateBorrow executes a forced partial closeout against staged clones of
// the two markets and both user accounts: the liquidator repays up to
// maxRepay of the liquidatee's borrow in the liability market and seizes
// collateral-market deposits priced at a premium. The fee spread between what
// the liquidator pays and what the liquidatee's debt shrinks by is credited
// to the liability market's revenue pool. Callers commit the clones only on
// success, making the whole sequence atomic.
func (le *LiquidationEngine) LiquidateBorrow(
	liquidatee, liquidator *UserAccount,
	liabilityMarket, collateralMarket *SpotMarket,
	maxRepay, now int64,
) (LiquidationResult, error) {
	if maxRepay <= 0 {
		return LiquidationResult{}, fmt.Errorf("%w: max repay %d", ErrZeroMintOrBurn, maxRepay)
	}
	if liabilityMarket.MarketIndex == collateralMarket.MarketIndex {
		return LiquidationResult{}, fmt.Errorf("%w: liability and collateral market are both %d",
			ErrInvalidConfiguration, liabilityMarket.MarketIndex)
	}

	liabilityPos := liquidatee.Position(liabilityMarket.MarketIndex)
	if liabilityPos.BalanceType != BalanceTypeBorrow || liabilityPos.Balance == 0 {
		return LiquidationResult{}, fmt.Errorf("%w: no borrow in market %d", ErrPositionNotFound, liabilityMarket.MarketIndex)
	}
	collateralPos := liquidatee.Position(collateralMarket.MarketIndex)
	if collateralPos.BalanceType != BalanceTypeDeposit || collateralPos.Balance == 0 {
		return LiquidationResult{}, fmt.Errorf("%w: no deposit in market %d", ErrInsufficientCollateral, collateralMarket.MarketIndex)
	}

	// Health is evaluated against the staged markets so the gate sees the
	// freshly accrued indices.
	lookup := func(index uint16) (*SpotMarket, error) {
		switch index {
		case liabilityMarket.MarketIndex:
			return liabilityMarket, nil
		case collateralMarket.MarketIndex:
			return collateralMarket, nil
		default:
			return le.markets.Get(index)
		}
	}
	health, err := le.collateralValue(liquidatee, lookup, now)
	if err != nil {
		return LiquidationResult{}, err
	}
	if health >= 0 {
		return LiquidationResult{}, fmt.Errorf("%w: collateral value %d", ErrAccountHealthy, health)
	}

	liabilityPrice, err := le.oracle.Price(liabilityMarket, now)
	if err != nil {
		return LiquidationResult{}, err
	}
	collateralPrice, err := le.oracle.Price(collateralMarket, now)
	if err != nil {
		return LiquidationResult{}, err
	}

	borrowTokens, err := fpmath.TokensFromBalance(liabilityPos.Balance, liabilityMarket.CumulativeBorrowInterest, fpmath.RoundUp)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("borrow tokens: %w", err)
	}
	liabilityTransfer := maxRepay
	if borrowTokens < liabilityTransfer {
		liabilityTransfer = borrowTokens
	}

	premium := fpmath.PercentPrecision + liabilityMarket.LiquidatorFee
	assetTransfer, err := seizureForRepayment(liabilityTransfer, liabilityPrice.Price, collateralPrice.Price, premium)
	if err != nil {
		return LiquidationResult{}, err
	}

	availableCollateral, err := fpmath.TokensFromBalance(collateralPos.Balance, collateralMarket.CumulativeDepositInterest, fpmath.RoundDown)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("available collateral: %w", err)
	}
	if assetTransfer > availableCollateral {
		// Seize everything and shrink the repayment to match.
		assetTransfer = availableCollateral
		liabilityTransfer, err = repaymentForSeizure(assetTransfer, liabilityPrice.Price, collateralPrice.Price, premium)
		if err != nil {
			return LiquidationResult{}, err
		}
	}
	if liabilityTransfer == 0 || assetTransfer == 0 {
		return LiquidationResult{}, fmt.Errorf("%w: transfers round to zero", ErrZeroMintOrBurn)
	}

	ifFee, err := fpmath.MulDivFloor(liabilityTransfer, liabilityMarket.IfLiquidationFee, fpmath.PercentPrecision)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("fund fee: %w", err)
	}

	// The liquidator funds the repayment from an existing deposit; the
	// engine does not open a borrow on their behalf.
	liquidatorPos := liquidator.Position(liabilityMarket.MarketIndex)
	liquidatorTokens := int64(0)
	if liquidatorPos.BalanceType == BalanceTypeDeposit {
		liquidatorTokens, err = fpmath.TokensFromBalance(liquidatorPos.Balance, liabilityMarket.CumulativeDepositInterest, fpmath.RoundDown)
		if err != nil {
			return LiquidationResult{}, fmt.Errorf("liquidator balance: %w", err)
		}
	}
	if liquidatorTokens < liabilityTransfer {
		return LiquidationResult{}, fmt.Errorf("%w: liquidator holds %d of %d required",
			ErrInsufficientCollateral, liquidatorTokens, liabilityTransfer)
	}

	// Repay: the liquidatee's debt shrinks by the transfer net of the fund
	// fee; the fee is captured by the revenue pool.
	debtReduction := liabilityTransfer - ifFee
	if debtReduction > 0 {
		if err := CreditTokens(liabilityMarket, liabilityPos, debtReduction); err != nil {
			return LiquidationResult{}, fmt.Errorf("reduce borrow: %w", err)
		}
	}
	if ifFee > 0 {
		feeBalance, err := fpmath.BalanceFromTokens(ifFee, liabilityMarket.CumulativeDepositInterest, fpmath.RoundDown)
		if err != nil {
			return LiquidationResult{}, fmt.Errorf("fee balance: %w", err)
		}
		newRevenue, err := fpmath.CheckedAdd(liabilityMarket.RevenuePool.Balance, feeBalance)
		if err != nil {
			return LiquidationResult{}, fmt.Errorf("revenue pool: %w", err)
		}
		liabilityMarket.RevenuePool.Balance = newRevenue
	}

	if err := DebitTokens(liabilityMarket, liquidatorPos, liabilityTransfer); err != nil {
		return LiquidationResult{}, fmt.Errorf("charge liquidator: %w", err)
	}
	if err := DebitTokens(collateralMarket, collateralPos, assetTransfer); err != nil {
		return LiquidationResult{}, fmt.Errorf("seize collateral: %w", err)
	}
	if err := CreditTokens(collateralMarket, liquidator.Position(collateralMarket.MarketIndex), assetTransfer); err != nil {
		return LiquidationResult{}, fmt.Errorf("credit liquidator: %w", err)
	}

	liquidatee.BeingLiquidated = true
	bankrupt := !liquidatee.HasDeposits() && liquidatee.HasBorrows()
	if bankrupt {
		liquidatee.Bankrupt = true
	}

	return LiquidationResult{
		LiabilityTransfer: liabilityTransfer,
		AssetTransfer:     assetTransfer,
		IfFeeTokens:       ifFee,
		CollateralValue:   health,
		Bankrupt:          bankrupt,
	}, nil
}

// seizureForRepayment converts a repayment into collateral tokens at the
// liquidation premium: repay * liabilityPrice * premium / (collateralPrice * percent).
func seizureForRepayment(repay, liabilityPrice, collateralPrice, premium int64) (int64, error) {
	value, err := fpmath.MulDivFloor(repay, liabilityPrice, fpmath.PricePrecision)
	if err != nil {
		return 0, fmt.Errorf("liability value: %w", err)
	}
	valueWithPremium, err := fpmath.MulDivFloor(value, premium, fpmath.PercentPrecision)
	if err != nil {
		return 0, fmt.Errorf("premium value: %w", err)
	}
	seizure, err := fpmath.MulDivFloor(valueWithPremium, fpmath.PricePrecision, collateralPrice)
	if err != nil {
		return 0, fmt.Errorf("seizure tokens: %w", err)
	}
	return seizure, nil
}

// repaymentForSeizure is the inverse: the repayment a fixed seizure pays for.
func repaymentForSeizure(seizure, liabilityPrice, collateralPrice, premium int64) (int64, error) {
	value, err := fpmath.MulDivFloor(seizure, collateralPrice, fpmath.PricePrecision)
	if err != nil {
		return 0, fmt.Errorf("seizure value: %w", err)
	}
	valueNet, err := fpmath.MulDivFloor(value, fpmath.PercentPrecision, premium)
	if err != nil {
		return 0, fmt.Errorf("net value: %w", err)
	}
	repay, err := fpmath.MulDivFloor(valueNet, fpmath.PricePrecision, liabilityPrice)
	if err != nil {
		return 0, fmt.Errorf("repay tokens: %w", err)
	}
	return repay, nil
}
