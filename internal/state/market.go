package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"
)

// MaxSpotMarkets bounds the market arena. Market indices are slot positions.
const MaxSpotMarkets = 16

// RevenuePool accumulates captured borrow-interest spread and liquidation
// surplus in normalized deposit units, pending sweep into the insurance vault.
type RevenuePool struct {
	Balance int64
}

// SpotMarket is one tradable asset's deposit/borrow ledger plus its insurance
// sub-ledger. All balances are normalized units; token amounts are derived
// through the cumulative interest indices.
type SpotMarket struct {
	MarketIndex uint16
	Name        string

	DepositBalance            int64
	BorrowBalance             int64
	CumulativeDepositInterest int64 // InterestPrecision scale
	CumulativeBorrowInterest  int64 // InterestPrecision scale
	LastInterestTs            int64

	RevenuePool RevenuePool

	TotalIfShares int64
	UserIfShares  int64

	InsuranceWithdrawEscrowPeriod int64 // seconds
	RevenueSettlePeriod           int64 // seconds
	LastRevenueSettleTs           int64
	IfFactorNumerator             int64
	IfFactorDenominator           int64

	RateModel fpmath.InterestRateModel

	// Liquidation parameters, PercentPrecision scale.
	LiquidatorFee              int64
	IfLiquidationFee           int64
	MaintenanceAssetWeight     int64 // applied to deposits, <= PercentPrecision
	MaintenanceLiabilityWeight int64 // applied to borrows, >= PercentPrecision

	OracleStalenessThreshold int64 // seconds
}

// MarketConfig carries the validated parameters for a new market slot.
type MarketConfig struct {
	MarketIndex                   uint16
	Name                          string
	InsuranceWithdrawEscrowPeriod int64
	RevenueSettlePeriod           int64
	IfFactorNumerator             int64
	IfFactorDenominator           int64
	OptimalUtilization            int64
	OptimalRate                   int64
	MaxRate                       int64
	LiquidatorFee                 int64
	IfLiquidationFee              int64
	MaintenanceAssetWeight        int64
	MaintenanceLiabilityWeight    int64
	OracleStalenessThreshold      int64
}

func (c *MarketConfig) validate() error {
	if c.MarketIndex >= MaxSpotMarkets {
		return fmt.Errorf("%w: market index %d out of range", ErrInvalidConfiguration, c.MarketIndex)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: empty market name", ErrInvalidConfiguration)
	}
	if c.InsuranceWithdrawEscrowPeriod <= 0 {
		return fmt.Errorf("%w: escrow period must be > 0, got %d", ErrInvalidConfiguration, c.InsuranceWithdrawEscrowPeriod)
	}
	if c.RevenueSettlePeriod <= 0 {
		return fmt.Errorf("%w: revenue settle period must be > 0, got %d", ErrInvalidConfiguration, c.RevenueSettlePeriod)
	}
	if err := validateIfFactor(c.IfFactorNumerator, c.IfFactorDenominator); err != nil {
		return err
	}
	if c.OptimalUtilization <= 0 || c.OptimalUtilization >= fpmath.UtilizationPrecision {
		return fmt.Errorf("%w: optimal utilization must be in (0, %d), got %d",
			ErrInvalidConfiguration, fpmath.UtilizationPrecision, c.OptimalUtilization)
	}
	if c.OptimalRate < 0 || c.MaxRate < c.OptimalRate {
		return fmt.Errorf("%w: rates must satisfy 0 <= optimal <= max", ErrInvalidConfiguration)
	}
	if c.LiquidatorFee < 0 || c.LiquidatorFee >= fpmath.PercentPrecision {
		return fmt.Errorf("%w: liquidator fee %d out of range", ErrInvalidConfiguration, c.LiquidatorFee)
	}
	if c.IfLiquidationFee < 0 || c.IfLiquidationFee >= fpmath.PercentPrecision {
		return fmt.Errorf("%w: if liquidation fee %d out of range", ErrInvalidConfiguration, c.IfLiquidationFee)
	}
	if c.MaintenanceAssetWeight <= 0 || c.MaintenanceAssetWeight > fpmath.PercentPrecision {
		return fmt.Errorf("%w: maintenance asset weight %d out of range", ErrInvalidConfiguration, c.MaintenanceAssetWeight)
	}
	if c.MaintenanceLiabilityWeight < fpmath.PercentPrecision {
		return fmt.Errorf("%w: maintenance liability weight %d out of range", ErrInvalidConfiguration, c.MaintenanceLiabilityWeight)
	}
	if c.OracleStalenessThreshold <= 0 {
		return fmt.Errorf("%w: oracle staleness threshold must be > 0", ErrInvalidConfiguration)
	}
	return nil
}

// MarketParamUpdate carries optional parameter changes for a live market.
// Nil fields are left untouched; both ifFactor fields must be set together.
type MarketParamUpdate struct {
	EscrowPeriod        *int64
	RevenueSettlePeriod *int64
	IfFactorNumerator   *int64
	IfFactorDenominator *int64
}

// ApplyParamUpdate validates and applies a parameter update. Callers pass a
// staged clone and commit only on success.
func ApplyParamUpdate(m *SpotMarket, upd MarketParamUpdate) error {
	if upd.EscrowPeriod != nil {
		if *upd.EscrowPeriod <= 0 {
			return fmt.Errorf("%w: escrow period must be > 0, got %d", ErrInvalidConfiguration, *upd.EscrowPeriod)
		}
		m.InsuranceWithdrawEscrowPeriod = *upd.EscrowPeriod
	}
	if upd.RevenueSettlePeriod != nil {
		if *upd.RevenueSettlePeriod <= 0 {
			return fmt.Errorf("%w: revenue settle period must be > 0, got %d", ErrInvalidConfiguration, *upd.RevenueSettlePeriod)
		}
		m.RevenueSettlePeriod = *upd.RevenueSettlePeriod
	}
	if (upd.IfFactorNumerator == nil) != (upd.IfFactorDenominator == nil) {
		return fmt.Errorf("%w: if factor numerator and denominator must be updated together", ErrInvalidConfiguration)
	}
	if upd.IfFactorNumerator != nil {
		if err := validateIfFactor(*upd.IfFactorNumerator, *upd.IfFactorDenominator); err != nil {
			return err
		}
		m.IfFactorNumerator = *upd.IfFactorNumerator
		m.IfFactorDenominator = *upd.IfFactorDenominator
	}
	return nil
}

func validateIfFactor(numerator, denominator int64) error {
	if denominator <= 0 {
		return fmt.Errorf("%w: if factor denominator must be > 0, got %d", ErrInvalidConfiguration, denominator)
	}
	if numerator < 0 || numerator > denominator {
		return fmt.Errorf("%w: if factor %d/%d out of range", ErrInvalidConfiguration, numerator, denominator)
	}
	return nil
}

// MarketManager owns the fixed-capacity market arena.
type MarketManager struct {
	slots [MaxSpotMarkets]SpotMarket
	inUse [MaxSpotMarkets]bool
}

func NewMarketManager() *MarketManager {
	return &MarketManager{}
}

// InitializeMarket allocates and seeds a market slot. Both interest indices
// start at one.
func (mm *MarketManager) InitializeMarket(cfg MarketConfig, now int64) (*SpotMarket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if mm.inUse[cfg.MarketIndex] {
		return nil, fmt.Errorf("%w: index %d", ErrMarketSlotInUse, cfg.MarketIndex)
	}

	mm.slots[cfg.MarketIndex] = SpotMarket{
		MarketIndex:               cfg.MarketIndex,
		Name:                      cfg.Name,
		CumulativeDepositInterest: fpmath.InterestPrecision,
		CumulativeBorrowInterest:  fpmath.InterestPrecision,
		LastInterestTs:            now,
		LastRevenueSettleTs:       now,

		InsuranceWithdrawEscrowPeriod: cfg.InsuranceWithdrawEscrowPeriod,
		RevenueSettlePeriod:           cfg.RevenueSettlePeriod,
		IfFactorNumerator:             cfg.IfFactorNumerator,
		IfFactorDenominator:           cfg.IfFactorDenominator,

		RateModel: fpmath.InterestRateModel{
			OptimalUtilization: cfg.OptimalUtilization,
			OptimalRate:        cfg.OptimalRate,
			MaxRate:            cfg.MaxRate,
		},

		LiquidatorFee:              cfg.LiquidatorFee,
		IfLiquidationFee:           cfg.IfLiquidationFee,
		MaintenanceAssetWeight:     cfg.MaintenanceAssetWeight,
		MaintenanceLiabilityWeight: cfg.MaintenanceLiabilityWeight,
		OracleStalenessThreshold:   cfg.OracleStalenessThreshold,
	}
	mm.inUse[cfg.MarketIndex] = true

	return &mm.slots[cfg.MarketIndex], nil
}

// Get returns the live market record.
func (mm *MarketManager) Get(index uint16) (*SpotMarket, error) {
	if index >= MaxSpotMarkets || !mm.inUse[index] {
		return nil, fmt.Errorf("%w: index %d", ErrMarketNotFound, index)
	}
	return &mm.slots[index], nil
}

// Clone returns a value copy for staged mutation. SpotMarket holds no
// reference types, so assignment is a deep copy.
func (mm *MarketManager) Clone(index uint16) (SpotMarket, error) {
	m, err := mm.Get(index)
	if err != nil {
		return SpotMarket{}, err
	}
	return *m, nil
}

// Commit replaces the slot with a staged copy.
func (mm *MarketManager) Commit(m SpotMarket) {
	mm.slots[m.MarketIndex] = m
	mm.inUse[m.MarketIndex] = true
}

// ActiveMarkets returns the in-use market indices in ascending order.
func (mm *MarketManager) ActiveMarkets() []uint16 {
	var indices []uint16
	for i := uint16(0); i < MaxSpotMarkets; i++ {
		if mm.inUse[i] {
			indices = append(indices, i)
		}
	}
	return indices
}

// Restore directly sets a market slot (used for snapshot restore).
func (mm *MarketManager) Restore(m SpotMarket) {
	mm.slots[m.MarketIndex] = m
	mm.inUse[m.MarketIndex] = true
}

// DepositTokens returns the token value of the market's total deposits,
// rounded down.
func (m *SpotMarket) DepositTokens() (int64, error) {
	return fpmath.TokensFromBalance(m.DepositBalance, m.CumulativeDepositInterest, fpmath.RoundDown)
}

// BorrowTokens returns the token value of the market's total borrows,
// rounded up.
func (m *SpotMarket) BorrowTokens() (int64, error) {
	return fpmath.TokensFromBalance(m.BorrowBalance, m.CumulativeBorrowInterest, fpmath.RoundUp)
}

// RevenuePoolTokens values the revenue pool through the deposit index.
func (m *SpotMarket) RevenuePoolTokens() (int64, error) {
	return fpmath.TokensFromBalance(m.RevenuePool.Balance, m.CumulativeDepositInterest, fpmath.RoundDown)
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (m *SpotMarket) CanonicalBytes() []byte {
	buf := make([]byte, 0, 160)

	buf = append(buf, byte(m.MarketIndex), byte(m.MarketIndex>>8))
	buf = append(buf, byte(len(m.Name)))
	buf = append(buf, []byte(m.Name)...)

	buf = appendInt64LE(buf, m.DepositBalance)
	buf = appendInt64LE(buf, m.BorrowBalance)
	buf = appendInt64LE(buf, m.CumulativeDepositInterest)
	buf = appendInt64LE(buf, m.CumulativeBorrowInterest)
	buf = appendInt64LE(buf, m.LastInterestTs)
	buf = appendInt64LE(buf, m.RevenuePool.Balance)
	buf = appendInt64LE(buf, m.TotalIfShares)
	buf = appendInt64LE(buf, m.UserIfShares)
	buf = appendInt64LE(buf, m.InsuranceWithdrawEscrowPeriod)
	buf = appendInt64LE(buf, m.RevenueSettlePeriod)
	buf = appendInt64LE(buf, m.LastRevenueSettleTs)
	buf = appendInt64LE(buf, m.IfFactorNumerator)
	buf = appendInt64LE(buf, m.IfFactorDenominator)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
