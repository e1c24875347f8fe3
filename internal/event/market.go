package event

import (
	"fmt"
)

// MarketInitialized creates a new spot market with its risk and rate
// parameters. Idempotency key: "market_init:{index}".
type MarketInitialized struct {
	Market                     uint16
	Name                       string
	Asset                      string
	OptimalUtilization         int64 // Fixed-point: utilization scale (1_000_000)
	OptimalRate                int64 // Fixed-point: annual rate scale (1_000_000)
	MaxRate                    int64
	InsuranceWithdrawPeriod    int64 // Seconds
	RevenueSettlePeriod        int64 // Seconds
	IfFactorNumerator          int64 // Interest share diverted to revenue pool
	IfFactorDenominator        int64
	LiquidatorFee              int64 // Fixed-point: 1_000_000 scale
	IfLiquidationFee           int64
	MaintenanceAssetWeight     int64
	MaintenanceLiabilityWeight int64
	OracleStalenessThreshold   int64 // Seconds
	Sequence                   int64
	Timestamp                  int64 // Epoch microseconds (versioned input)
}

func (m *MarketInitialized) IdempotencyKey() string {
	return fmt.Sprintf("market_init:%d", m.Market)
}

func (m *MarketInitialized) EventType() EventType {
	return EventTypeMarketInitialized
}

func (m *MarketInitialized) MarketIndex() *uint16 {
	idx := m.Market
	return &idx
}

func (m *MarketInitialized) SourceSequence() int64 {
	return m.Sequence
}

// InterestUpdate advances a market's cumulative interest indices to the
// event timestamp. Emitted by the accrual cron.
// Idempotency key: "{market}:interest:{ts}".
type InterestUpdate struct {
	Market    uint16
	Sequence  int64
	Timestamp int64 // Accrual instant in epoch microseconds (versioned input)
}

func (i *InterestUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%d:interest:%d", i.Market, i.Timestamp)
}

func (i *InterestUpdate) EventType() EventType {
	return EventTypeInterestUpdate
}

func (i *InterestUpdate) MarketIndex() *uint16 {
	idx := i.Market
	return &idx
}

func (i *InterestUpdate) SourceSequence() int64 {
	return i.Sequence
}

// RevenueSettled sweeps a market's accrued revenue pool into its insurance
// vault. Emitted by the settle cron; the core computes the swept amount.
// Idempotency key: "{market}:settle:{ts}".
type RevenueSettled struct {
	Market    uint16
	Sequence  int64
	Timestamp int64
}

func (r *RevenueSettled) IdempotencyKey() string {
	return fmt.Sprintf("%d:settle:%d", r.Market, r.Timestamp)
}

func (r *RevenueSettled) EventType() EventType {
	return EventTypeRevenueSettled
}

func (r *RevenueSettled) MarketIndex() *uint16 {
	idx := r.Market
	return &idx
}

func (r *RevenueSettled) SourceSequence() int64 {
	return r.Sequence
}

// MarketParamsUpdated changes a market's insurance and settlement
// parameters. Nil fields are left unchanged. Emitted by the admin surface.
// Idempotency key: "market_params:{index}:{seq}".
type MarketParamsUpdated struct {
	Market              uint16
	EscrowPeriod        *int64 // Seconds; insurance withdraw escrow
	RevenueSettlePeriod *int64 // Seconds
	IfFactorNumerator   *int64 // Both factor fields must be set together
	IfFactorDenominator *int64
	Sequence            int64
	Timestamp           int64
}

func (p *MarketParamsUpdated) IdempotencyKey() string {
	return fmt.Sprintf("market_params:%d:%d", p.Market, p.Sequence)
}

func (p *MarketParamsUpdated) EventType() EventType {
	return EventTypeMarketParamsUpdated
}

func (p *MarketParamsUpdated) MarketIndex() *uint16 {
	idx := p.Market
	return &idx
}

func (p *MarketParamsUpdated) SourceSequence() int64 {
	return p.Sequence
}
