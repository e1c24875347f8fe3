package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"SpotVault/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "MarketInitialized":
		return parseMarketInitialized(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	case "InterestUpdate":
		return parseInterestUpdate(raw.Data)
	case "StakeInitialized":
		return parseStakeInitialized(raw.Data)
	case "StakeAdded":
		return parseStakeAdded(raw.Data)
	case "StakeRemoveRequested":
		return parseStakeRemoveRequested(raw.Data)
	case "StakeRemoveCancelled":
		return parseStakeRemoveCancelled(raw.Data)
	case "StakeRemoved":
		return parseStakeRemoved(raw.Data)
	case "RevenueSettled":
		return parseRevenueSettled(raw.Data)
	case "BorrowLiquidated":
		return parseBorrowLiquidated(raw.Data)
	case "MarketParamsUpdated":
		return parseMarketParamsUpdated(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type marketInitializedJSON struct {
	Market                     uint16 `json:"market"`
	Name                       string `json:"name"`
	Asset                      string `json:"asset"`
	OptimalUtilization         int64  `json:"optimal_utilization"`
	OptimalRate                int64  `json:"optimal_rate"`
	MaxRate                    int64  `json:"max_rate"`
	InsuranceWithdrawPeriod    int64  `json:"insurance_withdraw_period_s"`
	RevenueSettlePeriod        int64  `json:"revenue_settle_period_s"`
	IfFactorNumerator          int64  `json:"if_factor_numerator"`
	IfFactorDenominator        int64  `json:"if_factor_denominator"`
	LiquidatorFee              int64  `json:"liquidator_fee"`
	IfLiquidationFee           int64  `json:"if_liquidation_fee"`
	MaintenanceAssetWeight     int64  `json:"maintenance_asset_weight"`
	MaintenanceLiabilityWeight int64  `json:"maintenance_liability_weight"`
	OracleStalenessThreshold   int64  `json:"oracle_staleness_threshold_s"`
	Sequence                   int64  `json:"sequence"`
	TimestampUs                int64  `json:"timestamp_us"`
}

func parseMarketInitialized(data []byte) (*event.MarketInitialized, error) {
	var j marketInitializedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketInitialized: %w", err)
	}
	if j.Asset == "" {
		return nil, fmt.Errorf("parse MarketInitialized: missing asset")
	}
	return &event.MarketInitialized{
		Market:                     j.Market,
		Name:                       j.Name,
		Asset:                      j.Asset,
		OptimalUtilization:         j.OptimalUtilization,
		OptimalRate:                j.OptimalRate,
		MaxRate:                    j.MaxRate,
		InsuranceWithdrawPeriod:    j.InsuranceWithdrawPeriod,
		RevenueSettlePeriod:        j.RevenueSettlePeriod,
		IfFactorNumerator:          j.IfFactorNumerator,
		IfFactorDenominator:        j.IfFactorDenominator,
		LiquidatorFee:              j.LiquidatorFee,
		IfLiquidationFee:           j.IfLiquidationFee,
		MaintenanceAssetWeight:     j.MaintenanceAssetWeight,
		MaintenanceLiabilityWeight: j.MaintenanceLiabilityWeight,
		OracleStalenessThreshold:   j.OracleStalenessThreshold,
		Sequence:                   j.Sequence,
		Timestamp:                  j.TimestampUs,
	}, nil
}

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	Authority   string `json:"authority"`
	Market      uint16 `json:"market"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse Deposit: non-positive amount %d", j.Amount)
	}
	return &event.Deposit{
		DepositID: depositID,
		Authority: authority,
		Market:    j.Market,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	Authority    string `json:"authority"`
	Market       uint16 `json:"market"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseWithdrawal(data []byte) (*event.Withdrawal, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse Withdrawal: non-positive amount %d", j.Amount)
	}
	return &event.Withdrawal{
		WithdrawalID: wdID,
		Authority:    authority,
		Market:       j.Market,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		Timestamp:    j.TimestampUs,
	}, nil
}

type oraclePriceJSON struct {
	Market           uint16 `json:"market"`
	Price            int64  `json:"price"`
	Confidence       int64  `json:"confidence"`
	PriceSequence    int64  `json:"price_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

func parseOraclePriceUpdate(data []byte) (*event.OraclePriceUpdate, error) {
	var j oraclePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}
	if j.Price <= 0 {
		return nil, fmt.Errorf("parse OraclePriceUpdate: non-positive price %d", j.Price)
	}
	return &event.OraclePriceUpdate{
		Market:         j.Market,
		Price:          j.Price,
		Confidence:     j.Confidence,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestampUs,
	}, nil
}

type interestUpdateJSON struct {
	Market      uint16 `json:"market"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseInterestUpdate(data []byte) (*event.InterestUpdate, error) {
	var j interestUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InterestUpdate: %w", err)
	}
	return &event.InterestUpdate{
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type stakeInitializedJSON struct {
	Authority   string `json:"authority"`
	Market      uint16 `json:"market"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeInitialized(data []byte) (*event.StakeInitialized, error) {
	var j stakeInitializedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeInitialized: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	return &event.StakeInitialized{
		Authority: authority,
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type stakeAddedJSON struct {
	StakeID     string `json:"stake_id"`
	Authority   string `json:"authority"`
	Market      uint16 `json:"market"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeAdded(data []byte) (*event.StakeAdded, error) {
	var j stakeAddedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeAdded: %w", err)
	}
	stakeID, err := uuid.Parse(j.StakeID)
	if err != nil {
		return nil, fmt.Errorf("parse stake_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse StakeAdded: non-positive amount %d", j.Amount)
	}
	return &event.StakeAdded{
		StakeID:   stakeID,
		Authority: authority,
		Market:    j.Market,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type stakeRemoveRequestJSON struct {
	RequestID   string `json:"request_id"`
	Authority   string `json:"authority"`
	Market      uint16 `json:"market"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeRemoveRequested(data []byte) (*event.StakeRemoveRequested, error) {
	var j stakeRemoveRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeRemoveRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse StakeRemoveRequested: non-positive amount %d", j.Amount)
	}
	return &event.StakeRemoveRequested{
		RequestID: requestID,
		Authority: authority,
		Market:    j.Market,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseStakeRemoveCancelled(data []byte) (*event.StakeRemoveCancelled, error) {
	var j stakeRemoveRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeRemoveCancelled: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	return &event.StakeRemoveCancelled{
		RequestID: requestID,
		Authority: authority,
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseStakeRemoved(data []byte) (*event.StakeRemoved, error) {
	var j stakeRemoveRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeRemoved: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	authority, err := uuid.Parse(j.Authority)
	if err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	return &event.StakeRemoved{
		RequestID: requestID,
		Authority: authority,
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type revenueSettledJSON struct {
	Market      uint16 `json:"market"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRevenueSettled(data []byte) (*event.RevenueSettled, error) {
	var j revenueSettledJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RevenueSettled: %w", err)
	}
	return &event.RevenueSettled{
		Market:    j.Market,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type borrowLiquidatedJSON struct {
	LiquidationID    string `json:"liquidation_id"`
	Liquidatee       string `json:"liquidatee"`
	Liquidator       string `json:"liquidator"`
	LiabilityMarket  uint16 `json:"liability_market"`
	CollateralMarket uint16 `json:"collateral_market"`
	MaxRepay         int64  `json:"max_repay"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseBorrowLiquidated(data []byte) (*event.BorrowLiquidated, error) {
	var j borrowLiquidatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BorrowLiquidated: %w", err)
	}
	liqID, err := uuid.Parse(j.LiquidationID)
	if err != nil {
		return nil, fmt.Errorf("parse liquidation_id: %w", err)
	}
	liquidatee, err := uuid.Parse(j.Liquidatee)
	if err != nil {
		return nil, fmt.Errorf("parse liquidatee: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	if j.MaxRepay <= 0 {
		return nil, fmt.Errorf("parse BorrowLiquidated: non-positive max_repay %d", j.MaxRepay)
	}
	return &event.BorrowLiquidated{
		LiquidationID:    liqID,
		Liquidatee:       liquidatee,
		Liquidator:       liquidator,
		LiabilityMarket:  j.LiabilityMarket,
		CollateralMarket: j.CollateralMarket,
		MaxRepay:         j.MaxRepay,
		Sequence:         j.Sequence,
		Timestamp:        j.TimestampUs,
	}, nil
}

type marketParamsJSON struct {
	Market              uint16 `json:"market"`
	EscrowPeriod        *int64 `json:"escrow_period_s,omitempty"`
	RevenueSettlePeriod *int64 `json:"revenue_settle_period_s,omitempty"`
	IfFactorNumerator   *int64 `json:"if_factor_numerator,omitempty"`
	IfFactorDenominator *int64 `json:"if_factor_denominator,omitempty"`
	Sequence            int64  `json:"sequence"`
	TimestampUs         int64  `json:"timestamp_us"`
}

func parseMarketParamsUpdated(data []byte) (*event.MarketParamsUpdated, error) {
	var j marketParamsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketParamsUpdated: %w", err)
	}
	if j.EscrowPeriod == nil && j.RevenueSettlePeriod == nil &&
		j.IfFactorNumerator == nil && j.IfFactorDenominator == nil {
		return nil, fmt.Errorf("parse MarketParamsUpdated: no parameters to update")
	}
	return &event.MarketParamsUpdated{
		Market:              j.Market,
		EscrowPeriod:        j.EscrowPeriod,
		RevenueSettlePeriod: j.RevenueSettlePeriod,
		IfFactorNumerator:   j.IfFactorNumerator,
		IfFactorDenominator: j.IfFactorDenominator,
		Sequence:            j.Sequence,
		Timestamp:           j.TimestampUs,
	}, nil
}
