package ingestion

import (
	"encoding/json"
	"fmt"

	"SpotVault/internal/event"
)

// MarshalRawEvent is the inverse of ParseRawEvent. It serializes a typed
// event back into the snake_case wire JSON so the event log stores payloads
// that replay can re-parse with ParseRawEvent.
func MarshalRawEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.MarketInitialized:
		return json.Marshal(marketInitializedJSON{
			Market:                     e.Market,
			Name:                       e.Name,
			Asset:                      e.Asset,
			OptimalUtilization:         e.OptimalUtilization,
			OptimalRate:                e.OptimalRate,
			MaxRate:                    e.MaxRate,
			InsuranceWithdrawPeriod:    e.InsuranceWithdrawPeriod,
			RevenueSettlePeriod:        e.RevenueSettlePeriod,
			IfFactorNumerator:          e.IfFactorNumerator,
			IfFactorDenominator:        e.IfFactorDenominator,
			LiquidatorFee:              e.LiquidatorFee,
			IfLiquidationFee:           e.IfLiquidationFee,
			MaintenanceAssetWeight:     e.MaintenanceAssetWeight,
			MaintenanceLiabilityWeight: e.MaintenanceLiabilityWeight,
			OracleStalenessThreshold:   e.OracleStalenessThreshold,
			Sequence:                   e.Sequence,
			TimestampUs:                e.Timestamp,
		})
	case *event.Deposit:
		return json.Marshal(depositJSON{
			DepositID:   e.DepositID.String(),
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Amount:      e.Amount,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.Withdrawal:
		return json.Marshal(withdrawalJSON{
			WithdrawalID: e.WithdrawalID.String(),
			Authority:    e.Authority.String(),
			Market:       e.Market,
			Amount:       e.Amount,
			Sequence:     e.Sequence,
			TimestampUs:  e.Timestamp,
		})
	case *event.OraclePriceUpdate:
		return json.Marshal(oraclePriceJSON{
			Market:           e.Market,
			Price:            e.Price,
			Confidence:       e.Confidence,
			PriceSequence:    e.PriceSequence,
			PriceTimestampUs: e.PriceTimestamp,
		})
	case *event.InterestUpdate:
		return json.Marshal(interestUpdateJSON{
			Market:      e.Market,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.StakeInitialized:
		return json.Marshal(stakeInitializedJSON{
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.StakeAdded:
		return json.Marshal(stakeAddedJSON{
			StakeID:     e.StakeID.String(),
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Amount:      e.Amount,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.StakeRemoveRequested:
		return json.Marshal(stakeRemoveRequestJSON{
			RequestID:   e.RequestID.String(),
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Amount:      e.Amount,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.StakeRemoveCancelled:
		return json.Marshal(stakeRemoveRequestJSON{
			RequestID:   e.RequestID.String(),
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.StakeRemoved:
		return json.Marshal(stakeRemoveRequestJSON{
			RequestID:   e.RequestID.String(),
			Authority:   e.Authority.String(),
			Market:      e.Market,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.RevenueSettled:
		return json.Marshal(revenueSettledJSON{
			Market:      e.Market,
			Sequence:    e.Sequence,
			TimestampUs: e.Timestamp,
		})
	case *event.BorrowLiquidated:
		return json.Marshal(borrowLiquidatedJSON{
			LiquidationID:    e.LiquidationID.String(),
			Liquidatee:       e.Liquidatee.String(),
			Liquidator:       e.Liquidator.String(),
			LiabilityMarket:  e.LiabilityMarket,
			CollateralMarket: e.CollateralMarket,
			MaxRepay:         e.MaxRepay,
			Sequence:         e.Sequence,
			TimestampUs:      e.Timestamp,
		})
	case *event.MarketParamsUpdated:
		return json.Marshal(marketParamsJSON{
			Market:              e.Market,
			EscrowPeriod:        e.EscrowPeriod,
			RevenueSettlePeriod: e.RevenueSettlePeriod,
			IfFactorNumerator:   e.IfFactorNumerator,
			IfFactorDenominator: e.IfFactorDenominator,
			Sequence:            e.Sequence,
			TimestampUs:         e.Timestamp,
		})
	default:
		return nil, fmt.Errorf("marshal: unknown event type %T", evt)
	}
}
