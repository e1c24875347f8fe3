package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SpotVault/internal/event"
)

// AdminIngestService provides manual event injection for the admin HTTP
// API. It is for admin operations and backfills, not for high-throughput
// ingestion (use NATS for that).
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectDeposit manually injects a Deposit event.
func (s *AdminIngestService) InjectDeposit(
	ctx context.Context,
	authority uuid.UUID,
	market uint16,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now().UnixMicro()
	evt := &event.Deposit{
		DepositID: uuid.New(),
		Authority: authority,
		Market:    market,
		Amount:    amount,
		Sequence:  now, // Admin-injected: use timestamp as sequence
		Timestamp: now,
	}

	return s.send(ctx, evt)
}

// InjectWithdrawal manually injects a Withdrawal event.
func (s *AdminIngestService) InjectWithdrawal(
	ctx context.Context,
	authority uuid.UUID,
	market uint16,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now().UnixMicro()
	evt := &event.Withdrawal{
		WithdrawalID: uuid.New(),
		Authority:    authority,
		Market:       market,
		Amount:       amount,
		Sequence:     now,
		Timestamp:    now,
	}

	return s.send(ctx, evt)
}

// InjectOraclePrice manually injects an OraclePriceUpdate event.
func (s *AdminIngestService) InjectOraclePrice(
	ctx context.Context,
	market uint16,
	price int64,
	priceSequence int64,
) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.OraclePriceUpdate{
		Market:         market,
		Price:          price,
		Confidence:     0,
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().UnixMicro(),
	}

	return s.send(ctx, evt)
}

// InjectInterestUpdate manually injects an InterestUpdate event, forcing an
// accrual of the market's cumulative interest indices to now.
func (s *AdminIngestService) InjectInterestUpdate(
	ctx context.Context,
	market uint16,
) error {
	now := time.Now().UnixMicro()
	evt := &event.InterestUpdate{
		Market:    market,
		Sequence:  now,
		Timestamp: now,
	}

	return s.send(ctx, evt)
}

// InjectRevenueSettle manually injects a RevenueSettled event, sweeping the
// market's accrued revenue pool into its insurance vault if the settle
// period has elapsed.
func (s *AdminIngestService) InjectRevenueSettle(
	ctx context.Context,
	market uint16,
) error {
	now := time.Now().UnixMicro()
	evt := &event.RevenueSettled{
		Market:    market,
		Sequence:  now,
		Timestamp: now,
	}

	return s.send(ctx, evt)
}

// InjectParamUpdate manually injects a MarketParamsUpdated event. Nil
// parameters are left unchanged; at least one must be set.
func (s *AdminIngestService) InjectParamUpdate(
	ctx context.Context,
	market uint16,
	escrowPeriod, revenueSettlePeriod *int64,
	ifFactorNumerator, ifFactorDenominator *int64,
) error {
	if escrowPeriod == nil && revenueSettlePeriod == nil &&
		ifFactorNumerator == nil && ifFactorDenominator == nil {
		return fmt.Errorf("no parameters to update")
	}

	now := time.Now().UnixMicro()
	evt := &event.MarketParamsUpdated{
		Market:              market,
		EscrowPeriod:        escrowPeriod,
		RevenueSettlePeriod: revenueSettlePeriod,
		IfFactorNumerator:   ifFactorNumerator,
		IfFactorDenominator: ifFactorDenominator,
		Sequence:            now,
		Timestamp:           now,
	}

	return s.send(ctx, evt)
}

func (s *AdminIngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
