package event

import (
	"github.com/google/uuid"
)

// BorrowLiquidated transfers an undercollateralized borrower's liability
// to a liquidator in exchange for discounted collateral. The liability
// market provides the event's market context.
type BorrowLiquidated struct {
	LiquidationID    uuid.UUID
	Liquidatee       uuid.UUID
	Liquidator       uuid.UUID
	LiabilityMarket  uint16
	CollateralMarket uint16
	MaxRepay         int64 // Fixed-point token cap on the liability transfer
	Sequence         int64
	Timestamp        int64
}

func (l *BorrowLiquidated) IdempotencyKey() string {
	return l.LiquidationID.String()
}

func (l *BorrowLiquidated) EventType() EventType {
	return EventTypeBorrowLiquidated
}

func (l *BorrowLiquidated) MarketIndex() *uint16 {
	idx := l.LiabilityMarket
	return &idx
}

func (l *BorrowLiquidated) SourceSequence() int64 {
	return l.Sequence
}
