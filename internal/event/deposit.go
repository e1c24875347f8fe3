package event

import "github.com/google/uuid"

// Deposit credits tokens into a user's spot position. Repays any open
// borrow before flipping the remainder to a deposit.
type Deposit struct {
	DepositID uuid.UUID
	Authority uuid.UUID
	Market    uint16
	Amount    int64 // Fixed-point token amount
	Sequence  int64
	Timestamp int64
}

func (d *Deposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) MarketIndex() *uint16 {
	idx := d.Market
	return &idx
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Withdrawal debits tokens from a user's spot position. Draws down the
// deposit first and opens a borrow for any overflow, gated on the
// account staying healthy.
type Withdrawal struct {
	WithdrawalID uuid.UUID
	Authority    uuid.UUID
	Market       uint16
	Amount       int64
	Sequence     int64
	Timestamp    int64
}

func (w *Withdrawal) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *Withdrawal) EventType() EventType {
	return EventTypeWithdrawal
}

func (w *Withdrawal) MarketIndex() *uint16 {
	idx := w.Market
	return &idx
}

func (w *Withdrawal) SourceSequence() int64 {
	return w.Sequence
}
