package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeMarketInitialized
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeOraclePriceUpdate
	EventTypeInterestUpdate
	EventTypeStakeInitialized
	EventTypeStakeAdded
	EventTypeStakeRemoveRequested
	EventTypeStakeRemoveCancelled
	EventTypeStakeRemoved
	EventTypeRevenueSettled
	EventTypeBorrowLiquidated
	EventTypeMarketParamsUpdated
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nullable for global events)
	MarketIndex *uint16

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// Encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketIndex returns the market context (nil for global events)
	MarketIndex() *uint16

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeMarketInitialized:
		return "MarketInitialized"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	case EventTypeInterestUpdate:
		return "InterestUpdate"
	case EventTypeStakeInitialized:
		return "StakeInitialized"
	case EventTypeStakeAdded:
		return "StakeAdded"
	case EventTypeStakeRemoveRequested:
		return "StakeRemoveRequested"
	case EventTypeStakeRemoveCancelled:
		return "StakeRemoveCancelled"
	case EventTypeStakeRemoved:
		return "StakeRemoved"
	case EventTypeRevenueSettled:
		return "RevenueSettled"
	case EventTypeBorrowLiquidated:
		return "BorrowLiquidated"
	case EventTypeMarketParamsUpdated:
		return "MarketParamsUpdated"
	default:
		return "Unknown"
	}
}
