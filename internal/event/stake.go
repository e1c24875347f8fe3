package event

import (
	"fmt"

	"github.com/google/uuid"
)

// StakeInitialized creates an empty insurance fund stake account for an
// authority in a market. Idempotency key: "stake_init:{market}:{authority}".
type StakeInitialized struct {
	Authority uuid.UUID
	Market    uint16
	Sequence  int64
	Timestamp int64
}

func (s *StakeInitialized) IdempotencyKey() string {
	return fmt.Sprintf("stake_init:%d:%s", s.Market, s.Authority)
}

func (s *StakeInitialized) EventType() EventType {
	return EventTypeStakeInitialized
}

func (s *StakeInitialized) MarketIndex() *uint16 {
	idx := s.Market
	return &idx
}

func (s *StakeInitialized) SourceSequence() int64 {
	return s.Sequence
}

// StakeAdded stakes tokens into a market's insurance fund, minting shares
// at the prevailing share price.
type StakeAdded struct {
	StakeID   uuid.UUID
	Authority uuid.UUID
	Market    uint16
	Amount    int64 // Token amount staked
	Sequence  int64
	Timestamp int64
}

func (s *StakeAdded) IdempotencyKey() string {
	return s.StakeID.String()
}

func (s *StakeAdded) EventType() EventType {
	return EventTypeStakeAdded
}

func (s *StakeAdded) MarketIndex() *uint16 {
	idx := s.Market
	return &idx
}

func (s *StakeAdded) SourceSequence() int64 {
	return s.Sequence
}

// StakeRemoveRequested starts the unstake escrow clock, freezing the
// claim value of the requested amount.
type StakeRemoveRequested struct {
	RequestID uuid.UUID
	Authority uuid.UUID
	Market    uint16
	Amount    int64 // Token amount to unstake
	Sequence  int64
	Timestamp int64
}

func (s *StakeRemoveRequested) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *StakeRemoveRequested) EventType() EventType {
	return EventTypeStakeRemoveRequested
}

func (s *StakeRemoveRequested) MarketIndex() *uint16 {
	idx := s.Market
	return &idx
}

func (s *StakeRemoveRequested) SourceSequence() int64 {
	return s.Sequence
}

// StakeRemoveCancelled abandons a pending unstake request, forfeiting any
// share-price growth accrued on the requested portion since the request.
type StakeRemoveCancelled struct {
	RequestID uuid.UUID
	Authority uuid.UUID
	Market    uint16
	Sequence  int64
	Timestamp int64
}

func (s *StakeRemoveCancelled) IdempotencyKey() string {
	return fmt.Sprintf("%s:cancel", s.RequestID)
}

func (s *StakeRemoveCancelled) EventType() EventType {
	return EventTypeStakeRemoveCancelled
}

func (s *StakeRemoveCancelled) MarketIndex() *uint16 {
	idx := s.Market
	return &idx
}

func (s *StakeRemoveCancelled) SourceSequence() int64 {
	return s.Sequence
}

// StakeRemoved completes a matured unstake request, burning the frozen
// shares and paying out exactly the frozen claim value.
type StakeRemoved struct {
	RequestID uuid.UUID
	Authority uuid.UUID
	Market    uint16
	Sequence  int64
	Timestamp int64
}

func (s *StakeRemoved) IdempotencyKey() string {
	return fmt.Sprintf("%s:remove", s.RequestID)
}

func (s *StakeRemoved) EventType() EventType {
	return EventTypeStakeRemoved
}

func (s *StakeRemoved) MarketIndex() *uint16 {
	idx := s.Market
	return &idx
}

func (s *StakeRemoved) SourceSequence() int64 {
	return s.Sequence
}
