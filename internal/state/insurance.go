package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"

	"github.com/google/uuid"
)

// InsuranceFundStake is one staker's share position in one market's insurance
// vault. A nonzero LastWithdrawRequestShares marks an outstanding escrowed
// withdrawal; at most one may be outstanding at a time.
type InsuranceFundStake struct {
	MarketIndex uint16
	Authority   uuid.UUID

	IfShares                  int64
	LastWithdrawRequestShares int64
	LastWithdrawRequestValue  int64 // token units, frozen at request time
	LastWithdrawRequestTs     int64
}

func (s *InsuranceFundStake) hasWithdrawRequest() bool {
	return s.LastWithdrawRequestShares != 0
}

func (s *InsuranceFundStake) clearWithdrawRequest() {
	s.LastWithdrawRequestShares = 0
	s.LastWithdrawRequestValue = 0
	s.LastWithdrawRequestTs = 0
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (s *InsuranceFundStake) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(s.MarketIndex), byte(s.MarketIndex>>8))
	buf = append(buf, s.Authority[:]...)
	buf = appendInt64LE(buf, s.IfShares)
	buf = appendInt64LE(buf, s.LastWithdrawRequestShares)
	buf = appendInt64LE(buf, s.LastWithdrawRequestValue)
	buf = appendInt64LE(buf, s.LastWithdrawRequestTs)
	return buf
}

type StakeKey struct {
	MarketIndex uint16
	Authority   uuid.UUID
}

// StakeManager owns all stake records. Records are created once and persist
// with zeroed fields after a full unstake.
type StakeManager struct {
	stakes map[StakeKey]*InsuranceFundStake
}

func NewStakeManager() *StakeManager {
	return &StakeManager{
		stakes: make(map[StakeKey]*InsuranceFundStake),
	}
}

// Initialize creates a zeroed stake record. Idempotent re-initialization is
// rejected so the user-count rollup stays honest.
func (sm *StakeManager) Initialize(marketIndex uint16, authority uuid.UUID) (*InsuranceFundStake, error) {
	key := StakeKey{MarketIndex: marketIndex, Authority: authority}
	if _, ok := sm.stakes[key]; ok {
		return nil, fmt.Errorf("stake already initialized for market %d authority %s", marketIndex, authority)
	}
	stake := &InsuranceFundStake{MarketIndex: marketIndex, Authority: authority}
	sm.stakes[key] = stake
	return stake, nil
}

func (sm *StakeManager) Get(marketIndex uint16, authority uuid.UUID) (*InsuranceFundStake, error) {
	stake, ok := sm.stakes[StakeKey{MarketIndex: marketIndex, Authority: authority}]
	if !ok {
		return nil, fmt.Errorf("%w: market %d authority %s", ErrStakeNotFound, marketIndex, authority)
	}
	return stake, nil
}

// Clone returns a value copy for staged mutation.
func (sm *StakeManager) Clone(marketIndex uint16, authority uuid.UUID) (InsuranceFundStake, error) {
	stake, err := sm.Get(marketIndex, authority)
	if err != nil {
		return InsuranceFundStake{}, err
	}
	return *stake, nil
}

// Commit replaces the record with a staged copy.
func (sm *StakeManager) Commit(s InsuranceFundStake) {
	key := StakeKey{MarketIndex: s.MarketIndex, Authority: s.Authority}
	sm.stakes[key] = &s
}

// Restore directly sets a stake record (used for snapshot restore).
func (sm *StakeManager) Restore(s InsuranceFundStake) {
	sm.Commit(s)
}

// AuthorityStakes returns all stake records held by an authority.
func (sm *StakeManager) AuthorityStakes(authority uuid.UUID) []*InsuranceFundStake {
	var result []*InsuranceFundStake
	for _, stake := range sm.stakes {
		if stake.Authority == authority {
			result = append(result, stake)
		}
	}
	return result
}

// All returns every stake record (for snapshot creation).
func (sm *StakeManager) All() []*InsuranceFundStake {
	result := make([]*InsuranceFundStake, 0, len(sm.stakes))
	for _, stake := range sm.stakes {
		result = append(result, stake)
	}
	return result
}

// AddStake mints shares for a token deposit into the insurance vault. The
// first stake into an empty pool mints 1:1; afterwards minting rounds down.
// Mutates the staged market and stake; the caller moves the tokens.
func AddStake(m *SpotMarket, stake *InsuranceFundStake, vaultBalance, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: stake amount %d", ErrZeroMintOrBurn, amount)
	}
	if stake.hasWithdrawRequest() {
		return 0, ErrWithdrawRequestInProgress
	}

	minted, err := fpmath.StakeAmountToShares(amount, m.TotalIfShares, vaultBalance)
	if err != nil {
		return 0, fmt.Errorf("mint shares: %w", err)
	}
	if minted == 0 {
		return 0, fmt.Errorf("%w: %d tokens mint no shares", ErrZeroMintOrBurn, amount)
	}

	newTotal, err := fpmath.CheckedAdd(m.TotalIfShares, minted)
	if err != nil {
		return 0, fmt.Errorf("total shares: %w", err)
	}
	newUser, err := fpmath.CheckedAdd(m.UserIfShares, minted)
	if err != nil {
		return 0, fmt.Errorf("user shares: %w", err)
	}
	newStake, err := fpmath.CheckedAdd(stake.IfShares, minted)
	if err != nil {
		return 0, fmt.Errorf("staker shares: %w", err)
	}

	m.TotalIfShares = newTotal
	m.UserIfShares = newUser
	stake.IfShares = newStake
	return minted, nil
}

// RequestRemoveStake opens an escrowed withdrawal for amount tokens, pricing
// the reserved shares at the current ratio rounded against the requester.
// Shares are not burned yet and keep tracking vault growth during escrow.
func RequestRemoveStake(m *SpotMarket, stake *InsuranceFundStake, vaultBalance, amount, now int64) (int64, error) {
	if stake.hasWithdrawRequest() {
		return 0, ErrWithdrawRequestInProgress
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: request amount %d", ErrZeroMintOrBurn, amount)
	}

	requestShares, err := fpmath.StakeAmountToSharesCeil(amount, m.TotalIfShares, vaultBalance)
	if err != nil {
		return 0, fmt.Errorf("price request: %w", err)
	}
	if requestShares == 0 {
		return 0, fmt.Errorf("%w: request reserves no shares", ErrZeroMintOrBurn)
	}
	if requestShares > stake.IfShares {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientShares, requestShares, stake.IfShares)
	}

	stake.LastWithdrawRequestShares = requestShares
	stake.LastWithdrawRequestValue = amount
	stake.LastWithdrawRequestTs = now
	return requestShares, nil
}

// RemoveStakeResult reports a finalized withdrawal.
type RemoveStakeResult struct {
	SharesBurned int64
	TokensPaid   int64
}

// RemoveStake finalizes an escrowed withdrawal once the escrow period has
// elapsed. Exactly the requested shares are burned and exactly the frozen
// request value is paid out; vault growth during escrow stays in the pool.
func RemoveStake(m *SpotMarket, stake *InsuranceFundStake, now int64) (RemoveStakeResult, error) {
	if !stake.hasWithdrawRequest() {
		return RemoveStakeResult{}, ErrNoWithdrawRequest
	}
	unlockTs := stake.LastWithdrawRequestTs + m.InsuranceWithdrawEscrowPeriod
	if now < unlockTs {
		return RemoveStakeResult{}, fmt.Errorf("%w: unlocks at %d, now %d", ErrEscrowPeriodNotElapsed, unlockTs, now)
	}

	burned := stake.LastWithdrawRequestShares
	paid := stake.LastWithdrawRequestValue

	newStakeShares, err := fpmath.CheckedSubNonNeg(stake.IfShares, burned)
	if err != nil {
		return RemoveStakeResult{}, fmt.Errorf("%w: burn %d exceeds held %d", ErrInsufficientShares, burned, stake.IfShares)
	}
	newTotal, err := fpmath.CheckedSubNonNeg(m.TotalIfShares, burned)
	if err != nil {
		return RemoveStakeResult{}, fmt.Errorf("total shares: %w", err)
	}
	newUser, err := fpmath.CheckedSubNonNeg(m.UserIfShares, burned)
	if err != nil {
		return RemoveStakeResult{}, fmt.Errorf("user shares: %w", err)
	}

	stake.IfShares = newStakeShares
	m.TotalIfShares = newTotal
	m.UserIfShares = newUser
	stake.clearWithdrawRequest()

	return RemoveStakeResult{SharesBurned: burned, TokensPaid: paid}, nil
}

// CancelRequestResult reports a cancelled withdrawal request.
type CancelRequestResult struct {
	SharesForfeited int64
}

// CancelRequestRemoveStake abandons an outstanding request. The holding is
// re-priced down to the frozen request value at the current ratio, so any
// value-per-share growth during escrow is permanently forfeited: the shares
// covering that growth are extinguished without a token transfer.
func CancelRequestRemoveStake(m *SpotMarket, stake *InsuranceFundStake, vaultBalance int64) (CancelRequestResult, error) {
	if !stake.hasWithdrawRequest() {
		return CancelRequestResult{}, ErrNoWithdrawRequest
	}

	// Re-pricing rounds up, the same direction as request pricing.
	repriced, err := fpmath.StakeAmountToSharesCeil(stake.LastWithdrawRequestValue, m.TotalIfShares, vaultBalance)
	if err != nil {
		return CancelRequestResult{}, fmt.Errorf("re-price holding: %w", err)
	}

	var forfeited int64
	if repriced < stake.LastWithdrawRequestShares {
		forfeited = stake.LastWithdrawRequestShares - repriced

		newStakeShares, err := fpmath.CheckedSubNonNeg(stake.IfShares, forfeited)
		if err != nil {
			return CancelRequestResult{}, fmt.Errorf("staker shares: %w", err)
		}
		newTotal, err := fpmath.CheckedSubNonNeg(m.TotalIfShares, forfeited)
		if err != nil {
			return CancelRequestResult{}, fmt.Errorf("total shares: %w", err)
		}
		newUser, err := fpmath.CheckedSubNonNeg(m.UserIfShares, forfeited)
		if err != nil {
			return CancelRequestResult{}, fmt.Errorf("user shares: %w", err)
		}

		stake.IfShares = newStakeShares
		m.TotalIfShares = newTotal
		m.UserIfShares = newUser
	}

	stake.clearWithdrawRequest()
	return CancelRequestResult{SharesForfeited: forfeited}, nil
}

// SettleRevenueResult reports a revenue sweep.
type SettleRevenueResult struct {
	TokensSwept int64
}

// SettleRevenue sweeps the full token value of the revenue pool into the
// insurance vault without minting shares. This is the only mechanism by which
// value-per-share rises.
func SettleRevenue(m *SpotMarket, now int64) (SettleRevenueResult, error) {
	nextSettleTs := m.LastRevenueSettleTs + m.RevenueSettlePeriod
	if now < nextSettleTs {
		return SettleRevenueResult{}, fmt.Errorf("%w: next settle at %d, now %d", ErrSettlePeriodNotElapsed, nextSettleTs, now)
	}

	tokens, err := m.RevenuePoolTokens()
	if err != nil {
		return SettleRevenueResult{}, fmt.Errorf("revenue pool tokens: %w", err)
	}

	m.RevenuePool.Balance = 0
	m.LastRevenueSettleTs = now
	return SettleRevenueResult{TokensSwept: tokens}, nil
}
