package state

import (
	"fmt"

	fpmath "SpotVault/internal/math"

	"github.com/google/uuid"
)

// BalanceType tags a spot position as a deposit or a borrow. A position is
// always exactly one of the two; crossing zero flips the tag.
type BalanceType int32

const (
	BalanceTypeDeposit BalanceType = iota
	BalanceTypeBorrow
)

func (bt BalanceType) String() string {
	switch bt {
	case BalanceTypeDeposit:
		return "Deposit"
	case BalanceTypeBorrow:
		return "Borrow"
	default:
		return "Unknown"
	}
}

// SpotPosition is one market slot in a user account: a normalized balance
// tagged with its direction. Slots persist at zero balance once activated.
type SpotPosition struct {
	MarketIndex uint16
	Active      bool
	Balance     int64
	BalanceType BalanceType
}

// UserAccount holds a fixed-capacity position arena plus liquidation flags.
type UserAccount struct {
	Authority       uuid.UUID
	Positions       [MaxSpotMarkets]SpotPosition
	BeingLiquidated bool
	Bankrupt        bool
}

// Position returns the slot for a market, activating it on first use.
func (u *UserAccount) Position(marketIndex uint16) *SpotPosition {
	p := &u.Positions[marketIndex]
	if !p.Active {
		p.MarketIndex = marketIndex
		p.Active = true
		p.BalanceType = BalanceTypeDeposit
	}
	return p
}

// ActivePositions returns the in-use slots in market order.
func (u *UserAccount) ActivePositions() []*SpotPosition {
	var result []*SpotPosition
	for i := range u.Positions {
		if u.Positions[i].Active {
			result = append(result, &u.Positions[i])
		}
	}
	return result
}

// HasDeposits reports whether any active slot holds a nonzero deposit.
func (u *UserAccount) HasDeposits() bool {
	for i := range u.Positions {
		p := &u.Positions[i]
		if p.Active && p.BalanceType == BalanceTypeDeposit && p.Balance > 0 {
			return true
		}
	}
	return false
}

// HasBorrows reports whether any active slot holds a nonzero borrow.
func (u *UserAccount) HasBorrows() bool {
	for i := range u.Positions {
		p := &u.Positions[i]
		if p.Active && p.BalanceType == BalanceTypeBorrow && p.Balance > 0 {
			return true
		}
	}
	return false
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (u *UserAccount) CanonicalBytes() []byte {
	buf := make([]byte, 0, 32+MaxSpotMarkets*20)
	buf = append(buf, u.Authority[:]...)
	for i := range u.Positions {
		p := &u.Positions[i]
		if !p.Active {
			continue
		}
		buf = append(buf, byte(p.MarketIndex), byte(p.MarketIndex>>8))
		buf = append(buf, byte(p.BalanceType))
		buf = appendInt64LE(buf, p.Balance)
	}
	flags := byte(0)
	if u.BeingLiquidated {
		flags |= 1
	}
	if u.Bankrupt {
		flags |= 2
	}
	buf = append(buf, flags)
	return buf
}

// UserManager owns all user accounts.
type UserManager struct {
	users map[uuid.UUID]*UserAccount
}

func NewUserManager() *UserManager {
	return &UserManager{users: make(map[uuid.UUID]*UserAccount)}
}

// GetOrCreate returns the account for an authority, creating it empty.
func (um *UserManager) GetOrCreate(authority uuid.UUID) *UserAccount {
	u, ok := um.users[authority]
	if !ok {
		u = &UserAccount{Authority: authority}
		um.users[authority] = u
	}
	return u
}

func (um *UserManager) Get(authority uuid.UUID) (*UserAccount, error) {
	u, ok := um.users[authority]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, authority)
	}
	return u, nil
}

// Clone returns a value copy for staged mutation. UserAccount holds no
// reference types, so assignment is a deep copy.
func (um *UserManager) Clone(authority uuid.UUID) (UserAccount, error) {
	u, err := um.Get(authority)
	if err != nil {
		return UserAccount{}, err
	}
	return *u, nil
}

// CloneOrCreate is Clone for accounts that may not exist yet.
func (um *UserManager) CloneOrCreate(authority uuid.UUID) UserAccount {
	return *um.GetOrCreate(authority)
}

// Commit replaces the account with a staged copy.
func (um *UserManager) Commit(u UserAccount) {
	um.users[u.Authority] = &u
}

// Restore directly sets a user account (used for snapshot restore).
func (um *UserManager) Restore(u UserAccount) {
	um.Commit(u)
}

// All returns every user account (for snapshot creation).
func (um *UserManager) All() []*UserAccount {
	result := make([]*UserAccount, 0, len(um.users))
	for _, u := range um.users {
		result = append(result, u)
	}
	return result
}

// CreditTokens applies a token inflow to a position: a borrow is repaid
// first, any remainder becomes a deposit. Borrow reduction rounds down and
// deposit credit rounds down, both in the ledger's favor. Market aggregate
// balances move with the position.
func CreditTokens(m *SpotMarket, p *SpotPosition, tokens int64) error {
	if tokens <= 0 {
		return fmt.Errorf("%w: credit of %d tokens", ErrZeroMintOrBurn, tokens)
	}

	remaining := tokens
	if p.BalanceType == BalanceTypeBorrow && p.Balance > 0 {
		borrowTokens, err := fpmath.TokensFromBalance(p.Balance, m.CumulativeBorrowInterest, fpmath.RoundUp)
		if err != nil {
			return fmt.Errorf("borrow tokens: %w", err)
		}
		if remaining < borrowTokens {
			reduction, err := fpmath.BalanceFromTokens(remaining, m.CumulativeBorrowInterest, fpmath.RoundDown)
			if err != nil {
				return fmt.Errorf("borrow reduction: %w", err)
			}
			newBorrow, err := fpmath.CheckedSubNonNeg(m.BorrowBalance, reduction)
			if err != nil {
				return fmt.Errorf("market borrow balance: %w", err)
			}
			p.Balance -= reduction
			m.BorrowBalance = newBorrow
			return nil
		}

		// Full repayment, remainder becomes a deposit.
		newBorrow, err := fpmath.CheckedSubNonNeg(m.BorrowBalance, p.Balance)
		if err != nil {
			return fmt.Errorf("market borrow balance: %w", err)
		}
		m.BorrowBalance = newBorrow
		p.Balance = 0
		p.BalanceType = BalanceTypeDeposit
		remaining -= borrowTokens
		if remaining == 0 {
			return nil
		}
	}

	p.BalanceType = BalanceTypeDeposit
	depositDelta, err := fpmath.BalanceFromTokens(remaining, m.CumulativeDepositInterest, fpmath.RoundDown)
	if err != nil {
		return fmt.Errorf("deposit delta: %w", err)
	}
	newBalance, err := fpmath.CheckedAdd(p.Balance, depositDelta)
	if err != nil {
		return fmt.Errorf("position balance: %w", err)
	}
	newDeposit, err := fpmath.CheckedAdd(m.DepositBalance, depositDelta)
	if err != nil {
		return fmt.Errorf("market deposit balance: %w", err)
	}
	p.Balance = newBalance
	m.DepositBalance = newDeposit
	return nil
}

// DebitTokens applies a token outflow: the deposit is drawn down first, any
// remainder becomes a borrow. Deposit reduction and borrow creation both
// round up, in the ledger's favor.
func DebitTokens(m *SpotMarket, p *SpotPosition, tokens int64) error {
	if tokens <= 0 {
		return fmt.Errorf("%w: debit of %d tokens", ErrZeroMintOrBurn, tokens)
	}

	remaining := tokens
	if p.BalanceType == BalanceTypeDeposit && p.Balance > 0 {
		depositTokens, err := fpmath.TokensFromBalance(p.Balance, m.CumulativeDepositInterest, fpmath.RoundDown)
		if err != nil {
			return fmt.Errorf("deposit tokens: %w", err)
		}
		if remaining <= depositTokens {
			reduction, err := fpmath.BalanceFromTokens(remaining, m.CumulativeDepositInterest, fpmath.RoundUp)
			if err != nil {
				return fmt.Errorf("deposit reduction: %w", err)
			}
			if reduction > p.Balance {
				reduction = p.Balance
			}
			newDeposit, err := fpmath.CheckedSubNonNeg(m.DepositBalance, reduction)
			if err != nil {
				return fmt.Errorf("market deposit balance: %w", err)
			}
			p.Balance -= reduction
			m.DepositBalance = newDeposit
			return nil
		}

		// Deposit exhausted, remainder becomes a borrow.
		newDeposit, err := fpmath.CheckedSubNonNeg(m.DepositBalance, p.Balance)
		if err != nil {
			return fmt.Errorf("market deposit balance: %w", err)
		}
		m.DepositBalance = newDeposit
		p.Balance = 0
		remaining -= depositTokens
	}

	p.BalanceType = BalanceTypeBorrow
	borrowDelta, err := fpmath.BalanceFromTokens(remaining, m.CumulativeBorrowInterest, fpmath.RoundUp)
	if err != nil {
		return fmt.Errorf("borrow delta: %w", err)
	}
	newBalance, err := fpmath.CheckedAdd(p.Balance, borrowDelta)
	if err != nil {
		return fmt.Errorf("position balance: %w", err)
	}
	newBorrow, err := fpmath.CheckedAdd(m.BorrowBalance, borrowDelta)
	if err != nil {
		return fmt.Errorf("market borrow balance: %w", err)
	}
	p.Balance = newBalance
	m.BorrowBalance = newBorrow
	return nil
}
