package state

import "errors"

// Operation-level failures. Every operation either applies fully or surfaces
// one of these with no state change.
var (
	ErrMarketNotFound     = errors.New("spot market not found")
	ErrMarketSlotInUse    = errors.New("spot market slot already in use")
	ErrStakeNotFound      = errors.New("insurance fund stake not found")
	ErrUserNotFound       = errors.New("user account not found")
	ErrPositionNotFound   = errors.New("spot position not found")
	ErrInsufficientShares = errors.New("insufficient insurance fund shares")
	ErrZeroMintOrBurn     = errors.New("operation would mint or burn zero shares")

	ErrWithdrawRequestInProgress = errors.New("withdraw request already in progress")
	ErrNoWithdrawRequest         = errors.New("no outstanding withdraw request")
	ErrEscrowPeriodNotElapsed    = errors.New("insurance withdraw escrow period has not elapsed")
	ErrSettlePeriodNotElapsed    = errors.New("revenue settle period has not elapsed")

	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrUndercollateralized    = errors.New("account is undercollateralized")
	ErrAccountHealthy         = errors.New("account cannot be liquidated")
	ErrStaleOracle            = errors.New("oracle price is stale")
	ErrNoOraclePrice          = errors.New("no oracle price for market")

	ErrInvalidConfiguration = errors.New("invalid market configuration")
)
