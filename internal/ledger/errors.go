package ledger

import "errors"

// ErrInsufficientFunds is returned when a vault account cannot cover an
// outgoing transfer. Wrapped with account and amount context at the call site.
var ErrInsufficientFunds = errors.New("insufficient funds")
