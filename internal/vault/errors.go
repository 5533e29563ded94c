package vault

import "errors"

// Error taxonomy for lifecycle operations. Every engine operation either
// completes in full or is rejected with one of these; there are no partial
// effects and no silent recovery.
var (
	ErrInvalidProduct          = errors.New("invalid product")
	ErrInvalidVault            = errors.New("invalid vault")
	ErrInvalidVaultStatus      = errors.New("invalid vault status")
	ErrInvalidSettlementStatus = errors.New("invalid settlement status")
	ErrVaultInZombieState      = errors.New("vault in zombie state")
	ErrTradeDefaulted          = errors.New("trade defaulted")
	ErrVaultInDispute          = errors.New("vault in dispute")
	ErrVaultNotInDispute       = errors.New("vault not in dispute")
	ErrOutsideDisputePeriod    = errors.New("outside dispute period")
	ErrTradeHasNoWinner        = errors.New("trade has no winner")
	ErrTradeNotConverted       = errors.New("trade not converted")
	ErrTradeConverted          = errors.New("trade converted")
	ErrInvalidTradeEndDate     = errors.New("invalid trade end date")
	ErrInvalidPrice            = errors.New("invalid price")
	ErrValueTooSmall           = errors.New("value too small")
	ErrValueTooLarge           = errors.New("value too large")
	ErrValueIsZero             = errors.New("value is zero")
	ErrNotTradeWinner          = errors.New("not trade winner")
	ErrNotTradeWinnerOrAdmin   = errors.New("not trade winner or admin")
	ErrTradeNotStarted         = errors.New("trade not started")
	ErrNoProxyForRedeposit     = errors.New("no proxy for redeposit")
	ErrNotAuthorized           = errors.New("not authorized")
)
