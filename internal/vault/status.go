package vault

// VaultStatus is the lifecycle phase of a vault within an epoch.
type VaultStatus int32

const (
	StatusDepositsClosed VaultStatus = iota
	StatusDepositsOpen
	StatusNotTraded
	StatusTraded
	StatusTradeExpired
	StatusFeesCollected
	StatusWithdrawalQueueProcessed
	StatusZombie
)

func (vs VaultStatus) String() string {
	switch vs {
	case StatusDepositsClosed:
		return "DepositsClosed"
	case StatusDepositsOpen:
		return "DepositsOpen"
	case StatusNotTraded:
		return "NotTraded"
	case StatusTraded:
		return "Traded"
	case StatusTradeExpired:
		return "TradeExpired"
	case StatusFeesCollected:
		return "FeesCollected"
	case StatusWithdrawalQueueProcessed:
		return "WithdrawalQueueProcessed"
	case StatusZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates lifecycle transitions. Every phase advance in the
// engine goes through this table; no transition may be skipped.
func (vs VaultStatus) CanTransitionTo(next VaultStatus) bool {
	validTransitions := map[VaultStatus][]VaultStatus{
		StatusDepositsClosed: {
			StatusDepositsOpen,
		},
		StatusDepositsOpen: {
			StatusNotTraded, // Deposit queue fully drained
		},
		StatusNotTraded: {
			StatusTraded,
		},
		StatusTraded: {
			StatusTradeExpired,
		},
		StatusTradeExpired: {
			StatusFeesCollected,
			StatusWithdrawalQueueProcessed, // Defaulted settlement skips fee collection
		},
		StatusFeesCollected: {
			StatusWithdrawalQueueProcessed,
		},
		StatusWithdrawalQueueProcessed: {
			StatusDepositsClosed, // Rollover into next epoch
			StatusZombie,         // Payoff converted — vault cannot roll forward
		},
		StatusZombie: {
			StatusWithdrawalQueueProcessed, // Residual withdrawals drained
		},
	}

	allowed, ok := validTransitions[vs]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// SettlementStatus tracks the epoch's trade from auction to final settlement.
type SettlementStatus int32

const (
	SettlementNotAuctioned SettlementStatus = iota
	SettlementAuctioned
	SettlementInitialPremiumPaid
	SettlementAwaitingSettlement
	SettlementSettled
	SettlementDefaulted
)

func (ss SettlementStatus) String() string {
	switch ss {
	case SettlementNotAuctioned:
		return "NotAuctioned"
	case SettlementAuctioned:
		return "Auctioned"
	case SettlementInitialPremiumPaid:
		return "InitialPremiumPaid"
	case SettlementAwaitingSettlement:
		return "AwaitingSettlement"
	case SettlementSettled:
		return "Settled"
	case SettlementDefaulted:
		return "Defaulted"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates settlement-status transitions.
func (ss SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	validTransitions := map[SettlementStatus][]SettlementStatus{
		SettlementNotAuctioned: {
			SettlementAuctioned,
		},
		SettlementAuctioned: {
			SettlementAuctioned, // Re-auction before trade start
			SettlementInitialPremiumPaid,
		},
		SettlementInitialPremiumPaid: {
			SettlementAwaitingSettlement, // Trigger condition fired at expiry
			SettlementSettled,            // No conversion — payoff stays in deposit asset
		},
		SettlementAwaitingSettlement: {
			SettlementSettled,
			SettlementDefaulted, // Counterparty missed the settlement deadline
		},
		SettlementSettled: {
			SettlementNotAuctioned,       // Rollover into next epoch
			SettlementAwaitingSettlement, // Post-expiry dispute reopened settlement
		},
		SettlementDefaulted: {
			SettlementNotAuctioned, // Rollover into next epoch
		},
	}

	allowed, ok := validTransitions[ss]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}
