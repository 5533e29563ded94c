package command

import (
	"github.com/google/uuid"
)

// Type discriminator for command payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeCreateProduct
	TypeCreateVault
	TypeQueueDeposit
	TypeOpenDeposits
	TypeProcessDepositQueue
	TypeEndAuction
	TypeStartTrade
	TypeCheckTradeExpiry
	TypeCheckSettlementDefault
	TypeSettleVault
	TypeCollectFees
	TypeQueueWithdrawal
	TypeProcessWithdrawalQueue
	TypeRolloverVault
	TypeDisputeVault
	TypeProcessDispute
	TypeOverridePrice
	TypeSetVaultStatus
	TypeSetSettlementStatus
	TypeSetPayoffDenomination
)

func (t Type) String() string {
	switch t {
	case TypeCreateProduct:
		return "CreateProduct"
	case TypeCreateVault:
		return "CreateVault"
	case TypeQueueDeposit:
		return "QueueDeposit"
	case TypeOpenDeposits:
		return "OpenDeposits"
	case TypeProcessDepositQueue:
		return "ProcessDepositQueue"
	case TypeEndAuction:
		return "EndAuction"
	case TypeStartTrade:
		return "StartTrade"
	case TypeCheckTradeExpiry:
		return "CheckTradeExpiry"
	case TypeCheckSettlementDefault:
		return "CheckSettlementDefault"
	case TypeSettleVault:
		return "SettleVault"
	case TypeCollectFees:
		return "CollectFees"
	case TypeQueueWithdrawal:
		return "QueueWithdrawal"
	case TypeProcessWithdrawalQueue:
		return "ProcessWithdrawalQueue"
	case TypeRolloverVault:
		return "RolloverVault"
	case TypeDisputeVault:
		return "DisputeVault"
	case TypeProcessDispute:
		return "ProcessDispute"
	case TypeOverridePrice:
		return "OverridePrice"
	case TypeSetVaultStatus:
		return "SetVaultStatus"
	case TypeSetSettlementStatus:
		return "SetSettlementStatus"
	case TypeSetPayoffDenomination:
		return "SetPayoffDenomination"
	default:
		return "Unknown"
	}
}

// Command is the interface every operation payload implements. Commands are
// the only way state changes: time-driven transitions arrive as commands
// carrying their own timestamps, and the engine never reads the wall clock.
type Command interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	// CommandType returns the discriminator.
	CommandType() Type

	// VaultID returns the vault context (nil for product-level commands).
	VaultID() *uuid.UUID

	// Timestamp returns the versioned input time, unix seconds.
	Timestamp() int64
}

// Envelope wraps every applied command in the operation log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine.
	Sequence int64

	IdempotencyKey string

	CommandType Type

	// Vault context (nullable for product-level commands).
	VaultID *uuid.UUID

	// Versioned input timestamp, unix seconds (not wall-clock).
	Timestamp int64

	// JSON-encoded command payload.
	Payload []byte

	// SHA-256 of vault state AFTER applying this command.
	StateHash [32]byte

	// Previous command's state hash (chain integrity).
	PrevHash [32]byte
}
