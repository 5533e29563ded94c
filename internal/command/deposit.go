package command

import (
	"math/big"

	"github.com/google/uuid"
)

// QueueDeposit appends a depositor's pending amount to the product's
// deposit queue. Value moves into the treasury at queue time.
type QueueDeposit struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	ProductID uuid.UUID `json:"product_id"`
	Depositor uuid.UUID `json:"depositor"`
	Amount    *big.Int  `json:"amount"`
}

func (c *QueueDeposit) IdempotencyKey() string { return c.CommandID.String() }
func (c *QueueDeposit) CommandType() Type      { return TypeQueueDeposit }
func (c *QueueDeposit) VaultID() *uuid.UUID    { return nil }
func (c *QueueDeposit) Timestamp() int64       { return c.Ts }

// OpenDeposits moves a vault from DepositsClosed to DepositsOpen.
type OpenDeposits struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *OpenDeposits) IdempotencyKey() string { return c.CommandID.String() }
func (c *OpenDeposits) CommandType() Type      { return TypeOpenDeposits }
func (c *OpenDeposits) VaultID() *uuid.UUID    { return &c.Vault }
func (c *OpenDeposits) Timestamp() int64       { return c.Ts }

// ProcessDepositQueue batch-converts queued deposits into shares.
// MaxCount 0 means "all remaining".
type ProcessDepositQueue struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	Vault    uuid.UUID `json:"vault_id"`
	MaxCount int       `json:"max_count"`
}

func (c *ProcessDepositQueue) IdempotencyKey() string { return c.CommandID.String() }
func (c *ProcessDepositQueue) CommandType() Type      { return TypeProcessDepositQueue }
func (c *ProcessDepositQueue) VaultID() *uuid.UUID    { return &c.Vault }
func (c *ProcessDepositQueue) Timestamp() int64       { return c.Ts }
