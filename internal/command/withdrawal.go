package command

import (
	"math/big"

	"github.com/google/uuid"
)

// QueueWithdrawal escrows shares for redemption. NextProductID redirects
// the payout into a follow-on product's deposit queue; UseProxy routes a
// direct payout through the asset-wrapping proxy. The two are mutually
// exclusive.
type QueueWithdrawal struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	Vault         uuid.UUID  `json:"vault_id"`
	Account       uuid.UUID  `json:"account"`
	Shares        *big.Int   `json:"shares"`
	NextProductID *uuid.UUID `json:"next_product_id,omitempty"`
	UseProxy      bool       `json:"use_proxy"`
}

func (c *QueueWithdrawal) IdempotencyKey() string { return c.CommandID.String() }
func (c *QueueWithdrawal) CommandType() Type      { return TypeQueueWithdrawal }
func (c *QueueWithdrawal) VaultID() *uuid.UUID    { return &c.Vault }
func (c *QueueWithdrawal) Timestamp() int64       { return c.Ts }

// ProcessWithdrawalQueue batch-redeems queued withdrawals.
// MaxCount 0 means "all remaining".
type ProcessWithdrawalQueue struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	Vault    uuid.UUID `json:"vault_id"`
	MaxCount int       `json:"max_count"`
}

func (c *ProcessWithdrawalQueue) IdempotencyKey() string { return c.CommandID.String() }
func (c *ProcessWithdrawalQueue) CommandType() Type      { return TypeProcessWithdrawalQueue }
func (c *ProcessWithdrawalQueue) VaultID() *uuid.UUID    { return &c.Vault }
func (c *ProcessWithdrawalQueue) Timestamp() int64       { return c.Ts }

// RolloverVault resets a drained vault for the next epoch, or parks it in
// Zombie if its payoff converted.
type RolloverVault struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *RolloverVault) IdempotencyKey() string { return c.CommandID.String() }
func (c *RolloverVault) CommandType() Type      { return TypeRolloverVault }
func (c *RolloverVault) VaultID() *uuid.UUID    { return &c.Vault }
func (c *RolloverVault) Timestamp() int64       { return c.Ts }

// DisputeVault raises a bounded-time price dispute, freezing phase
// progress until processed.
type DisputeVault struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *DisputeVault) IdempotencyKey() string { return c.CommandID.String() }
func (c *DisputeVault) CommandType() Type      { return TypeDisputeVault }
func (c *DisputeVault) VaultID() *uuid.UUID    { return &c.Vault }
func (c *DisputeVault) Timestamp() int64       { return c.Ts }

// ProcessDispute clears the dispute flag, optionally writing a corrected
// price for the disputed timestamp. A nil or zero price is a plain clear.
type ProcessDispute struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault    uuid.UUID `json:"vault_id"`
	NewPrice *big.Int  `json:"new_price,omitempty"`
}

func (c *ProcessDispute) IdempotencyKey() string { return c.CommandID.String() }
func (c *ProcessDispute) CommandType() Type      { return TypeProcessDispute }
func (c *ProcessDispute) VaultID() *uuid.UUID    { return &c.Vault }
func (c *ProcessDispute) Timestamp() int64       { return c.Ts }
