package command

import (
	"github.com/google/uuid"
)

// EndAuction records the winning counterparty and strike terms for the
// epoch. AprBps is the winning coupon bid; TradeStart is when the trade is
// scheduled to begin (the initial spot is resolved at that time).
type EndAuction struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault      uuid.UUID `json:"vault_id"`
	Winner     uuid.UUID `json:"winner"`
	TradeStart int64     `json:"trade_start"`
	AprBps     int64     `json:"apr_bps"`
	DataSource string    `json:"data_source"`
}

func (c *EndAuction) IdempotencyKey() string { return c.CommandID.String() }
func (c *EndAuction) CommandType() Type      { return TypeEndAuction }
func (c *EndAuction) VaultID() *uuid.UUID    { return &c.Vault }
func (c *EndAuction) Timestamp() int64       { return c.Ts }

// StartTrade is invoked by the winning counterparty to pay the premium and
// enter the trade.
type StartTrade struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *StartTrade) IdempotencyKey() string { return c.CommandID.String() }
func (c *StartTrade) CommandType() Type      { return TypeStartTrade }
func (c *StartTrade) VaultID() *uuid.UUID    { return &c.Vault }
func (c *StartTrade) Timestamp() int64       { return c.Ts }

// CheckTradeExpiry fires the expiry transition once the tenor has elapsed.
// Idempotent: a no-op before expiry and after it has already fired.
type CheckTradeExpiry struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *CheckTradeExpiry) IdempotencyKey() string { return c.CommandID.String() }
func (c *CheckTradeExpiry) CommandType() Type      { return TypeCheckTradeExpiry }
func (c *CheckTradeExpiry) VaultID() *uuid.UUID    { return &c.Vault }
func (c *CheckTradeExpiry) Timestamp() int64       { return c.Ts }

// CheckSettlementDefault marks the trade defaulted if settlement is still
// owed past the configured deadline. Idempotent.
type CheckSettlementDefault struct {
	CommandID uuid.UUID `json:"command_id"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *CheckSettlementDefault) IdempotencyKey() string { return c.CommandID.String() }
func (c *CheckSettlementDefault) CommandType() Type      { return TypeCheckSettlementDefault }
func (c *CheckSettlementDefault) VaultID() *uuid.UUID    { return &c.Vault }
func (c *CheckSettlementDefault) Timestamp() int64       { return c.Ts }

// SettleVault is invoked by the current position-receipt holder to perform
// the conversion exchange.
type SettleVault struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *SettleVault) IdempotencyKey() string { return c.CommandID.String() }
func (c *SettleVault) CommandType() Type      { return TypeSettleVault }
func (c *SettleVault) VaultID() *uuid.UUID    { return &c.Vault }
func (c *SettleVault) Timestamp() int64       { return c.Ts }

// CollectFees extracts management and yield fees once the epoch settles.
type CollectFees struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault uuid.UUID `json:"vault_id"`
}

func (c *CollectFees) IdempotencyKey() string { return c.CommandID.String() }
func (c *CollectFees) CommandType() Type      { return TypeCollectFees }
func (c *CollectFees) VaultID() *uuid.UUID    { return &c.Vault }
func (c *CollectFees) Timestamp() int64       { return c.Ts }
