package command

import (
	"math/big"

	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// CreateProduct registers a new recurring offering template.
type CreateProduct struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	ProductID     uuid.UUID             `json:"product_id"`
	Name          string                `json:"name"`
	BaseAsset     string                `json:"base_asset"`
	QuoteAsset    string                `json:"quote_asset"`
	BaseDecimals  int32                 `json:"base_decimals"`
	QuoteDecimals int32                 `json:"quote_decimals"`
	Direction     vault.OptionDirection `json:"direction"`

	TenorDays        int64 `json:"tenor_days"`
	StrikeBarrierBps int64 `json:"strike_barrier_bps"`

	FeeGraceDays          int64 `json:"fee_grace_days"`
	AuctionDefaultDays    int64 `json:"auction_default_days"`
	SettlementDefaultDays int64 `json:"settlement_default_days"`
	LateFeeBps            int64 `json:"late_fee_bps"`
	DisputeWindowDays     int64 `json:"dispute_window_days"`

	MinDepositAmount    *big.Int `json:"min_deposit_amount"`
	MinWithdrawalShares *big.Int `json:"min_withdrawal_shares"`
}

func (c *CreateProduct) IdempotencyKey() string { return c.CommandID.String() }
func (c *CreateProduct) CommandType() Type      { return TypeCreateProduct }
func (c *CreateProduct) VaultID() *uuid.UUID    { return nil }
func (c *CreateProduct) Timestamp() int64       { return c.Ts }

// CreateVault deploys a vault instance under a product.
type CreateVault struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	NewVaultID       uuid.UUID `json:"vault_id"`
	ProductID        uuid.UUID `json:"product_id"`
	ManagementFeeBps int64     `json:"management_fee_bps"`
	YieldFeeBps      int64     `json:"yield_fee_bps"`
	DataSource       string    `json:"data_source"`
}

func (c *CreateVault) IdempotencyKey() string { return c.CommandID.String() }
func (c *CreateVault) CommandType() Type      { return TypeCreateVault }
func (c *CreateVault) VaultID() *uuid.UUID    { return nil }
func (c *CreateVault) Timestamp() int64       { return c.Ts }

// SetVaultStatus is the administrator escape hatch for the lifecycle enum.
type SetVaultStatus struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault  uuid.UUID         `json:"vault_id"`
	Status vault.VaultStatus `json:"status"`
}

func (c *SetVaultStatus) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetVaultStatus) CommandType() Type      { return TypeSetVaultStatus }
func (c *SetVaultStatus) VaultID() *uuid.UUID    { return &c.Vault }
func (c *SetVaultStatus) Timestamp() int64       { return c.Ts }

// SetSettlementStatus is the administrator escape hatch for the settlement enum.
type SetSettlementStatus struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault  uuid.UUID              `json:"vault_id"`
	Status vault.SettlementStatus `json:"status"`
}

func (c *SetSettlementStatus) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetSettlementStatus) CommandType() Type      { return TypeSetSettlementStatus }
func (c *SetSettlementStatus) VaultID() *uuid.UUID    { return &c.Vault }
func (c *SetSettlementStatus) Timestamp() int64       { return c.Ts }

// SetPayoffDenomination forces the payoff-denomination flag.
type SetPayoffDenomination struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault          uuid.UUID `json:"vault_id"`
	InDepositAsset bool      `json:"in_deposit_asset"`
}

func (c *SetPayoffDenomination) IdempotencyKey() string { return c.CommandID.String() }
func (c *SetPayoffDenomination) CommandType() Type      { return TypeSetPayoffDenomination }
func (c *SetPayoffDenomination) VaultID() *uuid.UUID    { return &c.Vault }
func (c *SetPayoffDenomination) Timestamp() int64       { return c.Ts }

// OverridePrice writes a corrected oracle answer for a (vault, timestamp).
type OverridePrice struct {
	CommandID uuid.UUID `json:"command_id"`
	Caller    uuid.UUID `json:"caller"`
	Ts        int64     `json:"ts"`

	Vault     uuid.UUID `json:"vault_id"`
	PriceTime int64     `json:"price_time"`
	Price     *big.Int  `json:"price"`
}

func (c *OverridePrice) IdempotencyKey() string { return c.CommandID.String() }
func (c *OverridePrice) CommandType() Type      { return TypeOverridePrice }
func (c *OverridePrice) VaultID() *uuid.UUID    { return &c.Vault }
func (c *OverridePrice) Timestamp() int64       { return c.Ts }
