package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed command.Command. The ingestion shell validates and parses
// before anything reaches the engine; a command that fails here is
// terminally rejected rather than redelivered.
func ParseRawCommand(raw RawCommand, commandType string) (command.Command, error) {
	switch commandType {
	case "CreateProduct":
		return parseCreateProduct(raw.Data)
	case "CreateVault":
		return parseCreateVault(raw.Data)
	case "QueueDeposit":
		return parseQueueDeposit(raw.Data)
	case "OpenDeposits":
		c := &command.OpenDeposits{}
		return parseVaultAction(raw.Data, "OpenDeposits", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "ProcessDepositQueue":
		return parseProcessDepositQueue(raw.Data)
	case "EndAuction":
		return parseEndAuction(raw.Data)
	case "StartTrade":
		c := &command.StartTrade{}
		return parseVaultAction(raw.Data, "StartTrade", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "CheckTradeExpiry":
		c := &command.CheckTradeExpiry{}
		return parseVaultAction(raw.Data, "CheckTradeExpiry", &c.CommandID, nil, &c.Ts, &c.Vault, c)
	case "CheckSettlementDefault":
		c := &command.CheckSettlementDefault{}
		return parseVaultAction(raw.Data, "CheckSettlementDefault", &c.CommandID, nil, &c.Ts, &c.Vault, c)
	case "SettleVault":
		c := &command.SettleVault{}
		return parseVaultAction(raw.Data, "SettleVault", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "CollectFees":
		c := &command.CollectFees{}
		return parseVaultAction(raw.Data, "CollectFees", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "QueueWithdrawal":
		return parseQueueWithdrawal(raw.Data)
	case "ProcessWithdrawalQueue":
		return parseProcessWithdrawalQueue(raw.Data)
	case "RolloverVault":
		c := &command.RolloverVault{}
		return parseVaultAction(raw.Data, "RolloverVault", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "DisputeVault":
		c := &command.DisputeVault{}
		return parseVaultAction(raw.Data, "DisputeVault", &c.CommandID, &c.Caller, &c.Ts, &c.Vault, c)
	case "ProcessDispute":
		return parseProcessDispute(raw.Data)
	case "OverridePrice":
		return parseOverridePrice(raw.Data)
	case "SetVaultStatus":
		return parseSetVaultStatus(raw.Data)
	case "SetSettlementStatus":
		return parseSetSettlementStatus(raw.Data)
	case "SetPayoffDenomination":
		return parseSetPayoffDenomination(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Amounts travel
// as decimal strings so producers in any language can express full-width
// integers without float truncation.

type vaultActionJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`
	VaultID   string `json:"vault_id"`
}

// parseVaultAction fills the shared fields of the command shapes that
// carry nothing beyond (command_id, caller, ts, vault_id). Commands
// without a caller pass nil.
func parseVaultAction(
	data []byte,
	name string,
	commandID, caller *uuid.UUID,
	ts *int64,
	vaultID *uuid.UUID,
	cmd command.Command,
) (command.Command, error) {
	var j vaultActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	var err error
	if *commandID, err = uuid.Parse(j.CommandID); err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	if caller != nil {
		if *caller, err = uuid.Parse(j.Caller); err != nil {
			return nil, fmt.Errorf("parse caller: %w", err)
		}
	}
	if *vaultID, err = uuid.Parse(j.VaultID); err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	*ts = j.Ts
	return cmd, nil
}

type createProductJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	BaseAsset     string `json:"base_asset"`
	QuoteAsset    string `json:"quote_asset"`
	BaseDecimals  int32  `json:"base_decimals"`
	QuoteDecimals int32  `json:"quote_decimals"`
	Direction     string `json:"direction"` // "convert_on_low" or "convert_on_high"

	TenorDays        int64 `json:"tenor_days"`
	StrikeBarrierBps int64 `json:"strike_barrier_bps"`

	FeeGraceDays          int64 `json:"fee_grace_days"`
	AuctionDefaultDays    int64 `json:"auction_default_days"`
	SettlementDefaultDays int64 `json:"settlement_default_days"`
	LateFeeBps            int64 `json:"late_fee_bps"`
	DisputeWindowDays     int64 `json:"dispute_window_days"`

	MinDepositAmount    string `json:"min_deposit_amount"`
	MinWithdrawalShares string `json:"min_withdrawal_shares"`
}

func parseCreateProduct(data []byte) (*command.CreateProduct, error) {
	var j createProductJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateProduct: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	productID, err := uuid.Parse(j.ProductID)
	if err != nil {
		return nil, fmt.Errorf("parse product_id: %w", err)
	}
	direction, err := parseDirection(j.Direction)
	if err != nil {
		return nil, err
	}
	minDeposit, err := parseAmount(j.MinDepositAmount, "min_deposit_amount")
	if err != nil {
		return nil, err
	}
	minWithdrawal, err := parseAmount(j.MinWithdrawalShares, "min_withdrawal_shares")
	if err != nil {
		return nil, err
	}

	return &command.CreateProduct{
		CommandID:             commandID,
		Caller:                caller,
		Ts:                    j.Ts,
		ProductID:             productID,
		Name:                  j.Name,
		BaseAsset:             j.BaseAsset,
		QuoteAsset:            j.QuoteAsset,
		BaseDecimals:          j.BaseDecimals,
		QuoteDecimals:         j.QuoteDecimals,
		Direction:             direction,
		TenorDays:             j.TenorDays,
		StrikeBarrierBps:      j.StrikeBarrierBps,
		FeeGraceDays:          j.FeeGraceDays,
		AuctionDefaultDays:    j.AuctionDefaultDays,
		SettlementDefaultDays: j.SettlementDefaultDays,
		LateFeeBps:            j.LateFeeBps,
		DisputeWindowDays:     j.DisputeWindowDays,
		MinDepositAmount:      minDeposit,
		MinWithdrawalShares:   minWithdrawal,
	}, nil
}

type createVaultJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID          string `json:"vault_id"`
	ProductID        string `json:"product_id"`
	ManagementFeeBps int64  `json:"management_fee_bps"`
	YieldFeeBps      int64  `json:"yield_fee_bps"`
	DataSource       string `json:"data_source"`
}

func parseCreateVault(data []byte) (*command.CreateVault, error) {
	var j createVaultJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateVault: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	productID, err := uuid.Parse(j.ProductID)
	if err != nil {
		return nil, fmt.Errorf("parse product_id: %w", err)
	}

	return &command.CreateVault{
		CommandID:        commandID,
		Caller:           caller,
		Ts:               j.Ts,
		NewVaultID:       vaultID,
		ProductID:        productID,
		ManagementFeeBps: j.ManagementFeeBps,
		YieldFeeBps:      j.YieldFeeBps,
		DataSource:       j.DataSource,
	}, nil
}

type queueDepositJSON struct {
	CommandID string `json:"command_id"`
	Ts        int64  `json:"ts"`

	ProductID string `json:"product_id"`
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

func parseQueueDeposit(data []byte) (*command.QueueDeposit, error) {
	var j queueDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse QueueDeposit: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	productID, err := uuid.Parse(j.ProductID)
	if err != nil {
		return nil, fmt.Errorf("parse product_id: %w", err)
	}
	depositor, err := uuid.Parse(j.Depositor)
	if err != nil {
		return nil, fmt.Errorf("parse depositor: %w", err)
	}
	amount, err := parseAmount(j.Amount, "amount")
	if err != nil {
		return nil, err
	}

	return &command.QueueDeposit{
		CommandID: commandID,
		Ts:        j.Ts,
		ProductID: productID,
		Depositor: depositor,
		Amount:    amount,
	}, nil
}

type processQueueJSON struct {
	CommandID string `json:"command_id"`
	Ts        int64  `json:"ts"`

	VaultID  string `json:"vault_id"`
	MaxCount int    `json:"max_count"`
}

func parseProcessDepositQueue(data []byte) (*command.ProcessDepositQueue, error) {
	var j processQueueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProcessDepositQueue: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	return &command.ProcessDepositQueue{
		CommandID: commandID,
		Ts:        j.Ts,
		Vault:     vaultID,
		MaxCount:  j.MaxCount,
	}, nil
}

func parseProcessWithdrawalQueue(data []byte) (*command.ProcessWithdrawalQueue, error) {
	var j processQueueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProcessWithdrawalQueue: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	return &command.ProcessWithdrawalQueue{
		CommandID: commandID,
		Ts:        j.Ts,
		Vault:     vaultID,
		MaxCount:  j.MaxCount,
	}, nil
}

type endAuctionJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID    string `json:"vault_id"`
	Winner     string `json:"winner"`
	TradeStart int64  `json:"trade_start"`
	AprBps     int64  `json:"apr_bps"`
	DataSource string `json:"data_source,omitempty"`
}

func parseEndAuction(data []byte) (*command.EndAuction, error) {
	var j endAuctionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EndAuction: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	winner, err := uuid.Parse(j.Winner)
	if err != nil {
		return nil, fmt.Errorf("parse winner: %w", err)
	}

	return &command.EndAuction{
		CommandID:  commandID,
		Caller:     caller,
		Ts:         j.Ts,
		Vault:      vaultID,
		Winner:     winner,
		TradeStart: j.TradeStart,
		AprBps:     j.AprBps,
		DataSource: j.DataSource,
	}, nil
}

type queueWithdrawalJSON struct {
	CommandID string `json:"command_id"`
	Ts        int64  `json:"ts"`

	VaultID       string `json:"vault_id"`
	Account       string `json:"account"`
	Shares        string `json:"shares"`
	NextProductID string `json:"next_product_id,omitempty"`
	UseProxy      bool   `json:"use_proxy"`
}

func parseQueueWithdrawal(data []byte) (*command.QueueWithdrawal, error) {
	var j queueWithdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse QueueWithdrawal: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	shares, err := parseAmount(j.Shares, "shares")
	if err != nil {
		return nil, err
	}

	var nextProduct *uuid.UUID
	if j.NextProductID != "" {
		id, err := uuid.Parse(j.NextProductID)
		if err != nil {
			return nil, fmt.Errorf("parse next_product_id: %w", err)
		}
		nextProduct = &id
	}

	return &command.QueueWithdrawal{
		CommandID:     commandID,
		Ts:            j.Ts,
		Vault:         vaultID,
		Account:       account,
		Shares:        shares,
		NextProductID: nextProduct,
		UseProxy:      j.UseProxy,
	}, nil
}

type processDisputeJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID  string `json:"vault_id"`
	NewPrice string `json:"new_price,omitempty"`
}

func parseProcessDispute(data []byte) (*command.ProcessDispute, error) {
	var j processDisputeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProcessDispute: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}

	var newPrice *big.Int
	if j.NewPrice != "" {
		newPrice, err = parseAmount(j.NewPrice, "new_price")
		if err != nil {
			return nil, err
		}
	}

	return &command.ProcessDispute{
		CommandID: commandID,
		Caller:    caller,
		Ts:        j.Ts,
		Vault:     vaultID,
		NewPrice:  newPrice,
	}, nil
}

type overridePriceJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID   string `json:"vault_id"`
	PriceTime int64  `json:"price_time"`
	Price     string `json:"price"`
}

func parseOverridePrice(data []byte) (*command.OverridePrice, error) {
	var j overridePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OverridePrice: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	price, err := parseAmount(j.Price, "price")
	if err != nil {
		return nil, err
	}

	return &command.OverridePrice{
		CommandID: commandID,
		Caller:    caller,
		Ts:        j.Ts,
		Vault:     vaultID,
		PriceTime: j.PriceTime,
		Price:     price,
	}, nil
}

type setVaultStatusJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID string `json:"vault_id"`
	Status  int32  `json:"status"`
}

func parseSetVaultStatus(data []byte) (*command.SetVaultStatus, error) {
	var j setVaultStatusJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetVaultStatus: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	return &command.SetVaultStatus{
		CommandID: commandID,
		Caller:    caller,
		Ts:        j.Ts,
		Vault:     vaultID,
		Status:    vault.VaultStatus(j.Status),
	}, nil
}

func parseSetSettlementStatus(data []byte) (*command.SetSettlementStatus, error) {
	var j setVaultStatusJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetSettlementStatus: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	return &command.SetSettlementStatus{
		CommandID: commandID,
		Caller:    caller,
		Ts:        j.Ts,
		Vault:     vaultID,
		Status:    vault.SettlementStatus(j.Status),
	}, nil
}

type setPayoffJSON struct {
	CommandID string `json:"command_id"`
	Caller    string `json:"caller"`
	Ts        int64  `json:"ts"`

	VaultID        string `json:"vault_id"`
	InDepositAsset bool   `json:"in_deposit_asset"`
}

func parseSetPayoffDenomination(data []byte) (*command.SetPayoffDenomination, error) {
	var j setPayoffJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetPayoffDenomination: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	vaultID, err := uuid.Parse(j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id: %w", err)
	}
	return &command.SetPayoffDenomination{
		CommandID:      commandID,
		Caller:         caller,
		Ts:             j.Ts,
		Vault:          vaultID,
		InDepositAsset: j.InDepositAsset,
	}, nil
}

// --- field helpers ---

func parseAmount(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("parse %s: empty", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: not a decimal integer: %q", field, s)
	}
	return v, nil
}

func parseDirection(s string) (vault.OptionDirection, error) {
	switch s {
	case "convert_on_low":
		return vault.DirectionConvertOnLow, nil
	case "convert_on_high":
		return vault.DirectionConvertOnHigh, nil
	default:
		return 0, fmt.Errorf("parse direction: unknown value %q", s)
	}
}
