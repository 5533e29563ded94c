package engine

import (
	"fmt"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"
)

func (e *Engine) handleCreateProduct(c *command.CreateProduct) error {
	if !e.authority.IsAdmin(c.Caller) {
		return fmt.Errorf("create product: %w", vault.ErrNotAuthorized)
	}
	if _, exists := e.store.Product(c.ProductID); exists {
		return fmt.Errorf("product %s already exists: %w", c.ProductID, vault.ErrInvalidProduct)
	}
	if c.BaseAsset == "" || c.QuoteAsset == "" || c.BaseAsset == c.QuoteAsset {
		return fmt.Errorf("product assets %q/%q: %w", c.BaseAsset, c.QuoteAsset, vault.ErrInvalidProduct)
	}
	if c.TenorDays <= 0 {
		return fmt.Errorf("tenor %d days: %w", c.TenorDays, vault.ErrValueIsZero)
	}
	if c.StrikeBarrierBps <= 0 {
		return fmt.Errorf("strike barrier: %w", vault.ErrValueIsZero)
	}
	for _, bps := range []int64{c.LateFeeBps} {
		if bps < 0 || bps > fpmath.BpsDenominator {
			return fmt.Errorf("fee bps %d: %w", bps, vault.ErrValueTooLarge)
		}
	}
	if c.MinDepositAmount == nil || c.MinDepositAmount.Sign() < 0 ||
		c.MinWithdrawalShares == nil || c.MinWithdrawalShares.Sign() < 0 {
		return fmt.Errorf("product minimums: %w", vault.ErrValueTooSmall)
	}

	p := &vault.Product{
		ID:                    c.ProductID,
		Name:                  c.Name,
		BaseAsset:             c.BaseAsset,
		QuoteAsset:            c.QuoteAsset,
		BaseDecimals:          c.BaseDecimals,
		QuoteDecimals:         c.QuoteDecimals,
		Direction:             c.Direction,
		TenorDays:             c.TenorDays,
		StrikeBarrierBps:      c.StrikeBarrierBps,
		FeeGraceDays:          c.FeeGraceDays,
		AuctionDefaultDays:    c.AuctionDefaultDays,
		SettlementDefaultDays: c.SettlementDefaultDays,
		LateFeeBps:            c.LateFeeBps,
		DisputeWindowDays:     c.DisputeWindowDays,
		MinDepositAmount:      cloneBig(c.MinDepositAmount),
		MinWithdrawalShares:   cloneBig(c.MinWithdrawalShares),
		SumVaultUnderlying:    bigZero(),
		DepositQueue:          vault.NewDepositQueue(),
	}
	e.store.PutProduct(p)
	return nil
}

func (e *Engine) handleCreateVault(c *command.CreateVault) error {
	if !e.authority.IsAdmin(c.Caller) {
		return fmt.Errorf("create vault: %w", vault.ErrNotAuthorized)
	}
	if _, ok := e.store.Product(c.ProductID); !ok {
		return fmt.Errorf("product %s: %w", c.ProductID, vault.ErrInvalidProduct)
	}
	if _, exists := e.store.Vault(c.NewVaultID); exists {
		return fmt.Errorf("vault %s already exists: %w", c.NewVaultID, vault.ErrInvalidVault)
	}
	if c.ManagementFeeBps < 0 || c.ManagementFeeBps > fpmath.BpsDenominator ||
		c.YieldFeeBps < 0 || c.YieldFeeBps > fpmath.BpsDenominator {
		return fmt.Errorf("vault fee bps: %w", vault.ErrValueTooLarge)
	}

	v := vault.NewVault(c.NewVaultID, c.ProductID, c.ManagementFeeBps, c.YieldFeeBps, c.DataSource)
	e.store.PutVault(v)
	return nil
}

// handleSetVaultStatus is the administrator escape hatch: it bypasses the
// transition table on purpose, for operational recovery.
func (e *Engine) handleSetVaultStatus(c *command.SetVaultStatus) error {
	if !e.authority.IsAdmin(c.Caller) {
		return fmt.Errorf("set vault status: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	v.Status = c.Status
	v.Version++
	return nil
}

func (e *Engine) handleSetSettlementStatus(c *command.SetSettlementStatus) error {
	if !e.authority.IsAdmin(c.Caller) {
		return fmt.Errorf("set settlement status: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	v.Epoch.SettlementStatus = c.Status
	v.Version++
	return nil
}

func (e *Engine) handleSetPayoffDenomination(c *command.SetPayoffDenomination) error {
	if !e.authority.IsAdmin(c.Caller) {
		return fmt.Errorf("set payoff denomination: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	v.Epoch.PayoffInDepositAsset = c.InDepositAsset
	v.Version++
	return nil
}

func (e *Engine) handleOverridePrice(c *command.OverridePrice) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("override price: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if c.Price == nil || c.Price.Sign() <= 0 {
		return fmt.Errorf("override price: %w", vault.ErrInvalidPrice)
	}
	e.store.SetPriceOverride(v.ID, c.PriceTime, c.Price)
	v.Version++
	return nil
}
