package engine

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"
)

func (e *Engine) handleQueueDeposit(c *command.QueueDeposit) error {
	p, ok := e.store.Product(c.ProductID)
	if !ok {
		return fmt.Errorf("product %s: %w", c.ProductID, vault.ErrInvalidProduct)
	}
	if c.Amount == nil || c.Amount.Sign() == 0 {
		return fmt.Errorf("queue deposit: %w", vault.ErrValueIsZero)
	}
	if c.Amount.Sign() < 0 {
		return fmt.Errorf("queue deposit: %w", vault.ErrValueTooSmall)
	}
	if c.Amount.Cmp(p.MinDepositAmount) < 0 {
		return fmt.Errorf("deposit below product minimum: %w", vault.ErrValueTooSmall)
	}

	depositAsset, _ := p.DepositAsset()
	if _, err := e.gateway.ReceiveFrom(depositAsset, c.Depositor, c.Amount); err != nil {
		return fmt.Errorf("queue deposit transfer: %w", err)
	}

	p.DepositQueue.Add(c.Depositor, c.Amount)
	return nil
}

func (e *Engine) handleOpenDeposits(c *command.OpenDeposits) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("open deposits: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if !v.Status.CanTransitionTo(vault.StatusDepositsOpen) {
		return fmt.Errorf("open deposits from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}

	// Freeze the mint ratio for the epoch. Every queued deposit converts at
	// this ratio no matter how processing calls are batched.
	v.Epoch.MintRefAssets = new(big.Int).Set(v.TotalAssets)
	v.Epoch.MintRefSupply = new(big.Int).Set(v.TotalSupply)

	v.Status = vault.StatusDepositsOpen
	v.Version++
	return nil
}

func (e *Engine) handleProcessDepositQueue(c *command.ProcessDepositQueue) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.Status != vault.StatusDepositsOpen {
		return fmt.Errorf("process deposits from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	if v.IsZombie() {
		return fmt.Errorf("process deposits: %w", vault.ErrVaultInZombieState)
	}

	q := p.DepositQueue
	count := q.Remaining()
	if c.MaxCount > 0 && c.MaxCount < count {
		count = c.MaxCount
	}

	_, depositDecimals := p.DepositAsset()
	batchAssets := big.NewInt(0)
	batchShares := big.NewInt(0)

	for i := 0; i < count; i++ {
		depositor := q.Entries[q.ProcessedIndex+i]
		pending, ok := q.Pending[depositor]
		if !ok || pending.Sign() == 0 {
			// Duplicate occurrence already drained on first processing.
			continue
		}

		shares := fpmath.SharesForDeposit(pending, v.Epoch.MintRefSupply, v.Epoch.MintRefAssets, depositDecimals)
		e.store.MintShares(v.ID, depositor, shares)

		batchAssets.Add(batchAssets, pending)
		batchShares.Add(batchShares, shares)
		pending.SetInt64(0)
	}

	q.ProcessedIndex += count
	q.TotalAmount.Sub(q.TotalAmount, batchAssets)

	v.TotalAssets.Add(v.TotalAssets, batchAssets)
	v.TotalSupply.Add(v.TotalSupply, batchShares)
	p.SumVaultUnderlying.Add(p.SumVaultUnderlying, batchAssets)

	if q.Remaining() == 0 {
		if !v.Status.CanTransitionTo(vault.StatusNotTraded) {
			return fmt.Errorf("deposit queue drained from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
		}
		v.Status = vault.StatusNotTraded
	}
	v.Version++
	return nil
}
