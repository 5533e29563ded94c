package engine

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"
)

func (e *Engine) handleCollectFees(c *command.CollectFees) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("collect fees: %w", vault.ErrNotAuthorized)
	}
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("collect fees: %w", vault.ErrVaultInDispute)
	}
	if v.Status != vault.StatusTradeExpired {
		return fmt.Errorf("collect fees from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	switch v.Epoch.SettlementStatus {
	case vault.SettlementSettled, vault.SettlementDefaulted:
	default:
		return fmt.Errorf("collect fees from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
	}

	notionalExclYield := new(big.Int).Sub(v.TotalAssets, v.Epoch.YieldAmount)
	if notionalExclYield.Sign() < 0 {
		notionalExclYield.SetInt64(0)
	}

	managementFee := fpmath.ManagementFee(notionalExclYield, p.TenorDays, v.ManagementFeeBps)
	yieldFee := fpmath.YieldFee(v.Epoch.YieldAmount, v.YieldFeeBps)
	totalFee := new(big.Int).Add(managementFee, yieldFee)

	if totalFee.Cmp(v.TotalAssets) > 0 {
		return fmt.Errorf("fees exceed vault assets: %w", vault.ErrValueTooLarge)
	}

	feeAsset, _ := p.DepositAsset()
	if !v.Epoch.PayoffInDepositAsset {
		feeAsset, _ = p.CounterAsset()
	}

	if totalFee.Sign() > 0 {
		if err := e.gateway.Withdraw(feeAsset, e.feeReceiver, totalFee, true); err != nil {
			return fmt.Errorf("collect fees payout: %w", err)
		}
	}

	v.TotalAssets.Sub(v.TotalAssets, totalFee)

	// The committed total only still carries this vault if its payoff is
	// deposit-denominated and it has not defaulted: conversion removes the
	// contribution at settlement, default removes it at the default check.
	if v.Epoch.PayoffInDepositAsset && v.Epoch.SettlementStatus != vault.SettlementDefaulted {
		p.SumVaultUnderlying.Sub(p.SumVaultUnderlying, totalFee)
	}

	if !v.Status.CanTransitionTo(vault.StatusFeesCollected) {
		return fmt.Errorf("collect fees transition: %w", vault.ErrInvalidVaultStatus)
	}
	v.Status = vault.StatusFeesCollected
	v.Version++
	return nil
}
