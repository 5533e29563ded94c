package engine

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"
)

// conversionTriggered evaluates the trigger condition against a final spot.
func conversionTriggered(direction vault.OptionDirection, finalSpot, strike *big.Int) bool {
	if direction == vault.DirectionConvertOnLow {
		return finalSpot.Cmp(strike) < 0
	}
	return finalSpot.Cmp(strike) > 0
}

// handleCheckTradeExpiry fires the expiry transition. Before expiry, and on
// vaults already past Traded, it is a no-op so schedulers can poll freely.
func (e *Engine) handleCheckTradeExpiry(c *command.CheckTradeExpiry) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.Status != vault.StatusTraded {
		return nil
	}
	if c.Ts < v.Epoch.TradeExpiryTime {
		return nil
	}

	// The final observation is pinned to the expiry instant, never the
	// check's arrival time.
	finalSpot, err := e.resolver.Resolve(v.ID, p.BaseAsset, p.QuoteAsset, v.Epoch.TradeExpiryTime, v.DataSource)
	if err != nil {
		return fmt.Errorf("expiry spot: %w", err)
	}

	v.Epoch.FinalSpotPrice = finalSpot
	if conversionTriggered(p.Direction, finalSpot, v.Epoch.StrikePrice) {
		v.Epoch.SettlementStatus = vault.SettlementAwaitingSettlement
		v.Epoch.PayoffInDepositAsset = false
	} else {
		v.Epoch.SettlementStatus = vault.SettlementSettled
	}
	v.Status = vault.StatusTradeExpired
	v.Version++
	return nil
}

// handleCheckSettlementDefault marks the counterparty defaulted once the
// settlement deadline passes. No-op unless settlement is actually owed.
func (e *Engine) handleCheckSettlementDefault(c *command.CheckSettlementDefault) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.Status != vault.StatusTradeExpired || v.Epoch.SettlementStatus != vault.SettlementAwaitingSettlement {
		return nil
	}
	if v.InDispute {
		return nil
	}
	if p.SettlementDefaultDays <= 0 {
		return nil
	}
	if daysBetween(v.Epoch.TradeExpiryTime, c.Ts) < p.SettlementDefaultDays {
		return nil
	}

	// The defaulted vault drops out of the product's committed total in one
	// piece; later fee or withdrawal accounting must not touch it again.
	p.SumVaultUnderlying.Sub(p.SumVaultUnderlying, v.TotalAssets)

	v.Epoch.SettlementStatus = vault.SettlementDefaulted
	v.Epoch.PayoffInDepositAsset = true
	v.Version++
	return nil
}

func (e *Engine) handleSettleVault(c *command.SettleVault) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("settle: %w", vault.ErrVaultInDispute)
	}
	if v.Status != vault.StatusTradeExpired {
		return fmt.Errorf("settle from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	if v.Epoch.SettlementStatus == vault.SettlementDefaulted {
		return fmt.Errorf("settle: %w", vault.ErrTradeDefaulted)
	}
	if v.Epoch.SettlementStatus != vault.SettlementAwaitingSettlement {
		return fmt.Errorf("settle from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
	}
	if v.Epoch.PayoffInDepositAsset {
		return fmt.Errorf("settle: %w", vault.ErrTradeNotConverted)
	}
	if v.Epoch.ReceiptTokenID == 0 {
		return fmt.Errorf("settle: %w", vault.ErrTradeHasNoWinner)
	}

	holder, err := e.minter.OwnerOf(v.Epoch.ReceiptTokenID)
	if err != nil {
		return fmt.Errorf("settle receipt lookup: %w", err)
	}
	if c.Caller != holder {
		return fmt.Errorf("settle: %w", vault.ErrNotTradeWinner)
	}

	depositAsset, _ := p.DepositAsset()
	counterAsset, _ := p.CounterAsset()

	convert := func(amount *big.Int) *big.Int {
		if p.Direction == vault.DirectionConvertOnLow {
			return fpmath.QuoteToBase(amount, v.Epoch.StrikePrice, p.QuoteDecimals, p.BaseDecimals)
		}
		return fpmath.BaseToQuote(amount, v.Epoch.StrikePrice, p.QuoteDecimals, p.BaseDecimals)
	}

	originalNotional := new(big.Int).Set(v.TotalAssets)
	convertedTotal := convert(v.TotalAssets)
	convertedYield := convert(v.Epoch.YieldAmount)

	if e.gateway.TreasuryBalance(depositAsset).Cmp(originalNotional) < 0 {
		return fmt.Errorf("settle: treasury short of %s notional: %w", depositAsset, vault.ErrValueTooLarge)
	}

	// Exchange at the strike: the holder takes the deposit-asset notional,
	// the vault takes the converted counter-asset amount.
	if _, err := e.gateway.ReceiveFrom(counterAsset, holder, convertedTotal); err != nil {
		return fmt.Errorf("settle counter-asset leg: %w", err)
	}
	if err := e.gateway.Withdraw(depositAsset, holder, originalNotional, false); err != nil {
		return fmt.Errorf("settle deposit-asset leg: %w", err)
	}

	p.SumVaultUnderlying.Sub(p.SumVaultUnderlying, originalNotional)
	v.TotalAssets = convertedTotal
	v.Epoch.YieldAmount = convertedYield
	v.Epoch.SettlementStatus = vault.SettlementSettled
	v.Version++
	return nil
}
