package engine

import (
	"fmt"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"
)

func (e *Engine) handleDisputeVault(c *command.DisputeVault) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("dispute: %w", vault.ErrVaultInDispute)
	}

	windowSeconds := p.DisputeWindowDays * 86_400

	switch v.Status {
	case vault.StatusNotTraded:
		// Disputing the initial observation, between auction close and trade
		// entry.
		if v.Epoch.SettlementStatus != vault.SettlementAuctioned {
			return fmt.Errorf("dispute from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
		}
		if !v.HasWinner() {
			return fmt.Errorf("dispute: %w", vault.ErrTradeHasNoWinner)
		}
		if c.Caller != v.Epoch.AuctionWinner && !e.authority.IsTraderAdmin(c.Caller) {
			return fmt.Errorf("dispute: %w", vault.ErrNotTradeWinnerOrAdmin)
		}
		if c.Ts > v.Epoch.TradeStartTime+windowSeconds {
			return fmt.Errorf("dispute: %w", vault.ErrOutsideDisputePeriod)
		}

	case vault.StatusTradeExpired:
		// Disputing the final observation, before settlement completes.
		if v.Epoch.SettlementStatus != vault.SettlementAwaitingSettlement &&
			v.Epoch.SettlementStatus != vault.SettlementSettled {
			return fmt.Errorf("dispute from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
		}
		// Settled with a converted payoff means the exchange already moved
		// the assets; that epoch is final.
		if v.Epoch.SettlementStatus == vault.SettlementSettled && !v.Epoch.PayoffInDepositAsset {
			return fmt.Errorf("dispute: %w", vault.ErrTradeConverted)
		}
		holder, err := e.minter.OwnerOf(v.Epoch.ReceiptTokenID)
		if err != nil {
			return fmt.Errorf("dispute receipt lookup: %w", err)
		}
		if c.Caller != holder && !e.authority.IsTraderAdmin(c.Caller) {
			return fmt.Errorf("dispute: %w", vault.ErrNotTradeWinnerOrAdmin)
		}
		if c.Ts > v.Epoch.TradeExpiryTime+windowSeconds {
			return fmt.Errorf("dispute: %w", vault.ErrOutsideDisputePeriod)
		}

	default:
		return fmt.Errorf("dispute from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}

	v.InDispute = true
	v.Version++
	return nil
}

// handleProcessDispute resolves a dispute. With a corrected price, the epoch
// is re-derived exactly as if that price had been the oracle's answer: the
// strike recomputes pre-trade, and the trigger re-evaluates post-expiry. A
// nil or zero price just lifts the freeze.
func (e *Engine) handleProcessDispute(c *command.ProcessDispute) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("process dispute: %w", vault.ErrNotAuthorized)
	}
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if !v.InDispute {
		return fmt.Errorf("process dispute: %w", vault.ErrVaultNotInDispute)
	}

	if c.NewPrice != nil && c.NewPrice.Sign() < 0 {
		return fmt.Errorf("process dispute: %w", vault.ErrInvalidPrice)
	}

	if c.NewPrice != nil && c.NewPrice.Sign() > 0 {
		switch v.Status {
		case vault.StatusNotTraded:
			e.store.SetPriceOverride(v.ID, v.Epoch.TradeStartTime, c.NewPrice)
			v.Epoch.InitialSpotPrice = cloneBig(c.NewPrice)
			v.Epoch.StrikePrice = fpmath.StrikePrice(c.NewPrice, p.StrikeBarrierBps)

		case vault.StatusTradeExpired:
			e.store.SetPriceOverride(v.ID, v.Epoch.TradeExpiryTime, c.NewPrice)
			v.Epoch.FinalSpotPrice = cloneBig(c.NewPrice)
			if conversionTriggered(p.Direction, v.Epoch.FinalSpotPrice, v.Epoch.StrikePrice) {
				if v.Epoch.SettlementStatus != vault.SettlementAwaitingSettlement {
					if !v.Epoch.SettlementStatus.CanTransitionTo(vault.SettlementAwaitingSettlement) {
						return fmt.Errorf("process dispute from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
					}
					v.Epoch.SettlementStatus = vault.SettlementAwaitingSettlement
				}
				v.Epoch.PayoffInDepositAsset = false
			} else {
				v.Epoch.SettlementStatus = vault.SettlementSettled
				v.Epoch.PayoffInDepositAsset = true
			}

		default:
			return fmt.Errorf("process dispute from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
		}
	}

	v.InDispute = false
	v.Version++
	return nil
}
