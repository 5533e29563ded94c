package engine

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/receipt"
	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

func (e *Engine) handleEndAuction(c *command.EndAuction) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("end auction: %w", vault.ErrNotAuthorized)
	}
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("end auction: %w", vault.ErrVaultInDispute)
	}
	if v.Status != vault.StatusNotTraded {
		return fmt.Errorf("end auction from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	// Re-running before trade start replaces the previous result; any later
	// settlement state is final.
	if !v.Epoch.SettlementStatus.CanTransitionTo(vault.SettlementAuctioned) {
		return fmt.Errorf("end auction from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
	}
	if c.Winner == uuid.Nil {
		return fmt.Errorf("end auction: %w", vault.ErrTradeHasNoWinner)
	}
	if c.TradeStart <= 0 {
		return fmt.Errorf("end auction: %w", vault.ErrInvalidTradeEndDate)
	}
	if c.AprBps <= 0 {
		return fmt.Errorf("end auction apr: %w", vault.ErrValueIsZero)
	}

	dataSource := v.DataSource
	if c.DataSource != "" {
		dataSource = c.DataSource
	}

	spot, err := e.resolver.Resolve(v.ID, p.BaseAsset, p.QuoteAsset, c.TradeStart, dataSource)
	if err != nil {
		return fmt.Errorf("end auction spot: %w", err)
	}

	v.DataSource = dataSource
	v.Epoch.AuctionWinner = c.Winner
	v.Epoch.AprBps = c.AprBps
	v.Epoch.TradeStartTime = c.TradeStart
	v.Epoch.TradeExpiryTime = c.TradeStart + p.TenorDays*86_400
	v.Epoch.InitialSpotPrice = spot
	v.Epoch.StrikePrice = fpmath.StrikePrice(spot, p.StrikeBarrierBps)
	v.Epoch.SettlementStatus = vault.SettlementAuctioned
	v.Version++
	return nil
}

func (e *Engine) handleStartTrade(c *command.StartTrade) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("start trade: %w", vault.ErrVaultInDispute)
	}
	if v.Status != vault.StatusNotTraded {
		return fmt.Errorf("start trade from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	if v.Epoch.SettlementStatus != vault.SettlementAuctioned {
		return fmt.Errorf("start trade from %s: %w", v.Epoch.SettlementStatus, vault.ErrInvalidSettlementStatus)
	}
	if c.Caller != v.Epoch.AuctionWinner {
		return fmt.Errorf("start trade: %w", vault.ErrNotTradeWinner)
	}
	if c.Ts < v.Epoch.TradeStartTime {
		return fmt.Errorf("start trade before %d: %w", v.Epoch.TradeStartTime, vault.ErrTradeNotStarted)
	}

	daysElapsed := daysBetween(v.Epoch.TradeStartTime, c.Ts)
	if p.AuctionDefaultDays > 0 && daysElapsed >= p.AuctionDefaultDays {
		return fmt.Errorf("start trade %d days late: %w", daysElapsed, vault.ErrTradeDefaulted)
	}

	yield := fpmath.TenorYield(v.TotalAssets, v.Epoch.AprBps, p.TenorDays)

	lateDays := daysElapsed - p.FeeGraceDays
	if lateDays < 0 {
		lateDays = 0
	}
	if p.AuctionDefaultDays > 0 && lateDays > p.AuctionDefaultDays {
		lateDays = p.AuctionDefaultDays
	}
	lateFee := fpmath.LateFee(yield, p.LateFeeBps, lateDays)

	depositAsset, _ := p.DepositAsset()
	if _, err := e.gateway.ReceiveFrom(depositAsset, c.Caller, yield); err != nil {
		return fmt.Errorf("start trade yield transfer: %w", err)
	}
	if lateFee.Sign() > 0 {
		if _, err := e.gateway.ReceiveFrom(depositAsset, c.Caller, lateFee); err != nil {
			return fmt.Errorf("start trade late fee: %w", err)
		}
		if err := e.gateway.Withdraw(depositAsset, e.feeReceiver, lateFee, true); err != nil {
			return fmt.Errorf("start trade late fee payout: %w", err)
		}
	}

	notional := new(big.Int).Add(v.TotalAssets, yield)
	tokenID, err := e.minter.Mint(c.Caller, receipt.Metadata{
		VaultID:         v.ID,
		StrikePrice:     new(big.Int).Set(v.Epoch.StrikePrice),
		Notional:        notional,
		TradeStartTime:  v.Epoch.TradeStartTime,
		TradeExpiryTime: v.Epoch.TradeExpiryTime,
	})
	if err != nil {
		return fmt.Errorf("start trade receipt: %w", err)
	}

	v.TotalAssets.Add(v.TotalAssets, yield)
	p.SumVaultUnderlying.Add(p.SumVaultUnderlying, yield)
	v.Epoch.YieldAmount = yield
	v.Epoch.ReceiptTokenID = tokenID
	v.Status = vault.StatusTraded
	v.Epoch.SettlementStatus = vault.SettlementInitialPremiumPaid
	v.Version++
	return nil
}
