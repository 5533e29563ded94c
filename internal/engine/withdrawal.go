package engine

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/command"
	"DCSLedger/internal/fpmath"
	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

func (e *Engine) handleQueueWithdrawal(c *command.QueueWithdrawal) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if c.Shares == nil || c.Shares.Sign() == 0 {
		return fmt.Errorf("queue withdrawal: %w", vault.ErrValueIsZero)
	}
	if c.Shares.Sign() < 0 || c.Shares.Cmp(p.MinWithdrawalShares) < 0 {
		return fmt.Errorf("withdrawal below product minimum: %w", vault.ErrValueTooSmall)
	}
	if c.NextProductID != nil && c.UseProxy {
		return fmt.Errorf("queue withdrawal: %w", vault.ErrNoProxyForRedeposit)
	}
	if c.NextProductID != nil {
		if _, ok := e.store.Product(*c.NextProductID); !ok {
			return fmt.Errorf("next product %s: %w", *c.NextProductID, vault.ErrInvalidProduct)
		}
	}

	if err := e.store.EscrowShares(v.ID, c.Account, c.Shares); err != nil {
		return fmt.Errorf("queue withdrawal escrow: %w", err)
	}

	v.WithdrawalQueue.Add(vault.WithdrawalTarget{
		Account:       c.Account,
		NextProductID: c.NextProductID,
		UseProxy:      c.UseProxy,
	}, c.Shares)
	v.Version++
	return nil
}

// withdrawalEligible reports whether the vault's phase permits redeeming the
// queue: the normal post-fee phase, the zombie drain, or a defaulted trade
// whose depositors should not wait on a counterparty that never settles.
func withdrawalEligible(v *vault.Vault) bool {
	if v.Status == vault.StatusFeesCollected || v.Status == vault.StatusZombie {
		return true
	}
	return v.Status == vault.StatusTradeExpired && v.Epoch.SettlementStatus == vault.SettlementDefaulted
}

type withdrawalPayout struct {
	target vault.WithdrawalTarget
	shares *big.Int
	assets *big.Int
}

func (e *Engine) handleProcessWithdrawalQueue(c *command.ProcessWithdrawalQueue) error {
	v, p, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("process withdrawals: %w", vault.ErrVaultInDispute)
	}
	if !withdrawalEligible(v) {
		return fmt.Errorf("process withdrawals from %s/%s: %w", v.Status, v.Epoch.SettlementStatus, vault.ErrInvalidVaultStatus)
	}

	q := v.WithdrawalQueue
	count := q.Remaining()
	if c.MaxCount > 0 && c.MaxCount < count {
		count = c.MaxCount
	}

	payoutAsset, _ := p.DepositAsset()
	if !v.Epoch.PayoffInDepositAsset {
		payoutAsset, _ = p.CounterAsset()
	}

	// First pass: price every redemption at the pre-batch ratio and run every
	// fallible check — redeposit targets, redeposit minimums, treasury cover
	// for the direct payouts — so the execution pass cannot fail halfway.
	refSupply := new(big.Int).Set(v.TotalSupply)
	refAssets := new(big.Int).Set(v.TotalAssets)

	payouts := make([]withdrawalPayout, 0, count)
	directTotal := big.NewInt(0)
	for i := 0; i < count; i++ {
		target := q.Entries[q.ProcessedIndex+i]
		shares := q.PendingShares(target)
		if shares.Sign() == 0 {
			continue
		}
		assets := fpmath.AssetsForShares(shares, refSupply, refAssets)

		if target.NextProductID != nil {
			next, ok := e.store.Product(*target.NextProductID)
			if !ok {
				return fmt.Errorf("redeposit product %s: %w", *target.NextProductID, vault.ErrInvalidProduct)
			}
			nextAsset, _ := next.DepositAsset()
			if nextAsset != payoutAsset {
				return fmt.Errorf("redeposit asset mismatch %s != %s: %w", nextAsset, payoutAsset, vault.ErrInvalidProduct)
			}
			if next.MinDepositAmount != nil && assets.Cmp(next.MinDepositAmount) < 0 {
				return fmt.Errorf("redeposit below product minimum: %w", vault.ErrValueTooSmall)
			}
		} else {
			directTotal.Add(directTotal, assets)
		}
		payouts = append(payouts, withdrawalPayout{target: target, shares: shares, assets: assets})
	}

	if directTotal.Sign() > 0 && e.gateway.TreasuryBalance(payoutAsset).Cmp(directTotal) < 0 {
		return fmt.Errorf("process withdrawals: treasury short of %s: %w", payoutAsset, vault.ErrValueTooLarge)
	}

	burnedShares := big.NewInt(0)
	paidAssets := big.NewInt(0)
	for _, po := range payouts {
		if po.target.NextProductID != nil {
			if err := e.router.Redeposit(*po.target.NextProductID, payoutAsset, po.assets, po.target.Account); err != nil {
				return fmt.Errorf("redeposit: %w", err)
			}
		} else {
			// Proxy payouts leave through the untrusted external path.
			if err := e.gateway.Withdraw(payoutAsset, po.target.Account, po.assets, !po.target.UseProxy); err != nil {
				return fmt.Errorf("withdrawal payout: %w", err)
			}
		}
		q.ClearPending(po.target)
		burnedShares.Add(burnedShares, po.shares)
		paidAssets.Add(paidAssets, po.assets)
	}

	if burnedShares.Sign() > 0 {
		if err := e.store.BurnEscrowedShares(v.ID, burnedShares); err != nil {
			return fmt.Errorf("withdrawal burn: %w", err)
		}
	}

	q.ProcessedIndex += count
	q.TotalShares.Sub(q.TotalShares, burnedShares)

	v.TotalSupply.Sub(v.TotalSupply, burnedShares)
	v.TotalAssets.Sub(v.TotalAssets, paidAssets)
	if v.Epoch.PayoffInDepositAsset && v.Epoch.SettlementStatus != vault.SettlementDefaulted {
		p.SumVaultUnderlying.Sub(p.SumVaultUnderlying, paidAssets)
	}

	if q.Remaining() == 0 && v.Status != vault.StatusWithdrawalQueueProcessed {
		if !v.Status.CanTransitionTo(vault.StatusWithdrawalQueueProcessed) {
			return fmt.Errorf("withdrawal queue drained from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
		}
		v.Status = vault.StatusWithdrawalQueueProcessed
	}
	v.Version++
	return nil
}

func (e *Engine) handleRolloverVault(c *command.RolloverVault) error {
	if !e.authority.IsTraderAdmin(c.Caller) {
		return fmt.Errorf("rollover: %w", vault.ErrNotAuthorized)
	}
	v, _, err := e.vaultGuard(c.Vault)
	if err != nil {
		return err
	}
	if v.InDispute {
		return fmt.Errorf("rollover: %w", vault.ErrVaultInDispute)
	}
	if v.Status != vault.StatusWithdrawalQueueProcessed {
		return fmt.Errorf("rollover from %s: %w", v.Status, vault.ErrInvalidVaultStatus)
	}
	if v.WithdrawalQueue.Remaining() != 0 {
		return fmt.Errorf("rollover with pending withdrawals: %w", vault.ErrInvalidVaultStatus)
	}

	if !v.Epoch.PayoffInDepositAsset {
		// Converted payoff cannot seed the next epoch; the vault parks until
		// the residue is withdrawn.
		if !v.Status.CanTransitionTo(vault.StatusZombie) {
			return fmt.Errorf("rollover transition: %w", vault.ErrInvalidVaultStatus)
		}
		v.Status = vault.StatusZombie
		v.Version++
		return nil
	}

	// Epoch price observations were final; drop any dispute overrides so
	// the next epoch resolves fresh.
	if v.Epoch.TradeStartTime != 0 {
		e.store.ClearPriceOverride(v.ID, v.Epoch.TradeStartTime)
	}
	if v.Epoch.TradeExpiryTime != 0 {
		e.store.ClearPriceOverride(v.ID, v.Epoch.TradeExpiryTime)
	}

	v.Epoch = vault.EpochState{
		SettlementStatus:     vault.SettlementNotAuctioned,
		AuctionWinner:        uuid.Nil,
		InitialSpotPrice:     big.NewInt(0),
		StrikePrice:          big.NewInt(0),
		FinalSpotPrice:       big.NewInt(0),
		MintRefAssets:        big.NewInt(0),
		MintRefSupply:        big.NewInt(0),
		YieldAmount:          big.NewInt(0),
		PayoffInDepositAsset: true,
	}
	v.Status = vault.StatusDepositsClosed
	v.Version++
	return nil
}
