package engine

import (
	"errors"
	"math/big"
	"sort"

	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// reasonLabel maps a rejection error to a bounded metric label. Unknown
// errors collapse into "internal" to keep label cardinality fixed.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, vault.ErrInvalidProduct):
		return "invalid_product"
	case errors.Is(err, vault.ErrInvalidVault):
		return "invalid_vault"
	case errors.Is(err, vault.ErrInvalidVaultStatus):
		return "invalid_vault_status"
	case errors.Is(err, vault.ErrInvalidSettlementStatus):
		return "invalid_settlement_status"
	case errors.Is(err, vault.ErrVaultInZombieState):
		return "zombie"
	case errors.Is(err, vault.ErrTradeDefaulted):
		return "defaulted"
	case errors.Is(err, vault.ErrVaultInDispute):
		return "in_dispute"
	case errors.Is(err, vault.ErrVaultNotInDispute):
		return "not_in_dispute"
	case errors.Is(err, vault.ErrOutsideDisputePeriod):
		return "outside_dispute_period"
	case errors.Is(err, vault.ErrTradeHasNoWinner):
		return "no_winner"
	case errors.Is(err, vault.ErrTradeNotConverted):
		return "not_converted"
	case errors.Is(err, vault.ErrTradeConverted):
		return "converted"
	case errors.Is(err, vault.ErrInvalidTradeEndDate):
		return "invalid_trade_date"
	case errors.Is(err, vault.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, vault.ErrValueTooSmall):
		return "value_too_small"
	case errors.Is(err, vault.ErrValueTooLarge):
		return "value_too_large"
	case errors.Is(err, vault.ErrValueIsZero):
		return "value_zero"
	case errors.Is(err, vault.ErrNotTradeWinner):
		return "not_winner"
	case errors.Is(err, vault.ErrNotTradeWinnerOrAdmin):
		return "not_winner_or_admin"
	case errors.Is(err, vault.ErrTradeNotStarted):
		return "trade_not_started"
	case errors.Is(err, vault.ErrNoProxyForRedeposit):
		return "no_proxy_for_redeposit"
	case errors.Is(err, vault.ErrNotAuthorized):
		return "not_authorized"
	default:
		return "internal"
	}
}

// sortedVaults orders vaults by ID so digests over multiple vaults are
// deterministic regardless of map iteration.
func sortedVaults(vaults []*vault.Vault) []*vault.Vault {
	sort.Slice(vaults, func(i, j int) bool {
		a, b := vaults[i].ID, vaults[j].ID
		for k := 0; k < len(a); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return vaults
}

// storeRouter is the default redeposit router: the payout stays in the
// treasury and re-enters the follow-on product's deposit queue.
type storeRouter struct {
	store storeAccess
}

type storeAccess interface {
	Product(id uuid.UUID) (*vault.Product, bool)
}

func (r *storeRouter) Redeposit(productID uuid.UUID, asset string, amount *big.Int, receiver uuid.UUID) error {
	p, ok := r.store.Product(productID)
	if !ok {
		return vault.ErrInvalidProduct
	}
	depositAsset, _ := p.DepositAsset()
	if depositAsset != asset {
		return vault.ErrInvalidProduct
	}
	if p.MinDepositAmount != nil && amount.Cmp(p.MinDepositAmount) < 0 {
		return vault.ErrValueTooSmall
	}
	p.DepositQueue.Add(receiver, amount)
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigZero() *big.Int { return big.NewInt(0) }

// daysBetween returns whole days elapsed from 'from' to 'to' in unix
// seconds; negative spans clamp to zero.
func daysBetween(from, to int64) int64 {
	if to <= from {
		return 0
	}
	return (to - from) / 86_400
}
