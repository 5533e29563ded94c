// Package pricing resolves asset-pair prices at specific timestamps. The
// oracle itself is an external collaborator; disputed epochs are served
// from the store's override table before the oracle is consulted.
package pricing

import (
	"fmt"
	"math/big"

	"DCSLedger/internal/store"
	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// OracleSource answers historical price lookups. Prices are quote-per-base,
// fixed-point with fpmath.PriceDecimals precision.
type OracleSource interface {
	GetPrice(baseAsset, quoteAsset string, timestamp int64, dataSource string) (*big.Int, error)
}

// Resolver layers the dispute-override table over an oracle source.
type Resolver struct {
	oracle OracleSource
	store  *store.Store
}

func NewResolver(oracle OracleSource, st *store.Store) *Resolver {
	return &Resolver{oracle: oracle, store: st}
}

// Resolve returns the price for a vault's asset pair at a timestamp. An
// override written by dispute processing wins over the oracle answer.
func (r *Resolver) Resolve(vaultID uuid.UUID, baseAsset, quoteAsset string, timestamp int64, dataSource string) (*big.Int, error) {
	if override, ok := r.store.PriceOverride(vaultID, timestamp); ok {
		if override.Sign() <= 0 {
			return nil, fmt.Errorf("override at %d: %w", timestamp, vault.ErrInvalidPrice)
		}
		return override, nil
	}

	price, err := r.oracle.GetPrice(baseAsset, quoteAsset, timestamp, dataSource)
	if err != nil {
		return nil, fmt.Errorf("oracle %s/%s at %d: %w", baseAsset, quoteAsset, timestamp, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("oracle %s/%s at %d: %w", baseAsset, quoteAsset, timestamp, vault.ErrInvalidPrice)
	}
	return price, nil
}

// FixedOracle is a deterministic oracle backed by a keyed map. Used by tests
// and local runs; production deployments inject a real feed adapter.
type FixedOracle struct {
	prices map[string]*big.Int
}

func NewFixedOracle() *FixedOracle {
	return &FixedOracle{prices: make(map[string]*big.Int)}
}

func priceKey(base, quote string, timestamp int64, dataSource string) string {
	return fmt.Sprintf("%s/%s@%d#%s", base, quote, timestamp, dataSource)
}

// Set records the price for an exact (pair, timestamp, source) lookup.
func (o *FixedOracle) Set(base, quote string, timestamp int64, dataSource string, price *big.Int) {
	o.prices[priceKey(base, quote, timestamp, dataSource)] = new(big.Int).Set(price)
}

func (o *FixedOracle) GetPrice(base, quote string, timestamp int64, dataSource string) (*big.Int, error) {
	if price, ok := o.prices[priceKey(base, quote, timestamp, dataSource)]; ok {
		return new(big.Int).Set(price), nil
	}
	return nil, fmt.Errorf("no price for %s/%s at %d (source %s)", base, quote, timestamp, dataSource)
}
