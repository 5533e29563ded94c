package store

import (
	"math/big"

	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// PriceOverrideRecord is the snapshot form of one override-table row; the
// composite map key does not survive JSON.
type PriceOverrideRecord struct {
	VaultID   uuid.UUID `json:"vault_id"`
	Timestamp int64     `json:"timestamp"`
	Price     *big.Int  `json:"price"`
}

// SnapshotState is the full store content in serializable form.
type SnapshotState struct {
	Products       []*vault.Product                     `json:"products"`
	Vaults         []*vault.Vault                       `json:"vaults"`
	Shares         map[uuid.UUID]map[uuid.UUID]*big.Int `json:"shares"`
	EscrowShares   map[uuid.UUID]*big.Int               `json:"escrow_shares"`
	PriceOverrides []PriceOverrideRecord                `json:"price_overrides"`
}

// Snapshot captures the store for persistence. Called on the engine
// goroutine between commands, so the content is a consistent cut.
func (s *Store) Snapshot() *SnapshotState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &SnapshotState{
		Products:     make([]*vault.Product, 0, len(s.products)),
		Vaults:       make([]*vault.Vault, 0, len(s.vaults)),
		Shares:       make(map[uuid.UUID]map[uuid.UUID]*big.Int, len(s.shares)),
		EscrowShares: make(map[uuid.UUID]*big.Int, len(s.escrowShares)),
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	for _, v := range s.vaults {
		snap.Vaults = append(snap.Vaults, v)
	}
	for vaultID, holders := range s.shares {
		out := make(map[uuid.UUID]*big.Int, len(holders))
		for account, balance := range holders {
			out[account] = new(big.Int).Set(balance)
		}
		snap.Shares[vaultID] = out
	}
	for vaultID, escrow := range s.escrowShares {
		snap.EscrowShares[vaultID] = new(big.Int).Set(escrow)
	}
	for key, price := range s.priceOverrides {
		snap.PriceOverrides = append(snap.PriceOverrides, PriceOverrideRecord{
			VaultID:   key.VaultID,
			Timestamp: key.Timestamp,
			Price:     new(big.Int).Set(price),
		})
	}
	return snap
}

// Restore replaces the store content with a snapshot's.
func (s *Store) Restore(snap *SnapshotState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[uuid.UUID]*vault.Product, len(snap.Products))
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	s.vaults = make(map[uuid.UUID]*vault.Vault, len(snap.Vaults))
	for _, v := range snap.Vaults {
		s.vaults[v.ID] = v
	}
	s.shares = make(map[uuid.UUID]map[uuid.UUID]*big.Int, len(snap.Shares))
	for vaultID, holders := range snap.Shares {
		in := make(map[uuid.UUID]*big.Int, len(holders))
		for account, balance := range holders {
			in[account] = new(big.Int).Set(balance)
		}
		s.shares[vaultID] = in
	}
	s.escrowShares = make(map[uuid.UUID]*big.Int, len(snap.EscrowShares))
	for vaultID, escrow := range snap.EscrowShares {
		s.escrowShares[vaultID] = new(big.Int).Set(escrow)
	}
	s.priceOverrides = make(map[OverrideKey]*big.Int, len(snap.PriceOverrides))
	for _, rec := range snap.PriceOverrides {
		s.priceOverrides[OverrideKey{VaultID: rec.VaultID, Timestamp: rec.Timestamp}] = new(big.Int).Set(rec.Price)
	}
}
