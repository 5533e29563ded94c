// Package store holds all per-product and per-vault persistent state behind
// one injected object, so tests can instantiate isolated stores per
// scenario. It is pure keyed storage: no lifecycle logic lives here.
package store

import (
	"fmt"
	"math/big"
	"sync"

	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// OverrideKey addresses one disputed price: (vault, observation timestamp).
type OverrideKey struct {
	VaultID   uuid.UUID
	Timestamp int64
}

// Store is the global keyed store. The lifecycle engine goroutine is the
// only mutator; reads for serving queries come from Postgres projections,
// not from here. The lock guards map structure for snapshotting.
type Store struct {
	mu sync.RWMutex

	products map[uuid.UUID]*vault.Product
	vaults   map[uuid.UUID]*vault.Vault

	// Share ledger: vault -> account -> 18-decimal share balance.
	shares map[uuid.UUID]map[uuid.UUID]*big.Int

	// Shares pulled into escrow at withdrawal-queue time, per vault.
	escrowShares map[uuid.UUID]*big.Int

	// Disputed-price override table consulted before the oracle.
	priceOverrides map[OverrideKey]*big.Int
}

func New() *Store {
	return &Store{
		products:       make(map[uuid.UUID]*vault.Product),
		vaults:         make(map[uuid.UUID]*vault.Vault),
		shares:         make(map[uuid.UUID]map[uuid.UUID]*big.Int),
		escrowShares:   make(map[uuid.UUID]*big.Int),
		priceOverrides: make(map[OverrideKey]*big.Int),
	}
}

// --- Products ---

func (s *Store) PutProduct(p *vault.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) Product(id uuid.UUID) (*vault.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) Products() []*vault.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vault.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out
}

// --- Vaults ---

func (s *Store) PutVault(v *vault.Vault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[v.ID] = v
}

func (s *Store) Vault(id uuid.UUID) (*vault.Vault, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[id]
	return v, ok
}

func (s *Store) Vaults() []*vault.Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vault.Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, v)
	}
	return out
}

func (s *Store) VaultsByProduct(productID uuid.UUID) []*vault.Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vault.Vault, 0)
	for _, v := range s.vaults {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out
}

// --- Share ledger ---

// MintShares credits an account's share balance for a vault.
func (s *Store) MintShares(vaultID, account uuid.UUID, shares *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holders, ok := s.shares[vaultID]
	if !ok {
		holders = make(map[uuid.UUID]*big.Int)
		s.shares[vaultID] = holders
	}
	balance, ok := holders[account]
	if !ok {
		balance = big.NewInt(0)
		holders[account] = balance
	}
	balance.Add(balance, shares)
}

// ShareBalance returns an account's share balance for a vault.
func (s *Store) ShareBalance(vaultID, account uuid.UUID) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if holders, ok := s.shares[vaultID]; ok {
		if balance, ok := holders[account]; ok {
			return new(big.Int).Set(balance)
		}
	}
	return big.NewInt(0)
}

// EscrowShares moves shares from an account's balance into the vault's
// withdrawal escrow. Fails hard on insufficient balance — a partial escrow
// would break the queue running-total invariant.
func (s *Store) EscrowShares(vaultID, account uuid.UUID, shares *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	holders, ok := s.shares[vaultID]
	if !ok {
		return fmt.Errorf("escrow %s: account holds no shares", vaultID)
	}
	balance, ok := holders[account]
	if !ok || balance.Cmp(shares) < 0 {
		return fmt.Errorf("escrow %s: insufficient share balance", vaultID)
	}
	balance.Sub(balance, shares)

	escrow, ok := s.escrowShares[vaultID]
	if !ok {
		escrow = big.NewInt(0)
		s.escrowShares[vaultID] = escrow
	}
	escrow.Add(escrow, shares)
	return nil
}

// BurnEscrowedShares removes shares from the vault's escrow. Fails hard if
// the escrow does not cover the burn.
func (s *Store) BurnEscrowedShares(vaultID uuid.UUID, shares *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	escrow, ok := s.escrowShares[vaultID]
	if !ok || escrow.Cmp(shares) < 0 {
		return fmt.Errorf("burn %s: insufficient escrowed shares", vaultID)
	}
	escrow.Sub(escrow, shares)
	return nil
}

// EscrowedShares returns the vault's current escrow balance.
func (s *Store) EscrowedShares(vaultID uuid.UUID) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if escrow, ok := s.escrowShares[vaultID]; ok {
		return new(big.Int).Set(escrow)
	}
	return big.NewInt(0)
}

// --- Price overrides ---

func (s *Store) SetPriceOverride(vaultID uuid.UUID, timestamp int64, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceOverrides[OverrideKey{VaultID: vaultID, Timestamp: timestamp}] = new(big.Int).Set(price)
}

func (s *Store) PriceOverride(vaultID uuid.UUID, timestamp int64) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.priceOverrides[OverrideKey{VaultID: vaultID, Timestamp: timestamp}]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(price), true
}

func (s *Store) ClearPriceOverride(vaultID uuid.UUID, timestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.priceOverrides, OverrideKey{VaultID: vaultID, Timestamp: timestamp})
}
