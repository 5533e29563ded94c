// Package receipt is the position-receipt token collaborator: a
// non-fungible token identifying the auction winner and carrying the
// epoch's terms, used later to authorize settlement.
package receipt

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// Metadata carried by a position receipt.
type Metadata struct {
	VaultID         uuid.UUID
	StrikePrice     *big.Int
	Notional        *big.Int
	TradeStartTime  int64
	TradeExpiryTime int64
}

// Minter mints and resolves position receipts.
type Minter interface {
	Mint(to uuid.UUID, md Metadata) (uint64, error)
	OwnerOf(tokenID uint64) (uuid.UUID, error)
}

// Registry is the in-memory minter. Token IDs are assigned sequentially
// starting at 1 so 0 can mean "no receipt minted".
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	owners map[uint64]uuid.UUID
	terms  map[uint64]Metadata
}

func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		owners: make(map[uint64]uuid.UUID),
		terms:  make(map[uint64]Metadata),
	}
}

func (r *Registry) Mint(to uuid.UUID, md Metadata) (uint64, error) {
	if to == uuid.Nil {
		return 0, fmt.Errorf("mint receipt: nil recipient")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.owners[id] = to
	r.terms[id] = md
	return id, nil
}

func (r *Registry) OwnerOf(tokenID uint64) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return uuid.Nil, fmt.Errorf("receipt %d: unknown token", tokenID)
	}
	return owner, nil
}

// Transfer reassigns ownership. Receipts are freely transferable; whoever
// holds one at expiry settles the trade.
func (r *Registry) Transfer(tokenID uint64, to uuid.UUID) error {
	if to == uuid.Nil {
		return fmt.Errorf("transfer receipt %d: nil recipient", tokenID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[tokenID]; !ok {
		return fmt.Errorf("transfer receipt %d: unknown token", tokenID)
	}
	r.owners[tokenID] = to
	return nil
}

// Terms returns the metadata a receipt was minted with.
func (r *Registry) Terms(tokenID uint64) (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	md, ok := r.terms[tokenID]
	return md, ok
}
