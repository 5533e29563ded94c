// Package gateway abstracts moving value between external parties and the
// treasury holding account. Every movement produces a journal row so the
// op log carries a complete record of value flow.
package gateway

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// AssetNative is the sentinel identifier for the chain's native currency.
const AssetNative = "NATIVE"

// Direction of a transfer relative to the treasury.
type Direction int32

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// Transfer is the journal row recorded for every gateway movement.
type Transfer struct {
	TransferID uuid.UUID
	OpRef      string // Idempotency key of the operation that caused it
	Asset      string
	Account    uuid.UUID
	Amount     *big.Int
	Direction  Direction
	Timestamp  int64
}

// Gateway moves value in and out of the treasury for a given asset.
type Gateway interface {
	// Withdraw pays amount of asset out of the treasury to receiver.
	// trusted skips the re-entrancy-sensitive external call path.
	Withdraw(asset string, receiver uuid.UUID, amount *big.Int, trusted bool) error

	// ReceiveFrom pulls amount of asset from payer into the treasury and
	// returns the native value consumed (nonzero only for AssetNative).
	ReceiveFrom(asset string, payer uuid.UUID, amount *big.Int) (*big.Int, error)

	// TreasuryBalance reports the treasury's holding for an asset.
	TreasuryBalance(asset string) *big.Int
}

// Treasury is the in-memory gateway implementation. External account
// balances are unlimited (the counterparties are off-system); only the
// treasury side is tracked, and withdrawals exceeding it hard-fail.
type Treasury struct {
	mu       sync.Mutex
	balances map[string]*big.Int

	journal    []Transfer
	transferMu sync.Mutex

	// Guards against re-entrant mutation during an in-progress transfer.
	inTransfer bool
}

func NewTreasury() *Treasury {
	return &Treasury{
		balances: make(map[string]*big.Int),
	}
}

func (t *Treasury) Withdraw(asset string, receiver uuid.UUID, amount *big.Int, trusted bool) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("withdraw %s: negative amount", asset)
	}
	if amount.Sign() == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inTransfer {
		return fmt.Errorf("withdraw %s: re-entrant transfer rejected", asset)
	}
	t.inTransfer = true
	defer func() { t.inTransfer = false }()

	balance, ok := t.balances[asset]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s: treasury balance insufficient", asset)
	}
	balance.Sub(balance, amount)

	t.record(Transfer{
		TransferID: uuid.New(),
		Asset:      asset,
		Account:    receiver,
		Amount:     new(big.Int).Set(amount),
		Direction:  DirectionOut,
	})
	return nil
}

func (t *Treasury) ReceiveFrom(asset string, payer uuid.UUID, amount *big.Int) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("receive %s: negative amount", asset)
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inTransfer {
		return nil, fmt.Errorf("receive %s: re-entrant transfer rejected", asset)
	}
	t.inTransfer = true
	defer func() { t.inTransfer = false }()

	balance, ok := t.balances[asset]
	if !ok {
		balance = big.NewInt(0)
		t.balances[asset] = balance
	}
	balance.Add(balance, amount)

	t.record(Transfer{
		TransferID: uuid.New(),
		Asset:      asset,
		Account:    payer,
		Amount:     new(big.Int).Set(amount),
		Direction:  DirectionIn,
	})

	if asset == AssetNative {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (t *Treasury) TreasuryBalance(asset string) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if balance, ok := t.balances[asset]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// Fund seeds the treasury directly. Test and bootstrap helper.
func (t *Treasury) Fund(asset string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, ok := t.balances[asset]
	if !ok {
		balance = big.NewInt(0)
		t.balances[asset] = balance
	}
	balance.Add(balance, amount)
}

func (t *Treasury) record(tr Transfer) {
	t.transferMu.Lock()
	defer t.transferMu.Unlock()
	t.journal = append(t.journal, tr)
}

// DrainJournal returns and clears the accumulated transfer rows. The engine
// drains after each operation and attaches the rows to its output.
func (t *Treasury) DrainJournal() []Transfer {
	t.transferMu.Lock()
	defer t.transferMu.Unlock()
	out := t.journal
	t.journal = nil
	return out
}
