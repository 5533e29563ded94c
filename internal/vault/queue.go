package vault

import (
	"encoding/json"
	"math/big"

	"github.com/google/uuid"
)

// DepositQueue is the append-only list of depositors waiting for the next
// vault to open. The processed-index cursor only ever advances; repeated or
// overlapping processing calls converge instead of double-minting.
type DepositQueue struct {
	// Depositors in arrival order. An account may appear more than once;
	// its pending amount is accumulated in Pending and cleared on first
	// processing, so later occurrences are skipped.
	Entries []uuid.UUID

	Pending map[uuid.UUID]*big.Int

	ProcessedIndex int

	// Running total; invariant: equals sum(Pending) at all times.
	TotalAmount *big.Int
}

func NewDepositQueue() *DepositQueue {
	return &DepositQueue{
		Entries:        make([]uuid.UUID, 0),
		Pending:        make(map[uuid.UUID]*big.Int),
		ProcessedIndex: 0,
		TotalAmount:    big.NewInt(0),
	}
}

// Add appends a depositor and accumulates their pending amount.
func (q *DepositQueue) Add(account uuid.UUID, amount *big.Int) {
	q.Entries = append(q.Entries, account)
	pending, ok := q.Pending[account]
	if !ok {
		pending = big.NewInt(0)
		q.Pending[account] = pending
	}
	pending.Add(pending, amount)
	q.TotalAmount.Add(q.TotalAmount, amount)
}

// Remaining returns how many entries sit at or beyond the cursor.
func (q *DepositQueue) Remaining() int {
	return len(q.Entries) - q.ProcessedIndex
}

// WithdrawalTarget distinguishes the two ways a queued withdrawal pays out:
// directly to the withdrawer (optionally through an unwrap-and-forward
// proxy), or redirected into a follow-on product's deposit queue.
type WithdrawalTarget struct {
	Account uuid.UUID

	// Non-nil to redeposit into the follow-on product instead of paying out.
	NextProductID *uuid.UUID

	// Opt-in to the asset-wrapping proxy on direct payout. Mutually
	// exclusive with NextProductID.
	UseProxy bool
}

// key collapses a target to its (account, next-product) identity so repeated
// queueing accumulates shares on one record.
type withdrawalKey struct {
	Account     uuid.UUID
	NextProduct uuid.UUID // uuid.Nil for direct payout
}

func (t WithdrawalTarget) key() withdrawalKey {
	k := withdrawalKey{Account: t.Account}
	if t.NextProductID != nil {
		k.NextProduct = *t.NextProductID
	}
	return k
}

// WithdrawalQueue holds escrowed share redemptions for one vault.
type WithdrawalQueue struct {
	Entries []WithdrawalTarget

	pending map[withdrawalKey]*big.Int

	ProcessedIndex int

	// Running total of escrowed shares; invariant: equals sum(pending).
	TotalShares *big.Int
}

func NewWithdrawalQueue() *WithdrawalQueue {
	return &WithdrawalQueue{
		Entries:     make([]WithdrawalTarget, 0),
		pending:     make(map[withdrawalKey]*big.Int),
		TotalShares: big.NewInt(0),
	}
}

// Add escrows shares for a target, accumulating onto an existing record for
// the same (account, next-product) pair.
func (q *WithdrawalQueue) Add(target WithdrawalTarget, shares *big.Int) {
	k := target.key()
	pending, ok := q.pending[k]
	if !ok {
		pending = big.NewInt(0)
		q.pending[k] = pending
		q.Entries = append(q.Entries, target)
	}
	pending.Add(pending, shares)
	q.TotalShares.Add(q.TotalShares, shares)
}

// PendingShares returns the escrowed share amount for a target.
func (q *WithdrawalQueue) PendingShares(target WithdrawalTarget) *big.Int {
	if pending, ok := q.pending[target.key()]; ok {
		return new(big.Int).Set(pending)
	}
	return big.NewInt(0)
}

// ClearPending zeroes a target's record and returns the shares it held.
func (q *WithdrawalQueue) ClearPending(target WithdrawalTarget) *big.Int {
	k := target.key()
	pending, ok := q.pending[k]
	if !ok {
		return big.NewInt(0)
	}
	cleared := new(big.Int).Set(pending)
	pending.SetInt64(0)
	return cleared
}

// Remaining returns how many entries sit at or beyond the cursor.
func (q *WithdrawalQueue) Remaining() int {
	return len(q.Entries) - q.ProcessedIndex
}

// PendingSum recomputes sum(pending) for invariant checks.
func (q *WithdrawalQueue) PendingSum() *big.Int {
	sum := big.NewInt(0)
	for _, pending := range q.pending {
		sum.Add(sum, pending)
	}
	return sum
}

// withdrawalQueueJSON is the snapshot wire form; pending amounts ride as a
// parallel slice keyed by entry order.
type withdrawalQueueJSON struct {
	Entries        []WithdrawalTarget `json:"entries"`
	Pending        []*big.Int         `json:"pending"`
	ProcessedIndex int                `json:"processed_index"`
	TotalShares    *big.Int           `json:"total_shares"`
}

func (q *WithdrawalQueue) MarshalJSON() ([]byte, error) {
	out := withdrawalQueueJSON{
		Entries:        q.Entries,
		Pending:        make([]*big.Int, len(q.Entries)),
		ProcessedIndex: q.ProcessedIndex,
		TotalShares:    q.TotalShares,
	}
	seen := make(map[withdrawalKey]bool)
	for i, target := range q.Entries {
		k := target.key()
		if seen[k] {
			out.Pending[i] = big.NewInt(0)
			continue
		}
		seen[k] = true
		out.Pending[i] = q.PendingShares(target)
	}
	return json.Marshal(out)
}

func (q *WithdrawalQueue) UnmarshalJSON(data []byte) error {
	var in withdrawalQueueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	q.Entries = in.Entries
	q.ProcessedIndex = in.ProcessedIndex
	q.TotalShares = in.TotalShares
	if q.TotalShares == nil {
		q.TotalShares = big.NewInt(0)
	}
	q.pending = make(map[withdrawalKey]*big.Int)
	for i, target := range in.Entries {
		k := target.key()
		if _, ok := q.pending[k]; !ok {
			q.pending[k] = big.NewInt(0)
		}
		if i < len(in.Pending) && in.Pending[i] != nil {
			q.pending[k].Add(q.pending[k], in.Pending[i])
		}
	}
	return nil
}

// PendingSum recomputes sum(Pending) for invariant checks.
func (q *DepositQueue) PendingSum() *big.Int {
	sum := big.NewInt(0)
	for _, pending := range q.Pending {
		sum.Add(sum, pending)
	}
	return sum
}
