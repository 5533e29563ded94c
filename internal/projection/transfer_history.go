package projection

import (
	"math/big"
	"sync"

	"DCSLedger/internal/engine"

	"github.com/google/uuid"
)

// TransferHistoryEntry is one value movement as seen by an account.
type TransferHistoryEntry struct {
	TransferID uuid.UUID
	OpRef      string
	Sequence   int64
	Asset      string
	Account    uuid.UUID
	Amount     *big.Int
	Direction  string
	Timestamp  int64
}

// TransferHistory keeps a bounded in-memory feed of recent transfers for
// the query API. The durable record lives in op_log.transfers; this is the
// hot cache in front of it.
type TransferHistory struct {
	mu      sync.RWMutex
	entries []TransferHistoryEntry
	maxSize int
}

func NewTransferHistory(maxSize int) *TransferHistory {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &TransferHistory{
		entries: make([]TransferHistoryEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record appends the transfers of one engine output.
func (h *TransferHistory) Record(output engine.Output) {
	if len(output.Transfers) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range output.Transfers {
		h.entries = append(h.entries, TransferHistoryEntry{
			TransferID: t.TransferID,
			OpRef:      t.OpRef,
			Sequence:   output.Envelope.Sequence,
			Asset:      t.Asset,
			Account:    t.Account,
			Amount:     new(big.Int).Set(t.Amount),
			Direction:  t.Direction.String(),
			Timestamp:  t.Timestamp,
		})
	}
	if overflow := len(h.entries) - h.maxSize; overflow > 0 {
		h.entries = h.entries[overflow:]
	}
}

// QueryByAccount returns an account's recent transfers, newest first.
func (h *TransferHistory) QueryByAccount(account uuid.UUID, limit int) []TransferHistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]TransferHistoryEntry, 0)
	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if h.entries[i].Account == account {
			result = append(result, h.entries[i])
		}
	}
	return result
}
