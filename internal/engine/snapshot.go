package engine

import (
	"encoding/json"
	"fmt"

	"DCSLedger/internal/store"
)

// Snapshot is the engine's recovery point: the store content plus the
// sequence and hash-chain position it was cut at.
type Snapshot struct {
	Sequence  int64                `json:"sequence"`
	StateHash [32]byte             `json:"state_hash"`
	Store     *store.SnapshotState `json:"store"`
}

// CreateSnapshot captures the engine between commands. Sequence is the last
// assigned sequence number (the next to assign, minus one).
func (e *Engine) CreateSnapshot() *Snapshot {
	return &Snapshot{
		Sequence:  e.sequence - 1,
		StateHash: e.hasher.GetPrevHash(),
		Store:     e.store.Snapshot(),
	}
}

// RestoreFromSnapshot rewinds the engine and store to a snapshot, after
// which the op log from Sequence+1 onward replays on top.
func (e *Engine) RestoreFromSnapshot(snap *Snapshot) error {
	if snap == nil || snap.Store == nil {
		return fmt.Errorf("restore: empty snapshot")
	}
	e.store.Restore(snap.Store)
	e.RestoreSequence(snap.Sequence, snap.StateHash)
	return nil
}

// EncodeSnapshot serializes a snapshot for the persistence layer.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot parses a persisted snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
