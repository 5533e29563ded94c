package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DCSLedger/internal/engine"

	"github.com/google/uuid"
)

// SnapshotManager persists and loads engine snapshots for warm restart:
// load the latest verified snapshot, then replay the op log from its
// sequence forward.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists an engine snapshot plus the LRU keys captured with
// it. Snapshots are written unverified and marked after a replay check.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *engine.Snapshot, idempotencyKeys []string) error {
	data, err := engine.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	keys, err := MarshalKeys(idempotencyKeys)
	if err != nil {
		return fmt.Errorf("marshal idempotency keys: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO op_log.snapshots
			(snapshot_id, sequence, data, state_hash, idempotency_keys, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, idempotency_keys = $5, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], keys, len(data), time.Now().UTC())

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. A nil result
// with nil error means cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*engine.Snapshot, []string, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data, idempotency_keys FROM op_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data, keysRaw []byte
	if err := row.Scan(&data, &keysRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := engine.DecodeSnapshot(data)
	if err != nil {
		return nil, nil, err
	}

	keys, err := UnmarshalKeys(keysRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal idempotency keys: %w", err)
	}
	return snap, keys, nil
}

// MarkVerified marks a snapshot as verified after the replay check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE op_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadOperationsFrom loads operations from a sequence for replay, in
// ascending order.
func (sm *SnapshotManager) LoadOperationsFrom(ctx context.Context, fromSequence int64, limit int) ([]OperationRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_type, idempotency_key, vault_id, payload,
		       state_hash, prev_hash, timestamp
		FROM op_log.operations
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationRow
	for rows.Next() {
		var op OperationRow
		if err := rows.Scan(
			&op.Sequence, &op.CommandType, &op.IdempotencyKey, &op.VaultID,
			&op.Payload, &op.StateHash, &op.PrevHash, &op.Timestamp,
		); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// MarshalKeys serializes idempotency keys for the snapshots table.
func MarshalKeys(keys []string) ([]byte, error) {
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}

// UnmarshalKeys parses keys stored by MarshalKeys.
func UnmarshalKeys(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}
