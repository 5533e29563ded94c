package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// OpLogWriter writes operation records and transfer journal rows to
// Postgres using multi-row INSERT. ON CONFLICT DO NOTHING keeps replayed
// batches idempotent.
type OpLogWriter struct {
	db *sql.DB
}

// OperationRow represents a row in op_log.operations.
type OperationRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	VaultID        *string
	Payload        []byte // JSON-encoded command
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// TransferRow represents a row in op_log.transfers. Amounts are stored as
// NUMERIC and travel as decimal strings.
type TransferRow struct {
	TransferID string
	OpRef      string
	Sequence   int64
	Asset      string
	Account    string
	Amount     string
	Direction  string
	Timestamp  int64
}

func NewOpLogWriter(db *sql.DB) *OpLogWriter {
	return &OpLogWriter{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteOperationBatch writes a batch of operations to op_log.operations.
func (w *OpLogWriter) WriteOperationBatch(ctx context.Context, ex execer, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.operations
		(sequence, command_type, idempotency_key, vault_id, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*8)

	for i, op := range ops {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			op.Sequence, op.CommandType, op.IdempotencyKey, op.VaultID,
			op.Payload, op.StateHash, op.PrevHash, op.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTransferBatch writes a batch of journal rows to op_log.transfers.
func (w *OpLogWriter) WriteTransferBatch(ctx context.Context, ex execer, transfers []TransferRow) error {
	if len(transfers) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.transfers
		(transfer_id, op_ref, sequence, asset, account, amount, direction, timestamp)
		VALUES `

	values := make([]string, 0, len(transfers))
	args := make([]interface{}, 0, len(transfers)*8)

	for i, t := range transfers {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			t.TransferID, t.OpRef, t.Sequence, t.Asset,
			t.Account, t.Amount, t.Direction, t.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (transfer_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted operation sequence, or -1 on
// an empty log.
func (w *OpLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM op_log.operations`).Scan(&seq)
	if err != nil {
		return -1, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// RecentIdempotencyKeys returns composite keys of the most recent
// operations, newest first, for warming the engine's LRU.
func (w *OpLogWriter) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT command_type, idempotency_key
		FROM op_log.operations
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0, limit)
	for rows.Next() {
		var commandType, key string
		if err := rows.Scan(&commandType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s:%s", commandType, key))
	}
	return keys, rows.Err()
}
