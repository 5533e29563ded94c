package persistence

import (
	"context"
	"database/sql"
	"time"

	"DCSLedger/internal/engine"
	"DCSLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains the persist channel and batch-writes to Postgres. The
// engine's sends are blocking, so if this worker falls behind the engine
// stalls rather than lose an op-log record.
type Worker struct {
	writer       *OpLogWriter
	db           *sql.DB
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewOpLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run starts the worker loop. Batches flush when full or when the flush
// timeout expires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	opBatch := make([]OperationRow, 0, w.batchSize)
	transferBatch := make([]TransferRow, 0, w.batchSize*2)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(opBatch) > 0 {
				if err := w.flush(context.Background(), opBatch, transferBatch); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				if len(opBatch) > 0 {
					if err := w.flush(context.Background(), opBatch, transferBatch); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			opBatch = append(opBatch, toOperationRow(output))
			transferBatch = append(transferBatch, toTransferRows(output)...)

			if len(opBatch) >= w.batchSize {
				w.flushWithRetry(ctx, opBatch, transferBatch)
				opBatch = opBatch[:0]
				transferBatch = transferBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(opBatch) > 0 {
				w.flushWithRetry(ctx, opBatch, transferBatch)
				opBatch = opBatch[:0]
				transferBatch = transferBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds, with one final attempt on
// shutdown.
func (w *Worker) flushWithRetry(ctx context.Context, ops []OperationRow, transfers []TransferRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("ops", len(ops)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), ops, transfers); err != nil {
					w.logger.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, ops, transfers); err == nil {
			if attempt > 0 {
				w.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

// flush writes operations and transfers in a single transaction.
func (w *Worker) flush(ctx context.Context, ops []OperationRow, transfers []TransferRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteOperationBatch(ctx, tx, ops); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_operations").Inc()
		}
		return err
	}

	if err := w.writer.WriteTransferBatch(ctx, tx, transfers); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_transfers").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(ops)))
		w.metrics.PersistOpsWritten.Add(float64(len(ops)))
		w.metrics.PersistTransfersWritten.Add(float64(len(transfers)))
		if len(ops) > 0 {
			w.metrics.PersistLastSequence.Set(float64(ops[len(ops)-1].Sequence))
		}
	}

	return nil
}

// GetWriter exposes the underlying writer for recovery queries.
func (w *Worker) GetWriter() *OpLogWriter {
	return w.writer
}

func toOperationRow(output engine.Output) OperationRow {
	env := output.Envelope
	var vaultID *string
	if env.VaultID != nil {
		s := env.VaultID.String()
		vaultID = &s
	}
	return OperationRow{
		Sequence:       env.Sequence,
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		VaultID:        vaultID,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      time.Unix(env.Timestamp, 0).UTC(),
	}
}

func toTransferRows(output engine.Output) []TransferRow {
	rows := make([]TransferRow, 0, len(output.Transfers))
	for _, t := range output.Transfers {
		rows = append(rows, TransferRow{
			TransferID: t.TransferID.String(),
			OpRef:      t.OpRef,
			Sequence:   output.Envelope.Sequence,
			Asset:      t.Asset,
			Account:    t.Account.String(),
			Amount:     t.Amount.String(),
			Direction:  t.Direction.String(),
			Timestamp:  t.Timestamp,
		})
	}
	return rows
}
