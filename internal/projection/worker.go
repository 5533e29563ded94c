// Package projection maintains the queryable Postgres tables derived from
// engine outputs. Updates are best-effort: the channel feeding the worker
// drops under pressure, and the tables can always be rebuilt by replaying
// the op log.
package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"

	"DCSLedger/internal/engine"
	"DCSLedger/internal/observability"
	"DCSLedger/internal/vault"

	"github.com/rs/zerolog"
)

// Worker updates projection tables from engine outputs.
type Worker struct {
	db        *sql.DB
	inputChan <-chan engine.Output
	history   *TransferHistory
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan engine.Output, history *TransferHistory, metrics *observability.Metrics, logger zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		history:   history,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if w.history != nil {
				w.history.Record(output)
			}
			if err := w.processOutput(ctx, output); err != nil {
				// Eventually consistent; a missed update is repaired by the
				// next one or by a rebuild.
				w.logger.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("projection update failed")
			}

			w.lastSeq = output.Envelope.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output engine.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if len(output.VaultState) > 0 {
		if err := upsertVault(ctx, tx, output.VaultState, seq); err != nil {
			return fmt.Errorf("vault projection: %w", err)
		}
	}
	if len(output.ProductState) > 0 {
		if err := upsertProduct(ctx, tx, output.ProductState, seq); err != nil {
			return fmt.Errorf("product projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func upsertVault(ctx context.Context, tx *sql.Tx, state []byte, seq int64) error {
	var v vault.Vault
	if err := json.Unmarshal(state, &v); err != nil {
		return fmt.Errorf("decode vault state: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.vaults
			(vault_id, product_id, status, settlement_status, total_assets, total_supply,
			 in_dispute, auction_winner, receipt_token_id, apr_bps, trade_start_time,
			 trade_expiry_time, initial_spot_price, strike_price, final_spot_price,
			 yield_amount, payoff_in_deposit_asset, withdrawal_pending_shares,
			 version, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW())
		ON CONFLICT (vault_id) DO UPDATE SET
			status = $3, settlement_status = $4, total_assets = $5, total_supply = $6,
			in_dispute = $7, auction_winner = $8, receipt_token_id = $9, apr_bps = $10,
			trade_start_time = $11, trade_expiry_time = $12, initial_spot_price = $13,
			strike_price = $14, final_spot_price = $15, yield_amount = $16,
			payoff_in_deposit_asset = $17, withdrawal_pending_shares = $18,
			version = $19, last_sequence = $20, updated_at = NOW()
		WHERE projections.vaults.last_sequence < $20
	`,
		v.ID.String(), v.ProductID.String(), v.Status.String(), v.Epoch.SettlementStatus.String(),
		bigStr(v.TotalAssets), bigStr(v.TotalSupply), v.InDispute,
		v.Epoch.AuctionWinner.String(), int64(v.Epoch.ReceiptTokenID), v.Epoch.AprBps,
		v.Epoch.TradeStartTime, v.Epoch.TradeExpiryTime,
		bigStr(v.Epoch.InitialSpotPrice), bigStr(v.Epoch.StrikePrice), bigStr(v.Epoch.FinalSpotPrice),
		bigStr(v.Epoch.YieldAmount), v.Epoch.PayoffInDepositAsset,
		withdrawalPending(&v), v.Version, seq,
	)
	return err
}

func upsertProduct(ctx context.Context, tx *sql.Tx, state []byte, seq int64) error {
	var p vault.Product
	if err := json.Unmarshal(state, &p); err != nil {
		return fmt.Errorf("decode product state: %w", err)
	}

	depositAsset, _ := p.DepositAsset()
	queuePending := "0"
	if p.DepositQueue != nil && p.DepositQueue.TotalAmount != nil {
		queuePending = p.DepositQueue.TotalAmount.String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.products
			(product_id, name, base_asset, quote_asset, direction, tenor_days,
			 strike_barrier_bps, deposit_asset, min_deposit_amount,
			 sum_vault_underlying, deposit_queue_pending, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			sum_vault_underlying = $10, deposit_queue_pending = $11,
			last_sequence = $12, updated_at = NOW()
		WHERE projections.products.last_sequence < $12
	`,
		p.ID.String(), p.Name, p.BaseAsset, p.QuoteAsset, p.Direction.String(),
		p.TenorDays, p.StrikeBarrierBps, depositAsset, bigStr(p.MinDepositAmount),
		bigStr(p.SumVaultUnderlying), queuePending, seq,
	)
	return err
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func withdrawalPending(v *vault.Vault) string {
	if v.WithdrawalQueue == nil || v.WithdrawalQueue.TotalShares == nil {
		return "0"
	}
	return v.WithdrawalQueue.TotalShares.String()
}

// Rebuild truncates the projection tables and resets the watermark. The
// orchestrator then replays the op log through the engine, which repopulates
// them via the normal output path.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.vaults`,
		`TRUNCATE projections.products`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild truncate: %w", err)
		}
	}
	return nil
}
