package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"DCSLedger/internal/store"

	"github.com/google/uuid"
)

// Service provides read-only access to projection tables and the op log.
// All responses include as_of_sequence for freshness semantics: the caller
// can compare it against the sequence returned when the command was accepted.
type Service struct {
	db    *sql.DB
	store *store.Store
}

func NewService(db *sql.DB, st *store.Store) *Service {
	return &Service{db: db, store: st}
}

// GetVault returns a single vault from the projection table.
func (s *Service) GetVault(ctx context.Context, vaultID uuid.UUID) (*VaultResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT vault_id, product_id, status, settlement_status, total_assets, total_supply,
		       in_dispute, auction_winner, receipt_token_id, apr_bps, trade_start_time,
		       trade_expiry_time, initial_spot_price, strike_price, final_spot_price,
		       yield_amount, payoff_in_deposit_asset, withdrawal_pending_shares, version
		FROM projections.vaults
		WHERE vault_id = $1
	`, vaultID.String())

	v, err := scanVault(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.AsOfSequence = asOfSeq
	return v, nil
}

// ListVaults returns vaults, optionally filtered by product.
func (s *Service) ListVaults(ctx context.Context, productID *uuid.UUID) ([]VaultResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT vault_id, product_id, status, settlement_status, total_assets, total_supply,
		       in_dispute, auction_winner, receipt_token_id, apr_bps, trade_start_time,
		       trade_expiry_time, initial_spot_price, strike_price, final_spot_price,
		       yield_amount, payoff_in_deposit_asset, withdrawal_pending_shares, version
		FROM projections.vaults
	`
	args := []interface{}{}
	if productID != nil {
		query += " WHERE product_id = $1"
		args = append(args, productID.String())
	}
	query += " ORDER BY vault_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []VaultResponse
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		v.AsOfSequence = asOfSeq
		vaults = append(vaults, *v)
	}
	return vaults, rows.Err()
}

// GetProduct returns a single product from the projection table.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p ProductResponse
	var idStr string
	err = s.db.QueryRowContext(ctx, `
		SELECT product_id, name, base_asset, quote_asset, direction, tenor_days,
		       strike_barrier_bps, deposit_asset, min_deposit_amount,
		       sum_vault_underlying, deposit_queue_pending
		FROM projections.products
		WHERE product_id = $1
	`, productID.String()).Scan(
		&idStr, &p.Name, &p.BaseAsset, &p.QuoteAsset, &p.Direction, &p.TenorDays,
		&p.StrikeBarrierBps, &p.DepositAsset, &p.MinDepositAmount,
		&p.SumVaultUnderlying, &p.DepositQueuePending,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.ProductID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("product_id: %w", err)
	}
	p.AsOfSequence = asOfSeq
	return &p, nil
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]ProductResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, base_asset, quote_asset, direction, tenor_days,
		       strike_barrier_bps, deposit_asset, min_deposit_amount,
		       sum_vault_underlying, deposit_queue_pending
		FROM projections.products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ProductResponse
	for rows.Next() {
		var p ProductResponse
		var idStr string
		if err := rows.Scan(
			&idStr, &p.Name, &p.BaseAsset, &p.QuoteAsset, &p.Direction, &p.TenorDays,
			&p.StrikeBarrierBps, &p.DepositAsset, &p.MinDepositAmount,
			&p.SumVaultUnderlying, &p.DepositQueuePending,
		); err != nil {
			return nil, err
		}
		p.ProductID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("product_id: %w", err)
		}
		p.AsOfSequence = asOfSeq
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetTransferHistory returns transfer journal rows for an account with
// cursor-based pagination on sequence.
func (s *Service) GetTransferHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]TransferResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT transfer_id, op_ref, sequence, asset, account, amount, direction, timestamp
		FROM op_log.transfers
		WHERE account = $1
	`
	args := []interface{}{account.String()}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, transfer_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []TransferResponse
	for rows.Next() {
		var t TransferResponse
		var transferID, accountStr string
		if err := rows.Scan(
			&transferID, &t.OpRef, &t.Sequence, &t.Asset,
			&accountStr, &t.Amount, &t.Direction, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		if t.TransferID, err = uuid.Parse(transferID); err != nil {
			return nil, fmt.Errorf("transfer_id: %w", err)
		}
		if t.Account, err = uuid.Parse(accountStr); err != nil {
			return nil, fmt.Errorf("account: %w", err)
		}
		t.AsOfSequence = asOfSeq
		history = append(history, t)
	}
	return history, rows.Err()
}

// GetOperations returns op log entries for a vault with pagination.
func (s *Service) GetOperations(
	ctx context.Context,
	vaultID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]OperationResponse, error) {
	query := `
		SELECT sequence, command_type, idempotency_key, vault_id, state_hash, prev_hash, timestamp
		FROM op_log.operations
		WHERE vault_id = $1
	`
	args := []interface{}{vaultID.String()}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationResponse
	for rows.Next() {
		var o OperationResponse
		var vid sql.NullString
		var stateHash, prevHash []byte
		var ts time.Time
		if err := rows.Scan(
			&o.Sequence, &o.CommandType, &o.IdempotencyKey, &vid,
			&stateHash, &prevHash, &ts,
		); err != nil {
			return nil, err
		}
		if vid.Valid {
			o.VaultID = vid.String
		}
		o.StateHash = hex.EncodeToString(stateHash)
		o.PrevHash = hex.EncodeToString(prevHash)
		o.Timestamp = ts.Unix()
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

// VerifyIntegrity checks hash chain continuity over the op log.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM op_log.operations o1
		LEFT JOIN op_log.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o1.prev_hash != COALESCE(o2.state_hash, o1.prev_hash)
		ORDER BY o1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), -1) FROM op_log.operations
	`).Scan(&report.LastSequence); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVault(row rowScanner) (*VaultResponse, error) {
	var v VaultResponse
	var vaultID, productID, winner string
	if err := row.Scan(
		&vaultID, &productID, &v.Status, &v.SettlementStatus, &v.TotalAssets, &v.TotalSupply,
		&v.InDispute, &winner, &v.ReceiptTokenID, &v.AprBps, &v.TradeStartTime,
		&v.TradeExpiryTime, &v.InitialSpotPrice, &v.StrikePrice, &v.FinalSpotPrice,
		&v.YieldAmount, &v.PayoffInDepositAsset, &v.WithdrawalPending, &v.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if v.VaultID, err = uuid.Parse(vaultID); err != nil {
		return nil, fmt.Errorf("vault_id: %w", err)
	}
	if v.ProductID, err = uuid.Parse(productID); err != nil {
		return nil, fmt.Errorf("product_id: %w", err)
	}
	if winner != uuid.Nil.String() {
		v.AuctionWinner = winner
	}
	return &v, nil
}
