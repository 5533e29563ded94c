package query

import "github.com/google/uuid"

// VaultResponse represents a vault row for API queries.
type VaultResponse struct {
	VaultID              uuid.UUID `json:"vault_id"`
	ProductID            uuid.UUID `json:"product_id"`
	Status               string    `json:"status"`
	SettlementStatus     string    `json:"settlement_status"`
	TotalAssets          string    `json:"total_assets"`
	TotalSupply          string    `json:"total_supply"`
	InDispute            bool      `json:"in_dispute"`
	AuctionWinner        string    `json:"auction_winner,omitempty"`
	ReceiptTokenID       int64     `json:"receipt_token_id"`
	AprBps               int64     `json:"apr_bps"`
	TradeStartTime       int64     `json:"trade_start_time"`
	TradeExpiryTime      int64     `json:"trade_expiry_time"`
	InitialSpotPrice     string    `json:"initial_spot_price"`
	StrikePrice          string    `json:"strike_price"`
	FinalSpotPrice       string    `json:"final_spot_price"`
	YieldAmount          string    `json:"yield_amount"`
	PayoffInDepositAsset bool      `json:"payoff_in_deposit_asset"`
	WithdrawalPending    string    `json:"withdrawal_pending_shares"`
	Version              int64     `json:"version"`
	AsOfSequence         int64     `json:"as_of_sequence"`
}

// ProductResponse represents a product row for API queries.
type ProductResponse struct {
	ProductID           uuid.UUID `json:"product_id"`
	Name                string    `json:"name"`
	BaseAsset           string    `json:"base_asset"`
	QuoteAsset          string    `json:"quote_asset"`
	Direction           string    `json:"direction"`
	TenorDays           int64     `json:"tenor_days"`
	StrikeBarrierBps    int64     `json:"strike_barrier_bps"`
	DepositAsset        string    `json:"deposit_asset"`
	MinDepositAmount    string    `json:"min_deposit_amount"`
	SumVaultUnderlying  string    `json:"sum_vault_underlying"`
	DepositQueuePending string    `json:"deposit_queue_pending"`
	AsOfSequence        int64     `json:"as_of_sequence"`
}

// TransferResponse represents a value movement for API queries.
type TransferResponse struct {
	TransferID   uuid.UUID `json:"transfer_id"`
	OpRef        string    `json:"op_ref"`
	Sequence     int64     `json:"sequence"`
	Asset        string    `json:"asset"`
	Account      uuid.UUID `json:"account"`
	Amount       string    `json:"amount"`
	Direction    string    `json:"direction"`
	Timestamp    int64     `json:"timestamp"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// OperationResponse represents an op log entry for API queries.
type OperationResponse struct {
	Sequence       int64  `json:"sequence"`
	CommandType    string `json:"command_type"`
	IdempotencyKey string `json:"idempotency_key"`
	VaultID        string `json:"vault_id,omitempty"`
	StateHash      string `json:"state_hash"`
	PrevHash       string `json:"prev_hash"`
	Timestamp      int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	LastSequence    int64   `json:"last_sequence"`
}
