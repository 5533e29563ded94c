package engine

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"DCSLedger/internal/auth"
	"DCSLedger/internal/command"
	"DCSLedger/internal/gateway"
	"DCSLedger/internal/observability"
	"DCSLedger/internal/pricing"
	"DCSLedger/internal/receipt"
	"DCSLedger/internal/store"
	"DCSLedger/internal/vault"

	"github.com/google/uuid"
)

// Engine is the single-threaded lifecycle processor. Every vault mutation
// enters as a typed command and either applies in full or is rejected with
// a named reason; partial effects are never observable.
type Engine struct {
	sequence    int64
	hasher      *StateHasher
	store       *store.Store
	gateway     gateway.Gateway
	journal     JournalSource
	resolver    *pricing.Resolver
	minter      receipt.Minter
	authority   auth.Authority
	router      RedepositRouter
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	// FeeReceiver collects late fees and epoch fees.
	feeReceiver uuid.UUID

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// JournalSource drains the transfer rows accumulated by the gateway during
// one command, so they can travel with the op-log record.
type JournalSource interface {
	DrainJournal() []gateway.Transfer
}

// RedepositRouter forwards a processed withdrawal into a follow-on
// product instead of paying it out.
type RedepositRouter interface {
	Redeposit(productID uuid.UUID, asset string, amount *big.Int, receiver uuid.UUID) error
}

// Output is what the engine emits per applied command. VaultState and
// ProductState are JSON copies of the affected records, serialized on the
// engine goroutine so downstream workers never touch live state.
type Output struct {
	Envelope     *command.Envelope
	Transfers    []gateway.Transfer
	VaultState   []byte
	ProductState []byte
}

// Config wires the engine's collaborators.
type Config struct {
	StartSequence  int64
	Store          *store.Store
	Gateway        gateway.Gateway
	Journal        JournalSource
	Resolver       *pricing.Resolver
	Minter         receipt.Minter
	Authority      auth.Authority
	Router         RedepositRouter
	FeeReceiver    uuid.UUID
	DBChecker      DBIdempotencyChecker
	LRUCapacity    int
	Metrics        *observability.Metrics
	PersistChan    chan<- Output
	ProjectionChan chan<- Output
}

func New(cfg Config) *Engine {
	capacity := cfg.LRUCapacity
	if capacity <= 0 {
		capacity = 100_000
	}

	e := &Engine{
		sequence:       cfg.StartSequence,
		hasher:         NewStateHasher(),
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		journal:        cfg.Journal,
		resolver:       cfg.Resolver,
		minter:         cfg.Minter,
		authority:      cfg.Authority,
		router:         cfg.Router,
		feeReceiver:    cfg.FeeReceiver,
		idempotency:    NewIdempotencyChecker(capacity, cfg.DBChecker),
		metrics:        cfg.Metrics,
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
	}
	if e.router == nil {
		e.router = &storeRouter{store: cfg.Store}
	}
	return e
}

// Apply is the main processing pipeline.
func (e *Engine) Apply(cmd command.Command) error {
	start := time.Now()
	cmdType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	if e.idempotency.IsDuplicate(cmdType, idempotencyKey) {
		if e.metrics != nil {
			e.metrics.CommandsRejected.WithLabelValues(cmdType, "duplicate").Inc()
		}
		return nil
	}

	if err := e.dispatch(cmd); err != nil {
		if e.metrics != nil {
			e.metrics.CommandsRejected.WithLabelValues(cmdType, reasonLabel(err)).Inc()
		}
		return err
	}

	stateDigest := e.computeStateDigest(cmd.VaultID())
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	payload, err := json.Marshal(cmd)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal applied command %s: %v", cmdType, err))
	}

	envelope := &command.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		VaultID:        cmd.VaultID(),
		Timestamp:      cmd.Timestamp(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	var transfers []gateway.Transfer
	if e.journal != nil {
		transfers = e.journal.DrainJournal()
		for i := range transfers {
			transfers[i].OpRef = idempotencyKey
			transfers[i].Timestamp = cmd.Timestamp()
		}
	}

	output := Output{Envelope: envelope, Transfers: transfers}
	if id := cmd.VaultID(); id != nil {
		if v, ok := e.store.Vault(*id); ok {
			output.VaultState, _ = json.Marshal(v)
			if p, ok := e.store.Product(v.ProductID); ok {
				output.ProductState, _ = json.Marshal(p)
			}
		}
	} else if p := e.commandProduct(cmd); p != nil {
		output.ProductState, _ = json.Marshal(p)
	}
	e.sequence++

	// Persistence is a blocking send: the engine stalls rather than lose an
	// op-log record. Projections are best-effort and rebuild from the log.
	if e.persistChan != nil {
		e.persistChan <- output
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- output:
		default:
		}
	}

	e.idempotency.MarkProcessed(cmdType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.CommandsApplied.WithLabelValues(cmdType).Inc()
		e.metrics.CommandDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}

	return nil
}

func (e *Engine) dispatch(cmd command.Command) error {
	switch c := cmd.(type) {
	case *command.CreateProduct:
		return e.handleCreateProduct(c)
	case *command.CreateVault:
		return e.handleCreateVault(c)
	case *command.QueueDeposit:
		return e.handleQueueDeposit(c)
	case *command.OpenDeposits:
		return e.handleOpenDeposits(c)
	case *command.ProcessDepositQueue:
		return e.handleProcessDepositQueue(c)
	case *command.EndAuction:
		return e.handleEndAuction(c)
	case *command.StartTrade:
		return e.handleStartTrade(c)
	case *command.CheckTradeExpiry:
		return e.handleCheckTradeExpiry(c)
	case *command.CheckSettlementDefault:
		return e.handleCheckSettlementDefault(c)
	case *command.SettleVault:
		return e.handleSettleVault(c)
	case *command.CollectFees:
		return e.handleCollectFees(c)
	case *command.QueueWithdrawal:
		return e.handleQueueWithdrawal(c)
	case *command.ProcessWithdrawalQueue:
		return e.handleProcessWithdrawalQueue(c)
	case *command.RolloverVault:
		return e.handleRolloverVault(c)
	case *command.DisputeVault:
		return e.handleDisputeVault(c)
	case *command.ProcessDispute:
		return e.handleProcessDispute(c)
	case *command.OverridePrice:
		return e.handleOverridePrice(c)
	case *command.SetVaultStatus:
		return e.handleSetVaultStatus(c)
	case *command.SetSettlementStatus:
		return e.handleSetSettlementStatus(c)
	case *command.SetPayoffDenomination:
		return e.handleSetPayoffDenomination(c)
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
}

// commandProduct resolves the product touched by a product-scoped command.
func (e *Engine) commandProduct(cmd command.Command) *vault.Product {
	var productID uuid.UUID
	switch c := cmd.(type) {
	case *command.CreateProduct:
		productID = c.ProductID
	case *command.QueueDeposit:
		productID = c.ProductID
	default:
		return nil
	}
	if p, ok := e.store.Product(productID); ok {
		return p
	}
	return nil
}

// computeStateDigest builds canonical bytes for the state hash from the
// affected vault (or, for product-level commands, every vault — product
// commands are rare and the cost is irrelevant).
func (e *Engine) computeStateDigest(vaultID *uuid.UUID) []byte {
	if vaultID != nil {
		if v, ok := e.store.Vault(*vaultID); ok {
			return v.CanonicalBytes()
		}
		return nil
	}

	digest := make([]byte, 0, 256)
	for _, v := range sortedVaults(e.store.Vaults()) {
		digest = append(digest, v.CanonicalBytes()...)
	}
	return digest
}

// vaultGuard resolves a vault or fails with the taxonomy error.
func (e *Engine) vaultGuard(id uuid.UUID) (*vault.Vault, *vault.Product, error) {
	v, ok := e.store.Vault(id)
	if !ok {
		return nil, nil, fmt.Errorf("vault %s: %w", id, vault.ErrInvalidVault)
	}
	p, ok := e.store.Product(v.ProductID)
	if !ok {
		return nil, nil, fmt.Errorf("vault %s product %s: %w", id, v.ProductID, vault.ErrInvalidProduct)
	}
	return v, p, nil
}

// GetSequence returns the next sequence number to assign.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current state-hash chain tip.
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// WarmLRU loads recent idempotency keys on warm restart.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// IdempotencyKeys returns the cached dedup keys, for snapshot capture.
func (e *Engine) IdempotencyKeys() []string {
	return e.idempotency.lru.GetAllKeys()
}

// AttachDBChecker wires the op-log dedup tier. Kept detached during replay:
// the op log holds the very commands being re-applied, and the DB lookup
// would reject them all.
func (e *Engine) AttachDBChecker(db DBIdempotencyChecker) {
	e.idempotency.dbChecker = db
}

// RestoreSequence rewinds the engine to continue after a snapshot.
func (e *Engine) RestoreSequence(sequence int64, stateHash [32]byte) {
	e.sequence = sequence + 1
	e.hasher.SetPrevHash(stateHash)
}
