package vault

import (
	"math/big"

	"github.com/google/uuid"
)

// OptionDirection selects which side of the strike triggers conversion.
type OptionDirection int32

const (
	// DirectionConvertOnLow: deposits are in the quote asset; a final spot
	// below the strike converts the payoff into the base asset at the strike.
	DirectionConvertOnLow OptionDirection = iota
	// DirectionConvertOnHigh: deposits are in the base asset; a final spot
	// above the strike converts the payoff into the quote asset at the strike.
	DirectionConvertOnHigh
)

func (d OptionDirection) String() string {
	switch d {
	case DirectionConvertOnLow:
		return "ConvertOnLow"
	case DirectionConvertOnHigh:
		return "ConvertOnHigh"
	default:
		return "Unknown"
	}
}

// Product is the template for a recurring dual-currency offering. It is
// created once by an administrator and persists indefinitely; vault epochs
// commit and release underlying against it.
type Product struct {
	ID   uuid.UUID
	Name string

	// Asset pair. Prices are quote-per-base, fixed-point PriceDecimals.
	BaseAsset     string
	QuoteAsset    string
	BaseDecimals  int32
	QuoteDecimals int32

	Direction OptionDirection

	TenorDays        int64
	StrikeBarrierBps int64

	// Day thresholds measured from trade start (entry) or expiry (settlement).
	FeeGraceDays          int64
	AuctionDefaultDays    int64
	SettlementDefaultDays int64

	LateFeeBps        int64
	DisputeWindowDays int64

	MinDepositAmount    *big.Int
	MinWithdrawalShares *big.Int

	// Sum of totalAssets across this product's vaults whose payoff is still
	// denominated in the deposit asset. Decremented exactly once per vault
	// when the payoff converts or the trade defaults.
	SumVaultUnderlying *big.Int

	DepositQueue *DepositQueue
}

// DepositAsset returns the asset depositors fund the vault with.
func (p *Product) DepositAsset() (symbol string, decimals int32) {
	if p.Direction == DirectionConvertOnLow {
		return p.QuoteAsset, p.QuoteDecimals
	}
	return p.BaseAsset, p.BaseDecimals
}

// CounterAsset returns the asset the payoff converts into when triggered.
func (p *Product) CounterAsset() (symbol string, decimals int32) {
	if p.Direction == DirectionConvertOnLow {
		return p.BaseAsset, p.BaseDecimals
	}
	return p.QuoteAsset, p.QuoteDecimals
}

// Vault is one deployed instance of a Product. It cycles through the full
// lifecycle once per epoch and is never destroyed.
type Vault struct {
	ID        uuid.UUID
	ProductID uuid.UUID

	Status VaultStatus

	// Total deposit-asset (or, after conversion, counter-asset) value
	// attributed to the vault. Mutated only by queue processing, the trade
	// premium, fee collection, and settlement conversion.
	TotalAssets *big.Int

	// Outstanding shares, 18-decimal fixed point.
	TotalSupply *big.Int

	ManagementFeeBps int64
	YieldFeeBps      int64

	// Oracle data-source tag used for this vault's pricing.
	DataSource string

	InDispute bool

	Epoch EpochState

	WithdrawalQueue *WithdrawalQueue

	// Optimistic concurrency stamp, bumped on every mutation.
	Version int64
}

// EpochState is the per-epoch settlement record ("DCSVault" in the product
// docs): auction result, reference prices, accrued yield, and the parallel
// settlement-status machine.
type EpochState struct {
	SettlementStatus SettlementStatus

	AuctionWinner  uuid.UUID
	ReceiptTokenID uint64 // Position-receipt token minted at trade start; 0 = none

	// Winning bid: coupon APR in basis points for the full tenor.
	AprBps int64

	TradeStartTime  int64 // Unix seconds; 0 = not set
	TradeExpiryTime int64 // TradeStartTime + tenor

	InitialSpotPrice *big.Int
	StrikePrice      *big.Int
	FinalSpotPrice   *big.Int

	// Share-mint reference ratio frozen when deposits open. Every deposit in
	// the epoch mints at this ratio, so splitting the queue into batches of
	// any size yields identical share balances.
	MintRefAssets *big.Int
	MintRefSupply *big.Int

	// Coupon accrued for the epoch, in deposit-asset units until conversion.
	YieldAmount *big.Int

	// True while the payoff is denominated in the deposit asset; flips to
	// false when the trigger fires and conversion is owed.
	PayoffInDepositAsset bool
}

// NewVault constructs a vault ready for its first epoch.
func NewVault(id, productID uuid.UUID, managementFeeBps, yieldFeeBps int64, dataSource string) *Vault {
	return &Vault{
		ID:               id,
		ProductID:        productID,
		Status:           StatusDepositsClosed,
		TotalAssets:      big.NewInt(0),
		TotalSupply:      big.NewInt(0),
		ManagementFeeBps: managementFeeBps,
		YieldFeeBps:      yieldFeeBps,
		DataSource:       dataSource,
		Epoch: EpochState{
			SettlementStatus:     SettlementNotAuctioned,
			InitialSpotPrice:     big.NewInt(0),
			StrikePrice:          big.NewInt(0),
			FinalSpotPrice:       big.NewInt(0),
			MintRefAssets:        big.NewInt(0),
			MintRefSupply:        big.NewInt(0),
			YieldAmount:          big.NewInt(0),
			PayoffInDepositAsset: true,
		},
		WithdrawalQueue: NewWithdrawalQueue(),
	}
}

// IsZombie reports the degenerate state where all value has fled the vault
// but shares remain outstanding. Deposit processing must reject it.
func (v *Vault) IsZombie() bool {
	if v.Status == StatusZombie {
		return true
	}
	return v.TotalAssets.Sign() == 0 && v.TotalSupply.Sign() > 0
}

// HasWinner reports whether an auction result is recorded for the epoch.
func (v *Vault) HasWinner() bool {
	return v.Epoch.AuctionWinner != uuid.Nil
}
