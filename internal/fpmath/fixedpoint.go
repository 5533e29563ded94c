package fpmath

import "math/big"

const (
	// BpsDenominator is the basis-points denominator.
	BpsDenominator = 10_000

	// DaysPerYear is the fee-accrual year.
	DaysPerYear = 365

	// ShareDecimals is the fixed share precision.
	ShareDecimals = 18

	// PriceDecimals is the oracle price precision, fixed per deployment.
	PriceDecimals = 8
)

var (
	bpsDenom = big.NewInt(BpsDenominator)
	ten      = big.NewInt(10)
)

// Pow10 returns 10^exp as a big.Int.
func Pow10(exp int32) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil)
}

// MulDiv computes a * b / den with a 256-bit intermediate and truncating
// division. All lifecycle arithmetic truncates: round-trips may lose dust
// but never inflate.
func MulDiv(a, b, den *big.Int) *big.Int {
	result := new(big.Int).Mul(a, b)
	return result.Quo(result, den)
}

// Rescale converts an amount between decimal precisions.
func Rescale(amount *big.Int, fromDecimals, toDecimals int32) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}
	if toDecimals > fromDecimals {
		return new(big.Int).Mul(amount, Pow10(toDecimals-fromDecimals))
	}
	return new(big.Int).Quo(amount, Pow10(fromDecimals-toDecimals))
}

// StrikePrice computes floor(spot * strikeBarrierBps / 10000).
func StrikePrice(spot *big.Int, strikeBarrierBps int64) *big.Int {
	return MulDiv(spot, big.NewInt(strikeBarrierBps), bpsDenom)
}

// SharesForDeposit converts a pending deposit into shares at the current
// share:asset ratio. With no supply or assets outstanding, shares are minted
// 1:1 rescaled from the deposit asset's decimals to the 18-decimal share
// precision; otherwise shares = totalSupply * amount / totalAssets.
func SharesForDeposit(amount, totalSupply, totalAssets *big.Int, assetDecimals int32) *big.Int {
	if totalSupply.Sign() == 0 || totalAssets.Sign() == 0 {
		return Rescale(amount, assetDecimals, ShareDecimals)
	}
	return MulDiv(totalSupply, amount, totalAssets)
}

// AssetsForShares converts redeemed shares into assets at the current ratio:
// assets = totalAssets * shares / totalSupply.
func AssetsForShares(shares, totalSupply, totalAssets *big.Int) *big.Int {
	if totalSupply.Sign() == 0 {
		return big.NewInt(0)
	}
	return MulDiv(totalAssets, shares, totalSupply)
}

// TenorYield computes the coupon owed for the full tenor:
// notional * aprBps * tenorDays / (365 * 10000).
func TenorYield(notional *big.Int, aprBps, tenorDays int64) *big.Int {
	numerator := new(big.Int).Mul(notional, big.NewInt(aprBps))
	numerator.Mul(numerator, big.NewInt(tenorDays))
	denominator := big.NewInt(DaysPerYear * BpsDenominator)
	return numerator.Quo(numerator, denominator)
}

// LateFee computes the penalty on yield for entering the trade late:
// yield * lateFeeBps * lateDays / 10000. lateDays is days past the grace
// period, capped at the auction-default threshold by the caller.
func LateFee(yield *big.Int, lateFeeBps, lateDays int64) *big.Int {
	if lateDays <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(yield, big.NewInt(lateFeeBps))
	fee.Mul(fee, big.NewInt(lateDays))
	return fee.Quo(fee, bpsDenom)
}

// ManagementFee computes notional * tenorSeconds * managementFeeBps over a
// 365-day year in seconds.
func ManagementFee(notionalExclYield *big.Int, tenorDays, managementFeeBps int64) *big.Int {
	tenorSeconds := tenorDays * 86_400
	numerator := new(big.Int).Mul(notionalExclYield, big.NewInt(tenorSeconds))
	numerator.Mul(numerator, big.NewInt(managementFeeBps))
	denominator := big.NewInt(int64(DaysPerYear) * 86_400 * BpsDenominator)
	return numerator.Quo(numerator, denominator)
}

// YieldFee computes yield * yieldFeeBps / 10000.
func YieldFee(yield *big.Int, yieldFeeBps int64) *big.Int {
	return MulDiv(yield, big.NewInt(yieldFeeBps), bpsDenom)
}

// QuoteToBase converts a quote-asset amount into base-asset units at a
// quote-per-base price:
// base = quote * 10^priceDec * 10^baseDec / (price * 10^quoteDec).
func QuoteToBase(quoteAmount, price *big.Int, quoteDecimals, baseDecimals int32) *big.Int {
	numerator := new(big.Int).Mul(quoteAmount, Pow10(PriceDecimals))
	numerator.Mul(numerator, Pow10(baseDecimals))
	denominator := new(big.Int).Mul(price, Pow10(quoteDecimals))
	return numerator.Quo(numerator, denominator)
}

// BaseToQuote converts a base-asset amount into quote-asset units at a
// quote-per-base price:
// quote = base * price * 10^quoteDec / (10^priceDec * 10^baseDec).
func BaseToQuote(baseAmount, price *big.Int, quoteDecimals, baseDecimals int32) *big.Int {
	numerator := new(big.Int).Mul(baseAmount, price)
	numerator.Mul(numerator, Pow10(quoteDecimals))
	denominator := new(big.Int).Mul(Pow10(PriceDecimals), Pow10(baseDecimals))
	return numerator.Quo(numerator, denominator)
}
