package fpmath_test

import (
	"math/big"
	"testing"

	"DCSLedger/internal/fpmath"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad literal " + s)
	}
	return v
}

func TestMulDiv_Truncates(t *testing.T) {
	// 7 * 3 / 2 = 10.5 -> 10
	got := fpmath.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("MulDiv = %s, want 10", got)
	}

	// Wide intermediate: (2^80) * (2^80) / 2^80 = 2^80.
	wide := new(big.Int).Lsh(big.NewInt(1), 80)
	got = fpmath.MulDiv(wide, wide, wide)
	if got.Cmp(wide) != 0 {
		t.Errorf("MulDiv wide = %s, want %s", got, wide)
	}
}

func TestRescale(t *testing.T) {
	// 6 -> 18 decimals widens.
	got := fpmath.Rescale(big.NewInt(1_500_000), 6, 18)
	if got.Cmp(bi("1500000000000000000")) != 0 {
		t.Errorf("widen = %s", got)
	}
	// 18 -> 6 narrows, truncating.
	got = fpmath.Rescale(bi("1500000999999999999"), 18, 6)
	if got.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Errorf("narrow = %s, want 1500000", got)
	}
	// Same precision is a copy.
	in := big.NewInt(42)
	got = fpmath.Rescale(in, 8, 8)
	if got.Cmp(in) != 0 || got == in {
		t.Error("same-precision rescale should return an equal copy")
	}
}

func TestStrikePrice(t *testing.T) {
	// 60000.00000000 * 9500bps = 57000.00000000
	got := fpmath.StrikePrice(bi("6000000000000"), 9_500)
	if got.Cmp(bi("5700000000000")) != 0 {
		t.Errorf("strike = %s, want 5700000000000", got)
	}
}

func TestSharesForDeposit(t *testing.T) {
	// Empty vault: 1:1 rescaled to 18-decimal shares.
	got := fpmath.SharesForDeposit(big.NewInt(100_000_000), big.NewInt(0), big.NewInt(0), 6)
	if got.Cmp(bi("100000000000000000000")) != 0 {
		t.Errorf("bootstrap mint = %s", got)
	}

	// Assets above supply value: mint at the discounted ratio.
	supply := bi("100000000000000000000") // 100 shares
	assets := big.NewInt(110_000_000)     // 110 units backing them
	got = fpmath.SharesForDeposit(big.NewInt(11_000_000), supply, assets, 6)
	if got.Cmp(bi("10000000000000000000")) != 0 {
		t.Errorf("ratio mint = %s, want 10 shares", got)
	}
}

func TestAssetsForShares(t *testing.T) {
	supply := bi("100000000000000000000")
	assets := big.NewInt(110_000_000)

	// Half the supply redeems half the assets.
	got := fpmath.AssetsForShares(bi("50000000000000000000"), supply, assets)
	if got.Cmp(big.NewInt(55_000_000)) != 0 {
		t.Errorf("redeem = %s, want 55000000", got)
	}

	if got := fpmath.AssetsForShares(big.NewInt(1), big.NewInt(0), assets); got.Sign() != 0 {
		t.Errorf("zero supply redeem = %s, want 0", got)
	}
}

func TestRedeemNeverInflates(t *testing.T) {
	supply := bi("333333333333333333333")
	assets := big.NewInt(1_000_000_007)
	shares := bi("111111111111111111110")

	out := fpmath.AssetsForShares(shares, supply, assets)
	back := fpmath.SharesForDeposit(out, supply, assets, 6)
	if back.Cmp(shares) > 0 {
		t.Errorf("round trip inflated: %s shares in, %s out", shares, back)
	}
}

func TestTenorYield(t *testing.T) {
	// 100,000 USDC at 10% APR over 7 days.
	got := fpmath.TenorYield(big.NewInt(100_000_000_000), 1_000, 7)
	if got.Cmp(big.NewInt(191_780_821)) != 0 {
		t.Errorf("yield = %s, want 191780821", got)
	}
}

func TestLateFee(t *testing.T) {
	yield := big.NewInt(191_780_821)
	if got := fpmath.LateFee(yield, 100, 0); got.Sign() != 0 {
		t.Errorf("on-time fee = %s, want 0", got)
	}
	if got := fpmath.LateFee(yield, 100, 1); got.Cmp(big.NewInt(1_917_808)) != 0 {
		t.Errorf("one-day fee = %s, want 1917808", got)
	}
	if got := fpmath.LateFee(yield, 100, 3); got.Cmp(big.NewInt(5_753_424)) != 0 {
		t.Errorf("three-day fee = %s, want 5753424", got)
	}
}

func TestManagementFee(t *testing.T) {
	// 100,000 USDC at 2% over 7 of 365 days.
	got := fpmath.ManagementFee(big.NewInt(100_000_000_000), 7, 200)
	if got.Cmp(big.NewInt(38_356_164)) != 0 {
		t.Errorf("management fee = %s, want 38356164", got)
	}
}

func TestYieldFee(t *testing.T) {
	got := fpmath.YieldFee(big.NewInt(191_780_821), 1_000)
	if got.Cmp(big.NewInt(19_178_082)) != 0 {
		t.Errorf("yield fee = %s, want 19178082", got)
	}
}

func TestQuoteToBase(t *testing.T) {
	// 100,000 USDC (6 dec) at a 0.95 strike into 8-dec base:
	// 1e11 * 1e8 * 1e8 / (95e6 * 1e6) = 10_526_315_789_473.
	got := fpmath.QuoteToBase(big.NewInt(100_000_000_000), big.NewInt(95_000_000), 6, 8)
	if got.Cmp(bi("10526315789473")) != 0 {
		t.Errorf("converted = %s, want 10526315789473", got)
	}
}

func TestBaseToQuote(t *testing.T) {
	// 1 wBTC at 60,000 quote per base into 6-dec quote.
	got := fpmath.BaseToQuote(big.NewInt(100_000_000), bi("6000000000000"), 6, 8)
	if got.Cmp(big.NewInt(60_000_000_000)) != 0 {
		t.Errorf("converted = %s, want 60000000000", got)
	}
}

func TestConversionRoundTripLosesOnlyDust(t *testing.T) {
	price := big.NewInt(95_000_000)
	in := big.NewInt(100_000_000_007)

	base := fpmath.QuoteToBase(in, price, 6, 8)
	back := fpmath.BaseToQuote(base, price, 6, 8)
	if back.Cmp(in) > 0 {
		t.Errorf("round trip inflated: %s in, %s back", in, back)
	}
	diff := new(big.Int).Sub(in, back)
	if diff.Cmp(big.NewInt(10)) > 0 {
		t.Errorf("round trip lost %s, more than dust", diff)
	}
}
