package ingestion_test

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"DCSLedger/internal/command"
	"DCSLedger/internal/ingestion"
	"DCSLedger/internal/vault"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseQueueDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"ts":         int64(1700000000),
		"product_id": "660e8400-e29b-41d4-a716-446655440001",
		"depositor":  "770e8400-e29b-41d4-a716-446655440002",
		"amount":     "100000000000",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "QueueDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	qd, ok := cmd.(*command.QueueDeposit)
	if !ok {
		t.Fatalf("expected *command.QueueDeposit, got %T", cmd)
	}

	if qd.ProductID.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("product_id: got %s", qd.ProductID)
	}
	if qd.Amount.Cmp(big.NewInt(100_000_000_000)) != 0 {
		t.Errorf("amount: got %s, want 100000000000", qd.Amount)
	}
	if qd.Ts != 1700000000 {
		t.Errorf("ts: got %d, want 1700000000", qd.Ts)
	}
}

func TestParseQueueDepositBadAmount(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"ts":         int64(1700000000),
		"product_id": "660e8400-e29b-41d4-a716-446655440001",
		"depositor":  "770e8400-e29b-41d4-a716-446655440002",
		"amount":     "1.5e9",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawCommand(raw, "QueueDeposit"); err == nil {
		t.Fatal("expected error for non-integer amount")
	}
}

func TestParseCreateProduct(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":              "550e8400-e29b-41d4-a716-446655440000",
		"caller":                  "660e8400-e29b-41d4-a716-446655440001",
		"ts":                      int64(1700000000),
		"product_id":              "770e8400-e29b-41d4-a716-446655440002",
		"name":                    "wBTC-USDC-7D",
		"base_asset":              "wBTC",
		"quote_asset":             "USDC",
		"base_decimals":           int32(8),
		"quote_decimals":          int32(6),
		"direction":               "convert_on_low",
		"tenor_days":              int64(7),
		"strike_barrier_bps":      int64(9500),
		"fee_grace_days":          int64(1),
		"auction_default_days":    int64(3),
		"settlement_default_days": int64(2),
		"late_fee_bps":            int64(50),
		"dispute_window_days":     int64(1),
		"min_deposit_amount":      "1000000",
		"min_withdrawal_shares":   "1000000000000000000",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "CreateProduct")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := cmd.(*command.CreateProduct)
	if !ok {
		t.Fatalf("expected *command.CreateProduct, got %T", cmd)
	}

	if cp.Direction != vault.DirectionConvertOnLow {
		t.Errorf("direction: got %v, want DirectionConvertOnLow", cp.Direction)
	}
	if cp.TenorDays != 7 {
		t.Errorf("tenor_days: got %d, want 7", cp.TenorDays)
	}
	if cp.StrikeBarrierBps != 9500 {
		t.Errorf("strike_barrier_bps: got %d, want 9500", cp.StrikeBarrierBps)
	}
	if cp.MinDepositAmount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("min_deposit_amount: got %s", cp.MinDepositAmount)
	}
}

func TestParseCreateProductBadDirection(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":            "550e8400-e29b-41d4-a716-446655440000",
		"caller":                "660e8400-e29b-41d4-a716-446655440001",
		"ts":                    int64(1700000000),
		"product_id":            "770e8400-e29b-41d4-a716-446655440002",
		"direction":             "sideways",
		"min_deposit_amount":    "1",
		"min_withdrawal_shares": "1",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawCommand(raw, "CreateProduct"); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestParseEndAuction(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":  "550e8400-e29b-41d4-a716-446655440000",
		"caller":      "660e8400-e29b-41d4-a716-446655440001",
		"ts":          int64(1700000000),
		"vault_id":    "770e8400-e29b-41d4-a716-446655440002",
		"winner":      "880e8400-e29b-41d4-a716-446655440003",
		"trade_start": int64(1700086400),
		"apr_bps":     int64(1200),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "EndAuction")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ea, ok := cmd.(*command.EndAuction)
	if !ok {
		t.Fatalf("expected *command.EndAuction, got %T", cmd)
	}
	if ea.AprBps != 1200 {
		t.Errorf("apr_bps: got %d, want 1200", ea.AprBps)
	}
	if ea.TradeStart != 1700086400 {
		t.Errorf("trade_start: got %d", ea.TradeStart)
	}
}

func TestParseQueueWithdrawalRedeposit(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":      "550e8400-e29b-41d4-a716-446655440000",
		"ts":              int64(1700000000),
		"vault_id":        "660e8400-e29b-41d4-a716-446655440001",
		"account":         "770e8400-e29b-41d4-a716-446655440002",
		"shares":          "5000000000000000000",
		"next_product_id": "880e8400-e29b-41d4-a716-446655440003",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "QueueWithdrawal")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	qw, ok := cmd.(*command.QueueWithdrawal)
	if !ok {
		t.Fatalf("expected *command.QueueWithdrawal, got %T", cmd)
	}
	if qw.NextProductID == nil {
		t.Fatal("next_product_id not parsed")
	}
	if qw.NextProductID.String() != "880e8400-e29b-41d4-a716-446655440003" {
		t.Errorf("next_product_id: got %s", qw.NextProductID)
	}
	want, _ := new(big.Int).SetString("5000000000000000000", 10)
	if qw.Shares.Cmp(want) != 0 {
		t.Errorf("shares: got %s", qw.Shares)
	}
}

func TestParseProcessDisputePlainClear(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":     "660e8400-e29b-41d4-a716-446655440001",
		"ts":         int64(1700000000),
		"vault_id":   "770e8400-e29b-41d4-a716-446655440002",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "ProcessDispute")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pd := cmd.(*command.ProcessDispute)
	if pd.NewPrice != nil {
		t.Errorf("new_price: got %s, want nil", pd.NewPrice)
	}
}

func TestParseVaultActionShapes(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":     "660e8400-e29b-41d4-a716-446655440001",
		"ts":         int64(1700000000),
		"vault_id":   "770e8400-e29b-41d4-a716-446655440002",
	}

	for _, typ := range []string{
		"OpenDeposits", "StartTrade", "CheckTradeExpiry", "CheckSettlementDefault",
		"SettleVault", "CollectFees", "RolloverVault", "DisputeVault",
	} {
		raw := rawFromJSON(t, payload)
		cmd, err := ingestion.ParseRawCommand(raw, typ)
		if err != nil {
			t.Fatalf("%s: parse failed: %v", typ, err)
		}
		if got := cmd.CommandType().String(); got != typ {
			t.Errorf("%s: command type mismatch: got %s", typ, got)
		}
		if cmd.VaultID() == nil || cmd.VaultID().String() != "770e8400-e29b-41d4-a716-446655440002" {
			t.Errorf("%s: vault_id not carried", typ)
		}
	}
}

func TestParseUnknownType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawCommand(raw, "CancelTrade"); err == nil {
		t.Fatal("expected error for unknown command type")
	}
}

func TestCommandTypeForSubject(t *testing.T) {
	subjects := ingestion.DefaultSubjects()

	cases := map[string]string{
		"dcs.deposits.queue.770e8400": "QueueDeposit",
		"dcs.trades.auction.end.v1":   "EndAuction",
		"dcs.withdrawals.rollover.v1": "RolloverVault",
		"dcs.disputes.process.v1":     "ProcessDispute",
		"orders.matched.btc":          "",
	}
	for subject, want := range cases {
		if got := ingestion.CommandTypeForSubject(subject, subjects); got != want {
			t.Errorf("%s: got %q, want %q", subject, got, want)
		}
	}
}
