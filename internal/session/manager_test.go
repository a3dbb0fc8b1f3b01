package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"replaytrainer/internal/domain"
	"replaytrainer/internal/marketdata"
	"replaytrainer/internal/store"
)

func setupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "kline_raw"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "stock_list.csv"), []byte("code,name\n600000,Test Bank\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var csvBody string
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 10.0
	csvBody = "date,open,close,high,low,volume\n"
	for i := 0; i < 120; i++ {
		date := base.AddDate(0, 0, i)
		csvBody += date.Format("2006-01-02") + ",10,10.5,11,9,1000\n"
		_ = price
	}
	if err := os.WriteFile(filepath.Join(dataDir, "kline_raw", "600000.csv"), []byte(csvBody), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := marketdata.NewCSVProvider(dataDir)

	historyDir := t.TempDir()
	historyFor := func(username string) (*store.SQLiteStore, error) {
		return store.NewSQLiteStore(filepath.Join(historyDir, username+".db"), nil)
	}

	return NewManager(provider, historyFor, nil), "600000"
}

func TestStartGetAdvanceTradeEnd(t *testing.T) {
	mgr, code := setupManager(t)
	ctx := context.Background()

	snap, err := mgr.Start(ctx, StartParams{
		Username:       "alice",
		InstrumentCode: code,
		StartDate:      time.Date(2020, 1, 50, 0, 0, 0, 0, time.UTC),
		AdjustmentMode: domain.AdjustNone,
		InitialCapital: 100000,
		Settings:       domain.DefaultCommissionSettings(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if mgr.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", mgr.ActiveCount())
	}

	got, err := mgr.Get(snap.Session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Session.ID != snap.Session.ID {
		t.Errorf("Get() session id mismatch")
	}

	advanced, err := mgr.Advance(ctx, snap.Session.ID)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if advanced.BarID != snap.BarID+1 {
		t.Errorf("Advance() BarID = %d, want %d", advanced.BarID, snap.BarID+1)
	}

	rec, tradeSnap, err := mgr.Trade(ctx, snap.Session.ID, TradeParams{Action: domain.ActionBuy, Lots: 10})
	if err != nil {
		t.Fatalf("Trade() error = %v", err)
	}
	if rec.Action != domain.ActionBuy {
		t.Errorf("Trade() Action = %v, want buy", rec.Action)
	}
	if tradeSnap.Account.Position == nil {
		t.Error("Trade() snapshot should carry an open position")
	}

	report, err := mgr.End(ctx, snap.Session.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if report.TotalTrades != 1 {
		t.Errorf("report.TotalTrades = %d, want 1", report.TotalTrades)
	}
	if mgr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() after End = %d, want 0", mgr.ActiveCount())
	}

	if _, err := mgr.Get(snap.Session.ID); err != domain.ErrSessionNotFound {
		t.Errorf("Get() after End error = %v, want ErrSessionNotFound", err)
	}
}

func TestResetClearsSessionState(t *testing.T) {
	mgr, code := setupManager(t)
	ctx := context.Background()

	snap, err := mgr.Start(ctx, StartParams{
		Username:       "bob",
		InstrumentCode: code,
		StartDate:      time.Date(2020, 1, 50, 0, 0, 0, 0, time.UTC),
		AdjustmentMode: domain.AdjustNone,
		InitialCapital: 100000,
		Settings:       domain.DefaultCommissionSettings(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := mgr.Advance(ctx, snap.Session.ID); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if _, _, err := mgr.Trade(ctx, snap.Session.ID, TradeParams{Action: domain.ActionBuy, Lots: 5}); err != nil {
		t.Fatalf("Trade() error = %v", err)
	}

	reset, err := mgr.Reset(snap.Session.ID)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if reset.BarID != snap.BarID {
		t.Errorf("Reset() BarID = %d, want %d", reset.BarID, snap.BarID)
	}
	if reset.Account.Position != nil {
		t.Error("Reset() should clear open position")
	}
}
