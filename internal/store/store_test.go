package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"replaytrainer/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "training_history.db")
	s, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) domain.Session {
	return domain.Session{
		ID:             id,
		Username:       "alice",
		InstrumentCode: "600000",
		InstrumentName: "Test Bank",
		StartDate:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		AdjustmentMode: domain.AdjustDynamicForward,
		InitialCapital: 100000,
		Status:         domain.SessionActive,
		CreatedAt:      time.Now(),
	}
}

func TestStartAndFetchSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := testSession("alice_20200101_120000")

	if err := s.StartSession(ctx, sess); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	history, err := s.TrainingHistory(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("TrainingHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != sess.ID {
		t.Fatalf("TrainingHistory() = %+v", history)
	}
}

func TestCompleteSessionZeroTradesNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := testSession("alice_20200101_120001")
	if err := s.StartSession(ctx, sess); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	report := domain.SessionReport{InitialCapital: 100000, FinalAssets: 100000, TotalTrades: 0}
	if err := s.CompleteSession(ctx, sess.ID, report); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}

	stats, err := s.Statistics(ctx, "alice")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalSessions != 0 || stats.CompletedSessions != 0 {
		t.Errorf("Statistics() after zero-trade completion = %+v, want no movement", stats)
	}
}

func TestCompleteSessionRollsStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess1 := testSession("alice_20200101_120002")
	if err := s.StartSession(ctx, sess1); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	report1 := domain.SessionReport{
		InitialCapital: 100000, FinalAssets: 110000, TotalReturnPct: 10,
		TotalTrades: 4, TradeWinRatePct: 100, SessionWinRatePct: 100, TotalCommission: 20,
	}
	if err := s.CompleteSession(ctx, sess1.ID, report1); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}

	stats, err := s.Statistics(ctx, "alice")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalSessions != 1 || stats.CompletedSessions != 1 {
		t.Fatalf("Statistics() after first session = %+v", stats)
	}
	if stats.BestReturnPct != 10 || stats.WorstReturnPct != 10 {
		t.Errorf("Statistics() best/worst = %v/%v, want 10/10", stats.BestReturnPct, stats.WorstReturnPct)
	}

	sess2 := testSession("alice_20200102_120000")
	if err := s.StartSession(ctx, sess2); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	report2 := domain.SessionReport{
		InitialCapital: 100000, FinalAssets: 90000, TotalReturnPct: -10,
		TotalTrades: 6, TradeWinRatePct: 50, SessionWinRatePct: 0, TotalCommission: 30,
	}
	if err := s.CompleteSession(ctx, sess2.ID, report2); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}

	stats, err = s.Statistics(ctx, "alice")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalSessions != 2 || stats.CompletedSessions != 2 {
		t.Fatalf("Statistics() after second session = %+v", stats)
	}
	if stats.BestReturnPct != 10 || stats.WorstReturnPct != -10 {
		t.Errorf("Statistics() best/worst = %v/%v, want 10/-10", stats.BestReturnPct, stats.WorstReturnPct)
	}
	// trade-weighted: (100*4 + 50*6) / 10 = 70
	wantWinRate := (100.0*4 + 50.0*6) / 10.0
	if stats.AvgTradeWinRatePct != wantWinRate {
		t.Errorf("AvgTradeWinRatePct = %v, want %v", stats.AvgTradeWinRatePct, wantWinRate)
	}
	if stats.SuccessRatePct() != 100 {
		t.Errorf("SuccessRatePct() = %v, want 100", stats.SuccessRatePct())
	}
}

func TestSessionDetailRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := testSession("alice_20200101_120003")
	if err := s.StartSession(ctx, sess); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	snap := BarSnapshot{
		BarID: 1,
		Date:  time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		Bar:   domain.Bar{Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		Account: domain.AccountSnapshot{
			TotalAssets: 100000, AvailableCash: 100000,
		},
	}
	if err := s.RecordBar(ctx, sess.ID, snap); err != nil {
		t.Fatalf("RecordBar() error = %v", err)
	}

	trade := domain.TradeRecord{
		BarID: 1, Date: snap.Date, Action: domain.ActionBuy, Quantity: 1000, Price: 10,
		Amount: 10000, Commission: 5, NetAmount: 10005,
	}
	if err := s.RecordTrade(ctx, sess.ID, trade); err != nil {
		t.Fatalf("RecordTrade() error = %v", err)
	}

	detail, err := s.SessionDetail(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionDetail() error = %v", err)
	}
	if len(detail.Bars) != 1 || len(detail.Trades) != 1 {
		t.Fatalf("SessionDetail() = %+v", detail)
	}
	if detail.Trades[0].Quantity != 1000 {
		t.Errorf("Trades[0].Quantity = %d, want 1000", detail.Trades[0].Quantity)
	}

	if _, err := s.ExportSessionJSON(ctx, sess.ID); err != nil {
		t.Errorf("ExportSessionJSON() error = %v", err)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := testSession("alice_20200101_120004")
	if err := s.StartSession(ctx, sess); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := s.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.SessionDetail(ctx, sess.ID); err != domain.ErrSessionNotFound {
		t.Errorf("SessionDetail() after delete error = %v, want ErrSessionNotFound", err)
	}
}
