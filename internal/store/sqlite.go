package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"replaytrainer/internal/domain"
	"replaytrainer/internal/util"
)

const dateLayout = "2006-01-02"
const timeLayout = time.RFC3339

// Compile-time interface checks.
var _ SessionStore = (*SQLiteStore)(nil)
var _ BarSnapshotStore = (*SQLiteStore)(nil)
var _ TradeRecordStore = (*SQLiteStore)(nil)
var _ PositionLotStore = (*SQLiteStore)(nil)
var _ UserStatisticsStore = (*SQLiteStore)(nil)

// SQLiteStore persists one user's training history in a single SQLite
// file. Schema creation runs once per Open call (lazy with respect to the
// rest of the process: nothing is created until a user's store is
// actually opened).
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at
// dbPath and ensures its schema exists.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", dbPath, err)
	}
	// Schema creation can transiently collide with another process holding
	// the same file locked (e.g. userstore.Create racing a session history
	// open); retry a handful of times before giving up.
	initErr := util.Retry(context.Background(), 3, 20*time.Millisecond, func() error {
		_, err := db.Exec(schemaDDL)
		return err
	})
	if initErr != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing schema at %s: %w", dbPath, initErr)
	}
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteStore{db: db, log: log}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartSession(ctx context.Context, sess domain.Session) error {
	settings, err := json.Marshal(domain.DefaultCommissionSettings())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_sessions
			(session_id, username, stock_code, stock_name, start_date, end_date, mode,
			 initial_capital, status, commission_settings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
		sess.ID, sess.Username, sess.InstrumentCode, sess.InstrumentName,
		sess.StartDate.Format(dateLayout), sess.EndDate.Format(dateLayout), string(sess.AdjustmentMode),
		sess.InitialCapital, string(settings), sess.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: starting session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordBar(ctx context.Context, sessionID string, snap BarSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bar_history
			(session_id, bar_id, date, open_price, high_price, low_price, close_price, volume,
			 total_assets, available_cash, position_value, floating_pnl, total_shares, average_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, snap.BarID, snap.Date.Format(dateLayout),
		snap.Bar.Open, snap.Bar.High, snap.Bar.Low, snap.Bar.Close, snap.Bar.Volume,
		snap.Account.TotalAssets, snap.Account.AvailableCash, snap.Account.PositionValue, snap.Account.FloatingPnL,
		positionShares(snap.Account), positionAvgCost(snap.Account), time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: recording bar for session %s: %w", sessionID, err)
	}
	return nil
}

func positionShares(a domain.AccountSnapshot) int64 {
	if a.Position == nil {
		return 0
	}
	return a.Position.TotalShares
}

func positionAvgCost(a domain.AccountSnapshot) float64 {
	if a.Position == nil {
		return 0
	}
	return a.Position.AverageCost
}

func (s *SQLiteStore) RecordTrade(ctx context.Context, sessionID string, rec domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history
			(session_id, bar_id, trade_date, action, quantity, price, amount, commission, stamp_tax,
			 net_amount, total_assets_before, total_assets_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.BarID, rec.Date.Format(dateLayout), string(rec.Action), rec.Quantity, rec.Price,
		rec.Amount, rec.Commission, rec.StampTax, rec.NetAmount, rec.TotalAssetsBefore, rec.TotalAssetsAfter,
		time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: recording trade for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) SyncLots(ctx context.Context, sessionID string, lots []domain.PositionLot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM position_lots WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	now := time.Now().Format(timeLayout)
	for _, lot := range lots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO position_lots (session_id, buy_bar_id, buy_date, available_date, quantity, net_cost, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, lot.BuyBarID, lot.BuyDate.Format(dateLayout), lot.AvailableDate.Format(dateLayout),
			lot.Quantity, lot.NetCost, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CompleteSession marks a session completed and rolls its results into
// user_statistics, unless the session had zero trades, in which case this
// is a documented no-op: completion without statistics movement.
func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, report domain.SessionReport) error {
	if report.TotalTrades == 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE training_sessions SET status='completed', completed_at=?, final_capital=?, total_return=0
			WHERE session_id = ?`, time.Now().Format(timeLayout), report.InitialCapital, sessionID)
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var username string
	if err := tx.QueryRowContext(ctx, `SELECT username FROM training_sessions WHERE session_id = ?`, sessionID).Scan(&username); err != nil {
		return fmt.Errorf("store: looking up session %s: %w", sessionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE training_sessions
		SET status='completed', completed_at=?, final_capital=?, total_return=?,
		    total_trades=?, trade_win_rate=?, session_win_rate=?, total_commission=?
		WHERE session_id = ?`,
		time.Now().Format(timeLayout), report.FinalAssets, report.TotalReturnPct,
		report.TotalTrades, report.TradeWinRatePct, report.SessionWinRatePct, report.TotalCommission,
		sessionID)
	if err != nil {
		return fmt.Errorf("store: completing session %s: %w", sessionID, err)
	}

	if err := rollUserStatistics(ctx, tx, username, report); err != nil {
		return err
	}
	return tx.Commit()
}

// rollUserStatistics applies the trade-weighted and session-weighted
// running-average update to a user's aggregate statistics row.
func rollUserStatistics(ctx context.Context, tx *sql.Tx, username string, report domain.SessionReport) error {
	var stats domain.UserStatistics
	var lastUpdated string
	err := tx.QueryRowContext(ctx, `
		SELECT total_sessions, completed_sessions, total_trades, total_return_sum, best_return,
		       worst_return, avg_trade_win_rate, avg_session_win_rate, total_commission_paid, last_updated
		FROM user_statistics WHERE username = ?`, username).Scan(
		&stats.TotalSessions, &stats.CompletedSessions, &stats.TotalTrades, &stats.TotalReturnSum,
		&stats.BestReturnPct, &stats.WorstReturnPct, &stats.AvgTradeWinRatePct, &stats.AvgSessionWinRatePct,
		&stats.TotalCommissionPaid, &lastUpdated)

	now := time.Now().Format(timeLayout)
	if err == sql.ErrNoRows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_statistics
				(username, total_sessions, completed_sessions, total_trades, total_return_sum,
				 best_return, worst_return, avg_trade_win_rate, avg_session_win_rate, total_commission_paid, last_updated)
			VALUES (?, 1, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
			username, report.TotalTrades, report.TotalReturnPct, report.TotalReturnPct, report.TotalReturnPct,
			report.TradeWinRatePct, report.SessionWinRatePct, report.TotalCommission, now)
		return err
	}
	if err != nil {
		return fmt.Errorf("store: reading statistics for %s: %w", username, err)
	}

	newTotalSessions := stats.TotalSessions + 1
	newCompletedSessions := stats.CompletedSessions + 1
	newTotalTrades := stats.TotalTrades + int64(report.TotalTrades)
	newTotalReturnSum := stats.TotalReturnSum + report.TotalReturnPct
	newBest := report.TotalReturnPct
	if stats.BestReturnPct > newBest {
		newBest = stats.BestReturnPct
	}
	newWorst := report.TotalReturnPct
	if stats.WorstReturnPct < newWorst {
		newWorst = stats.WorstReturnPct
	}
	newAvgTradeWinRate := stats.AvgTradeWinRatePct
	if newTotalTrades > 0 {
		newAvgTradeWinRate = (stats.AvgTradeWinRatePct*float64(stats.TotalTrades) + report.TradeWinRatePct*float64(report.TotalTrades)) / float64(newTotalTrades)
	}
	newAvgSessionWinRate := (stats.AvgSessionWinRatePct*float64(stats.CompletedSessions) + report.SessionWinRatePct) / float64(newCompletedSessions)
	newTotalCommission := stats.TotalCommissionPaid + report.TotalCommission

	_, err = tx.ExecContext(ctx, `
		UPDATE user_statistics
		SET total_sessions=?, completed_sessions=?, total_trades=?, total_return_sum=?, best_return=?,
		    worst_return=?, avg_trade_win_rate=?, avg_session_win_rate=?, total_commission_paid=?, last_updated=?
		WHERE username = ?`,
		newTotalSessions, newCompletedSessions, newTotalTrades, newTotalReturnSum, newBest,
		newWorst, newAvgTradeWinRate, newAvgSessionWinRate, newTotalCommission, now, username)
	return err
}

func (s *SQLiteStore) Statistics(ctx context.Context, username string) (domain.UserStatistics, error) {
	var stats domain.UserStatistics
	var lastUpdated string
	err := s.db.QueryRowContext(ctx, `
		SELECT total_sessions, completed_sessions, total_trades, total_return_sum, best_return,
		       worst_return, avg_trade_win_rate, avg_session_win_rate, total_commission_paid, last_updated
		FROM user_statistics WHERE username = ?`, username).Scan(
		&stats.TotalSessions, &stats.CompletedSessions, &stats.TotalTrades, &stats.TotalReturnSum,
		&stats.BestReturnPct, &stats.WorstReturnPct, &stats.AvgTradeWinRatePct, &stats.AvgSessionWinRatePct,
		&stats.TotalCommissionPaid, &lastUpdated)
	if err == sql.ErrNoRows {
		return domain.UserStatistics{}, nil // zero-default: absent means never trained
	}
	if err != nil {
		return domain.UserStatistics{}, fmt.Errorf("store: reading statistics for %s: %w", username, err)
	}
	if t, err := time.Parse(timeLayout, lastUpdated); err == nil {
		stats.LastUpdated = t
	}
	return stats, nil
}

func (s *SQLiteStore) PerformanceAnalysis(ctx context.Context, username string, days int) (PerformanceWindow, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format(timeLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT total_return, total_trades, trade_win_rate
		FROM training_sessions
		WHERE username = ? AND status = 'completed' AND completed_at >= ?`, username, cutoff)
	if err != nil {
		return PerformanceWindow{}, fmt.Errorf("store: querying performance window for %s: %w", username, err)
	}
	defer rows.Close()

	w := PerformanceWindow{Days: days}
	var totalReturn, totalTrades, totalWinRate float64
	for rows.Next() {
		var ret, winRate float64
		var trades int
		if err := rows.Scan(&ret, &trades, &winRate); err != nil {
			return PerformanceWindow{}, err
		}
		w.SessionCount++
		totalReturn += ret
		totalTrades += float64(trades)
		totalWinRate += winRate
		if w.SessionCount == 1 || ret > w.BestReturnPct {
			w.BestReturnPct = ret
		}
		if w.SessionCount == 1 || ret < w.WorstReturnPct {
			w.WorstReturnPct = ret
		}
	}
	if w.SessionCount > 0 {
		w.AvgReturnPct = totalReturn / float64(w.SessionCount)
		w.AvgTrades = totalTrades / float64(w.SessionCount)
		w.AvgTradeWinRate = totalWinRate / float64(w.SessionCount)
	}
	return w, nil
}

func (s *SQLiteStore) TrainingHistory(ctx context.Context, username string, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, username, stock_code, stock_name, start_date, end_date, mode,
		       initial_capital, status, created_at, completed_at
		FROM training_sessions WHERE username = ? ORDER BY created_at DESC LIMIT ?`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing training history for %s: %w", username, err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var start, end, created string
		var completed sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Username, &sess.InstrumentCode, &sess.InstrumentName,
			&start, &end, &sess.AdjustmentMode, &sess.InitialCapital, &sess.Status, &created, &completed); err != nil {
			return nil, err
		}
		sess.StartDate, _ = time.Parse(dateLayout, start)
		sess.EndDate, _ = time.Parse(dateLayout, end)
		sess.CreatedAt, _ = time.Parse(timeLayout, created)
		if completed.Valid {
			sess.CompletedAt, _ = time.Parse(timeLayout, completed.String)
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *SQLiteStore) SessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sessions, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	barRows, err := s.db.QueryContext(ctx, `
		SELECT bar_id, date, open_price, high_price, low_price, close_price, volume,
		       total_assets, available_cash, position_value, floating_pnl, total_shares, average_cost
		FROM bar_history WHERE session_id = ? ORDER BY bar_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer barRows.Close()

	var bars []BarSnapshot
	for barRows.Next() {
		var snap BarSnapshot
		var date string
		var shares int64
		var avgCost float64
		if err := barRows.Scan(&snap.BarID, &date, &snap.Bar.Open, &snap.Bar.High, &snap.Bar.Low, &snap.Bar.Close,
			&snap.Bar.Volume, &snap.Account.TotalAssets, &snap.Account.AvailableCash, &snap.Account.PositionValue,
			&snap.Account.FloatingPnL, &shares, &avgCost); err != nil {
			return nil, err
		}
		snap.Date, _ = time.Parse(dateLayout, date)
		if shares > 0 {
			snap.Account.Position = &domain.PositionSummary{TotalShares: shares, AverageCost: avgCost}
		}
		bars = append(bars, snap)
	}

	tradeRows, err := s.db.QueryContext(ctx, `
		SELECT bar_id, trade_date, action, quantity, price, amount, commission, stamp_tax,
		       net_amount, total_assets_before, total_assets_after
		FROM trade_history WHERE session_id = ? ORDER BY bar_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer tradeRows.Close()

	var trades []domain.TradeRecord
	for tradeRows.Next() {
		var rec domain.TradeRecord
		var date string
		if err := tradeRows.Scan(&rec.BarID, &date, &rec.Action, &rec.Quantity, &rec.Price, &rec.Amount,
			&rec.Commission, &rec.StampTax, &rec.NetAmount, &rec.TotalAssetsBefore, &rec.TotalAssetsAfter); err != nil {
			return nil, err
		}
		rec.Date, _ = time.Parse(dateLayout, date)
		trades = append(trades, rec)
	}

	return &SessionDetail{Session: sessions, Bars: bars, Trades: trades}, nil
}

func (s *SQLiteStore) sessionByID(ctx context.Context, sessionID string) (domain.Session, error) {
	var sess domain.Session
	var start, end, created string
	var completed sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, username, stock_code, stock_name, start_date, end_date, mode,
		       initial_capital, status, created_at, completed_at
		FROM training_sessions WHERE session_id = ?`, sessionID).Scan(
		&sess.ID, &sess.Username, &sess.InstrumentCode, &sess.InstrumentName,
		&start, &end, &sess.AdjustmentMode, &sess.InitialCapital, &sess.Status, &created, &completed)
	if err == sql.ErrNoRows {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	sess.StartDate, _ = time.Parse(dateLayout, start)
	sess.EndDate, _ = time.Parse(dateLayout, end)
	sess.CreatedAt, _ = time.Parse(timeLayout, created)
	if completed.Valid {
		sess.CompletedAt, _ = time.Parse(timeLayout, completed.String)
	}
	return sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"bar_history", "trade_history", "position_lots", "training_sessions"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), sessionID); err != nil {
			return fmt.Errorf("store: deleting session %s from %s: %w", sessionID, table, err)
		}
	}
	return tx.Commit()
}

// sessionExport is the JSON shape returned by ExportSessionJSON.
type sessionExport struct {
	Session domain.Session        `json:"session"`
	Bars    []BarSnapshot         `json:"bars"`
	Trades  []domain.TradeRecord  `json:"trades"`
}

func (s *SQLiteStore) ExportSessionJSON(ctx context.Context, sessionID string) ([]byte, error) {
	detail, err := s.SessionDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(sessionExport{Session: detail.Session, Bars: detail.Bars, Trades: detail.Trades}, "", "  ")
}
