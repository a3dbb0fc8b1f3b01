// Package store persists training sessions, bar-by-bar account snapshots,
// trade records, position lots, and rolling user statistics in a single
// embedded SQLite database per user.
package store

import (
	"context"
	"time"

	"replaytrainer/internal/domain"
)

// SessionDetail is the full replay of one session: its metadata plus every
// recorded bar snapshot and trade.
type SessionDetail struct {
	Session domain.Session
	Bars    []BarSnapshot
	Trades  []domain.TradeRecord
}

// BarSnapshot is one persisted point-in-time account state, recorded as
// the cursor advances.
type BarSnapshot struct {
	BarID   int
	Date    time.Time
	Bar     domain.Bar
	Account domain.AccountSnapshot
}

// PerformanceWindow is an aggregate over a user's completed sessions
// within a trailing day window.
type PerformanceWindow struct {
	Days            int
	SessionCount    int
	BestReturnPct   float64
	WorstReturnPct  float64
	AvgReturnPct    float64
	AvgTrades       float64
	AvgTradeWinRate float64
}

// SessionStore persists session lifecycle events.
type SessionStore interface {
	StartSession(ctx context.Context, s domain.Session) error
	CompleteSession(ctx context.Context, sessionID string, report domain.SessionReport) error
	TrainingHistory(ctx context.Context, username string, limit int) ([]domain.Session, error)
	SessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ExportSessionJSON(ctx context.Context, sessionID string) ([]byte, error)
}

// BarSnapshotStore persists per-bar account snapshots for session replay
// and forensics.
type BarSnapshotStore interface {
	RecordBar(ctx context.Context, sessionID string, snap BarSnapshot) error
}

// TradeRecordStore persists individual executed trades.
type TradeRecordStore interface {
	RecordTrade(ctx context.Context, sessionID string, rec domain.TradeRecord) error
}

// PositionLotStore mirrors the ledger's in-memory FIFO lots to disk for
// crash forensics; it is never read back into a live ledger.Simulator.
type PositionLotStore interface {
	SyncLots(ctx context.Context, sessionID string, lots []domain.PositionLot) error
}

// UserStatisticsStore tracks and reports rolling per-user statistics.
type UserStatisticsStore interface {
	Statistics(ctx context.Context, username string) (domain.UserStatistics, error)
	PerformanceAnalysis(ctx context.Context, username string, days int) (PerformanceWindow, error)
}
