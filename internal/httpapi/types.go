// Package httpapi exposes the replay training service over HTTP/JSON:
// user management, session lifecycle, and bar-by-bar replay control.
package httpapi

import (
	"time"

	"replaytrainer/internal/domain"
	"replaytrainer/internal/replay"
	"replaytrainer/internal/session"
	"replaytrainer/internal/store"
)

// BarJSON is the wire representation of one OHLCV bar.
type BarJSON struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	Color  string  `json:"color"`
}

func convertBar(b domain.Bar) BarJSON {
	return BarJSON{
		Date:   b.Date.Format("2006-01-02"),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
		Color:  replay.VolumeColor(b),
	}
}

// ProgressJSON mirrors replay.Progress.
type ProgressJSON struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	PercentPct float64 `json:"percent_pct"`
}

func convertProgress(p replay.Progress) ProgressJSON {
	return ProgressJSON{Current: p.Current, Total: p.Total, PercentPct: p.PercentPct}
}

// PositionJSON mirrors domain.PositionSummary.
type PositionJSON struct {
	TotalShares  int64   `json:"total_shares"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	FloatingPnL  float64 `json:"floating_pnl"`
	PnLPercent   float64 `json:"pnl_percent"`
}

// AccountJSON mirrors domain.AccountSnapshot.
type AccountJSON struct {
	CurrentBarID   int           `json:"current_bar_id"`
	AvailableCash  float64       `json:"available_cash"`
	PositionValue  float64       `json:"position_value"`
	TotalAssets    float64       `json:"total_assets"`
	InitialCapital float64       `json:"initial_capital"`
	FloatingPnL    float64       `json:"floating_pnl"`
	TotalReturnPct float64       `json:"total_return_pct"`
	MaxBuyableLots int64         `json:"max_buyable_lots"`
	Position       *PositionJSON `json:"position,omitempty"`
}

func convertAccount(a domain.AccountSnapshot) AccountJSON {
	out := AccountJSON{
		CurrentBarID:   a.CurrentBarID,
		AvailableCash:  a.AvailableCash,
		PositionValue:  a.PositionValue,
		TotalAssets:    a.TotalAssets,
		InitialCapital: a.InitialCapital,
		FloatingPnL:    a.FloatingPnL,
		TotalReturnPct: a.TotalReturnPct,
		MaxBuyableLots: a.MaxBuyableLots,
	}
	if a.Position != nil {
		out.Position = &PositionJSON{
			TotalShares:  a.Position.TotalShares,
			AverageCost:  a.Position.AverageCost,
			CurrentPrice: a.Position.CurrentPrice,
			FloatingPnL:  a.Position.FloatingPnL,
			PnLPercent:   a.Position.PnLPercent,
		}
	}
	return out
}

// SessionJSON mirrors domain.Session.
type SessionJSON struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	InstrumentCode string `json:"instrument_code"`
	InstrumentName string `json:"instrument_name"`
	StartDate      string `json:"start_date"`
	AdjustmentMode string `json:"adjustment_mode"`
	InitialCapital float64 `json:"initial_capital"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

func convertSession(s domain.Session) SessionJSON {
	return SessionJSON{
		ID:             s.ID,
		Username:       s.Username,
		InstrumentCode: s.InstrumentCode,
		InstrumentName: s.InstrumentName,
		StartDate:      s.StartDate.Format("2006-01-02"),
		AdjustmentMode: string(s.AdjustmentMode),
		InitialCapital: s.InitialCapital,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}

// SnapshotJSON is the response for any endpoint returning a session's
// current replay state.
type SnapshotJSON struct {
	Session  SessionJSON  `json:"session"`
	Bar      BarJSON      `json:"bar"`
	BarID    int          `json:"bar_id"`
	Progress ProgressJSON `json:"progress"`
	Account  AccountJSON  `json:"account"`
}

func convertSnapshot(s session.Snapshot) SnapshotJSON {
	return SnapshotJSON{
		Session:  convertSession(s.Session),
		Bar:      convertBar(s.Bar),
		BarID:    s.BarID,
		Progress: convertProgress(s.Progress),
		Account:  convertAccount(s.Account),
	}
}

// InstrumentJSON mirrors domain.Instrument.
type InstrumentJSON struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// InstrumentsResponse lists available instruments.
type InstrumentsResponse struct {
	Instruments []InstrumentJSON `json:"instruments"`
}

func convertInstruments(in []domain.Instrument) []InstrumentJSON {
	out := make([]InstrumentJSON, len(in))
	for i, it := range in {
		out[i] = InstrumentJSON{Code: it.Code, Name: it.Name}
	}
	return out
}

// StartTrainingRequest is the body of POST /api/training/start.
type StartTrainingRequest struct {
	Username       string  `json:"username"`
	InstrumentCode string  `json:"instrument_code"`
	StartDate      string  `json:"start_date"`
	AdjustmentMode string  `json:"adjustment_mode"`
	InitialCapital float64 `json:"initial_capital"`
	Random         bool    `json:"random"`
	Sector         string  `json:"sector"`
	YearRange      string  `json:"year_range"`
}

// TradeRequest is the body of POST /api/training/{id}/trade. Quantity is
// expressed in board lots (1 lot = 100 shares).
type TradeRequest struct {
	Action   string `json:"action"` // "buy" or "sell"
	Quantity int64  `json:"quantity"`
}

// AdjustmentRequest is the body of POST /api/training/{id}/adjustment.
type AdjustmentRequest struct {
	Mode string `json:"mode"`
}

// TradeRecordJSON mirrors domain.TradeRecord.
type TradeRecordJSON struct {
	BarID      int     `json:"bar_id"`
	Date       string  `json:"date"`
	Action     string  `json:"action"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"`
	Commission float64 `json:"commission"`
	StampTax   float64 `json:"stamp_tax"`
	NetAmount  float64 `json:"net_amount"`
}

func convertTradeRecord(r domain.TradeRecord) TradeRecordJSON {
	return TradeRecordJSON{
		BarID:      r.BarID,
		Date:       r.Date.Format("2006-01-02"),
		Action:     string(r.Action),
		Quantity:   r.Quantity,
		Price:      r.Price,
		Amount:     r.Amount,
		Commission: r.Commission,
		StampTax:   r.StampTax,
		NetAmount:  r.NetAmount,
	}
}

// TradeResponse pairs the executed trade with the resulting snapshot.
type TradeResponse struct {
	Trade    TradeRecordJSON `json:"trade"`
	Snapshot SnapshotJSON    `json:"snapshot"`
}

// IndicatorPointJSON mirrors replay.Point.
type IndicatorPointJSON struct {
	BarID     int                `json:"bar_id"`
	Date      string             `json:"date"`
	IsPreview bool               `json:"is_preview"`
	Defined   bool               `json:"defined"`
	Values    map[string]float64 `json:"values,omitempty"`
}

// IndicatorsResponse holds one indicator series.
type IndicatorsResponse struct {
	Kind   string               `json:"kind"`
	Points []IndicatorPointJSON `json:"points"`
}

func convertIndicatorPoints(kind string, pts []replay.Point) IndicatorsResponse {
	out := make([]IndicatorPointJSON, len(pts))
	for i, p := range pts {
		out[i] = IndicatorPointJSON{
			BarID:     p.BarID,
			Date:      p.Time.Format("2006-01-02"),
			IsPreview: p.IsPreview,
			Defined:   p.Defined,
			Values:    p.Values,
		}
	}
	return IndicatorsResponse{Kind: kind, Points: out}
}

// SessionReportJSON mirrors domain.SessionReport.
type SessionReportJSON struct {
	InstrumentCode    string  `json:"instrument_code"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	InitialCapital    float64 `json:"initial_capital"`
	FinalAssets       float64 `json:"final_assets"`
	TotalReturnPct    float64 `json:"total_return_pct"`
	TotalTrades       int     `json:"total_trades"`
	TotalSellTrades   int     `json:"total_sell_trades"`
	WinningSellTrades int     `json:"winning_sell_trades"`
	TradeWinRatePct   float64 `json:"trade_win_rate_pct"`
	SessionWinRatePct float64 `json:"session_win_rate_pct"`
	TotalCommission   float64 `json:"total_commission"`
	TotalStampTax     float64 `json:"total_stamp_tax"`
}

func convertReport(r domain.SessionReport) SessionReportJSON {
	return SessionReportJSON{
		InstrumentCode:    r.InstrumentCode,
		StartDate:         r.StartDate.Format("2006-01-02"),
		EndDate:           r.EndDate.Format("2006-01-02"),
		InitialCapital:    r.InitialCapital,
		FinalAssets:       r.FinalAssets,
		TotalReturnPct:    r.TotalReturnPct,
		TotalTrades:       r.TotalTrades,
		TotalSellTrades:   r.TotalSellTrades,
		WinningSellTrades: r.WinningSellTrades,
		TradeWinRatePct:   r.TradeWinRatePct,
		SessionWinRatePct: r.SessionWinRatePct,
		TotalCommission:   r.TotalCommission,
		TotalStampTax:     r.TotalStampTax,
	}
}

// UserConfigJSON mirrors domain.UserConfig.
type UserConfigJSON struct {
	CommissionRate        float64 `json:"commission_rate"`
	MinCommission         float64 `json:"min_commission"`
	StampTaxRate          float64 `json:"stamp_tax_rate"`
	AdjustmentMode        string  `json:"adjustment_mode"`
	DefaultInitialCapital float64 `json:"default_initial_capital"`
	AutoSave              bool    `json:"auto_save"`
	PlaybackSpeed         float64 `json:"playback_speed"`
	LastUpdated           string  `json:"last_updated"`
}

func convertUserConfig(c domain.UserConfig) UserConfigJSON {
	return UserConfigJSON{
		CommissionRate:        c.CommissionRate,
		MinCommission:         c.MinCommission,
		StampTaxRate:          c.StampTaxRate,
		AdjustmentMode:        string(c.AdjustmentMode),
		DefaultInitialCapital: c.DefaultInitialCapital,
		AutoSave:              c.Preferences.AutoSave,
		PlaybackSpeed:         c.Preferences.PlaybackSpeed,
		LastUpdated:           c.LastUpdated.Format(time.RFC3339),
	}
}

// UpdateSettingsRequest is the body of POST /api/users/{username}/settings.
type UpdateSettingsRequest struct {
	CommissionRate        *float64 `json:"commission_rate"`
	MinCommission         *float64 `json:"min_commission"`
	StampTaxRate          *float64 `json:"stamp_tax_rate"`
	AdjustmentMode        *string  `json:"adjustment_mode"`
	DefaultInitialCapital *float64 `json:"default_initial_capital"`
	AutoSave              *bool    `json:"auto_save"`
	PlaybackSpeed         *float64 `json:"playback_speed"`
}

// UserStatisticsJSON mirrors domain.UserStatistics.
type UserStatisticsJSON struct {
	TotalSessions        int64   `json:"total_sessions"`
	CompletedSessions    int64   `json:"completed_sessions"`
	TotalTrades          int64   `json:"total_trades"`
	AvgReturnPct         float64 `json:"avg_return_pct"`
	BestReturnPct        float64 `json:"best_return_pct"`
	WorstReturnPct       float64 `json:"worst_return_pct"`
	AvgTradeWinRatePct   float64 `json:"avg_trade_win_rate_pct"`
	AvgSessionWinRatePct float64 `json:"avg_session_win_rate_pct"`
	SuccessRatePct       float64 `json:"success_rate_pct"`
	TotalCommissionPaid  float64 `json:"total_commission_paid"`
}

func convertStatistics(s domain.UserStatistics) UserStatisticsJSON {
	return UserStatisticsJSON{
		TotalSessions:        s.TotalSessions,
		CompletedSessions:    s.CompletedSessions,
		TotalTrades:          s.TotalTrades,
		AvgReturnPct:         s.AvgReturnPct(),
		BestReturnPct:        s.BestReturnPct,
		WorstReturnPct:       s.WorstReturnPct,
		AvgTradeWinRatePct:   s.AvgTradeWinRatePct,
		AvgSessionWinRatePct: s.AvgSessionWinRatePct,
		SuccessRatePct:       s.SuccessRatePct(),
		TotalCommissionPaid:  s.TotalCommissionPaid,
	}
}

// PerformanceWindowJSON mirrors store.PerformanceWindow.
type PerformanceWindowJSON struct {
	Days            int     `json:"days"`
	SessionCount    int     `json:"session_count"`
	BestReturnPct   float64 `json:"best_return_pct"`
	WorstReturnPct  float64 `json:"worst_return_pct"`
	AvgReturnPct    float64 `json:"avg_return_pct"`
	AvgTrades       float64 `json:"avg_trades"`
	AvgTradeWinRate float64 `json:"avg_trade_win_rate"`
}

func convertPerformanceWindow(w store.PerformanceWindow) PerformanceWindowJSON {
	return PerformanceWindowJSON{
		Days:            w.Days,
		SessionCount:    w.SessionCount,
		BestReturnPct:   w.BestReturnPct,
		WorstReturnPct:  w.WorstReturnPct,
		AvgReturnPct:    w.AvgReturnPct,
		AvgTrades:       w.AvgTrades,
		AvgTradeWinRate: w.AvgTradeWinRate,
	}
}

// HistoryResponse lists a user's past sessions.
type HistoryResponse struct {
	Sessions []SessionJSON `json:"sessions"`
}

func convertHistory(sessions []domain.Session) HistoryResponse {
	out := make([]SessionJSON, len(sessions))
	for i, s := range sessions {
		out[i] = convertSession(s)
	}
	return HistoryResponse{Sessions: out}
}
