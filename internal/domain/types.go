// Package domain defines the core value types shared across the replay
// engine, trade simulator, persistence, and session layers.
package domain

import (
	"errors"
	"time"
)

// Bar is a single daily OHLCV observation for an instrument, in raw
// (unadjusted) terms.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// AdjustFactor is the adjustment factor for a single date, defined as
// adjusted_close / raw_close. A factor of 1.0 means no adjustment applies
// on that date.
type AdjustFactor struct {
	Date   time.Time
	Factor float64
}

// Instrument identifies a tradable symbol with a display name.
type Instrument struct {
	Code string
	Name string
}

// Sector is a coarse grouping used for random-instrument selection.
type Sector string

const (
	SectorAll  Sector = "all"
	SectorMain Sector = "main"
	SectorGEM  Sector = "gem"
	SectorSME  Sector = "sme"
)

// AdjustmentMode selects how OHLC prices are rebased against the split/
// dividend factor table before being shown to the user.
type AdjustmentMode string

const (
	AdjustNone            AdjustmentMode = "none"
	AdjustForward         AdjustmentMode = "forward"
	AdjustBackward        AdjustmentMode = "backward"
	AdjustDynamicForward  AdjustmentMode = "dynamic_forward"
)

// TradeAction is the side of a simulated trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "B"
	ActionSell TradeAction = "S"
)

// SessionStatus tracks the lifecycle of a training session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// TradeMarker annotates a bar on the visible chart with an executed trade.
type TradeMarker struct {
	BarID int
	Type  TradeAction
	Price float64
	Time  time.Time
}

// PositionLot is one FIFO buy batch still (partially) open. Quantity is
// expressed in shares (not board lots); a lot is fully consumed when
// Quantity reaches zero.
type PositionLot struct {
	BuyBarID      int
	BuyDate       time.Time
	AvailableDate time.Time // BuyDate + 1 calendar day (T+1 settlement)
	Quantity      int64
	NetCost       float64 // remaining cost basis for the remaining quantity
}

// TradeRecord is one executed buy or sell, persisted verbatim for
// reporting and FIFO PnL recomputation.
type TradeRecord struct {
	BarID            int
	Date             time.Time
	Action           TradeAction
	Quantity         int64
	Price            float64
	Amount           float64 // quantity * price, before costs
	Commission       float64
	StampTax         float64
	NetAmount        float64 // buy: amount+commission; sell: amount-commission-stampTax
	TotalAssetsBefore float64
	TotalAssetsAfter  float64
}

// PositionSummary describes the current open position, or nil if flat.
type PositionSummary struct {
	TotalShares   int64
	AverageCost   float64
	CurrentPrice  float64
	FloatingPnL   float64
	PnLPercent    float64
}

// AccountSnapshot is the point-in-time account state returned by the
// ledger.
type AccountSnapshot struct {
	CurrentBarID      int
	AvailableCash     float64
	PositionValue     float64
	TotalAssets       float64
	InitialCapital    float64
	FloatingPnL       float64
	TotalReturnPct    float64
	MaxBuyableLots    int64
	Position          *PositionSummary
}

// TradeDetail is one line item in a session report, carrying its
// per-slice realized PnL where applicable.
type TradeDetail struct {
	TradeRecord
	IsWin *bool // whether a sell was profitable; ledger.Simulator.GenerateReport leaves it nil for every trade
}

// SessionReport summarizes a completed or in-progress session for the end
// operation and for statistics rollup.
type SessionReport struct {
	InstrumentCode   string
	StartDate        time.Time
	EndDate          time.Time
	InitialCapital   float64
	FinalAssets      float64
	TotalReturnPct   float64
	TotalTrades      int
	TotalSellTrades  int
	WinningSellTrades int
	TradeWinRatePct  float64
	SessionWinRatePct float64
	TotalCommission  float64
	TotalStampTax    float64
	TradeDetails     []TradeDetail
}

// CommissionSettings is the per-user cost schedule applied by the ledger.
type CommissionSettings struct {
	CommissionRate float64
	MinCommission  float64
	StampTaxRate   float64
}

// DefaultCommissionSettings mirrors the defaults a brand-new user's config
// is seeded with.
func DefaultCommissionSettings() CommissionSettings {
	return CommissionSettings{
		CommissionRate: 0.0003,
		MinCommission:  5.0,
		StampTaxRate:   0.001,
	}
}

// UserPreferences holds small UI-facing settings that do not affect
// simulation semantics.
type UserPreferences struct {
	AutoSave      bool    `json:"auto_save"`
	PlaybackSpeed float64 `json:"playback_speed"`
}

// UserConfig is the persisted per-user configuration document.
type UserConfig struct {
	CommissionSettings
	AdjustmentMode        AdjustmentMode  `json:"adjustment_mode"`
	DefaultInitialCapital float64         `json:"default_initial_capital"`
	Preferences           UserPreferences `json:"preferences"`
	LastUpdated           time.Time       `json:"last_updated"`
}

// DefaultUserConfig is the configuration a freshly created user receives.
func DefaultUserConfig() UserConfig {
	return UserConfig{
		CommissionSettings:    DefaultCommissionSettings(),
		AdjustmentMode:        AdjustDynamicForward,
		DefaultInitialCapital: 100000,
		Preferences: UserPreferences{
			AutoSave:      true,
			PlaybackSpeed: 1.0,
		},
	}
}

// UserStatistics is the running aggregate of a user's completed sessions.
// Zero value is the correct default for a user with no sessions.
type UserStatistics struct {
	TotalSessions        int64
	CompletedSessions    int64
	TotalTrades          int64
	TotalReturnSum       float64
	BestReturnPct        float64
	WorstReturnPct       float64
	AvgTradeWinRatePct   float64
	AvgSessionWinRatePct float64
	TotalCommissionPaid  float64
	LastUpdated          time.Time
}

// AvgReturnPct returns the mean return across completed sessions, or 0 if
// none have completed.
func (s UserStatistics) AvgReturnPct() float64 {
	if s.CompletedSessions == 0 {
		return 0
	}
	return s.TotalReturnSum / float64(s.CompletedSessions)
}

// SuccessRatePct returns the fraction of started sessions that completed,
// as a percentage.
func (s UserStatistics) SuccessRatePct() float64 {
	if s.TotalSessions == 0 {
		return 0
	}
	return float64(s.CompletedSessions) / float64(s.TotalSessions) * 100
}

// Session is the metadata record for one training session (as opposed to
// the live replay.Engine/ledger.Simulator state it drives).
type Session struct {
	ID               string
	Username         string
	InstrumentCode   string
	InstrumentName   string
	StartDate        time.Time
	EndDate          time.Time
	AdjustmentMode   AdjustmentMode
	InitialCapital   float64
	Status           SessionStatus
	CreatedAt        time.Time
	CompletedAt      time.Time
}

// Sentinel errors surfaced across package boundaries to the HTTP layer.
var (
	ErrNoInstruments      = errors.New("domain: no instruments available")
	ErrInstrumentNotFound = errors.New("domain: instrument not found")
	ErrInvalidDateRange   = errors.New("domain: invalid or out-of-range date")
	ErrNoDataAfterStart   = errors.New("domain: no bars on or after start date")
	ErrInsufficientData   = errors.New("domain: insufficient bar history")
	ErrSessionNotFound    = errors.New("domain: session not found")
	ErrUserNotFound       = errors.New("domain: user not found")
	ErrUserExists         = errors.New("domain: user already exists")
	ErrInvalidQuantity    = errors.New("ledger: quantity must be a positive multiple of one lot")
	ErrExceedsMaxBuyable  = errors.New("ledger: order exceeds available capital")
	ErrInsufficientShares = errors.New("ledger: insufficient settled shares to sell")
	ErrNoMoreBars         = errors.New("replay: no more bars in session")
)
