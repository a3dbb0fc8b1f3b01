// Package session owns the registry of active training sessions, each
// pairing a replay.Engine with a ledger.Simulator and serializing access
// per session_id without blocking unrelated sessions against each other.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"replaytrainer/internal/domain"
	"replaytrainer/internal/ledger"
	"replaytrainer/internal/marketdata"
	"replaytrainer/internal/replay"
	"replaytrainer/internal/store"
)

// entry bundles one session's live state behind its own lock, so two
// requests against different sessions never contend.
type entry struct {
	mu    sync.Mutex
	token string // internal correlation id for log lines; never exposed externally

	meta   domain.Session
	engine *replay.Engine
	ledger *ledger.Simulator
}

// Manager is the process-wide registry of active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	provider marketdata.Provider
	history  func(username string) (*store.SQLiteStore, error)
	log      *slog.Logger
}

// NewManager creates a Manager backed by provider for instrument data and
// historyFor to open a user's session-history store on demand.
func NewManager(provider marketdata.Provider, historyFor func(username string) (*store.SQLiteStore, error), log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		provider: provider,
		history:  historyFor,
		log:      log,
	}
}

// StartParams configures a new session.
type StartParams struct {
	Username       string
	InstrumentCode string
	StartDate      time.Time
	EndDate        time.Time
	AdjustmentMode domain.AdjustmentMode
	InitialCapital float64
	Settings       domain.CommissionSettings
}

// Snapshot is the read-only view returned for a session's current state.
type Snapshot struct {
	Session domain.Session
	Bar     domain.Bar
	BarID   int
	Progress replay.Progress
	Account domain.AccountSnapshot
}

func newSessionID(username string, now time.Time) string {
	return fmt.Sprintf("%s_%s", username, now.Format("20060102_150405"))
}

// Start constructs a new replay engine and ledger for the given
// instrument and registers the session.
func (m *Manager) Start(ctx context.Context, p StartParams) (Snapshot, error) {
	instruments, err := m.provider.ListInstruments(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	name := ""
	for _, inst := range instruments {
		if inst.Code == p.InstrumentCode {
			name = inst.Name
			break
		}
	}
	if name == "" {
		return Snapshot{}, domain.ErrInstrumentNotFound
	}

	bars, err := m.provider.LoadBars(ctx, p.InstrumentCode)
	if err != nil {
		return Snapshot{}, err
	}
	factors, err := m.provider.LoadFactors(ctx, p.InstrumentCode)
	if err != nil {
		return Snapshot{}, err
	}

	eng, err := replay.NewEngine(bars, factors, p.StartDate, p.AdjustmentMode)
	if err != nil {
		return Snapshot{}, err
	}
	sim := ledger.NewSimulator(p.InitialCapital, p.Settings)
	sim.UpdatePrice(eng.CurrentBar().Close, eng.CurrentBarID())

	now := time.Now()
	id := m.uniqueSessionID(p.Username, now)
	meta := domain.Session{
		ID:             id,
		Username:       p.Username,
		InstrumentCode: p.InstrumentCode,
		InstrumentName: name,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		AdjustmentMode: p.AdjustmentMode,
		InitialCapital: p.InitialCapital,
		Status:         domain.SessionActive,
		CreatedAt:      now,
	}

	e := &entry{token: uuid.NewString(), meta: meta, engine: eng, ledger: sim}

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	if db, err := m.history(p.Username); err == nil {
		if err := db.StartSession(ctx, meta); err != nil {
			m.log.Warn("persisting session start failed", "session_id", id, "error", err)
		}
		db.Close()
	}

	m.log.Info("session started", "session_id", id, "token", e.token, "instrument", p.InstrumentCode,
		"initial_capital", humanize.Commaf(p.InitialCapital))
	return m.snapshot(e), nil
}

// uniqueSessionID appends a numeric suffix if the wall-clock-second id
// already exists (two starts by the same user within the same second).
func (m *Manager) uniqueSessionID(username string, now time.Time) string {
	base := newSessionID(username, now)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.sessions[base]; !exists {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, exists := m.sessions[candidate]; !exists {
			return candidate
		}
	}
}

// get returns the entry for id, taking only the registry read lock.
func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e, nil
}

func (m *Manager) snapshot(e *entry) Snapshot {
	return Snapshot{
		Session:  e.meta,
		Bar:      e.engine.CurrentBar(),
		BarID:    e.engine.CurrentBarID(),
		Progress: e.engine.Progress(),
		Account:  e.ledger.AccountInfo(),
	}
}

// Get returns the current state of session id.
func (m *Manager) Get(id string) (Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.snapshot(e), nil
}

// Advance steps the session's cursor forward by one bar and persists a
// bar snapshot.
func (m *Manager) Advance(ctx context.Context, id string) (Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.engine.NextBar(); err != nil {
		return Snapshot{}, err
	}
	bar := e.engine.CurrentBar()
	e.ledger.UpdatePrice(bar.Close, e.engine.CurrentBarID())

	snap := m.snapshot(e)
	m.persistBar(ctx, e, snap)
	return snap, nil
}

func (m *Manager) persistBar(ctx context.Context, e *entry, snap Snapshot) {
	db, err := m.history(e.meta.Username)
	if err != nil {
		return
	}
	defer db.Close()
	err = db.RecordBar(ctx, e.meta.ID, store.BarSnapshot{
		BarID: snap.BarID, Date: snap.Bar.Date, Bar: snap.Bar, Account: snap.Account,
	})
	if err != nil {
		m.log.Warn("persisting bar snapshot failed", "session_id", e.meta.ID, "error", err)
	}
}

// TradeParams describes a requested buy or sell.
type TradeParams struct {
	Action domain.TradeAction
	Lots   int64
}

// Trade executes a buy or sell against the session's ledger at the
// current bar's price.
func (m *Manager) Trade(ctx context.Context, id string, p TradeParams) (domain.TradeRecord, Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return domain.TradeRecord{}, Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	bar := e.engine.CurrentBar()
	barID := e.engine.CurrentBarID()

	var rec domain.TradeRecord
	switch p.Action {
	case domain.ActionBuy:
		rec, err = e.ledger.Buy(p.Lots, bar.Close, barID, bar.Date)
	case domain.ActionSell:
		rec, err = e.ledger.Sell(p.Lots, bar.Close, barID, bar.Date)
	default:
		return domain.TradeRecord{}, Snapshot{}, domain.ErrInvalidQuantity
	}
	if err != nil {
		return domain.TradeRecord{}, Snapshot{}, err
	}

	e.engine.AddTradeMarker(p.Action, bar.Close, bar.Date)
	snap := m.snapshot(e)

	if db, derr := m.history(e.meta.Username); derr == nil {
		if err := db.RecordTrade(ctx, e.meta.ID, rec); err != nil {
			m.log.Warn("persisting trade failed", "session_id", id, "error", err)
		}
		db.Close()
	}
	return rec, snap, nil
}

// SetAdjustment switches the session's adjustment mode.
func (m *Manager) SetAdjustment(id string, mode domain.AdjustmentMode) (Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.engine.SetAdjustment(mode)
	e.meta.AdjustmentMode = mode
	return m.snapshot(e), nil
}

// Indicators returns the requested indicator series for the session, up
// to the current cursor.
func (m *Manager) Indicators(id, kind string) ([]replay.Point, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case "ma":
		return e.engine.MA([]int{5, 10, 20}), nil
	case "macd":
		return e.engine.MACD(), nil
	case "kdj":
		return e.engine.KDJ(9, 3, 3), nil
	case "rsi":
		return e.engine.RSI([]int{6, 12, 24}), nil
	case "boll":
		return e.engine.BOLL(20, 2), nil
	default:
		return nil, fmt.Errorf("session: unknown indicator %q", kind)
	}
}

// End finalizes the session: generates a report, persists completion,
// and removes it from the registry.
func (m *Manager) End(ctx context.Context, id string) (domain.SessionReport, error) {
	e, err := m.get(id)
	if err != nil {
		return domain.SessionReport{}, err
	}
	e.mu.Lock()
	report := e.ledger.GenerateReport(e.meta.InstrumentCode, e.meta.StartDate, e.engine.CurrentBar().Date)
	e.mu.Unlock()

	if db, derr := m.history(e.meta.Username); derr == nil {
		if err := db.CompleteSession(ctx, id, report); err != nil {
			m.log.Warn("persisting session completion failed", "session_id", id, "error", err)
		}
		db.Close()
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.log.Info("session ended", "session_id", id, "total_trades", report.TotalTrades,
		"final_assets", humanize.Commaf(report.FinalAssets))
	return report, nil
}

// Reset rewinds a session's engine and ledger to their initial state
// without removing it from the registry.
func (m *Manager) Reset(id string) (Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.engine.Reset()
	e.ledger.Reset()
	e.ledger.UpdatePrice(e.engine.CurrentBar().Close, e.engine.CurrentBarID())
	return m.snapshot(e), nil
}

// ActiveCount returns the number of sessions currently registered.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
