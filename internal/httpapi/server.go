package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"replaytrainer/internal/domain"
	"replaytrainer/internal/marketdata"
	"replaytrainer/internal/session"
	"replaytrainer/internal/userstore"
	"replaytrainer/internal/util"
)

const dateLayout = "2006-01-02"

// startTrainingRateLimit bounds how often new sessions may be opened: each
// start hits the CSV provider and initializes a per-user SQLite file, so an
// unbounded burst of starts can starve slower requests against the same
// user's store.
const startTrainingRateLimit = 120 // per minute

// Server serves the replay training HTTP/JSON API.
type Server struct {
	users     *userstore.Store
	sessions  *session.Manager
	provider  marketdata.Provider
	startedAt time.Time
	log       *slog.Logger
	startLim  *util.RateLimiter
}

// NewServer creates a Server backed by the given user store, session
// manager, and market data provider.
func NewServer(users *userstore.Store, sessions *session.Manager, provider marketdata.Provider, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		users:     users,
		sessions:  sessions,
		provider:  provider,
		startedAt: time.Now(),
		log:       log,
		startLim:  util.NewRateLimiter(startTrainingRateLimit),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("DELETE /api/users/{username}", s.handleDeleteUser)
	mux.HandleFunc("GET /api/users/{username}/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/users/{username}/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/users/{username}/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/users/{username}/performance", s.handlePerformance)

	mux.HandleFunc("POST /api/training/start", s.handleStartTraining)
	mux.HandleFunc("GET /api/training/{id}/data", s.handleTrainingData)
	mux.HandleFunc("POST /api/training/{id}/next", s.handleNext)
	mux.HandleFunc("POST /api/training/{id}/adjustment", s.handleAdjustment)
	mux.HandleFunc("POST /api/training/{id}/trade", s.handleTrade)
	mux.HandleFunc("GET /api/training/{id}/account", s.handleAccount)
	mux.HandleFunc("GET /api/training/{id}/indicators/{kind}", s.handleIndicators)
	mux.HandleFunc("POST /api/training/{id}/end", s.handleEnd)
	mux.HandleFunc("POST /api/training/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /api/training/{id}/history", s.handleHistory)

	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusForError maps a domain sentinel error to an HTTP status code.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrExceedsMaxBuyable),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrNoDataAfterStart),
		errors.Is(err, domain.ErrInsufficientData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.users.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"users": names})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	if err := s.users.Create(req.Username); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, map[string]string{"message": "user created"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := s.users.Delete(username); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, map[string]string{"message": "user deleted"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	cfg, err := s.users.Config(username)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertUserConfig(cfg))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg, err := s.users.UpdateConfig(username, func(c *domain.UserConfig) {
		if req.CommissionRate != nil {
			c.CommissionRate = *req.CommissionRate
		}
		if req.MinCommission != nil {
			c.MinCommission = *req.MinCommission
		}
		if req.StampTaxRate != nil {
			c.StampTaxRate = *req.StampTaxRate
		}
		if req.AdjustmentMode != nil {
			c.AdjustmentMode = domain.AdjustmentMode(*req.AdjustmentMode)
		}
		if req.DefaultInitialCapital != nil {
			c.DefaultInitialCapital = *req.DefaultInitialCapital
		}
		if req.AutoSave != nil {
			c.Preferences.AutoSave = *req.AutoSave
		}
		if req.PlaybackSpeed != nil {
			c.Preferences.PlaybackSpeed = *req.PlaybackSpeed
		}
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertUserConfig(cfg))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	stats, err := s.users.Statistics(r.Context(), username)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertStatistics(stats))
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 {
			days = n
		}
	}
	db, err := s.users.History(username)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	defer db.Close()
	window, err := db.PerformanceAnalysis(r.Context(), username, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, convertPerformanceWindow(window))
}

func (s *Server) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	if err := s.startLim.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "too many training starts, try again shortly")
		return
	}

	var req StartTrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}

	code := req.InstrumentCode
	startDate := time.Time{}
	if req.StartDate != "" {
		d, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		startDate = d
	}

	if req.Random || code == "" {
		sector := domain.Sector(req.Sector)
		if sector == "" {
			sector = domain.SectorAll
		}
		pickedCode, pickedStart, err := s.provider.RandomPick(r.Context(), sector, req.YearRange)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		code = pickedCode
		if startDate.IsZero() {
			startDate = pickedStart
		}
	}

	mode := domain.AdjustmentMode(req.AdjustmentMode)
	if mode == "" {
		mode = domain.AdjustDynamicForward
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = 100000
	}

	settings := domain.DefaultCommissionSettings()
	if cfg, err := s.users.Config(req.Username); err == nil {
		settings = cfg.CommissionSettings
	}

	snap, err := s.sessions.Start(r.Context(), session.StartParams{
		Username:       req.Username,
		InstrumentCode: code,
		StartDate:      startDate,
		AdjustmentMode: mode,
		InitialCapital: capital,
		Settings:       settings,
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertSnapshot(snap))
}

func (s *Server) handleTrainingData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertSnapshot(snap))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.sessions.Advance(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNoMoreBars) {
			report, rerr := s.sessions.End(r.Context(), id)
			if rerr != nil {
				writeError(w, statusForError(rerr), rerr.Error())
				return
			}
			writeJSON(w, map[string]any{"finished": true, "report": convertReport(report)})
			return
		}
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, map[string]any{"finished": false, "snapshot": convertSnapshot(snap)})
}

func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snap, err := s.sessions.SetAdjustment(id, domain.AdjustmentMode(req.Mode))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertSnapshot(snap))
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var action domain.TradeAction
	switch req.Action {
	case "buy", "B", "b":
		action = domain.ActionBuy
	case "sell", "S", "s":
		action = domain.ActionSell
	default:
		writeError(w, http.StatusBadRequest, "action must be buy or sell")
		return
	}

	rec, snap, err := s.sessions.Trade(r.Context(), id, session.TradeParams{Action: action, Lots: req.Quantity})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, TradeResponse{Trade: convertTradeRecord(rec), Snapshot: convertSnapshot(snap)})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertAccount(snap.Account))
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kind := r.PathValue("kind")
	points, err := s.sessions.Indicators(id, normalizeIndicatorKind(kind))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertIndicatorPoints(kind, points))
}

func normalizeIndicatorKind(kind string) string {
	switch kind {
	case "MACD", "macd":
		return "macd"
	case "KDJ", "kdj":
		return "kdj"
	case "RSI", "rsi":
		return "rsi"
	case "BOLL", "boll":
		return "boll"
	case "MA", "ma":
		return "ma"
	default:
		return kind
	}
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := s.sessions.End(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, convertReport(report))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Reset(id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, map[string]string{"message": "session reset"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	db, err := s.users.History(snap.Session.Username)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	defer db.Close()
	detail, err := db.SessionDetail(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	trades := make([]TradeRecordJSON, len(detail.Trades))
	for i, t := range detail.Trades {
		trades[i] = convertTradeRecord(t)
	}
	writeJSON(w, map[string]any{
		"trade_history": trades,
		"progress":      convertProgress(snap.Progress),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().Format(time.RFC3339),
		"active_trainings": s.sessions.ActiveCount(),
		"uptime_seconds":   int(time.Since(s.startedAt).Seconds()),
	})
}
