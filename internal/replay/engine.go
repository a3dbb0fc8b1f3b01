// Package replay implements the cursor-driven replay engine: given a raw
// bar history and an adjustment-factor table, it exposes a bar-by-bar
// "current position" a user can step through, with adjusted OHLC prices,
// a fixed look-back preview window, and derived technical indicators.
package replay

import (
	"math"
	"time"

	"replaytrainer/internal/domain"
)

// maxPreviewBars is the largest look-back window shown before the first
// training bar.
const maxPreviewBars = 80

// Engine owns one session's view over an instrument's bar history. It is
// not safe for concurrent use; callers serialize access per session (see
// package session).
type Engine struct {
	fullData []domain.Bar
	factors  []float64 // one factor per fullData index, forward-filled, default 1.0

	previewBars  int
	currentIndex int
	maxIndex     int
	barIDOffset  int

	mode            domain.AdjustmentMode
	forwardRefIndex int // reference index snapshot used by AdjustForward

	tradeMarkers []domain.TradeMarker
}

// NewEngine slices bars to start at startDate (or the first date on or
// after it), keeps up to 80 preceding bars as a non-tradable preview
// window, and left-joins the factor table onto the sliced range.
func NewEngine(bars []domain.Bar, factorTable []domain.AdjustFactor, startDate time.Time, mode domain.AdjustmentMode) (*Engine, error) {
	if len(bars) == 0 {
		return nil, domain.ErrInsufficientData
	}

	startIndex := -1
	for i, b := range bars {
		if !b.Date.Before(startDate) {
			startIndex = i
			break
		}
	}
	if startIndex == -1 {
		return nil, domain.ErrNoDataAfterStart
	}

	previewStartIndex := startIndex - maxPreviewBars
	if previewStartIndex < 0 {
		previewStartIndex = 0
	}
	previewBars := startIndex - previewStartIndex
	if previewBars > maxPreviewBars {
		previewBars = maxPreviewBars
	}

	fullData := bars[previewStartIndex:]
	factors := joinFactors(fullData, factorTable)

	e := &Engine{
		fullData:     fullData,
		factors:      factors,
		previewBars:  previewBars,
		currentIndex: previewBars,
		maxIndex:     len(fullData) - 1,
		barIDOffset:  -previewBars + 1,
		mode:         mode,
	}
	e.forwardRefIndex = e.currentIndex
	return e, nil
}

// joinFactors left-joins factorTable onto bars by date, forward-filling
// gaps and defaulting to 1.0 before the first known factor.
func joinFactors(bars []domain.Bar, factorTable []domain.AdjustFactor) []float64 {
	byDate := make(map[time.Time]float64, len(factorTable))
	for _, f := range factorTable {
		byDate[f.Date] = f.Factor
	}
	out := make([]float64, len(bars))
	last := 1.0
	for i, b := range bars {
		if f, ok := byDate[b.Date]; ok {
			last = f
		}
		out[i] = last
	}
	return out
}

// BarID converts a slice index into its public bar_id coordinate.
func (e *Engine) BarID(index int) int {
	return index + e.barIDOffset
}

// CurrentBarID returns the bar_id of the bar currently under the cursor.
func (e *Engine) CurrentBarID() int {
	return e.BarID(e.currentIndex)
}

// HasNext reports whether NextBar can advance the cursor further.
func (e *Engine) HasNext() bool {
	return e.currentIndex < e.maxIndex
}

// NextBar advances the cursor by one bar if possible.
func (e *Engine) NextBar() error {
	if !e.HasNext() {
		return domain.ErrNoMoreBars
	}
	e.currentIndex++
	return nil
}

// Reset returns the cursor to the first training bar and clears trade
// markers.
func (e *Engine) Reset() {
	e.currentIndex = e.previewBars
	e.forwardRefIndex = e.currentIndex
	e.tradeMarkers = nil
}

// JumpToDate moves the cursor to the latest bar on or before date, searching
// the session's whole data range, so the cursor may move past bars not yet
// shown.
func (e *Engine) JumpToDate(date time.Time) error {
	target := -1
	for i, b := range e.fullData {
		if !b.Date.After(date) {
			target = i
		} else {
			break
		}
	}
	if target == -1 {
		return domain.ErrInvalidDateRange
	}
	if target > e.maxIndex {
		target = e.maxIndex
	}
	e.currentIndex = target
	return nil
}

// SetAdjustment switches the adjustment mode. Switching into AdjustForward
// snapshots the current cursor position as the new fixed reference point.
func (e *Engine) SetAdjustment(mode domain.AdjustmentMode) {
	e.mode = mode
	if mode == domain.AdjustForward {
		e.forwardRefIndex = e.currentIndex
	}
}

// Progress reports how far the user has advanced through the tradable
// (non-preview) portion of the session.
type Progress struct {
	Current    int
	Total      int
	PercentPct float64
}

func (e *Engine) Progress() Progress {
	current := e.currentIndex - e.previewBars
	if current < 0 {
		current = 0
	}
	total := e.maxIndex - e.previewBars
	pct := 0.0
	if total > 0 {
		pct = float64(current) / float64(total) * 100
	}
	return Progress{Current: current, Total: total, PercentPct: pct}
}

// AddTradeMarker records a trade execution against the current bar, for
// chart annotation.
func (e *Engine) AddTradeMarker(action domain.TradeAction, price float64, when time.Time) {
	e.tradeMarkers = append(e.tradeMarkers, domain.TradeMarker{
		BarID: e.CurrentBarID(),
		Type:  action,
		Price: price,
		Time:  when,
	})
}

// TradeMarkers returns all trade markers recorded so far.
func (e *Engine) TradeMarkers() []domain.TradeMarker {
	return e.tradeMarkers
}

// CurrentIndex returns the cursor's raw slice index (not its bar_id).
func (e *Engine) CurrentIndex() int {
	return e.currentIndex
}

// PreviewBars returns the number of non-tradable look-back bars.
func (e *Engine) PreviewBars() int {
	return e.previewBars
}

// CurrentBar returns the (adjusted) bar under the cursor.
func (e *Engine) CurrentBar() domain.Bar {
	return e.adjustedBar(e.currentIndex)
}

// PreviousClose returns the adjusted close of the bar immediately before
// the cursor, or 0 if the cursor is at the first visible bar.
func (e *Engine) PreviousClose() float64 {
	if e.currentIndex == 0 {
		return 0
	}
	return e.adjustedBar(e.currentIndex - 1).Close
}

// VisibleBars returns every bar from the start of the preview window
// through the current cursor, in adjusted terms.
func (e *Engine) VisibleBars() []domain.Bar {
	out := make([]domain.Bar, 0, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		out = append(out, e.adjustedBar(i))
	}
	return out
}

// VolumeColor classifies a bar's candle color the way the charting
// frontend expects: up candles red, down candles green, flat black.
func VolumeColor(bar domain.Bar) string {
	switch {
	case bar.Close > bar.Open:
		return "#ff4d4f"
	case bar.Close < bar.Open:
		return "#008000"
	default:
		return "#000000"
	}
}

// referenceIndex returns the factor-table index the current mode rebases
// against.
func (e *Engine) referenceIndex() int {
	switch e.mode {
	case domain.AdjustBackward:
		return 0
	case domain.AdjustForward:
		return e.forwardRefIndex
	case domain.AdjustDynamicForward:
		return e.currentIndex
	default:
		return -1 // AdjustNone: unused
	}
}

// adjustedBar rebases the raw bar at index against the current mode's
// reference factor. Volume is never adjusted; OHLC is rounded to 2
// decimal places after rebasing.
func (e *Engine) adjustedBar(index int) domain.Bar {
	raw := e.fullData[index]
	if e.mode == domain.AdjustNone {
		return raw
	}

	ref := e.referenceIndex()
	refFactor := e.factors[ref]
	ratio := e.factors[index] / refFactor

	return domain.Bar{
		Date:   raw.Date,
		Open:   round2(raw.Open * ratio),
		High:   round2(raw.High * ratio),
		Low:    round2(raw.Low * ratio),
		Close:  round2(raw.Close * ratio),
		Volume: raw.Volume,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
