// Package ledger implements the FIFO-lot trade simulator: buys and sells
// against a single instrument with T+1 settlement, commission and stamp
// tax, and FIFO realized-PnL accounting.
package ledger

import (
	"math"
	"time"

	"replaytrainer/internal/domain"
)

// lotSize is the number of shares in one board lot; buy/sell quantities
// are expressed in lots.
const lotSize = 100

// Ledger is the trade-simulation contract a replay session drives.
type Ledger interface {
	Buy(lots int64, price float64, barID int, date time.Time) (domain.TradeRecord, error)
	Sell(lots int64, price float64, barID int, date time.Time) (domain.TradeRecord, error)
	UpdatePrice(price float64, barID int)
	MaxBuyableLots() int64
	AccountInfo() domain.AccountSnapshot
	GenerateReport(instrumentCode string, start, end time.Time) domain.SessionReport
	Reset()
}

// Compile-time interface check.
var _ Ledger = (*Simulator)(nil)

// Simulator is the sole Ledger implementation: an in-memory paper-trading
// book for one instrument within one training session.
type Simulator struct {
	initialCapital float64
	currentCapital float64

	totalShares int64
	averageCost float64
	totalCost   float64

	currentPrice float64
	currentBarID int

	lots    []domain.PositionLot
	history []domain.TradeRecord

	settings domain.CommissionSettings
}

// NewSimulator creates a Simulator seeded with initialCapital and the
// given cost schedule.
func NewSimulator(initialCapital float64, settings domain.CommissionSettings) *Simulator {
	return &Simulator{
		initialCapital: initialCapital,
		currentCapital: initialCapital,
		settings:       settings,
	}
}

func (s *Simulator) UpdatePrice(price float64, barID int) {
	s.currentPrice = price
	s.currentBarID = barID
}

func (s *Simulator) calcCommission(amount float64) float64 {
	c := round2(amount * s.settings.CommissionRate)
	if c < s.settings.MinCommission {
		return s.settings.MinCommission
	}
	return c
}

func (s *Simulator) calcStampTax(amount float64) float64 {
	return round2(amount * s.settings.StampTaxRate)
}

func (s *Simulator) maxBuyableAt(price float64) int64 {
	if price <= 0 {
		return 0
	}
	hi := int64(s.currentCapital / (price * lotSize))
	lo := int64(0)
	best := int64(0)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		shares := mid * lotSize
		amount := float64(shares) * price
		totalCost := amount + s.calcCommission(amount)
		if totalCost <= s.currentCapital {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

func (s *Simulator) MaxBuyableLots() int64 {
	return s.maxBuyableAt(s.currentPrice)
}

// Buy executes a buy of lots board lots at price, settling T+1 (the lot
// becomes sellable the calendar day after date).
func (s *Simulator) Buy(lots int64, price float64, barID int, date time.Time) (domain.TradeRecord, error) {
	if lots <= 0 {
		return domain.TradeRecord{}, domain.ErrInvalidQuantity
	}
	if lots > s.maxBuyableAt(price) {
		return domain.TradeRecord{}, domain.ErrExceedsMaxBuyable
	}

	shares := lots * lotSize
	amount := float64(shares) * price
	commission := s.calcCommission(amount)
	totalCost := amount + commission

	assetsBefore := s.totalAssets()
	s.currentCapital -= totalCost

	if s.totalShares == 0 {
		s.totalCost = totalCost
	} else {
		s.totalCost += totalCost
	}
	s.totalShares += shares
	s.averageCost = round2(s.totalCost / float64(s.totalShares))

	s.lots = append(s.lots, domain.PositionLot{
		BuyBarID:      barID,
		BuyDate:       date,
		AvailableDate: date.AddDate(0, 0, 1),
		Quantity:      shares,
		NetCost:       totalCost,
	})

	rec := domain.TradeRecord{
		BarID:             barID,
		Date:              date,
		Action:            domain.ActionBuy,
		Quantity:          shares,
		Price:             price,
		Amount:            amount,
		Commission:        commission,
		StampTax:          0,
		NetAmount:         totalCost,
		TotalAssetsBefore: assetsBefore,
		TotalAssetsAfter:  s.totalAssets(),
	}
	s.history = append(s.history, rec)
	return rec, nil
}

// availableShares sums the quantity of lots settled on or before date.
func (s *Simulator) availableShares(date time.Time) int64 {
	var total int64
	for _, lot := range s.lots {
		if !lot.AvailableDate.After(date) {
			total += lot.Quantity
		}
	}
	return total
}

// Sell executes a sell of lots board lots at price, consuming the oldest
// settled lots first.
func (s *Simulator) Sell(lots int64, price float64, barID int, date time.Time) (domain.TradeRecord, error) {
	if lots <= 0 {
		return domain.TradeRecord{}, domain.ErrInvalidQuantity
	}
	shares := lots * lotSize
	if s.availableShares(date) < shares {
		return domain.TradeRecord{}, domain.ErrInsufficientShares
	}

	amount := float64(shares) * price
	commission := s.calcCommission(amount)
	stampTax := s.calcStampTax(amount)
	netAmount := amount - commission - stampTax

	assetsBefore := s.totalAssets()
	s.currentCapital += netAmount

	s.reduceLots(shares, date)
	s.recalculatePositionSummary()

	rec := domain.TradeRecord{
		BarID:             barID,
		Date:              date,
		Action:            domain.ActionSell,
		Quantity:          shares,
		Price:             price,
		Amount:            amount,
		Commission:        commission,
		StampTax:          stampTax,
		NetAmount:         netAmount,
		TotalAssetsBefore: assetsBefore,
		TotalAssetsAfter:  s.totalAssets(),
	}
	s.history = append(s.history, rec)
	return rec, nil
}

// reduceLots consumes shares worth of quantity from the oldest settled
// lots, oldest buy_bar_id first.
func (s *Simulator) reduceLots(shares int64, date time.Time) {
	remaining := shares
	kept := s.lots[:0]
	for i := range s.lots {
		lot := s.lots[i]
		if remaining > 0 && !lot.AvailableDate.After(date) {
			if lot.Quantity <= remaining {
				remaining -= lot.Quantity
				continue // fully consumed, dropped from kept
			}
			unitCost := lot.NetCost / float64(lot.Quantity)
			lot.Quantity -= remaining
			lot.NetCost = unitCost * float64(lot.Quantity)
			remaining = 0
		}
		kept = append(kept, lot)
	}
	s.lots = kept
}

// recalculatePositionSummary rebuilds total_shares/average_cost/total_cost
// from scratch based on the remaining open lots. If no lots remain, cost
// basis resets to zero.
func (s *Simulator) recalculatePositionSummary() {
	var shares int64
	var cost float64
	for _, lot := range s.lots {
		shares += lot.Quantity
		cost += lot.NetCost
	}
	s.totalShares = shares
	s.totalCost = cost
	if shares == 0 {
		s.averageCost = 0
		s.totalCost = 0
	} else {
		s.averageCost = round2(cost / float64(shares))
	}
}

func (s *Simulator) positionValue() float64 {
	return float64(s.totalShares) * s.currentPrice
}

func (s *Simulator) totalAssets() float64 {
	return s.currentCapital + s.positionValue()
}

func (s *Simulator) AccountInfo() domain.AccountSnapshot {
	var pos *domain.PositionSummary
	if s.totalShares > 0 {
		floating := s.positionValue() - s.totalCost
		pnlPct := 0.0
		if s.totalCost > 0 {
			pnlPct = floating / s.totalCost * 100
		}
		pos = &domain.PositionSummary{
			TotalShares:  s.totalShares,
			AverageCost:  s.averageCost,
			CurrentPrice: s.currentPrice,
			FloatingPnL:  round2(floating),
			PnLPercent:   round2(pnlPct),
		}
	}

	assets := s.totalAssets()
	totalReturn := 0.0
	if s.initialCapital > 0 {
		totalReturn = (assets - s.initialCapital) / s.initialCapital * 100
	}

	return domain.AccountSnapshot{
		CurrentBarID:   s.currentBarID,
		AvailableCash:  round2(s.currentCapital),
		PositionValue:  round2(s.positionValue()),
		TotalAssets:    round2(assets),
		InitialCapital: s.initialCapital,
		FloatingPnL:    round2(assets - s.initialCapital),
		TotalReturnPct: round2(totalReturn),
		MaxBuyableLots: s.MaxBuyableLots(),
		Position:       pos,
	}
}

func (s *Simulator) GenerateReport(instrumentCode string, start, end time.Time) domain.SessionReport {
	var buyTrades, sellTrades int
	var totalCommission, totalStampTax float64
	details := make([]domain.TradeDetail, 0, len(s.history))
	for _, t := range s.history {
		if t.Action == domain.ActionBuy {
			buyTrades++
		} else {
			sellTrades++
		}
		totalCommission += t.Commission
		totalStampTax += t.StampTax
		details = append(details, domain.TradeDetail{TradeRecord: t})
	}

	winCount, totalSells, winRate := calculateTradePerformance(s.history)

	assets := s.totalAssets()
	totalReturn := 0.0
	if s.initialCapital > 0 {
		totalReturn = (assets - s.initialCapital) / s.initialCapital * 100
	}
	sessionWinRate := 0.0
	if assets > s.initialCapital {
		sessionWinRate = 100
	}

	return domain.SessionReport{
		InstrumentCode:    instrumentCode,
		StartDate:         start,
		EndDate:           end,
		InitialCapital:    s.initialCapital,
		FinalAssets:       round2(assets),
		TotalReturnPct:    round2(totalReturn),
		TotalTrades:       buyTrades + sellTrades,
		TotalSellTrades:   totalSells,
		WinningSellTrades: winCount,
		TradeWinRatePct:   round2(winRate),
		SessionWinRatePct: sessionWinRate,
		TotalCommission:   round2(totalCommission),
		TotalStampTax:     round2(totalStampTax),
		TradeDetails:      details,
	}
}

// Reset restores the simulator to its freshly constructed state, clearing
// all lots and trade history.
func (s *Simulator) Reset() {
	s.currentCapital = s.initialCapital
	s.totalShares = 0
	s.averageCost = 0
	s.totalCost = 0
	s.lots = nil
	s.history = nil
	s.currentPrice = 0
	s.currentBarID = 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
