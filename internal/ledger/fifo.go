package ledger

import (
	"replaytrainer/internal/domain"
)

// buyBatch is a working copy of a buy trade consumed by calculateTradePerformance;
// it is independent of the live position_lots bookkeeping in Simulator and is
// recomputed fresh from trade history every time a report is generated.
type buyBatch struct {
	quantity int64
	netCost  float64 // remaining cost basis for the remaining quantity
}

// calculateTradePerformance replays the full trade history through a FIFO
// matcher, pairing each sell against the oldest still-open buy batches, and
// returns the count of sell trades whose profit, summed over the batch
// slices they consume, is positive; the count of sell trades; and the
// resulting win rate (0 when there are no sells).
func calculateTradePerformance(history []domain.TradeRecord) (winCount, totalSells int, winRatePct float64) {
	var open []buyBatch

	for _, t := range history {
		switch t.Action {
		case domain.ActionBuy:
			open = append(open, buyBatch{quantity: t.Quantity, netCost: t.NetAmount})
		case domain.ActionSell:
			totalSells++
			if t.Quantity == 0 {
				continue
			}
			avgSellPricePerUnit := t.NetAmount / float64(t.Quantity)
			remaining := t.Quantity
			profit := 0.0

			for remaining > 0 && len(open) > 0 {
				batch := &open[0]
				consumed := remaining
				if batch.quantity < consumed {
					consumed = batch.quantity
				}

				avgBuyPricePerUnit := batch.netCost / float64(batch.quantity)
				revenue := avgSellPricePerUnit * float64(consumed)
				cost := avgBuyPricePerUnit * float64(consumed)
				profit += revenue - cost

				batch.quantity -= consumed
				batch.netCost -= cost
				remaining -= consumed

				if batch.quantity <= 0 {
					open = open[1:]
				}
			}

			if profit > 0 {
				winCount++
			}
		}
	}

	if totalSells == 0 {
		return 0, 0, 0
	}
	return winCount, totalSells, float64(winCount) / float64(totalSells) * 100
}
