package replay

import (
	"math"
	"time"
)

// Point is one indicator observation. Fields that are not yet defined
// (inside a warm-up window) are left at their zero value and Defined is
// false, so JSON encoding of a higher-level DTO can omit them while still
// carrying Time/BarID/IsPreview.
type Point struct {
	BarID     int
	Time      time.Time
	IsPreview bool
	Defined   bool
	Values    map[string]float64
}

func newPoint(e *Engine, index int) Point {
	return Point{
		BarID:     e.BarID(index),
		Time:      e.fullData[index].Date,
		IsPreview: index < e.previewBars,
	}
}

// MA computes simple moving averages over the adjusted close series for
// each of the given periods (conventionally 5, 10, 20), up to the
// current cursor.
func (e *Engine) MA(periods []int) []Point {
	closes := e.adjustedCloses()
	points := make([]Point, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		p := newPoint(e, i)
		for _, period := range periods {
			if i+1 < period {
				continue
			}
			avg := mean(closes[i+1-period : i+1])
			if p.Values == nil {
				p.Values = map[string]float64{}
			}
			p.Values[maKey(period)] = round2(avg)
		}
		p.Defined = len(p.Values) > 0
		points[i] = p
	}
	return points
}

func maKey(period int) string {
	switch period {
	case 5:
		return "ma5"
	case 10:
		return "ma10"
	case 20:
		return "ma20"
	default:
		return "ma"
	}
}

// MACD computes DIF/DEA/histogram via 12/26-span EMAs of the adjusted
// close with a 9-span signal line, matching the conventional formulation.
func (e *Engine) MACD() []Point {
	closes := e.adjustedCloses()
	fast := ema(closes, 12)
	slow := ema(closes, 26)

	dif := make([]float64, len(closes))
	for i := range closes {
		dif[i] = fast[i] - slow[i]
	}
	dea := ema(dif, 9)

	points := make([]Point, e.currentIndex+1)
	// DIF/DEA are technically defined from index 0 onward with ewm(adjust=False)
	// semantics, but the first `span-1` values are low-confidence warm-up;
	// we surface them all as defined, matching the source behavior of
	// emitting every non-NaN ewm point.
	for i := 0; i <= e.currentIndex; i++ {
		p := newPoint(e, i)
		hist := (dif[i] - dea[i]) * 2
		p.Values = map[string]float64{
			"dif":  round2(dif[i]),
			"dea":  round2(dea[i]),
			"hist": round2(hist),
		}
		p.Defined = true
		points[i] = p
	}
	return points
}

// KDJ computes the stochastic K/D/J oscillator over an n-bar window
// (conventionally n=9, m1=3, m2=3).
func (e *Engine) KDJ(n, m1, m2 int) []Point {
	closes := e.adjustedCloses()
	highs := e.adjustedHighs()
	lows := e.adjustedLows()

	rsv := make([]float64, len(closes))
	for i := range closes {
		if i+1 < n {
			rsv[i] = 50 // fillna(50): undefined window treated as neutral
			continue
		}
		hh := maxOf(highs[i+1-n : i+1])
		ll := minOf(lows[i+1-n : i+1])
		if hh == ll {
			rsv[i] = 50
			continue
		}
		rsv[i] = (closes[i] - ll) / (hh - ll) * 100
	}

	k := rollingMean(rsv, m1)
	d := rollingMean(k, m2)

	points := make([]Point, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		p := newPoint(e, i)
		if i+1 >= m1+m2-1 {
			j := 3*k[i] - 2*d[i]
			p.Values = map[string]float64{
				"k": round2(k[i]),
				"d": round2(d[i]),
				"j": round2(j),
			}
			p.Defined = true
		}
		points[i] = p
	}
	return points
}

// RSI computes Wilder-smoothed relative strength for each of the given
// periods (conventionally 6, 12, 24) in a single combined series.
func (e *Engine) RSI(periods []int) []Point {
	closes := e.adjustedCloses()
	points := make([]Point, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		points[i] = newPoint(e, i)
	}

	for _, period := range periods {
		gains := make([]float64, len(closes))
		losses := make([]float64, len(closes))
		for i := 1; i < len(closes); i++ {
			delta := closes[i] - closes[i-1]
			if delta > 0 {
				gains[i] = delta
			} else {
				losses[i] = -delta
			}
		}
		alpha := 1.0 / float64(period)
		avgGain := wilderEMA(gains, alpha)
		avgLoss := wilderEMA(losses, alpha)

		for i := 0; i <= e.currentIndex; i++ {
			if i == 0 {
				continue // delta undefined for the first bar
			}
			var rsi float64
			if avgLoss[i] == 0 {
				rsi = 100
			} else {
				rs := avgGain[i] / avgLoss[i]
				rsi = 100 - 100/(1+rs)
			}
			if points[i].Values == nil {
				points[i].Values = map[string]float64{}
			}
			points[i].Values[rsiKey(period)] = round2(rsi)
			points[i].Defined = true
		}
	}
	return points
}

func rsiKey(period int) string {
	switch period {
	case 6:
		return "rsi6"
	case 12:
		return "rsi12"
	case 24:
		return "rsi24"
	default:
		return "rsi"
	}
}

// BOLL computes Bollinger Bands (sample standard deviation) over a
// 20-bar window by default, with a 2-standard-deviation envelope.
func (e *Engine) BOLL(period int, stdDevMultiple float64) []Point {
	closes := e.adjustedCloses()
	points := make([]Point, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		p := newPoint(e, i)
		if i+1 >= period {
			window := closes[i+1-period : i+1]
			ma := mean(window)
			sd := sampleStdDev(window, ma)
			p.Values = map[string]float64{
				"middle": round2(ma),
				"upper":  round2(ma + sd*stdDevMultiple),
				"lower":  round2(ma - sd*stdDevMultiple),
			}
			p.Defined = true
		}
		points[i] = p
	}
	return points
}

func (e *Engine) adjustedCloses() []float64 {
	out := make([]float64, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		out[i] = e.adjustedBar(i).Close
	}
	return out
}

func (e *Engine) adjustedHighs() []float64 {
	out := make([]float64, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		out[i] = e.adjustedBar(i).High
	}
	return out
}

func (e *Engine) adjustedLows() []float64 {
	out := make([]float64, e.currentIndex+1)
	for i := 0; i <= e.currentIndex; i++ {
		out[i] = e.adjustedBar(i).Low
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func rollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		lo := i + 1 - window
		if lo < 0 {
			lo = 0
		}
		out[i] = mean(xs[lo : i+1])
	}
	return out
}

// ema computes the exponential moving average with the conventional span
// parameterization (alpha = 2/(span+1)), seeded by the first value.
func ema(xs []float64, span int) []float64 {
	alpha := 2.0 / float64(span+1)
	return wilderEMA(xs, alpha)
}

// wilderEMA computes an exponential moving average with adjust=False
// semantics: out[0] = xs[0], out[i] = alpha*xs[i] + (1-alpha)*out[i-1].
func wilderEMA(xs []float64, alpha float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}
