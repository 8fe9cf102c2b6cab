package market

import (
	"math"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// sma returns the simple moving average of the last period values.
func sma(vals []float64, period int) float64 {
	if period <= 0 || len(vals) < period {
		return 0
	}
	var sum float64
	for _, v := range vals[len(vals)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// stdDev is the population standard deviation of the last period values.
func stdDev(vals []float64, period int, mean float64) float64 {
	if period <= 0 || len(vals) < period {
		return 0
	}
	var ss float64
	for _, v := range vals[len(vals)-period:] {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(period))
}

// Bollinger computes the upper/mid/lower bands over the trailing period.
// ok is false when there is not enough history.
func Bollinger(closes []float64, period int, mult float64) (upper, mid, lower float64, ok bool) {
	if len(closes) < period {
		return 0, 0, 0, false
	}
	mid = sma(closes, period)
	sd := stdDev(closes, period, mid)
	return mid + mult*sd, mid, mid - mult*sd, true
}

// RSISeries computes a Wilder-smoothed RSI for every bar. Entries before
// the first full period are neutral (50) so divergence lookups never read
// garbage.
func RSISeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 50
	}
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// trueRange for bar i, using the prior close when available.
func trueRange(candles []domain.Candle, i int) float64 {
	hl := candles[i].High - candles[i].Low
	if i == 0 {
		return hl
	}
	prev := candles[i-1].Close
	return math.Max(hl, math.Max(math.Abs(candles[i].High-prev), math.Abs(candles[i].Low-prev)))
}

// ATR is the Wilder-smoothed average true range over period bars.
func ATR(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	var atr float64
	for i := 1; i <= period; i++ {
		atr += trueRange(candles, i)
	}
	atr /= float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles, i)) / float64(period)
	}
	return atr
}

// ADX is the Wilder average directional index over period bars.
func ADX(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < 2*period+1 {
		return 0
	}

	var smTR, smPlusDM, smMinusDM float64
	dxs := make([]float64, 0, len(candles))

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(candles, i)

		if i <= period {
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		sum := plusDI + minusDI
		if sum == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/sum)
	}

	if len(dxs) < period {
		return 0
	}
	var adx float64
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= float64(period)
	for _, dx := range dxs[period:] {
		adx = (adx*float64(period-1) + dx) / float64(period)
	}
	return adx
}
