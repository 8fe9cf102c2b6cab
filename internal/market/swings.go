package market

import "github.com/alanyoungcy/swingbot/internal/domain"

// FindSwings scans candles for pivot extremes: a bar whose high (low) is
// the strict maximum (minimum) of the confirm bars on each side. A pivot
// only exists once its right-side confirmation bars have closed, so the
// newest confirm bars can never contain one.
func FindSwings(candles []domain.Candle, confirm int) (highs, lows []domain.Swing) {
	if confirm <= 0 || len(candles) < 2*confirm+1 {
		return nil, nil
	}
	for i := confirm; i < len(candles)-confirm; i++ {
		isHigh, isLow := true, true
		for j := i - confirm; j <= i+confirm; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, domain.Swing{Price: candles[i].High, Index: i})
		}
		if isLow {
			lows = append(lows, domain.Swing{Price: candles[i].Low, Index: i})
		}
	}
	return highs, lows
}

// bullishDivergence: price set a lower low across the last two swing lows
// while RSI set a higher low at those bars.
func bullishDivergence(lows []domain.Swing, rsi []float64) bool {
	if len(lows) < 2 {
		return false
	}
	last, prev := lows[len(lows)-1], lows[len(lows)-2]
	if last.Index >= len(rsi) || prev.Index >= len(rsi) {
		return false
	}
	return last.Price < prev.Price && rsi[last.Index] > rsi[prev.Index]
}

// bearishDivergence: price set a higher high while RSI set a lower high.
func bearishDivergence(highs []domain.Swing, rsi []float64) bool {
	if len(highs) < 2 {
		return false
	}
	last, prev := highs[len(highs)-1], highs[len(highs)-2]
	if last.Index >= len(rsi) || prev.Index >= len(rsi) {
		return false
	}
	return last.Price > prev.Price && rsi[last.Index] < rsi[prev.Index]
}
