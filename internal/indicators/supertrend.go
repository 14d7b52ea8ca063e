package indicators

import "crypto-signal-engine/internal/market"

// SuperTrendResult holds the SuperTrend line and its direction per bar
// (+1 while price rides above the line, -1 below).
type SuperTrendResult struct {
	Line      Series
	Direction Series
}

// SuperTrend computes the recursive SuperTrend over ATR(period) with the
// given band multiplier. The band carry is the full recursive
// formulation: a basic band only replaces the final band while it
// tightens or after price has crossed the prior final band.
func SuperTrend(candles []market.Candle, period int, multiplier float64) SuperTrendResult {
	n := len(candles)
	res := SuperTrendResult{
		Line:      invalidSeries(n),
		Direction: invalidSeries(n),
	}

	atr := ATR(candles, period)
	start := -1
	for i, v := range atr {
		if v.Valid {
			start = i
			break
		}
	}
	if start < 0 {
		return res
	}

	var finalUpper, finalLower float64
	dir := 1.0

	for i := start; i < n; i++ {
		mid := (candles[i].High + candles[i].Low) / 2
		basicUpper := mid + multiplier*atr[i].Num
		basicLower := mid - multiplier*atr[i].Num

		if i == start {
			finalUpper = basicUpper
			finalLower = basicLower
		} else {
			prevClose := candles[i-1].Close
			if basicUpper < finalUpper || prevClose > finalUpper {
				finalUpper = basicUpper
			}
			if basicLower > finalLower || prevClose < finalLower {
				finalLower = basicLower
			}
		}

		if candles[i].Close > finalUpper {
			dir = 1
		} else if candles[i].Close < finalLower {
			dir = -1
		}

		if dir > 0 {
			res.Line[i] = valid(finalLower)
		} else {
			res.Line[i] = valid(finalUpper)
		}
		res.Direction[i] = valid(dir)
	}
	return res
}
