package analysis

import (
	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
)

// Levels are the nearest swing support below price and swing resistance
// above it. Either side may be absent when no pivot exists on that side.
type Levels struct {
	Support    indicators.Value
	Resistance indicators.Value
}

// FindLevels scans for fractal pivots (a high above its wing neighbors,
// a low below them) and returns the nearest pivot low below the last
// close and pivot high above it.
func FindLevels(candles []market.Candle, wing int) Levels {
	var lv Levels
	if wing < 1 || len(candles) < 2*wing+1 {
		return lv
	}
	price := candles[len(candles)-1].Close

	for i := wing; i < len(candles)-wing; i++ {
		if isPivotLow(candles, i, wing) {
			low := candles[i].Low
			if low < price && (!lv.Support.Valid || low > lv.Support.Num) {
				lv.Support = indicators.Value{Num: low, Valid: true}
			}
		}
		if isPivotHigh(candles, i, wing) {
			high := candles[i].High
			if high > price && (!lv.Resistance.Valid || high < lv.Resistance.Num) {
				lv.Resistance = indicators.Value{Num: high, Valid: true}
			}
		}
	}
	return lv
}

func isPivotHigh(candles []market.Candle, i, wing int) bool {
	for j := i - wing; j <= i+wing; j++ {
		if j != i && candles[j].High >= candles[i].High {
			return false
		}
	}
	return true
}

func isPivotLow(candles []market.Candle, i, wing int) bool {
	for j := i - wing; j <= i+wing; j++ {
		if j != i && candles[j].Low <= candles[i].Low {
			return false
		}
	}
	return true
}
