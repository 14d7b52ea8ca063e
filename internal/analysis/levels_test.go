package analysis

import (
	"testing"
	"time"

	"crypto-signal-engine/internal/market"
)

func candleHL(t0 time.Time, i int, high, low, close float64) market.Candle {
	return market.Candle{
		OpenTime:  t0.Add(time.Duration(i) * time.Hour),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
		CloseTime: t0.Add(time.Duration(i)*time.Hour + 59*time.Minute),
	}
}

func TestFindLevelsPicksNearestPivots(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// A low pivot at 90, a deeper low at 80, a high pivot at 110 and a
	// higher one at 120. Price finishes at 100: nearest support is 90,
	// nearest resistance 110.
	highs := []float64{100, 100, 120, 100, 100, 100, 100, 100, 100, 100, 110, 100, 100, 100, 100, 100, 100}
	lows := []float64{96, 96, 96, 96, 96, 85, 80, 85, 96, 96, 96, 96, 96, 91, 90, 91, 96}

	candles := make([]market.Candle, len(highs))
	for i := range highs {
		candles[i] = candleHL(t0, i, highs[i], lows[i], 100)
	}

	lv := FindLevels(candles, 2)
	if !lv.Support.Valid || lv.Support.Num != 90 {
		t.Errorf("support = %+v, want 90", lv.Support)
	}
	if !lv.Resistance.Valid || lv.Resistance.Num != 110 {
		t.Errorf("resistance = %+v, want 110", lv.Resistance)
	}
}

func TestFindLevelsNoPivots(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 10)
	for i := range candles {
		// Monotonic staircase has no interior pivot low below price.
		candles[i] = candleHL(t0, i, 100+float64(i), 99+float64(i), 100+float64(i))
	}
	lv := FindLevels(candles, 2)
	if lv.Resistance.Valid {
		t.Errorf("staircase should have no resistance above the last close, got %+v", lv.Resistance)
	}
}
