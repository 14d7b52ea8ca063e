package market

import (
	"errors"
	"fmt"
	"time"
)

// Candle represents a single OHLCV bar. Immutable once produced.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Timeframe represents chart timeframes used by the engine.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the bar length of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

var (
	// ErrUnorderedSeries indicates a candle series that is not strictly
	// time-ascending or contains duplicate timestamps.
	ErrUnorderedSeries = errors.New("candle series not strictly time-ascending")

	// ErrTransientUnavailable indicates the data source failed this cycle.
	// Callers skip the cycle; the failure must never be treated as "no trend".
	ErrTransientUnavailable = errors.New("market data temporarily unavailable")
)

// ValidateSeries checks the ordering invariant for a candle sequence.
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: index %d (%s) not after index %d (%s)",
				ErrUnorderedSeries, i, candles[i].OpenTime, i-1, candles[i-1].OpenTime)
		}
	}
	return nil
}

// Closes extracts the close series from a candle sequence.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Returns computes close-to-close fractional returns; result has len-1 entries.
func Returns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}
