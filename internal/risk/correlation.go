package risk

import (
	"math"

	"crypto-signal-engine/internal/market"
)

// CandleReturns adapts a candle source into a ReturnsProvider for the
// gate's correlation veto.
type CandleReturns struct {
	Feed      market.CandleSource
	Timeframe market.Timeframe
}

// RecentReturns fetches bars+1 candles and returns their close-to-close
// returns.
func (c CandleReturns) RecentReturns(symbol string, bars int) ([]float64, error) {
	candles, err := c.Feed.GetKlines(symbol, c.Timeframe, bars+1)
	if err != nil {
		return nil, err
	}
	return market.Returns(candles), nil
}

// ReturnsCorrelation computes the Pearson correlation of two return
// series. Series of unequal length are aligned on their tails. Fewer
// than two overlapping samples, or a zero-variance series, yield 0.
func ReturnsCorrelation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
