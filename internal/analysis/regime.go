package analysis

import (
	"fmt"

	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
)

// Regime classifies current market behavior. The classification is
// re-evaluated each cycle and never persisted across cycles.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeVolatile     Regime = "VOLATILE"
	RegimeQuiet        Regime = "QUIET"
)

// RegimeAnalysis is the classifier output: the regime plus the inputs it
// was decided on and the sizing recommendation it maps to.
type RegimeAnalysis struct {
	Regime         Regime
	ADX            float64
	ATRPercentile  float64
	BandWidth      float64
	AvgRangePct    float64
	Strategy       string
	SizeMultiplier float64
	Description    string
}

// RegimeClassifier classifies market condition from ADX, ATR percentile
// and Bollinger band width.
type RegimeClassifier struct {
	adxPeriod int
	atrPeriod int
	bbPeriod  int
}

// NewRegimeClassifier creates a classifier with standard 14/14/20 periods.
func NewRegimeClassifier() *RegimeClassifier {
	return &RegimeClassifier{adxPeriod: 14, atrPeriod: 14, bbPeriod: 20}
}

// Classify determines the current regime. Needs enough history for ADX
// warm-up plus a meaningful ATR distribution (50 bars minimum).
func (rc *RegimeClassifier) Classify(candles []market.Candle) (RegimeAnalysis, error) {
	if len(candles) < 50 {
		return RegimeAnalysis{}, fmt.Errorf("%w: regime needs 50 candles, have %d",
			indicators.ErrInsufficientData, len(candles))
	}

	closes := market.Closes(candles)

	adx := indicators.ADX(candles, rc.adxPeriod).ADX.Last()
	atrPct := indicators.ATRPercentile(indicators.ATR(candles, rc.atrPeriod))
	width := indicators.Bollinger(closes, rc.bbPeriod, 2).Width.Last()
	if !adx.Valid || !atrPct.Valid || !width.Valid {
		return RegimeAnalysis{}, indicators.ErrInsufficientData
	}

	bias := emaBias(closes)
	regime := classifyRegime(adx.Num, atrPct.Num, width.Num, bias)
	strategy, mult, desc := regimeRecommendation(regime)

	return RegimeAnalysis{
		Regime:         regime,
		ADX:            adx.Num,
		ATRPercentile:  atrPct.Num,
		BandWidth:      width.Num,
		AvgRangePct:    avgRangePct(candles, rc.atrPeriod),
		Strategy:       strategy,
		SizeMultiplier: mult,
		Description:    desc,
	}, nil
}

// avgRangePct is the mean high-low range of the last period bars as a
// percentage of close.
func avgRangePct(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		if c.Close != 0 {
			sum += (c.High - c.Low) / c.Close * 100
		}
	}
	return sum / float64(period)
}

// emaBias compares EMA(20) and EMA(50) with a 1% dead zone.
func emaBias(closes []float64) string {
	if len(closes) < 50 {
		return "FLAT"
	}
	ema20 := indicators.EMA(closes, 20).Last()
	ema50 := indicators.EMA(closes, 50).Last()
	if !ema20.Valid || !ema50.Valid {
		return "FLAT"
	}
	switch {
	case ema20.Num > ema50.Num*1.01:
		return "UP"
	case ema20.Num < ema50.Num*0.99:
		return "DOWN"
	default:
		return "FLAT"
	}
}

// classifyRegime applies the decision ladder, first match wins.
func classifyRegime(adx, atrPct, bbWidth float64, bias string) Regime {
	if atrPct > 80 && adx < 20 {
		return RegimeVolatile
	}
	if atrPct < 20 && bbWidth < 2 {
		return RegimeQuiet
	}
	if adx > 20 {
		if bias == "UP" {
			return RegimeTrendingUp
		}
		if bias == "DOWN" {
			return RegimeTrendingDown
		}
	}
	return RegimeRanging
}

func regimeRecommendation(regime Regime) (strategy string, sizeMult float64, desc string) {
	switch regime {
	case RegimeTrendingUp:
		return "TREND_FOLLOWING", 1.0, "uptrend, trade pullbacks with the trend"
	case RegimeTrendingDown:
		return "TREND_FOLLOWING", 1.0, "downtrend, trade pullbacks with the trend"
	case RegimeRanging:
		return "MEAN_REVERSION", 0.7, "range-bound, fade the extremes with reduced size"
	case RegimeVolatile:
		return "AVOID", 0.3, "high volatility without direction, minimal size or skip"
	case RegimeQuiet:
		return "WAIT_BREAKOUT", 0.5, "volatility compression, wait for the breakout"
	default:
		return "UNKNOWN", 1.0, ""
	}
}
