package analysis

import (
	"fmt"

	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
)

// TrendLabel is the discrete trend classification for one timeframe.
type TrendLabel string

const (
	TrendStrongUp   TrendLabel = "STRONG_UP"
	TrendUp         TrendLabel = "UP"
	TrendNeutral    TrendLabel = "NEUTRAL"
	TrendDown       TrendLabel = "DOWN"
	TrendStrongDown TrendLabel = "STRONG_DOWN"
)

// Bullish reports whether the label is UP or STRONG_UP.
func (t TrendLabel) Bullish() bool { return t == TrendUp || t == TrendStrongUp }

// Bearish reports whether the label is DOWN or STRONG_DOWN.
func (t TrendLabel) Bearish() bool { return t == TrendDown || t == TrendStrongDown }

// Alignment describes agreement between the slow and medium timeframes.
type Alignment string

const (
	AlignBullish Alignment = "BULLISH"
	AlignBearish Alignment = "BEARISH"
	AlignMixed   Alignment = "MIXED"
)

// TradeAllowed encodes which directions the timeframe structure permits.
type TradeAllowed string

const (
	AllowLong  TradeAllowed = "LONG"
	AllowShort TradeAllowed = "SHORT"
	AllowBoth  TradeAllowed = "BOTH"
	AllowNone  TradeAllowed = "NONE"
)

// Permission is the trade-permission verdict from the timeframe stack.
// AllowNone is a hard veto, not advisory.
type Permission struct {
	Allowed    TradeAllowed
	Confidence float64
	Reason     string
}

// MTFResult is the combined multi-timeframe classification.
type MTFResult struct {
	Slow       TrendLabel
	Medium     TrendLabel
	Fast       TrendLabel
	Alignment  Alignment
	Permission Permission
}

// TrendClassifier derives trend labels from EMA spread and market
// structure (higher-high / lower-low counting).
type TrendClassifier struct {
	fastEMA  int
	slowEMA  int
	lookback int
}

// NewTrendClassifier creates a classifier with EMA(8)/EMA(21) spread and
// a 20-bar structure window.
func NewTrendClassifier() *TrendClassifier {
	return &TrendClassifier{fastEMA: 8, slowEMA: 21, lookback: 20}
}

// Classify labels the trend of a single timeframe.
func (tc *TrendClassifier) Classify(candles []market.Candle) (TrendLabel, error) {
	need := tc.slowEMA
	if tc.lookback+1 > need {
		need = tc.lookback + 1
	}
	if len(candles) < need {
		return TrendNeutral, fmt.Errorf("%w: trend needs %d candles, have %d",
			indicators.ErrInsufficientData, need, len(candles))
	}

	closes := market.Closes(candles)
	fast := indicators.EMA(closes, tc.fastEMA).Last()
	slow := indicators.EMA(closes, tc.slowEMA).Last()
	if !fast.Valid || !slow.Valid || slow.Num == 0 {
		return TrendNeutral, indicators.ErrInsufficientData
	}

	spreadPct := (fast.Num - slow.Num) / slow.Num * 100

	hhRatio, llRatio := structureRatios(candles, tc.lookback)

	switch {
	case spreadPct > 1.5 && hhRatio > 0.6:
		return TrendStrongUp, nil
	case spreadPct > 0.5 && hhRatio > 0.5:
		return TrendUp, nil
	case spreadPct < -1.5 && llRatio > 0.6:
		return TrendStrongDown, nil
	case spreadPct < -0.5 && llRatio > 0.5:
		return TrendDown, nil
	default:
		return TrendNeutral, nil
	}
}

// structureRatios counts the fraction of higher highs and lower lows over
// the last lookback bars.
func structureRatios(candles []market.Candle, lookback int) (hhRatio, llRatio float64) {
	if len(candles) < lookback+1 {
		lookback = len(candles) - 1
	}
	if lookback < 1 {
		return 0, 0
	}

	recent := candles[len(candles)-lookback-1:]
	hh, ll := 0, 0
	for i := 1; i < len(recent); i++ {
		if recent[i].High > recent[i-1].High {
			hh++
		}
		if recent[i].Low < recent[i-1].Low {
			ll++
		}
	}
	return float64(hh) / float64(lookback), float64(ll) / float64(lookback)
}

// ClassifyMTF classifies slow, medium and fast timeframes and derives
// alignment and trade permission.
func (tc *TrendClassifier) ClassifyMTF(slow, medium, fast []market.Candle) (MTFResult, error) {
	slowTrend, err := tc.Classify(slow)
	if err != nil {
		return MTFResult{}, err
	}
	mediumTrend, err := tc.Classify(medium)
	if err != nil {
		return MTFResult{}, err
	}
	fastTrend, err := tc.Classify(fast)
	if err != nil {
		return MTFResult{}, err
	}

	alignment := alignmentOf(slowTrend, mediumTrend)
	perm := tradePermission(slowTrend, mediumTrend, alignment)

	return MTFResult{
		Slow:       slowTrend,
		Medium:     mediumTrend,
		Fast:       fastTrend,
		Alignment:  alignment,
		Permission: perm,
	}, nil
}

func alignmentOf(slow, medium TrendLabel) Alignment {
	if slow.Bullish() && medium.Bullish() {
		return AlignBullish
	}
	if slow.Bearish() && medium.Bearish() {
		return AlignBearish
	}
	return AlignMixed
}

// tradePermission applies the higher-timeframe rule set: a strong slow
// trend forces directional-only trading, full alignment trades with the
// trend, conflicting directions block new entries, and no bias at all
// leaves both directions open at low confidence.
func tradePermission(slow, medium TrendLabel, alignment Alignment) Permission {
	switch {
	case slow == TrendStrongUp:
		return Permission{AllowLong, 0.9, "slow timeframe in strong uptrend, long only"}
	case slow == TrendStrongDown:
		return Permission{AllowShort, 0.9, "slow timeframe in strong downtrend, short only"}
	case alignment == AlignBullish:
		return Permission{AllowLong, 0.8, "slow and medium timeframes aligned bullish"}
	case alignment == AlignBearish:
		return Permission{AllowShort, 0.8, "slow and medium timeframes aligned bearish"}
	case slow == TrendNeutral && medium.Bullish():
		return Permission{AllowLong, 0.6, "slow neutral, medium bullish, cautious long"}
	case slow == TrendNeutral && medium.Bearish():
		return Permission{AllowShort, 0.6, "slow neutral, medium bearish, cautious short"}
	case slow == TrendNeutral && medium == TrendNeutral:
		return Permission{AllowBoth, 0.5, "no higher-timeframe bias, both directions open"}
	default:
		return Permission{AllowNone, 0.3, "timeframe conflict, no new entries"}
	}
}
