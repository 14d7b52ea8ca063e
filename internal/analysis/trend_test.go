package analysis

import (
	"errors"
	"testing"
	"time"

	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
)

// trendingCandles builds a series walking by step per bar, with highs and
// lows tracking the walk so structure ratios follow the direction.
func trendingCandles(start float64, step float64, n int) []market.Candle {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		next := price + step
		hi, lo := price, next
		if next > price {
			hi, lo = next, price
		}
		out[i] = market.Candle{
			OpenTime:  t0.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      hi + 0.1,
			Low:       lo - 0.1,
			Close:     next,
			Volume:    1000,
			CloseTime: t0.Add(time.Duration(i)*time.Hour + 59*time.Minute),
		}
		price = next
	}
	return out
}

func flatCandles(price float64, n int) []market.Candle {
	return trendingCandles(price, 0, n)
}

func TestClassifyStrongUptrend(t *testing.T) {
	tc := NewTrendClassifier()
	// 2% per bar: EMA8 pulls far above EMA21 and every bar is a higher high.
	candles := trendingCandles(100, 2, 60)

	label, err := tc.Classify(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != TrendStrongUp {
		t.Errorf("label = %s, want STRONG_UP", label)
	}
}

func TestClassifyStrongDowntrend(t *testing.T) {
	tc := NewTrendClassifier()
	candles := trendingCandles(500, -5, 60)

	label, err := tc.Classify(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != TrendStrongDown {
		t.Errorf("label = %s, want STRONG_DOWN", label)
	}
}

func TestClassifyFlatIsNeutral(t *testing.T) {
	tc := NewTrendClassifier()
	label, err := tc.Classify(flatCandles(100, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != TrendNeutral {
		t.Errorf("label = %s, want NEUTRAL", label)
	}
}

func TestClassifyInsufficientDataIsError(t *testing.T) {
	tc := NewTrendClassifier()
	_, err := tc.Classify(trendingCandles(100, 1, 10))
	if !errors.Is(err, indicators.ErrInsufficientData) {
		t.Fatalf("want ErrInsufficientData, got %v", err)
	}
}

func TestMTFAlignedBullishPermitsLongOnly(t *testing.T) {
	tc := NewTrendClassifier()
	up := trendingCandles(100, 2, 60)

	res, err := tc.ClassifyMTF(up, up, up)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Alignment != AlignBullish {
		t.Errorf("alignment = %s, want BULLISH", res.Alignment)
	}
	if res.Permission.Allowed != AllowLong {
		t.Errorf("allowed = %s, want LONG", res.Permission.Allowed)
	}
	if res.Permission.Confidence != 0.9 {
		t.Errorf("strong slow trend confidence = %f, want 0.9", res.Permission.Confidence)
	}
}

func TestMTFConflictIsHardVeto(t *testing.T) {
	tc := NewTrendClassifier()
	up := trendingCandles(100, 2, 60)

	// The veto case needs a non-strong conflict: a moderate downtrend
	// against a moderate uptrend.
	slowDown := trendingCandles(200, -0.25, 60)
	mediumUp := trendingCandles(100, 0.15, 60)

	res, err := tc.ClassifyMTF(slowDown, mediumUp, up)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Alignment != AlignMixed {
		t.Fatalf("alignment = %s, want MIXED (slow %s, medium %s)", res.Alignment, res.Slow, res.Medium)
	}
	if res.Permission.Allowed != AllowNone {
		t.Errorf("mixed alignment must veto, got %s", res.Permission.Allowed)
	}
	if res.Permission.Confidence != 0.3 {
		t.Errorf("veto confidence = %f, want 0.3", res.Permission.Confidence)
	}
}

func TestMTFCautiousEntryOnNeutralSlow(t *testing.T) {
	tc := NewTrendClassifier()
	neutral := flatCandles(100, 60)
	mediumUp := trendingCandles(100, 0.15, 60)
	fastUp := trendingCandles(100, 0.3, 60)

	res, err := tc.ClassifyMTF(neutral, mediumUp, fastUp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Slow != TrendNeutral {
		t.Fatalf("slow = %s, want NEUTRAL", res.Slow)
	}
	if !res.Medium.Bullish() {
		t.Fatalf("medium = %s, want bullish", res.Medium)
	}
	if res.Permission.Allowed != AllowLong || res.Permission.Confidence != 0.6 {
		t.Errorf("cautious case = %+v, want LONG at 0.6", res.Permission)
	}
}

func TestMTFNoBiasAllowsBothDirections(t *testing.T) {
	tc := NewTrendClassifier()
	flat := flatCandles(100, 60)

	res, err := tc.ClassifyMTF(flat, flat, flat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Permission.Allowed != AllowBoth || res.Permission.Confidence != 0.5 {
		t.Errorf("flat market permission = %+v, want BOTH at 0.5", res.Permission)
	}
}

func TestTradePermissionTable(t *testing.T) {
	cases := []struct {
		name       string
		slow       TrendLabel
		medium     TrendLabel
		allowed    TradeAllowed
		confidence float64
	}{
		{"strong slow up", TrendStrongUp, TrendDown, AllowLong, 0.9},
		{"strong slow down", TrendStrongDown, TrendUp, AllowShort, 0.9},
		{"aligned up", TrendUp, TrendUp, AllowLong, 0.8},
		{"aligned down", TrendDown, TrendDown, AllowShort, 0.8},
		{"neutral slow bullish medium", TrendNeutral, TrendUp, AllowLong, 0.6},
		{"neutral slow bearish medium", TrendNeutral, TrendDown, AllowShort, 0.6},
		{"both neutral", TrendNeutral, TrendNeutral, AllowBoth, 0.5},
		{"conflict", TrendUp, TrendDown, AllowNone, 0.3},
	}
	for _, c := range cases {
		perm := tradePermission(c.slow, c.medium, alignmentOf(c.slow, c.medium))
		if perm.Allowed != c.allowed || perm.Confidence != c.confidence {
			t.Errorf("%s: got %s@%.1f, want %s@%.1f",
				c.name, perm.Allowed, perm.Confidence, c.allowed, c.confidence)
		}
	}
}
