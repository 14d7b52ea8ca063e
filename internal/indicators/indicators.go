package indicators

import (
	"math"

	"crypto-signal-engine/internal/market"
)

// SMA computes a simple moving average over closes. Samples before
// period-1 are not computable.
func SMA(closes []float64, period int) Series {
	out := invalidSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = valid(sum / float64(period))
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period samples, so recomputation over an extended series never
// drifts on earlier indices.
func EMA(closes []float64, period int) Series {
	out := invalidSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	seed /= float64(period)

	multiplier := 2.0 / float64(period+1)
	ema := seed
	out[period-1] = valid(ema)
	for i := period; i < len(closes); i++ {
		ema = closes[i]*multiplier + ema*(1-multiplier)
		out[i] = valid(ema)
	}
	return out
}

// RSI computes the Relative Strength Index with Wilder smoothing.
// A period of zero average loss maps to 100, never NaN.
func RSI(closes []float64, period int) Series {
	out := invalidSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = valid(rsiFromAverages(avgGain, avgLoss))

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
		out[i] = valid(rsiFromAverages(avgGain, avgLoss))
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// TrueRange computes the per-bar True Range. Index 0 has no previous
// close and is not computable.
func TrueRange(candles []market.Candle) Series {
	out := invalidSeries(len(candles))
	for i := 1; i < len(candles); i++ {
		out[i] = valid(trueRange(candles[i], candles[i-1].Close))
	}
	return out
}

func trueRange(c market.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR computes the Average True Range as the rolling mean of True Range
// over period bars. First computable index is period.
func ATR(candles []market.Candle, period int) Series {
	out := invalidSeries(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	sum := 0.0
	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1].Close)
		sum += tr
		if i > period {
			sum -= trueRange(candles[i-period], candles[i-period-1].Close)
		}
		if i >= period {
			out[i] = valid(sum / float64(period))
		}
	}
	return out
}

// BollingerBands holds the three aligned band series plus derived width
// and %B series.
type BollingerBands struct {
	Upper    Series
	Middle   Series
	Lower    Series
	Width    Series // (upper-lower)/middle in percent
	PercentB Series // (close-lower)/(upper-lower)
}

// Bollinger computes SMA(period) ± k·stddev(period) bands over closes.
func Bollinger(closes []float64, period int, k float64) BollingerBands {
	n := len(closes)
	bands := BollingerBands{
		Upper:    invalidSeries(n),
		Middle:   SMA(closes, period),
		Lower:    invalidSeries(n),
		Width:    invalidSeries(n),
		PercentB: invalidSeries(n),
	}
	if period <= 1 || n < period {
		return bands
	}

	for i := period - 1; i < n; i++ {
		mid := bands.Middle[i].Num
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			diff := closes[j] - mid
			variance += diff * diff
		}
		std := math.Sqrt(variance / float64(period))

		upper := mid + k*std
		lower := mid - k*std
		bands.Upper[i] = valid(upper)
		bands.Lower[i] = valid(lower)
		if mid != 0 {
			bands.Width[i] = valid((upper - lower) / mid * 100)
		}
		if upper != lower {
			bands.PercentB[i] = valid((closes[i] - lower) / (upper - lower))
		}
	}
	return bands
}

// MACDResult holds the MACD line, its signal line and the histogram as
// aligned series. The signal line is a true EMA over the MACD history,
// not a scaled approximation.
type MACDResult struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// MACD computes MACD(fast, slow) with an EMA(signal) signal line.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{
		MACD:      invalidSeries(n),
		Signal:    invalidSeries(n),
		Histogram: invalidSeries(n),
	}
	if fast <= 0 || slow <= fast || signal <= 0 || n < slow {
		return res
	}

	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		res.MACD[i] = valid(fastEMA[i].Num - slowEMA[i].Num)
	}

	// Signal line: EMA over the computable MACD values, seeded with the
	// SMA of the first signal samples.
	firstSignal := slow - 1 + signal - 1
	if n <= firstSignal {
		return res
	}
	seed := 0.0
	for i := slow - 1; i <= firstSignal; i++ {
		seed += res.MACD[i].Num
	}
	seed /= float64(signal)

	multiplier := 2.0 / float64(signal+1)
	sig := seed
	res.Signal[firstSignal] = valid(sig)
	res.Histogram[firstSignal] = valid(res.MACD[firstSignal].Num - sig)
	for i := firstSignal + 1; i < n; i++ {
		sig = res.MACD[i].Num*multiplier + sig*(1-multiplier)
		res.Signal[i] = valid(sig)
		res.Histogram[i] = valid(res.MACD[i].Num - sig)
	}
	return res
}

// DirectionalResult holds ADX and the two directional index series.
type DirectionalResult struct {
	ADX     Series
	PlusDI  Series
	MinusDI Series
}

// ADX computes Wilder's directional movement system. DI lines become
// computable at index period, ADX at index 2·period.
func ADX(candles []market.Candle, period int) DirectionalResult {
	n := len(candles)
	res := DirectionalResult{
		ADX:     invalidSeries(n),
		PlusDI:  invalidSeries(n),
		MinusDI: invalidSeries(n),
	}
	if period <= 0 || n < 2*period+1 {
		return res
	}

	// Wilder smoothed accumulators, first formed over bars 1..period.
	var smTR, smPlusDM, smMinusDM float64
	dx := invalidSeries(n)

	for i := 1; i < n; i++ {
		tr := trueRange(candles[i], candles[i-1].Close)
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

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
			res.PlusDI[i] = valid(0)
			res.MinusDI[i] = valid(0)
			dx[i] = valid(0)
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		res.PlusDI[i] = valid(plusDI)
		res.MinusDI[i] = valid(minusDI)

		diSum := plusDI + minusDI
		if diSum == 0 {
			dx[i] = valid(0)
		} else {
			dx[i] = valid(100 * math.Abs(plusDI-minusDI) / diSum)
		}
	}

	// ADX: Wilder average of DX, seeded over the first period DX values.
	seed := 0.0
	for i := period; i < 2*period; i++ {
		seed += dx[i].Num
	}
	adx := seed / float64(period)
	res.ADX[2*period-1] = valid(adx)
	for i := 2 * period; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i].Num) / float64(period)
		res.ADX[i] = valid(adx)
	}
	return res
}

// Momentum computes percentage price change over period bars.
func Momentum(closes []float64, period int) Series {
	out := invalidSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	for i := period; i < len(closes); i++ {
		past := closes[i-period]
		if past == 0 {
			continue
		}
		out[i] = valid((closes[i] - past) / past * 100)
	}
	return out
}

// VolumeRatio computes current volume relative to the average of the
// preceding period bars (the current bar excluded from the average).
func VolumeRatio(candles []market.Candle, period int) Series {
	out := invalidSeries(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	sum := 0.0
	for i, c := range candles {
		if i >= period {
			if sum > 0 {
				out[i] = valid(c.Volume / (sum / float64(period)))
			}
			sum -= candles[i-period].Volume
		}
		sum += c.Volume
	}
	return out
}

// ATRPercentile reports where the final ATR value sits within the valid
// ATR history, 0-100.
func ATRPercentile(atr Series) Value {
	last := atr.Last()
	if !last.Valid {
		return Value{}
	}

	total, below := 0, 0
	for _, v := range atr {
		if !v.Valid {
			continue
		}
		total++
		if v.Num < last.Num {
			below++
		}
	}
	if total == 0 {
		return Value{}
	}
	return valid(float64(below) / float64(total) * 100)
}
