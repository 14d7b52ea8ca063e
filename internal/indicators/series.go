package indicators

import "errors"

// ErrInsufficientData indicates fewer candles than an indicator's warm-up
// window. Callers skip the evaluation cycle; a default value is never
// substituted.
var ErrInsufficientData = errors.New("insufficient data for indicator warm-up")

// Value is a single indicator sample. Valid is false inside the warm-up
// window — such samples are "not yet computable", not zero.
type Value struct {
	Num   float64
	Valid bool
}

// Series is an indicator output aligned index-for-index with its source
// candle sequence.
type Series []Value

// Last returns the final sample of the series.
func (s Series) Last() Value {
	if len(s) == 0 {
		return Value{}
	}
	return s[len(s)-1]
}

// At returns the sample at index i, or an invalid Value out of range.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return Value{}
	}
	return s[i]
}

// valid constructs a computed sample.
func valid(num float64) Value {
	return Value{Num: num, Valid: true}
}

// invalidSeries returns a series of n not-yet-computable samples.
func invalidSeries(n int) Series {
	return make(Series, n)
}
