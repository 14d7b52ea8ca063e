package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidStopDistance indicates entry == stop, which makes position
// sizing undefined.
var ErrInvalidStopDistance = errors.New("stop distance is zero")

// SizeResult is the sizing outcome. Invalid results carry the rejection
// reason; callers must not place an order from an invalid result.
type SizeResult struct {
	Quantity        float64
	RiskAmount      float64
	Notional        float64
	Valid           bool
	RejectionReason string
}

// Sizer computes position size from equity, risk fraction and stop
// distance. Quantity is quantized down to the instrument lot step with
// decimal arithmetic so float error never rounds a size up past the
// risk budget.
type Sizer struct {
	riskFraction float64
	minNotional  decimal.Decimal
	equityFloor  float64
	qtyStep      decimal.Decimal
}

// NewSizer builds a sizer. qtyStep <= 0 disables quantization.
func NewSizer(riskFraction, minNotional, equityFloor, qtyStep float64) *Sizer {
	return &Sizer{
		riskFraction: riskFraction,
		minNotional:  decimal.NewFromFloat(minNotional),
		equityFloor:  equityFloor,
		qtyStep:      decimal.NewFromFloat(qtyStep),
	}
}

// Size computes quantity = equity × riskFraction × scale / |entry − stop|.
// scale is the regime size multiplier; values <= 0 are treated as 1.
func (s *Sizer) Size(equity, entry, stop, scale float64) (SizeResult, error) {
	if scale <= 0 {
		scale = 1
	}
	if equity < s.equityFloor {
		return SizeResult{
			RejectionReason: fmt.Sprintf("equity $%.2f below floor $%.2f", equity, s.equityFloor),
		}, nil
	}

	stopDistance := math.Abs(entry - stop)
	if stopDistance == 0 {
		return SizeResult{}, ErrInvalidStopDistance
	}

	riskAmount := equity * s.riskFraction * scale
	qty := decimal.NewFromFloat(riskAmount / stopDistance)
	if s.qtyStep.IsPositive() {
		qty = qty.Div(s.qtyStep).Floor().Mul(s.qtyStep)
	}

	notional := qty.Mul(decimal.NewFromFloat(entry))
	if notional.LessThan(s.minNotional) {
		nf, _ := notional.Float64()
		mf, _ := s.minNotional.Float64()
		return SizeResult{
			RiskAmount:      riskAmount,
			Notional:        nf,
			RejectionReason: fmt.Sprintf("notional $%.2f below minimum $%.2f", nf, mf),
		}, nil
	}

	qf, _ := qty.Float64()
	nf, _ := notional.Float64()
	return SizeResult{
		Quantity:   qf,
		RiskAmount: riskAmount,
		Notional:   nf,
		Valid:      true,
	}, nil
}
