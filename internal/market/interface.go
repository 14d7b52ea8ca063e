package market

import "time"

// Side is the direction of a trade or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderType is the execution type for an order.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderRequest describes an order to be placed by the external order sink.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Quantity   float64
	Type       OrderType
	Price      float64 // limit price, 0 for market
	StopLoss   float64
	TakeProfit float64
	ReduceOnly bool
}

// OrderResult is the outcome reported by the order sink.
type OrderResult struct {
	Success bool
	OrderID string
	Error   string
}

// OpenPosition is the account view of an open position as reported by the
// account source. The engine's own richer Position model lives with the
// exit lifecycle manager.
type OpenPosition struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	Quantity   float64
	OpenedAt   time.Time
}

// CandleSource supplies ordered candle series per (symbol, timeframe).
// Implementations may fail with ErrTransientUnavailable; callers retry or
// skip the cycle.
type CandleSource interface {
	GetKlines(symbol string, timeframe Timeframe, limit int) ([]Candle, error)
}

// AccountSource supplies account equity and currently open positions.
type AccountSource interface {
	GetEquity() (float64, error)
	GetOpenPositions() ([]OpenPosition, error)
}

// OrderSink places and modifies orders on the exchange. The engine never
// retries these calls; transient failures belong to the implementation.
type OrderSink interface {
	PlaceOrder(req OrderRequest) (OrderResult, error)
	ModifyStop(symbol string, newStop float64) (bool, error)
}

// ProbabilityEstimator is an optional external ML scorer. Absence defaults
// to a neutral 0.5 and must never block the pipeline.
type ProbabilityEstimator interface {
	PredictSuccessProbability(features []float64) (float64, error)
}

// MacroVeto is an optional macro/narrative signal source consumed as a
// boolean veto (news blackout windows, sentiment regime).
type MacroVeto interface {
	BlackoutActive(symbol string, at time.Time) (bool, string)
}
