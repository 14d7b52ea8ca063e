package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-engine/internal/analysis"
	"crypto-signal-engine/internal/circuit"
	"crypto-signal-engine/internal/confluence"
	"crypto-signal-engine/internal/exits"
	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
	"crypto-signal-engine/internal/risk"
)

// Config drives the evaluation pipeline.
type Config struct {
	SlowTF            market.Timeframe
	MediumTF          market.Timeframe
	FastTF            market.Timeframe
	CandleLimit       int
	ATRStopMultiplier float64
	MinRiskReward     float64
	MTFStrict         bool
	NewsFilter        bool
	SignalTTL         time.Duration
	TPLevels          []exits.TPLevel
}

// Engine orchestrates one symbol evaluation end to end: fetch, classify,
// score, size, gate, place, and manage exits. All external effects go
// through the market interfaces.
type Engine struct {
	cfg     Config
	feed    market.CandleSource
	account market.AccountSource
	orders  market.OrderSink
	ml      market.ProbabilityEstimator
	macro   market.MacroVeto

	trends  *analysis.TrendClassifier
	regimes *analysis.RegimeClassifier
	scorer  *confluence.Scorer
	gate    *risk.Gate
	breaker *circuit.Breaker
	exits   *exits.Manager

	now func() time.Time
	log zerolog.Logger
}

// Deps bundles the engine's collaborators. ml and macro may be nil.
type Deps struct {
	Feed    market.CandleSource
	Account market.AccountSource
	Orders  market.OrderSink
	ML      market.ProbabilityEstimator
	Macro   market.MacroVeto
	Scorer  *confluence.Scorer
	Gate    *risk.Gate
	Breaker *circuit.Breaker
	Exits   *exits.Manager
}

// New wires an engine. A nil now uses the wall clock.
func New(cfg Config, deps Deps, log zerolog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	if len(cfg.TPLevels) == 0 {
		cfg.TPLevels = exits.DefaultLevels()
	}
	return &Engine{
		cfg:     cfg,
		feed:    deps.Feed,
		account: deps.Account,
		orders:  deps.Orders,
		ml:      deps.ML,
		macro:   deps.Macro,
		trends:  analysis.NewTrendClassifier(),
		regimes: analysis.NewRegimeClassifier(),
		scorer:  deps.Scorer,
		gate:    deps.Gate,
		breaker: deps.Breaker,
		exits:   deps.Exits,
		now:     now,
		log:     log.With().Str("component", "engine").Logger(),
	}
}

// Evaluate runs the full analysis pipeline for one symbol. A transient
// data failure is "no update this cycle", not an error; the engine never
// substitutes stale data for a failed fetch.
func (e *Engine) Evaluate(symbol string) (Evaluation, error) {
	ev := Evaluation{Symbol: symbol}

	slow, err := e.fetch(symbol, e.cfg.SlowTF)
	if err != nil {
		return e.fetchFailure(ev, err)
	}
	medium, err := e.fetch(symbol, e.cfg.MediumTF)
	if err != nil {
		return e.fetchFailure(ev, err)
	}
	fast, err := e.fetch(symbol, e.cfg.FastTF)
	if err != nil {
		return e.fetchFailure(ev, err)
	}

	mtf, err := e.trends.ClassifyMTF(slow, medium, fast)
	if err != nil {
		ev.Reason = fmt.Sprintf("trend classification: %v", err)
		return ev, nil
	}
	ev.MTF = mtf

	if e.cfg.MTFStrict && mtf.Permission.Confidence < 0.8 {
		ev.Reason = "strict mode requires full timeframe alignment"
		return ev, nil
	}

	regime, err := e.regimes.Classify(medium)
	if err != nil {
		ev.Reason = fmt.Sprintf("regime classification: %v", err)
		return ev, nil
	}
	ev.Regime = regime

	in, err := e.buildInputs(symbol, fast, medium, mtf)
	if err != nil {
		ev.Reason = fmt.Sprintf("indicator inputs: %v", err)
		return ev, nil
	}

	verdict := e.scorer.Score(in)
	ev.Verdict = verdict
	ev.Score = verdict.Score

	if verdict.Vetoed != "" {
		ev.Reason = verdict.Vetoed
		return ev, nil
	}
	if !verdict.Emit {
		ev.Reason = fmt.Sprintf("score %.1f below minimum", verdict.Score)
		return ev, nil
	}

	sig, reason := e.buildSignal(symbol, verdict, regime, in)
	if sig == nil {
		ev.Reason = reason
		return ev, nil
	}
	ev.Signal = sig
	return ev, nil
}

// SizeAndGate sizes an emitted signal, passes it through the risk gate
// and, when approved, places the entry order and hands the position to
// the exit manager.
func (e *Engine) SizeAndGate(sig *Signal) (risk.Decision, error) {
	if sig.Expired(e.now()) {
		return risk.Decision{Reason: "signal expired"}, nil
	}

	equity, err := e.account.GetEquity()
	if err != nil {
		return risk.Decision{}, fmt.Errorf("equity fetch: %w", err)
	}

	dec, err := e.gate.Approve(risk.Request{
		Symbol:    sig.Symbol,
		Side:      sig.Direction,
		Entry:     sig.Entry,
		Stop:      sig.Stop,
		Equity:    equity,
		RiskScale: sig.SizeMultiplier,
	})
	if err != nil || !dec.Approved {
		return dec, err
	}

	res, err := e.orders.PlaceOrder(market.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Quantity:   dec.Size.Quantity,
		Type:       market.OrderMarket,
		Price:      sig.Entry,
		StopLoss:   sig.Stop,
		TakeProfit: sig.TakeProfits[len(sig.TakeProfits)-1],
	})
	if err != nil || !res.Success {
		// Free the reserved slot; no position exists.
		e.gate.Release(sig.Symbol, 0)
		if err != nil {
			return risk.Decision{}, fmt.Errorf("place order: %w", err)
		}
		return risk.Decision{Reason: "order rejected: " + res.Error}, nil
	}

	if _, err := e.exits.Track(sig.ID, sig.Symbol, sig.Direction,
		sig.Entry, sig.Stop, sig.ATR, dec.Size.Quantity); err != nil {
		return risk.Decision{}, fmt.Errorf("track position: %w", err)
	}

	e.log.Info().
		Str("signal", sig.ID).
		Str("symbol", sig.Symbol).
		Str("side", string(sig.Direction)).
		Float64("qty", dec.Size.Quantity).
		Str("order", res.OrderID).
		Msg("position opened")
	return dec, nil
}

// OnPriceTick routes a price update to every open position on the
// symbol and applies the resulting exit events: stop moves go to the
// order sink, closes become reduce-only orders and settle into the risk
// ledger and circuit breaker.
func (e *Engine) OnPriceTick(symbol string, price float64) error {
	var firstErr error
	for _, id := range e.exits.OpenBySymbol(symbol) {
		events, err := e.exits.OnPriceTick(id, price)
		if err != nil {
			if firstErr == nil && !errors.Is(err, exits.ErrUnknownPosition) {
				firstErr = err
			}
			continue
		}
		for _, evt := range events {
			if err := e.applyExitEvent(evt); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// OnTradeClosed settles a finished position: the gate slot is released,
// daily risk state updated and the result fed to the circuit breaker.
func (e *Engine) OnTradeClosed(symbol string, pnl float64) {
	e.gate.Release(symbol, pnl)

	equity, err := e.account.GetEquity()
	if err != nil {
		e.log.Error().Err(err).Msg("equity fetch after close, breaker fed without equity")
		equity = 0
	}
	e.breaker.RecordTradeResult(pnl, equity)
}

func (e *Engine) fetch(symbol string, tf market.Timeframe) ([]market.Candle, error) {
	candles, err := e.feed.GetKlines(symbol, tf, e.cfg.CandleLimit)
	if err != nil {
		return nil, err
	}
	if err := market.ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// fetchFailure maps a transient feed failure to a skipped cycle and
// anything else to a hard error.
func (e *Engine) fetchFailure(ev Evaluation, err error) (Evaluation, error) {
	if errors.Is(err, market.ErrTransientUnavailable) {
		e.log.Warn().Str("symbol", ev.Symbol).Err(err).Msg("no market update this cycle")
		ev.Reason = "market data unavailable, cycle skipped"
		return ev, nil
	}
	return ev, err
}

// buildInputs assembles the confluence inputs from the fast-timeframe
// indicator set plus the optional external feeds.
func (e *Engine) buildInputs(symbol string, fast, medium []market.Candle, mtf analysis.MTFResult) (confluence.Inputs, error) {
	closes := market.Closes(fast)
	price := closes[len(closes)-1]

	atr := indicators.ATR(fast, 14).Last()
	if !atr.Valid || atr.Num <= 0 {
		return confluence.Inputs{}, indicators.ErrInsufficientData
	}

	levels := analysis.FindLevels(medium, 3)

	in := confluence.Inputs{
		Price:         price,
		LastCandle:    fast[len(fast)-1],
		MTF:           mtf,
		RSI:           indicators.RSI(closes, 14).Last(),
		PercentB:      indicators.Bollinger(closes, 20, 2).PercentB.Last(),
		MACDHistogram: indicators.MACD(closes, 12, 26, 9).Histogram.Last(),
		VolumeRatio:   indicators.VolumeRatio(fast, 20).Last(),
		ATR:           atr,
		Support:       levels.Support,
		Resistance:    levels.Resistance,
	}

	st := e.breaker.CanTrade()
	in.BreakerBlocked = st.Blocked
	in.BreakerReason = st.Reason

	if e.cfg.NewsFilter && e.macro != nil {
		if active, _ := e.macro.BlackoutActive(symbol, e.now()); active {
			in.NewsBlackout = true
		}
	}

	if e.ml != nil {
		features := []float64{in.RSI.Num, in.PercentB.Num, in.MACDHistogram.Num, atr.Num / price}
		if p, err := e.ml.PredictSuccessProbability(features); err == nil {
			in.MLProbability = indicators.Value{Num: p, Valid: true}
		} else {
			e.log.Warn().Err(err).Msg("ml estimator failed, factor treated as missing")
		}
	}
	return in, nil
}

// buildSignal turns an emitting verdict into a priced signal, or returns
// the reason it was discarded.
func (e *Engine) buildSignal(symbol string, verdict confluence.Verdict,
	regime analysis.RegimeAnalysis, in confluence.Inputs) (*Signal, string) {

	entry := in.Price
	atr := in.ATR.Num
	stopDist := e.cfg.ATRStopMultiplier * atr

	stop := entry - stopDist
	if verdict.Direction == market.SideShort {
		stop = entry + stopDist
	}

	tps := make([]float64, 0, len(e.cfg.TPLevels))
	var maxR float64
	for _, lv := range e.cfg.TPLevels {
		if verdict.Direction == market.SideLong {
			tps = append(tps, entry+lv.RMultiple*stopDist)
		} else {
			tps = append(tps, entry-lv.RMultiple*stopDist)
		}
		if lv.RMultiple > maxR {
			maxR = lv.RMultiple
		}
	}

	if maxR < e.cfg.MinRiskReward {
		return nil, fmt.Sprintf("risk:reward %.1f below minimum %.1f", maxR, e.cfg.MinRiskReward)
	}

	now := e.now()
	sig := &Signal{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Direction:      verdict.Direction,
		Entry:          entry,
		Stop:           stop,
		TakeProfits:    tps,
		Score:          verdict.Score,
		RiskReward:     maxR,
		ATR:            atr,
		SizeMultiplier: regime.SizeMultiplier,
		Regime:         regime.Regime,
		Factors:        verdict.Factors,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.cfg.SignalTTL),
	}
	if err := sig.validate(); err != nil {
		return nil, err.Error()
	}

	e.log.Info().
		Str("signal", sig.ID).
		Str("symbol", symbol).
		Str("side", string(sig.Direction)).
		Float64("score", sig.Score).
		Float64("entry", entry).
		Float64("stop", stop).
		Str("regime", string(regime.Regime)).
		Msg("signal emitted")
	return sig, ""
}

// applyExitEvent turns one lifecycle event into order-sink calls and
// close settlement.
func (e *Engine) applyExitEvent(evt exits.Event) error {
	switch evt.Type {
	case exits.EventBreakeven, exits.EventTrailMove:
		moved, err := e.orders.ModifyStop(evt.Symbol, evt.NewStop)
		if err != nil {
			return fmt.Errorf("modify stop %s: %w", evt.Symbol, err)
		}
		if !moved {
			return fmt.Errorf("modify stop %s: no working stop order to move", evt.Symbol)
		}
	case exits.EventPartialTP:
		if err := e.reduce(evt); err != nil {
			return err
		}
	case exits.EventFinalTP, exits.EventStopOut, exits.EventManualClose:
		if err := e.reduce(evt); err != nil {
			return err
		}
		e.OnTradeClosed(evt.Symbol, evt.RealizedPnL)
	}
	return nil
}

func (e *Engine) reduce(evt exits.Event) error {
	if evt.Quantity <= 0 {
		return nil
	}
	_, err := e.orders.PlaceOrder(market.OrderRequest{
		Symbol:     evt.Symbol,
		Side:       evt.Side.Opposite(),
		Quantity:   evt.Quantity,
		Type:       market.OrderMarket,
		Price:      evt.Price,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("reduce %s: %w", evt.Symbol, err)
	}
	return nil
}
