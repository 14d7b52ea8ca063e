package market

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SyntheticFeed generates deterministic OHLCV series per symbol for dry-run
// mode and tests. Series are seeded per symbol, so repeated calls return
// consistent, strictly time-ascending candles.
type SyntheticFeed struct {
	mu      sync.Mutex
	anchors map[string]syntheticAnchor
	start   time.Time
	bars    int
}

type syntheticAnchor struct {
	basePrice float64
	drift     float64
	vol       float64
	seed      int64
}

// NewSyntheticFeed creates a feed anchored at start with at most bars
// candles of history per timeframe.
func NewSyntheticFeed(start time.Time, bars int) *SyntheticFeed {
	return &SyntheticFeed{
		anchors: make(map[string]syntheticAnchor),
		start:   start,
		bars:    bars,
	}
}

// AddSymbol registers a symbol with a base price, per-bar drift fraction
// and volatility fraction. Drift > 0 produces an uptrending series.
func (f *SyntheticFeed) AddSymbol(symbol string, basePrice, drift, vol float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var seed int64
	for _, r := range symbol {
		seed = seed*31 + int64(r)
	}
	f.anchors[symbol] = syntheticAnchor{basePrice: basePrice, drift: drift, vol: vol, seed: seed}
}

// GetKlines implements CandleSource.
func (f *SyntheticFeed) GetKlines(symbol string, timeframe Timeframe, limit int) ([]Candle, error) {
	f.mu.Lock()
	anchor, ok := f.anchors[symbol]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %s", ErrTransientUnavailable, symbol)
	}
	if limit <= 0 || limit > f.bars {
		limit = f.bars
	}

	rng := rand.New(rand.NewSource(anchor.seed + int64(timeframe.Duration())))
	step := timeframe.Duration()

	candles := make([]Candle, 0, limit)
	price := anchor.basePrice
	openTime := f.start.Add(-time.Duration(limit) * step)

	for i := 0; i < limit; i++ {
		move := price * (anchor.drift + anchor.vol*rng.NormFloat64())
		open := price
		close := price + move
		spread := price * anchor.vol * math.Abs(rng.NormFloat64())
		high := math.Max(open, close) + spread
		low := math.Min(open, close) - spread
		volume := 1000 + 500*math.Abs(rng.NormFloat64())

		candles = append(candles, Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: openTime.Add(step - time.Millisecond),
		})

		price = close
		openTime = openTime.Add(step)
	}

	return candles, nil
}

// LastPrice returns the most recent synthetic close for a symbol.
func (f *SyntheticFeed) LastPrice(symbol string) (float64, error) {
	candles, err := f.GetKlines(symbol, TF15m, f.bars)
	if err != nil {
		return 0, err
	}
	return candles[len(candles)-1].Close, nil
}

// PaperAccount is an in-memory account and order sink for dry-run mode.
// Orders fill immediately at the requested or last-known price.
type PaperAccount struct {
	mu        sync.RWMutex
	equity    float64
	positions map[string]OpenPosition
	fills     []OrderRequest
}

// NewPaperAccount creates a paper account with a starting equity.
func NewPaperAccount(startEquity float64) *PaperAccount {
	return &PaperAccount{
		equity:    startEquity,
		positions: make(map[string]OpenPosition),
	}
}

// GetEquity implements AccountSource.
func (p *PaperAccount) GetEquity() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity, nil
}

// GetOpenPositions implements AccountSource.
func (p *PaperAccount) GetOpenPositions() ([]OpenPosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]OpenPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// PlaceOrder implements OrderSink. Opening orders create a tracked
// position; reduce-only orders shrink or remove it and settle the
// realized PnL into equity.
func (p *PaperAccount) PlaceOrder(req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Quantity <= 0 {
		return OrderResult{Success: false, Error: "quantity must be positive"}, nil
	}

	p.fills = append(p.fills, req)

	if req.ReduceOnly {
		pos, ok := p.positions[req.Symbol]
		if !ok {
			return OrderResult{Success: false, Error: "no position to reduce"}, nil
		}
		realized := (req.Price - pos.EntryPrice) * req.Quantity
		if pos.Side == SideShort {
			realized = (pos.EntryPrice - req.Price) * req.Quantity
		}
		p.equity += realized
		pos.Quantity -= req.Quantity
		if pos.Quantity <= 1e-12 {
			delete(p.positions, req.Symbol)
		} else {
			p.positions[req.Symbol] = pos
		}
	} else {
		p.positions[req.Symbol] = OpenPosition{
			Symbol:     req.Symbol,
			Side:       req.Side,
			EntryPrice: req.Price,
			Quantity:   req.Quantity,
			OpenedAt:   time.Now(),
		}
	}

	return OrderResult{Success: true, OrderID: uuid.NewString()}, nil
}

// ModifyStop implements OrderSink.
func (p *PaperAccount) ModifyStop(symbol string, newStop float64) (bool, error) {
	p.mu.RLock()
	_, ok := p.positions[symbol]
	p.mu.RUnlock()
	return ok, nil
}

// ApplyPnL settles a realized profit or loss into equity.
func (p *PaperAccount) ApplyPnL(pnl float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equity += pnl
}

// Fills returns all orders routed through the account, in order.
func (p *PaperAccount) Fills() []OrderRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OrderRequest, len(p.fills))
	copy(out, p.fills)
	return out
}
