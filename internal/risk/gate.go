package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-engine/internal/circuit"
	"crypto-signal-engine/internal/market"
)

// BreakerCheck is the slice of the circuit breaker the gate consumes.
type BreakerCheck interface {
	CanTrade() circuit.Status
}

// ReturnsProvider supplies trailing close-to-close returns for the
// correlation veto.
type ReturnsProvider interface {
	RecentReturns(symbol string, bars int) ([]float64, error)
}

// Limits are the gate's hard caps.
type Limits struct {
	MaxPositions         int
	MaxDailyLossFraction float64
	MaxCorrelation       float64
	CorrelationWindow    int
	SessionStartHour     int // UTC, inclusive
	SessionEndHour       int // UTC, exclusive; equal to start disables the filter
}

// Request asks the gate for permission to open one position.
type Request struct {
	Symbol    string
	Side      market.Side
	Entry     float64
	Stop      float64
	Equity    float64
	RiskScale float64 // regime size multiplier; <= 0 means 1
}

// Decision is the gate verdict. An approved decision has already
// reserved the position slot; the caller must Release it if the order
// is not placed.
type Decision struct {
	Approved bool
	Reason   string
	Size     SizeResult
}

type slot struct {
	side market.Side
}

// Gate is the single admission point for new positions. One mutex spans
// every check and the slot reservation, so concurrent evaluations can
// never jointly exceed the position or loss caps.
type Gate struct {
	mu      sync.Mutex
	sizer   *Sizer
	state   *State
	breaker BreakerCheck
	returns ReturnsProvider
	limits  Limits
	now     func() time.Time
	log     zerolog.Logger

	open map[string]slot
}

// NewGate wires the gate. returns may be nil, which disables the
// correlation veto; now nil uses the wall clock.
func NewGate(sizer *Sizer, state *State, breaker BreakerCheck, returns ReturnsProvider,
	limits Limits, log zerolog.Logger, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		sizer:   sizer,
		state:   state,
		breaker: breaker,
		returns: returns,
		limits:  limits,
		now:     now,
		log:     log.With().Str("component", "riskgate").Logger(),
		open:    make(map[string]slot),
	}
}

// Approve runs every admission check and, on success, reserves the
// position slot before returning. Checks run cheapest-first; the first
// failure wins.
func (g *Gate) Approve(req Request) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st := g.breaker.CanTrade(); st.Blocked {
		return g.reject(req, fmt.Sprintf("circuit breaker: %s (%dm remaining)", st.Reason, st.RemainingMinutes)), nil
	}
	if !g.inSession() {
		return g.reject(req, fmt.Sprintf("outside trading session %02d-%02d UTC",
			g.limits.SessionStartHour, g.limits.SessionEndHour)), nil
	}
	if _, dup := g.open[req.Symbol]; dup {
		return g.reject(req, "position already open for symbol"), nil
	}
	if len(g.open) >= g.limits.MaxPositions {
		return g.reject(req, fmt.Sprintf("max positions reached: %d/%d", len(g.open), g.limits.MaxPositions)), nil
	}
	if frac := g.state.DailyLossFraction(); frac >= g.limits.MaxDailyLossFraction {
		return g.reject(req, fmt.Sprintf("daily loss limit reached: %.1f%%", frac*100)), nil
	}

	if reason, err := g.correlationVeto(req); err != nil {
		return Decision{}, err
	} else if reason != "" {
		return g.reject(req, reason), nil
	}

	size, err := g.sizer.Size(req.Equity, req.Entry, req.Stop, req.RiskScale)
	if err != nil {
		return Decision{}, err
	}
	if !size.Valid {
		return g.reject(req, size.RejectionReason), nil
	}

	g.open[req.Symbol] = slot{side: req.Side}
	g.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", size.Quantity).
		Float64("risk", size.RiskAmount).
		Msg("entry approved")
	return Decision{Approved: true, Size: size}, nil
}

// Release frees a reserved slot and books realized PnL into the daily
// ledger. Safe to call for an unknown symbol.
func (g *Gate) Release(symbol string, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.open[symbol]; !ok {
		return
	}
	delete(g.open, symbol)
	g.state.OnTradeClosed(pnl)
	g.log.Info().Str("symbol", symbol).Float64("pnl", pnl).Msg("position released")
}

// OpenCount reports reserved slots.
func (g *Gate) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}

// correlationVeto rejects when the candidate's trailing returns
// correlate past the cap with any same-side open position. Opposite
// sides hedge, so only same-side exposure stacks.
func (g *Gate) correlationVeto(req Request) (string, error) {
	if g.returns == nil || g.limits.MaxCorrelation <= 0 || len(g.open) == 0 {
		return "", nil
	}

	candidate, err := g.returns.RecentReturns(req.Symbol, g.limits.CorrelationWindow)
	if err != nil {
		return "", fmt.Errorf("correlation check for %s: %w", req.Symbol, err)
	}

	for sym, sl := range g.open {
		if sl.side != req.Side {
			continue
		}
		other, err := g.returns.RecentReturns(sym, g.limits.CorrelationWindow)
		if err != nil {
			return "", fmt.Errorf("correlation check for %s: %w", sym, err)
		}
		if corr := ReturnsCorrelation(candidate, other); corr > g.limits.MaxCorrelation {
			return fmt.Sprintf("correlated exposure: %s vs %s r=%.2f", req.Symbol, sym, corr), nil
		}
	}
	return "", nil
}

func (g *Gate) inSession() bool {
	if g.limits.SessionStartHour == g.limits.SessionEndHour {
		return true
	}
	h := g.now().UTC().Hour()
	start, end := g.limits.SessionStartHour, g.limits.SessionEndHour
	if start < end {
		return h >= start && h < end
	}
	// Session wraps midnight.
	return h >= start || h < end
}

func (g *Gate) reject(req Request, reason string) Decision {
	g.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("reason", reason).
		Msg("entry rejected")
	return Decision{Reason: reason}
}
