package exits

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"crypto-signal-engine/internal/market"
)

// Phase is the per-position lifecycle stage. Partial take-profits are
// events overlaid on the phases, not phases themselves.
type Phase string

const (
	PhaseEntered        Phase = "ENTERED"
	PhaseBreakevenArmed Phase = "BREAKEVEN_ARMED"
	PhaseTrailing       Phase = "TRAILING"
	PhaseClosed         Phase = "CLOSED"
)

// EventType identifies what an exit event did.
type EventType string

const (
	EventPartialTP   EventType = "PARTIAL_TP"
	EventBreakeven   EventType = "BREAKEVEN"
	EventTrailMove   EventType = "TRAIL_MOVE"
	EventStopOut     EventType = "STOP_OUT"
	EventFinalTP     EventType = "FINAL_TP"
	EventManualClose EventType = "MANUAL_CLOSE"
)

// Event is one lifecycle action: a stop move or a (partial) close.
// Events carry everything the caller needs to act on them; once a
// closing event is returned the position no longer exists.
type Event struct {
	Type        EventType
	PositionID  string
	Symbol      string
	Side        market.Side
	Price       float64
	Quantity    float64 // closed quantity, zero for stop moves
	NewStop     float64 // stop after the event, zero for closes
	PnL         float64 // realized on this event
	RealizedPnL float64 // lifetime total, set when the event closes the position
	Note        string
}

// TPLevel is one partial take-profit checkpoint. Percent applies to the
// original quantity, so the ladder's percentages describe the whole
// position regardless of what already closed.
type TPLevel struct {
	RMultiple float64
	Percent   float64
	fired     bool
}

// DefaultLevels is the standard 30/40/30 ladder at 1R/2R/3R.
func DefaultLevels() []TPLevel {
	return []TPLevel{
		{RMultiple: 1.0, Percent: 30},
		{RMultiple: 2.0, Percent: 40},
		{RMultiple: 3.0, Percent: 30},
	}
}

// Config holds the stop-management parameters.
type Config struct {
	BreakevenAtR       float64 // profit in R that arms the breakeven move
	BreakevenBufferATR float64 // buffer past entry, in ATR fractions
	TrailStartR        float64 // profit in R that enables trailing
	TrailATRMultiplier float64 // trail distance from best price, in ATRs
	Levels             []TPLevel
}

// DefaultConfig mirrors the production exit ladder.
func DefaultConfig() Config {
	return Config{
		BreakevenAtR:       1.0,
		BreakevenBufferATR: 0.1,
		TrailStartR:        1.5,
		TrailATRMultiplier: 1.5,
		Levels:             DefaultLevels(),
	}
}

// Position is one tracked position's lifecycle state.
type Position struct {
	ID          string
	Symbol      string
	Side        market.Side
	Entry       float64
	InitialStop float64
	Stop        float64
	ATR         float64
	OriginalQty float64
	Remaining   float64
	Phase       Phase
	RealizedPnL float64

	bestPrice float64
	levels    []TPLevel
	breakeven bool
}

// rMultiple is current profit measured in initial-risk units.
func (p *Position) rMultiple(price float64) float64 {
	risk := p.Entry - p.InitialStop
	if p.Side == market.SideShort {
		risk = p.InitialStop - p.Entry
	}
	if risk <= 0 {
		return 0
	}
	if p.Side == market.SideLong {
		return (price - p.Entry) / risk
	}
	return (p.Entry - price) / risk
}

func (p *Position) pnl(price, qty float64) float64 {
	if p.Side == market.SideLong {
		return (price - p.Entry) * qty
	}
	return (p.Entry - price) * qty
}

var ErrUnknownPosition = errors.New("position not tracked")

// Manager runs the exit state machine for every open position. It emits
// events describing stop moves and closes; order placement is the
// caller's job. A position whose remaining quantity reaches zero is
// removed from tracking, so every tracked position is open.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	log       zerolog.Logger
	positions map[string]*Position
}

// NewManager builds a lifecycle manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if len(cfg.Levels) == 0 {
		cfg.Levels = DefaultLevels()
	}
	return &Manager{
		cfg:       cfg,
		log:       log.With().Str("component", "exits").Logger(),
		positions: make(map[string]*Position),
	}
}

// Track registers a freshly opened position.
func (m *Manager) Track(id, symbol string, side market.Side, entry, stop, atr, qty float64) (*Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("track %s: quantity must be positive", symbol)
	}
	if (side == market.SideLong && stop >= entry) || (side == market.SideShort && stop <= entry) {
		return nil, fmt.Errorf("track %s: stop %.4f on the wrong side of entry %.4f", symbol, stop, entry)
	}

	levels := make([]TPLevel, len(m.cfg.Levels))
	copy(levels, m.cfg.Levels)

	p := &Position{
		ID:          id,
		Symbol:      symbol,
		Side:        side,
		Entry:       entry,
		InitialStop: stop,
		Stop:        stop,
		ATR:         atr,
		OriginalQty: qty,
		Remaining:   qty,
		Phase:       PhaseEntered,
		bestPrice:   entry,
		levels:      levels,
	}

	m.mu.Lock()
	m.positions[id] = p
	m.mu.Unlock()

	m.log.Info().
		Str("id", id).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry", entry).
		Float64("stop", stop).
		Float64("qty", qty).
		Msg("position tracked")
	return p, nil
}

// Get returns a snapshot of a tracked position.
func (m *Manager) Get(id string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenIDs lists every tracked position.
func (m *Manager) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.positions))
	for id := range m.positions {
		ids = append(ids, id)
	}
	return ids
}

// OpenBySymbol lists open position IDs for one symbol.
func (m *Manager) OpenBySymbol(symbol string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.positions {
		if p.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnPriceTick advances one position's state machine for a new price.
// Re-delivering the same price is harmless: fired levels stay fired, the
// breakeven move happens once, and the trail never loosens.
func (m *Manager) OnPriceTick(id string, price float64) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[id]
	if !ok {
		return nil, ErrUnknownPosition
	}

	var events []Event

	// Stop hit closes the remainder before anything else can act.
	if stopHit(p, price) {
		ev := m.closeRemainder(p, p.Stop, EventStopOut, "stop hit")
		delete(m.positions, id)
		return append(events, ev), nil
	}

	if p.Side == market.SideLong && price > p.bestPrice {
		p.bestPrice = price
	}
	if p.Side == market.SideShort && price < p.bestPrice {
		p.bestPrice = price
	}

	r := p.rMultiple(price)

	events = append(events, m.firePartials(p, price, r)...)
	if p.Phase == PhaseClosed {
		delete(m.positions, id)
		return events, nil
	}

	if ev, moved := m.armBreakeven(p, r); moved {
		events = append(events, ev)
	}
	if ev, moved := m.advanceTrail(p, r); moved {
		events = append(events, ev)
	}
	return events, nil
}

// ManualClose closes the full remainder at the given price.
func (m *Manager) ManualClose(id string, price float64) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[id]
	if !ok {
		return Event{}, ErrUnknownPosition
	}
	ev := m.closeRemainder(p, price, EventManualClose, "manual close")
	delete(m.positions, id)
	return ev, nil
}

// firePartials fires every unfired level whose R threshold the current
// profit reaches, in ladder order. Quantities come off the original
// size; the last leg closes whatever remains.
func (m *Manager) firePartials(p *Position, price, r float64) []Event {
	var events []Event
	for i := range p.levels {
		lv := &p.levels[i]
		if lv.fired || r < lv.RMultiple {
			continue
		}
		lv.fired = true

		qty := p.OriginalQty * lv.Percent / 100
		if qty > p.Remaining {
			qty = p.Remaining
		}
		if qty <= 0 {
			continue
		}

		p.Remaining -= qty
		realized := p.pnl(price, qty)
		p.RealizedPnL += realized

		evType := EventPartialTP
		note := fmt.Sprintf("take profit at %.1fR, %.0f%% of position", lv.RMultiple, lv.Percent)
		if p.Remaining <= 1e-12 {
			p.Remaining = 0
			p.Phase = PhaseClosed
			evType = EventFinalTP
			note = fmt.Sprintf("final take profit at %.1fR", lv.RMultiple)
		}

		m.log.Info().
			Str("id", p.ID).
			Float64("price", price).
			Float64("qty", qty).
			Float64("pnl", realized).
			Msg(note)
		ev := Event{
			Type:       evType,
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Price:      price,
			Quantity:   qty,
			PnL:        realized,
			Note:       note,
		}
		if evType == EventFinalTP {
			ev.RealizedPnL = p.RealizedPnL
		}
		events = append(events, ev)
		if p.Phase == PhaseClosed {
			break
		}
	}
	return events
}

// armBreakeven moves the stop to entry plus a small ATR buffer the
// first time profit reaches the threshold. The move is irreversible.
func (m *Manager) armBreakeven(p *Position, r float64) (Event, bool) {
	if p.breakeven || r < m.cfg.BreakevenAtR {
		return Event{}, false
	}
	p.breakeven = true

	buffer := m.cfg.BreakevenBufferATR * p.ATR
	newStop := p.Entry + buffer
	if p.Side == market.SideShort {
		newStop = p.Entry - buffer
	}
	if !improves(p.Side, p.Stop, newStop) {
		// Stop already beyond breakeven, keep it.
		if p.Phase == PhaseEntered {
			p.Phase = PhaseBreakevenArmed
		}
		return Event{}, false
	}

	p.Stop = newStop
	if p.Phase == PhaseEntered {
		p.Phase = PhaseBreakevenArmed
	}
	m.log.Info().Str("id", p.ID).Float64("stop", newStop).Msg("stop moved to breakeven")
	return Event{
		Type:       EventBreakeven,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		NewStop:    newStop,
		Note:       "breakeven stop armed",
	}, true
}

// advanceTrail ratchets the stop behind the best seen price once profit
// reaches the trailing threshold. The stop only ever tightens.
func (m *Manager) advanceTrail(p *Position, r float64) (Event, bool) {
	if r < m.cfg.TrailStartR {
		return Event{}, false
	}
	if p.Phase != PhaseTrailing {
		p.Phase = PhaseTrailing
	}

	dist := m.cfg.TrailATRMultiplier * p.ATR
	candidate := p.bestPrice - dist
	if p.Side == market.SideShort {
		candidate = p.bestPrice + dist
	}
	if !improves(p.Side, p.Stop, candidate) {
		return Event{}, false
	}

	p.Stop = candidate
	m.log.Debug().Str("id", p.ID).Float64("stop", candidate).Msg("trailing stop advanced")
	return Event{
		Type:       EventTrailMove,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		NewStop:    candidate,
		Note:       "trailing stop advanced",
	}, true
}

// closeRemainder closes whatever is left at price. Caller holds the lock.
func (m *Manager) closeRemainder(p *Position, price float64, evType EventType, note string) Event {
	qty := p.Remaining
	realized := p.pnl(price, qty)
	p.RealizedPnL += realized
	p.Remaining = 0
	p.Phase = PhaseClosed

	m.log.Info().
		Str("id", p.ID).
		Float64("price", price).
		Float64("qty", qty).
		Float64("pnl", realized).
		Str("event", string(evType)).
		Msg(note)
	return Event{
		Type:        evType,
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Price:       price,
		Quantity:    qty,
		PnL:         realized,
		RealizedPnL: p.RealizedPnL,
		Note:        note,
	}
}

func stopHit(p *Position, price float64) bool {
	if p.Side == market.SideLong {
		return price <= p.Stop
	}
	return price >= p.Stop
}

// improves reports whether candidate tightens the stop for the side.
func improves(side market.Side, current, candidate float64) bool {
	if side == market.SideLong {
		return candidate > current
	}
	return candidate < current
}
