package risk

import (
	"sync"
	"time"
)

// State is the day-scoped risk ledger: starting equity, realized loss
// and trade counts for the current local date. It is mutated only by
// trade-close events and resets itself at midnight.
type State struct {
	mu  sync.Mutex
	now func() time.Time

	day          time.Time
	startEquity  float64
	realizedLoss float64
	realizedPnL  float64
	wins, losses int
}

// NewState starts a ledger for today with the given equity. A nil now
// uses the wall clock.
func NewState(startEquity float64, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	s := &State{now: now, startEquity: startEquity}
	s.day = dateOf(now())
	return s
}

// OnTradeClosed records one closed trade's realized PnL.
func (s *State) OnTradeClosed(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()

	s.realizedPnL += pnl
	if pnl < 0 {
		s.realizedLoss += -pnl
		s.losses++
	} else {
		s.wins++
	}
}

// DailyLossFraction is today's realized loss relative to the day's
// starting equity. Zero when the day started with no equity recorded.
func (s *State) DailyLossFraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	if s.startEquity <= 0 {
		return 0
	}
	return s.realizedLoss / s.startEquity
}

// Snapshot returns today's counters.
func (s *State) Snapshot() (startEquity, realizedPnL float64, wins, losses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	return s.startEquity, s.realizedPnL, s.wins, s.losses
}

// ResetForDay re-bases the ledger, used on rollover with fresh equity.
func (s *State) ResetForDay(equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = dateOf(s.now())
	s.startEquity = equity
	s.realizedLoss = 0
	s.realizedPnL = 0
	s.wins, s.losses = 0, 0
}

// rollover clears counters when the local date changes. The new day's
// starting equity carries forward as start + realized until the caller
// re-bases with ResetForDay. Caller holds the lock.
func (s *State) rollover() {
	today := dateOf(s.now())
	if today.Equal(s.day) {
		return
	}
	s.day = today
	s.startEquity += s.realizedPnL
	s.realizedLoss = 0
	s.realizedPnL = 0
	s.wins, s.losses = 0, 0
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
