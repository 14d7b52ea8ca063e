package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-engine/internal/circuit"
	"crypto-signal-engine/internal/market"
)

type stubBreaker struct {
	status circuit.Status
}

func (s *stubBreaker) CanTrade() circuit.Status { return s.status }

type stubReturns struct {
	series map[string][]float64
}

func (s *stubReturns) RecentReturns(symbol string, bars int) ([]float64, error) {
	return s.series[symbol], nil
}

func testGate(breaker *stubBreaker, returns ReturnsProvider, limits Limits, now func() time.Time) *Gate {
	sizer := NewSizer(0.02, 5.0, 10.0, 0.001)
	state := NewState(10000, now)
	return NewGate(sizer, state, breaker, returns, limits, zerolog.Nop(), now)
}

func defaultLimits() Limits {
	return Limits{
		MaxPositions:         2,
		MaxDailyLossFraction: 0.06,
		MaxCorrelation:       0.8,
		CorrelationWindow:    10,
	}
}

func longReq(symbol string) Request {
	return Request{Symbol: symbol, Side: market.SideLong, Entry: 100, Stop: 98, Equity: 10000, RiskScale: 1}
}

func TestApproveReservesSlot(t *testing.T) {
	g := testGate(&stubBreaker{}, nil, defaultLimits(), nil)

	dec, err := g.Approve(longReq("BTCUSDT"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Approved {
		t.Fatalf("unexpected rejection: %s", dec.Reason)
	}
	if g.OpenCount() != 1 {
		t.Errorf("open count = %d, want 1", g.OpenCount())
	}

	// The same symbol cannot be opened twice.
	dup, err := g.Approve(longReq("BTCUSDT"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup.Approved {
		t.Error("duplicate symbol must be rejected")
	}
}

func TestMaxPositionsEnforced(t *testing.T) {
	g := testGate(&stubBreaker{}, nil, defaultLimits(), nil)

	for _, sym := range []string{"AAAUSDT", "BBBUSDT"} {
		if dec, _ := g.Approve(longReq(sym)); !dec.Approved {
			t.Fatalf("%s should be approved: %s", sym, dec.Reason)
		}
	}
	dec, _ := g.Approve(longReq("CCCUSDT"))
	if dec.Approved {
		t.Fatal("third position must be rejected at the cap of 2")
	}

	// Releasing one slot frees admission.
	g.Release("AAAUSDT", 25)
	if dec, _ := g.Approve(longReq("CCCUSDT")); !dec.Approved {
		t.Errorf("slot freed, expected approval, got: %s", dec.Reason)
	}
}

func TestBreakerBlocksAdmission(t *testing.T) {
	b := &stubBreaker{status: circuit.Status{Blocked: true, Reason: "CONSECUTIVE_LOSSES", RemainingMinutes: 12}}
	g := testGate(b, nil, defaultLimits(), nil)

	dec, _ := g.Approve(longReq("BTCUSDT"))
	if dec.Approved {
		t.Fatal("breaker block must reject admission")
	}
	if g.OpenCount() != 0 {
		t.Error("rejected request must not hold a slot")
	}
}

func TestDailyLossCapBlocksAdmission(t *testing.T) {
	g := testGate(&stubBreaker{}, nil, defaultLimits(), nil)

	// Burn 6% of the 10000 starting equity.
	if dec, _ := g.Approve(longReq("AAAUSDT")); !dec.Approved {
		t.Fatal("setup approval failed")
	}
	g.Release("AAAUSDT", -600)

	dec, _ := g.Approve(longReq("BBBUSDT"))
	if dec.Approved {
		t.Fatal("daily loss at the cap must reject admission")
	}
}

func TestCorrelationVetoSameSideOnly(t *testing.T) {
	up := []float64{0.01, 0.02, -0.01, 0.03, 0.01, 0.02, -0.02, 0.01, 0.02, 0.01}
	returns := &stubReturns{series: map[string][]float64{
		"AAAUSDT": up,
		"BBBUSDT": up, // perfectly correlated with AAA
	}}
	g := testGate(&stubBreaker{}, returns, defaultLimits(), nil)

	if dec, _ := g.Approve(longReq("AAAUSDT")); !dec.Approved {
		t.Fatal("first position should be approved")
	}

	// Same side, correlation 1.0: vetoed.
	dec, err := g.Approve(longReq("BBBUSDT"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Approved {
		t.Fatal("correlated same-side exposure must be vetoed")
	}

	// Opposite side hedges; the veto does not apply.
	short := longReq("BBBUSDT")
	short.Side = market.SideShort
	short.Stop = 102
	if dec, _ := g.Approve(short); !dec.Approved {
		t.Errorf("opposite side should pass the correlation check, got: %s", dec.Reason)
	}
}

func TestSessionFilter(t *testing.T) {
	limits := defaultLimits()
	limits.SessionStartHour = 8
	limits.SessionEndHour = 20

	at := func(hour int) func() time.Time {
		return func() time.Time {
			return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
		}
	}

	inside := testGate(&stubBreaker{}, nil, limits, at(12))
	if dec, _ := inside.Approve(longReq("BTCUSDT")); !dec.Approved {
		t.Errorf("12:30 UTC is inside the 08-20 session, got: %s", dec.Reason)
	}

	outside := testGate(&stubBreaker{}, nil, limits, at(22))
	if dec, _ := outside.Approve(longReq("BTCUSDT")); dec.Approved {
		t.Error("22:30 UTC is outside the 08-20 session")
	}
}

func TestSessionWrapsMidnight(t *testing.T) {
	limits := defaultLimits()
	limits.SessionStartHour = 22
	limits.SessionEndHour = 4

	at := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	g := testGate(&stubBreaker{}, nil, limits, func() time.Time { return at })
	if dec, _ := g.Approve(longReq("BTCUSDT")); !dec.Approved {
		t.Errorf("23:00 UTC is inside a 22-04 session, got: %s", dec.Reason)
	}
}

func TestStateDailyRollover(t *testing.T) {
	clock := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	st := NewState(10000, now)

	st.OnTradeClosed(-300)
	if f := st.DailyLossFraction(); !almostEqual(f, 0.03, 1e-9) {
		t.Errorf("loss fraction = %f, want 0.03", f)
	}

	clock = clock.Add(15 * time.Hour) // past midnight
	if f := st.DailyLossFraction(); f != 0 {
		t.Errorf("loss fraction after rollover = %f, want 0", f)
	}

	// The new day's base carries yesterday's realized result.
	start, pnl, wins, losses := st.Snapshot()
	if start != 9700 || pnl != 0 || wins != 0 || losses != 0 {
		t.Errorf("snapshot after rollover = %v %v %v %v, want 9700 0 0 0", start, pnl, wins, losses)
	}
}
