package market

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSeriesOrdering(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	good := []Candle{
		{OpenTime: t0},
		{OpenTime: t0.Add(time.Hour)},
		{OpenTime: t0.Add(2 * time.Hour)},
	}
	if err := ValidateSeries(good); err != nil {
		t.Errorf("ascending series rejected: %v", err)
	}

	dup := []Candle{
		{OpenTime: t0},
		{OpenTime: t0},
	}
	if err := ValidateSeries(dup); !errors.Is(err, ErrUnorderedSeries) {
		t.Errorf("duplicate timestamp: got %v, want ErrUnorderedSeries", err)
	}

	backwards := []Candle{
		{OpenTime: t0.Add(time.Hour)},
		{OpenTime: t0},
	}
	if err := ValidateSeries(backwards); !errors.Is(err, ErrUnorderedSeries) {
		t.Errorf("descending series: got %v, want ErrUnorderedSeries", err)
	}
}

func TestReturnsComputation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{OpenTime: t0, Close: 100},
		{OpenTime: t0.Add(time.Hour), Close: 110},
		{OpenTime: t0.Add(2 * time.Hour), Close: 99},
	}
	rets := Returns(candles)
	if len(rets) != 2 {
		t.Fatalf("returns length = %d, want 2", len(rets))
	}
	if rets[0] != 0.10 {
		t.Errorf("rets[0] = %f, want 0.10", rets[0])
	}
	if rets[1] != -0.10 {
		t.Errorf("rets[1] = %f, want -0.10", rets[1])
	}
}

func TestSyntheticFeedDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	feed := NewSyntheticFeed(start, 200)
	feed.AddSymbol("BTCUSDT", 65000, 0.0002, 0.005)

	a, err := feed.GetKlines("BTCUSDT", TF15m, 100)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	b, _ := feed.GetKlines("BTCUSDT", TF15m, 100)

	if len(a) != 100 {
		t.Fatalf("got %d candles, want 100", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candle %d differs between identical requests", i)
		}
	}
	if err := ValidateSeries(a); err != nil {
		t.Errorf("synthetic series unordered: %v", err)
	}
	for i, c := range a {
		if c.High < c.Low || c.High < c.Close || c.Low > c.Close {
			t.Errorf("candle %d violates OHLC bounds: %+v", i, c)
		}
	}
}

func TestSyntheticFeedUnknownSymbol(t *testing.T) {
	feed := NewSyntheticFeed(time.Now(), 100)
	if _, err := feed.GetKlines("NOPEUSDT", TF1h, 50); !errors.Is(err, ErrTransientUnavailable) {
		t.Errorf("unknown symbol: got %v, want ErrTransientUnavailable", err)
	}
}

func TestPaperAccountReduceOnlyLifecycle(t *testing.T) {
	acct := NewPaperAccount(10000)

	open := OrderRequest{Symbol: "BTCUSDT", Side: SideLong, Quantity: 10, Type: OrderMarket, Price: 100}
	if res, _ := acct.PlaceOrder(open); !res.Success {
		t.Fatalf("open rejected: %s", res.Error)
	}

	reduce := OrderRequest{Symbol: "BTCUSDT", Side: SideShort, Quantity: 4, Type: OrderMarket, Price: 110, ReduceOnly: true}
	if res, _ := acct.PlaceOrder(reduce); !res.Success {
		t.Fatalf("reduce rejected: %s", res.Error)
	}

	positions, _ := acct.GetOpenPositions()
	if len(positions) != 1 || positions[0].Quantity != 6 {
		t.Fatalf("positions = %+v, want one of quantity 6", positions)
	}
	// 4 units closed 10 points in profit settle into equity.
	if equity, _ := acct.GetEquity(); equity != 10040 {
		t.Errorf("equity after partial = %f, want 10040", equity)
	}

	final := reduce
	final.Quantity = 6
	acct.PlaceOrder(final)
	positions, _ = acct.GetOpenPositions()
	if len(positions) != 0 {
		t.Errorf("fully reduced position should be removed, got %+v", positions)
	}
	if equity, _ := acct.GetEquity(); equity != 10100 {
		t.Errorf("equity after full close = %f, want 10100", equity)
	}

	// Reducing a missing position fails without panicking.
	if res, _ := acct.PlaceOrder(reduce); res.Success {
		t.Error("reduce with no position must fail")
	}

	acct.ApplyPnL(-250)
	equity, _ := acct.GetEquity()
	if equity != 9850 {
		t.Errorf("equity = %f, want 9850", equity)
	}
}
