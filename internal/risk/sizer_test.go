package risk

import (
	"errors"
	"math"
	"testing"
)

func TestSizeDeterministicFormula(t *testing.T) {
	s := NewSizer(0.02, 5.0, 10.0, 0.001)

	// 10000 × 0.02 = 200 risked over a 2.0 stop distance = 100 units.
	res, err := s.Size(10000, 100, 98, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("unexpected rejection: %s", res.RejectionReason)
	}
	if res.Quantity != 100 {
		t.Errorf("quantity = %f, want 100", res.Quantity)
	}
	if res.RiskAmount != 200 {
		t.Errorf("risk amount = %f, want 200", res.RiskAmount)
	}
	if res.Notional != 10000 {
		t.Errorf("notional = %f, want 10000", res.Notional)
	}
}

func TestSizeScaleShrinksRisk(t *testing.T) {
	s := NewSizer(0.02, 5.0, 10.0, 0.001)

	res, err := s.Size(10000, 100, 98, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Quantity != 50 {
		t.Errorf("half-scale quantity = %f, want 50", res.Quantity)
	}
	if res.RiskAmount != 100 {
		t.Errorf("half-scale risk = %f, want 100", res.RiskAmount)
	}
}

func TestSizeZeroStopDistance(t *testing.T) {
	s := NewSizer(0.02, 5.0, 10.0, 0.001)
	_, err := s.Size(10000, 100, 100, 1)
	if !errors.Is(err, ErrInvalidStopDistance) {
		t.Fatalf("want ErrInvalidStopDistance, got %v", err)
	}
}

func TestSizeLotStepRoundsDownOnly(t *testing.T) {
	s := NewSizer(0.01, 5.0, 10.0, 0.1)

	// 1000 × 0.01 / 0.33 = 30.3030…, floored to the 0.1 step.
	res, err := s.Size(1000, 10, 9.67, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(res.Quantity, 30.3, 1e-9) {
		t.Errorf("quantity = %f, want 30.3 (never rounded up)", res.Quantity)
	}
}

func TestSizeRejectsBelowMinNotional(t *testing.T) {
	s := NewSizer(0.01, 5.0, 10.0, 0.001)

	// Tiny equity and a wide stop: notional lands under $5.
	res, err := s.Size(20, 100, 90, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid {
		t.Fatalf("expected min-notional rejection, got %+v", res)
	}
	if res.RejectionReason == "" {
		t.Error("rejection must carry a reason")
	}
}

func TestSizeRejectsBelowEquityFloor(t *testing.T) {
	s := NewSizer(0.02, 5.0, 10.0, 0.001)

	res, err := s.Size(9.99, 100, 98, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid {
		t.Fatal("equity below the floor must be rejected")
	}
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
