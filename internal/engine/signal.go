package engine

import (
	"fmt"
	"time"

	"crypto-signal-engine/internal/analysis"
	"crypto-signal-engine/internal/confluence"
	"crypto-signal-engine/internal/market"
)

// Signal is a fully specified trade candidate. It is immutable after
// construction and expires if not acted on within its TTL.
type Signal struct {
	ID             string
	Symbol         string
	Direction      market.Side
	Entry          float64
	Stop           float64
	TakeProfits    []float64
	Score          float64
	RiskReward     float64
	ATR            float64
	SizeMultiplier float64
	Regime         analysis.Regime
	Factors        []confluence.Factor
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the signal's TTL has lapsed.
func (s *Signal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// validate checks the price-ordering invariant: for a long the stop sits
// below entry and every take-profit above it, mirrored for a short, with
// take-profits strictly ascending in profitability.
func (s *Signal) validate() error {
	if len(s.TakeProfits) == 0 {
		return fmt.Errorf("signal %s: no take-profit levels", s.ID)
	}
	if s.Direction == market.SideLong {
		if s.Stop >= s.Entry {
			return fmt.Errorf("signal %s: long stop %.4f not below entry %.4f", s.ID, s.Stop, s.Entry)
		}
		prev := s.Entry
		for _, tp := range s.TakeProfits {
			if tp <= prev {
				return fmt.Errorf("signal %s: long take-profits not ascending past entry", s.ID)
			}
			prev = tp
		}
		return nil
	}
	if s.Stop <= s.Entry {
		return fmt.Errorf("signal %s: short stop %.4f not above entry %.4f", s.ID, s.Stop, s.Entry)
	}
	prev := s.Entry
	for _, tp := range s.TakeProfits {
		if tp >= prev {
			return fmt.Errorf("signal %s: short take-profits not descending past entry", s.ID)
		}
		prev = tp
	}
	return nil
}

// Evaluation is the outcome of one pipeline pass over a symbol. A nil
// Signal with a Reason means the pass completed and declined to trade.
type Evaluation struct {
	Symbol  string
	Signal  *Signal
	Score   float64
	Verdict confluence.Verdict
	Regime  analysis.RegimeAnalysis
	MTF     analysis.MTFResult
	Reason  string
}
