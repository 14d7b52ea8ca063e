package confluence

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"crypto-signal-engine/internal/analysis"
	"crypto-signal-engine/internal/indicators"
	"crypto-signal-engine/internal/market"
)

// FactorCaps is the point budget per factor. The caps must sum to
// MaxScore; NewScorer rejects any other configuration.
type FactorCaps struct {
	MTFAlignment  float64
	RSIExtreme    float64
	BollingerPos  float64
	SRProximity   float64
	VolumeSpike   float64
	MACDMomentum  float64
	FundingRate   float64
	BookImbalance float64
	MLProbability float64
}

// MaxScore is the total point budget across all factors.
const MaxScore = 100.0

// DefaultCaps is the standard factor budget.
func DefaultCaps() FactorCaps {
	return FactorCaps{
		MTFAlignment:  25,
		RSIExtreme:    20,
		BollingerPos:  10,
		SRProximity:   10,
		VolumeSpike:   10,
		MACDMomentum:  10,
		FundingRate:   5,
		BookImbalance: 5,
		MLProbability: 5,
	}
}

func (c FactorCaps) sum() float64 {
	return c.MTFAlignment + c.RSIExtreme + c.BollingerPos + c.SRProximity +
		c.VolumeSpike + c.MACDMomentum + c.FundingRate + c.BookImbalance +
		c.MLProbability
}

// Factor is one ledger entry: the raw input the factor saw, the signed
// points it contributed (positive favors LONG, negative favors SHORT)
// and why.
type Factor struct {
	Name   string
	Raw    float64
	Score  float64
	Cap    float64
	Reason string
}

// Inputs carries everything one scoring pass consumes. Optional feeds
// (funding, order book, ML) use indicators.Value so "missing" stays
// distinct from zero.
type Inputs struct {
	Price      float64
	LastCandle market.Candle

	MTF analysis.MTFResult

	RSI           indicators.Value
	PercentB      indicators.Value
	MACDHistogram indicators.Value
	VolumeRatio   indicators.Value
	ATR           indicators.Value

	Support    indicators.Value
	Resistance indicators.Value

	FundingRate   indicators.Value
	BookImbalance indicators.Value // -1..+1, bid minus ask depth share
	MLProbability indicators.Value // 0..1, missing means no model wired

	BreakerBlocked bool
	BreakerReason  string
	NewsBlackout   bool
}

// Verdict is the scoring outcome. When Vetoed is non-empty nothing may
// be traded regardless of score; pre-scoring vetoes additionally carry
// no factor ledger.
type Verdict struct {
	Emit       bool
	Direction  market.Side
	Score      float64
	LongScore  float64
	ShortScore float64
	Factors    []Factor
	Vetoed     string
}

// Scorer turns a bundle of analysis inputs into a single 0..100 score
// with a per-factor ledger.
type Scorer struct {
	caps     FactorCaps
	minScore float64
	log      zerolog.Logger
}

// NewScorer builds a scorer. Caps must sum to MaxScore.
func NewScorer(caps FactorCaps, minScore float64, log zerolog.Logger) (*Scorer, error) {
	if math.Abs(caps.sum()-MaxScore) > 1e-9 {
		return nil, fmt.Errorf("factor caps sum to %.2f, want %.0f", caps.sum(), MaxScore)
	}
	if minScore < 0 || minScore > MaxScore {
		return nil, fmt.Errorf("min score %.2f out of range 0..%.0f", minScore, MaxScore)
	}
	return &Scorer{
		caps:     caps,
		minScore: minScore,
		log:      log.With().Str("component", "confluence").Logger(),
	}, nil
}

// Score evaluates all factors and decides whether a signal is emitted.
// Hard vetoes short-circuit before any factor is scored.
func (s *Scorer) Score(in Inputs) Verdict {
	if veto := s.hardVeto(in); veto != "" {
		s.log.Debug().Str("veto", veto).Msg("scoring vetoed")
		return Verdict{Vetoed: veto}
	}

	factors := []Factor{
		s.scoreMTF(in),
		s.scoreRSI(in),
		s.scoreBollinger(in),
		s.scoreSR(in),
		s.scoreVolume(in),
		s.scoreMACD(in),
		s.scoreFunding(in),
		s.scoreBook(in),
		s.scoreML(in),
	}

	var long, short float64
	for _, f := range factors {
		if f.Score > 0 {
			long += f.Score
		} else {
			short += -f.Score
		}
	}

	v := Verdict{
		LongScore:  long,
		ShortScore: short,
		Factors:    factors,
	}

	switch {
	case long > short:
		v.Direction = market.SideLong
		v.Score = long
	case short > long:
		v.Direction = market.SideShort
		v.Score = short
	default:
		// Exact tie is indistinguishable from no edge.
		s.log.Debug().Float64("score", long).Msg("long/short tie, no signal")
		return v
	}

	// A directional permission is a constraint, not a vote: the opposite
	// side never emits no matter how the other factors stack up.
	if perm := in.MTF.Permission; (perm.Allowed == analysis.AllowLong && v.Direction == market.SideShort) ||
		(perm.Allowed == analysis.AllowShort && v.Direction == market.SideLong) {
		v.Vetoed = fmt.Sprintf("counter-trend %s blocked: %s", v.Direction, perm.Reason)
		s.log.Debug().Str("veto", v.Vetoed).Msg("scoring vetoed")
		return v
	}

	v.Emit = v.Score >= s.minScore
	evt := s.log.Info().
		Str("direction", string(v.Direction)).
		Float64("score", v.Score).
		Float64("long", long).
		Float64("short", short).
		Bool("emit", v.Emit)
	for _, f := range factors {
		if f.Score != 0 {
			evt = evt.Float64(f.Name, f.Score)
		}
	}
	evt.Msg("confluence scored")
	return v
}

func (s *Scorer) hardVeto(in Inputs) string {
	if in.BreakerBlocked {
		if in.BreakerReason != "" {
			return "circuit breaker: " + in.BreakerReason
		}
		return "circuit breaker active"
	}
	if in.NewsBlackout {
		return "news blackout window"
	}
	if in.MTF.Permission.Allowed == analysis.AllowNone {
		return "timeframe conflict: " + in.MTF.Permission.Reason
	}
	return ""
}

// scoreMTF scores the timeframe permission: full cap times confidence in
// the permitted direction. BOTH contributes a small lean in the fast
// timeframe's direction.
func (s *Scorer) scoreMTF(in Inputs) Factor {
	f := Factor{Name: "mtf_alignment", Cap: s.caps.MTFAlignment}
	perm := in.MTF.Permission
	f.Raw = perm.Confidence

	switch perm.Allowed {
	case analysis.AllowLong:
		f.Score = s.caps.MTFAlignment * perm.Confidence
		f.Reason = perm.Reason
	case analysis.AllowShort:
		f.Score = -s.caps.MTFAlignment * perm.Confidence
		f.Reason = perm.Reason
	case analysis.AllowBoth:
		lean := 0.2
		if in.MTF.Fast.Bearish() {
			lean = -0.2
		} else if !in.MTF.Fast.Bullish() {
			lean = 0
		}
		f.Score = s.caps.MTFAlignment * lean
		f.Reason = "both directions allowed, fast timeframe lean"
	}
	return f
}

// scoreRSI scores oversold toward LONG and overbought toward SHORT,
// scaled linearly past the 30/70 bands.
func (s *Scorer) scoreRSI(in Inputs) Factor {
	f := Factor{Name: "rsi_extreme", Cap: s.caps.RSIExtreme}
	if !in.RSI.Valid {
		f.Reason = "rsi unavailable"
		return f
	}
	rsi := in.RSI.Num
	f.Raw = rsi
	switch {
	case rsi < 30:
		f.Score = s.caps.RSIExtreme * clamp01((30-rsi)/30)
		f.Reason = fmt.Sprintf("oversold rsi %.1f", rsi)
	case rsi > 70:
		f.Score = -s.caps.RSIExtreme * clamp01((rsi-70)/30)
		f.Reason = fmt.Sprintf("overbought rsi %.1f", rsi)
	default:
		f.Reason = "rsi neutral"
	}
	return f
}

// scoreBollinger scores %B at the band extremes: below the lower band
// favors LONG, above the upper band favors SHORT.
func (s *Scorer) scoreBollinger(in Inputs) Factor {
	f := Factor{Name: "bollinger_position", Cap: s.caps.BollingerPos}
	if !in.PercentB.Valid {
		f.Reason = "bands unavailable"
		return f
	}
	pb := in.PercentB.Num
	f.Raw = pb
	switch {
	case pb < 0.2:
		f.Score = s.caps.BollingerPos * clamp01((0.2-pb)/0.2)
		f.Reason = fmt.Sprintf("price at lower band, %%B %.2f", pb)
	case pb > 0.8:
		f.Score = -s.caps.BollingerPos * clamp01((pb-0.8)/0.2)
		f.Reason = fmt.Sprintf("price at upper band, %%B %.2f", pb)
	default:
		f.Reason = "price inside bands"
	}
	return f
}

// scoreSR scores proximity to support (LONG) or resistance (SHORT)
// within one percent of price. Support wins a dead heat because a long
// off support risks less than a short into it.
func (s *Scorer) scoreSR(in Inputs) Factor {
	f := Factor{Name: "sr_proximity", Cap: s.caps.SRProximity}
	if in.Price <= 0 {
		f.Reason = "no price"
		return f
	}
	const proximityPct = 1.0

	supDist, resDist := math.Inf(1), math.Inf(1)
	if in.Support.Valid && in.Support.Num > 0 {
		supDist = math.Abs(in.Price-in.Support.Num) / in.Price * 100
	}
	if in.Resistance.Valid && in.Resistance.Num > 0 {
		resDist = math.Abs(in.Price-in.Resistance.Num) / in.Price * 100
	}

	switch {
	case supDist <= proximityPct && supDist <= resDist:
		f.Raw = supDist
		f.Score = s.caps.SRProximity * clamp01(1-supDist/proximityPct)
		f.Reason = fmt.Sprintf("support %.2f%% away", supDist)
	case resDist <= proximityPct:
		f.Raw = resDist
		f.Score = -s.caps.SRProximity * clamp01(1-resDist/proximityPct)
		f.Reason = fmt.Sprintf("resistance %.2f%% away", resDist)
	default:
		f.Reason = "no level nearby"
	}
	return f
}

// scoreVolume scores a volume spike in the direction of the bar that
// produced it. Volume alone has no direction.
func (s *Scorer) scoreVolume(in Inputs) Factor {
	f := Factor{Name: "volume_spike", Cap: s.caps.VolumeSpike}
	if !in.VolumeRatio.Valid {
		f.Reason = "volume history unavailable"
		return f
	}
	ratio := in.VolumeRatio.Num
	f.Raw = ratio
	if ratio < 1.5 {
		f.Reason = fmt.Sprintf("volume %.2fx average, no spike", ratio)
		return f
	}

	strength := clamp01((ratio - 1.5) / 1.5) // full cap at 3x average
	c := in.LastCandle
	switch {
	case c.Close > c.Open:
		f.Score = s.caps.VolumeSpike * strength
		f.Reason = fmt.Sprintf("%.2fx volume on an up bar", ratio)
	case c.Close < c.Open:
		f.Score = -s.caps.VolumeSpike * strength
		f.Reason = fmt.Sprintf("%.2fx volume on a down bar", ratio)
	default:
		f.Reason = fmt.Sprintf("%.2fx volume on a doji", ratio)
	}
	return f
}

// scoreMACD scores histogram sign and magnitude, with magnitude
// normalized against ATR so the factor is comparable across symbols.
func (s *Scorer) scoreMACD(in Inputs) Factor {
	f := Factor{Name: "macd_momentum", Cap: s.caps.MACDMomentum}
	if !in.MACDHistogram.Valid {
		f.Reason = "macd unavailable"
		return f
	}
	hist := in.MACDHistogram.Num
	f.Raw = hist

	strength := 1.0
	if in.ATR.Valid && in.ATR.Num > 0 {
		strength = clamp01(math.Abs(hist) / (0.25 * in.ATR.Num))
	}
	if hist > 0 {
		f.Score = s.caps.MACDMomentum * strength
		f.Reason = "macd histogram positive"
	} else if hist < 0 {
		f.Score = -s.caps.MACDMomentum * strength
		f.Reason = "macd histogram negative"
	} else {
		f.Reason = "macd flat"
	}
	return f
}

// scoreFunding is contrarian: crowded longs (strongly positive funding)
// favor SHORT and crowded shorts favor LONG. Full cap at 0.05% per
// interval.
func (s *Scorer) scoreFunding(in Inputs) Factor {
	f := Factor{Name: "funding_rate", Cap: s.caps.FundingRate}
	if !in.FundingRate.Valid {
		f.Reason = "funding feed unavailable"
		return f
	}
	rate := in.FundingRate.Num
	f.Raw = rate

	const neutral = 0.0001 // 0.01%, the usual baseline
	if math.Abs(rate) <= neutral {
		f.Reason = "funding near baseline"
		return f
	}
	strength := clamp01((math.Abs(rate) - neutral) / 0.0004)
	if rate > 0 {
		f.Score = -s.caps.FundingRate * strength
		f.Reason = fmt.Sprintf("longs paying %.4f%%, crowded long", rate*100)
	} else {
		f.Score = s.caps.FundingRate * strength
		f.Reason = fmt.Sprintf("shorts paying %.4f%%, crowded short", -rate*100)
	}
	return f
}

// scoreBook scores bid/ask depth imbalance, -1..+1, dead zone ±0.2.
func (s *Scorer) scoreBook(in Inputs) Factor {
	f := Factor{Name: "book_imbalance", Cap: s.caps.BookImbalance}
	if !in.BookImbalance.Valid {
		f.Reason = "order book unavailable"
		return f
	}
	imb := in.BookImbalance.Num
	f.Raw = imb
	if math.Abs(imb) <= 0.2 {
		f.Reason = "book balanced"
		return f
	}
	strength := clamp01((math.Abs(imb) - 0.2) / 0.6)
	if imb > 0 {
		f.Score = s.caps.BookImbalance * strength
		f.Reason = fmt.Sprintf("bid-heavy book, imbalance %.2f", imb)
	} else {
		f.Score = -s.caps.BookImbalance * strength
		f.Reason = fmt.Sprintf("ask-heavy book, imbalance %.2f", imb)
	}
	return f
}

// scoreML maps model probability linearly around 0.5. A missing model
// is treated as 0.5 and contributes nothing.
func (s *Scorer) scoreML(in Inputs) Factor {
	f := Factor{Name: "ml_probability", Cap: s.caps.MLProbability}
	p := 0.5
	if in.MLProbability.Valid {
		p = clamp01(in.MLProbability.Num)
	} else {
		f.Reason = "no model wired, neutral"
	}
	f.Raw = p
	f.Score = s.caps.MLProbability * (p - 0.5) / 0.5
	if f.Reason == "" {
		f.Reason = fmt.Sprintf("model probability %.2f", p)
	}
	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
