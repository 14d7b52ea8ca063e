package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State of the breaker. HALF_OPEN blocks new entries while letting open
// positions be managed; there is no fully-open state because exits must
// never be blocked.
type State string

const (
	StateClosed   State = "CLOSED"
	StateHalfOpen State = "HALF_OPEN"
)

// TripReason explains why the breaker engaged.
type TripReason string

const (
	ReasonLossStreak TripReason = "CONSECUTIVE_LOSSES"
	ReasonStreakMax  TripReason = "DAILY_LOSS_LIMIT"
	ReasonBigLoss    TripReason = "BIG_LOSS"
	ReasonManual     TripReason = "MANUAL"
)

// Status is the answer to "may I open a position right now". Callers get
// the reason and the remaining wait, never a bare bool.
type Status struct {
	Blocked          bool
	Reason           string
	RemainingMinutes int
}

// Config holds the escalation thresholds.
type Config struct {
	LossesBeforeCooldown int           // streak length that starts the short pause
	MaxConsecutiveLosses int           // streak length that stops trading until midnight
	ShortPause           time.Duration // pause at the streak threshold
	MediumPause          time.Duration // pause while the streak keeps growing
	BigLossFraction      float64       // single-trade loss, as equity fraction, that stops the day
}

// DefaultConfig mirrors the production escalation ladder.
func DefaultConfig() Config {
	return Config{
		LossesBeforeCooldown: 2,
		MaxConsecutiveLosses: 4,
		ShortPause:           30 * time.Minute,
		MediumPause:          120 * time.Minute,
		BigLossFraction:      0.03,
	}
}

// Breaker implements the tilt guard: escalating pauses after loss
// streaks and an unconditional stop for the day after a big loss. All
// state is day-scoped and clears at local midnight.
type Breaker struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time
	log zerolog.Logger

	streak        int
	cooldownUntil time.Time
	tripReason    TripReason
	day           time.Time // date the counters belong to
}

// NewBreaker builds a breaker with the given config. A nil now uses the
// wall clock.
func NewBreaker(cfg Config, log zerolog.Logger, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	b := &Breaker{
		cfg: cfg,
		now: now,
		log: log.With().Str("component", "circuit").Logger(),
	}
	b.day = dateOf(now())
	return b
}

// RecordTradeResult feeds one closed trade into the breaker. A win
// resets the streak but does not end a cooldown already running. Losses
// escalate: streak at threshold pauses ShortPause, a continuing streak
// pauses MediumPause, the max streak or a single loss of at least
// BigLossFraction of equity stops trading until midnight.
func (b *Breaker) RecordTradeResult(pnl, equity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	if pnl >= 0 {
		if b.streak > 0 {
			b.log.Info().Float64("pnl", pnl).Msg("win, loss streak reset")
		}
		b.streak = 0
		return
	}

	b.streak++
	b.log.Warn().Float64("pnl", pnl).Int("streak", b.streak).Msg("loss recorded")

	if equity > 0 && -pnl >= b.cfg.BigLossFraction*equity {
		b.trip(ReasonBigLoss, b.untilMidnight())
		return
	}
	if b.streak >= b.cfg.MaxConsecutiveLosses {
		b.trip(ReasonStreakMax, b.untilMidnight())
		return
	}
	if b.streak >= b.cfg.LossesBeforeCooldown {
		pause := b.cfg.MediumPause
		if b.streak == b.cfg.LossesBeforeCooldown {
			pause = b.cfg.ShortPause
		}
		b.trip(ReasonLossStreak, pause)
	}
}

// ForcePause engages a manual cooldown.
func (b *Breaker) ForcePause(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	b.trip(ReasonManual, d)
}

// CanTrade reports whether new entries are allowed right now.
func (b *Breaker) CanTrade() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	if b.cooldownUntil.IsZero() {
		return Status{}
	}
	now := b.now()
	if !now.Before(b.cooldownUntil) {
		b.log.Info().Msg("cooldown expired, trading allowed")
		b.cooldownUntil = time.Time{}
		b.tripReason = ""
		return Status{}
	}

	remaining := int(b.cooldownUntil.Sub(now).Minutes())
	return Status{
		Blocked:          true,
		Reason:           string(b.tripReason),
		RemainingMinutes: remaining,
	}
}

// State reports the breaker state without consuming cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	if !b.cooldownUntil.IsZero() && b.now().Before(b.cooldownUntil) {
		return StateHalfOpen
	}
	return StateClosed
}

// Streak reports the current consecutive-loss count.
func (b *Breaker) Streak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.streak
}

// trip engages a cooldown. Caller holds the lock.
func (b *Breaker) trip(reason TripReason, d time.Duration) {
	b.cooldownUntil = b.now().Add(d)
	b.tripReason = reason
	b.log.Warn().
		Str("reason", string(reason)).
		Str("until", b.cooldownUntil.Format("15:04")).
		Msg(fmt.Sprintf("breaker tripped for %s", d))
}

// rollover clears all state when the local date changes. Caller holds
// the lock.
func (b *Breaker) rollover() {
	today := dateOf(b.now())
	if today.Equal(b.day) {
		return
	}
	b.day = today
	b.streak = 0
	b.cooldownUntil = time.Time{}
	b.tripReason = ""
	b.log.Info().Msg("new day, breaker counters cleared")
}

// untilMidnight is the duration to the next local midnight.
func (b *Breaker) untilMidnight() time.Duration {
	now := b.now()
	midnight := dateOf(now).AddDate(0, 0, 1)
	return midnight.Sub(now)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
