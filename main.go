package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-engine/config"
	"crypto-signal-engine/internal/circuit"
	"crypto-signal-engine/internal/confluence"
	"crypto-signal-engine/internal/engine"
	"crypto-signal-engine/internal/exits"
	"crypto-signal-engine/internal/market"
	"crypto-signal-engine/internal/risk"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load failed")
	}

	log := buildLogger(cfg.LoggingConfig)
	mode, _ := config.Preset(cfg.EngineConfig.Mode)
	log.Info().
		Str("mode", mode.Name).
		Float64("min_score", mode.MinScore).
		Int("max_positions", mode.MaxPositions).
		Float64("risk_per_trade", mode.RiskPerTrade).
		Msg("starting paper trading engine")

	// Synthetic market: deterministic feed plus an instant-fill account.
	feed := market.NewSyntheticFeed(time.Now().Truncate(time.Minute), 500)
	feed.AddSymbol("BTCUSDT", 65000, 0.0004, 0.004)
	feed.AddSymbol("ETHUSDT", 3200, 0.0003, 0.006)
	for _, sym := range cfg.EngineConfig.Symbols {
		if sym != "BTCUSDT" && sym != "ETHUSDT" {
			feed.AddSymbol(sym, 100, 0.0002, 0.008)
		}
	}
	account := market.NewPaperAccount(cfg.PaperConfig.StartEquity)

	scorer, err := confluence.NewScorer(confluence.DefaultCaps(), mode.MinScore, log)
	if err != nil {
		log.Fatal().Err(err).Msg("scorer init failed")
	}

	breaker := circuit.NewBreaker(circuit.Config{
		LossesBeforeCooldown: mode.CooldownAfterLosses,
		MaxConsecutiveLosses: cfg.CircuitConfig.MaxConsecutiveLosses,
		ShortPause:           time.Duration(cfg.CircuitConfig.ShortPauseMinutes) * time.Minute,
		MediumPause:          time.Duration(cfg.CircuitConfig.MediumPauseMinutes) * time.Minute,
		BigLossFraction:      cfg.CircuitConfig.BigLossFraction,
	}, log, nil)

	sizer := risk.NewSizer(mode.RiskPerTrade, cfg.RiskConfig.MinNotional,
		cfg.RiskConfig.EquityFloor, cfg.RiskConfig.QuantityStep)
	state := risk.NewState(cfg.PaperConfig.StartEquity, nil)

	limits := risk.Limits{
		MaxPositions:         mode.MaxPositions,
		MaxDailyLossFraction: cfg.RiskConfig.MaxDailyLoss,
		MaxCorrelation:       cfg.RiskConfig.MaxCorrelation,
		CorrelationWindow:    cfg.RiskConfig.CorrelationWindow,
	}
	if mode.SessionFilter {
		limits.SessionStartHour = cfg.RiskConfig.SessionStartHour
		limits.SessionEndHour = cfg.RiskConfig.SessionEndHour
	}
	returns := risk.CandleReturns{Feed: feed, Timeframe: market.Timeframe(cfg.EngineConfig.FastTimeframe)}
	gate := risk.NewGate(sizer, state, breaker, returns, limits, log, nil)

	exitMgr := exits.NewManager(exits.Config{
		BreakevenAtR:       cfg.ExitConfig.BreakevenAtR,
		BreakevenBufferATR: cfg.ExitConfig.BreakevenBufferATR,
		TrailStartR:        cfg.ExitConfig.TrailStartR,
		TrailATRMultiplier: cfg.ExitConfig.TrailATRMultiplier,
	}, log)

	eng := engine.New(engine.Config{
		SlowTF:            market.Timeframe(cfg.EngineConfig.SlowTimeframe),
		MediumTF:          market.Timeframe(cfg.EngineConfig.MediumTimeframe),
		FastTF:            market.Timeframe(cfg.EngineConfig.FastTimeframe),
		CandleLimit:       cfg.EngineConfig.CandleLimit,
		ATRStopMultiplier: cfg.EngineConfig.ATRStopMultiplier,
		MinRiskReward:     mode.MinRiskReward,
		MTFStrict:         mode.MTFStrict,
		NewsFilter:        mode.NewsFilter,
		SignalTTL:         time.Duration(cfg.EngineConfig.SignalTTLSeconds) * time.Second,
	}, engine.Deps{
		Feed:    feed,
		Account: account,
		Orders:  account,
		Scorer:  scorer,
		Gate:    gate,
		Breaker: breaker,
		Exits:   exitMgr,
	}, log, nil)

	run(cfg, eng, feed, account, log)
}

func run(cfg *config.Config, eng *engine.Engine, feed *market.SyntheticFeed,
	account *market.PaperAccount, log zerolog.Logger) {

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.EngineConfig.CycleSeconds) * time.Second)
	defer ticker.Stop()

	log.Info().Strs("symbols", cfg.EngineConfig.Symbols).Msg("evaluation loop started")
	for {
		select {
		case <-stop:
			log.Info().Msg("shutdown requested")
			return
		case <-ticker.C:
			cycle(cfg.EngineConfig.Symbols, eng, feed, account, log)
		}
	}
}

func cycle(symbols []string, eng *engine.Engine, feed *market.SyntheticFeed,
	account *market.PaperAccount, log zerolog.Logger) {

	for _, symbol := range symbols {
		// Manage open positions against the latest price first.
		if price, err := feed.LastPrice(symbol); err == nil {
			if err := eng.OnPriceTick(symbol, price); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("price tick handling failed")
			}
		}

		ev, err := eng.Evaluate(symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("evaluation failed")
			continue
		}
		if ev.Signal == nil {
			log.Debug().Str("symbol", symbol).Str("reason", ev.Reason).Msg("no signal")
			continue
		}

		dec, err := eng.SizeAndGate(ev.Signal)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("sizing failed")
			continue
		}
		if !dec.Approved {
			log.Info().Str("symbol", symbol).Str("reason", dec.Reason).Msg("entry blocked")
		}
	}

	if equity, err := account.GetEquity(); err == nil {
		log.Info().Float64("equity", equity).Msg("cycle complete")
	}
}

func buildLogger(lc config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if !lc.JSONFormat {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
