package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	EngineConfig  EngineConfig  `json:"engine"`
	RiskConfig    RiskConfig    `json:"risk"`
	CircuitConfig CircuitConfig `json:"circuit_breaker"`
	ExitConfig    ExitConfig    `json:"exits"`
	LoggingConfig LoggingConfig `json:"logging"`
	PaperConfig   PaperConfig   `json:"paper"`
}

// EngineConfig drives the evaluation pipeline.
type EngineConfig struct {
	Mode              string   `json:"mode"` // preset name, see presets.go
	Symbols           []string `json:"symbols"`
	SlowTimeframe     string   `json:"slow_timeframe"`
	MediumTimeframe   string   `json:"medium_timeframe"`
	FastTimeframe     string   `json:"fast_timeframe"`
	CandleLimit       int      `json:"candle_limit"`
	ATRStopMultiplier float64  `json:"atr_stop_multiplier"`
	SignalTTLSeconds  int      `json:"signal_ttl_seconds"`
	CycleSeconds      int      `json:"cycle_seconds"`
}

// RiskConfig holds sizing and admission limits not owned by the preset.
type RiskConfig struct {
	MinNotional        float64 `json:"min_notional"`
	EquityFloor        float64 `json:"equity_floor"`
	QuantityStep       float64 `json:"quantity_step"`
	MaxDailyLoss       float64 `json:"max_daily_loss"` // fraction, 0.06 = 6%
	MaxCorrelation     float64 `json:"max_correlation"`
	CorrelationWindow  int     `json:"correlation_window"`
	SessionStartHour   int     `json:"session_start_hour"` // UTC
	SessionEndHour     int     `json:"session_end_hour"`
}

// CircuitConfig holds the loss-streak escalation thresholds.
type CircuitConfig struct {
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	ShortPauseMinutes    int     `json:"short_pause_minutes"`
	MediumPauseMinutes   int     `json:"medium_pause_minutes"`
	BigLossFraction      float64 `json:"big_loss_fraction"`
}

// ExitConfig holds the stop-management ladder.
type ExitConfig struct {
	BreakevenAtR       float64 `json:"breakeven_at_r"`
	BreakevenBufferATR float64 `json:"breakeven_buffer_atr"`
	TrailStartR        float64 `json:"trail_start_r"`
	TrailATRMultiplier float64 `json:"trail_atr_multiplier"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// PaperConfig seeds the synthetic exchange used by the paper runner.
type PaperConfig struct {
	StartEquity float64 `json:"start_equity"`
	Seed        int64   `json:"seed"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if _, ok := Preset(cfg.EngineConfig.Mode); !ok {
		return nil, fmt.Errorf("unknown trade mode %q", cfg.EngineConfig.Mode)
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	e := &cfg.EngineConfig
	if e.Mode == "" {
		e.Mode = "MODERATE"
	}
	if len(e.Symbols) == 0 {
		e.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if e.SlowTimeframe == "" {
		e.SlowTimeframe = "4h"
	}
	if e.MediumTimeframe == "" {
		e.MediumTimeframe = "1h"
	}
	if e.FastTimeframe == "" {
		e.FastTimeframe = "15m"
	}
	if e.CandleLimit == 0 {
		e.CandleLimit = 100
	}
	if e.ATRStopMultiplier == 0 {
		e.ATRStopMultiplier = 1.5
	}
	if e.SignalTTLSeconds == 0 {
		e.SignalTTLSeconds = 300
	}
	if e.CycleSeconds == 0 {
		e.CycleSeconds = 60
	}

	r := &cfg.RiskConfig
	if r.MinNotional == 0 {
		r.MinNotional = 5.0
	}
	if r.EquityFloor == 0 {
		r.EquityFloor = 10.0
	}
	if r.QuantityStep == 0 {
		r.QuantityStep = 0.001
	}
	if r.MaxDailyLoss == 0 {
		r.MaxDailyLoss = 0.06
	}
	if r.MaxCorrelation == 0 {
		r.MaxCorrelation = 0.8
	}
	if r.CorrelationWindow == 0 {
		r.CorrelationWindow = 50
	}

	c := &cfg.CircuitConfig
	if c.MaxConsecutiveLosses == 0 {
		c.MaxConsecutiveLosses = 4
	}
	if c.ShortPauseMinutes == 0 {
		c.ShortPauseMinutes = 30
	}
	if c.MediumPauseMinutes == 0 {
		c.MediumPauseMinutes = 120
	}
	if c.BigLossFraction == 0 {
		c.BigLossFraction = 0.03
	}

	x := &cfg.ExitConfig
	if x.BreakevenAtR == 0 {
		x.BreakevenAtR = 1.0
	}
	if x.BreakevenBufferATR == 0 {
		x.BreakevenBufferATR = 0.1
	}
	if x.TrailStartR == 0 {
		x.TrailStartR = 1.5
	}
	if x.TrailATRMultiplier == 0 {
		x.TrailATRMultiplier = 1.5
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.PaperConfig.StartEquity == 0 {
		cfg.PaperConfig.StartEquity = 10000
	}
	if cfg.PaperConfig.Seed == 0 {
		cfg.PaperConfig.Seed = 42
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.EngineConfig.Mode = getEnvOrDefault("ENGINE_MODE", cfg.EngineConfig.Mode)
	cfg.EngineConfig.CycleSeconds = getEnvIntOrDefault("ENGINE_CYCLE_SECONDS", cfg.EngineConfig.CycleSeconds)

	cfg.RiskConfig.MaxDailyLoss = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", cfg.RiskConfig.MaxDailyLoss)
	cfg.RiskConfig.MaxCorrelation = getEnvFloatOrDefault("RISK_MAX_CORRELATION", cfg.RiskConfig.MaxCorrelation)

	cfg.CircuitConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cfg.CircuitConfig.MaxConsecutiveLosses)
	cfg.CircuitConfig.ShortPauseMinutes = getEnvIntOrDefault("CIRCUIT_SHORT_PAUSE_MINUTES", cfg.CircuitConfig.ShortPauseMinutes)
	cfg.CircuitConfig.MediumPauseMinutes = getEnvIntOrDefault("CIRCUIT_MEDIUM_PAUSE_MINUTES", cfg.CircuitConfig.MediumPauseMinutes)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"

	cfg.PaperConfig.StartEquity = getEnvFloatOrDefault("PAPER_START_EQUITY", cfg.PaperConfig.StartEquity)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
