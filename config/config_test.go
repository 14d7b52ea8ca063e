package config

import (
	"os"
	"testing"
)

func TestPresetLookup(t *testing.T) {
	cases := []struct {
		name         string
		minScore     float64
		maxPositions int
		risk         float64
		minRR        float64
		cooldown     int
	}{
		{"CONSERVATIVE", 60, 1, 0.01, 3.0, 2},
		{"MODERATE", 45, 3, 0.015, 2.5, 2},
		{"AGGRESSIVE", 40, 5, 0.02, 2.0, 3},
		{"SCALPER", 30, 10, 0.01, 1.5, 4},
		{"ACCEL", 55, 2, 0.03, 2.5, 2},
	}
	for _, c := range cases {
		mode, ok := Preset(c.name)
		if !ok {
			t.Fatalf("preset %s missing", c.name)
		}
		if mode.MinScore != c.minScore || mode.MaxPositions != c.maxPositions ||
			mode.RiskPerTrade != c.risk || mode.MinRiskReward != c.minRR ||
			mode.CooldownAfterLosses != c.cooldown {
			t.Errorf("%s = %+v, want score %v positions %v risk %v rr %v cooldown %v",
				c.name, mode, c.minScore, c.maxPositions, c.risk, c.minRR, c.cooldown)
		}
	}

	if _, ok := Preset("YOLO"); ok {
		t.Error("unknown preset must not resolve")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EngineConfig.Mode != "MODERATE" {
		t.Errorf("default mode = %s, want MODERATE", cfg.EngineConfig.Mode)
	}
	if cfg.RiskConfig.MinNotional != 5.0 {
		t.Errorf("min notional = %f, want 5", cfg.RiskConfig.MinNotional)
	}
	if cfg.CircuitConfig.MaxConsecutiveLosses != 4 {
		t.Errorf("max losses = %d, want 4", cfg.CircuitConfig.MaxConsecutiveLosses)
	}
	if cfg.ExitConfig.TrailATRMultiplier != 1.5 {
		t.Errorf("trail multiplier = %f, want 1.5", cfg.ExitConfig.TrailATRMultiplier)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("ENGINE_MODE", "SCALPER")
	os.Setenv("RISK_MAX_DAILY_LOSS", "0.04")
	defer os.Unsetenv("ENGINE_MODE")
	defer os.Unsetenv("RISK_MAX_DAILY_LOSS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EngineConfig.Mode != "SCALPER" {
		t.Errorf("mode = %s, want SCALPER from the environment", cfg.EngineConfig.Mode)
	}
	if cfg.RiskConfig.MaxDailyLoss != 0.04 {
		t.Errorf("max daily loss = %f, want 0.04", cfg.RiskConfig.MaxDailyLoss)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	os.Setenv("ENGINE_MODE", "NOPE")
	defer os.Unsetenv("ENGINE_MODE")

	if _, err := Load(); err == nil {
		t.Fatal("unknown mode must fail loading")
	}
}
