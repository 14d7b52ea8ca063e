package config

// TradeMode is a named bundle of entry-quality and risk settings.
// Immutable once selected; switching modes never touches open positions.
type TradeMode struct {
	Name                 string
	MinScore             float64 // composite score required to emit a signal
	SessionFilter        bool    // gate entries to liquid UTC hours
	NewsFilter           bool    // honor macro blackout windows
	MTFStrict            bool    // require full slow+medium alignment
	MaxPositions         int
	RiskPerTrade         float64 // equity fraction
	MinRiskReward        float64
	CooldownAfterLosses  int // loss streak that starts the short pause
	ExpectedTradesPerDay string
}

var tradeModes = map[string]TradeMode{
	"CONSERVATIVE": {
		Name:                 "CONSERVATIVE",
		MinScore:             60,
		SessionFilter:        true,
		NewsFilter:           true,
		MTFStrict:            true,
		MaxPositions:         1,
		RiskPerTrade:         0.01,
		MinRiskReward:        3.0,
		CooldownAfterLosses:  2,
		ExpectedTradesPerDay: "1-3",
	},
	"MODERATE": {
		Name:                 "MODERATE",
		MinScore:             45,
		SessionFilter:        true,
		NewsFilter:           true,
		MTFStrict:            false,
		MaxPositions:         3,
		RiskPerTrade:         0.015,
		MinRiskReward:        2.5,
		CooldownAfterLosses:  2,
		ExpectedTradesPerDay: "3-6",
	},
	"AGGRESSIVE": {
		Name:                 "AGGRESSIVE",
		MinScore:             40,
		SessionFilter:        false,
		NewsFilter:           true,
		MTFStrict:            false,
		MaxPositions:         5,
		RiskPerTrade:         0.02,
		MinRiskReward:        2.0,
		CooldownAfterLosses:  3,
		ExpectedTradesPerDay: "5-15",
	},
	"SCALPER": {
		Name:                 "SCALPER",
		MinScore:             30,
		SessionFilter:        false,
		NewsFilter:           false,
		MTFStrict:            false,
		MaxPositions:         10,
		RiskPerTrade:         0.01,
		MinRiskReward:        1.5,
		CooldownAfterLosses:  4,
		ExpectedTradesPerDay: "20-50",
	},
	"ACCEL": {
		Name:                 "ACCEL",
		MinScore:             55,
		SessionFilter:        true,
		NewsFilter:           true,
		MTFStrict:            true,
		MaxPositions:         2,
		RiskPerTrade:         0.03,
		MinRiskReward:        2.5,
		CooldownAfterLosses:  2,
		ExpectedTradesPerDay: "2-6",
	},
}

// Preset looks up a trade mode by name.
func Preset(name string) (TradeMode, bool) {
	m, ok := tradeModes[name]
	return m, ok
}

// PresetNames lists the available modes.
func PresetNames() []string {
	names := make([]string, 0, len(tradeModes))
	for name := range tradeModes {
		names = append(names, name)
	}
	return names
}
