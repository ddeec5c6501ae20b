package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"signal-bridge/internal/signal"
)

// Config holds position sizing parameters.
type Config struct {
	MaxTradeSize      float64 `json:"max_trade_size"`
	MinTradeSize      float64 `json:"min_trade_size"`
	RiskPercentage    float64 `json:"risk_percentage"`    // percent of balance put at risk per signal
	ReferenceDistance float64 `json:"reference_distance"` // stop distance that earns the full MaxTradeSize
	RiskUnitPerLot    float64 `json:"risk_unit_per_lot"`  // account currency at risk per 1.0 lot
}

// DefaultConfig returns the stock sizing parameters.
func DefaultConfig() Config {
	return Config{
		MaxTradeSize:      0.1,
		MinTradeSize:      0.01,
		RiskPercentage:    2,
		ReferenceDistance: 50,
		RiskUnitPerLot:    1000,
	}
}

var minLot = decimal.New(1, -2)

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxTradeSize <= 0 || math.IsNaN(c.MaxTradeSize) {
		c.MaxTradeSize = def.MaxTradeSize
	}
	if c.MaxTradeSize < 0.01 {
		c.MaxTradeSize = 0.01
	}
	if c.MinTradeSize < 0.01 || math.IsNaN(c.MinTradeSize) {
		c.MinTradeSize = 0.01
	}
	if c.MinTradeSize > c.MaxTradeSize {
		c.MinTradeSize = c.MaxTradeSize
	}
	if c.ReferenceDistance <= 0 {
		c.ReferenceDistance = def.ReferenceDistance
	}
	if c.RiskUnitPerLot <= 0 {
		c.RiskUnitPerLot = def.RiskUnitPerLot
	}
	if c.RiskPercentage <= 0 {
		c.RiskPercentage = def.RiskPercentage
	}
	return c
}

// Size scales MaxTradeSize down linearly once the stop is wider than
// ReferenceDistance. The result is in (0, MaxTradeSize] with two decimals.
func Size(sig signal.TradeSignal, cfg Config) float64 {
	cfg = cfg.normalized()
	dist := math.Abs(sig.EntryPrice() - sig.StopLoss)
	vol := cfg.MaxTradeSize
	if dist > 0 {
		vol = math.Min(cfg.MaxTradeSize, cfg.MaxTradeSize*(cfg.ReferenceDistance/dist))
	}
	return clamp(vol, cfg)
}

// SizeForAccount caps Size by the balance risk budget:
// balance * RiskPercentage/100 / RiskUnitPerLot.
func SizeForAccount(sig signal.TradeSignal, cfg Config, balance float64) float64 {
	cfg = cfg.normalized()
	budget := balance * cfg.RiskPercentage / 100 / cfg.RiskUnitPerLot
	return clamp(math.Min(Size(sig, cfg), budget), cfg)
}

// SplitVolume divides total across n targets, truncated to two decimals so
// count*per never exceeds total. When total/n would fall below the minimum
// lot only the first count targets get a lot; callers skip the rest.
func SplitVolume(total float64, n int, cfg Config) (per float64, count int) {
	cfg = cfg.normalized()
	if n <= 0 {
		n = 1
	}
	floor := decimal.NewFromFloat(cfg.MinTradeSize).Round(2)
	if floor.LessThan(minLot) {
		floor = minLot
	}
	vol := decimal.NewFromFloat(total)
	if vol.LessThan(floor) {
		return floor.InexactFloat64(), 1
	}

	count = n
	split := vol.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	if split.LessThan(floor) {
		count = int(vol.Div(floor).Floor().IntPart())
		split = vol.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	}
	return split.InexactFloat64(), count
}

func clamp(vol float64, cfg Config) float64 {
	if math.IsNaN(vol) || vol < cfg.MinTradeSize {
		vol = cfg.MinTradeSize
	}
	if vol > cfg.MaxTradeSize {
		vol = cfg.MaxTradeSize
	}
	v := decimal.NewFromFloat(vol).Round(2)
	ceiling := decimal.NewFromFloat(cfg.MaxTradeSize).Truncate(2)
	if v.GreaterThan(ceiling) {
		v = ceiling
	}
	if v.LessThan(minLot) {
		v = minLot
	}
	return v.InexactFloat64()
}
