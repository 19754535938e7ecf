package proposal

import (
	"math"
	"strings"

	"ideaflow/internal/config"
)

// CostSchedule holds the trading cost parameters for one instrument class,
// already scaled by risk appetite.
type CostSchedule struct {
	HalfSpreadBps     float64
	ImpactCoefficient float64
	ImpactExponent    float64
	CommissionRate    float64
	MinCommission     float64
	SECFeeRate        float64
}

// CostBreakdown is the per-trade output of the cost model. All values are in
// account currency except FillPrice and SlippagePct.
type CostBreakdown struct {
	SpreadCost  float64 `json:"spread_cost"`
	ImpactCost  float64 `json:"impact_cost"`
	Commission  float64 `json:"commission"`
	SECFee      float64 `json:"sec_fee"`
	TotalCost   float64 `json:"total_cost"`
	FillPrice   float64 `json:"fill_price"`
	SlippagePct float64 `json:"slippage_pct"`
}

// ComputeCost prices one order against a cost schedule. The fill is always at
// or worse than the reference price: buys fill above it, sells below it. A
// zero quantity is a no-op trade with zero cost and fill at reference.
func ComputeCost(s CostSchedule, price, quantity float64, sell bool) CostBreakdown {
	if quantity <= 0 || price <= 0 {
		return CostBreakdown{FillPrice: price}
	}
	notional := price * quantity

	spreadCost := (s.HalfSpreadBps / 10000) * notional
	impactCost := s.ImpactCoefficient * math.Pow(notional, s.ImpactExponent)
	commission := s.CommissionRate * notional
	if commission < s.MinCommission {
		commission = s.MinCommission
	}
	var secFee float64
	if sell {
		secFee = s.SECFeeRate * notional
	}

	slip := (spreadCost + impactCost) / quantity
	fill := price + slip
	if sell {
		fill = price - slip
	}

	return CostBreakdown{
		SpreadCost:  spreadCost,
		ImpactCost:  impactCost,
		Commission:  commission,
		SECFee:      secFee,
		TotalCost:   spreadCost + impactCost + commission + secFee,
		FillPrice:   fill,
		SlippagePct: (fill - price) / price,
	}
}

// riskMultiplier scales spread and impact parameters. Conservative schedules
// assume worse fills, aggressive ones assume better liquidity access.
func riskMultiplier(appetite string) float64 {
	switch strings.ToLower(appetite) {
	case "conservative":
		return 1.25
	case "aggressive":
		return 0.85
	default:
		return 1.0
	}
}

// CostModel resolves instrument classes to schedules.
type CostModel struct {
	schedules map[string]CostSchedule
	fallback  CostSchedule
}

// NewCostModel builds schedules from config, scaling spread and impact by
// the portfolio risk appetite. Unknown instrument classes fall back to the
// equity schedule.
func NewCostModel(cfg config.CostsConfig, riskAppetite string) *CostModel {
	if riskAppetite == "" {
		riskAppetite = cfg.RiskAppetite
	}
	mult := riskMultiplier(riskAppetite)
	m := &CostModel{schedules: make(map[string]CostSchedule, len(cfg.Schedules))}
	for class, sc := range cfg.Schedules {
		m.schedules[strings.ToLower(class)] = CostSchedule{
			HalfSpreadBps:     sc.HalfSpreadBps * mult,
			ImpactCoefficient: sc.ImpactCoefficient * mult,
			ImpactExponent:    sc.ImpactExponent,
			CommissionRate:    sc.CommissionRate,
			MinCommission:     sc.MinCommission,
			SECFeeRate:        sc.SECFeeRate,
		}
	}
	if eq, ok := m.schedules["equity"]; ok {
		m.fallback = eq
	}
	return m
}

// Schedule returns the cost schedule for an instrument class.
func (m *CostModel) Schedule(instrument string) CostSchedule {
	if m == nil {
		return CostSchedule{}
	}
	if s, ok := m.schedules[strings.ToLower(instrument)]; ok {
		return s
	}
	return m.fallback
}
