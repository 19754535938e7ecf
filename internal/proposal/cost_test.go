package proposal

import (
	"math"
	"testing"

	"ideaflow/internal/config"
)

func testCostsConfig() config.CostsConfig {
	return config.CostsConfig{
		RiskAppetite: "moderate",
		Schedules: map[string]config.CostScheduleConfig{
			"equity": {
				HalfSpreadBps:     2.5,
				ImpactCoefficient: 0.0000008,
				ImpactExponent:    1.25,
				CommissionRate:    0.0005,
				MinCommission:     1.0,
				SECFeeRate:        0.0000278,
			},
			"etf": {
				HalfSpreadBps:     1.5,
				ImpactCoefficient: 0.0000005,
				ImpactExponent:    1.2,
				CommissionRate:    0.0003,
				MinCommission:     1.0,
				SECFeeRate:        0.0000278,
			},
		},
	}
}

func TestZeroQuantityCostsNothing(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	cb := ComputeCost(model.Schedule("equity"), 190.0, 0, false)
	if cb.TotalCost != 0 {
		t.Fatalf("total cost = %f, want 0", cb.TotalCost)
	}
	if cb.FillPrice != 190.0 {
		t.Fatalf("fill price = %f, want reference 190", cb.FillPrice)
	}
	if cb.SlippagePct != 0 {
		t.Fatalf("slippage = %f, want 0", cb.SlippagePct)
	}
}

func TestBuyFillsAtOrWorseThanReference(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	cb := ComputeCost(model.Schedule("equity"), 190.0, 100, false)
	if cb.FillPrice <= 190.0 {
		t.Fatalf("buy fill = %f, want above reference", cb.FillPrice)
	}
	if cb.SlippagePct <= 0 {
		t.Fatalf("buy slippage = %f, want positive", cb.SlippagePct)
	}
	if cb.SECFee != 0 {
		t.Fatalf("sec fee on buy = %f, want 0", cb.SECFee)
	}
	wantTotal := cb.SpreadCost + cb.ImpactCost + cb.Commission
	if math.Abs(cb.TotalCost-wantTotal) > 1e-9 {
		t.Fatalf("total = %f, want %f", cb.TotalCost, wantTotal)
	}
}

func TestSellFillsBelowReferenceWithSECFee(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	cb := ComputeCost(model.Schedule("equity"), 190.0, 100, true)
	if cb.FillPrice >= 190.0 {
		t.Fatalf("sell fill = %f, want below reference", cb.FillPrice)
	}
	if cb.SECFee <= 0 {
		t.Fatalf("sec fee on sell = %f, want positive", cb.SECFee)
	}
}

func TestMinCommissionFloor(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	// Tiny notional: rate * notional is far under the floor.
	cb := ComputeCost(model.Schedule("equity"), 10.0, 1, false)
	if cb.Commission != 1.0 {
		t.Fatalf("commission = %f, want floor 1.0", cb.Commission)
	}
}

func TestImpactMonotoneInNotional(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	small := ComputeCost(model.Schedule("equity"), 190.0, 100, false)
	large := ComputeCost(model.Schedule("equity"), 190.0, 10000, false)
	if large.ImpactCost <= small.ImpactCost {
		t.Fatalf("impact not monotone: %f vs %f", small.ImpactCost, large.ImpactCost)
	}
	// Superlinear exponent: impact grows faster than notional.
	if large.ImpactCost/small.ImpactCost <= 100 {
		t.Fatalf("impact ratio = %f, want > 100x for 100x notional", large.ImpactCost/small.ImpactCost)
	}
}

func TestRiskAppetiteScalesFriction(t *testing.T) {
	conservative := NewCostModel(testCostsConfig(), "conservative")
	aggressive := NewCostModel(testCostsConfig(), "aggressive")
	cbC := ComputeCost(conservative.Schedule("equity"), 190.0, 100, false)
	cbA := ComputeCost(aggressive.Schedule("equity"), 190.0, 100, false)
	if cbC.SpreadCost <= cbA.SpreadCost {
		t.Fatalf("conservative spread %f not above aggressive %f", cbC.SpreadCost, cbA.SpreadCost)
	}
	// Commission is not risk-scaled.
	if cbC.Commission != cbA.Commission {
		t.Fatalf("commission differs across appetites: %f vs %f", cbC.Commission, cbA.Commission)
	}
}

func TestUnknownInstrumentFallsBackToEquity(t *testing.T) {
	model := NewCostModel(testCostsConfig(), "")
	got := model.Schedule("weird")
	want := model.Schedule("equity")
	if got != want {
		t.Fatalf("fallback schedule = %+v, want equity %+v", got, want)
	}
}
