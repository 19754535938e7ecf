package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"ideaflow/internal/config"
	"ideaflow/internal/models"
)

type fakeLens struct {
	name  string
	score float64
	flags []string
	err   error
}

func (f fakeLens) Name() string { return f.name }

func (f fakeLens) Run(ctx context.Context, idea *models.Idea) (LensResult, error) {
	if f.err != nil {
		return LensResult{}, f.err
	}
	return LensResult{Score: f.score, Analysis: "stub", Flags: f.flags}, nil
}

func newTestPipeline(lenses ...Lens) *Pipeline {
	return NewPipeline(config.ValidationConfig{}, nil, lenses...)
}

func testIdea(t *testing.T, legs []models.TickerLeg, conviction float64) *models.Idea {
	t.Helper()
	raw, err := json.Marshal(legs)
	if err != nil {
		t.Fatalf("marshal legs: %v", err)
	}
	return &models.Idea{
		ID:         "idea-1",
		Title:      "test idea",
		Tickers:    raw,
		Conviction: conviction,
		Status:     models.IdeaStatusValidating,
	}
}

func TestVerdictBands(t *testing.T) {
	tests := []struct {
		scores  []float64
		verdict string
	}{
		{[]float64{0.9, 0.9, 0.9}, models.VerdictPass},
		{[]float64{0.1, 0.1, 0.1}, models.VerdictFail},
		{[]float64{0.5, 0.55, 0.5}, models.VerdictNeedsMoreData},
	}
	for _, tt := range tests {
		lenses := make([]Lens, 0, len(tt.scores))
		for i, s := range tt.scores {
			lenses = append(lenses, fakeLens{name: fmt.Sprintf("lens%d", i), score: s})
		}
		p := newTestPipeline(lenses...)
		result := p.Validate(context.Background(), testIdea(t, nil, 0.5))
		if result.Verdict != tt.verdict {
			t.Fatalf("scores %v: verdict = %s, want %s (weighted %.3f)",
				tt.scores, result.Verdict, tt.verdict, result.WeightedScore)
		}
	}
}

func TestScenarioBacktestFundamentalPass(t *testing.T) {
	p := newTestPipeline(
		fakeLens{name: "backtest", score: 0.8},
		fakeLens{name: "fundamental", score: 0.75},
	)
	result := p.Validate(context.Background(), testIdea(t, []models.TickerLeg{
		{Ticker: "AAPL", Direction: models.DirectionLong, Weight: 1.0},
	}, 0.8))
	if diff := result.WeightedScore - 0.775; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weighted score = %.6f, want 0.775", result.WeightedScore)
	}
	if result.Verdict != models.VerdictPass {
		t.Fatalf("verdict = %s, want PASS", result.Verdict)
	}
}

func TestLensFailureIsTolerated(t *testing.T) {
	p := newTestPipeline(
		fakeLens{name: "backtest", score: 0.9},
		fakeLens{name: "broken", err: fmt.Errorf("data source down")},
		fakeLens{name: "reasoning", score: 0.9},
	)
	result := p.Validate(context.Background(), testIdea(t, nil, 0.5))
	if got := result.LensScores["broken"]; got != 0.5 {
		t.Fatalf("unavailable lens score = %.2f, want 0.5", got)
	}
	found := false
	for _, flag := range result.Flags {
		if flag == "lens_unavailable:broken" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing lens_unavailable flag, got %v", result.Flags)
	}
	// (0.9 + 0.5 + 0.9) / 3 ≈ 0.767, above the pass threshold.
	if result.Verdict != models.VerdictPass {
		t.Fatalf("verdict = %s, want PASS despite one unavailable lens", result.Verdict)
	}
}

func TestHardFailFlagForcesFail(t *testing.T) {
	p := newTestPipeline(
		fakeLens{name: "backtest", score: 0.95},
		fakeLens{name: "data_analysis", score: 0.9, flags: []string{HardFailFlag + ":bad_direction"}},
	)
	result := p.Validate(context.Background(), testIdea(t, nil, 0.9))
	if result.Verdict != models.VerdictFail {
		t.Fatalf("verdict = %s, want FAIL on hard-fail flag", result.Verdict)
	}
}

func TestConfiguredWeights(t *testing.T) {
	p := NewPipeline(config.ValidationConfig{
		Weights: map[string]float64{"heavy": 3, "light": 1},
	}, nil,
		fakeLens{name: "heavy", score: 1.0},
		fakeLens{name: "light", score: 0.0},
	)
	result := p.Validate(context.Background(), testIdea(t, nil, 0.5))
	if diff := result.WeightedScore - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weighted score = %.4f, want 0.75", result.WeightedScore)
	}
}

func TestChainOfThoughtStages(t *testing.T) {
	p := newTestPipeline(fakeLens{name: "backtest", score: 0.7})
	result := p.Validate(context.Background(), testIdea(t, nil, 0.5))
	if len(result.ChainOfThought) < 4 {
		t.Fatalf("chain of thought has %d steps, want at least 4", len(result.ChainOfThought))
	}
	if result.ChainOfThought[0].Stage != "planning" {
		t.Fatalf("first stage = %s, want planning", result.ChainOfThought[0].Stage)
	}
	last := result.ChainOfThought[len(result.ChainOfThought)-1]
	if last.Stage != "synthesis" {
		t.Fatalf("last stage = %s, want synthesis", last.Stage)
	}
}

func TestDataAnalysisHardFailOnBadDirection(t *testing.T) {
	lens := DataAnalysisLens{}
	res, err := lens.Run(context.Background(), testIdea(t, []models.TickerLeg{
		{Ticker: "AAPL", Direction: "sideways", Weight: 1.0},
	}, 0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Flags) == 0 || !isHardFail(res.Flags[0]) {
		t.Fatalf("expected hard-fail flag, got %v", res.Flags)
	}
}
