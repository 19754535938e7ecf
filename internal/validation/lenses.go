package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"ideaflow/internal/models"
)

// PriceSource is the market-data capability lenses are allowed to read from.
type PriceSource interface {
	FetchPrice(ctx context.Context, ticker string) (float64, error)
}

// BacktestLens scores an idea by conviction and how concentrated its legs
// are. A stand-in for a full historical backtest: high-conviction,
// diversified theses score better.
type BacktestLens struct{}

func (BacktestLens) Name() string { return "backtest" }

func (BacktestLens) Run(ctx context.Context, idea *models.Idea) (LensResult, error) {
	legs := legsOf(idea)
	if len(legs) == 0 {
		return LensResult{
			Score:    0,
			Analysis: "no tickers to backtest",
			Flags:    []string{HardFailFlag + ":no_tickers"},
		}, nil
	}
	concentration := maxWeight(legs)
	score := 0.35 + 0.5*idea.Conviction - 0.2*concentration
	return LensResult{
		Score:    clamp01(score),
		Analysis: fmt.Sprintf("conviction %.2f across %d legs, max leg weight %.2f", idea.Conviction, len(legs), concentration),
	}, nil
}

// FundamentalLens checks that every leg is quotable and scores by coverage.
// When the price source is unavailable it reports the error so the pipeline
// records the lens as unavailable instead of failing the idea.
type FundamentalLens struct {
	Prices PriceSource
}

func (FundamentalLens) Name() string { return "fundamental" }

func (l FundamentalLens) Run(ctx context.Context, idea *models.Idea) (LensResult, error) {
	if l.Prices == nil {
		return LensResult{}, fmt.Errorf("no price source configured")
	}
	legs := legsOf(idea)
	if len(legs) == 0 {
		return LensResult{Score: 0, Analysis: "no instruments to price"}, nil
	}
	priced := 0
	for _, leg := range legs {
		if p, err := l.Prices.FetchPrice(ctx, leg.Ticker); err == nil && p > 0 {
			priced++
		}
	}
	coverage := float64(priced) / float64(len(legs))
	res := LensResult{
		Score:    clamp01(0.3 + 0.6*coverage),
		Analysis: fmt.Sprintf("%d/%d legs quotable", priced, len(legs)),
	}
	if priced == 0 {
		res.Flags = []string{"fundamental_no_quotes"}
	}
	return res, nil
}

// ReasoningLens scores the thesis text itself: substance and acknowledgement
// of risk.
type ReasoningLens struct{}

func (ReasoningLens) Name() string { return "reasoning" }

func (ReasoningLens) Run(ctx context.Context, idea *models.Idea) (LensResult, error) {
	words := len(strings.Fields(idea.Thesis))
	score := 0.3
	switch {
	case words >= 120:
		score = 0.75
	case words >= 40:
		score = 0.6
	case words >= 10:
		score = 0.45
	}
	lower := strings.ToLower(idea.Thesis)
	for _, kw := range []string{"risk", "downside", "invalidat", "hedge"} {
		if strings.Contains(lower, kw) {
			score += 0.05
			break
		}
	}
	return LensResult{
		Score:    clamp01(score),
		Analysis: fmt.Sprintf("thesis of %d words", words),
	}, nil
}

// DataAnalysisLens validates the structural consistency of the idea's legs:
// known directions and weights that sum to roughly one.
type DataAnalysisLens struct{}

func (DataAnalysisLens) Name() string { return "data_analysis" }

func (DataAnalysisLens) Run(ctx context.Context, idea *models.Idea) (LensResult, error) {
	legs := legsOf(idea)
	if len(legs) == 0 {
		return LensResult{Score: 0, Analysis: "no legs to analyze"}, nil
	}
	var weightSum float64
	for _, leg := range legs {
		if leg.Direction != models.DirectionLong && leg.Direction != models.DirectionShort {
			return LensResult{
				Score:    0,
				Analysis: fmt.Sprintf("leg %s has unknown direction %q", leg.Ticker, leg.Direction),
				Flags:    []string{HardFailFlag + ":bad_direction"},
			}, nil
		}
		weightSum += leg.Weight
	}
	drift := math.Abs(weightSum - 1.0)
	score := 0.8 - drift
	res := LensResult{
		Score:    clamp01(score),
		Analysis: fmt.Sprintf("leg weights sum to %.2f", weightSum),
	}
	if drift > 0.25 {
		res.Flags = []string{"unbalanced_weights"}
	}
	return res, nil
}

func legsOf(idea *models.Idea) []models.TickerLeg {
	if idea == nil || len(idea.Tickers) == 0 {
		return nil
	}
	var legs []models.TickerLeg
	if err := json.Unmarshal(idea.Tickers, &legs); err != nil {
		return nil
	}
	return legs
}

func maxWeight(legs []models.TickerLeg) float64 {
	var max float64
	for _, leg := range legs {
		if leg.Weight > max {
			max = leg.Weight
		}
	}
	return max
}
