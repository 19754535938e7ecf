package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideaflow/internal/config"
	"ideaflow/internal/models"
)

// HardFailFlag forces a FAIL verdict regardless of the weighted score.
// Lenses emit it (optionally suffixed ":reason") when they find a
// disqualifying problem.
const HardFailFlag = "hard_fail"

// unavailableScore stands in for a lens that could not produce a result.
const unavailableScore = 0.5

// LensResult is one lens's contribution to a validation run.
type LensResult struct {
	Score    float64
	Analysis string
	Flags    []string
}

// Lens is one scoring dimension. Implementations must be side-effect-free
// and order-insensitive.
type Lens interface {
	Name() string
	Run(ctx context.Context, idea *models.Idea) (LensResult, error)
}

// Pipeline runs a configured set of lenses against an idea and produces a
// verdict. A lens failure is tolerated: it scores 0.5 and is recorded as a
// flag naming the lens.
type Pipeline struct {
	Lenses        []Lens
	Weights       map[string]float64
	PassThreshold float64
	FailThreshold float64
	Logger        *zap.Logger
}

func NewPipeline(cfg config.ValidationConfig, logger *zap.Logger, lenses ...Lens) *Pipeline {
	pass := cfg.PassThreshold
	if pass <= 0 {
		pass = 0.65
	}
	fail := cfg.FailThreshold
	if fail <= 0 {
		fail = 0.40
	}
	return &Pipeline{
		Lenses:        lenses,
		Weights:       cfg.Weights,
		PassThreshold: pass,
		FailThreshold: fail,
		Logger:        logger,
	}
}

// Validate scores the idea through every lens and computes the verdict.
// The chain of thought is an audit trail only.
func (p *Pipeline) Validate(ctx context.Context, idea *models.Idea) models.ValidationResult {
	result := models.ValidationResult{
		LensScores: map[string]float64{},
		Analyses:   map[string]string{},
	}
	now := func() time.Time { return time.Now().UTC() }
	result.ChainOfThought = append(result.ChainOfThought, models.ThoughtStep{
		Stage:  "planning",
		Detail: fmt.Sprintf("running %d lenses against %q", len(p.Lenses), idea.Title),
		At:     now(),
	})

	// Deterministic iteration; lenses themselves are order-insensitive.
	lenses := make([]Lens, len(p.Lenses))
	copy(lenses, p.Lenses)
	sort.Slice(lenses, func(i, j int) bool { return lenses[i].Name() < lenses[j].Name() })

	hardFail := false
	for _, lens := range lenses {
		res, err := lens.Run(ctx, idea)
		if err != nil {
			// Partial-failure tolerant: the pipeline continues.
			if p.Logger != nil {
				p.Logger.Warn("lens unavailable",
					zap.String("lens", lens.Name()),
					zap.String("idea_id", idea.ID),
					zap.Error(err),
				)
			}
			result.LensScores[lens.Name()] = unavailableScore
			result.Flags = append(result.Flags, "lens_unavailable:"+lens.Name())
			result.ChainOfThought = append(result.ChainOfThought, models.ThoughtStep{
				Stage:  "tool_execution",
				Detail: lens.Name() + " unavailable: " + err.Error(),
				At:     now(),
			})
			continue
		}
		result.LensScores[lens.Name()] = clamp01(res.Score)
		if strings.TrimSpace(res.Analysis) != "" {
			result.Analyses[lens.Name()] = res.Analysis
			result.KeyFindings = append(result.KeyFindings, lens.Name()+": "+res.Analysis)
		}
		for _, flag := range res.Flags {
			result.Flags = append(result.Flags, flag)
			if isHardFail(flag) {
				hardFail = true
			}
		}
		result.ChainOfThought = append(result.ChainOfThought, models.ThoughtStep{
			Stage:  "tool_execution",
			Detail: fmt.Sprintf("%s scored %.2f", lens.Name(), res.Score),
			At:     now(),
		})
	}

	result.WeightedScore = p.weightedScore(result.LensScores)
	result.ChainOfThought = append(result.ChainOfThought, models.ThoughtStep{
		Stage:  "scoring",
		Detail: fmt.Sprintf("weighted score %.4f", result.WeightedScore),
		At:     now(),
	})

	switch {
	case hardFail:
		result.Verdict = models.VerdictFail
	case result.WeightedScore >= p.PassThreshold:
		result.Verdict = models.VerdictPass
	case result.WeightedScore < p.FailThreshold:
		result.Verdict = models.VerdictFail
	default:
		result.Verdict = models.VerdictNeedsMoreData
	}
	result.ChainOfThought = append(result.ChainOfThought, models.ThoughtStep{
		Stage:  "synthesis",
		Detail: "verdict " + result.Verdict,
		At:     now(),
	})
	return result
}

func (p *Pipeline) weightedScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum, weightSum float64
	for name, score := range scores {
		w := 1.0
		if p.Weights != nil {
			if cw, ok := p.Weights[name]; ok && cw > 0 {
				w = cw
			}
		}
		sum += score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

func isHardFail(flag string) bool {
	return flag == HardFailFlag || strings.HasPrefix(flag, HardFailFlag+":")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
