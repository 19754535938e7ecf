package feedback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ideaflow/internal/config"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

var ErrIdeaNotFound = errors.New("idea not found")

// Aggregator accumulates per-idea feedback votes and recomputes source
// credibility in batch from realized outcomes. Votes only bump counters; no
// other idea is touched.
type Aggregator struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Cfg    config.CredibilityConfig
}

// Vote records a thumbs-up or thumbs-down on an idea. Voting is allowed in
// any status, including closed.
func (a *Aggregator) Vote(ctx context.Context, ideaID string, up bool) (*models.Idea, error) {
	idea, err := a.Repo.GetIdeaByID(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea == nil {
		return nil, ErrIdeaNotFound
	}
	if err := a.Repo.IncrementIdeaFeedback(ctx, ideaID, up); err != nil {
		return nil, err
	}
	return a.Repo.GetIdeaByID(ctx, ideaID)
}

// RecomputeCredibility rebuilds every source's credibility score from the
// outcomes of its closed ideas. accuracy = profitable/closed, and the score
// is a prior-weighted blend clamped to [0,1]. Runs on a cron schedule, not
// per vote.
func (a *Aggregator) RecomputeCredibility(ctx context.Context) error {
	outcomes, err := a.Repo.ListIdeaOutcomesBySource(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, row := range outcomes {
		if row.Source == "" || row.Closed == 0 {
			continue
		}
		accuracy := float64(row.Profitable) / float64(row.Closed)
		prior := a.Cfg.DefaultPrior
		srcType := models.IdeaSourceAgent
		if existing, err := a.Repo.GetSourceCredibilityByName(ctx, row.Source); err == nil && existing != nil {
			prior = existing.PriorTrust
			if existing.Type != "" {
				srcType = existing.Type
			}
		}
		score := Blend(prior, accuracy, a.Cfg.PriorWeight)
		item := &models.SourceCredibility{
			Name:             row.Source,
			Type:             srcType,
			PriorTrust:       prior,
			CredibilityScore: score,
			AccuracyHistory:  accuracy,
			TotalEntries:     row.Closed,
		}
		if err := a.Repo.UpsertSourceCredibility(ctx, item); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("upsert credibility %s: %w", row.Source, err)
			}
			continue
		}
		if a.Logger != nil {
			a.Logger.Debug("credibility recomputed",
				zap.String("source", row.Source),
				zap.Float64("accuracy", accuracy),
				zap.Float64("score", score),
				zap.Int64("closed", row.Closed),
			)
		}
	}
	return firstErr
}

// Blend combines an editorial prior with observed accuracy. priorWeight
// outside (0,1) falls back to an even split.
func Blend(prior, accuracy, priorWeight float64) float64 {
	if priorWeight <= 0 || priorWeight >= 1 {
		priorWeight = 0.5
	}
	return clamp01(priorWeight*prior + (1-priorWeight)*accuracy)
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
