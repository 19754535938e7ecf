package validation

import (
	"context"

	"go.uber.org/zap"

	"ideaflow/internal/lifecycle"
	"ideaflow/internal/models"
)

// Service drives one idea through the full validation flow:
// generated|rejected -> validating -> validated|rejected.
type Service struct {
	Machine  *lifecycle.Machine
	Pipeline *Pipeline
	Logger   *zap.Logger
}

func (s *Service) ValidateIdea(ctx context.Context, ideaID string) (*models.Idea, error) {
	if s == nil || s.Machine == nil || s.Pipeline == nil {
		return nil, lifecycle.ErrIdeaNotFound
	}
	idea, err := s.Machine.Transition(ctx, ideaID, models.IdeaStatusValidating)
	if err != nil {
		return nil, err
	}
	result := s.Pipeline.Validate(ctx, idea)
	if s.Logger != nil {
		s.Logger.Info("idea validated",
			zap.String("idea_id", ideaID),
			zap.String("verdict", result.Verdict),
			zap.Float64("weighted_score", result.WeightedScore),
		)
	}
	return s.Machine.ApplyVerdict(ctx, ideaID, result)
}

// SweepRetries re-validates rejected ideas whose verdict was
// NEEDS_MORE_DATA. One idea failing does not stop the sweep.
func (s *Service) SweepRetries(ctx context.Context, limit int) error {
	if s == nil || s.Machine == nil || s.Machine.Repo == nil {
		return nil
	}
	ideas, err := s.Machine.Repo.ListRetryEligibleIdeas(ctx, limit)
	if err != nil {
		return err
	}
	for _, idea := range ideas {
		if _, err := s.ValidateIdea(ctx, idea.ID); err != nil && s.Logger != nil {
			s.Logger.Warn("retry validation failed",
				zap.String("idea_id", idea.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
