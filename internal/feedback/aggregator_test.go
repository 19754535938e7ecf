package feedback

import (
	"context"
	"errors"
	"testing"

	"ideaflow/internal/config"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

type stubRepo struct {
	repository.Repository
	ideas    map[string]*models.Idea
	outcomes []repository.SourceOutcome
	saved    map[string]*models.SourceCredibility
	existing map[string]*models.SourceCredibility
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		ideas:    map[string]*models.Idea{},
		saved:    map[string]*models.SourceCredibility{},
		existing: map[string]*models.SourceCredibility{},
	}
}

func (s *stubRepo) GetIdeaByID(ctx context.Context, id string) (*models.Idea, error) {
	idea, ok := s.ideas[id]
	if !ok {
		return nil, nil
	}
	copied := *idea
	return &copied, nil
}

func (s *stubRepo) IncrementIdeaFeedback(ctx context.Context, id string, up bool) error {
	idea, ok := s.ideas[id]
	if !ok {
		return errors.New("missing idea")
	}
	if up {
		idea.FeedbackUp++
	} else {
		idea.FeedbackDown++
	}
	return nil
}

func (s *stubRepo) ListIdeaOutcomesBySource(ctx context.Context) ([]repository.SourceOutcome, error) {
	return s.outcomes, nil
}

func (s *stubRepo) GetSourceCredibilityByName(ctx context.Context, name string) (*models.SourceCredibility, error) {
	return s.existing[name], nil
}

func (s *stubRepo) UpsertSourceCredibility(ctx context.Context, item *models.SourceCredibility) error {
	s.saved[item.Name] = item
	return nil
}

func TestVoteIncrementsOnlyCounters(t *testing.T) {
	repo := newStubRepo()
	repo.ideas["a"] = &models.Idea{ID: "a", Status: models.IdeaStatusClosed}
	agg := &Aggregator{Repo: repo}

	idea, err := agg.Vote(context.Background(), "a", true)
	if err != nil {
		t.Fatalf("vote up: %v", err)
	}
	if idea.FeedbackUp != 1 || idea.FeedbackDown != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", idea.FeedbackUp, idea.FeedbackDown)
	}

	idea, err = agg.Vote(context.Background(), "a", false)
	if err != nil {
		t.Fatalf("vote down: %v", err)
	}
	if idea.FeedbackUp != 1 || idea.FeedbackDown != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", idea.FeedbackUp, idea.FeedbackDown)
	}
	// Closed ideas accept feedback; status is untouched.
	if idea.Status != models.IdeaStatusClosed {
		t.Fatalf("status mutated by vote: %s", idea.Status)
	}
}

func TestVoteUnknownIdea(t *testing.T) {
	agg := &Aggregator{Repo: newStubRepo()}
	if _, err := agg.Vote(context.Background(), "missing", true); !errors.Is(err, ErrIdeaNotFound) {
		t.Fatalf("err = %v, want ErrIdeaNotFound", err)
	}
}

func TestRecomputeCredibility(t *testing.T) {
	repo := newStubRepo()
	repo.outcomes = []repository.SourceOutcome{
		{Source: "momentum_bot", Closed: 10, Profitable: 8},
		{Source: "contrarian_bot", Closed: 4, Profitable: 1},
		{Source: "", Closed: 3, Profitable: 3},
		{Source: "fresh_bot", Closed: 0, Profitable: 0},
	}
	repo.existing["momentum_bot"] = &models.SourceCredibility{
		Name: "momentum_bot", Type: "agent", PriorTrust: 0.7,
	}
	agg := &Aggregator{
		Repo: repo,
		Cfg:  config.CredibilityConfig{PriorWeight: 0.4, DefaultPrior: 0.5},
	}
	if err := agg.RecomputeCredibility(context.Background()); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	got, ok := repo.saved["momentum_bot"]
	if !ok {
		t.Fatalf("momentum_bot not saved")
	}
	// 0.4*0.7 + 0.6*0.8 = 0.76
	if diff := got.CredibilityScore - 0.76; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %.6f, want 0.76", got.CredibilityScore)
	}
	if got.AccuracyHistory != 0.8 || got.TotalEntries != 10 {
		t.Fatalf("accuracy/entries = %.2f/%d, want 0.8/10", got.AccuracyHistory, got.TotalEntries)
	}

	// Unknown source uses the default prior: 0.4*0.5 + 0.6*0.25 = 0.35.
	got, ok = repo.saved["contrarian_bot"]
	if !ok {
		t.Fatalf("contrarian_bot not saved")
	}
	if diff := got.CredibilityScore - 0.35; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %.6f, want 0.35", got.CredibilityScore)
	}

	// Empty source names and sources with no closed ideas are skipped.
	if _, ok := repo.saved[""]; ok {
		t.Fatalf("empty source saved")
	}
	if _, ok := repo.saved["fresh_bot"]; ok {
		t.Fatalf("source with no closed ideas saved")
	}
}

func TestBlendClamps(t *testing.T) {
	if got := Blend(1.5, 1.5, 0.5); got != 1 {
		t.Fatalf("blend above range = %f, want clamp to 1", got)
	}
	if got := Blend(-1, -1, 0.5); got != 0 {
		t.Fatalf("blend below range = %f, want clamp to 0", got)
	}
	// Degenerate weight falls back to an even split.
	if got := Blend(0.2, 0.8, 7); got != 0.5 {
		t.Fatalf("blend with bad weight = %f, want 0.5", got)
	}
}
