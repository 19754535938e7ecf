package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

// stubRepo is an in-memory stand-in for repository.Repository. Only the
// methods the machine touches are implemented; the embedded interface
// panics on anything else.
type stubRepo struct {
	repository.Repository
	ideas  map[string]*models.Idea
	trades []models.Trade
}

func newStubRepo(ideas ...*models.Idea) *stubRepo {
	s := &stubRepo{ideas: map[string]*models.Idea{}}
	for _, idea := range ideas {
		s.ideas[idea.ID] = idea
	}
	return s
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) GetIdeaByID(ctx context.Context, id string) (*models.Idea, error) {
	idea, ok := s.ideas[id]
	if !ok {
		return nil, nil
	}
	copied := *idea
	return &copied, nil
}

func (s *stubRepo) IdeaStatusCASTx(ctx context.Context, tx *gorm.DB, id, from, to string) (bool, error) {
	idea, ok := s.ideas[id]
	if !ok || idea.Status != from {
		return false, nil
	}
	idea.Status = to
	return true, nil
}

func (s *stubRepo) UpdateIdeaValidationTx(ctx context.Context, tx *gorm.DB, id string, result datatypes.JSON, retryEligible bool) error {
	idea, ok := s.ideas[id]
	if !ok {
		return errors.New("missing idea")
	}
	idea.ValidationResult = result
	idea.RetryEligible = retryEligible
	return nil
}

func (s *stubRepo) SetIdeaOutcomeTx(ctx context.Context, tx *gorm.DB, id, outcome string, closedAt time.Time) error {
	idea, ok := s.ideas[id]
	if !ok {
		return errors.New("missing idea")
	}
	idea.Outcome = outcome
	idea.ClosedAt = &closedAt
	return nil
}

func (s *stubRepo) InsertTradesTx(ctx context.Context, tx *gorm.DB, items []models.Trade) error {
	s.trades = append(s.trades, items...)
	return nil
}

func (s *stubRepo) CloseTradesForIdeaTx(ctx context.Context, tx *gorm.DB, ideaID string, at time.Time) error {
	for i := range s.trades {
		if s.trades[i].IdeaID != nil && *s.trades[i].IdeaID == ideaID {
			s.trades[i].Status = models.TradeStatusClosed
			closed := at
			s.trades[i].ClosedAt = &closed
		}
	}
	return nil
}

func (s *stubRepo) ListTradesByIdeaID(ctx context.Context, ideaID string) ([]models.Trade, error) {
	var out []models.Trade
	for _, tr := range s.trades {
		if tr.IdeaID != nil && *tr.IdeaID == ideaID {
			out = append(out, tr)
		}
	}
	return out, nil
}

type stubPrices struct {
	prices map[string]float64
}

func (s stubPrices) FetchPrice(ctx context.Context, ticker string) (float64, error) {
	p, ok := s.prices[ticker]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func mustLegs(t *testing.T, legs []models.TickerLeg) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(legs)
	if err != nil {
		t.Fatalf("marshal legs: %v", err)
	}
	return raw
}

func passResult(t *testing.T) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(models.ValidationResult{
		Verdict:       models.VerdictPass,
		WeightedScore: 0.8,
	})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	return raw
}

func TestTransitionLegalEdge(t *testing.T) {
	repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusGenerated})
	m := &Machine{Repo: repo}
	idea, err := m.Transition(context.Background(), "a", models.IdeaStatusValidating)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if idea.Status != models.IdeaStatusValidating {
		t.Fatalf("status = %s, want validating", idea.Status)
	}
}

func TestTransitionIllegalEdgeLeavesStatus(t *testing.T) {
	repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusGenerated})
	m := &Machine{Repo: repo}
	_, err := m.Transition(context.Background(), "a", models.IdeaStatusExecuting)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.From != models.IdeaStatusGenerated || ite.To != models.IdeaStatusExecuting {
		t.Fatalf("error lacks from/to context: %v", err)
	}
	idea, _ := repo.GetIdeaByID(context.Background(), "a")
	if idea.Status != models.IdeaStatusGenerated {
		t.Fatalf("status mutated on illegal transition: %s", idea.Status)
	}
}

func TestRejectedReentersValidating(t *testing.T) {
	repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusRejected})
	m := &Machine{Repo: repo}
	idea, err := m.Transition(context.Background(), "a", models.IdeaStatusValidating)
	if err != nil {
		t.Fatalf("re-validation transition failed: %v", err)
	}
	if idea.Status != models.IdeaStatusValidating {
		t.Fatalf("status = %s, want validating", idea.Status)
	}
}

func TestTransitionUnknownIdea(t *testing.T) {
	m := &Machine{Repo: newStubRepo()}
	_, err := m.Transition(context.Background(), "missing", models.IdeaStatusValidating)
	if !errors.Is(err, ErrIdeaNotFound) {
		t.Fatalf("err = %v, want ErrIdeaNotFound", err)
	}
}

func TestExecutingCreatesOneTradePerLeg(t *testing.T) {
	legs := []models.TickerLeg{
		{Ticker: "AAPL", Direction: models.DirectionLong, Weight: 0.6},
		{Ticker: "TLT", Direction: models.DirectionShort, Weight: 0.4},
	}
	repo := newStubRepo(&models.Idea{
		ID:               "a",
		Status:           models.IdeaStatusValidated,
		Tickers:          mustLegs(t, legs),
		ValidationResult: passResult(t),
	})
	m := &Machine{Repo: repo, Prices: stubPrices{prices: map[string]float64{"AAPL": 190, "TLT": 92}}}
	idea, err := m.Transition(context.Background(), "a", models.IdeaStatusExecuting)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if idea.Status != models.IdeaStatusExecuting {
		t.Fatalf("status = %s, want executing", idea.Status)
	}
	if len(repo.trades) != 2 {
		t.Fatalf("trades created = %d, want 2", len(repo.trades))
	}
	if repo.trades[0].Symbol != "AAPL" || !repo.trades[0].EntryPrice.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("unexpected first trade: %+v", repo.trades[0])
	}
	if repo.trades[1].Direction != models.DirectionShort {
		t.Fatalf("second trade direction = %s, want short", repo.trades[1].Direction)
	}
}

func TestExecutingRequiresPassVerdict(t *testing.T) {
	repo := newStubRepo(&models.Idea{
		ID:      "a",
		Status:  models.IdeaStatusValidated,
		Tickers: mustLegs(t, []models.TickerLeg{{Ticker: "AAPL", Direction: models.DirectionLong, Weight: 1}}),
	})
	m := &Machine{Repo: repo}
	_, err := m.Transition(context.Background(), "a", models.IdeaStatusExecuting)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
	if len(repo.trades) != 0 {
		t.Fatalf("trades created despite failed precondition")
	}
}

func TestApplyVerdictRoutesStatus(t *testing.T) {
	tests := []struct {
		verdict    string
		wantStatus string
		wantRetry  bool
	}{
		{models.VerdictPass, models.IdeaStatusValidated, false},
		{models.VerdictFail, models.IdeaStatusRejected, false},
		{models.VerdictNeedsMoreData, models.IdeaStatusRejected, true},
	}
	for _, tt := range tests {
		repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusValidating})
		m := &Machine{Repo: repo}
		idea, err := m.ApplyVerdict(context.Background(), "a", models.ValidationResult{
			Verdict:       tt.verdict,
			WeightedScore: 0.5,
		})
		if err != nil {
			t.Fatalf("verdict %s: %v", tt.verdict, err)
		}
		if idea.Status != tt.wantStatus {
			t.Fatalf("verdict %s: status = %s, want %s", tt.verdict, idea.Status, tt.wantStatus)
		}
		if idea.RetryEligible != tt.wantRetry {
			t.Fatalf("verdict %s: retry = %v, want %v", tt.verdict, idea.RetryEligible, tt.wantRetry)
		}
		if len(idea.ValidationResult) == 0 {
			t.Fatalf("verdict %s: validation result not persisted", tt.verdict)
		}
	}
}

func TestCloseSettlesTradesAndOutcome(t *testing.T) {
	ideaID := "a"
	repo := newStubRepo(&models.Idea{ID: ideaID, Status: models.IdeaStatusMonitoring})
	repo.trades = []models.Trade{{
		IdeaID:        &ideaID,
		Symbol:        "AAPL",
		Direction:     models.DirectionLong,
		Status:        models.TradeStatusOpen,
		UnrealizedPnL: decimal.NewFromInt(250),
	}}
	m := &Machine{Repo: repo}
	idea, err := m.Transition(context.Background(), ideaID, models.IdeaStatusClosed)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if idea.Status != models.IdeaStatusClosed {
		t.Fatalf("status = %s, want closed", idea.Status)
	}
	if idea.Outcome != models.IdeaOutcomeProfitable {
		t.Fatalf("outcome = %s, want profitable", idea.Outcome)
	}
	if idea.ClosedAt == nil {
		t.Fatalf("closed_at not set")
	}
	if repo.trades[0].Status != models.TradeStatusClosed {
		t.Fatalf("trade left open after close")
	}
}

func TestCloseWithExplicitOutcome(t *testing.T) {
	repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusMonitoring})
	m := &Machine{Repo: repo}
	idea, err := m.Close(context.Background(), "a", models.IdeaOutcomeUnprofitable)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if idea.Outcome != models.IdeaOutcomeUnprofitable {
		t.Fatalf("outcome = %s, want unprofitable", idea.Outcome)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	repo := newStubRepo(&models.Idea{ID: "a", Status: models.IdeaStatusClosed})
	m := &Machine{Repo: repo}
	for _, to := range []string{
		models.IdeaStatusValidating,
		models.IdeaStatusExecuting,
		models.IdeaStatusMonitoring,
	} {
		if _, err := m.Transition(context.Background(), "a", to); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("closed -> %s: err = %v, want ErrInvalidTransition", to, err)
		}
	}
}
