package proposal

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ideaflow/internal/models"
	"ideaflow/internal/provider"
	"ideaflow/internal/repository"
)

// stubRepo is an in-memory stand-in for the portfolio slice of
// repository.Repository. Unimplemented methods panic via the embedded
// interface.
type stubRepo struct {
	repository.Repository
	portfolios map[string]*models.Portfolio
	positions  []models.Position
	trades     []models.Trade
}

func newStubRepo(pfs ...*models.Portfolio) *stubRepo {
	s := &stubRepo{portfolios: map[string]*models.Portfolio{}}
	for _, pf := range pfs {
		s.portfolios[pf.ID] = pf
	}
	return s
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	pf, ok := s.portfolios[id]
	if !ok {
		return nil, nil
	}
	copied := *pf
	return &copied, nil
}

func (s *stubRepo) SetPortfolioProposalToken(ctx context.Context, id, token string) error {
	if pf, ok := s.portfolios[id]; ok {
		pf.ProposalToken = token
	}
	return nil
}

func (s *stubRepo) GetPortfolioForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Portfolio, error) {
	return s.GetPortfolioByID(ctx, id)
}

func (s *stubRepo) UpdatePortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, cash decimal.Decimal, newToken string) error {
	pf, ok := s.portfolios[id]
	if !ok {
		return errors.New("missing portfolio")
	}
	pf.Cash = cash
	pf.ProposalToken = newToken
	return nil
}

func (s *stubRepo) InsertPositionsTx(ctx context.Context, tx *gorm.DB, items []models.Position) error {
	s.positions = append(s.positions, items...)
	return nil
}

func (s *stubRepo) InsertTradesTx(ctx context.Context, tx *gorm.DB, items []models.Trade) error {
	s.trades = append(s.trades, items...)
	return nil
}

func newTestEngine(repo repository.Repository, policy string) *Engine {
	return &Engine{
		Repo:            repo,
		Prices:          provider.NewStaticMarketData(map[string]float64{"AAPL": 190, "MSFT": 410}),
		Costs:           NewCostModel(testCostsConfig(), "moderate"),
		ScaleDownPolicy: policy,
	}
}

func TestProposalCashInvariant(t *testing.T) {
	e := newTestEngine(nil, "")
	p, err := e.Recalculate(1_000_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
		{Ticker: "MSFT", AssetClass: "equities", Instrument: "equity", Quantity: 50, Price: 410},
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	total := p.Cash + p.TotalInvested + p.TotalTradingCost
	if math.Abs(total-1_000_000) > 1e-6 {
		t.Fatalf("cash+invested+cost = %.8f, want 1000000 within 1e-6", total)
	}
}

func TestScenarioMillionDollarAAPL(t *testing.T) {
	e := newTestEngine(nil, "")
	p, err := e.Recalculate(1_000_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if math.Abs(p.TotalInvested-19_000) > 1 {
		t.Fatalf("invested = %.2f, want ~19000", p.TotalInvested)
	}
	if p.Cash < 980_000 || p.Cash > 981_000 {
		t.Fatalf("cash = %.2f, want ~981000 minus trading costs", p.Cash)
	}
	pct := p.AllocationSummary["equities"]
	if pct < 1.8 || pct > 2.0 {
		t.Fatalf("equities allocation = %.3f%%, want ~1.9%%", pct)
	}
	if h := p.Holdings[0]; h.FillPrice <= h.Price {
		t.Fatalf("fill %.4f not worse than reference %.4f", h.FillPrice, h.Price)
	}
}

func TestRecalculateIsIdempotent(t *testing.T) {
	e := newTestEngine(nil, "")
	targets := []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
		{Ticker: "MSFT", AssetClass: "equities", Instrument: "equity", Quantity: 25, Price: 410},
	}
	a, err := e.Recalculate(500_000, targets)
	if err != nil {
		t.Fatalf("first recalculate: %v", err)
	}
	b, err := e.Recalculate(500_000, targets)
	if err != nil {
		t.Fatalf("second recalculate: %v", err)
	}
	if a.TotalInvested != b.TotalInvested || a.Cash != b.Cash || a.TotalTradingCost != b.TotalTradingCost {
		t.Fatalf("recalculate not idempotent: %+v vs %+v", a, b)
	}
	for i := range a.Holdings {
		if a.Holdings[i].Cost != b.Holdings[i].Cost {
			t.Fatalf("holding %d cost differs between runs", i)
		}
	}
}

func TestRecalculateRequiresPrices(t *testing.T) {
	e := newTestEngine(nil, "")
	_, err := e.Recalculate(100_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Quantity: 10},
	})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestProposeFetchesMissingPricesOrAborts(t *testing.T) {
	repo := newStubRepo(&models.Portfolio{ID: "pf", Cash: decimal.NewFromInt(100_000)})
	e := newTestEngine(repo, "")
	p, err := e.Propose(context.Background(), "pf", 100_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 10},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Holdings[0].Price != 190 {
		t.Fatalf("fetched price = %.2f, want 190", p.Holdings[0].Price)
	}
	if p.Token == "" {
		t.Fatalf("proposal has no token")
	}
	if repo.portfolios["pf"].ProposalToken != p.Token {
		t.Fatalf("token not registered on portfolio")
	}

	_, err = e.Propose(context.Background(), "pf", 100_000, []TargetHolding{
		{Ticker: "UNQUOTED", AssetClass: "equities", Quantity: 10},
	})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData for missing quote", err)
	}
}

func TestScaleDownProRata(t *testing.T) {
	e := newTestEngine(nil, ScaleDownProRata)
	p, err := e.Recalculate(10_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if !p.ScaledDown {
		t.Fatalf("proposal not marked scaled down")
	}
	if p.Cash < 0 {
		t.Fatalf("cash still negative after scale-down: %.4f", p.Cash)
	}
	if q := p.Holdings[0].Quantity; q >= 100 || q <= 0 {
		t.Fatalf("quantity = %.4f, want scaled into (0,100)", q)
	}
	total := p.Cash + p.TotalInvested + p.TotalTradingCost
	if math.Abs(total-10_000) > 1e-6 {
		t.Fatalf("invariant broken after scale-down: %.8f", total)
	}
}

func TestScaleDownLargestFirst(t *testing.T) {
	e := newTestEngine(nil, ScaleDownLargestFirst)
	p, err := e.Recalculate(25_000, []TargetHolding{
		{Ticker: "MSFT", AssetClass: "equities", Instrument: "equity", Quantity: 60, Price: 410},
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 20, Price: 190},
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if p.Cash < 0 {
		t.Fatalf("cash negative: %.4f", p.Cash)
	}
	// Only the largest position shrinks.
	if p.Holdings[0].Quantity >= 60 {
		t.Fatalf("largest holding not reduced: %.4f", p.Holdings[0].Quantity)
	}
	if p.Holdings[1].Quantity != 20 {
		t.Fatalf("smaller holding changed: %.4f", p.Holdings[1].Quantity)
	}
}

func TestScaleDownInfeasible(t *testing.T) {
	e := newTestEngine(nil, ScaleDownProRata)
	// The commission floor alone exceeds the available capital.
	_, err := e.Recalculate(0.5, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
	})
	if !errors.Is(err, ErrAllocationInfeasible) {
		t.Fatalf("err = %v, want ErrAllocationInfeasible", err)
	}
}

func TestApproveCommitsAndRotatesToken(t *testing.T) {
	repo := newStubRepo(&models.Portfolio{ID: "pf", Cash: decimal.NewFromInt(1_000_000)})
	e := newTestEngine(repo, "")
	p, err := e.Propose(context.Background(), "pf", 1_000_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	result, err := e.Approve(context.Background(), "pf", p)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.PositionsCreated != 1 || result.TradesCreated != 1 {
		t.Fatalf("committed %d positions / %d trades, want 1/1", result.PositionsCreated, result.TradesCreated)
	}
	if len(repo.positions) != 1 || repo.positions[0].Symbol != "AAPL" {
		t.Fatalf("positions not persisted: %+v", repo.positions)
	}
	spent := p.TotalInvested + p.TotalTradingCost
	if math.Abs(result.CashRemaining-(1_000_000-spent)) > 1e-6 {
		t.Fatalf("cash remaining = %.4f, want %.4f", result.CashRemaining, 1_000_000-spent)
	}
	if repo.portfolios["pf"].ProposalToken == p.Token {
		t.Fatalf("token not rotated after approval")
	}

	// Replaying the same approved proposal must now be stale.
	if _, err := e.Approve(context.Background(), "pf", p); !errors.Is(err, ErrStaleProposal) {
		t.Fatalf("replay err = %v, want ErrStaleProposal", err)
	}
}

func TestApproveRejectsStaleToken(t *testing.T) {
	repo := newStubRepo(&models.Portfolio{ID: "pf", Cash: decimal.NewFromInt(100_000)})
	e := newTestEngine(repo, "")
	stale, err := e.Propose(context.Background(), "pf", 100_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 10, Price: 190},
	})
	if err != nil {
		t.Fatalf("first propose: %v", err)
	}
	// A newer proposal supersedes the first.
	if _, err := e.Propose(context.Background(), "pf", 100_000, []TargetHolding{
		{Ticker: "MSFT", AssetClass: "equities", Instrument: "equity", Quantity: 10, Price: 410},
	}); err != nil {
		t.Fatalf("second propose: %v", err)
	}
	if _, err := e.Approve(context.Background(), "pf", stale); !errors.Is(err, ErrStaleProposal) {
		t.Fatalf("err = %v, want ErrStaleProposal", err)
	}
	if len(repo.positions) != 0 {
		t.Fatalf("stale approval committed positions")
	}
}

func TestApproveInsufficientPortfolioCash(t *testing.T) {
	repo := newStubRepo(&models.Portfolio{ID: "pf", Cash: decimal.NewFromInt(1_000)})
	e := newTestEngine(repo, "")
	// Proposal computed against a larger hypothetical amount than the
	// portfolio actually holds.
	p, err := e.Propose(context.Background(), "pf", 100_000, []TargetHolding{
		{Ticker: "AAPL", AssetClass: "equities", Instrument: "equity", Quantity: 100, Price: 190},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := e.Approve(context.Background(), "pf", p); !errors.Is(err, ErrAllocationInfeasible) {
		t.Fatalf("err = %v, want ErrAllocationInfeasible", err)
	}
	if len(repo.positions) != 0 || len(repo.trades) != 0 {
		t.Fatalf("partial commit on failed approval")
	}
}
