package proposal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideaflow/internal/models"
	"ideaflow/internal/provider"
	"ideaflow/internal/repository"
)

var (
	ErrPortfolioNotFound    = errors.New("portfolio not found")
	ErrInsufficientData     = errors.New("required market price missing")
	ErrAllocationInfeasible = errors.New("allocation infeasible after scale-down")
	ErrStaleProposal        = errors.New("proposal is stale, re-fetch and retry")
)

const (
	ScaleDownProRata      = "pro_rata"
	ScaleDownLargestFirst = "largest_first"

	// scaleDownIterations bounds the feasibility search. Costs are nonlinear
	// in notional, so a single scaling pass can overshoot.
	scaleDownIterations = 32
	cashTolerance       = 1e-6
)

// TargetHolding is one requested allocation line. Price is the reference
// price; when zero the engine fetches it, aborting the whole proposal if the
// fetch fails.
type TargetHolding struct {
	Ticker     string  `json:"ticker"`
	AssetClass string  `json:"asset_class"`
	Instrument string  `json:"instrument,omitempty"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price,omitempty"`
}

// Holding is one priced line of a computed proposal.
type Holding struct {
	Ticker      string        `json:"ticker"`
	AssetClass  string        `json:"asset_class"`
	Instrument  string        `json:"instrument"`
	Quantity    float64       `json:"quantity"`
	Price       float64       `json:"price"`
	FillPrice   float64       `json:"fill_price"`
	MarketValue float64       `json:"market_value"`
	Weight      float64       `json:"weight"`
	Cost        CostBreakdown `json:"cost"`
}

// Proposal is an ephemeral allocation computation. It is never persisted;
// only its token is, so approval can detect staleness.
type Proposal struct {
	Token             string             `json:"token"`
	PortfolioID       string             `json:"portfolio_id,omitempty"`
	InitialAmount     float64            `json:"initial_amount"`
	Holdings          []Holding          `json:"holdings"`
	TotalInvested     float64            `json:"total_invested"`
	Cash              float64            `json:"cash"`
	TotalTradingCost  float64            `json:"total_trading_cost"`
	AllocationSummary map[string]float64 `json:"allocation_summary"`
	ScaledDown        bool               `json:"scaled_down"`
	ComputedAt        time.Time          `json:"computed_at"`
}

// ApproveResult reports what an approval committed.
type ApproveResult struct {
	PortfolioID      string  `json:"portfolio_id"`
	PositionsCreated int     `json:"positions_created"`
	TradesCreated    int     `json:"trades_created"`
	CashRemaining    float64 `json:"cash_remaining"`
}

// Engine computes allocation proposals and commits approved ones. Compute and
// Recalculate are pure; only Propose and Approve touch storage.
type Engine struct {
	Repo            repository.Repository
	Prices          provider.MarketData
	Costs           *CostModel
	Logger          *zap.Logger
	ScaleDownPolicy string

	mu        sync.Mutex
	approvals map[string]*sync.Mutex
}

// Propose prices the target holdings against a portfolio, resolves missing
// reference prices, and registers the proposal token on the portfolio. Any
// price that cannot be fetched aborts the proposal entirely.
func (e *Engine) Propose(ctx context.Context, portfolioID string, amount float64, targets []TargetHolding) (*Proposal, error) {
	if e.Repo == nil {
		return nil, ErrPortfolioNotFound
	}
	pf, err := e.Repo.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if pf == nil {
		return nil, ErrPortfolioNotFound
	}
	resolved, err := e.resolvePrices(ctx, targets)
	if err != nil {
		return nil, err
	}
	p, err := e.Recalculate(amount, resolved)
	if err != nil {
		return nil, err
	}
	p.PortfolioID = portfolioID
	p.Token = uuid.NewString()
	if err := e.Repo.SetPortfolioProposalToken(ctx, portfolioID, p.Token); err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Info("proposal computed",
			zap.String("portfolio_id", portfolioID),
			zap.String("token", p.Token),
			zap.Float64("invested", p.TotalInvested),
			zap.Float64("cash", p.Cash),
			zap.Bool("scaled_down", p.ScaledDown),
		)
	}
	return p, nil
}

// Recalculate re-runs the cost pipeline over edited holdings. It is a pure
// function: identical inputs yield identical outputs. Every target must carry
// a reference price.
func (e *Engine) Recalculate(amount float64, targets []TargetHolding) (*Proposal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("initial amount must be positive")
	}
	for _, t := range targets {
		if t.Quantity > 0 && t.Price <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientData, t.Ticker)
		}
	}
	working := append([]TargetHolding(nil), targets...)
	p := e.compute(amount, working)
	if p.Cash >= -cashTolerance {
		p.Cash = clampCash(p.Cash)
		return p, nil
	}

	scaled, err := e.scaleDown(amount, working)
	if err != nil {
		return nil, err
	}
	scaled.ScaledDown = true
	scaled.Cash = clampCash(scaled.Cash)
	return scaled, nil
}

// compute prices every line and assembles the proposal. Weights are against
// total value (invested + cash), allocation summary is percent by asset class.
func (e *Engine) compute(amount float64, targets []TargetHolding) *Proposal {
	holdings := make([]Holding, 0, len(targets))
	var invested, cost float64
	for _, t := range targets {
		instrument := t.Instrument
		if instrument == "" {
			instrument = t.AssetClass
		}
		cb := ComputeCost(e.Costs.Schedule(instrument), t.Price, t.Quantity, false)
		mv := cb.FillPrice * t.Quantity
		holdings = append(holdings, Holding{
			Ticker:      t.Ticker,
			AssetClass:  t.AssetClass,
			Instrument:  instrument,
			Quantity:    t.Quantity,
			Price:       t.Price,
			FillPrice:   cb.FillPrice,
			MarketValue: mv,
			Cost:        cb,
		})
		invested += t.Price * t.Quantity
		cost += cb.TotalCost
	}
	// Invested is principal at reference price; the fill premium over
	// reference is the spread and impact portion of the trading cost, so
	// cash + invested + cost reconstructs the initial amount exactly.
	cash := amount - invested - cost
	totalValue := invested + cash

	summary := map[string]float64{}
	for i := range holdings {
		if totalValue > 0 {
			holdings[i].Weight = holdings[i].MarketValue / totalValue
		}
		summary[holdings[i].AssetClass] += holdings[i].Weight * 100
	}

	return &Proposal{
		InitialAmount:     amount,
		Holdings:          holdings,
		TotalInvested:     invested,
		Cash:              cash,
		TotalTradingCost:  cost,
		AllocationSummary: summary,
		ComputedAt:        time.Now().UTC(),
	}
}

// scaleDown shrinks quantities until cash is non-negative, per the configured
// policy. Both policies are deterministic.
func (e *Engine) scaleDown(amount float64, targets []TargetHolding) (*Proposal, error) {
	switch e.policy() {
	case ScaleDownLargestFirst:
		return e.scaleLargestFirst(amount, targets)
	default:
		return e.scaleProRata(amount, targets)
	}
}

// scaleProRata multiplies every quantity by the same factor, iterating
// because commissions and impact are not linear in quantity.
func (e *Engine) scaleProRata(amount float64, targets []TargetHolding) (*Proposal, error) {
	working := append([]TargetHolding(nil), targets...)
	var p *Proposal
	for i := 0; i < scaleDownIterations; i++ {
		p = e.compute(amount, working)
		if p.Cash >= -cashTolerance {
			return p, nil
		}
		spent := p.TotalInvested + p.TotalTradingCost
		if spent <= 0 {
			break
		}
		factor := amount / spent
		if factor >= 1 {
			factor = 0.99
		}
		for j := range working {
			working[j].Quantity *= factor
		}
	}
	return nil, fmt.Errorf("%w: cash %.2f", ErrAllocationInfeasible, p.Cash)
}

// scaleLargestFirst trims the largest position by the outstanding deficit,
// moving to the next largest once a position hits zero.
func (e *Engine) scaleLargestFirst(amount float64, targets []TargetHolding) (*Proposal, error) {
	working := append([]TargetHolding(nil), targets...)
	var p *Proposal
	for i := 0; i < scaleDownIterations; i++ {
		p = e.compute(amount, working)
		if p.Cash >= -cashTolerance {
			return p, nil
		}
		idx := largestHolding(p.Holdings)
		if idx < 0 {
			break
		}
		h := p.Holdings[idx]
		if h.FillPrice <= 0 {
			break
		}
		cut := (-p.Cash / h.FillPrice) * 1.02
		working[idx].Quantity = h.Quantity - cut
		if working[idx].Quantity < 0 {
			working[idx].Quantity = 0
		}
	}
	return nil, fmt.Errorf("%w: cash %.2f", ErrAllocationInfeasible, p.Cash)
}

// Approve commits the proposal into persisted positions and trades, deducting
// the spent amount from portfolio cash. The proposal must carry the token
// currently registered on the portfolio; anything else is stale. Approval
// takes an exclusive per-portfolio lock on top of the row lock so two
// concurrent approvals cannot double-spend the same cash.
func (e *Engine) Approve(ctx context.Context, portfolioID string, p *Proposal) (*ApproveResult, error) {
	if e.Repo == nil {
		return nil, ErrPortfolioNotFound
	}
	if p == nil || p.Token == "" {
		return nil, ErrStaleProposal
	}
	lock := e.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	var result ApproveResult
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		pf, err := e.Repo.GetPortfolioForUpdateTx(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if pf == nil {
			return ErrPortfolioNotFound
		}
		if pf.ProposalToken != p.Token {
			return ErrStaleProposal
		}
		spent := decimal.NewFromFloat(p.TotalInvested + p.TotalTradingCost)
		remaining := pf.Cash.Sub(spent)
		if remaining.IsNegative() {
			return fmt.Errorf("%w: portfolio cash %s below spend %s",
				ErrAllocationInfeasible, pf.Cash.String(), spent.String())
		}

		now := time.Now().UTC()
		positions := make([]models.Position, 0, len(p.Holdings))
		trades := make([]models.Trade, 0, len(p.Holdings))
		for _, h := range p.Holdings {
			if h.Quantity <= 0 {
				continue
			}
			qty := decimal.NewFromFloat(h.Quantity)
			fill := decimal.NewFromFloat(h.FillPrice)
			positions = append(positions, models.Position{
				PortfolioID:   portfolioID,
				Symbol:        h.Ticker,
				AssetClass:    h.AssetClass,
				Quantity:      qty,
				AvgEntryPrice: fill,
				CurrentPrice:  fill,
				CostBasis:     qty.Mul(fill),
				Status:        models.PositionStatusOpen,
				OpenedAt:      now,
			})
			pid := portfolioID
			trades = append(trades, models.Trade{
				PortfolioID:  &pid,
				Symbol:       h.Ticker,
				Direction:    models.DirectionLong,
				Quantity:     qty,
				EntryPrice:   decimal.NewFromFloat(h.Price),
				FillPrice:    fill,
				CurrentPrice: fill,
				TradingCost:  decimal.NewFromFloat(h.Cost.TotalCost),
				Status:       models.TradeStatusOpen,
				OpenedAt:     now,
			})
		}
		if err := e.Repo.InsertPositionsTx(ctx, tx, positions); err != nil {
			return err
		}
		if err := e.Repo.InsertTradesTx(ctx, tx, trades); err != nil {
			return err
		}
		// Rotate the token so the same proposal cannot be committed twice.
		if err := e.Repo.UpdatePortfolioCashTx(ctx, tx, portfolioID, remaining, uuid.NewString()); err != nil {
			return err
		}
		cashF, _ := remaining.Float64()
		result = ApproveResult{
			PortfolioID:      portfolioID,
			PositionsCreated: len(positions),
			TradesCreated:    len(trades),
			CashRemaining:    cashF,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Info("proposal approved",
			zap.String("portfolio_id", portfolioID),
			zap.Int("positions", result.PositionsCreated),
			zap.Float64("cash_remaining", result.CashRemaining),
		)
	}
	return &result, nil
}

func (e *Engine) resolvePrices(ctx context.Context, targets []TargetHolding) ([]TargetHolding, error) {
	out := append([]TargetHolding(nil), targets...)
	for i, t := range out {
		if t.Price > 0 || t.Quantity <= 0 {
			continue
		}
		if e.Prices == nil {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientData, t.Ticker)
		}
		price, err := e.Prices.FetchPrice(ctx, t.Ticker)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientData, t.Ticker)
		}
		out[i].Price = price
	}
	return out, nil
}

func (e *Engine) policy() string {
	if e.ScaleDownPolicy == ScaleDownLargestFirst {
		return ScaleDownLargestFirst
	}
	return ScaleDownProRata
}

func (e *Engine) portfolioLock(portfolioID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.approvals == nil {
		e.approvals = map[string]*sync.Mutex{}
	}
	if _, ok := e.approvals[portfolioID]; !ok {
		e.approvals[portfolioID] = &sync.Mutex{}
	}
	return e.approvals[portfolioID]
}

func largestHolding(holdings []Holding) int {
	idx, best := -1, 0.0
	for i, h := range holdings {
		if h.MarketValue > best {
			idx, best = i, h.MarketValue
		}
	}
	return idx
}

func clampCash(cash float64) float64 {
	if cash < 0 && cash > -cashTolerance {
		return 0
	}
	return cash
}

// SortHoldingsByValue orders holdings largest first; used for display.
func SortHoldingsByValue(holdings []Holding) {
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].MarketValue > holdings[j].MarketValue
	})
}
