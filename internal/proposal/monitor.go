package proposal

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"ideaflow/internal/events"
	"ideaflow/internal/models"
	"ideaflow/internal/provider"
	"ideaflow/internal/repository"
)

const defaultDriftPct = 5.0

// Monitor is the portfolio-assessment capability driven by the portfolio
// loop. It marks open positions to market and emits rebalance hints when an
// asset class drifts past the portfolio's tolerance.
type Monitor struct {
	Repo   repository.Repository
	Prices provider.MarketData
	Events *events.Hub
	Logger *zap.Logger
}

// Assess walks every portfolio once. Asset classes outside the domain filter
// are skipped when a filter is set. Individual price failures are logged and
// skipped; they never fail the whole assessment.
func (m *Monitor) Assess(ctx context.Context, domains []string) error {
	if m.Repo == nil {
		return fmt.Errorf("monitor has no repository")
	}
	portfolios, err := m.Repo.ListPortfolios(ctx)
	if err != nil {
		return err
	}
	for i := range portfolios {
		if err := m.assessOne(ctx, &portfolios[i], domains); err != nil {
			if m.Logger != nil {
				m.Logger.Warn("portfolio assessment failed",
					zap.String("portfolio_id", portfolios[i].ID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

func (m *Monitor) assessOne(ctx context.Context, pf *models.Portfolio, domains []string) error {
	positions, err := m.Repo.ListPositionsByPortfolio(ctx, pf.ID)
	if err != nil {
		return err
	}

	var prefs models.PortfolioPreferences
	if len(pf.Preferences) > 0 {
		_ = json.Unmarshal(pf.Preferences, &prefs)
	}
	driftTolerance := prefs.RebalanceDriftPct
	if driftTolerance <= 0 {
		driftTolerance = defaultDriftPct
	}

	cash, _ := pf.Cash.Float64()
	total := cash
	byClass := map[string]float64{}
	for _, pos := range positions {
		if pos.Status != models.PositionStatusOpen {
			continue
		}
		if len(domains) > 0 && !inDomains(domains, pos.AssetClass) {
			continue
		}
		qty, _ := pos.Quantity.Float64()
		price, _ := pos.CurrentPrice.Float64()
		if m.Prices != nil {
			if p, err := m.Prices.FetchPrice(ctx, pos.Symbol); err == nil && p > 0 {
				price = p
			} else if err != nil && m.Logger != nil {
				m.Logger.Warn("price fetch failed, using last mark",
					zap.String("symbol", pos.Symbol),
					zap.Error(err),
				)
			}
		}
		value := qty * price
		byClass[pos.AssetClass] += value
		total += value
	}
	if total <= 0 {
		return nil
	}

	for class, target := range prefs.AllocationTargets {
		current := byClass[class] / total * 100
		drift := current - target
		if drift < 0 {
			drift = -drift
		}
		if drift < driftTolerance {
			continue
		}
		if m.Events != nil {
			m.Events.Publish(events.Event{
				Type:   events.TypeRebalanceHint,
				Status: class,
				Detail: fmt.Sprintf("portfolio %s: %s at %.1f%%, target %.1f%%", pf.ID, class, byClass[class]/total*100, target),
			})
		}
		if m.Logger != nil {
			m.Logger.Info("rebalance hint",
				zap.String("portfolio_id", pf.ID),
				zap.String("asset_class", class),
				zap.Float64("current_pct", current),
				zap.Float64("target_pct", target),
			)
		}
	}
	return nil
}

func inDomains(domains []string, domain string) bool {
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}
