package lifecycle

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

const markBatchSize = 500

// MarkToMarket refreshes current prices and unrealized P&L on open trades.
// Runs on a cron schedule while ideas are in monitoring.
type MarkToMarket struct {
	Repo   repository.Repository
	Prices PriceSource
	Logger *zap.Logger
}

// Refresh marks one batch of open trades. Price failures skip the trade and
// keep its last mark.
func (m *MarkToMarket) Refresh(ctx context.Context) error {
	if m.Repo == nil || m.Prices == nil {
		return nil
	}
	trades, err := m.Repo.ListOpenTrades(ctx, markBatchSize)
	if err != nil {
		return err
	}
	for _, tr := range trades {
		price, err := m.Prices.FetchPrice(ctx, tr.Symbol)
		if err != nil || price <= 0 {
			if err != nil && m.Logger != nil {
				m.Logger.Debug("mark price fetch failed",
					zap.String("symbol", tr.Symbol),
					zap.Error(err),
				)
			}
			continue
		}
		mark := decimal.NewFromFloat(price)
		unrealized := mark.Sub(tr.FillPrice).Mul(tr.Quantity)
		if tr.Direction == models.DirectionShort {
			unrealized = unrealized.Neg()
		}
		if err := m.Repo.UpdateTradeMark(ctx, tr.ID, mark, unrealized); err != nil {
			if m.Logger != nil {
				m.Logger.Warn("trade mark update failed",
					zap.Uint64("trade_id", tr.ID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}
