package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideaflow/internal/events"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

// transitions lists every legal edge of the idea lifecycle. rejected is
// re-enterable into validating for re-validation; closed is terminal.
var transitions = map[string][]string{
	models.IdeaStatusGenerated:  {models.IdeaStatusValidating},
	models.IdeaStatusValidating: {models.IdeaStatusValidated, models.IdeaStatusRejected},
	models.IdeaStatusValidated:  {models.IdeaStatusExecuting},
	models.IdeaStatusRejected:   {models.IdeaStatusValidating},
	models.IdeaStatusExecuting:  {models.IdeaStatusMonitoring},
	models.IdeaStatusMonitoring: {models.IdeaStatusClosed},
	models.IdeaStatusClosed:     {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PriceSource provides best-effort entry prices for trades opened when an
// idea enters executing.
type PriceSource interface {
	FetchPrice(ctx context.Context, ticker string) (float64, error)
}

// Machine owns every Idea status change. All transitions are atomic: the
// compare-and-swap on the status column and any side effects share one
// transaction, so an idea is never left partially mutated.
type Machine struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Events *events.Hub
	Prices PriceSource
}

// Transition moves an idea along one legal edge. Entering executing creates
// one open Trade per ticker leg; entering closed settles open trades and
// records the outcome (computed from realized P&L unless set via Close).
func (m *Machine) Transition(ctx context.Context, ideaID, to string) (*models.Idea, error) {
	return m.transition(ctx, ideaID, to, "")
}

// Close transitions monitoring -> closed with an explicit outcome.
func (m *Machine) Close(ctx context.Context, ideaID, outcome string) (*models.Idea, error) {
	return m.transition(ctx, ideaID, models.IdeaStatusClosed, outcome)
}

func (m *Machine) transition(ctx context.Context, ideaID, to, outcome string) (*models.Idea, error) {
	if m == nil || m.Repo == nil {
		return nil, ErrIdeaNotFound
	}
	idea, err := m.Repo.GetIdeaByID(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea == nil {
		return nil, ErrIdeaNotFound
	}
	if !CanTransition(idea.Status, to) {
		return nil, &InvalidTransitionError{IdeaID: ideaID, From: idea.Status, To: to}
	}
	if err := m.checkPreconditions(idea, to); err != nil {
		return nil, err
	}

	from := idea.Status
	err = m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		ok, err := m.Repo.IdeaStatusCASTx(ctx, tx, ideaID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with a concurrent transition.
			return &InvalidTransitionError{IdeaID: ideaID, From: from, To: to}
		}
		switch to {
		case models.IdeaStatusExecuting:
			return m.openTrades(ctx, tx, idea)
		case models.IdeaStatusClosed:
			return m.settle(ctx, tx, idea, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.Logger != nil {
		m.Logger.Info("idea transition",
			zap.String("idea_id", ideaID),
			zap.String("from", from),
			zap.String("to", to),
		)
	}
	if m.Events != nil {
		m.Events.Publish(events.Event{
			Type:   events.TypeIdeaTransition,
			IdeaID: ideaID,
			Status: to,
			Detail: from + " -> " + to,
		})
	}
	return m.Repo.GetIdeaByID(ctx, ideaID)
}

// ApplyVerdict records a validation result and moves the idea out of
// validating in one transaction: PASS -> validated, FAIL -> rejected,
// NEEDS_MORE_DATA -> rejected with the retry-eligible flag set.
func (m *Machine) ApplyVerdict(ctx context.Context, ideaID string, result models.ValidationResult) (*models.Idea, error) {
	if m == nil || m.Repo == nil {
		return nil, ErrIdeaNotFound
	}
	idea, err := m.Repo.GetIdeaByID(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea == nil {
		return nil, ErrIdeaNotFound
	}
	to := models.IdeaStatusRejected
	if result.Verdict == models.VerdictPass {
		to = models.IdeaStatusValidated
	}
	if !CanTransition(idea.Status, to) {
		return nil, &InvalidTransitionError{IdeaID: ideaID, From: idea.Status, To: to}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	retry := result.Verdict == models.VerdictNeedsMoreData
	from := idea.Status
	err = m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := m.Repo.UpdateIdeaValidationTx(ctx, tx, ideaID, raw, retry); err != nil {
			return err
		}
		ok, err := m.Repo.IdeaStatusCASTx(ctx, tx, ideaID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidTransitionError{IdeaID: ideaID, From: from, To: to}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.Events != nil {
		m.Events.Publish(events.Event{
			Type:   events.TypeIdeaTransition,
			IdeaID: ideaID,
			Status: to,
			Detail: "verdict " + result.Verdict,
		})
	}
	return m.Repo.GetIdeaByID(ctx, ideaID)
}

func (m *Machine) checkPreconditions(idea *models.Idea, to string) error {
	if to != models.IdeaStatusExecuting {
		return nil
	}
	legs := tickerLegs(idea)
	if len(legs) == 0 {
		return &PreconditionError{IdeaID: idea.ID, To: to, Reason: "idea has no tickers"}
	}
	var result models.ValidationResult
	if len(idea.ValidationResult) == 0 {
		return &PreconditionError{IdeaID: idea.ID, To: to, Reason: "idea has no validation result"}
	}
	if err := json.Unmarshal(idea.ValidationResult, &result); err != nil {
		return &PreconditionError{IdeaID: idea.ID, To: to, Reason: "validation result unreadable"}
	}
	if result.Verdict != models.VerdictPass {
		return &PreconditionError{IdeaID: idea.ID, To: to, Reason: "verdict is " + result.Verdict + ", not PASS"}
	}
	return nil
}

func (m *Machine) openTrades(ctx context.Context, tx *gorm.DB, idea *models.Idea) error {
	now := time.Now().UTC()
	legs := tickerLegs(idea)
	trades := make([]models.Trade, 0, len(legs))
	for _, leg := range legs {
		price := decimal.Zero
		if m.Prices != nil {
			if p, err := m.Prices.FetchPrice(ctx, leg.Ticker); err == nil && p > 0 {
				price = decimal.NewFromFloat(p)
			}
		}
		id := idea.ID
		trades = append(trades, models.Trade{
			IdeaID:       &id,
			Symbol:       leg.Ticker,
			Direction:    leg.Direction,
			EntryPrice:   price,
			FillPrice:    price,
			CurrentPrice: price,
			Status:       models.TradeStatusOpen,
			OpenedAt:     now,
		})
	}
	return m.Repo.InsertTradesTx(ctx, tx, trades)
}

func (m *Machine) settle(ctx context.Context, tx *gorm.DB, idea *models.Idea, outcome string) error {
	now := time.Now().UTC()
	if outcome == "" {
		outcome = m.outcomeFromTrades(ctx, idea.ID)
	}
	if err := m.Repo.CloseTradesForIdeaTx(ctx, tx, idea.ID, now); err != nil {
		return err
	}
	return m.Repo.SetIdeaOutcomeTx(ctx, tx, idea.ID, outcome, now)
}

func (m *Machine) outcomeFromTrades(ctx context.Context, ideaID string) string {
	trades, err := m.Repo.ListTradesByIdeaID(ctx, ideaID)
	if err != nil {
		return models.IdeaOutcomeUnprofitable
	}
	total := decimal.Zero
	for _, tr := range trades {
		total = total.Add(tr.RealizedPnL).Add(tr.UnrealizedPnL)
	}
	if total.GreaterThan(decimal.Zero) {
		return models.IdeaOutcomeProfitable
	}
	return models.IdeaOutcomeUnprofitable
}

func tickerLegs(idea *models.Idea) []models.TickerLeg {
	if idea == nil || len(idea.Tickers) == 0 {
		return nil
	}
	var legs []models.TickerLeg
	if err := json.Unmarshal(idea.Tickers, &legs); err != nil {
		return nil
	}
	return legs
}
