package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ideaflow/internal/models"
)

type ListIdeasParams struct {
	Limit      int
	Offset     int
	Status     *string
	Source     *string
	AssetClass *string
	OrderBy    string
	Asc        *bool
}

// SourceOutcome is one row of the per-source closed-idea outcome aggregate
// consumed by the credibility recompute.
type SourceOutcome struct {
	Source     string
	Closed     int64
	Profitable int64
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Ideas
	InsertIdea(ctx context.Context, item *models.Idea) error
	GetIdeaByID(ctx context.Context, id string) (*models.Idea, error)
	ListIdeas(ctx context.Context, params ListIdeasParams) ([]models.Idea, error)
	CountIdeas(ctx context.Context, params ListIdeasParams) (int64, error)
	DeleteIdea(ctx context.Context, id string) error
	IncrementIdeaFeedback(ctx context.Context, id string, up bool) error
	ListRetryEligibleIdeas(ctx context.Context, limit int) ([]models.Idea, error)
	ListIdeaOutcomesBySource(ctx context.Context) ([]SourceOutcome, error)

	// Idea mutations scoped to a transition transaction.
	IdeaStatusCASTx(ctx context.Context, tx *gorm.DB, id, from, to string) (bool, error)
	UpdateIdeaValidationTx(ctx context.Context, tx *gorm.DB, id string, result datatypes.JSON, retryEligible bool) error
	SetIdeaOutcomeTx(ctx context.Context, tx *gorm.DB, id, outcome string, closedAt time.Time) error

	// Trades
	InsertTradesTx(ctx context.Context, tx *gorm.DB, items []models.Trade) error
	ListTradesByIdeaID(ctx context.Context, ideaID string) ([]models.Trade, error)
	ListOpenTrades(ctx context.Context, limit int) ([]models.Trade, error)
	UpdateTradeMark(ctx context.Context, id uint64, price, unrealized decimal.Decimal) error
	CloseTradesForIdeaTx(ctx context.Context, tx *gorm.DB, ideaID string, at time.Time) error

	// Agents
	UpsertAgent(ctx context.Context, item *models.Agent) error
	GetAgentByName(ctx context.Context, name string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)

	// Loops
	UpsertLoopState(ctx context.Context, item *models.LoopState) error
	GetLoopState(ctx context.Context, name string) (*models.LoopState, error)
	ListLoopStates(ctx context.Context) ([]models.LoopState, error)

	// Portfolios
	InsertPortfolio(ctx context.Context, item *models.Portfolio) error
	GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]models.Portfolio, error)
	SetPortfolioProposalToken(ctx context.Context, id, token string) error
	GetPortfolioForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Portfolio, error)
	UpdatePortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, cash decimal.Decimal, newToken string) error
	InsertPositionsTx(ctx context.Context, tx *gorm.DB, items []models.Position) error
	ListPositionsByPortfolio(ctx context.Context, portfolioID string) ([]models.Position, error)

	// Source credibility
	UpsertSourceCredibility(ctx context.Context, item *models.SourceCredibility) error
	GetSourceCredibilityByName(ctx context.Context, name string) (*models.SourceCredibility, error)
	ListSourceCredibility(ctx context.Context) ([]models.SourceCredibility, error)
}
