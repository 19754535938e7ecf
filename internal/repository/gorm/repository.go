package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Ideas ------------------------------------------------------------------

func (s *Store) InsertIdea(ctx context.Context, item *models.Idea) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetIdeaByID(ctx context.Context, id string) (*models.Idea, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Idea
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func applyIdeaFilters(query *gorm.DB, params repository.ListIdeasParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if params.AssetClass != nil && strings.TrimSpace(*params.AssetClass) != "" {
		query = query.Where("asset_class = ?", strings.TrimSpace(*params.AssetClass))
	}
	return query
}

func (s *Store) ListIdeas(ctx context.Context, params repository.ListIdeasParams) ([]models.Idea, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyIdeaFilters(s.db.WithContext(ctx).Model(&models.Idea{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Idea
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountIdeas(ctx context.Context, params repository.ListIdeasParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	query := applyIdeaFilters(s.db.WithContext(ctx).Model(&models.Idea{}), params)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DeleteIdea(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Idea{}).Error
}

func (s *Store) IncrementIdeaFeedback(ctx context.Context, id string, up bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	column := "feedback_down"
	if up {
		column = "feedback_up"
	}
	return s.db.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

func (s *Store) ListRetryEligibleIdeas(ctx context.Context, limit int) ([]models.Idea, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Idea
	err := s.db.WithContext(ctx).
		Where("status = ?", models.IdeaStatusRejected).
		Where("retry_eligible = ?", true).
		Order("updated_at asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListIdeaOutcomesBySource(ctx context.Context) ([]repository.SourceOutcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.SourceOutcome
	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(NULLIF(source_agent, ''), source) AS source,
		       COUNT(*) AS closed,
		       COUNT(*) FILTER (WHERE outcome = ?) AS profitable
		FROM ideas
		WHERE status = ?
		GROUP BY 1`,
		models.IdeaOutcomeProfitable, models.IdeaStatusClosed,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) IdeaStatusCASTx(ctx context.Context, tx *gorm.DB, id, from, to string) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return false, nil
	}
	res := tx.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (s *Store) UpdateIdeaValidationTx(ctx context.Context, tx *gorm.DB, id string, result datatypes.JSON, retryEligible bool) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"validation_result": result,
			"retry_eligible":    retryEligible,
		}).Error
}

func (s *Store) SetIdeaOutcomeTx(ctx context.Context, tx *gorm.DB, id, outcome string, closedAt time.Time) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"outcome":   outcome,
			"closed_at": closedAt,
		}).Error
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTradesTx(ctx context.Context, tx *gorm.DB, items []models.Trade) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (s *Store) ListTradesByIdeaID(ctx context.Context, ideaID string) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Where("idea_id = ?", ideaID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TradeStatusOpen).
		Order("id asc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateTradeMark(ctx context.Context, id uint64, price, unrealized decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_price":  price,
			"unrealized_pnl": unrealized,
		}).Error
}

func (s *Store) CloseTradesForIdeaTx(ctx context.Context, tx *gorm.DB, ideaID string, at time.Time) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.Trade{}).
		Where("idea_id = ?", ideaID).
		Where("status = ?", models.TradeStatusOpen).
		Updates(map[string]any{
			"status":         models.TradeStatusClosed,
			"closed_at":      at,
			"realized_pnl":   gorm.Expr("realized_pnl + unrealized_pnl"),
			"unrealized_pnl": decimal.Zero,
		}).Error
}

// --- Agents -----------------------------------------------------------------

func (s *Store) UpsertAgent(ctx context.Context, item *models.Agent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "status", "current_task",
			"last_run_at", "run_count", "error_count", "uptime_seconds",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Agent
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Agent
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Loops ------------------------------------------------------------------

func (s *Store) UpsertLoopState(ctx context.Context, item *models.LoopState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"running", "interval_seconds", "iterations", "domain_filter", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetLoopState(ctx context.Context, name string) (*models.LoopState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.LoopState
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListLoopStates(ctx context.Context) ([]models.LoopState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LoopState
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Portfolios -------------------------------------------------------------

func (s *Store) InsertPortfolio(ctx context.Context, item *models.Portfolio) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Portfolio
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Portfolio
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetPortfolioProposalToken(ctx context.Context, id, token string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("id = ?", id).
		Update("proposal_token", token).Error
}

func (s *Store) GetPortfolioForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*models.Portfolio, error) {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return nil, nil
	}
	var item models.Portfolio
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdatePortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, cash decimal.Decimal, newToken string) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.Portfolio{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cash":           cash,
			"proposal_token": newToken,
		}).Error
}

func (s *Store) InsertPositionsTx(ctx context.Context, tx *gorm.DB, items []models.Position) error {
	if tx == nil {
		tx = s.db
	}
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (s *Store) ListPositionsByPortfolio(ctx context.Context, portfolioID string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Source credibility -----------------------------------------------------

func (s *Store) UpsertSourceCredibility(ctx context.Context, item *models.SourceCredibility) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "prior_trust", "credibility_score",
			"accuracy_history", "total_entries", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSourceCredibilityByName(ctx context.Context, name string) (*models.SourceCredibility, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SourceCredibility
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSourceCredibility(ctx context.Context) ([]models.SourceCredibility, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SourceCredibility
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(column + " " + dir)
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
