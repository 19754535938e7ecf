package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ideaflow/internal/models"
	"ideaflow/internal/proposal"
	"ideaflow/internal/repository"
)

type PortfolioHandler struct {
	Repo   repository.Repository
	Engine *proposal.Engine
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/portfolios")
	g.POST("", h.initialize)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/positions", h.positions)
	g.POST("/:id/propose", h.propose)
	g.POST("/recalculate", h.recalculate)
	g.POST("/:id/approve", h.approve)
}

type initializePortfolioRequest struct {
	Name        string                       `json:"name"`
	Amount      float64                      `json:"amount" binding:"required,gt=0"`
	Preferences *models.PortfolioPreferences `json:"preferences"`
}

// @Summary Initialize a portfolio with starting cash
// @Tags portfolios
// @Accept json
// @Success 200 {object} models.Portfolio
// @Router /api/v1/portfolios [post]
func (h *PortfolioHandler) initialize(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req initializePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.Preferences != nil && len(req.Preferences.AllocationTargets) > 0 {
		var sum float64
		for _, pct := range req.Preferences.AllocationTargets {
			sum += pct
		}
		if sum < 99.99 || sum > 100.01 {
			Error(c, http.StatusBadRequest, "allocation targets must sum to 100", nil)
			return
		}
	}
	name := req.Name
	if name == "" {
		name = "default"
	}
	item := &models.Portfolio{
		ID:   uuid.NewString(),
		Name: name,
		Cash: decimal.NewFromFloat(req.Amount),
	}
	if req.Preferences != nil {
		if raw, err := json.Marshal(req.Preferences); err == nil {
			item.Preferences = raw
		}
	}
	if err := h.Repo.InsertPortfolio(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List portfolios
// @Tags portfolios
// @Success 200 {array} models.Portfolio
// @Router /api/v1/portfolios [get]
func (h *PortfolioHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListPortfolios(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get one portfolio
// @Tags portfolios
// @Success 200 {object} models.Portfolio
// @Router /api/v1/portfolios/{id} [get]
func (h *PortfolioHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetPortfolioByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "portfolio not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List portfolio positions
// @Tags portfolios
// @Success 200 {array} models.Position
// @Router /api/v1/portfolios/{id}/positions [get]
func (h *PortfolioHandler) positions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListPositionsByPortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type proposeRequest struct {
	Amount   float64                  `json:"amount" binding:"required,gt=0"`
	Holdings []proposal.TargetHolding `json:"holdings" binding:"required,min=1"`
}

// @Summary Compute an allocation proposal
// @Tags portfolios
// @Accept json
// @Success 200 {object} proposal.Proposal
// @Router /api/v1/portfolios/{id}/propose [post]
func (h *PortfolioHandler) propose(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	p, err := h.Engine.Propose(c.Request.Context(), c.Param("id"), req.Amount, req.Holdings)
	if err != nil {
		proposalError(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Re-run the cost pipeline over edited holdings
// @Tags portfolios
// @Accept json
// @Success 200 {object} proposal.Proposal
// @Router /api/v1/portfolios/recalculate [post]
func (h *PortfolioHandler) recalculate(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	p, err := h.Engine.Recalculate(req.Amount, req.Holdings)
	if err != nil {
		proposalError(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Approve the last-computed proposal
// @Tags portfolios
// @Accept json
// @Success 200 {object} proposal.ApproveResult
// @Router /api/v1/portfolios/{id}/approve [post]
func (h *PortfolioHandler) approve(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	var p proposal.Proposal
	if err := c.ShouldBindJSON(&p); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	result, err := h.Engine.Approve(c.Request.Context(), c.Param("id"), &p)
	if err != nil {
		proposalError(c, err)
		return
	}
	Ok(c, result, nil)
}

func proposalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proposal.ErrPortfolioNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, proposal.ErrStaleProposal):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, proposal.ErrInsufficientData):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, proposal.ErrAllocationInfeasible):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}
