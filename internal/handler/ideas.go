package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ideaflow/internal/feedback"
	"ideaflow/internal/lifecycle"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
	"ideaflow/internal/validation"
)

type IdeaHandler struct {
	Repo      repository.Repository
	Machine   *lifecycle.Machine
	Validator *validation.Service
	Feedback  *feedback.Aggregator
}

func (h *IdeaHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/ideas")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/validate", h.validate)
	g.POST("/:id/execute", h.execute)
	g.POST("/:id/close", h.close)
	g.POST("/:id/feedback", h.feedback)
	g.DELETE("/:id", h.remove)
}

type createIdeaRequest struct {
	Title      string             `json:"title" binding:"required"`
	Thesis     string             `json:"thesis"`
	AssetClass string             `json:"asset_class"`
	Timeframe  string             `json:"timeframe"`
	Tickers    []models.TickerLeg `json:"tickers" binding:"required,min=1"`
	Conviction float64            `json:"conviction"`
	Tags       []string           `json:"tags"`
	Source     string             `json:"source"`
}

// @Summary Create an idea
// @Tags ideas
// @Accept json
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas [post]
func (h *IdeaHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.Conviction < 0 || req.Conviction > 1 {
		Error(c, http.StatusBadRequest, "conviction must be in [0,1]", nil)
		return
	}
	for _, leg := range req.Tickers {
		if strings.TrimSpace(leg.Ticker) == "" {
			Error(c, http.StatusBadRequest, "ticker leg missing symbol", nil)
			return
		}
		if leg.Direction != models.DirectionLong && leg.Direction != models.DirectionShort {
			Error(c, http.StatusBadRequest, "ticker direction must be long or short", nil)
			return
		}
	}
	source := models.IdeaSourceHuman
	if req.Source == models.IdeaSourceAgent {
		source = models.IdeaSourceAgent
	}
	tickers, err := json.Marshal(req.Tickers)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid tickers", nil)
		return
	}
	item := &models.Idea{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Thesis:     req.Thesis,
		AssetClass: req.AssetClass,
		Timeframe:  req.Timeframe,
		Tickers:    tickers,
		Conviction: req.Conviction,
		Status:     models.IdeaStatusGenerated,
		Source:     source,
	}
	if len(req.Tags) > 0 {
		if raw, err := json.Marshal(req.Tags); err == nil {
			item.Tags = raw
		}
	}
	if err := h.Repo.InsertIdea(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List ideas
// @Tags ideas
// @Success 200 {array} models.Idea
// @Router /api/v1/ideas [get]
func (h *IdeaHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"conviction": "conviction",
	})
	params := repository.ListIdeasParams{
		Limit:      limit,
		Offset:     offset,
		Status:     strQueryPtr(c, "status"),
		Source:     strQueryPtr(c, "source"),
		AssetClass: strQueryPtr(c, "asset_class"),
		OrderBy:    orderBy,
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListIdeas(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountIdeas(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one idea
// @Tags ideas
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas/{id} [get]
func (h *IdeaHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetIdeaByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "idea not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Run the validation pipeline on an idea
// @Tags ideas
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas/{id}/validate [post]
func (h *IdeaHandler) validate(c *gin.Context) {
	if h.Validator == nil {
		Error(c, http.StatusInternalServerError, "validator unavailable", nil)
		return
	}
	item, err := h.Validator.ValidateIdea(c.Request.Context(), c.Param("id"))
	if err != nil {
		transitionError(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Execute a validated idea
// @Tags ideas
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas/{id}/execute [post]
func (h *IdeaHandler) execute(c *gin.Context) {
	if h.Machine == nil {
		Error(c, http.StatusInternalServerError, "machine unavailable", nil)
		return
	}
	item, err := h.Machine.Transition(c.Request.Context(), c.Param("id"), models.IdeaStatusExecuting)
	if err != nil {
		transitionError(c, err)
		return
	}
	// Execution is immediately handed to monitoring; trades are open.
	item, err = h.Machine.Transition(c.Request.Context(), item.ID, models.IdeaStatusMonitoring)
	if err != nil {
		transitionError(c, err)
		return
	}
	Ok(c, item, nil)
}

type closeIdeaRequest struct {
	Outcome string `json:"outcome"`
}

// @Summary Close a monitored idea
// @Tags ideas
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas/{id}/close [post]
func (h *IdeaHandler) close(c *gin.Context) {
	if h.Machine == nil {
		Error(c, http.StatusInternalServerError, "machine unavailable", nil)
		return
	}
	var req closeIdeaRequest
	_ = c.ShouldBindJSON(&req)
	if req.Outcome != "" &&
		req.Outcome != models.IdeaOutcomeProfitable &&
		req.Outcome != models.IdeaOutcomeUnprofitable {
		Error(c, http.StatusBadRequest, "outcome must be profitable or unprofitable", nil)
		return
	}
	item, err := h.Machine.Close(c.Request.Context(), c.Param("id"), req.Outcome)
	if err != nil {
		transitionError(c, err)
		return
	}
	Ok(c, item, nil)
}

type feedbackRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// @Summary Record thumbs-up or thumbs-down feedback
// @Tags ideas
// @Success 200 {object} models.Idea
// @Router /api/v1/ideas/{id}/feedback [post]
func (h *IdeaHandler) feedback(c *gin.Context) {
	if h.Feedback == nil {
		Error(c, http.StatusInternalServerError, "feedback unavailable", nil)
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var up bool
	switch strings.ToLower(req.Direction) {
	case "up":
		up = true
	case "down":
		up = false
	default:
		Error(c, http.StatusBadRequest, "direction must be up or down", nil)
		return
	}
	item, err := h.Feedback.Vote(c.Request.Context(), c.Param("id"), up)
	if err != nil {
		if errors.Is(err, feedback.ErrIdeaNotFound) {
			Error(c, http.StatusNotFound, "idea not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete an idea
// @Tags ideas
// @Success 200 {object} map[string]string
// @Router /api/v1/ideas/{id} [delete]
func (h *IdeaHandler) remove(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := c.Param("id")
	item, err := h.Repo.GetIdeaByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "idea not found", nil)
		return
	}
	if err := h.Repo.DeleteIdea(c.Request.Context(), id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"deleted": id}, nil)
}

// transitionError maps lifecycle failures onto HTTP statuses with enough
// context for the caller to see current vs requested state.
func transitionError(c *gin.Context, err error) {
	var invalid *lifecycle.InvalidTransitionError
	var precond *lifecycle.PreconditionError
	switch {
	case errors.Is(err, lifecycle.ErrIdeaNotFound):
		Error(c, http.StatusNotFound, "idea not found", nil)
	case errors.As(err, &invalid):
		Error(c, http.StatusConflict, invalid.Error(), map[string]any{
			"from": invalid.From,
			"to":   invalid.To,
		})
	case errors.As(err, &precond):
		Error(c, http.StatusUnprocessableEntity, precond.Error(), map[string]any{
			"to":     precond.To,
			"reason": precond.Reason,
		})
	default:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}
