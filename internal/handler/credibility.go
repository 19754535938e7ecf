package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ideaflow/internal/feedback"
	"ideaflow/internal/repository"
)

type CredibilityHandler struct {
	Repo       repository.Repository
	Aggregator *feedback.Aggregator
}

func (h *CredibilityHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/credibility")
	g.GET("", h.list)
	g.POST("/recompute", h.recompute)
}

// @Summary List source credibility scores
// @Tags credibility
// @Success 200 {array} models.SourceCredibility
// @Router /api/v1/credibility [get]
func (h *CredibilityHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListSourceCredibility(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Recompute credibility from closed-idea outcomes
// @Tags credibility
// @Success 200 {object} map[string]string
// @Router /api/v1/credibility/recompute [post]
func (h *CredibilityHandler) recompute(c *gin.Context) {
	if h.Aggregator == nil {
		Error(c, http.StatusInternalServerError, "aggregator unavailable", nil)
		return
	}
	if err := h.Aggregator.RecomputeCredibility(c.Request.Context()); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"status": "recomputed"}, nil)
}
