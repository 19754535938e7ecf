package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ideaflow/internal/models"
	"ideaflow/internal/scheduler"
)

type LoopHandler struct {
	Scheduler *scheduler.Scheduler
	Registry  *scheduler.Registry

	// Stages describe the pipeline display groups resolved from agent status.
	Stages     []scheduler.Stage
	Precedence []string
}

func (h *LoopHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/loops")
	g.GET("", h.list)
	g.GET("/:name", h.status)
	g.POST("/:name/start", h.start)
	g.POST("/:name/stop", h.stop)

	a := r.Group("/api/v1/agents")
	a.GET("", h.agents)
	a.POST("/:name/status", h.setAgentStatus)

	r.GET("/api/v1/stages", h.stages)
}

// @Summary List loop statuses
// @Tags loops
// @Success 200 {array} scheduler.LoopStatus
// @Router /api/v1/loops [get]
func (h *LoopHandler) list(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	Ok(c, h.Scheduler.StatusAll(), nil)
}

// @Summary Get one loop status
// @Tags loops
// @Success 200 {object} scheduler.LoopStatus
// @Router /api/v1/loops/{name} [get]
func (h *LoopHandler) status(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	st, err := h.Scheduler.Status(c.Param("name"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	Ok(c, st, nil)
}

type startLoopRequest struct {
	Interval string   `json:"interval"`
	Domains  []string `json:"domains"`
}

// @Summary Start (or reconfigure) a loop
// @Tags loops
// @Success 200 {object} scheduler.LoopStatus
// @Router /api/v1/loops/{name}/start [post]
func (h *LoopHandler) start(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	var req startLoopRequest
	_ = c.ShouldBindJSON(&req)
	var interval time.Duration
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			Error(c, http.StatusBadRequest, "invalid interval", nil)
			return
		}
		interval = d
	}
	name := c.Param("name")
	if err := h.Scheduler.Start(c.Request.Context(), name, interval, req.Domains); err != nil {
		if errors.Is(err, scheduler.ErrUnknownLoop) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	st, _ := h.Scheduler.Status(name)
	Ok(c, st, nil)
}

// @Summary Stop a loop
// @Tags loops
// @Success 200 {object} scheduler.LoopStatus
// @Router /api/v1/loops/{name}/stop [post]
func (h *LoopHandler) stop(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	name := c.Param("name")
	if err := h.Scheduler.Stop(c.Request.Context(), name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownLoop):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, scheduler.ErrLoopStopped):
			Error(c, http.StatusConflict, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	st, _ := h.Scheduler.Status(name)
	Ok(c, st, nil)
}

// @Summary List agents
// @Tags agents
// @Success 200 {array} models.Agent
// @Router /api/v1/agents [get]
func (h *LoopHandler) agents(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	Ok(c, h.Registry.List(), nil)
}

type setAgentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary Manually override an agent status
// @Tags agents
// @Success 200 {object} models.Agent
// @Router /api/v1/agents/{name}/status [post]
func (h *LoopHandler) setAgentStatus(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	var req setAgentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	switch req.Status {
	case models.AgentStatusRunning, models.AgentStatusIdle, models.AgentStatusError:
	default:
		Error(c, http.StatusBadRequest, "status must be running, idle or error", nil)
		return
	}
	name := c.Param("name")
	if !h.Registry.SetStatus(c.Request.Context(), name, req.Status) {
		Error(c, http.StatusNotFound, "agent not found", nil)
		return
	}
	agent, _ := h.Registry.Get(name)
	Ok(c, agent, nil)
}

// @Summary Resolve pipeline stage statuses
// @Tags agents
// @Success 200 {object} map[string]string
// @Router /api/v1/stages [get]
func (h *LoopHandler) stages(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	Ok(c, scheduler.ResolveStages(h.Registry, h.Stages, h.Precedence), nil)
}
