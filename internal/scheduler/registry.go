package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ideaflow/internal/events"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

// Registry tracks named agents. It is the shared mutable state of the
// scheduler: updates are atomic per agent, and stage resolution only reads.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
	since  map[string]time.Time

	Repo   repository.Repository
	Logger *zap.Logger
	Events *events.Hub
}

func NewRegistry(repo repository.Repository, logger *zap.Logger, hub *events.Hub) *Registry {
	return &Registry{
		agents: map[string]*models.Agent{},
		since:  map[string]time.Time{},
		Repo:   repo,
		Logger: logger,
		Events: hub,
	}
}

// Register creates (or reloads) an agent record. Agents are never deleted.
func (r *Registry) Register(ctx context.Context, name, displayName string) {
	r.mu.Lock()
	if _, ok := r.agents[name]; !ok {
		agent := &models.Agent{
			Name:        name,
			DisplayName: displayName,
			Status:      models.AgentStatusIdle,
		}
		if r.Repo != nil {
			if saved, err := r.Repo.GetAgentByName(ctx, name); err == nil && saved != nil {
				agent = saved
				agent.Status = models.AgentStatusIdle
				agent.CurrentTask = ""
			}
		}
		r.agents[name] = agent
		r.since[name] = time.Now().UTC()
	}
	r.mu.Unlock()
	r.persist(ctx, name)
}

func (r *Registry) Get(name string) (models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return models.Agent{}, false
	}
	out := *a
	out.UptimeSeconds = r.uptimeLocked(name)
	return out, true
}

// List returns a snapshot of all agents sorted by name.
func (r *Registry) List() []models.Agent {
	r.mu.RLock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	out := make([]models.Agent, 0, len(names))
	for _, name := range names {
		if a, ok := r.Get(name); ok {
			out = append(out, a)
		}
	}
	return out
}

// MarkRunning sets the agent running with a task description.
func (r *Registry) MarkRunning(ctx context.Context, name, task string) {
	r.update(ctx, name, func(a *models.Agent) {
		a.Status = models.AgentStatusRunning
		a.CurrentTask = task
	})
}

// MarkIdle records a successful run: run_count increments, last_run updates.
func (r *Registry) MarkIdle(ctx context.Context, name string) {
	now := time.Now().UTC()
	r.update(ctx, name, func(a *models.Agent) {
		a.Status = models.AgentStatusIdle
		a.CurrentTask = ""
		a.RunCount++
		a.LastRunAt = &now
	})
}

// MarkError records a failed run: error_count increments, status is error
// until the next successful tick.
func (r *Registry) MarkError(ctx context.Context, name string) {
	now := time.Now().UTC()
	r.update(ctx, name, func(a *models.Agent) {
		a.Status = models.AgentStatusError
		a.CurrentTask = ""
		a.ErrorCount++
		a.LastRunAt = &now
	})
}

// SetStatus is the manual start/stop override exposed over the API.
func (r *Registry) SetStatus(ctx context.Context, name, status string) bool {
	r.mu.RLock()
	_, ok := r.agents[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	r.update(ctx, name, func(a *models.Agent) {
		a.Status = status
		if status != models.AgentStatusRunning {
			a.CurrentTask = ""
		}
	})
	return true
}

func (r *Registry) update(ctx context.Context, name string, fn func(*models.Agent)) {
	r.mu.Lock()
	a, ok := r.agents[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	fn(a)
	a.UptimeSeconds = r.uptimeLocked(name)
	status := a.Status
	r.mu.Unlock()

	r.persist(ctx, name)
	if r.Events != nil {
		r.Events.Publish(events.Event{
			Type:   events.TypeAgentStatus,
			Agent:  name,
			Status: status,
		})
	}
}

func (r *Registry) persist(ctx context.Context, name string) {
	if r.Repo == nil {
		return
	}
	r.mu.RLock()
	a, ok := r.agents[name]
	if !ok {
		r.mu.RUnlock()
		return
	}
	snapshot := *a
	r.mu.RUnlock()
	if err := r.Repo.UpsertAgent(ctx, &snapshot); err != nil && r.Logger != nil {
		r.Logger.Warn("agent persist failed", zap.String("agent", name), zap.Error(err))
	}
}

// uptimeLocked requires at least a read lock on r.mu.
func (r *Registry) uptimeLocked(name string) int64 {
	start, ok := r.since[name]
	if !ok {
		return 0
	}
	return int64(time.Since(start).Seconds())
}
