package scheduler

import (
	"ideaflow/internal/models"
)

// DefaultStagePrecedence is the observed display precedence: any error wins,
// then any running, otherwise idle.
var DefaultStagePrecedence = []string{
	models.AgentStatusError,
	models.AgentStatusRunning,
	models.AgentStatusIdle,
}

// ResolveStage computes the display status of a pipeline stage from the
// agents assigned to it. The first precedence entry matched by any agent
// wins; an empty agent set resolves to idle.
func ResolveStage(agents []models.Agent, precedence []string) string {
	if len(precedence) == 0 {
		precedence = DefaultStagePrecedence
	}
	for _, status := range precedence {
		for _, a := range agents {
			if a.Status == status {
				return status
			}
		}
	}
	return models.AgentStatusIdle
}

// Stage groups agents under a display name (e.g. "Validate").
type Stage struct {
	Name   string   `json:"name"`
	Agents []string `json:"agents"`
}

// ResolveStages resolves every stage against the registry snapshot.
func ResolveStages(registry *Registry, stages []Stage, precedence []string) map[string]string {
	out := make(map[string]string, len(stages))
	for _, stage := range stages {
		members := make([]models.Agent, 0, len(stage.Agents))
		for _, name := range stage.Agents {
			if a, ok := registry.Get(name); ok {
				members = append(members, a)
			}
		}
		out[stage.Name] = ResolveStage(members, precedence)
	}
	return out
}
