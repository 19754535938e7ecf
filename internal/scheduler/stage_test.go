package scheduler

import (
	"testing"

	"ideaflow/internal/models"
)

// Every subset of a small agent set must resolve deterministically:
// any error wins, then any running, otherwise idle.
func TestResolveStageAllSubsets(t *testing.T) {
	agents := []models.Agent{
		{Name: "gen", Status: models.AgentStatusError},
		{Name: "val", Status: models.AgentStatusRunning},
		{Name: "mon", Status: models.AgentStatusIdle},
		{Name: "aux", Status: models.AgentStatusRunning},
	}
	for mask := 0; mask < 1<<len(agents); mask++ {
		var subset []models.Agent
		hasError, hasRunning := false, false
		for i, a := range agents {
			if mask&(1<<i) == 0 {
				continue
			}
			subset = append(subset, a)
			switch a.Status {
			case models.AgentStatusError:
				hasError = true
			case models.AgentStatusRunning:
				hasRunning = true
			}
		}
		want := models.AgentStatusIdle
		if hasError {
			want = models.AgentStatusError
		} else if hasRunning {
			want = models.AgentStatusRunning
		}
		if got := ResolveStage(subset, nil); got != want {
			t.Fatalf("mask %04b: ResolveStage = %s, want %s", mask, got, want)
		}
	}
}

func TestResolveStageEmptyIsIdle(t *testing.T) {
	if got := ResolveStage(nil, nil); got != models.AgentStatusIdle {
		t.Fatalf("empty stage = %s, want idle", got)
	}
}

// A custom precedence slice reorders the winner.
func TestResolveStageCustomPrecedence(t *testing.T) {
	agents := []models.Agent{
		{Name: "a", Status: models.AgentStatusError},
		{Name: "b", Status: models.AgentStatusRunning},
	}
	precedence := []string{models.AgentStatusRunning, models.AgentStatusError, models.AgentStatusIdle}
	if got := ResolveStage(agents, precedence); got != models.AgentStatusRunning {
		t.Fatalf("custom precedence = %s, want running", got)
	}
}

func TestResolveStages(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	reg.Register(ctxb(), "gen", "Generator")
	reg.Register(ctxb(), "val", "Validator")
	reg.MarkRunning(ctxb(), "val", "validating")

	out := ResolveStages(reg, []Stage{
		{Name: "Generate", Agents: []string{"gen"}},
		{Name: "Validate", Agents: []string{"val"}},
		{Name: "Empty", Agents: nil},
	}, nil)

	if out["Generate"] != models.AgentStatusIdle {
		t.Fatalf("Generate = %s, want idle", out["Generate"])
	}
	if out["Validate"] != models.AgentStatusRunning {
		t.Fatalf("Validate = %s, want running", out["Validate"])
	}
	if out["Empty"] != models.AgentStatusIdle {
		t.Fatalf("Empty = %s, want idle", out["Empty"])
	}
}
