package agents

import (
	"context"
	"fmt"
	"reach/services/runner/internal/model"
)

// StrategyPlanner is an autonomous agent that designs execution paths.
type StrategyPlanner struct {
	ModelManager *model.Manager
}

// PlanProposal represents a suggested execution strategy.
type PlanProposal struct {
	Objective    string   `json:"objective"`
	Steps        []string `json:"steps"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

func NewStrategyPlanner(mm *model.Manager) *StrategyPlanner {
	return &StrategyPlanner{ModelManager: mm}
}

// DesignStrategy generates a multi-step plan for a given objective.
func (p *StrategyPlanner) DesignStrategy(ctx context.Context, objective string, contextData string) (*PlanProposal, error) {
	fmt.Printf("Planner: Designing strategy for '%s'...\n", objective)

	// Implementation:
	// 1. Prompt model with objective and context
	// 2. Parse model output into structured steps
	// 3. Evaluate confidence based on model's internal reasoning (if available)

	proposal := &PlanProposal{
		Objective:  objective,
		Steps:      []string{"Identify core targets", "Analyze dependency graph", "Execute with adaptive retries"},
		Confidence: 0.85,
	}

	return proposal, nil
}
