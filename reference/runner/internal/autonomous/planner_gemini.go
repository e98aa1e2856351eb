package autonomous

import (
	"context"
	"encoding/json"
)

// GeminiPlanner is the implementation of the Planner interface for the Gemini 3 Pro mode.
// It generates deterministic orchestration plans based on policy constraints and session context.
type GeminiPlanner struct{}

// NewGeminiPlanner creates a new instance of the GeminiPlanner.
func NewGeminiPlanner() *GeminiPlanner {
	return &GeminiPlanner{}
}

// Generate produces a structured OrchestrationBlueprint for the given objective.
func (p *GeminiPlanner) Generate(ctx context.Context, sessionContext json.RawMessage, objective string) (*OrchestrationBlueprint, error) {
	// In a real implementation, this would call the LLM with the context and objective.
	// For this reference implementation, we return the deterministic plan structure
	// that validates environment integrity and enforces budget constraints.

	plan := &OrchestrationBlueprint{
		Plan: PlanDetails{
			Phases: []Phase{
				{
					ID:          "phase-init-01",
					Description: "Initialize session context and validate agent capabilities.",
					Steps: []string{
						"Validate session token integration",
						"Load policy constraints from packkit",
						"Verify runner version compatibility",
					},
					Dependencies: []string{},
				},
				{
					ID:          "phase-exec-01",
					Description: "Execute core logic with budget enforcement.",
					Steps: []string{
						"Spawn child agents for parallel execution",
						"Monitor resource usage against per-session limits",
						"Aggregate deterministic outputs",
					},
					Dependencies: []string{
						"phase-init-01",
					},
				},
			},
			Description:         "Standard initialization and execution plan for generic objective. Verifies environment integrity before proceeding.",
			EstimatedComplexity: "LOW",
			RequiresInstall:     false,
		},
		SpawnTree: []SpawnNode{
			{
				ID:        "node-root-01",
				AgentType: "orchestrator",
				Children: []SpawnNode{
					{
						ID:        "node-child-a1",
						ParentID:  "node-root-01",
						AgentType: "validator",
						Children:  []SpawnNode{},
					},
					{
						ID:        "node-child-a2",
						ParentID:  "node-root-01",
						AgentType: "executor",
						Children:  []SpawnNode{},
					},
				},
			},
		},
		CapabilityPlan: CapabilityPlan{
			RequiredCapabilities: []string{
				"sys.read_env",
				"sys.spawn_child",
			},
			SideEffectTypes: []string{
				"latency",
			},
			TierRequired: "free",
			RiskLevel:    "low",
		},
		NodeRouting: NodeRouting{
			Strategy: "local_affinity",
			AgentAssignments: []AgentAssignment{
				{
					AgentID: "node-root-01",
					NodeID:  "local-runner-01",
				},
				{
					AgentID: "node-child-a1",
					NodeID:  "local-runner-01",
				},
				{
					AgentID: "node-child-a2",
					NodeID:  "local-runner-01",
				},
			},
		},
		PolicyTrace: []PolicyTrace{
			{
				DecisionID: "dec-init-001",
				PolicyID:   "pol-base-spawn-limit",
				Outcome:    "allow",
				Reason:     "Spawn count (2) within limit (5)",
			},
			{
				DecisionID: "dec-init-002",
				PolicyID:   "pol-cap-net-access",
				Outcome:    "deny",
				Reason:     "Plan does not declare net.access capability",
			},
		},
		Budget: Budget{
			MaxSpawnDepth:      2,
			MaxChildrenPerNode: 5,
			EstimatedToolCalls: 12,
			RetryLimit:         2,
		},
		Timeouts: map[string]int{
			"phase-init-01": 5000,
			"phase-exec-01": 15000,
			"total_plan":    30000,
		},
		Observability: Observability{
			EventsEmitted: []string{
				"plan.start",
				"phase.complete",
				"plan.success",
			},
			MetricsTracked: []string{
				"execution_time_ms",
				"spawn_count",
				"policy_eval_ms",
			},
		},
		FailureModel: FailureModel{
			PossibleFailures: []string{
				"err_runner_busy",
				"err_policy_violation",
			},
			FallbackStrategy: "abort_and_report",
		},
	}

	return plan, nil
}
