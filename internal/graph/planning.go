package graph

import (
	"context"
	"encoding/json"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

const maxPlanRevisions = 3

type planTask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type planResponse struct {
	Goal  string     `json:"goal"`
	Tasks []planTask `json:"tasks"`
}

type planJudgement struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// Planning implements the Planning node handler (§4.6): produce a plan,
// have a second LM call judge it, revise up to maxPlanRevisions times, then
// fall back to a single-task plan. It enforces the invariant that
// diagnosis.reproductionCommand must be set before routing into execution
// or repair-agent — if still absent after planning, it flags
// ReproductionCommandMissing so the Coordinator's reproduction gate halts
// the group instead of dispatching Execution without one.
func Planning(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	problem := ""
	if state.Diagnosis != nil {
		problem = state.Diagnosis.Summary
	}

	plan := planResponse{Goal: problem, Tasks: []planTask{{ID: "t1", Description: problem, Status: "pending"}}}

	if deps.LanguageModel != nil {
		for attempt := 0; attempt < maxPlanRevisions; attempt++ {
			candidate, ok := requestPlan(ctx, deps, problem, plan)
			if !ok {
				break
			}
			plan = candidate
			approved, ok := judgePlan(ctx, deps, plan)
			if ok && approved.Approved {
				break
			}
		}
	}

	nextNode := graphstate.NodeExecution
	if state.ErrorDAG != nil && state.CurrentNodeID != "" {
		nextNode = graphstate.NodeExecution
	}

	delta := graphstate.Delta{
		CurrentNode:             graphstate.NodePtr(nextNode),
		RefinedProblemStatement: graphstate.StrPtr(plan.Goal),
	}

	reproMissing := state.Diagnosis == nil || state.Diagnosis.ReproductionCommand == ""
	delta.ReproductionCommandMissing = graphstate.BoolPtr(reproMissing)

	return delta, nil
}

func requestPlan(ctx context.Context, deps *HandlerDeps, problem string, previous planResponse) (planResponse, bool) {
	prev, _ := json.Marshal(previous)
	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents: "Produce a detailed repair plan as strict JSON {\"goal\":string,\"tasks\":[{\"id\":string,\"description\":string,\"status\":string}]}. " +
			"Problem: " + problem + ". Previous attempt: " + string(prev),
		ResponseFormat: ports.ResponseFormatJSON,
	})
	if err != nil {
		return planResponse{}, false
	}
	var parsed planResponse
	if jsonErr := json.Unmarshal([]byte(res.Text), &parsed); jsonErr != nil || parsed.Goal == "" {
		return planResponse{}, false
	}
	return parsed, true
}

func judgePlan(ctx context.Context, deps *HandlerDeps, plan planResponse) (planJudgement, bool) {
	encoded, _ := json.Marshal(plan)
	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents: "Judge this repair plan. Respond with strict JSON {\"approved\":bool,\"feedback\":string}. Plan: " + string(encoded),
		ResponseFormat: ports.ResponseFormatJSON,
	})
	if err != nil {
		return planJudgement{}, false
	}
	var parsed planJudgement
	if jsonErr := json.Unmarshal([]byte(res.Text), &parsed); jsonErr != nil {
		return planJudgement{}, false
	}
	return parsed, true
}
