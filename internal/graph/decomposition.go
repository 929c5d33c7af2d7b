package graph

import (
	"context"
	"encoding/json"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

type decompositionNodeJSON struct {
	ID            string   `json:"id"`
	Problem       string   `json:"problem"`
	Category      string   `json:"category"`
	AffectedFiles []string `json:"affectedFiles"`
	Dependencies  []string `json:"dependencies"`
	Complexity    int      `json:"complexity"`
	Priority      int      `json:"priority"`
}

type decompositionEdgeJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type decompositionResponse struct {
	ShouldDecompose bool                     `json:"shouldDecompose"`
	Nodes           []decompositionNodeJSON  `json:"nodes"`
	Edges           []decompositionEdgeJSON  `json:"edges"`
}

// Decomposition implements the Decomposition node handler (§4.6). It only
// does real work when problemComplexity > 8; the Analysis handler is
// responsible for routing here in the first place, but Decomposition
// re-checks the threshold so it behaves correctly even if reached directly.
func Decomposition(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	if state.ProblemComplexity <= decompositionComplexityThreshold {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodePlanning)}, nil
	}
	if deps.LanguageModel == nil {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodePlanning)}, nil
	}

	problem := ""
	if state.Diagnosis != nil {
		problem = state.Diagnosis.Summary
	}
	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents: "Decompose this problem into a dependency DAG of subproblems if warranted. " +
			"Respond with strict JSON {\"shouldDecompose\":bool,\"nodes\":[...],\"edges\":[...]}. Problem: " + problem,
		ResponseFormat: ports.ResponseFormatJSON,
	})
	if err != nil {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodePlanning)}, nil
	}

	var parsed decompositionResponse
	if jsonErr := json.Unmarshal([]byte(res.Text), &parsed); jsonErr != nil || !parsed.ShouldDecompose || len(parsed.Nodes) == 0 {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodePlanning)}, nil
	}

	dag := graphstate.NewErrorDAG(problem)
	for _, n := range parsed.Nodes {
		_ = dag.AddNode(graphstate.ErrorNode{
			ID:            n.ID,
			Problem:       n.Problem,
			Category:      graphstate.ErrorCategory(n.Category),
			AffectedFiles: n.AffectedFiles,
			Dependencies:  n.Dependencies,
			Complexity:    n.Complexity,
			Priority:      n.Priority,
		})
	}
	for _, e := range parsed.Edges {
		_ = dag.AddEdge(e.From, e.To)
	}

	nextID := dag.MinInDegreeHighestPriority(state.SolvedNodes)
	if nextID == "" {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodePlanning)}, nil
	}

	return graphstate.Delta{
		ErrorDAG:      dag,
		CurrentNodeID: graphstate.StrPtr(nextID),
		CurrentNode:   graphstate.NodePtr(graphstate.NodePlanning),
	}, nil
}
