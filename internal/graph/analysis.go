package graph

import (
	"context"
	"strings"

	"github.com/cirepair/orchestrator/internal/diagnosis"
	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/loopguard"
	"github.com/cirepair/orchestrator/internal/ports"
)

const maxLogFallbackAttempts = 3

// decompositionComplexityThreshold routes to decomposition once
// problemComplexity exceeds this value.
const decompositionComplexityThreshold = 8

// Analysis implements the Analysis node handler (§4.6).
func Analysis(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	logText, err := fetchLogsWithFallback(ctx, deps)
	if err != nil {
		return graphstate.Delta{}, err
	}
	if logText == ports.NoFailedJobFound {
		// No failure persists across every fallback strategy: benign outcome.
		return graphstate.Delta{
			CurrentNode: graphstate.NodePtr(graphstate.NodeFinish),
			Status:      graphstate.StatusPtr(graphstate.StatusSuccess),
			Message:     graphstate.StrPtr("no failed job found after fallback strategies"),
		}, nil
	}

	if deps.Detector != nil && deps.Detector.HallucinationCount(deps.GroupID) >= loopguard.HallucinationThreshold {
		logText = loopguard.StrategyShiftBanner + "\n" + logText
	}

	diag, err := diagnosis.Diagnose(ctx, diagnosis.Deps{
		LanguageModel:       deps.LanguageModel,
		Sandbox:             deps.Sandbox,
		WorkflowFileContent: deps.WorkflowFileContent,
		RepoManifest:        deps.RepoManifest,
		FaultLocalization:   deps.FaultLocalization,
	}, logText)
	if err != nil {
		return graphstate.Delta{}, err
	}

	delta := graphstate.Delta{Diagnosis: &diag}

	var history []graphstate.Classification
	if state.Classification != nil {
		history = append(history, *state.Classification)
	}
	if deps.Classifier != nil {
		classification, classErr := deps.Classifier.Classify(ctx, logText, history)
		if classErr == nil {
			delta.Classification = &classification
			if isMinimalPriorityNoSignal(classification) {
				delta.Status = graphstate.StatusPtr(graphstate.StatusSuccess)
				delta.CurrentNode = graphstate.NodePtr(graphstate.NodeFinish)
				delta.Message = graphstate.StrPtr("minimal priority, no actionable signal")
				return delta, nil
			}
		}
	}

	complexity := 0
	if deps.ComplexityEstimator != nil {
		complexity, _ = deps.ComplexityEstimator.Estimate(ctx, state)
	}
	delta.AppendComplexity = graphstate.IntPtr(complexity)

	switch {
	case complexity > decompositionComplexityThreshold:
		delta.CurrentNode = graphstate.NodePtr(graphstate.NodeDecomposition)
	default:
		delta.CurrentNode = graphstate.NodePtr(graphstate.NodePlanning)
	}
	return delta, nil
}

// fetchLogsWithFallback fetches logs for deps.RunID and, on the
// ports.NoFailedJobFound sentinel, retries the three named fallback
// strategies in order (§4.6): a distinct job from the same failing batch,
// the parent run, then a re-poll of the original run.
func fetchLogsWithFallback(ctx context.Context, deps *HandlerDeps) (string, error) {
	if deps.LogSource == nil {
		return "", nil
	}
	text, err := fetchLogText(ctx, deps, deps.RunID)
	if err != nil {
		return "", err
	}

	for _, runID := range logFallbackRunIDs(deps) {
		if text != ports.NoFailedJobFound {
			break
		}
		text, err = fetchLogText(ctx, deps, runID)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}

func fetchLogText(ctx context.Context, deps *HandlerDeps, runID string) (string, error) {
	logs, err := deps.LogSource.FetchWorkflowLogs(ctx, deps.Repo, runID)
	if err != nil {
		return "", err
	}
	return logs.LogText, nil
}

// logFallbackRunIDs returns up to maxLogFallbackAttempts run IDs to retry
// against, one per named strategy: the first sibling job in the same
// failing batch (distinct job), the parent run, then the original run
// again (workflow re-poll, in case CI log ingestion simply lagged).
func logFallbackRunIDs(deps *HandlerDeps) []string {
	var runIDs []string
	for _, id := range deps.FailingRunIDs {
		if id != "" && id != deps.RunID {
			runIDs = append(runIDs, id)
			break
		}
	}
	if deps.ParentRunID != "" && deps.ParentRunID != deps.RunID {
		runIDs = append(runIDs, deps.ParentRunID)
	}
	runIDs = append(runIDs, deps.RunID)
	if len(runIDs) > maxLogFallbackAttempts {
		runIDs = runIDs[:maxLogFallbackAttempts]
	}
	return runIDs
}

func isMinimalPriorityNoSignal(c graphstate.Classification) bool {
	return strings.TrimSpace(c.SuggestedAction) == "" && c.Confidence < 0.1
}
