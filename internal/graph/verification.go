package graph

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

var bunRuntimeMismatchRE = regexp.MustCompile(`(?i)bun:test|bun runtime|expected bun`)

// Verification implements the Verification node handler (§4.6).
func Verification(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	if state.Diagnosis == nil {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodeAnalysis)}, nil
	}

	if state.Diagnosis.FixAction == graphstate.FixCommand {
		if state.Diagnosis.ReproductionCommand == "" {
			return graphstate.Delta{
				Status:                     graphstate.StatusPtr(graphstate.StatusFailed),
				CurrentNode:                graphstate.NodePtr(graphstate.NodeFinish),
				ReproductionCommandMissing: graphstate.BoolPtr(true),
				FailureReason:              graphstate.StrPtr("reproduction-command-missing"),
			}, nil
		}
		return runReproduction(ctx, deps, state.Diagnosis.ReproductionCommand)
	}

	testCmd, ok := selectTestCommand(ctx, deps, state)
	if !ok {
		if state.Diagnosis.ReproductionCommand != "" {
			return runReproduction(ctx, deps, state.Diagnosis.ReproductionCommand)
		}
		path := "the changed file"
		if state.ActiveFileChange != nil && state.ActiveFileChange.Path != "" {
			path = state.ActiveFileChange.Path
		}
		return graphstate.Delta{
			CurrentNode: graphstate.NodePtr(graphstate.NodeAnalysis),
			AppendFeedback: []string{fmt.Sprintf(
				"No test command available for %s; cannot verify the fix by re-running a reproduction command", path)},
		}, nil
	}

	res, err := deps.Sandbox.RunCommand(ctx, testCmd)
	if err != nil {
		return graphstate.Delta{}, err
	}
	if res.ExitCode == 0 {
		return graphstate.Delta{
			Status:      graphstate.StatusPtr(graphstate.StatusSuccess),
			CurrentNode: graphstate.NodePtr(graphstate.NodeFinish),
		}, nil
	}

	if bunRuntimeMismatchRE.MatchString(res.Stdout + res.Stderr) {
		if state.ActiveFileChange != nil {
			retryCmd := "bun test " + state.ActiveFileChange.Path
			retryRes, retryErr := deps.Sandbox.RunCommand(ctx, retryCmd)
			if retryErr == nil && retryRes.ExitCode == 0 {
				return graphstate.Delta{
					Status:      graphstate.StatusPtr(graphstate.StatusSuccess),
					CurrentNode: graphstate.NodePtr(graphstate.NodeFinish),
				}, nil
			}
		}
	}

	return graphstate.Delta{
		CurrentNode:    graphstate.NodePtr(graphstate.NodeAnalysis),
		AppendFeedback: []string{fmt.Sprintf("Verification Failed: exit code %d: %s", res.ExitCode, res.Stderr)},
	}, nil
}

func runReproduction(ctx context.Context, deps *HandlerDeps, command string) (graphstate.Delta, error) {
	res, err := deps.Sandbox.RunCommand(ctx, command)
	if err != nil {
		return graphstate.Delta{}, err
	}
	if res.ExitCode == 0 {
		return graphstate.Delta{
			Status:      graphstate.StatusPtr(graphstate.StatusSuccess),
			CurrentNode: graphstate.NodePtr(graphstate.NodeFinish),
		}, nil
	}
	return graphstate.Delta{
		CurrentNode:    graphstate.NodePtr(graphstate.NodeAnalysis),
		AppendFeedback: []string{fmt.Sprintf("Verification Failed: exit code %d: %s", res.ExitCode, res.Stderr)},
	}, nil
}

// selectTestCommand consults the pluggable TestSelector port (§9 Open
// Question, resolved) for edit fixes.
func selectTestCommand(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (string, bool) {
	if deps.TestSelector == nil || state.ActiveFileChange == nil {
		return "", false
	}
	return deps.TestSelector.SelectTestCommand(ctx, *state.ActiveFileChange, deps.Sandbox.WorkDir())
}
