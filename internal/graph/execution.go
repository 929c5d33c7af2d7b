package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

const defaultLockTimeout = 30 * time.Second

// selfHealPackageMap maps a missing command-line tool to the OS package
// that installs it (§4.6 Execution command branch, GLOSSARY "Self-heal").
var selfHealPackageMap = map[string]string{
	"docker": "docker.io",
	"pip":    "python3-pip",
	"npm":    "nodejs",
	"git":    "git",
	"curl":   "curl",
	"zip":    "zip",
	"unzip":  "unzip",
}

var commandNotFoundRE = regexp.MustCompile(`:\s*([\w.-]+):\s*(?:command )?not found`)

// Execution implements the Execution node handler (§4.6).
func Execution(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	if state.Diagnosis == nil {
		return graphstate.Delta{
			CurrentNode: graphstate.NodePtr(graphstate.NodeAnalysis),
			AppendFeedback: []string{"Execution invoked without a diagnosis"},
		}, nil
	}

	if state.Diagnosis.FixAction == graphstate.FixCommand {
		return executeCommandFix(ctx, deps, state)
	}
	return executeEditFix(ctx, deps, state)
}

func executeCommandFix(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	cmd := state.Diagnosis.SuggestedCommand
	res, err := deps.Sandbox.RunCommand(ctx, cmd)
	if err != nil {
		return graphstate.Delta{}, err
	}
	if res.ExitCode == 0 {
		return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodeVerification)}, nil
	}

	if res.ExitCode == 127 {
		if m := commandNotFoundRE.FindStringSubmatch(res.Stderr); len(m) == 2 {
			if pkg, ok := selfHealPackageMap[m[1]]; ok {
				installRes, installErr := deps.Sandbox.RunCommand(ctx, fmt.Sprintf("apt-get update && apt-get install -y %s", pkg))
				if installErr == nil && installRes.ExitCode == 0 {
					retryRes, retryErr := deps.Sandbox.RunCommand(ctx, cmd)
					if retryErr == nil && retryRes.ExitCode == 0 {
						return graphstate.Delta{CurrentNode: graphstate.NodePtr(graphstate.NodeVerification)}, nil
					}
					res = retryRes
				}
			}
		}
	}

	feedback := fmt.Sprintf("Command Failed (Exit Code %d): stdout %s stderr %s", res.ExitCode, res.Stdout, res.Stderr)
	return graphstate.Delta{
		CurrentNode:    graphstate.NodePtr(graphstate.NodeAnalysis),
		AppendFeedback: []string{feedback},
	}, nil
}

func executeEditFix(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	hint := state.Diagnosis.FilePath
	path := hint

	if deps.FileDiscovery != nil {
		discovery, err := deps.FileDiscovery.FindUniqueFile(ctx, hint, deps.Sandbox.WorkDir())
		if err == nil {
			switch {
			case !discovery.Found && len(discovery.Matches) > 1:
				if deps.Detector != nil {
					deps.Detector.RecordHallucination(deps.GroupID, hint)
				}
				return graphstate.Delta{
					CurrentNode: graphstate.NodePtr(graphstate.NodeAnalysis),
					AppendFeedback: []string{fmt.Sprintf(
						"Path Hallucination: Multiple files named %q: %s", hint, strings.Join(discovery.Matches, ", "))},
				}, nil
			case discovery.Found && discovery.Path != "" && discovery.Path != hint:
				path = discovery.Path
				if deps.Log != nil {
					deps.Log(ports.LogInfo, fmt.Sprintf("corrected path %q -> %q", hint, path), "", "")
				}
			}
		}
	}

	original := ""
	if fc, ok := state.Files[path]; ok {
		original = fc.Original.Content
	} else if deps.Sandbox != nil {
		// A "not found" read is acceptable here — it means create mode.
		if content, err := deps.Sandbox.ReadFile(ctx, path); err == nil {
			original = content
		}
	}

	errorText := state.Diagnosis.Summary
	contextText := state.RefinedProblemStatement

	res, err := deps.LanguageModel.GenerateFix(ctx, original, errorText, contextText)
	if err != nil {
		return graphstate.Delta{}, err
	}

	// Invariant I5: only the content of a fenced code block may reach disk.
	fixed, ok := ExtractFencedCodeBlock(res.Text)
	if !ok {
		return graphstate.Delta{
			AppendFeedback: []string{"Lint Error: language model response contained no fenced code block"},
		}, nil
	}

	if lintErr := lintContent(path, fixed); lintErr != nil {
		return graphstate.Delta{
			AppendFeedback: []string{"Lint Error: " + lintErr.Error()},
		}, nil
	}

	if deps.FileLock != nil {
		timeout := deps.LockTimeout
		if timeout <= 0 {
			timeout = defaultLockTimeout
		}
		if !deps.FileLock.Acquire(ctx, deps.GroupID, path, timeout) {
			return graphstate.Delta{
				AppendFeedback: []string{fmt.Sprintf("Lock contention: timed out waiting to reserve %s", path)},
			}, nil
		}
		defer deps.FileLock.Release(deps.GroupID, path)
	}

	if err := deps.Sandbox.WriteFile(ctx, path, fixed); err != nil {
		return graphstate.Delta{}, err
	}
	if deps.Persistence != nil {
		_ = deps.Persistence.RecordFileModification(ctx, deps.GroupID, path)
	}

	fc := graphstate.NewFileChange(path, graphstate.FileContent{Content: original}, graphstate.FileContent{Content: fixed}, false)
	delta := graphstate.Delta{
		MergeFiles:       map[string]graphstate.FileChange{path: fc},
		ActiveFileChange: &fc,
		ReserveFiles:     []string{path},
	}

	if state.ErrorDAG != nil && state.CurrentNodeID != "" {
		delta.SolveNodes = []string{state.CurrentNodeID}
		delta.CurrentNode = graphstate.NodePtr(graphstate.NodePlanning)
		return delta, nil
	}

	delta.CurrentNode = graphstate.NodePtr(graphstate.NodeVerification)
	return delta, nil
}

// lintContent is a conservative sanity check standing in for a real
// language-aware linter (sandbox provider internals are out of scope per
// §1): reject empty output and obviously unbalanced braces/brackets.
func lintContent(path, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("generated content for %s is empty", path)
	}
	if !bracesBalanced(content) {
		return fmt.Errorf("generated content for %s has unbalanced braces/brackets/parens", path)
	}
	return nil
}

func bracesBalanced(s string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
