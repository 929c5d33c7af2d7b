package graph

import (
	"context"
	"testing"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

type stubTestSelector struct {
	command string
	ok      bool
}

func (s stubTestSelector) SelectTestCommand(ctx context.Context, change graphstate.FileChange, workDir string) (string, bool) {
	return s.command, s.ok
}

func TestVerificationCommandFixRequiresReproductionCommand(t *testing.T) {
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixCommand}

	delta, err := Verification(context.Background(), &HandlerDeps{}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.Status == nil || *delta.Status != graphstate.StatusFailed {
		t.Fatalf("Status = %v, want failed", delta.Status)
	}
	if delta.CurrentNode == nil || *delta.CurrentNode != graphstate.NodeFinish {
		t.Fatalf("CurrentNode = %v, want finish", delta.CurrentNode)
	}
	if delta.ReproductionCommandMissing == nil || !*delta.ReproductionCommandMissing {
		t.Fatalf("ReproductionCommandMissing = %v, want true", delta.ReproductionCommandMissing)
	}
}

func TestVerificationCommandFixSuccess(t *testing.T) {
	sb := &scriptedSandbox{results: []ports.CommandResult{{ExitCode: 0}}}
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixCommand, ReproductionCommand: "pytest test_foo.py"}

	delta, err := Verification(context.Background(), &HandlerDeps{Sandbox: sb}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.Status == nil || *delta.Status != graphstate.StatusSuccess {
		t.Fatalf("Status = %v, want success", delta.Status)
	}
	if delta.CurrentNode == nil || *delta.CurrentNode != graphstate.NodeFinish {
		t.Fatalf("CurrentNode = %v, want finish", delta.CurrentNode)
	}
}

func TestVerificationCommandFixFailureRoutesToAnalysis(t *testing.T) {
	sb := &scriptedSandbox{results: []ports.CommandResult{{ExitCode: 1, Stderr: "AssertionError"}}}
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixCommand, ReproductionCommand: "pytest test_foo.py"}

	delta, err := Verification(context.Background(), &HandlerDeps{Sandbox: sb}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.CurrentNode == nil || *delta.CurrentNode != graphstate.NodeAnalysis {
		t.Fatalf("CurrentNode = %v, want analysis", delta.CurrentNode)
	}
	if len(delta.AppendFeedback) != 1 {
		t.Fatalf("AppendFeedback = %v, want one entry", delta.AppendFeedback)
	}
}

// TestVerificationEditFixWithoutTestSelectorRoutesBackToAnalysis pins the
// no-test-command case to the safe behavior: an edit to a file outside the
// TestSelector's known extensions must never be declared "fixed" without
// anything having been re-run. It routes back to analysis with feedback
// instead, matching the spec's note that such files "may trigger an
// Autonomous-Test-Generation path."
func TestVerificationEditFixWithoutTestSelectorRoutesBackToAnalysis(t *testing.T) {
	fc := graphstate.NewFileChange("README.md", graphstate.FileContent{Content: "old"}, graphstate.FileContent{Content: "new"}, false)
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixEdit}
	state.ActiveFileChange = &fc

	delta, err := Verification(context.Background(), &HandlerDeps{}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.Status != nil {
		t.Fatalf("Status = %v, want unset (not declared success)", delta.Status)
	}
	if delta.CurrentNode == nil || *delta.CurrentNode != graphstate.NodeAnalysis {
		t.Fatalf("CurrentNode = %v, want analysis", delta.CurrentNode)
	}
	if len(delta.AppendFeedback) != 1 {
		t.Fatalf("AppendFeedback = %v, want one entry", delta.AppendFeedback)
	}
}

func TestVerificationEditFixRunsSelectedTestCommand(t *testing.T) {
	sb := &scriptedSandbox{results: []ports.CommandResult{{ExitCode: 0}}}
	fc := graphstate.NewFileChange("f.py", graphstate.FileContent{Content: "old"}, graphstate.FileContent{Content: "new"}, false)
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixEdit}
	state.ActiveFileChange = &fc

	delta, err := Verification(context.Background(), &HandlerDeps{
		Sandbox:      sb,
		TestSelector: stubTestSelector{command: "pytest f.py", ok: true},
	}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sb.calls) != 1 || sb.calls[0] != "pytest f.py" {
		t.Fatalf("calls = %v, want exactly [pytest f.py]", sb.calls)
	}
	if delta.Status == nil || *delta.Status != graphstate.StatusSuccess {
		t.Fatalf("Status = %v, want success", delta.Status)
	}
}

// TestVerificationBunRuntimeMismatchRetries exercises the Bun-runtime-
// mismatch retry path for JS/TS edit fixes.
func TestVerificationBunRuntimeMismatchRetries(t *testing.T) {
	sb := &scriptedSandbox{results: []ports.CommandResult{
		{ExitCode: 1, Stderr: "error: expected bun runtime, found node"},
		{ExitCode: 0},
	}}
	fc := graphstate.NewFileChange("f.ts", graphstate.FileContent{Content: "old"}, graphstate.FileContent{Content: "new"}, false)
	state := graphstate.NewGraphState(fixedTime())
	state.Diagnosis = &graphstate.Diagnosis{FixAction: graphstate.FixEdit}
	state.ActiveFileChange = &fc

	delta, err := Verification(context.Background(), &HandlerDeps{
		Sandbox:      sb,
		TestSelector: stubTestSelector{command: "npm test", ok: true},
	}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sb.calls) != 2 {
		t.Fatalf("calls = %v, want exactly 2 commands", sb.calls)
	}
	if sb.calls[1] != "bun test f.ts" {
		t.Fatalf("calls[1] = %q, want bun test retry", sb.calls[1])
	}
	if delta.Status == nil || *delta.Status != graphstate.StatusSuccess {
		t.Fatalf("Status = %v, want success", delta.Status)
	}
}
