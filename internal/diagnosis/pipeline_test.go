package diagnosis

import (
	"context"
	"errors"
	"testing"

	"github.com/cirepair/orchestrator/internal/ports"
)

type stubSandbox struct {
	files map[string]string
}

func (s *stubSandbox) ID() string      { return "stub" }
func (s *stubSandbox) WorkDir() string { return "/work" }
func (s *stubSandbox) RunCommand(ctx context.Context, command string) (ports.CommandResult, error) {
	return ports.CommandResult{}, nil
}
func (s *stubSandbox) ReadFile(ctx context.Context, path string) (string, error) {
	if c, ok := s.files[path]; ok {
		return c, nil
	}
	return "", errors.New("stub: not found: " + path)
}
func (s *stubSandbox) WriteFile(ctx context.Context, path, content string) error { return nil }
func (s *stubSandbox) Teardown(ctx context.Context) error                       { return nil }

// TestReproductionInferenceCascadeScenario6 is spec scenario 6: no workflow
// hint, no signature match, no manifest mapping, but the root contains
// test.py — expect the safe_scan strategy to win with a positive confidence.
func TestReproductionInferenceCascadeScenario6(t *testing.T) {
	sb := &stubSandbox{files: map[string]string{"test.py": "import unittest"}}
	deps := ReproductionDeps{
		WorkflowFileContent: "",
		FilteredLog:         "plain failure, no runner signature here",
		Sandbox:             sb,
	}
	res := InferReproductionCommand(context.Background(), deps, DefaultReproductionStrategies())
	if res.Command != "python test.py" {
		t.Fatalf("Command = %q, want %q", res.Command, "python test.py")
	}
	if res.Strategy != "safe_scan" {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, "safe_scan")
	}
	if res.Confidence <= 0 {
		t.Fatalf("Confidence = %v, want > 0", res.Confidence)
	}
}

func TestReproductionInferencePrefersEarlierStrategies(t *testing.T) {
	sb := &stubSandbox{files: map[string]string{"test.py": "x", "package.json": "{}"}}
	deps := ReproductionDeps{
		WorkflowFileContent: "",
		FilteredLog:         "",
		Sandbox:             sb,
	}
	res := InferReproductionCommand(context.Background(), deps, DefaultReproductionStrategies())
	if res.Strategy != "manifest_mapping" {
		t.Fatalf("Strategy = %q, want %q (manifest_mapping must win over safe_scan)", res.Strategy, "manifest_mapping")
	}
}

func TestCleanFilePathStripsLeadingDotSlashAndSlash(t *testing.T) {
	cases := map[string]string{
		"./src/a.go": "src/a.go",
		"/src/a.go":  "src/a.go",
		"src/a.go":   "src/a.go",
		"":           "",
	}
	for in, want := range cases {
		if got := CleanFilePath(in); got != want {
			t.Errorf("CleanFilePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDiagnoseFallsBackWhenPipelinePanics(t *testing.T) {
	deps := Deps{LanguageModel: panickingLM{}}
	diag, err := Diagnose(context.Background(), deps, "Error: boom\n")
	if err != nil {
		t.Fatalf("Diagnose must absorb panics, not return an error: %v", err)
	}
	if diag.Summary != "Diagnosis Failed" || diag.Confidence != 0 {
		t.Fatalf("expected the fallback diagnosis, got %+v", diag)
	}
}

type panickingLM struct{}

func (panickingLM) Generate(ctx context.Context, bundle ports.PromptBundle) (ports.GenerateResult, error) {
	panic("simulated provider panic")
}
func (panickingLM) GenerateFix(ctx context.Context, code, errorText, context string) (ports.GenerateResult, error) {
	panic("simulated provider panic")
}

func TestDiagnoseWithoutLMStillInfersReproductionCommand(t *testing.T) {
	sb := &stubSandbox{files: map[string]string{"test.py": "x"}}
	deps := Deps{Sandbox: sb}
	diag, err := Diagnose(context.Background(), deps, "Error: boom\n")
	if err != nil {
		t.Fatal(err)
	}
	if diag.ReproductionCommand != "python test.py" {
		t.Fatalf("ReproductionCommand = %q, want %q", diag.ReproductionCommand, "python test.py")
	}
}
