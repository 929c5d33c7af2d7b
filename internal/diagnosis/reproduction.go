package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/cirepair/orchestrator/internal/ports"
)

// ReproductionInferenceResult is the output of one reproduction-inference
// strategy (stage 7).
type ReproductionInferenceResult struct {
	Command    string
	Confidence float64
	Strategy   string
	Reasoning  string
}

// ReproductionStrategy is one named inference attempt, implemented as a
// function value in a priority-ordered slice — the teacher's
// HandlerRegistry dispatch-table-as-data design, applied here to strategy
// selection instead of node dispatch.
type ReproductionStrategy func(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool)

// ReproductionDeps bundles what a reproduction strategy may consult.
type ReproductionDeps struct {
	WorkflowFileContent string
	FilteredLog         string
	Sandbox             ports.Sandbox
	LanguageModel       ports.LanguageModel
	RepoManifest        string
}

var wellKnownTestRunnerSignatures = []struct {
	marker  string
	command string
}{
	{"pytest", "pytest"},
	{"jest", "npx jest"},
	{"vitest", "npx vitest run"},
	{"go test", "go test ./..."},
	{"cargo test", "cargo test"},
	{"mvn test", "mvn test"},
	{"rspec", "bundle exec rspec"},
}

var manifestTestCommands = []struct {
	manifest string
	command  string
}{
	{"package.json", "npm test"},
	{"go.mod", "go test ./..."},
	{"Cargo.toml", "cargo test"},
	{"pyproject.toml", "pytest"},
	{"requirements.txt", "pytest"},
	{"pom.xml", "mvn test"},
	{"Gemfile", "bundle exec rspec"},
}

// StrategyExtractFromWorkflow is strategy (a).
func StrategyExtractFromWorkflow(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool) {
	content := deps.WorkflowFileContent
	for _, sig := range wellKnownTestRunnerSignatures {
		if strings.Contains(content, sig.marker) {
			return ReproductionInferenceResult{
				Command: sig.command, Confidence: 0.9, Strategy: "workflow_extract",
				Reasoning: fmt.Sprintf("workflow file references %q", sig.marker),
			}, true
		}
	}
	return ReproductionInferenceResult{}, false
}

// StrategySignatureMatch is strategy (b).
func StrategySignatureMatch(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool) {
	log := deps.FilteredLog
	for _, sig := range wellKnownTestRunnerSignatures {
		if strings.Contains(log, sig.marker) {
			return ReproductionInferenceResult{
				Command: sig.command, Confidence: 0.75, Strategy: "signature_match",
				Reasoning: fmt.Sprintf("log references test runner %q", sig.marker),
			}, true
		}
	}
	return ReproductionInferenceResult{}, false
}

// StrategyManifestMapping is strategy (c).
func StrategyManifestMapping(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool) {
	if deps.Sandbox == nil {
		return ReproductionInferenceResult{}, false
	}
	for _, m := range manifestTestCommands {
		if _, err := deps.Sandbox.ReadFile(ctx, m.manifest); err == nil {
			return ReproductionInferenceResult{
				Command: m.command, Confidence: 0.7, Strategy: "manifest_mapping",
				Reasoning: fmt.Sprintf("found build manifest %q", m.manifest),
			}, true
		}
	}
	return ReproductionInferenceResult{}, false
}

// StrategyLMRetry is strategy (d): retry with the repo manifest as context.
func StrategyLMRetry(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool) {
	if deps.LanguageModel == nil || strings.TrimSpace(deps.RepoManifest) == "" {
		return ReproductionInferenceResult{}, false
	}
	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents: fmt.Sprintf(
			"Given this project manifest, reply with only the shell command that runs this project's test suite:\n%s",
			deps.RepoManifest,
		),
		ResponseFormat: ports.ResponseFormatText,
	})
	if err != nil {
		return ReproductionInferenceResult{}, false
	}
	cmd := CleanSuggestedCommand(res.Text)
	if cmd == "" {
		return ReproductionInferenceResult{}, false
	}
	return ReproductionInferenceResult{
		Command: cmd, Confidence: 0.5, Strategy: "lm_retry",
		Reasoning: "language model inferred a test command from the repo manifest",
	}, true
}

var safeScanCandidates = []string{"test.py", "test.js", "test.ts", "main_test.go"}
var safeScanDirs = []string{"tests", "test", "__tests__"}

// StrategySafeScan is strategy (e): find a root-level test file or
// conventional tests/ directory and return a best-effort invocation.
func StrategySafeScan(ctx context.Context, deps ReproductionDeps) (ReproductionInferenceResult, bool) {
	if deps.Sandbox == nil {
		return ReproductionInferenceResult{}, false
	}
	for _, candidate := range safeScanCandidates {
		if _, err := deps.Sandbox.ReadFile(ctx, candidate); err == nil {
			cmd := safeScanCommandFor(candidate)
			return ReproductionInferenceResult{
				Command: cmd, Confidence: 0.3, Strategy: "safe_scan",
				Reasoning: fmt.Sprintf("found root-level test file %q", candidate),
			}, true
		}
	}
	for _, dir := range safeScanDirs {
		// Reading a directory path returns an error, but a distinct one from
		// "not found" — that distinction is exactly what signals "exists".
		if _, err := deps.Sandbox.ReadFile(ctx, dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ReproductionInferenceResult{
				Command: "true # no safe default runner for " + dir, Confidence: 0.15, Strategy: "safe_scan",
				Reasoning: fmt.Sprintf("found conventional test directory %q", dir),
			}, true
		}
	}
	return ReproductionInferenceResult{}, false
}

func safeScanCommandFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".py"):
		return "python " + path
	case strings.HasSuffix(path, ".go"):
		return "go test ./..."
	default:
		return "node " + path
	}
}

// DefaultReproductionStrategies is the priority-ordered cascade (a)-(e).
func DefaultReproductionStrategies() []ReproductionStrategy {
	return []ReproductionStrategy{
		StrategyExtractFromWorkflow,
		StrategySignatureMatch,
		StrategyManifestMapping,
		StrategyLMRetry,
		StrategySafeScan,
	}
}

// InferReproductionCommand runs each strategy in order, stopping at the
// first non-empty command (stage 7).
func InferReproductionCommand(ctx context.Context, deps ReproductionDeps, strategies []ReproductionStrategy) ReproductionInferenceResult {
	for _, strategy := range strategies {
		if res, ok := strategy(ctx, deps); ok && res.Command != "" {
			return res
		}
	}
	return ReproductionInferenceResult{}
}
