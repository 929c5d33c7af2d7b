// Package ports defines the external-collaborator interfaces (C1, C2) the
// orchestrator depends on. Their internals are deliberately not prescribed
// beyond what is needed to compile and test — concrete implementations live
// in package adapters and package sandbox.
package ports

import (
	"context"
	"time"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

// Sandbox is the uniform interface to an isolated workspace (C1).
type Sandbox interface {
	ID() string
	WorkDir() string
	RunCommand(ctx context.Context, command string) (CommandResult, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	Teardown(ctx context.Context) error
}

// CommandResult is the outcome of a Sandbox.RunCommand call.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// WorkflowLogs is the LogSource return value.
type WorkflowLogs struct {
	LogText string
	JobName string
	HeadSHA string
}

// NoFailedJobFound is the sentinel LogText signaling the caller must attempt
// fallback strategies (distinct job, parent run, workflow re-poll).
const NoFailedJobFound = "No failed job found"

// LogSource fetches CI workflow logs for a given repo/run.
type LogSource interface {
	FetchWorkflowLogs(ctx context.Context, repo, runID string) (WorkflowLogs, error)
}

// ResponseFormat constrains what shape a LanguageModel.Generate call expects back.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json"
)

// PromptBundle is the LanguageModel.Generate input.
type PromptBundle struct {
	Contents       string
	Model          string
	Config         map[string]string
	ResponseFormat ResponseFormat
	// Validate, when non-nil, is applied to the raw response text before
	// Generate returns; a non-nil error is surfaced to the caller instead of
	// a malformed GenerateResult.
	Validate func(text string) error
}

// ToolCall is one function/tool invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// GenerateResult is the LanguageModel.Generate output.
type GenerateResult struct {
	Text      string
	ToolCalls []ToolCall
	Metrics   map[string]float64
}

// LanguageModel is the LM oracle port. Implementations must retry transient
// network/5xx errors with exponential backoff up to 3 attempts (§7) before
// returning an error to the caller.
type LanguageModel interface {
	Generate(ctx context.Context, bundle PromptBundle) (GenerateResult, error)
	// GenerateFix asks for a code edit; the caller must extract only the
	// content of a fenced code block from the result — never write raw
	// model output to disk.
	GenerateFix(ctx context.Context, code, errorText, context string) (GenerateResult, error)
}

// Classifier maps an error log plus history to a Classification.
type Classifier interface {
	Classify(ctx context.Context, log string, history []graphstate.Classification) (graphstate.Classification, error)
}

// ConvergenceTrend is the shape of history the ComplexityEstimator reports.
type ConvergenceTrend string

const (
	TrendIncreasing ConvergenceTrend = "increasing"
	TrendDecreasing ConvergenceTrend = "decreasing"
	TrendStable     ConvergenceTrend = "stable"
)

// Convergence is the ComplexityEstimator.DetectConvergence result.
type Convergence struct {
	IsStable    bool
	IsDiverging bool
	Trend       ConvergenceTrend
}

// ComplexityEstimator scores problem complexity and detects convergence
// across iterations.
type ComplexityEstimator interface {
	Estimate(ctx context.Context, state *graphstate.GraphState) (int, error)
	DetectConvergence(history []int) Convergence
}

// FileDiscoveryResult is the FileDiscovery.FindUniqueFile output.
type FileDiscoveryResult struct {
	Found   bool
	Path    string
	Matches []string
}

// FileDiscovery locates a file within a sandbox working tree by a hint
// (basename or partial path).
type FileDiscovery interface {
	FindUniqueFile(ctx context.Context, hint, workDir string) (FileDiscoveryResult, error)
}

// MetricsSink is a write-only recorder of fix-attempt outcomes (C9).
type MetricsSink interface {
	RecordFixAttempt(ctx context.Context, success bool, iterations int, latencyMs int64, reason string) error
}

// PersistencePort is a write-only recorder of file modifications and reward
// signals (C9).
type PersistencePort interface {
	RecordFileModification(ctx context.Context, groupID, path string) error
	RecordRewardSignal(ctx context.Context, groupID string, reward float64, payload map[string]any) error
}

// TestSelector picks a test command for a changed file — the spec's third
// Open Question, resolved as a pluggable port with one built-in heuristic
// (adapters.ExtensionTestSelector).
type TestSelector interface {
	SelectTestCommand(ctx context.Context, change graphstate.FileChange, workDir string) (string, bool)
}

// FileLock serializes edits to a repo-relative path across concurrently
// running RunGroups — the process-wide file-reservation registry of §4.8.
// A held lock must be released exactly once via Release.
type FileLock interface {
	// Acquire blocks until path is free (or already held by groupID) or
	// timeout elapses, returning false on timeout.
	Acquire(ctx context.Context, groupID, path string, timeout time.Duration) bool
	Release(groupID, path string)
}

// LogLevel is the severity of a structured event-log entry (§6 state callbacks).
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogFunc is the external log callback: log(level, message, agentId, agentName).
type LogFunc func(level LogLevel, message, agentID, agentName string)

// StateUpdateFunc is the external state-update callback the Supervisor/
// Coordinator invoke after every Apply, so observers can track GraphState
// without polling.
type StateUpdateFunc func(groupID string, state *graphstate.GraphState)
