package adapters

import (
	"context"
	"strings"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

// keywordCategoryHints orders ErrorCategory candidates by the substrings
// that most often precede them in CI logs, the same hint-table approach
// loopguard.ClassifyFailureReason uses for its own, narrower taxonomy.
var keywordCategoryHints = []struct {
	category graphstate.ErrorCategory
	hints    []string
}{
	{graphstate.CategoryDiskSpace, []string{"no space left on device", "disk quota exceeded", "enospc"}},
	{graphstate.CategoryNetwork, []string{"connection refused", "dial tcp", "network is unreachable", "temporary failure in name resolution"}},
	{graphstate.CategoryAuthentication, []string{"401 unauthorized", "authentication failed", "permission denied (publickey)", "invalid credentials"}},
	{graphstate.CategoryDependencyConflict, []string{"could not resolve dependency", "version conflict", "incompatible peer dependency"}},
	{graphstate.CategoryDependency, []string{"module not found", "no such file or directory", "cannot find package", "importerror", "no module named"}},
	{graphstate.CategorySyntax, []string{"syntaxerror", "unexpected token", "parse error"}},
	{graphstate.CategoryPatchPackageFailure, []string{"patch does not apply", "hunk failed", "package install failed"}},
	{graphstate.CategoryMSWError, []string{"mockserviceworker", "msw warning", "unhandled request"}},
	{graphstate.CategoryBuild, []string{"build failed", "compilation error", "undefined reference"}},
	{graphstate.CategoryTestFailure, []string{"assertionerror", "test failed", "expect(received)", "FAIL "}},
	{graphstate.CategoryTimeout, []string{"timed out", "deadline exceeded", "context deadline exceeded"}},
	{graphstate.CategoryConfiguration, []string{"invalid configuration", "missing required config", "unknown flag"}},
	{graphstate.CategoryEnvironmentUnstable, []string{"flaky", "intermittent", "retrying after failure"}},
	{graphstate.CategoryInfrastructure, []string{"runner lost communication", "container killed", "out of memory"}},
	{graphstate.CategoryRuntime, []string{"nullpointerexception", "panic:", "segmentation fault", "traceback (most recent call last)"}},
}

// KeywordClassifier is a deterministic keyword scorer implementing
// ports.Classifier, grounded on the teacher's loop_restart_policy.go
// failure-hint tables — first matching category wins, ordered from most to
// least specific so narrower categories (disk space, auth) are not shadowed
// by broader ones (runtime, infrastructure).
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(ctx context.Context, log string, history []graphstate.Classification) (graphstate.Classification, error) {
	lower := strings.ToLower(log)
	for _, entry := range keywordCategoryHints {
		for _, hint := range entry.hints {
			if strings.Contains(lower, strings.ToLower(hint)) {
				return graphstate.Classification{
					Category:        entry.category,
					Confidence:      0.8,
					SuggestedAction: "investigate " + string(entry.category),
				}, nil
			}
		}
	}
	if strings.TrimSpace(log) == "" {
		return graphstate.Classification{Category: graphstate.CategoryUnknown, Confidence: 0.0}, nil
	}
	return graphstate.Classification{Category: graphstate.CategoryUnknown, Confidence: 0.3}, nil
}
