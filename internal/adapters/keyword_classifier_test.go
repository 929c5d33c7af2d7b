package adapters

import (
	"context"
	"testing"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

func TestKeywordClassifierMatchesKnownCategories(t *testing.T) {
	cases := []struct {
		name string
		log  string
		want graphstate.ErrorCategory
	}{
		{"disk space", "write failed: no space left on device", graphstate.CategoryDiskSpace},
		{"network", "dial tcp 10.0.0.1:443: connection refused", graphstate.CategoryNetwork},
		{"auth", "fatal: Authentication failed for 'https://example.com'", graphstate.CategoryAuthentication},
		{"dependency conflict", "could not resolve dependency: peer react@18", graphstate.CategoryDependencyConflict},
		{"dependency", "ModuleNotFoundError: No module named 'requests'", graphstate.CategoryDependency},
		{"syntax", "SyntaxError: unexpected token '}'", graphstate.CategorySyntax},
		{"timeout", "operation timed out after 30s", graphstate.CategoryTimeout},
		{"runtime", "panic: runtime error: index out of range", graphstate.CategoryRuntime},
	}

	c := KeywordClassifier{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tc.log, nil)
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if got.Category != tc.want {
				t.Fatalf("Category = %v, want %v", got.Category, tc.want)
			}
			if got.Confidence <= 0 {
				t.Fatalf("Confidence = %v, want > 0 for a matched category", got.Confidence)
			}
		})
	}
}

func TestKeywordClassifierEmptyLogIsUnknownZeroConfidence(t *testing.T) {
	c := KeywordClassifier{}
	got, err := c.Classify(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.Category != graphstate.CategoryUnknown || got.Confidence != 0.0 {
		t.Fatalf("got %+v, want CategoryUnknown with zero confidence", got)
	}
}

func TestKeywordClassifierUnmatchedLogIsUnknownLowConfidence(t *testing.T) {
	c := KeywordClassifier{}
	got, err := c.Classify(context.Background(), "the quick brown fox jumps", nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if got.Category != graphstate.CategoryUnknown {
		t.Fatalf("Category = %v, want CategoryUnknown", got.Category)
	}
	if got.Confidence <= 0 {
		t.Fatalf("Confidence = %v, want > 0 for unmatched-but-nonempty log", got.Confidence)
	}
}
