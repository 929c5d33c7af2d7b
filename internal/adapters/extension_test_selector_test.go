package adapters

import (
	"context"
	"testing"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

func TestExtensionTestSelectorKnownExtensions(t *testing.T) {
	cases := map[string]string{
		"pkg/foo.py":      "pytest",
		"cmd/main.go":     "go test ./...",
		"src/App.tsx":     "npm test",
		"lib/widget.rb":   "bundle exec rspec",
		"src/lib.rs":      "cargo test",
	}
	sel := ExtensionTestSelector{}
	for path, want := range cases {
		got, ok := sel.SelectTestCommand(context.Background(), graphstate.FileChange{Path: path}, "/work")
		if !ok {
			t.Fatalf("%s: SelectTestCommand returned ok=false", path)
		}
		if got != want {
			t.Fatalf("%s: got %q, want %q", path, got, want)
		}
	}
}

func TestExtensionTestSelectorUnknownExtensionDeclines(t *testing.T) {
	sel := ExtensionTestSelector{}
	_, ok := sel.SelectTestCommand(context.Background(), graphstate.FileChange{Path: "README.md"}, "/work")
	if ok {
		t.Fatal("expected SelectTestCommand to decline for an unmapped extension")
	}
}
