package adapters

import (
	"context"
	"path"
	"strings"

	"github.com/cirepair/orchestrator/internal/graphstate"
)

// extensionTestCommands maps a changed file's extension to the test command
// most likely to exercise it — the spec's third Open Question, resolved as
// a pluggable ports.TestSelector with this one built-in heuristic.
var extensionTestCommands = map[string]string{
	".py":  "pytest",
	".go":  "go test ./...",
	".ts":  "npm test",
	".tsx": "npm test",
	".js":  "npm test",
	".jsx": "npm test",
	".rb":  "bundle exec rspec",
	".rs":  "cargo test",
}

// ExtensionTestSelector picks a test command from the changed file's
// extension. It has no teacher-file grounding beyond the general
// extension-dispatch idiom (map[string]T keyed on filepath.Ext) the teacher
// uses elsewhere for content-type dispatch — this concern itself is new to
// this spec, not present in the teacher's own domain.
type ExtensionTestSelector struct{}

func (ExtensionTestSelector) SelectTestCommand(ctx context.Context, change graphstate.FileChange, workDir string) (string, bool) {
	ext := strings.ToLower(path.Ext(change.Path))
	cmd, ok := extensionTestCommands[ext]
	return cmd, ok
}
