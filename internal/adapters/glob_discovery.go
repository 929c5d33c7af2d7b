package adapters

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cirepair/orchestrator/internal/ports"
)

// GlobFileDiscovery implements ports.FileDiscovery by walking the sandbox
// tree with github.com/bmatcuk/doublestar/v4 — already a teacher dependency
// (used there for stylesheet/path matching) — to find every file whose
// basename matches hint.
type GlobFileDiscovery struct{}

func (GlobFileDiscovery) FindUniqueFile(ctx context.Context, hint, workDir string) (ports.FileDiscoveryResult, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ports.FileDiscoveryResult{}, nil
	}

	pattern := filepath.ToSlash(filepath.Join(workDir, "**", filepath.Base(hint)))
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return ports.FileDiscoveryResult{}, err
	}

	rel := make([]string, 0, len(matches))
	for _, m := range matches {
		r, relErr := filepath.Rel(workDir, m)
		if relErr != nil {
			continue
		}
		rel = append(rel, filepath.ToSlash(r))
	}

	switch len(rel) {
	case 0:
		return ports.FileDiscoveryResult{Found: false}, nil
	case 1:
		return ports.FileDiscoveryResult{Found: true, Path: rel[0]}, nil
	default:
		return ports.FileDiscoveryResult{Found: false, Matches: rel}, nil
	}
}
