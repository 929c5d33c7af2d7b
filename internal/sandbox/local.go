// Package sandbox provides a reference ports.Sandbox implementation backed
// by an isolated OS temp directory and os/exec command execution, grounded
// on the teacher's ToolHandler.Execute subprocess plumbing
// (internal/attractor/engine/handlers.go): per-call timeout via
// context.WithTimeout, a non-login/non-interactive "bash -c" shell,
// captured stdout/stderr, and working-directory pinning.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cirepair/orchestrator/internal/ports"
)

type CommandResult = ports.CommandResult

// DefaultCommandTimeout bounds a single RunCommand call when the caller's
// context carries no deadline of its own.
const DefaultCommandTimeout = 2 * time.Minute

// Local is a ports.Sandbox backed by a private temp directory.
type Local struct {
	id      string
	workDir string

	teardownOnce sync.Once
	teardownErr  error
}

// New creates a fresh temp-directory sandbox rooted under baseDir (or the
// OS default temp dir when baseDir is empty).
func New(baseDir string) (*Local, error) {
	id := ulid.Make().String()
	dir, err := os.MkdirTemp(baseDir, "ci-repair-sandbox-"+id+"-")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create workdir: %w", err)
	}
	return &Local{id: id, workDir: dir}, nil
}

func (s *Local) ID() string      { return s.id }
func (s *Local) WorkDir() string { return s.workDir }

// RunCommand runs command through a non-login, non-interactive shell,
// matching the teacher's "avoid sourcing user dotfiles" convention.
func (s *Local) RunCommand(ctx context.Context, command string) (CommandResult, error) {
	if strings.TrimSpace(command) == "" {
		return CommandResult{}, fmt.Errorf("sandbox: empty command")
	}
	cctx := ctx
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		cctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, "bash", "-c", command)
	cmd.Dir = s.workDir
	cmd.Stdin = strings.NewReader("")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	res := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
	if cctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res, nil
	}
	if runErr != nil {
		if _, isExit := runErr.(*exec.ExitError); isExit {
			return res, nil
		}
		return res, fmt.Errorf("sandbox: run command: %w", runErr)
	}
	return res, nil
}

// ReadFile reads a path relative to WorkDir. A missing file is a legitimate
// "not found" result for create-mode callers — the error wraps os.ErrNotExist
// so callers can use errors.Is.
func (s *Local) ReadFile(ctx context.Context, path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("sandbox: read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes a path relative to WorkDir, creating parent directories
// as needed.
func (s *Local) WriteFile(ctx context.Context, path, content string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("sandbox: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("sandbox: write %s: %w", path, err)
	}
	return nil
}

func (s *Local) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("sandbox: path must be repo-relative, got %q", path)
	}
	full := filepath.Join(s.workDir, path)
	if !strings.HasPrefix(full, filepath.Clean(s.workDir)+string(os.PathSeparator)) && full != s.workDir {
		return "", fmt.Errorf("sandbox: path %q escapes sandbox root", path)
	}
	return full, nil
}

// Teardown removes the temp directory. Idempotent via sync.Once so it is
// safe to call from every exit path (success, failure, panic recovery)
// without double-removal errors.
func (s *Local) Teardown(ctx context.Context) error {
	s.teardownOnce.Do(func() {
		s.teardownErr = os.RemoveAll(s.workDir)
	})
	return s.teardownErr
}
