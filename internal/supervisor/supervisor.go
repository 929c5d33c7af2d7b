// Package supervisor implements the Supervisor (C8): bounded-concurrency
// orchestration of multiple RunGroups, each driven by its own graph.Coordinator
// against its own sandbox. Grounded on two corpus sources: the teacher's
// hand-rolled worker-pool fan-out in internal/attractor/engine/parallel_handlers.go
// (jobs channel + sync.WaitGroup + per-branch goroutines, one mutex for the
// parts of the work that cannot run concurrently) and the pack's one real
// golang.org/x/sync/errgroup usage in opentofu's internal/copy/copy_dir.go,
// which supplies the bounded-concurrency idiom (errgroup.Group + SetLimit)
// this package uses in place of a hand-rolled semaphore.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cirepair/orchestrator/internal/graph"
	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/loopguard"
	"github.com/cirepair/orchestrator/internal/ports"
	"github.com/cirepair/orchestrator/internal/reposcache"
)

// defaultConcurrency mirrors the teacher's parallel_handlers.go default
// branch-worker count when the caller leaves Concurrency unset.
const defaultConcurrency = 4

// SandboxFactory allocates a fresh, isolated Sandbox for one RunGroup.
type SandboxFactory func(ctx context.Context, group graphstate.RunGroup) (ports.Sandbox, error)

// GroupResult is one RunGroup's outcome, collected after Supervisor.RunGroups
// returns. A per-group failure is captured here, never propagated as an
// errgroup error — one group's failure must never cancel its peers.
type GroupResult struct {
	GroupID string
	State   *graphstate.GraphState
	Err     error
}

// Supervisor runs a batch of RunGroups concurrently, each against its own
// Coordinator and Sandbox, sharing one FileLock and one loopguard.Detector
// so cross-group invariants (I2 file reservations, hallucination counts by
// groupID) hold across the whole batch.
type Supervisor struct {
	Concurrency    int
	SandboxFactory SandboxFactory
	FileLock       *FileReservationRegistry
	Detector       *loopguard.Detector
	BaseDeps       graph.HandlerDeps
	GroupDeadline  time.Duration
	OnStateUpdate  ports.StateUpdateFunc
	OnLog          ports.LogFunc
	Now            func() time.Time

	// ReposCache and FetchContext, when both set, let sibling groups that
	// share a (repo, headSHA) pair — the common case for a batch of
	// failing runs against the same commit — skip refetching the
	// workflow file/manifest/fault-localization context per group.
	ReposCache   *reposcache.Cache
	FetchContext func(ctx context.Context, repoURL, headSHA string) (reposcache.Context, error)
}

// New wires a Supervisor with its own FileLock and Detector, ready to run.
func New(baseDeps graph.HandlerDeps, sandboxFactory SandboxFactory) *Supervisor {
	return &Supervisor{
		Concurrency:    defaultConcurrency,
		SandboxFactory: sandboxFactory,
		FileLock:       NewFileReservationRegistry(),
		Detector:       loopguard.NewDetector(),
		BaseDeps:       baseDeps,
		Now:            time.Now,
	}
}

// RunGroups drives every group to completion, honoring Concurrency as an
// upper bound on simultaneously active groups. errgroup.WithContext's
// cancel-on-first-error behavior never triggers here because every g.Go
// closure always returns nil; each group's own outcome is recorded in its
// GroupResult instead, so one group's failure never cancels its siblings.
func (s *Supervisor) RunGroups(ctx context.Context, groups []graphstate.RunGroup) []GroupResult {
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]GroupResult, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			results[i] = s.runOne(gctx, group)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOne allocates a sandbox, drives one group's Coordinator to completion,
// and guarantees sandbox teardown on every exit path including a panic (I1)
// by running Teardown against a context.WithoutCancel wrapper so it still
// completes after gctx's own cancellation/deadline fires.
func (s *Supervisor) runOne(ctx context.Context, group graphstate.RunGroup) (result GroupResult) {
	result.GroupID = group.ID

	now := s.Now
	if now == nil {
		now = time.Now
	}
	state := graphstate.NewGraphState(now())

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic running group %s: %v", group.ID, r)
			if result.State == nil {
				result.State = state
			}
		}
	}()

	sandbox, err := s.SandboxFactory(ctx, group)
	if err != nil {
		result.State = state
		result.Err = fmt.Errorf("allocating sandbox for group %s: %w", group.ID, err)
		return result
	}
	defer func() {
		teardownCtx := context.WithoutCancel(ctx)
		_ = sandbox.Teardown(teardownCtx)
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.GroupDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.GroupDeadline)
		defer cancel()
	}

	deps := s.BaseDeps
	deps.GroupID = group.ID
	deps.Sandbox = sandbox
	deps.FileLock = s.FileLock
	deps.Detector = s.Detector
	deps.RunID = group.MainRunID
	deps.FailingRunIDs = group.FailingRunIDs
	if repo, ok := group.Metadata["repo"]; ok {
		deps.Repo = repo
	}
	if parentRunID, ok := group.Metadata["parent_run_id"]; ok {
		deps.ParentRunID = parentRunID
	}
	if s.OnLog != nil {
		deps.Log = s.OnLog
	}
	if s.ReposCache != nil && s.FetchContext != nil && deps.Repo != "" {
		repoCtx, err := s.ReposCache.GetOrFetch(deps.Repo, group.HeadSHA, func() (reposcache.Context, error) {
			return s.FetchContext(ctx, deps.Repo, group.HeadSHA)
		})
		if err == nil {
			deps.WorkflowFileContent = repoCtx.WorkflowFileContent
			deps.RepoManifest = repoCtx.RepoManifest
			deps.FaultLocalization = repoCtx.FaultLocalization
		}
	}

	coord := graph.NewCoordinator(&deps, s.Detector)
	coord.Metrics = deps.MetricsSink
	coord.OnStateUpdate = s.OnStateUpdate
	coord.OnLog = s.OnLog
	if now != nil {
		coord.Now = now
	}

	result.State = state
	result.Err = coord.Run(runCtx, group.ID, state)
	return result
}
