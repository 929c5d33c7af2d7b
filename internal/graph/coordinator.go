package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/loopguard"
	"github.com/cirepair/orchestrator/internal/ports"
)

// Coordinator is the Graph Coordinator (C7): it owns the dispatch table and
// drives one RunGroup's GraphState through ticks until a terminal condition
// is reached, applying the three global gates the spec requires on every
// tick, in order. Grounded on the teacher's Engine tick loop in engine.go
// (dispatch -> merge outcome -> apply policy checks -> advance).
type Coordinator struct {
	Registry           *Registry
	Deps               *HandlerDeps
	Detector           *loopguard.Detector
	StrategyLoopConfig loopguard.StrategyLoopConfig
	Metrics            ports.MetricsSink
	OnStateUpdate      ports.StateUpdateFunc
	OnLog              ports.LogFunc
	Now                func() time.Time
}

// NewCoordinator wires a Coordinator with the default handler registry and
// strategy-loop thresholds; callers override fields for tests.
func NewCoordinator(deps *HandlerDeps, detector *loopguard.Detector) *Coordinator {
	return &Coordinator{
		Registry:           NewDefaultRegistry(),
		Deps:               deps,
		Detector:           detector,
		StrategyLoopConfig: loopguard.DefaultStrategyLoopConfig(),
		Now:                time.Now,
	}
}

// Run drives state through ticks until IsTerminal() or iteration budget
// exhaustion, returning the final status. It never returns an error for a
// handler-level failure — those become status=failed on the state itself,
// per §4.7's "on any exception, catch, set status=failed" contract. A
// non-nil error return means the context was canceled.
func (c *Coordinator) Run(ctx context.Context, groupID string, state *graphstate.GraphState) error {
	for {
		if state.IsTerminal() {
			return nil
		}
		if state.Iteration >= state.MaxIterations {
			state.Status = graphstate.StatusFailed
			state.Message = "iteration budget exhausted"
			state.FailureReason = "iteration-budget-exhausted"
			state.ReleaseAllFiles()
			c.recordTerminalOutcome(state)
			c.notify(groupID, state)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Tick(ctx, state)
		c.notify(groupID, state)
	}
}

// Tick executes exactly one dispatch-merge-gate cycle. Panics from a handler
// never escape: recovered here, exactly as the teacher's handler_panic_test
// exercises for its own Engine tick (this spec's equivalent test file is
// coordinator_panic_test.go). Whichever path leaves state terminal — success,
// a handler error, an unknown node, a panic, or a gate halt — is recorded
// exactly once via recordTerminalOutcome, satisfying §4.9's "at minimum one
// recordFixAttempt per terminal outcome." The record-check defer is
// registered before the recover defer so it runs after recover has already
// set a terminal status (defers unwind last-registered-first).
func (c *Coordinator) Tick(ctx context.Context, state *graphstate.GraphState) {
	wasTerminal := state.IsTerminal()
	defer func() {
		if !wasTerminal && state.IsTerminal() {
			c.recordTerminalOutcome(state)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			state.Status = graphstate.StatusFailed
			state.Message = fmt.Sprintf("panic in node %q: %v", state.CurrentNode, r)
			state.FailureReason = "panic"
			state.ReleaseAllFiles()
		}
	}()

	dispatchedNode := state.CurrentNode
	handler, ok := c.Registry.Resolve(dispatchedNode)
	if !ok {
		state.Status = graphstate.StatusFailed
		state.Message = fmt.Sprintf("no handler registered for node %q", dispatchedNode)
		state.FailureReason = "no-handler-registered"
		state.ReleaseAllFiles()
		return
	}

	delta, err := handler.Execute(ctx, c.Deps, state)
	if err != nil {
		state.Status = graphstate.StatusFailed
		state.Message = err.Error()
		state.FailureReason = "handler-error"
		state.ReleaseAllFiles()
		return
	}
	state.Apply(delta)
	state.Touch(c.Now())

	if delta.AppendComplexity != nil {
		state.Iteration++
	}

	if dispatchedNode == graphstate.NodeExecution || dispatchedNode == graphstate.NodeRepairAgent {
		state.ReleaseAllFiles()
	}

	c.applyReproductionGate(state)
	if state.Status == graphstate.StatusFailed {
		return
	}
	c.applyStrategyLoopGate(state)
}

// applyReproductionGate is gate 1 of §4.7: any transition into
// execution/repair-agent without a reproduction command halts the group,
// regardless of DAG/currentNodeId progress (the resolved Open Question in
// SPEC_FULL.md §9).
func (c *Coordinator) applyReproductionGate(state *graphstate.GraphState) {
	if state.CurrentNode != graphstate.NodeExecution && state.CurrentNode != graphstate.NodeRepairAgent {
		return
	}
	reproductionCommand := ""
	if state.Diagnosis != nil {
		reproductionCommand = state.Diagnosis.ReproductionCommand
	}
	if reproductionCommand != "" {
		return
	}
	state.Status = graphstate.StatusFailed
	state.Message = "Reproduction command required"
	state.FailureReason = "reproduction-command-missing"
	state.ReproductionCommandMissing = true
	state.ReleaseAllFiles()
	c.log(ports.LogWarn, "Reproduction command required; see the reproduction-inference strategies (workflow file, signature match, manifest mapping, LM-retry, safe-scan).")
}

// applyStrategyLoopGate is gates 2 and 3 of §4.7 (strategy-loop halt, then
// convergence warning-only): both read the same DetectConvergence call, so
// EvaluateStrategyLoop returns isHalt for gate 2 and isWarn for gate 3 from
// one evaluation rather than computing convergence twice.
func (c *Coordinator) applyStrategyLoopGate(state *graphstate.GraphState) {
	if c.Deps == nil || c.Deps.ComplexityEstimator == nil {
		return
	}
	conv := c.Deps.ComplexityEstimator.DetectConvergence(state.ComplexityHistory)
	isHalt, isWarn := loopguard.EvaluateStrategyLoop(c.StrategyLoopConfig, state.Iteration, state.ComplexityHistory, conv)
	if isHalt {
		state.Status = graphstate.StatusFailed
		state.Message = "Strategy loop detected: complexity is diverging across iterations"
		state.FailureReason = "strategy-loop-detected"
		state.ReleaseAllFiles()
		for _, line := range loopguard.StrategyLoopLogLines {
			c.log(ports.LogWarn, line)
		}
		return
	}
	if isWarn {
		c.log(ports.LogWarn, "problem complexity is diverging across iterations")
	}
}

// recordTerminalOutcome satisfies §4.9's "at minimum one recordFixAttempt
// per terminal outcome": called exactly once, at the moment state first
// becomes terminal, regardless of which path got it there. Reason prefers
// FailureReason (the stable, machine-matchable tag set by every failure
// path above) and falls back to Message for paths that only set that.
func (c *Coordinator) recordTerminalOutcome(state *graphstate.GraphState) {
	if c.Metrics == nil {
		return
	}
	reason := state.FailureReason
	if reason == "" {
		reason = state.Message
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	var latencyMs int64
	if !state.StartedAt.IsZero() {
		latencyMs = now.Sub(state.StartedAt).Milliseconds()
	}
	success := state.Status == graphstate.StatusSuccess
	_ = c.Metrics.RecordFixAttempt(context.Background(), success, state.Iteration, latencyMs, reason)
}

func (c *Coordinator) notify(groupID string, state *graphstate.GraphState) {
	if c.OnStateUpdate != nil {
		c.OnStateUpdate(groupID, state)
	}
}

func (c *Coordinator) log(level ports.LogLevel, message string) {
	if c.OnLog != nil {
		c.OnLog(level, message, "", "")
	}
}
