// Package graph implements the Node Handlers (C6) and the Graph Coordinator
// (C7). Handlers are values in a dispatch map keyed by NodeName — data, not
// subclasses — mirroring the teacher's HandlerRegistry
// (internal/attractor/engine/handlers.go: Register/Resolve over a
// map[string]Handler with a default fallback).
package graph

import (
	"context"
	"time"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/loopguard"
	"github.com/cirepair/orchestrator/internal/ports"
)

// HandlerDeps bundles every collaborator a node handler may consume — the
// explicit Context bundle spec.md §9 calls for in place of module-level
// singletons, injected at Coordinator construction.
type HandlerDeps struct {
	GroupID string

	LogSource           ports.LogSource
	LanguageModel       ports.LanguageModel
	Classifier          ports.Classifier
	ComplexityEstimator ports.ComplexityEstimator
	FileDiscovery       ports.FileDiscovery
	MetricsSink         ports.MetricsSink
	Persistence         ports.PersistencePort
	TestSelector        ports.TestSelector
	Sandbox             ports.Sandbox
	Detector            *loopguard.Detector
	FileLock            ports.FileLock
	LockTimeout         time.Duration

	Repo      string
	RunID     string
	Log       ports.LogFunc

	// FailingRunIDs/ParentRunID feed Analysis's log-fetch fallback
	// strategies (§4.6: distinct job, parent run, workflow re-poll) once
	// the primary RunID reports ports.NoFailedJobFound.
	FailingRunIDs []string
	ParentRunID   string

	// WorkflowFileContent/RepoManifest feed the Diagnosis Pipeline's
	// reproduction-inference strategies (a) and (d)/(c).
	WorkflowFileContent string
	RepoManifest        string
	FaultLocalization   bool
}

// Handler is one step of the repair graph: a pure function of
// (state, deps) -> partial state delta. Handlers never mutate state
// directly (§9 "State updates as deltas").
type Handler interface {
	Execute(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error)

func (f HandlerFunc) Execute(ctx context.Context, deps *HandlerDeps, state *graphstate.GraphState) (graphstate.Delta, error) {
	return f(ctx, deps, state)
}

// Registry is the dispatch table, keyed by the closed set of NodeName
// values — data, not inheritance (spec.md §9).
type Registry struct {
	handlers map[graphstate.NodeName]Handler
}

// NewDefaultRegistry wires the five spec handlers.
func NewDefaultRegistry() *Registry {
	r := &Registry{handlers: map[graphstate.NodeName]Handler{}}
	r.Register(graphstate.NodeAnalysis, HandlerFunc(Analysis))
	r.Register(graphstate.NodeDecomposition, HandlerFunc(Decomposition))
	r.Register(graphstate.NodePlanning, HandlerFunc(Planning))
	r.Register(graphstate.NodeExecution, HandlerFunc(Execution))
	r.Register(graphstate.NodeVerification, HandlerFunc(Verification))
	// repair-agent shares the execution handler: both are a single apply-a-fix
	// step gated by the same reproduction-command invariant (I4), and the
	// spec never describes a distinct repair-agent operation beyond that gate.
	r.Register(graphstate.NodeRepairAgent, HandlerFunc(Execution))
	return r
}

func (r *Registry) Register(name graphstate.NodeName, h Handler) {
	if r.handlers == nil {
		r.handlers = map[graphstate.NodeName]Handler{}
	}
	r.handlers[name] = h
}

func (r *Registry) Resolve(name graphstate.NodeName) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
