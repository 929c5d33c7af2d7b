package adapters

import (
	"context"

	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

// TrendEstimator implements ports.ComplexityEstimator: Estimate scores the
// current state's problem complexity from observable signals (feedback
// count, affected-file count, DAG size), and DetectConvergence runs a
// simple linear-regression slope over the complexity history to classify
// its trend. Grounded on the teacher's detectConvergence-shaped consumers
// in loop_restart_policy.go/escalation.go, which read a short numeric
// history and decide stable/increasing/decreasing without a statistics
// library — this follows the same direct-control-flow style.
type TrendEstimator struct {
	// StableSlope bounds |slope| below which the trend counts as stable.
	StableSlope float64
}

const defaultStableSlope = 0.5

// Estimate derives a complexity score from the feedback count, the
// classification's affected-file count and the size of any DAG built by
// Decomposition, all already attached to state — never
// from an LM call, so it stays deterministic and cheap to run every tick.
func (e TrendEstimator) Estimate(ctx context.Context, state *graphstate.GraphState) (int, error) {
	score := len(state.Feedback)
	if state.Classification != nil {
		score += len(state.Classification.AffectedFiles)
	}
	if state.ErrorDAG != nil {
		score += len(state.ErrorDAG.Nodes)
	}
	return score, nil
}

// DetectConvergence fits a least-squares slope over history and classifies
// it as stable/increasing/decreasing. Fewer than two points is always
// reported stable — there is nothing yet to diverge from.
func (e TrendEstimator) DetectConvergence(history []int) ports.Convergence {
	if len(history) < 2 {
		return ports.Convergence{IsStable: true, Trend: ports.TrendStable}
	}

	slope := linearSlope(history)
	threshold := e.StableSlope
	if threshold <= 0 {
		threshold = defaultStableSlope
	}

	switch {
	case slope > threshold:
		return ports.Convergence{IsDiverging: true, Trend: ports.TrendIncreasing}
	case slope < -threshold:
		return ports.Convergence{IsStable: true, Trend: ports.TrendDecreasing}
	default:
		return ports.Convergence{IsStable: true, Trend: ports.TrendStable}
	}
}

// linearSlope computes the least-squares slope of y=history[i] against
// x=i, the simplest trend estimator that only needs one pass over history.
func linearSlope(history []int) float64 {
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range history {
		x := float64(i)
		y := float64(v)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
