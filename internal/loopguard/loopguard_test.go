package loopguard

import (
	"testing"

	"github.com/cirepair/orchestrator/internal/ports"
)

func TestRecordHallucinationTriggersAtThreshold(t *testing.T) {
	d := NewDetector()
	if d.RecordHallucination("g1", "file.ts") {
		t.Fatalf("first recording must not trigger a strategy shift")
	}
	if !d.RecordHallucination("g1", "file.ts") {
		t.Fatalf("second recording of the same path must trigger a strategy shift")
	}
}

func TestRecordHallucinationIsPerGroup(t *testing.T) {
	d := NewDetector()
	d.RecordHallucination("g1", "file.ts")
	d.RecordHallucination("g1", "file.ts")
	if d.HallucinationCount("g2") != 0 {
		t.Fatalf("hallucinations must not leak across groups")
	}
}

func TestEvaluateStrategyLoopScenario4(t *testing.T) {
	cfg := DefaultStrategyLoopConfig()
	history := []int{10, 12, 14, 16, 18}
	conv := ports.Convergence{IsDiverging: true, Trend: ports.TrendIncreasing}
	halt, warn := EvaluateStrategyLoop(cfg, 5, history, conv)
	if !halt {
		t.Fatalf("expected a halt for history %v (2 of last 3 > 15)", history)
	}
	if warn {
		t.Fatalf("halt and warn must be mutually exclusive")
	}
}

func TestEvaluateStrategyLoopBelowIterationFloorWarnsOnly(t *testing.T) {
	cfg := DefaultStrategyLoopConfig()
	history := []int{10, 12, 16, 18}
	conv := ports.Convergence{IsDiverging: true}
	halt, warn := EvaluateStrategyLoop(cfg, 3, history, conv)
	if halt {
		t.Fatalf("must not halt before MinIteration even if thresholds are met")
	}
	if !warn {
		t.Fatalf("expected a warning")
	}
}

func TestEvaluateStrategyLoopNotDivergingIsQuiet(t *testing.T) {
	cfg := DefaultStrategyLoopConfig()
	halt, warn := EvaluateStrategyLoop(cfg, 10, []int{20, 20, 20}, ports.Convergence{IsDiverging: false})
	if halt || warn {
		t.Fatalf("a non-diverging trend must neither halt nor warn")
	}
}

func TestEvaluateStrategyLoopWeakDivergenceWarnsOnly(t *testing.T) {
	cfg := DefaultStrategyLoopConfig()
	halt, warn := EvaluateStrategyLoop(cfg, 10, []int{5, 6, 7}, ports.Convergence{IsDiverging: true})
	if halt {
		t.Fatalf("weak divergence below the complexity threshold must not halt")
	}
	if !warn {
		t.Fatalf("weak divergence must still warn")
	}
}

func TestNormalizeFailureReasonCollapsesHexAndDigits(t *testing.T) {
	got := NormalizeFailureReason("Error at commit 9fcb3d1a2e7 on line 482")
	want := "error at commit <hex> on line <n>"
	if got != want {
		t.Fatalf("NormalizeFailureReason() = %q, want %q", got, want)
	}
}

func TestClassifyFailureReason(t *testing.T) {
	cases := map[string]FailureClass{
		"connection reset by peer":     FailureTransientInfra,
		"context deadline exceeded":    FailureTransientInfra,
		"token limit reached":          FailureBudgetExhausted,
		"write scope violation":        FailureStructural,
		"operation was canceled":       FailureCanceled,
		"assertion failed: want 1 got 2": FailureDeterministic,
		"":                             FailureDeterministic,
	}
	for reason, want := range cases {
		if got := ClassifyFailureReason(reason); got != want {
			t.Errorf("ClassifyFailureReason(%q) = %s, want %s", reason, got, want)
		}
	}
}

func TestFailureSignatureStableAcrossVaryingIDs(t *testing.T) {
	a := FailureSignature("execution", "exit code 1 at commit 9fcb3d1a2e7")
	b := FailureSignature("execution", "exit code 1 at commit aa11bb22cc3")
	if a != b {
		t.Fatalf("signatures should collapse differing commit hashes: %q != %q", a, b)
	}
}
