package contextmgr

import "testing"

func TestCompileDropsLowPriorityFirstUnderBudget(t *testing.T) {
	m := New(10)
	m.Add(Item{ID: "a", Priority: PriorityCritical, Content: "12345"})
	m.Add(Item{ID: "b", Priority: PriorityLow, Content: "67890"})
	got := m.Compile()
	if got != "12345" {
		t.Fatalf("Compile() = %q, want just the critical item (low dropped under budget)", got)
	}
}

func TestCompileTruncatesTailWhenSingleItemOverflows(t *testing.T) {
	m := New(5)
	m.Add(Item{ID: "a", Priority: PriorityCritical, Content: "1234567890"})
	got := m.Compile()
	if got != "12345" {
		t.Fatalf("Compile() = %q, want truncated to budget", got)
	}
}

func TestCompilePriorityOrdering(t *testing.T) {
	m := New(1000)
	m.Add(Item{ID: "low", Priority: PriorityLow, Content: "L"})
	m.Add(Item{ID: "high", Priority: PriorityHigh, Content: "H"})
	m.Add(Item{ID: "crit", Priority: PriorityCritical, Content: "C"})
	got := m.Compile()
	want := "C\nH\nL"
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestSmartThinLogNoKeywordsReturnsHeadTailThinned(t *testing.T) {
	log := "a\nb\nc\nd"
	got := SmartThinLog(log, 0, 2)
	want := "a\nb\nContext Thinned\nc\nd"
	if got != want {
		t.Fatalf("SmartThinLog() = %q, want %q", got, want)
	}
}

func TestSmartThinLogExtractsWindowAroundKeyword(t *testing.T) {
	log := "l0\nl1\nl2\nerror here\nl4\nl5\nl6"
	got := SmartThinLog(log, 0, 1)
	want := "l2\nerror here\nl4"
	if got != want {
		t.Fatalf("SmartThinLog() = %q, want %q", got, want)
	}
}

func TestSmartThinLogInsertsSkippedMarkerBetweenDisjointWindows(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	lines[1] = "error a"
	lines[15] = "fail b"
	log := joinLines(lines)

	got := SmartThinLog(log, 0, 1)
	if !contains(got, "Smart Context: Skipped") {
		t.Fatalf("expected a skipped-lines marker between disjoint windows, got: %q", got)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
