package diagnosis

import "strings"

import "testing"

func TestFilterLogsNoKeywordsIsLast50Lines(t *testing.T) {
	lines := make([]string, 80)
	for i := range lines {
		lines[i] = "ordinary build output line"
	}
	log := strings.Join(lines, "\n")

	got := FilterLogs(log)
	want := lastNLines(lines, filterFallback)
	if got != want {
		t.Fatalf("round-trip law violated: FilterLogs(no-keyword log) != last-50-lines(log)")
	}
}

func TestFilterLogsKeepsWindowAroundKeyword(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "line"
	}
	lines[10] = "Error: something broke"
	log := strings.Join(lines, "\n")

	got := FilterLogs(log)
	if !strings.Contains(got, "Error: something broke") {
		t.Fatalf("expected the keyword line to survive filtering")
	}
	if !strings.Contains(got, skippedSentinel) {
		t.Fatalf("expected a skipped-content sentinel between the keyword window and the tail")
	}
}

func TestFilterLogsAlwaysIncludesTail(t *testing.T) {
	lines := make([]string, 5)
	for i := range lines {
		lines[i] = "l"
	}
	lines[0] = "exception raised"
	log := strings.Join(lines, "\n")

	got := FilterLogs(log)
	if got != log {
		t.Fatalf("short logs entirely within window+tail should come back whole: got %q", got)
	}
}
