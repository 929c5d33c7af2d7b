// Package diagnosis implements the Diagnosis Pipeline (C3): filtering,
// summarization, fault localization, LM-driven diagnosis, suggested-command
// sanitization, path cleaning, and reproduction-command inference. Grounded
// on the teacher's regex-heavy text classification throughout
// loop_restart_policy.go and its bufio.Scanner-based log handling.
package diagnosis

import (
	"regexp"
	"strings"
)

const (
	filterWindowSize = 5
	filterTailLines  = 10
	filterFallback   = 50
	skippedSentinel  = "... [Skipped content] ..."
)

var filterKeywordRE = regexp.MustCompile(`(?i)error|fail|exception`)

// FilterLogs implements stage 1: retain lines matching fault keywords plus
// a +/-5-line window, plus an unconditional last-10-line tail; gaps become
// the skipped-content sentinel. No keyword anywhere falls back to the last
// 50 lines (the round-trip law this spec tests: FilterLogs on a log with no
// fault keywords equals last-50-lines(log)).
func FilterLogs(log string) string {
	if log == "" {
		return ""
	}
	lines := splitLines(log)

	var keywordWindows []window
	for i, line := range lines {
		if filterKeywordRE.MatchString(line) {
			keywordWindows = append(keywordWindows, window{
				start: clamp(i-filterWindowSize, 0, len(lines)-1),
				end:   clamp(i+filterWindowSize, 0, len(lines)-1),
			})
		}
	}

	if len(keywordWindows) == 0 {
		return lastNLines(lines, filterFallback)
	}

	tailStart := clamp(len(lines)-filterTailLines, 0, len(lines)-1)
	keywordWindows = append(keywordWindows, window{start: tailStart, end: len(lines) - 1})

	merged := mergeWindows(keywordWindows)
	return renderWindows(lines, merged)
}

type window struct{ start, end int }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

func lastNLines(lines []string, n int) string {
	if n > len(lines) {
		n = len(lines)
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func mergeWindows(ws []window) []window {
	sortWindows(ws)
	merged := []window{ws[0]}
	for _, w := range ws[1:] {
		last := &merged[len(merged)-1]
		if w.start <= last.end+1 {
			if w.end > last.end {
				last.end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func sortWindows(ws []window) {
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && ws[j].start < ws[j-1].start; j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
}

func renderWindows(lines []string, merged []window) string {
	var b strings.Builder
	prevEnd := -1
	for _, w := range merged {
		if prevEnd >= 0 && w.start > prevEnd+1 {
			b.WriteString(skippedSentinel)
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(lines[w.start:w.end+1], "\n"))
		b.WriteString("\n")
		prevEnd = w.end
	}
	return strings.TrimRight(b.String(), "\n")
}
