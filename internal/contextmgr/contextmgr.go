// Package contextmgr is the Context Manager (C4): a priority-ranked
// assembly buffer for a bounded prompt context, plus smartThinLog, the
// keyword-windowed log thinner used by the Diagnosis Pipeline. Grounded on
// the teacher's preference for direct, unoptimized control flow over
// generic data structures for small item counts (observed throughout
// engine.go) — a priority bucket rather than container/heap.
package contextmgr

import (
	"fmt"
	"regexp"
	"strings"
)

// Priority is the ranking used to decide what survives a byte budget.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// ItemType tags what an Item holds, mostly for caller bookkeeping.
type ItemType string

const (
	ItemText ItemType = "text"
	ItemCode ItemType = "code"
	ItemLog  ItemType = "log"
)

// Item is one unit the Manager may include in a compiled context.
type Item struct {
	ID       string
	Type     ItemType
	Priority Priority
	Content  string
}

// Manager is an assembly buffer with a byte budget.
type Manager struct {
	budgetBytes int
	items       []Item
}

// New returns a Manager bounded to budgetBytes.
func New(budgetBytes int) *Manager {
	return &Manager{budgetBytes: budgetBytes}
}

// Add appends an item to the buffer.
func (m *Manager) Add(item Item) {
	m.items = append(m.items, item)
}

// Compile concatenates items in priority order (critical -> high -> medium
// -> low), joined by "\n", until the byte budget is exhausted; the
// separators count against the budget. A low-priority item that does not
// fit whole is dropped; any other item that would overflow the remaining
// budget is truncated from the tail.
func (m *Manager) Compile() string {
	buckets := map[Priority][]Item{}
	for _, it := range m.items {
		buckets[it.Priority] = append(buckets[it.Priority], it)
	}

	var b strings.Builder
	remaining := m.budgetBytes
	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		for _, it := range buckets[p] {
			sep := 0
			if b.Len() > 0 {
				sep = 1
			}
			avail := remaining - sep
			if avail <= 0 {
				return b.String()
			}
			content := it.Content
			if len(content) > avail {
				if p == PriorityLow {
					continue
				}
				content = content[:avail]
			}
			if sep > 0 {
				b.WriteString("\n")
			}
			b.WriteString(content)
			remaining -= sep + len(content)
		}
	}
	return b.String()
}

var faultKeywordRE = regexp.MustCompile(`(?i)error|fail|exception`)

// SmartThinLog extracts windows of +/- windowSize lines around fault
// keywords, merges overlapping windows, and inserts a
// "Smart Context: Skipped N lines" marker between disjoint windows. If no
// keyword matches, it returns head+tail halves joined by "Context Thinned".
func SmartThinLog(log string, maxLines, windowSize int) string {
	if log == "" {
		return ""
	}
	lines := strings.Split(log, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	type window struct{ start, end int } // inclusive, 0-indexed
	var windows []window
	for i, line := range lines {
		if faultKeywordRE.MatchString(line) {
			start := i - windowSize
			if start < 0 {
				start = 0
			}
			end := i + windowSize
			if end > len(lines)-1 {
				end = len(lines) - 1
			}
			windows = append(windows, window{start, end})
		}
	}

	if len(windows) == 0 {
		return thinnedHeadTail(lines)
	}

	merged := []window{windows[0]}
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if w.start <= last.end+1 {
			if w.end > last.end {
				last.end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}

	var b strings.Builder
	prevEnd := -1
	for _, w := range merged {
		if prevEnd >= 0 {
			skipped := w.start - prevEnd - 1
			if skipped > 0 {
				b.WriteString(fmt.Sprintf("Smart Context: Skipped %d lines\n", skipped))
			}
		}
		b.WriteString(strings.Join(lines[w.start:w.end+1], "\n"))
		b.WriteString("\n")
		prevEnd = w.end
	}
	return strings.TrimRight(b.String(), "\n")
}

func thinnedHeadTail(lines []string) string {
	half := len(lines) / 2
	if half == 0 {
		return strings.Join(lines, "\n")
	}
	head := strings.Join(lines[:half], "\n")
	tail := strings.Join(lines[len(lines)-half:], "\n")
	return head + "\nContext Thinned\n" + tail
}
