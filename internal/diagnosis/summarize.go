package diagnosis

import (
	"fmt"
	"regexp"
)

var (
	exitCodeRE = regexp.MustCompile(`(?i)exit code[:\s]+(-?\d+)`)
	jobNameRE  = regexp.MustCompile(`(?i)job[:\s]+([\w.\-/]+)`)
)

// Summarize implements stage 2: a heuristic extract of exit code, failing
// job name, and error-keyword count into a one-sentence summary.
func Summarize(filtered string) string {
	keywordCount := len(filterKeywordRE.FindAllStringIndex(filtered, -1))

	exitCode := ""
	if m := exitCodeRE.FindStringSubmatch(filtered); len(m) == 2 {
		exitCode = m[1]
	}
	jobName := ""
	if m := jobNameRE.FindStringSubmatch(filtered); len(m) == 2 {
		jobName = m[1]
	}

	switch {
	case jobName != "" && exitCode != "":
		return fmt.Sprintf("Job %q failed with exit code %s (%d error indicator(s) found).", jobName, exitCode, keywordCount)
	case jobName != "":
		return fmt.Sprintf("Job %q failed (%d error indicator(s) found).", jobName, keywordCount)
	case exitCode != "":
		return fmt.Sprintf("Run failed with exit code %s (%d error indicator(s) found).", exitCode, keywordCount)
	case keywordCount > 0:
		return fmt.Sprintf("Run failed (%d error indicator(s) found).", keywordCount)
	default:
		return "Run failed with no clearly identifiable error indicator."
	}
}
