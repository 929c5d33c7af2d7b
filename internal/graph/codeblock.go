package graph

import "regexp"

var fencedCodeBlockRE = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n(.*?)\\n```")

// ExtractFencedCodeBlock returns the content of the first fenced code
// block in text, or ("", false) if none is present. Per invariant I5, no
// text other than this extracted content may ever reach a sandbox write.
func ExtractFencedCodeBlock(text string) (string, bool) {
	m := fencedCodeBlockRE.FindStringSubmatch(text)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}
