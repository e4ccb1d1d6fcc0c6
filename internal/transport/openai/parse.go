package openai

import (
	"regexp"
	"strings"
)

var linePrefixRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*`)

// parseNumberedLines splits model output into cleaned lines, stripping list
// numbering, bullets, surrounding quotes and empties.
func parseNumberedLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = linePrefixRe.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"`)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// extractJSONObject returns the outermost {...} region of the output, which
// tolerates code fences and prose around the JSON.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}

// extractJSONArray returns the outermost [...] region of the output.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}
