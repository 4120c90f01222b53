package extract

import (
	"regexp"
	"strings"
)

// hyphenatedLineEndPattern matches lines ending with a hyphen (word break across lines).
var hyphenatedLineEndPattern = regexp.MustCompile(`[a-zA-Z]-$`)

// joinHyphenated merges next into prev when prev ends with a word broken by a hyphen and
// next continues it in lowercase:
//
//	"the ceiling height of habit-"
//	"able rooms"
//
// becomes "the ceiling height of habitable rooms".
func joinHyphenated(prev, next string) (string, bool) {
	trimmedPrev := strings.TrimRight(prev, " \t")
	trimmedNext := strings.TrimSpace(next)
	if !hyphenatedLineEndPattern.MatchString(trimmedPrev) {
		return "", false
	}
	if trimmedNext == "" || trimmedNext[0] < 'a' || trimmedNext[0] > 'z' {
		return "", false
	}
	return trimmedPrev[:len(trimmedPrev)-1] + trimmedNext, true
}

// RejoinHyphens merges every hyphenated word split across two consecutive lines.
func RejoinHyphens(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}

	var result []string
	for _, line := range lines {
		if n := len(result); n > 0 {
			if joined, ok := joinHyphenated(result[n-1], line); ok {
				result[n-1] = joined
				continue
			}
		}
		result = append(result, line)
	}
	return result
}
